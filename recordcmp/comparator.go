package recordcmp

import (
	"github.com/go-litebtree/litebtree/btree"
	"github.com/go-litebtree/litebtree/pager"
)

// Comparator decodes an index cell's record payload and compares it,
// column by column, against a cursor's search keys. It implements
// btree.Comparator. Columns gives the collation to use for each column
// position; a short or nil entry falls back to Binary.
type Comparator struct {
	Columns []Collation
}

// New builds a Comparator with the given per-column collations, in index
// order.
func New(columns ...Collation) *Comparator {
	return &Comparator{Columns: columns}
}

func (c *Comparator) collationFor(i int) Collation {
	if i < len(c.Columns) && c.Columns[i] != nil {
		return c.Columns[i]
	}
	return Binary
}

// CompareRecord reports how keys compares against payload's decoded
// record: Less if keys sorts before the record, Greater if after, Equal
// if every supplied key column matches. keys may supply fewer columns
// than the record holds — a prefix search — in which case a match on all
// supplied columns is Equal regardless of the record's remaining columns.
func (c *Comparator) CompareRecord(keys []btree.KeyCmp, payload *pager.Payload) (btree.Ordering, error) {
	values, err := DecodeValues(payload)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if i >= len(values) {
			return btree.Greater, nil
		}
		switch c.collationFor(i).Compare(k.Value, values[i]) {
		case -1:
			return btree.Less, nil
		case 1:
			return btree.Greater, nil
		}
	}
	return btree.Equal, nil
}
