// Package btree implements the cursor-driven traversal and mutation of
// table and index B-trees over a paged SQLite-format file. It consumes a
// *pager.Pager for page I/O and a Comparator for index-tree key ordering;
// everything about SQL, schemas, and record (column-tuple) encoding lives
// above this package.
package btree

import "github.com/go-litebtree/litebtree/pager"

// Ordering is the result of comparing a cursor's search keys against a
// cell's payload.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// KeyCmp is one value of an index-tree search key: the column's encoded
// SQL value. The collation used to compare it is chosen by the Comparator
// on Context, not carried here.
type KeyCmp struct {
	// Value holds the column value in whatever form the external
	// record/collation collaborator expects to receive it; this package
	// never interprets it directly, only threads it through to Comparator.
	Value any
}

// Comparator abstracts the record-tuple decoding and per-column collation
// needed to order index-tree cells. It is supplied by the external record
// collaborator described in the specification: given a partial or full key
// tuple and a cell's payload, it reports how keys compare against the
// payload's leading columns (Less when keys sort before the payload).
type Comparator interface {
	CompareRecord(keys []KeyCmp, payload *pager.Payload) (Ordering, error)
}

// Context bundles the two pieces of external state a cursor needs beyond
// the pager: the usable page size (for payload/overflow math) and the
// comparator used for index-tree searches.
type Context struct {
	UsableSize int
	Comparator Comparator
}
