// Package recordcmp decodes SQLite record-format payloads — the column
// tuples stored as an index cell's payload — and compares them against a
// cursor's search keys, implementing btree.Comparator. It knows nothing
// about pages or cells; it only interprets the byte stream a Payload
// already gives it.
package recordcmp

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/go-litebtree/litebtree/pager"
)

// serialTypeSize returns the number of content bytes a record header
// serial type occupies, per the SQLite record format.
func serialTypeSize(t int64) int64 {
	switch {
	case t == 0, t == 8, t == 9:
		return 0
	case t >= 1 && t <= 6:
		return [...]int64{1, 2, 3, 4, 6, 8}[t-1]
	case t == 7:
		return 8
	case t >= 12 && t%2 == 0:
		return (t - 12) / 2
	case t >= 13 && t%2 != 0:
		return (t - 13) / 2
	default:
		return 0
	}
}

// DecodeValues reads an entire SQLite record (as found in an index cell's
// payload) and returns its column values as Go primitives: nil, int64,
// float64, []byte or string.
func DecodeValues(p *pager.Payload) ([]any, error) {
	buf := make([]byte, p.Size())
	if _, err := p.Load(0, buf); err != nil {
		return nil, fmt.Errorf("recordcmp: reading record: %w", err)
	}

	headerLen, n := pager.GetVarint(buf)
	if n == 0 || int64(headerLen) > int64(len(buf)) {
		return nil, fmt.Errorf("recordcmp: invalid record header length %d", headerLen)
	}

	var types []int64
	pos := n
	for pos < int(headerLen) {
		st, sn := pager.GetVarint(buf[pos:])
		if sn == 0 {
			return nil, fmt.Errorf("recordcmp: truncated record header")
		}
		types = append(types, int64(st))
		pos += sn
	}

	body := int(headerLen)
	values := make([]any, len(types))
	for i, t := range types {
		size := serialTypeSize(t)
		if body+int(size) > len(buf) {
			return nil, fmt.Errorf("recordcmp: record body runs past payload end")
		}
		v, err := decodeValue(t, buf[body:body+int(size)])
		if err != nil {
			return nil, err
		}
		values[i] = v
		body += int(size)
	}
	return values, nil
}

func decodeValue(t int64, b []byte) (any, error) {
	switch {
	case t == 0:
		return nil, nil
	case t == 8:
		return int64(0), nil
	case t == 9:
		return int64(1), nil
	case t == 1:
		return int64(int8(b[0])), nil
	case t == 2:
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case t == 3:
		v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		if b[0]&0x80 != 0 {
			v |= 0xff << 24
		}
		return int64(int32(v)), nil
	case t == 4:
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case t == 5:
		v := uint64(0)
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
		if b[0]&0x80 != 0 {
			v |= 0xffff << 48
		}
		return int64(v), nil
	case t == 6:
		return int64(binary.BigEndian.Uint64(b)), nil
	case t == 7:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case t >= 12 && t%2 == 0:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case t >= 13 && t%2 != 0:
		return string(b), nil
	default:
		return nil, fmt.Errorf("recordcmp: unknown serial type %d", t)
	}
}

// Collation orders two decoded column values of the same SQL storage
// class.
type Collation interface {
	Compare(a, b any) int
}

// binaryCollation orders values by SQLite's type-affinity rule (NULL <
// numeric < text < blob) and, within a class, by the natural Go ordering.
type binaryCollation struct{}

func (binaryCollation) Compare(a, b any) int { return compareByClass(a, b, false) }

// nocaseCollation is BINARY except that two text values are compared
// case-insensitively (ASCII case folding, as SQLite's NOCASE does).
type nocaseCollation struct{}

func (nocaseCollation) Compare(a, b any) int { return compareByClass(a, b, true) }

// Binary and NoCase are the two collations this package implements.
var (
	Binary = binaryCollation{}
	NoCase = nocaseCollation{}
)

func classOf(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case []byte:
		return 3
	default:
		return 4
	}
}

func numericValue(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func compareByClass(a, b any, nocase bool) int {
	ca, cb := classOf(a), classOf(b)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}
	switch ca {
	case 0:
		return 0
	case 1:
		na, nb := numericValue(a), numericValue(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	case 2:
		sa, sb := a.(string), b.(string)
		if nocase {
			fold := func(s string) string {
				b := []byte(s)
				for i, ch := range b {
					if 'A' <= ch && ch <= 'Z' {
						b[i] = ch + ('a' - 'A')
					}
				}
				return string(b)
			}
			sa, sb = fold(sa), fold(sb)
		}
		return strings.Compare(sa, sb)
	case 3:
		return compareBytes(a.([]byte), b.([]byte))
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
