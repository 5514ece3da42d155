package pager

import (
	"encoding/binary"
	"fmt"
)

// Payload is a handle onto one cell's logical payload bytes: a prefix held
// directly in the host page's buffer, plus (if the payload spilled) a
// reference to the overflow chain that holds the rest. It conceptually
// borrows the host page's read buffer; callers must not retain it across a
// write to that page.
type Payload struct {
	pager *Pager
	info  PayloadInfo
}

// NewPayload wraps a decoded PayloadInfo as a Payload bound to pager (used
// to walk the overflow chain on demand).
func NewPayload(pager *Pager, info PayloadInfo) *Payload {
	return &Payload{pager: pager, info: info}
}

// Size returns the total number of payload bytes, local and overflow
// combined.
func (p *Payload) Size() int64 { return int64(p.info.Size) }

// Buf returns the locally held prefix of the payload — a slice directly
// into the host page's buffer. For payloads that did not overflow this is
// the entire payload.
func (p *Payload) Buf() []byte { return p.info.Local }

// Load copies payload bytes starting at the given 0-based logical offset
// into dest, walking the overflow chain as needed, and returns the number
// of bytes copied. It fails if offset is negative or at/past the end of
// the payload. A short read (fewer bytes than len(dest)) is only allowed
// when dest would otherwise run past the end of the payload.
func (p *Payload) Load(offset int64, dest []byte) (int, error) {
	if offset < 0 || offset >= int64(p.info.Size) {
		return 0, fmt.Errorf("pager: payload offset %d out of range [0, %d)", offset, p.info.Size)
	}

	n := 0
	remaining := int64(p.info.Size) - offset
	if int64(len(dest)) > remaining {
		dest = dest[:remaining]
	}

	localLen := int64(len(p.info.Local))
	if offset < localLen {
		c := copy(dest, p.info.Local[offset:])
		n += c
		dest = dest[c:]
		offset += int64(c)
	}

	if len(dest) == 0 {
		return n, nil
	}

	if p.info.Overflow == nil {
		// Nothing more to read: the caller asked for bytes past what a
		// non-overflowing payload has, which Size() should have ruled out.
		return n, fmt.Errorf("pager: payload has no overflow chain to satisfy remaining read")
	}

	overflowOffset := offset - localLen
	c, err := p.readOverflow(overflowOffset, dest)
	n += c
	return n, err
}

// readOverflow walks the overflow page chain starting at
// p.info.Overflow.FirstPage, skipping overflowOffset bytes of chain
// content before starting to fill dest.
func (p *Payload) readOverflow(overflowOffset int64, dest []byte) (int, error) {
	ref := p.info.Overflow
	usable := ref.UsableSize
	perPage := int64(usable - 4)

	pageID := ref.FirstPage
	skip := overflowOffset
	for skip >= perPage {
		next, err := p.nextOverflowPage(pageID)
		if err != nil {
			return 0, err
		}
		pageID = next
		skip -= perPage
	}

	n := 0
	for len(dest) > 0 {
		if pageID == 0 {
			return n, fmt.Errorf("pager: overflow chain ended early")
		}
		h, err := p.pager.GetPage(pageID)
		if err != nil {
			return n, err
		}
		buf := h.Bytes()
		next := PageID(binary.BigEndian.Uint32(buf[0:4]))
		avail := buf[4:usable]
		if skip > 0 {
			if skip >= int64(len(avail)) {
				h.Release()
				return n, fmt.Errorf("pager: overflow skip beyond page content")
			}
			avail = avail[skip:]
			skip = 0
		}
		c := copy(dest, avail)
		n += c
		dest = dest[c:]
		h.Release()
		pageID = next
	}
	return n, nil
}

// nextOverflowPage reads only the 4-byte next-page pointer of an overflow
// page, used while skipping whole pages.
func (p *Payload) nextOverflowPage(id PageID) (PageID, error) {
	h, err := p.pager.GetPage(id)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	return PageID(binary.BigEndian.Uint32(h.Bytes()[0:4])), nil
}
