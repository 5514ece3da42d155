package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// B-tree page header + cell pointer array
// ───────────────────────────────────────────────────────────────────────────
//
// Everything in this file is a pure function over a caller-supplied page
// buffer: no state, no I/O. The pager hands these buffers to the B-tree
// cursor, which calls through here to make sense of them.

// NCells returns the number of cells on the page (the "N" of the cell
// pointer array).
func NCells(id PageID, buf []byte) uint16 {
	off := HeaderOffset(id)
	return binary.BigEndian.Uint16(buf[off+3 : off+5])
}

// CellContentAreaOffset returns the byte offset of the start of the cell
// content area. The on-disk value of 0 means 65536 (the field is 16 bits
// and can't represent that directly).
func CellContentAreaOffset(id PageID, buf []byte) int {
	off := HeaderOffset(id)
	v := int(binary.BigEndian.Uint16(buf[off+5 : off+7]))
	if v == 0 {
		return 65536
	}
	return v
}

// FirstFreeblockOffset returns the offset of the first freeblock on the
// page, or 0 if there is none.
func FirstFreeblockOffset(id PageID, buf []byte) uint16 {
	off := HeaderOffset(id)
	return binary.BigEndian.Uint16(buf[off+1 : off+3])
}

// FragmentedFreeBytes returns the number of fragmented free bytes within
// the cell content area.
func FragmentedFreeBytes(id PageID, buf []byte) byte {
	off := HeaderOffset(id)
	return buf[off+7]
}

// RightPageID returns the right-child page id carried in an interior
// page's header. Callers must only call this for interior pages.
func RightPageID(id PageID, buf []byte) PageID {
	off := HeaderOffset(id)
	return PageID(binary.BigEndian.Uint32(buf[off+8 : off+12]))
}

// HeaderSize returns the length of the B-tree page header: 12 bytes for
// interior pages (which carry a right-child pointer), 8 for leaves.
func HeaderSize(pt PageType) int { return headerSize(pt) }

// CellPointerOffset returns the byte offset, within the page buffer, of
// the i-th entry of the cell pointer array.
func CellPointerOffset(id PageID, pt PageType, i int) int {
	return HeaderOffset(id) + HeaderSize(pt) + 2*i
}

// CellOffset returns the byte offset of cell i's content, read out of the
// cell pointer array.
func CellOffset(id PageID, pt PageType, buf []byte, i int) int {
	off := CellPointerOffset(id, pt, i)
	return int(binary.BigEndian.Uint16(buf[off : off+2]))
}

// LocalPayloadBounds returns the (maxLocal, minLocal) thresholds used to
// split a cell's payload between the host page and an overflow chain. The
// formulas come from SQLite's file format: table-leaf cells get more local
// room (X = U-35) than index cells (X = (U-12)*64/255-23), and both share
// the same floor M = (U-12)*32/255-23 below which spillage is not allowed
// to shrink further.
func LocalPayloadBounds(usableSize int, pt PageType) (maxLocal, minLocal int) {
	minLocal = (usableSize-12)*32/255 - 23
	if pt == PageTypeTableLeaf {
		maxLocal = usableSize - 35
	} else {
		maxLocal = (usableSize-12)*64/255 - 23
	}
	return maxLocal, minLocal
}

// SplitLocalSize decides, for a cell whose total payload is payloadSize,
// how many bytes are stored locally on the host page; the remainder spills
// to an overflow chain.
func SplitLocalSize(payloadSize uint64, usableSize int, pt PageType) (local int, overflows bool) {
	maxLocal, minLocal := LocalPayloadBounds(usableSize, pt)
	if payloadSize <= uint64(maxLocal) {
		return int(payloadSize), false
	}
	surplus := minLocal + int((payloadSize-uint64(minLocal))%uint64(usableSize-4))
	if surplus <= maxLocal {
		return surplus, true
	}
	return minLocal, true
}

// PayloadInfo describes where a cell's payload bytes live: how many are
// held in-page (Local, a slice directly into the page buffer) and, if the
// payload spilled, a reference to the first overflow page.
type PayloadInfo struct {
	Size     uint64
	Local    []byte
	Overflow *OverflowRef
}

// OverflowRef names the head of an overflow chain and the usable page size
// needed to walk it.
type OverflowRef struct {
	FirstPage  PageID
	UsableSize int
}

// parsePayload reads a varint payload-size, then splits [cellBody:] into
// the local prefix and (if needed) the trailing overflow page id, per the
// formulas in LocalPayloadBounds. cellBody is the offset, within buf, right
// after the payload-size and (for table trees) rowid varints.
func parsePayload(buf []byte, cellBody int, payloadSize uint64, usableSize int, pt PageType) (PayloadInfo, int, error) {
	local, overflows := SplitLocalSize(payloadSize, usableSize, pt)
	end := cellBody + local
	if end > len(buf) {
		return PayloadInfo{}, 0, fmt.Errorf("pager: local payload runs past page end (offset %d, page len %d)", end, len(buf))
	}
	info := PayloadInfo{Size: payloadSize, Local: buf[cellBody:end]}
	consumed := local
	if overflows {
		if end+4 > len(buf) {
			return PayloadInfo{}, 0, fmt.Errorf("pager: missing overflow page pointer at offset %d", end)
		}
		first := PageID(binary.BigEndian.Uint32(buf[end : end+4]))
		info.Overflow = &OverflowRef{FirstPage: first, UsableSize: usableSize}
		consumed += 4
	}
	return info, consumed, nil
}

// ParseInteriorChildID reads the 4-byte left-child page id at the start of
// an interior cell (table-interior or index-interior).
func ParseInteriorChildID(buf []byte, cellOff int) PageID {
	return PageID(binary.BigEndian.Uint32(buf[cellOff : cellOff+4]))
}

// ParseTableLeafCell decodes a table-leaf cell: varint payload_size, varint
// rowid, payload bytes (possibly truncated into an overflow chain). The
// rowid varint carries the signed rowid's bit pattern directly (as real
// SQLite files do), not a zigzag mapping: int64(rawRowid) recovers it for
// any value, including negative rowids, because the cast back is exactly
// the inverse of the uint64(rowid) cast used when writing one.
func ParseTableLeafCell(buf []byte, cellOff int, usableSize int) (rowid int64, info PayloadInfo, err error) {
	payloadSize, n1 := GetVarint(buf[cellOff:])
	rawRowid, n2 := GetVarint(buf[cellOff+n1:])
	body := cellOff + n1 + n2
	info, _, err = parsePayload(buf, body, payloadSize, usableSize, PageTypeTableLeaf)
	if err != nil {
		return 0, PayloadInfo{}, err
	}
	return int64(rawRowid), info, nil
}

// TableLeafKey reads just the rowid out of a table-leaf cell, skipping the
// payload entirely; used by the cursor's binary search, which only needs
// the key.
func TableLeafKey(buf []byte, cellOff int) int64 {
	_, n1 := GetVarint(buf[cellOff:])
	rawRowid, _ := GetVarint(buf[cellOff+n1:])
	return int64(rawRowid)
}

// ParseTableInteriorCell decodes a table-interior cell: a 4-byte left-child
// id followed by a varint rowid separator key (see ParseTableLeafCell for
// the rowid encoding).
func ParseTableInteriorCell(buf []byte, cellOff int) (childID PageID, rowid int64) {
	childID = ParseInteriorChildID(buf, cellOff)
	rawRowid, _ := GetVarint(buf[cellOff+4:])
	return childID, int64(rawRowid)
}

// ParseIndexLeafCell decodes an index-leaf cell: varint payload_size,
// payload bytes (possibly overflowing).
func ParseIndexLeafCell(buf []byte, cellOff int, usableSize int) (info PayloadInfo, err error) {
	payloadSize, n1 := GetVarint(buf[cellOff:])
	body := cellOff + n1
	info, _, err = parsePayload(buf, body, payloadSize, usableSize, PageTypeIndexLeaf)
	return info, err
}

// ParseIndexInteriorCell decodes an index-interior cell: a 4-byte
// left-child id, varint payload_size, payload bytes (possibly overflowing).
func ParseIndexInteriorCell(buf []byte, cellOff int, usableSize int) (childID PageID, info PayloadInfo, err error) {
	childID = ParseInteriorChildID(buf, cellOff)
	payloadSize, n1 := GetVarint(buf[cellOff+4:])
	body := cellOff + 4 + n1
	info, _, err = parsePayload(buf, body, payloadSize, usableSize, PageTypeIndexInterior)
	return childID, info, err
}
