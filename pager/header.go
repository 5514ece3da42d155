package pager

import (
	"encoding/binary"
	"fmt"
)

// fileHeaderMagic is the 16-byte string every SQLite database file begins
// with.
var fileHeaderMagic = [16]byte{
	'S', 'Q', 'L', 'i', 't', 'e', ' ', 'f', 'o', 'r', 'm', 'a', 't', ' ', '3', 0,
}

// FileHeader is the parsed form of the 100-byte header at the start of
// page 1. Only the fields the pager and B-tree layer need are kept; the
// rest of SQLite's header (text encoding, schema cookie, application ID,
// ...) belongs to the schema/connection layer above this package.
type FileHeader struct {
	PageSize        int    // in {512, 1024, ..., 65536}
	ReservedBytes   int    // per-page reserved tail, usually 0
	FreelistTrunk   PageID // first freelist trunk page, 0 if none
	FreelistCount   uint32 // total number of freelist pages
	DatabaseSizePag uint32 // "in-header database size" field, pages
}

// UsableSize is PageSize minus the per-page reserved tail: the effective
// arithmetic size used for cell layout and overflow-chain math.
func (h FileHeader) UsableSize() int {
	return h.PageSize - h.ReservedBytes
}

// ParseFileHeader decodes the 100-byte SQLite file header from the start of
// page 1's raw buffer (buf must be at least 100 bytes long).
func ParseFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, fmt.Errorf("pager: file header needs %d bytes, got %d", FileHeaderSize, len(buf))
	}
	for i, b := range fileHeaderMagic {
		if buf[i] != b {
			return FileHeader{}, fmt.Errorf("pager: bad file header magic at byte %d", i)
		}
	}

	rawPageSize := binary.BigEndian.Uint16(buf[16:18])
	pageSize := int(rawPageSize)
	if rawPageSize == 1 {
		// 1 is SQLite's encoding for a 65536-byte page (too large for a
		// 16-bit field otherwise).
		pageSize = 65536
	}
	if !validPageSize(pageSize) {
		return FileHeader{}, fmt.Errorf("pager: invalid page size %d", pageSize)
	}

	h := FileHeader{
		PageSize:        pageSize,
		ReservedBytes:   int(buf[20]),
		FreelistTrunk:   PageID(binary.BigEndian.Uint32(buf[32:36])),
		FreelistCount:   binary.BigEndian.Uint32(buf[36:40]),
		DatabaseSizePag: binary.BigEndian.Uint32(buf[28:32]),
	}
	if h.ReservedBytes < 0 || h.ReservedBytes >= pageSize {
		return FileHeader{}, fmt.Errorf("pager: invalid reserved-bytes count %d", h.ReservedBytes)
	}
	return h, nil
}

// MarshalFileHeader writes h's fields into a fresh 100-byte header image,
// together with the fixed file-format version and payload-fraction bytes
// (18, 19, 21-23). The remaining header bytes — text encoding, schema
// cookie, library version number, and so on — are zeroed; they are the
// schema layer's concern, not this package's.
func MarshalFileHeader(h FileHeader) [FileHeaderSize]byte {
	var buf [FileHeaderSize]byte
	copy(buf[0:16], fileHeaderMagic[:])

	rawPageSize := h.PageSize
	if rawPageSize == 65536 {
		rawPageSize = 1
	}
	binary.BigEndian.PutUint16(buf[16:18], uint16(rawPageSize))
	buf[18] = 1 // file format write version: legacy
	buf[19] = 1 // file format read version: legacy
	buf[20] = byte(h.ReservedBytes)
	buf[21] = 64 // maximum embedded payload fraction, always 64
	buf[22] = 32 // minimum embedded payload fraction, always 32
	buf[23] = 32 // leaf payload fraction, always 32
	binary.BigEndian.PutUint32(buf[28:32], h.DatabaseSizePag)
	binary.BigEndian.PutUint32(buf[32:36], uint32(h.FreelistTrunk))
	binary.BigEndian.PutUint32(buf[36:40], h.FreelistCount)
	return buf
}

func validPageSize(n int) bool {
	if n < 512 || n > 65536 {
		return false
	}
	return n&(n-1) == 0
}
