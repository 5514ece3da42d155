package pager

import (
	"testing"

	"github.com/go-litebtree/litebtree/internal/fixtures"
)

func TestLayout_TableLeafPage_RealSQLiteFile(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	for i := int64(1); i <= 5; i++ {
		fixtures.MustExec(t, db, "INSERT INTO t (id, v) VALUES (?, ?)", i, "hello")
	}
	root := fixtures.RootPage(t, db, "t")
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.file.Close()

	h, err := p.GetPage(PageID(root))
	if err != nil {
		t.Fatalf("GetPage(%d): %v", root, err)
	}
	defer h.Release()
	buf := h.Bytes()

	pt, err := ReadPageType(PageID(root), buf)
	if err != nil {
		t.Fatalf("ReadPageType: %v", err)
	}
	if pt != PageTypeTableLeaf {
		t.Fatalf("a 5-row table should still fit on a single leaf page, got %s", pt)
	}

	n := NCells(PageID(root), buf)
	if n != 5 {
		t.Fatalf("NCells = %d, want 5", n)
	}

	contentArea := CellContentAreaOffset(PageID(root), buf)
	if contentArea <= 0 || contentArea > p.PageSize() {
		t.Fatalf("cell content area offset %d out of range for page size %d", contentArea, p.PageSize())
	}

	var lastRowid int64 = -1
	for i := 0; i < int(n); i++ {
		off := CellOffset(PageID(root), pt, buf, i)
		rowid, info, err := ParseTableLeafCell(buf, off, p.UsableSize())
		if err != nil {
			t.Fatalf("ParseTableLeafCell(%d): %v", i, err)
		}
		if rowid <= lastRowid {
			t.Fatalf("cell %d: rowid %d is not strictly greater than previous %d", i, rowid, lastRowid)
		}
		lastRowid = rowid
		if info.Size == 0 {
			t.Fatalf("cell %d: zero-length payload for a non-empty record", i)
		}
	}
	if lastRowid != 5 {
		t.Fatalf("last rowid seen = %d, want 5", lastRowid)
	}
}

func TestLayout_CellContentAreaOffset_ZeroMeans65536(t *testing.T) {
	buf := make([]byte, 16)
	// No magic, raw B-tree leaf header at offset 0: cell_content_area_offset
	// field (bytes 5:7) set to the on-disk encoding of 65536, which is 0.
	buf[0] = byte(PageTypeTableLeaf)
	buf[5], buf[6] = 0, 0
	// Use page id 2 (header offset 0); page 1 would need the 100-byte file
	// header prefix this synthetic buffer doesn't have.
	if got := CellContentAreaOffset(2, buf); got != 65536 {
		t.Fatalf("CellContentAreaOffset = %d, want 65536 for the zero encoding", got)
	}
}

func TestLocalPayloadBounds_TableLeafVsIndex(t *testing.T) {
	const usable = 4096
	maxTable, minTable := LocalPayloadBounds(usable, PageTypeTableLeaf)
	maxIndex, minIndex := LocalPayloadBounds(usable, PageTypeIndexLeaf)
	if maxTable <= maxIndex {
		t.Fatalf("table-leaf max local (%d) should exceed index max local (%d)", maxTable, maxIndex)
	}
	if minTable != minIndex {
		t.Fatalf("the minimum local threshold should not depend on page kind: %d vs %d", minTable, minIndex)
	}
}

func TestSplitLocalSize_SmallPayloadStaysLocal(t *testing.T) {
	local, overflows := SplitLocalSize(10, 4096, PageTypeTableLeaf)
	if overflows || local != 10 {
		t.Fatalf("a 10-byte payload should stay entirely local, got local=%d overflows=%v", local, overflows)
	}
}

func TestSplitLocalSize_LargePayloadOverflows(t *testing.T) {
	local, overflows := SplitLocalSize(10000, 4096, PageTypeTableLeaf)
	if !overflows {
		t.Fatal("a 10000-byte payload on a 4096-byte page must overflow")
	}
	maxLocal, minLocal := LocalPayloadBounds(4096, PageTypeTableLeaf)
	if local < minLocal || local > maxLocal {
		t.Fatalf("local size %d outside [min=%d, max=%d]", local, minLocal, maxLocal)
	}
}
