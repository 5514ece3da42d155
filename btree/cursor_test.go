package btree_test

import (
	"bytes"
	"testing"

	"github.com/go-litebtree/litebtree/btree"
	"github.com/go-litebtree/litebtree/internal/fixtures"
	"github.com/go-litebtree/litebtree/pager"
	"github.com/go-litebtree/litebtree/recordcmp"
)

func openTablePager(t *testing.T, path string) *pager.Pager {
	t.Helper()
	p, err := pager.Open(path)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// Scenario 1: a 3-row table, forward traversal with exact cell-byte
// literals. The single-column layout (c INTEGER, with the implicit rowid
// set to 1, 2, 3) and c = 0, 1, 2 makes SQLite use its constant-0/constant-1
// serial type optimization for the first two rows, producing the minimal
// [2,8] and [2,9] cells (header-length 2, serial type 8/9 meaning "value is
// the literal 0/1", zero body bytes), and a normal int8 cell [2,1,2] for the
// third. (An INTEGER PRIMARY KEY column would add a NULL serial type to
// every record.)
func TestScenario1_ThreeRowTableForwardTraversal(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (c INTEGER)")
	fixtures.MustExec(t, db, "INSERT INTO t (rowid, c) VALUES (1, 0), (2, 1), (3, 2)")
	root := fixtures.RootPage(t, db, "t")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	p := openTablePager(t, path)
	cur := btree.New(p, pager.PageID(root), &btree.Context{UsableSize: p.UsableSize()})

	if err := cur.MoveToFirst(); err != nil {
		t.Fatalf("MoveToFirst: %v", err)
	}
	want := []struct {
		rowid int64
		cell  []byte
	}{
		{1, []byte{2, 8}},
		{2, []byte{2, 9}},
		{3, []byte{2, 1, 2}},
	}
	for i, w := range want {
		rowid, payload, ok, err := cur.GetTablePayload()
		if err != nil {
			t.Fatalf("GetTablePayload at step %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("step %d: expected a row, got none", i)
		}
		if rowid != w.rowid {
			t.Fatalf("step %d: rowid = %d, want %d", i, rowid, w.rowid)
		}
		if !bytes.Equal(payload.Buf(), w.cell) {
			t.Fatalf("step %d: cell bytes = %v, want %v", i, payload.Buf(), w.cell)
		}
		if i < len(want)-1 {
			if err := cur.MoveNext(); err != nil {
				t.Fatalf("MoveNext after step %d: %v", i, err)
			}
		}
	}
	if err := cur.MoveNext(); err != nil {
		t.Fatalf("final MoveNext: %v", err)
	}
	if _, _, ok, err := cur.GetTablePayload(); err != nil || ok {
		t.Fatalf("after the last row, GetTablePayload should return ok=false, got ok=%v err=%v", ok, err)
	}
}

// Scenario 2: a secondary index on col receiving values 1,0,2 for rowids
// 1,2,3 must traverse in index order (0,rowid2), (1,rowid1), (2,rowid3).
func TestScenario2_SecondaryIndexOrder(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, col INTEGER)")
	fixtures.MustExec(t, db, "CREATE INDEX idx ON t (col)")
	fixtures.MustExec(t, db, "INSERT INTO t (id, col) VALUES (1, 1), (2, 0), (3, 2)")
	root := fixtures.RootPage(t, db, "idx")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	p := openTablePager(t, path)
	cur := btree.New(p, pager.PageID(root), &btree.Context{UsableSize: p.UsableSize()})

	if err := cur.MoveToFirst(); err != nil {
		t.Fatalf("MoveToFirst: %v", err)
	}
	wantCol := []int64{0, 1, 2}
	wantRowid := []int64{2, 1, 3}
	for i := range wantCol {
		payload, ok, err := cur.GetIndexPayload()
		if err != nil {
			t.Fatalf("GetIndexPayload at step %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("step %d: expected an index entry, got none", i)
		}
		values, err := recordcmp.DecodeValues(payload)
		if err != nil {
			t.Fatalf("DecodeValues at step %d: %v", i, err)
		}
		if len(values) != 2 {
			t.Fatalf("step %d: expected 2 values (col, rowid), got %d", i, len(values))
		}
		col, _ := values[0].(int64)
		rowid, _ := values[1].(int64)
		if col != wantCol[i] || rowid != wantRowid[i] {
			t.Fatalf("step %d: got (col=%d, rowid=%d), want (col=%d, rowid=%d)", i, col, rowid, wantCol[i], wantRowid[i])
		}
		if i < len(wantCol)-1 {
			if err := cur.MoveNext(); err != nil {
				t.Fatalf("MoveNext after step %d: %v", i, err)
			}
		}
	}
}

// Scenario 3: 5000 rows with a ~1000-byte blob column forces a multi-level
// table tree (and an index with interior-level keys); full forward
// traversal yields rowids 1..5000 in order, and table_move_to(2000) lands
// exactly on 2000.
func TestScenario3_LargeTableMultiLevelTraversal(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 5000-row, ~25MB fixture; skipped in -short")
	}
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, v BLOB)")
	fixtures.MustExec(t, db, "CREATE INDEX idx ON t (v)")
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	stmt, err := tx.Prepare("INSERT INTO t (id, v) VALUES (?, ?)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	for i := int64(1); i <= 5000; i++ {
		blob := fixtures.Blob(1000, byte(i))
		if _, err := stmt.Exec(i, blob); err != nil {
			t.Fatalf("insert row %d: %v", i, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	root := fixtures.RootPage(t, db, "t")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	p := openTablePager(t, path)
	cur := btree.New(p, pager.PageID(root), &btree.Context{UsableSize: p.UsableSize()})

	if err := cur.MoveToFirst(); err != nil {
		t.Fatalf("MoveToFirst: %v", err)
	}
	for want := int64(1); want <= 5000; want++ {
		rowid, _, ok, err := cur.GetTablePayload()
		if err != nil {
			t.Fatalf("GetTablePayload at rowid %d: %v", want, err)
		}
		if !ok {
			t.Fatalf("traversal stopped early at rowid %d", want)
		}
		if rowid != want {
			t.Fatalf("got rowid %d, want %d", rowid, want)
		}
		if want < 5000 {
			if err := cur.MoveNext(); err != nil {
				t.Fatalf("MoveNext at rowid %d: %v", want, err)
			}
		}
	}
	if err := cur.MoveNext(); err != nil {
		t.Fatalf("final MoveNext: %v", err)
	}
	if _, _, ok, _ := cur.GetTablePayload(); ok {
		t.Fatal("traversal should be complete after rowid 5000")
	}

	cur2 := btree.New(p, pager.PageID(root), &btree.Context{UsableSize: p.UsableSize()})
	rowid, ok, err := cur2.TableMoveTo(2000)
	if err != nil {
		t.Fatalf("TableMoveTo(2000): %v", err)
	}
	if !ok || rowid != 2000 {
		t.Fatalf("TableMoveTo(2000) = (%d, %v), want (2000, true)", rowid, ok)
	}
	gotRowid, _, ok, err := cur2.GetTablePayload()
	if err != nil || !ok || gotRowid != 2000 {
		t.Fatalf("GetTablePayload after TableMoveTo(2000): rowid=%d ok=%v err=%v", gotRowid, ok, err)
	}
}

// Scenario 5: an index COLLATE NOCASE on one column, with one row whose
// value case-insensitively equals the query and every other row sorting
// strictly before or after it; index_move_to(["abcde"]) must reach that row.
func TestScenario5_NoCaseCollationMinimum(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, col TEXT COLLATE NOCASE)")
	fixtures.MustExec(t, db, "CREATE INDEX idx ON t (col)")
	rows := []struct {
		id  int64
		col string
	}{
		{1, "AAAA"},
		{2, "AAAB"},
		{3, "AAAC"},
		{4, "AAAD"},
		{5, "abcde"},
		{6, "zzzz"},
	}
	for _, r := range rows {
		fixtures.MustExec(t, db, "INSERT INTO t (id, col) VALUES (?, ?)", r.id, r.col)
	}
	root := fixtures.RootPage(t, db, "idx")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	p := openTablePager(t, path)
	cmp := recordcmp.New(recordcmp.NoCase)
	cur := btree.New(p, pager.PageID(root), &btree.Context{UsableSize: p.UsableSize(), Comparator: cmp})

	if err := cur.IndexMoveTo([]btree.KeyCmp{{Value: "abcde"}}); err != nil {
		t.Fatalf("IndexMoveTo: %v", err)
	}
	payload, ok, err := cur.GetIndexPayload()
	if err != nil {
		t.Fatalf("GetIndexPayload: %v", err)
	}
	if !ok {
		t.Fatal("expected a match, got none")
	}
	values, err := recordcmp.DecodeValues(payload)
	if err != nil {
		t.Fatalf("DecodeValues: %v", err)
	}
	rowid, _ := values[len(values)-1].(int64)
	if rowid != 5 {
		t.Fatalf("trailing rowid = %d, want 5", rowid)
	}
}

// Scenario 6: an empty table leaves every positioning operation on a
// valid terminal position where GetTablePayload reports no row.
func TestScenario6_EmptyTableTerminalPosition(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	root := fixtures.RootPage(t, db, "t")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	p := openTablePager(t, path)
	ctx := &btree.Context{UsableSize: p.UsableSize()}

	for _, position := range []func(*btree.Cursor) error{
		(*btree.Cursor).MoveToFirst,
		(*btree.Cursor).MoveToLast,
	} {
		cur := btree.New(p, pager.PageID(root), ctx)
		if err := position(cur); err != nil {
			t.Fatalf("positioning op: %v", err)
		}
		if _, _, ok, err := cur.GetTablePayload(); err != nil || ok {
			t.Fatalf("expected ok=false on an empty table, got ok=%v err=%v", ok, err)
		}
		if err := cur.MoveNext(); err != nil {
			t.Fatalf("MoveNext on an empty table should be a silent no-op: %v", err)
		}
	}

	cur := btree.New(p, pager.PageID(root), ctx)
	rowid, ok, err := cur.TableMoveTo(0)
	if err != nil {
		t.Fatalf("TableMoveTo(0): %v", err)
	}
	if ok {
		t.Fatalf("TableMoveTo(0) on an empty table should find nothing, got rowid %d", rowid)
	}
	if _, _, ok, _ := cur.GetTablePayload(); ok {
		t.Fatal("expected ok=false after TableMoveTo on an empty table")
	}
}

// Scenario 7: inserting keys {1, 2, 4, -1, 3} into an empty table in that
// order must leave a subsequent forward traversal yielding -1, 1, 2, 3, 4.
func TestScenario7_OutOfOrderInsertThenOrderedTraversal(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	root := fixtures.RootPage(t, db, "t")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	p := openTablePager(t, path)
	ctx := &btree.Context{UsableSize: p.UsableSize()}
	cur := btree.New(p, pager.PageID(root), ctx)

	for _, key := range []int64{1, 2, 4, -1, 3} {
		if err := cur.Insert(key, []byte("v")); err != nil {
			t.Fatalf("Insert(%d): %v", key, err)
		}
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	verify := btree.New(p, pager.PageID(root), ctx)
	if err := verify.MoveToFirst(); err != nil {
		t.Fatalf("MoveToFirst: %v", err)
	}
	want := []int64{-1, 1, 2, 3, 4}
	for i, w := range want {
		rowid, _, ok, err := verify.GetTablePayload()
		if err != nil {
			t.Fatalf("GetTablePayload at step %d: %v", i, err)
		}
		if !ok || rowid != w {
			t.Fatalf("step %d: rowid=%d ok=%v, want %d", i, rowid, ok, w)
		}
		if i < len(want)-1 {
			if err := verify.MoveNext(); err != nil {
				t.Fatalf("MoveNext after step %d: %v", i, err)
			}
		}
	}
	if err := verify.MoveNext(); err != nil {
		t.Fatalf("final MoveNext: %v", err)
	}
	if _, _, ok, _ := verify.GetTablePayload(); ok {
		t.Fatal("traversal should be complete after rowid 4")
	}
}

func TestInsert_DuplicateKeyIsUnsupported(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	fixtures.MustExec(t, db, "INSERT INTO t (id, v) VALUES (1, 'a')")
	root := fixtures.RootPage(t, db, "t")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	p := openTablePager(t, path)
	cur := btree.New(p, pager.PageID(root), &btree.Context{UsableSize: p.UsableSize()})
	if err := cur.Insert(1, []byte("b")); err == nil {
		t.Fatal("expected an error inserting a duplicate key")
	}
}

func TestMoveNext_FailsWhenUninitialized(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	root := fixtures.RootPage(t, db, "t")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	p := openTablePager(t, path)
	cur := btree.New(p, pager.PageID(root), &btree.Context{UsableSize: p.UsableSize()})
	if err := cur.MoveNext(); err != btree.ErrNotInitialized {
		t.Fatalf("MoveNext on a fresh cursor = %v, want ErrNotInitialized", err)
	}
}

func TestGetIndexPayload_FailsOnTablePage(t *testing.T) {
	db, path := fixtures.Open(t)
	fixtures.MustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	fixtures.MustExec(t, db, "INSERT INTO t (id, v) VALUES (1, 'a')")
	root := fixtures.RootPage(t, db, "t")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	p := openTablePager(t, path)
	cur := btree.New(p, pager.PageID(root), &btree.Context{UsableSize: p.UsableSize()})
	if err := cur.MoveToFirst(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := cur.GetIndexPayload(); err != btree.ErrWrongPageKind {
		t.Fatalf("GetIndexPayload on a table page = %v, want ErrWrongPageKind", err)
	}
}
