package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/go-litebtree/litebtree/pager"
)

// ───────────────────────────────────────────────────────────────────────────
// Cursor
// ───────────────────────────────────────────────────────────────────────────
//
// A Cursor walks one B-tree (table or index, identified by its root page)
// one cell at a time. It holds a stack of the pages on the path from the
// root to wherever it is currently positioned, so that move_next can climb
// back up and descend down a different branch without re-walking from the
// root each time. There is exactly one cursor per tree in flight at once;
// nothing here is safe to share across goroutines.

// CursorPage is one level of the path the cursor is currently holding open:
// the page itself, its decoded header fields, and idxCell, the cell the
// cursor is "on" at that level. For an interior page reached by descending
// through it, idxCell records the position descended through; for the
// page the cursor rests on, idxCell is the position a read or move_next
// acts against.
type CursorPage struct {
	handle   *pager.PageHandle
	id       pager.PageID
	pageType pager.PageType
	nCells   int
	idxCell  int
}

// Cursor is a stateful, single-tree B-tree cursor.
type Cursor struct {
	pager *pager.Pager
	ctx   *Context
	root  pager.PageID

	current     CursorPage
	parents     []CursorPage
	initialized bool
}

// New returns a cursor over the tree rooted at root. It does not position
// the cursor; call MoveToFirst, MoveToLast, TableMoveTo or IndexMoveTo
// before reading or advancing it.
func New(p *pager.Pager, root pager.PageID, ctx *Context) *Cursor {
	return &Cursor{pager: p, ctx: ctx, root: root}
}

// loadPage fetches page id and wraps it with its decoded header fields.
func (c *Cursor) loadPage(id pager.PageID) (CursorPage, error) {
	h, err := c.pager.GetPage(id)
	if err != nil {
		return CursorPage{}, err
	}
	pt, err := pager.ReadPageType(id, h.Bytes())
	if err != nil {
		h.Release()
		return CursorPage{}, malformed(fmt.Sprintf("page %d", id), err)
	}
	n := pager.NCells(id, h.Bytes())
	return CursorPage{handle: h, id: id, pageType: pt, nCells: int(n)}, nil
}

// moveToRoot returns the cursor to the root page of its tree, releasing
// every page below it. idx_cell is always reset to 0 here, even when the
// cursor was already sitting at the root with an empty parent stack — a
// stale idx_cell left over from a prior search must never leak into a new
// one.
func (c *Cursor) moveToRoot() error {
	if len(c.parents) > 0 {
		root := c.parents[0]
		for i := 1; i < len(c.parents); i++ {
			c.parents[i].handle.Release()
		}
		c.current.handle.Release()
		c.parents = c.parents[:0]
		c.current = root
	} else if c.current.handle == nil {
		cp, err := c.loadPage(c.root)
		if err != nil {
			return err
		}
		c.current = cp
	}
	c.current.idxCell = 0
	return nil
}

// moveToChild pushes the current page onto the parent stack and descends
// into child.
func (c *Cursor) moveToChild(child pager.PageID) error {
	cp, err := c.loadPage(child)
	if err != nil {
		return err
	}
	c.parents = append(c.parents, c.current)
	c.current = cp
	return nil
}

// backToParent releases the current page and pops the parent stack onto
// it, reporting false (current page left untouched) if already at the
// root.
func (c *Cursor) backToParent() bool {
	if len(c.parents) == 0 {
		return false
	}
	c.current.handle.Release()
	n := len(c.parents)
	c.current = c.parents[n-1]
	c.parents = c.parents[:n-1]
	return true
}

// descendLeftmost follows left-child/cell-0 pointers from the current
// interior page down to a leaf, leaving idx_cell at 0.
func (c *Cursor) descendLeftmost() error {
	for !c.current.pageType.IsLeaf() {
		child := childPageAt(c.current.id, c.current.pageType, c.current.handle.Bytes(), 0, c.current.nCells)
		if err := c.moveToChild(child); err != nil {
			return err
		}
	}
	c.current.idxCell = 0
	return nil
}

// MoveToFirst positions the cursor on the tree's smallest key.
func (c *Cursor) MoveToFirst() error {
	if err := c.moveToRoot(); err != nil {
		return err
	}
	if err := c.descendLeftmost(); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// MoveToLast positions the cursor on the tree's largest key: for a table
// tree, the rightmost leaf cell; for an index tree, the rightmost leaf
// cell (index interior cells are never the maximum, since every interior
// cell has a non-empty right subtree of strictly greater keys).
func (c *Cursor) MoveToLast() error {
	if err := c.moveToRoot(); err != nil {
		return err
	}
	for !c.current.pageType.IsLeaf() {
		child := childPageAt(c.current.id, c.current.pageType, c.current.handle.Bytes(), c.current.nCells, c.current.nCells)
		if err := c.moveToChild(child); err != nil {
			return err
		}
	}
	if c.current.nCells > 0 {
		c.current.idxCell = c.current.nCells - 1
	} else {
		c.current.idxCell = 0
	}
	c.initialized = true
	return nil
}

// TableMoveTo searches a table tree for key using the standard
// lower-bound binary search at every level, descending from the root.
// It returns the smallest rowid >= key found on the leaf the search
// lands on, or ok=false if key is past every rowid in the tree.
func (c *Cursor) TableMoveTo(key int64) (foundKey int64, ok bool, err error) {
	if err := c.moveToRoot(); err != nil {
		return 0, false, err
	}
	for {
		buf := c.current.handle.Bytes()
		lo, hi := 0, c.current.nCells
		for lo < hi {
			mid := (lo + hi) / 2
			k := tableCellKey(c.current.id, c.current.pageType, buf, mid)
			if k < key {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		c.current.idxCell = lo

		if c.current.pageType.IsLeaf() {
			c.initialized = true
			if lo >= c.current.nCells {
				return 0, false, nil
			}
			return tableCellKey(c.current.id, c.current.pageType, buf, lo), true, nil
		}

		child := childPageAt(c.current.id, c.current.pageType, buf, lo, c.current.nCells)
		if err := c.moveToChild(child); err != nil {
			return 0, false, err
		}
	}
}

// compareIndexCell evaluates the comparator against cell i of the current
// page.
func (c *Cursor) compareIndexCell(i int, keys []KeyCmp) (Ordering, error) {
	info, err := indexCellPayload(c.current.id, c.current.pageType, c.current.handle.Bytes(), i, c.ctx.UsableSize)
	if err != nil {
		return 0, malformed("decode index cell for comparison", err)
	}
	return c.ctx.Comparator.CompareRecord(keys, pager.NewPayload(c.pager, info))
}

// IndexMoveTo searches an index tree for the lower bound of keys,
// consulting the context's Comparator to order cells. Unlike table trees,
// index interior pages carry real keys: an exact match found on an
// interior page stops the search there (no descent), and a lower-bound
// search that overshoots the last cell of a leaf must climb back up to
// the nearest ancestor whose own cell is the true successor.
func (c *Cursor) IndexMoveTo(keys []KeyCmp) error {
	if err := c.moveToRoot(); err != nil {
		return err
	}
	for {
		nCells := c.current.nCells
		lo, hi := 0, nCells
		for lo < hi {
			mid := (lo + hi) / 2
			ord, err := c.compareIndexCell(mid, keys)
			if err != nil {
				return err
			}
			if ord == Greater {
				// keys > cell: cell is too small, answer lies further right.
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		c.current.idxCell = lo

		if lo < nCells {
			ord, err := c.compareIndexCell(lo, keys)
			if err != nil {
				return err
			}
			if ord == Equal {
				c.initialized = true
				return nil
			}
		}

		if c.current.pageType.IsLeaf() {
			c.initialized = true
			if lo == nCells {
				return c.ascendPastOvershoot()
			}
			return nil
		}

		child := childPageAt(c.current.id, c.current.pageType, c.current.handle.Bytes(), lo, nCells)
		if err := c.moveToChild(child); err != nil {
			return err
		}
	}
}

// ascendPastOvershoot climbs the parent stack looking for the first
// ancestor whose own idx_cell still names an unvisited cell — the true
// successor of a lower-bound search that ran off the end of a leaf. If the
// whole path back to the root has been exhausted, the cursor is parked one
// past the root's last cell, the tree-wide "completed" position.
func (c *Cursor) ascendPastOvershoot() error {
	for c.backToParent() {
		if c.current.idxCell < c.current.nCells {
			return nil
		}
	}
	c.current.idxCell = c.current.nCells + 1
	return nil
}

// isCompleted reports whether the cursor has exhausted its tree: either it
// is sitting one past the last cell at the root with no parents left, or
// the whole tree is a single empty page.
func (c *Cursor) isCompleted() bool {
	return len(c.parents) == 0 && (c.current.nCells == 0 || c.current.idxCell == c.current.nCells+1)
}

// MoveNext advances the cursor to the next key in traversal order. It is a
// silent no-op once the cursor has run off the end of the tree.
func (c *Cursor) MoveNext() error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if c.isCompleted() {
		return nil
	}
	c.current.idxCell++
	if c.current.pageType.IsTable() {
		return c.moveNextTable()
	}
	return c.moveNextIndex()
}

// moveNextTable implements MoveNext for table trees, where the cursor
// always rests on a leaf: cells are exhausted purely by leaf position,
// climbing back up through interior separators (which carry no payload of
// their own) until a not-yet-descended branch is found.
func (c *Cursor) moveNextTable() error {
	for {
		if c.current.idxCell < c.current.nCells {
			return nil
		}
		if !c.backToParent() {
			c.current.idxCell = c.current.nCells + 1
			return nil
		}
		c.current.idxCell++
		if c.current.idxCell > c.current.nCells {
			continue
		}
		child := childPageAt(c.current.id, c.current.pageType, c.current.handle.Bytes(), c.current.idxCell, c.current.nCells)
		if err := c.moveToChild(child); err != nil {
			return err
		}
		if err := c.descendLeftmost(); err != nil {
			return err
		}
		return nil
	}
}

// moveNextIndex implements MoveNext for index trees. Index interior cells
// are themselves yielded, between the subtrees they separate, so the
// state machine distinguishes "resting on cell i" (stop here, this cell is
// the next key) from "having just finished cell i's left subtree or an
// interior cell itself" (descend into the newly addressed right subtree's
// leftmost leaf).
func (c *Cursor) moveNextIndex() error {
	if !c.current.pageType.IsLeaf() {
		child := childPageAt(c.current.id, c.current.pageType, c.current.handle.Bytes(), c.current.idxCell, c.current.nCells)
		if err := c.moveToChild(child); err != nil {
			return err
		}
		return c.descendLeftmost()
	}
	if c.current.idxCell < c.current.nCells {
		return nil
	}
	return c.ascendPastOvershoot()
}

// GetTablePayload returns the current leaf cell's rowid and payload. ok is
// false once the cursor has run past the last cell on its current leaf.
func (c *Cursor) GetTablePayload() (rowid int64, payload *pager.Payload, ok bool, err error) {
	if !c.initialized {
		return 0, nil, false, ErrNotInitialized
	}
	if c.current.pageType != pager.PageTypeTableLeaf {
		return 0, nil, false, ErrWrongPageKind
	}
	if c.current.idxCell >= c.current.nCells {
		return 0, nil, false, nil
	}
	buf := c.current.handle.Bytes()
	off := pager.CellOffset(c.current.id, c.current.pageType, buf, c.current.idxCell)
	rowid, info, err := pager.ParseTableLeafCell(buf, off, c.ctx.UsableSize)
	if err != nil {
		return 0, nil, false, malformed("parse table leaf cell", err)
	}
	return rowid, pager.NewPayload(c.pager, info), true, nil
}

// GetTableKey returns only the current leaf cell's rowid, without decoding
// its payload.
func (c *Cursor) GetTableKey() (rowid int64, ok bool, err error) {
	if !c.initialized {
		return 0, false, ErrNotInitialized
	}
	if c.current.pageType != pager.PageTypeTableLeaf {
		return 0, false, ErrWrongPageKind
	}
	if c.current.idxCell >= c.current.nCells {
		return 0, false, nil
	}
	buf := c.current.handle.Bytes()
	off := pager.CellOffset(c.current.id, c.current.pageType, buf, c.current.idxCell)
	return pager.TableLeafKey(buf, off), true, nil
}

// GetIndexPayload returns the current cell's record payload. The current
// page may be either an index leaf or an index interior page — both carry
// full records.
func (c *Cursor) GetIndexPayload() (payload *pager.Payload, ok bool, err error) {
	if !c.initialized {
		return nil, false, ErrNotInitialized
	}
	if c.current.pageType.IsTable() {
		return nil, false, ErrWrongPageKind
	}
	if c.current.idxCell >= c.current.nCells {
		return nil, false, nil
	}
	info, err := indexCellPayload(c.current.id, c.current.pageType, c.current.handle.Bytes(), c.current.idxCell, c.ctx.UsableSize)
	if err != nil {
		return nil, false, malformed("parse index cell", err)
	}
	return pager.NewPayload(c.pager, info), true, nil
}

// Insert adds a new row to a table tree at key, with payload stored
// entirely local to the target leaf. It covers only the cases the external
// schema/statement layer is expected to hit in normal operation; anything
// requiring a page split, a freelist defragmentation pass, or an update of
// an existing key returns ErrUnsupported, leaving the page untouched.
func (c *Cursor) Insert(key int64, payload []byte) error {
	existing, found, err := c.TableMoveTo(key)
	if err != nil {
		return err
	}
	if found && existing == key {
		return fmt.Errorf("%w: key %d already present", ErrUnsupported, key)
	}
	if c.current.pageType != pager.PageTypeTableLeaf {
		return malformed("insert landed on a non-leaf page", nil)
	}

	payloadSize := uint64(len(payload))
	local, overflows := pager.SplitLocalSize(payloadSize, c.ctx.UsableSize, pager.PageTypeTableLeaf)
	if overflows || local != len(payload) {
		return fmt.Errorf("%w: payload needs an overflow page", ErrUnsupported)
	}

	id := c.current.id
	pt := c.current.pageType
	buf := c.current.handle.Bytes()

	if pager.FirstFreeblockOffset(id, buf) != 0 || pager.FragmentedFreeBytes(id, buf) != 0 {
		return fmt.Errorf("%w: page has freeblocks, defragmentation not implemented", ErrUnsupported)
	}

	var cellHdr [18]byte
	n1 := pager.PutVarint(cellHdr[:], payloadSize)
	n2 := pager.PutVarint(cellHdr[n1:], uint64(key))
	cellSize := n1 + n2 + len(payload)

	headerOff := pager.HeaderOffset(id)
	hdrSize := pager.HeaderSize(pt)
	nCells := c.current.nCells
	pointerArrayEnd := headerOff + hdrSize + 2*nCells
	contentStart := pager.CellContentAreaOffset(id, buf)
	freeSpace := contentStart - pointerArrayEnd
	if freeSpace < cellSize+2 {
		return fmt.Errorf("%w: insufficient free space on page, balance not implemented", ErrUnsupported)
	}

	wbuf, err := c.pager.MakePageMut(c.current.handle)
	if err != nil {
		return err
	}

	newContentStart := contentStart - cellSize
	insertAt := c.current.idxCell

	if found {
		// The new key is not the largest on the page: shift the cell
		// pointer array right to make room at insertAt.
		tailStart := headerOff + hdrSize + 2*insertAt
		copy(wbuf[tailStart+2:pointerArrayEnd+2], wbuf[tailStart:pointerArrayEnd])
		binary.BigEndian.PutUint16(wbuf[tailStart:tailStart+2], uint16(newContentStart))
	} else {
		binary.BigEndian.PutUint16(wbuf[pointerArrayEnd:pointerArrayEnd+2], uint16(newContentStart))
	}

	copy(wbuf[newContentStart:], cellHdr[:n1+n2])
	copy(wbuf[newContentStart+n1+n2:], payload)

	binary.BigEndian.PutUint16(wbuf[headerOff+3:headerOff+5], uint16(nCells+1))
	binary.BigEndian.PutUint16(wbuf[headerOff+5:headerOff+7], uint16(newContentStart))

	c.current.nCells++
	return nil
}
