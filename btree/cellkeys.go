package btree

import "github.com/go-litebtree/litebtree/pager"

// tableCellKey reads the rowid of cell i on a table page (leaf or
// interior), without touching the payload.
func tableCellKey(id pager.PageID, pt pager.PageType, buf []byte, i int) int64 {
	off := pager.CellOffset(id, pt, buf, i)
	if pt == pager.PageTypeTableLeaf {
		return pager.TableLeafKey(buf, off)
	}
	_, rowid := pager.ParseTableInteriorCell(buf, off)
	return rowid
}

// indexCellPayload decodes the record payload of cell i on an index page
// (leaf or interior); both kinds carry a full record, which is the key the
// comparator orders on.
func indexCellPayload(id pager.PageID, pt pager.PageType, buf []byte, i, usableSize int) (pager.PayloadInfo, error) {
	off := pager.CellOffset(id, pt, buf, i)
	if pt == pager.PageTypeIndexLeaf {
		return pager.ParseIndexLeafCell(buf, off, usableSize)
	}
	_, info, err := pager.ParseIndexInteriorCell(buf, off, usableSize)
	return info, err
}

// childPageAt returns the child page id a B-tree interior page points to
// for position idx, where idx == nCells addresses the right_page_id and
// idx < nCells addresses the left-child of cell idx. Works for both table
// and index interior pages, since both lead with a 4-byte left-child id.
func childPageAt(id pager.PageID, pt pager.PageType, buf []byte, idx, nCells int) pager.PageID {
	if idx == nCells {
		return pager.RightPageID(id, buf)
	}
	off := pager.CellOffset(id, pt, buf, idx)
	return pager.ParseInteriorChildID(buf, off)
}
