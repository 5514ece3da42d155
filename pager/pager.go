package pager

import (
	"fmt"
	"os"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// Pager
// ───────────────────────────────────────────────────────────────────────────
//
// The Pager is a fixed-size page cache over a random-access file. It hands
// out read-shared views (PageHandle) and exclusive-write views (WriteBuffer)
// of a page, tracks which pages are dirty, and writes them back at Commit,
// page by page followed by one fsync. There is no write-ahead log or
// rollback journal here — Non-goals for this core — so a Commit that fails
// part way leaves only some dirty pages written, and Abort simply discards
// the in-memory dirty set; nothing has touched the file yet.

// cachedPage is one page's cache entry: its bytes, whether it has been
// written since the last commit, and how many PageHandles currently borrow
// it for reading.
type cachedPage struct {
	buf     []byte
	dirty   bool
	readers int
}

// Pager manages page-level I/O and the single-writer buffer discipline that
// keeps cursor reads and the one in-flight write transaction consistent.
type Pager struct {
	mu sync.Mutex

	file       *os.File
	pageSize   int
	usableSize int

	cache map[PageID]*cachedPage

	// numPages is the number of pages the file is understood to have,
	// including any not yet flushed to disk (allocated this transaction).
	numPages PageID

	// fileSizeAtOpen is numPages as of the last successful Commit/Abort,
	// used to answer IsFileSizeChanged.
	fileSizeAtOpen PageID
}

// Open opens an existing SQLite-format database file and reads its header
// to learn the page size.
func Open(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}

	hdrBuf := make([]byte, FileHeaderSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pager: read header: %w", err)
	}
	hdr, err := ParseFileHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	n := PageID(info.Size() / int64(hdr.PageSize))

	return &Pager{
		file:           f,
		pageSize:       hdr.PageSize,
		usableSize:     hdr.UsableSize(),
		cache:          make(map[PageID]*cachedPage),
		numPages:       n,
		fileSizeAtOpen: n,
	}, nil
}

// PageSize returns the configured page size in bytes.
func (p *Pager) PageSize() int { return p.pageSize }

// UsableSize returns the page size minus the reserved tail.
func (p *Pager) UsableSize() int { return p.usableSize }

// NumPages returns the number of pages the file currently has, including
// pages allocated (but not yet committed) this transaction.
func (p *Pager) NumPages() PageID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numPages
}

// IsFileSizeChanged reports whether the page count has grown since the
// last commit or abort.
func (p *Pager) IsFileSizeChanged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numPages != p.fileSizeAtOpen
}

// PageHandle is a shared, read-only view of one cached page. Multiple
// handles on the same page may coexist; each must be released when the
// caller is done with it.
type PageHandle struct {
	pager *Pager
	id    PageID
	page  *cachedPage
}

// ID returns the page number this handle views.
func (h *PageHandle) ID() PageID { return h.id }

// Bytes returns the page's backing buffer. Callers must not mutate it
// without first going through MakePageMut — doing so would corrupt the
// cache out from under any other outstanding read handle.
func (h *PageHandle) Bytes() []byte { return h.page.buf }

// Release drops this handle's read claim on the page. Every GetPage must
// be matched with exactly one Release.
func (h *PageHandle) Release() {
	h.pager.mu.Lock()
	defer h.pager.mu.Unlock()
	if h.page.readers > 0 {
		h.page.readers--
	}
}

// WriteBuffer is an exclusive, directly mutable view of a page's bytes.
// It aliases the same backing array as the PageHandle it was derived from.
type WriteBuffer = []byte

// GetPage returns a shared read view of page id, reading it from the file
// on first access and caching it thereafter.
func (p *Pager) GetPage(id PageID) (*PageHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == 0 || id > p.numPages {
		return nil, fmt.Errorf("pager: page id %d out of range (have %d pages)", id, p.numPages)
	}

	cp, ok := p.cache[id]
	if !ok {
		buf := make([]byte, p.pageSize)
		off := int64(id-1) * int64(p.pageSize)
		if _, err := p.file.ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("pager: read page %d: %w", id, err)
		}
		cp = &cachedPage{buf: buf}
		p.cache[id] = cp
	}
	cp.readers++
	return &PageHandle{pager: p, id: id, page: cp}, nil
}

// MakePageMut upgrades h to an exclusive writable view of the same page.
// It fails if any other read handle on this page is outstanding — per the
// cursor's single-cursor-per-tree precondition, that should never happen
// for the page the cursor is currently positioned on.
func (p *Pager) MakePageMut(h *PageHandle) (WriteBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h.page.readers > 1 {
		return nil, fmt.Errorf("pager: cannot make page %d writable: %d other readers outstanding", h.id, h.page.readers-1)
	}
	h.page.dirty = true
	return h.page.buf, nil
}

// AllocatePage extends the file by one page and returns its id and a
// zeroed writable buffer. This core never calls it from the B-tree cursor
// (insert only ever writes into an existing page — page splits are a
// Non-goal) but the pager contract exposes it for the schema layer above,
// which allocates root pages when creating new tables and indexes.
func (p *Pager) AllocatePage() (PageID, WriteBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.numPages++
	id := p.numPages
	buf := make([]byte, p.pageSize)
	cp := &cachedPage{buf: buf, dirty: true, readers: 1}
	p.cache[id] = cp
	return id, buf
}

// Commit flushes all dirty pages to the file and clears the dirty set.
func (p *Pager) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, cp := range p.cache {
		if !cp.dirty {
			continue
		}
		off := int64(id-1) * int64(p.pageSize)
		if _, err := p.file.WriteAt(cp.buf, off); err != nil {
			return fmt.Errorf("pager: write page %d: %w", id, err)
		}
		cp.dirty = false
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: sync: %w", err)
	}
	p.fileSizeAtOpen = p.numPages
	return nil
}

// Abort discards all dirty pages, evicting them from the cache so that a
// subsequent GetPage re-reads the on-disk image.
func (p *Pager) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, cp := range p.cache {
		if cp.dirty {
			delete(p.cache, id)
		}
	}
	p.numPages = p.fileSizeAtOpen
	return nil
}

// Close commits any outstanding changes and closes the underlying file.
func (p *Pager) Close() error {
	if err := p.Commit(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
