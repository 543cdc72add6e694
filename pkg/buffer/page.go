package buffer

import (
	"sync"

	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Page is an in-memory frame: a fixed-size slot holding at most one disk
// page's bytes plus the bookkeeping the pool needs. The pool owns the frame;
// whoever holds it pinned may read or mutate the data, coordinating content
// access through the page latch.
type Page struct {
	data     [primitives.PageSize]byte
	pageID   primitives.PageID
	pinCount int
	isDirty  bool
	latch    sync.RWMutex
}

func newPage() *Page {
	return &Page{pageID: primitives.InvalidPageID}
}

// Data returns the frame's byte slice. Valid only while the caller holds a
// pin on the page.
func (p *Page) Data() []byte {
	return p.data[:]
}

// PageID returns the identifier of the resident page, or InvalidPageID for
// an empty frame.
func (p *Page) PageID() primitives.PageID {
	return p.pageID
}

// PinCount returns the number of outstanding borrowers.
func (p *Page) PinCount() int {
	return p.pinCount
}

// IsDirty reports whether the frame holds modifications not yet on disk.
func (p *Page) IsDirty() bool {
	return p.isDirty
}

// WLatch acquires the page's write latch.
func (p *Page) WLatch() { p.latch.Lock() }

// WUnlatch releases the page's write latch.
func (p *Page) WUnlatch() { p.latch.Unlock() }

// RLatch acquires the page's read latch.
func (p *Page) RLatch() { p.latch.RLock() }

// RUnlatch releases the page's read latch.
func (p *Page) RUnlatch() { p.latch.RUnlock() }

// resetMemory zeroes the frame's bytes.
func (p *Page) resetMemory() {
	for i := range p.data {
		p.data[i] = 0
	}
}
