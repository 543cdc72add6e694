package btree

import (
	"fmt"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/dberr"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Iterator walks the leaf chain in key order. It pins the current leaf but
// holds no latch between calls, so entries observed across concurrent
// mutations reflect some mix of before and after states. Close must be
// called to drop the pin on the current leaf.
type Iterator struct {
	bpm   *buffer.BufferPoolManager
	page  *buffer.Page
	index int
}

// Begin positions an iterator at the smallest key in the tree.
func (t *BPlusTree) Begin() (*Iterator, error) {
	page, err := t.findLeafRead(0, true)
	if err != nil {
		return nil, err
	}
	return &Iterator{bpm: t.bpm, page: page}, nil
}

// BeginAt positions an iterator at the first entry whose key is greater
// than or equal to key.
func (t *BPlusTree) BeginAt(key int64) (*Iterator, error) {
	page, err := t.findLeafRead(key, false)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return &Iterator{bpm: t.bpm}, nil
	}
	it := &Iterator{bpm: t.bpm, page: page}
	page.RLatch()
	it.index = asLeaf(page).keyIndex(key, t.cmp)
	size := asLeaf(page).size()
	page.RUnlatch()
	// The key may sort past every entry in this leaf.
	if it.index >= size {
		if err := it.advanceLeaf(); err != nil {
			it.Close()
			return nil, err
		}
	}
	return it, nil
}

// findLeafRead descends to the leaf for key (or the leftmost leaf) with
// read-latch crabbing and returns it pinned but unlatched. A nil page means
// the tree is empty.
func (t *BPlusTree) findLeafRead(key int64, leftmost bool) (*buffer.Page, error) {
	for {
		rootID := t.RootPageID()
		if rootID == primitives.InvalidPageID {
			return nil, nil
		}
		page := t.bpm.FetchPage(rootID)
		if page == nil {
			return nil, fmt.Errorf("btree %q: fetch root: %w", t.name, dberr.ErrOutOfMemory)
		}
		page.RLatch()
		if t.RootPageID() != rootID {
			page.RUnlatch()
			t.bpm.UnpinPage(rootID, false)
			continue
		}

		for !(nodePage{page: page}).isLeaf() {
			inner := asInternal(page)
			var childID primitives.PageID
			if leftmost {
				childID = inner.valueAt(0)
			} else {
				childID = inner.lookup(key, t.cmp)
			}
			child := t.bpm.FetchPage(childID)
			if child == nil {
				page.RUnlatch()
				t.bpm.UnpinPage(page.PageID(), false)
				return nil, fmt.Errorf("btree %q: fetch page %d: %w", t.name, childID, dberr.ErrOutOfMemory)
			}
			child.RLatch()
			page.RUnlatch()
			t.bpm.UnpinPage(page.PageID(), false)
			page = child
		}
		page.RUnlatch()
		return page, nil
	}
}

// IsEnd reports whether the iterator is past the last entry.
func (it *Iterator) IsEnd() bool {
	if it.page == nil {
		return true
	}
	it.page.RLatch()
	defer it.page.RUnlatch()
	return it.index >= asLeaf(it.page).size()
}

// Key returns the key at the current position.
func (it *Iterator) Key() int64 {
	it.page.RLatch()
	defer it.page.RUnlatch()
	return asLeaf(it.page).keyAt(it.index)
}

// Value returns the record id at the current position.
func (it *Iterator) Value() primitives.RID {
	it.page.RLatch()
	defer it.page.RUnlatch()
	return asLeaf(it.page).valueAt(it.index)
}

// Next advances to the following entry, crossing to the next leaf when the
// current one is exhausted.
func (it *Iterator) Next() error {
	if it.page == nil {
		return nil
	}
	it.page.RLatch()
	size := asLeaf(it.page).size()
	it.page.RUnlatch()

	it.index++
	if it.index < size {
		return nil
	}
	return it.advanceLeaf()
}

// advanceLeaf follows next pointers until it finds a non-empty leaf or runs
// off the end of the chain.
func (it *Iterator) advanceLeaf() error {
	for {
		it.page.RLatch()
		leaf := asLeaf(it.page)
		if it.index < leaf.size() {
			it.page.RUnlatch()
			return nil
		}
		nextID := leaf.nextPageID()
		it.page.RUnlatch()

		it.bpm.UnpinPage(it.page.PageID(), false)
		it.page = nil
		it.index = 0
		if nextID == primitives.InvalidPageID {
			return nil
		}
		next := it.bpm.FetchPage(nextID)
		if next == nil {
			return fmt.Errorf("btree iterator: fetch page %d: %w", nextID, dberr.ErrOutOfMemory)
		}
		it.page = next
	}
}

// Close releases the pin on the current leaf. Safe to call more than once.
func (it *Iterator) Close() {
	if it.page != nil {
		it.bpm.UnpinPage(it.page.PageID(), false)
		it.page = nil
	}
}
