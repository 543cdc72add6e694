package heap

import (
	"fmt"

	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/dberr"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Iterator walks every live tuple in the heap in page-chain order. It holds
// no pins or latches between calls; each advance re-reads the current page.
type Iterator struct {
	heap *TableHeap
	txn  *transaction.Transaction

	rid   primitives.RID
	data  []byte
	valid bool
}

// Iterator returns an iterator positioned at the first live tuple.
func (h *TableHeap) Iterator(txn *transaction.Transaction) (*Iterator, error) {
	it := &Iterator{
		heap: h,
		txn:  txn,
		rid:  primitives.NewRID(h.firstPageID, 0),
	}
	if err := it.seek(true); err != nil {
		return nil, err
	}
	return it, nil
}

// Valid reports whether the iterator is positioned at a tuple.
func (it *Iterator) Valid() bool {
	return it.valid
}

// RID returns the record id of the current tuple.
func (it *Iterator) RID() primitives.RID {
	return it.rid
}

// Tuple returns the current tuple's data.
func (it *Iterator) Tuple() []byte {
	return it.data
}

// Next advances to the following live tuple.
func (it *Iterator) Next() error {
	if !it.valid {
		return nil
	}
	return it.seek(false)
}

// seek scans forward from the current position for a live tuple. When
// includeCurrent is set the current slot itself is considered.
func (it *Iterator) seek(includeCurrent bool) error {
	it.valid = false
	pageID := it.rid.PageID
	slot := it.rid.SlotNum
	if !includeCurrent {
		slot++
	}

	for pageID != primitives.InvalidPageID {
		page := it.heap.bpm.FetchPage(pageID)
		if page == nil {
			return fmt.Errorf("heap iterator: fetch page %d: %w", pageID, dberr.ErrOutOfMemory)
		}
		page.RLatch()
		tp := asTablePage(page)
		count := tp.slotCount()
		for ; slot < count; slot++ {
			if data, ok := tp.getTuple(slot); ok {
				it.rid = primitives.NewRID(pageID, slot)
				it.data = data
				it.valid = true
				page.RUnlatch()
				it.heap.bpm.UnpinPage(pageID, false)
				return nil
			}
		}
		next := tp.nextPageID()
		page.RUnlatch()
		it.heap.bpm.UnpinPage(pageID, false)
		pageID = next
		slot = 0
	}
	return nil
}
