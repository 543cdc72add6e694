package heap

import (
	"fmt"
	"sync"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/concurrency/lock"
	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/dberr"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// TableHeap is an unordered collection of tuples stored in a doubly linked
// chain of slotted pages. Tuples are addressed by record id (page, slot),
// which stays stable across in-place updates.
//
// When constructed with a lock manager, tuple reads take shared locks and
// tuple writes take exclusive locks on the record id; a nil lock manager
// skips locking entirely.
type TableHeap struct {
	bpm         *buffer.BufferPoolManager
	lm          *lock.Manager
	firstPageID primitives.PageID

	// Guards extension of the page chain.
	extendMu sync.Mutex
}

// NewTableHeap creates a heap with a single empty page.
func NewTableHeap(bpm *buffer.BufferPoolManager, lm *lock.Manager) (*TableHeap, error) {
	page, pageID := bpm.NewPage()
	if page == nil {
		return nil, fmt.Errorf("table heap: allocate first page: %w", dberr.ErrOutOfMemory)
	}
	initTablePage(page, primitives.InvalidPageID)
	bpm.UnpinPage(pageID, true)
	return &TableHeap{bpm: bpm, lm: lm, firstPageID: pageID}, nil
}

// OpenTableHeap attaches to an existing heap rooted at firstPageID.
func OpenTableHeap(bpm *buffer.BufferPoolManager, lm *lock.Manager, firstPageID primitives.PageID) *TableHeap {
	return &TableHeap{bpm: bpm, lm: lm, firstPageID: firstPageID}
}

// FirstPageID returns the id of the first page in the chain.
func (h *TableHeap) FirstPageID() primitives.PageID {
	return h.firstPageID
}

// InsertTuple appends data to the heap and returns its record id. The new
// record is exclusively locked for txn.
func (h *TableHeap) InsertTuple(data []byte, txn *transaction.Transaction) (primitives.RID, error) {
	if uint32(len(data)) > maxTupleSize() {
		return primitives.RID{}, fmt.Errorf("table heap: tuple of %d bytes exceeds page capacity", len(data))
	}

	pageID := h.firstPageID
	for {
		page := h.bpm.FetchPage(pageID)
		if page == nil {
			return primitives.RID{}, fmt.Errorf("table heap: fetch page %d: %w", pageID, dberr.ErrOutOfMemory)
		}
		page.WLatch()
		tp := asTablePage(page)

		if slot, ok := tp.insertTuple(data); ok {
			rid := primitives.NewRID(pageID, slot)
			page.WUnlatch()
			h.bpm.UnpinPage(pageID, true)
			if err := h.lockExclusive(txn, rid); err != nil {
				return primitives.RID{}, err
			}
			return rid, nil
		}

		next := tp.nextPageID()
		if next != primitives.InvalidPageID {
			page.WUnlatch()
			h.bpm.UnpinPage(pageID, false)
			pageID = next
			continue
		}

		// Extend the chain. The extension mutex keeps two full-table
		// inserts from racing to append behind the same tail.
		h.extendMu.Lock()
		if tp.nextPageID() != primitives.InvalidPageID {
			// Lost the race; follow the new link.
			next = tp.nextPageID()
			h.extendMu.Unlock()
			page.WUnlatch()
			h.bpm.UnpinPage(pageID, false)
			pageID = next
			continue
		}
		newPage, newPageID := h.bpm.NewPage()
		if newPage == nil {
			h.extendMu.Unlock()
			page.WUnlatch()
			h.bpm.UnpinPage(pageID, false)
			return primitives.RID{}, fmt.Errorf("table heap: extend: %w", dberr.ErrOutOfMemory)
		}
		newPage.WLatch()
		initTablePage(newPage, pageID)
		tp.setNextPageID(newPageID)
		h.extendMu.Unlock()
		page.WUnlatch()
		h.bpm.UnpinPage(pageID, true)

		slot, ok := asTablePage(newPage).insertTuple(data)
		newPage.WUnlatch()
		h.bpm.UnpinPage(newPageID, ok)
		if !ok {
			return primitives.RID{}, fmt.Errorf("table heap: tuple of %d bytes does not fit a fresh page", len(data))
		}
		rid := primitives.NewRID(newPageID, slot)
		if err := h.lockExclusive(txn, rid); err != nil {
			return primitives.RID{}, err
		}
		return rid, nil
	}
}

// GetTuple returns a copy of the tuple at rid. Reads take a shared lock
// except at read-uncommitted isolation, which reads without locking.
func (h *TableHeap) GetTuple(rid primitives.RID, txn *transaction.Transaction) ([]byte, error) {
	if h.lm != nil && txn != nil && txn.Isolation() != transaction.ReadUncommitted {
		if !txn.IsSharedLocked(rid) && !txn.IsExclusiveLocked(rid) {
			if err := h.lm.LockShared(txn, rid); err != nil {
				return nil, err
			}
		}
	}

	page := h.bpm.FetchPage(rid.PageID)
	if page == nil {
		return nil, fmt.Errorf("table heap: fetch page %d: %w", rid.PageID, dberr.ErrOutOfMemory)
	}
	page.RLatch()
	data, ok := asTablePage(page).getTuple(rid.SlotNum)
	page.RUnlatch()
	h.bpm.UnpinPage(rid.PageID, false)
	if !ok {
		return nil, fmt.Errorf("table heap: no tuple at %s", rid)
	}
	return data, nil
}

// UpdateTuple rewrites the tuple at rid in place.
func (h *TableHeap) UpdateTuple(rid primitives.RID, data []byte, txn *transaction.Transaction) error {
	if err := h.lockExclusive(txn, rid); err != nil {
		return err
	}
	return h.withWritablePage(rid, func(tp tablePage) error {
		if !tp.updateTuple(rid.SlotNum, data) {
			return fmt.Errorf("table heap: update failed at %s", rid)
		}
		return nil
	})
}

// MarkDelete flags the tuple at rid deleted; ApplyDelete reclaims it at
// commit and RollbackDelete revives it on abort.
func (h *TableHeap) MarkDelete(rid primitives.RID, txn *transaction.Transaction) error {
	if err := h.lockExclusive(txn, rid); err != nil {
		return err
	}
	return h.withWritablePage(rid, func(tp tablePage) error {
		if !tp.markDelete(rid.SlotNum) {
			return fmt.Errorf("table heap: mark delete failed at %s", rid)
		}
		return nil
	})
}

// ApplyDelete physically removes a tuple previously marked deleted.
func (h *TableHeap) ApplyDelete(rid primitives.RID, txn *transaction.Transaction) error {
	return h.withWritablePage(rid, func(tp tablePage) error {
		if !tp.applyDelete(rid.SlotNum) {
			return fmt.Errorf("table heap: apply delete failed at %s", rid)
		}
		return nil
	})
}

// RollbackDelete undoes a MarkDelete.
func (h *TableHeap) RollbackDelete(rid primitives.RID, txn *transaction.Transaction) error {
	return h.withWritablePage(rid, func(tp tablePage) error {
		if !tp.rollbackDelete(rid.SlotNum) {
			return fmt.Errorf("table heap: rollback delete failed at %s", rid)
		}
		return nil
	})
}

func (h *TableHeap) withWritablePage(rid primitives.RID, fn func(tablePage) error) error {
	page := h.bpm.FetchPage(rid.PageID)
	if page == nil {
		return fmt.Errorf("table heap: fetch page %d: %w", rid.PageID, dberr.ErrOutOfMemory)
	}
	page.WLatch()
	err := fn(asTablePage(page))
	page.WUnlatch()
	h.bpm.UnpinPage(rid.PageID, err == nil)
	return err
}

// lockExclusive takes an exclusive lock on rid for txn, upgrading a held
// shared lock. No-op without a lock manager or transaction.
func (h *TableHeap) lockExclusive(txn *transaction.Transaction, rid primitives.RID) error {
	if h.lm == nil || txn == nil {
		return nil
	}
	if txn.IsExclusiveLocked(rid) {
		return nil
	}
	if txn.IsSharedLocked(rid) {
		return h.lm.LockUpgrade(txn, rid)
	}
	return h.lm.LockExclusive(txn, rid)
}
