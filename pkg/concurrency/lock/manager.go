// Package lock implements strict two-phase record locking with shared and
// exclusive modes, FIFO queueing per record, lock upgrades and a background
// deadlock detector that aborts the youngest transaction in a cycle.
package lock

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/dberr"
	"github.com/Ou-Rui/my-bustub/pkg/logging"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Manager grants record locks to transactions. One mutex guards the whole
// lock table; blocked acquisitions wait on a per-record condition variable
// that shares the mutex.
//
// Deadlock victims are only marked aborted and woken; the locks a victim
// already holds stay granted until its owner aborts the transaction through
// the registry, which calls ReleaseAll. A caller that receives a deadlock
// abort error must abort the transaction promptly or other waiters on its
// locks stay blocked.
type Manager struct {
	mu    sync.Mutex
	table map[primitives.RID]*requestQueue

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewManager creates a lock manager. When interval is positive a background
// goroutine wakes every interval to look for deadlocks; Close stops it.
func NewManager(interval time.Duration) *Manager {
	m := &Manager{
		table:    make(map[primitives.RID]*requestQueue),
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if interval > 0 {
		go m.runDetection()
	} else {
		close(m.done)
	}
	return m
}

// Close stops the deadlock detector and waits for it to exit.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.done
}

func (m *Manager) queue(rid primitives.RID) *requestQueue {
	q, ok := m.table[rid]
	if !ok {
		q = newRequestQueue(&m.mu)
		m.table[rid] = q
	}
	return q
}

// LockShared blocks until txn holds a shared lock on rid. It aborts txn
// when the request is illegal for its state or isolation level, and returns
// a TxnAbortError when the transaction is aborted, including by the
// deadlock detector while waiting.
func (m *Manager) LockShared(txn *transaction.Transaction, rid primitives.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.State() == transaction.Aborted {
		return fmt.Errorf("lock shared: transaction %d already aborted", txn.ID())
	}
	if txn.Isolation() == transaction.ReadUncommitted {
		txn.SetState(transaction.Aborted)
		return dberr.NewTxnAbort(txn.ID(), dberr.SharedOnReadUncommitted)
	}
	if txn.State() == transaction.Shrinking {
		txn.SetState(transaction.Aborted)
		return dberr.NewTxnAbort(txn.ID(), dberr.LockOnShrinking)
	}
	if txn.IsSharedLocked(rid) || txn.IsExclusiveLocked(rid) {
		return nil
	}

	q := m.queue(rid)
	req := &request{txn: txn, mode: Shared}
	q.requests = append(q.requests, req)
	return m.wait(txn, rid, q, req)
}

// LockExclusive blocks until txn holds an exclusive lock on rid. A
// transaction already holding a shared lock must use LockUpgrade instead.
func (m *Manager) LockExclusive(txn *transaction.Transaction, rid primitives.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.State() == transaction.Aborted {
		return fmt.Errorf("lock exclusive: transaction %d already aborted", txn.ID())
	}
	if txn.State() == transaction.Shrinking {
		txn.SetState(transaction.Aborted)
		return dberr.NewTxnAbort(txn.ID(), dberr.LockOnShrinking)
	}
	if txn.IsExclusiveLocked(rid) {
		return nil
	}
	if txn.IsSharedLocked(rid) {
		return fmt.Errorf("lock exclusive: transaction %d holds a shared lock on %s, upgrade instead",
			txn.ID(), rid)
	}

	q := m.queue(rid)
	req := &request{txn: txn, mode: Exclusive}
	q.requests = append(q.requests, req)
	return m.wait(txn, rid, q, req)
}

// LockUpgrade converts txn's shared lock on rid to an exclusive one. Only
// one upgrade may be pending per record; a second upgrader aborts with an
// upgrade conflict.
func (m *Manager) LockUpgrade(txn *transaction.Transaction, rid primitives.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.State() == transaction.Aborted {
		return fmt.Errorf("lock upgrade: transaction %d already aborted", txn.ID())
	}
	if txn.State() == transaction.Shrinking {
		txn.SetState(transaction.Aborted)
		return dberr.NewTxnAbort(txn.ID(), dberr.LockOnShrinking)
	}
	if txn.IsExclusiveLocked(rid) {
		return nil
	}
	if !txn.IsSharedLocked(rid) {
		return fmt.Errorf("lock upgrade: transaction %d holds no shared lock on %s", txn.ID(), rid)
	}

	q := m.queue(rid)
	if q.upgrading != primitives.InvalidTxnID {
		txn.SetState(transaction.Aborted)
		return dberr.NewTxnAbort(txn.ID(), dberr.UpgradeConflict)
	}

	req := q.find(txn.ID())
	if req == nil || !req.granted {
		return fmt.Errorf("lock upgrade: transaction %d has no granted request on %s", txn.ID(), rid)
	}
	req.granted = false
	req.mode = Exclusive
	q.upgrading = txn.ID()
	txn.RemoveLock(rid)
	return m.wait(txn, rid, q, req)
}

// wait parks the caller until its request is granted or its transaction is
// aborted. Called with the manager mutex held; the condition variable
// releases it while sleeping.
func (m *Manager) wait(txn *transaction.Transaction, rid primitives.RID, q *requestQueue, req *request) error {
	q.grant(rid)
	for !req.granted && txn.State() != transaction.Aborted {
		q.cond.Wait()
	}
	if txn.State() == transaction.Aborted {
		if req.granted {
			txn.RemoveLock(rid)
		}
		q.remove(txn.ID())
		q.grant(rid)
		m.dropIfEmpty(rid, q)
		return dberr.NewTxnAbort(txn.ID(), dberr.Deadlock)
	}
	return nil
}

// Unlock releases txn's lock on rid and drives the two-phase-locking state
// transition. It reports whether a lock was actually released.
func (m *Manager) Unlock(txn *transaction.Transaction, rid primitives.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlockLocked(txn, rid, true)
}

// ReleaseAll releases every lock txn still holds, without state
// transitions. Used by commit and abort.
func (m *Manager) ReleaseAll(txn *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rid := range txn.LockedRIDs() {
		m.unlockLocked(txn, rid, false)
	}
}

func (m *Manager) unlockLocked(txn *transaction.Transaction, rid primitives.RID, transit bool) bool {
	q, ok := m.table[rid]
	if !ok {
		return false
	}
	req := q.find(txn.ID())
	if req == nil || !req.granted {
		return false
	}

	if transit && txn.State() == transaction.Growing {
		switch txn.Isolation() {
		case transaction.RepeatableRead:
			txn.SetState(transaction.Shrinking)
		default:
			// Weaker levels release shared locks freely; only giving up an
			// exclusive lock ends the growing phase.
			if req.mode == Exclusive {
				txn.SetState(transaction.Shrinking)
			}
		}
	}

	q.remove(txn.ID())
	txn.RemoveLock(rid)
	q.grant(rid)
	m.dropIfEmpty(rid, q)
	return true
}

func (m *Manager) dropIfEmpty(rid primitives.RID, q *requestQueue) {
	if len(q.requests) == 0 {
		delete(m.table, rid)
	}
}

// abortLocked marks txn aborted on behalf of the deadlock detector and
// wakes every queue it is waiting in so the blocked goroutine can clean up
// its request. Granted locks stay put until the client aborts through the
// transaction registry.
func (m *Manager) abortLocked(txn *transaction.Transaction) {
	txn.SetState(transaction.Aborted)
	for _, q := range m.table {
		if req := q.find(txn.ID()); req != nil && !req.granted {
			q.cond.Broadcast()
		}
	}
	logging.Debug("deadlock victim aborted", zap.Int64("txn_id", int64(txn.ID())))
}
