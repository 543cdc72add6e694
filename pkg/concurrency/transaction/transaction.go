package transaction

import (
	"sync"
	"sync/atomic"

	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// State tracks a transaction through two-phase locking. A transaction grows
// while it only acquires locks, shrinks once it has released one, and ends
// committed or aborted.
type State int32

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel selects how much locking discipline a transaction gets.
type IsolationLevel int

const (
	// ReadUncommitted takes no shared locks at all, so reads may observe
	// uncommitted writes.
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted releases shared locks eagerly; a shared unlock does not
	// end the growing phase.
	ReadCommitted
	// RepeatableRead holds every lock to the end of the transaction.
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	default:
		return "UNKNOWN"
	}
}

// Transaction carries the lock sets and two-phase-locking state for one
// client transaction. The lock manager mutates the lock sets while holding
// its own mutex; state is atomic so blocked waiters and the deadlock
// detector can observe aborts without extra coordination.
type Transaction struct {
	id        primitives.TxnID
	isolation IsolationLevel
	state     atomic.Int32

	mu             sync.Mutex
	sharedLocks    map[primitives.RID]struct{}
	exclusiveLocks map[primitives.RID]struct{}
}

// New creates a transaction in the growing state.
func New(id primitives.TxnID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		isolation:      isolation,
		sharedLocks:    make(map[primitives.RID]struct{}),
		exclusiveLocks: make(map[primitives.RID]struct{}),
	}
}

func (t *Transaction) ID() primitives.TxnID {
	return t.id
}

func (t *Transaction) Isolation() IsolationLevel {
	return t.isolation
}

// State returns the current two-phase-locking state.
func (t *Transaction) State() State {
	return State(t.state.Load())
}

// SetState moves the transaction to state s.
func (t *Transaction) SetState(s State) {
	t.state.Store(int32(s))
}

// IsSharedLocked reports whether the transaction holds a shared lock on rid.
func (t *Transaction) IsSharedLocked(rid primitives.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLocks[rid]
	return ok
}

// IsExclusiveLocked reports whether the transaction holds an exclusive lock
// on rid.
func (t *Transaction) IsExclusiveLocked(rid primitives.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.exclusiveLocks[rid]
	return ok
}

// AddSharedLock records a granted shared lock.
func (t *Transaction) AddSharedLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLocks[rid] = struct{}{}
}

// AddExclusiveLock records a granted exclusive lock. An upgraded lock moves
// from the shared set to the exclusive set.
func (t *Transaction) AddExclusiveLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
	t.exclusiveLocks[rid] = struct{}{}
}

// RemoveLock drops rid from both lock sets.
func (t *Transaction) RemoveLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
	delete(t.exclusiveLocks, rid)
}

// LockedRIDs returns a snapshot of every record the transaction holds a
// lock on.
func (t *Transaction) LockedRIDs() []primitives.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	rids := make([]primitives.RID, 0, len(t.sharedLocks)+len(t.exclusiveLocks))
	for rid := range t.sharedLocks {
		rids = append(rids, rid)
	}
	for rid := range t.exclusiveLocks {
		rids = append(rids, rid)
	}
	return rids
}
