package transaction

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Ou-Rui/my-bustub/pkg/logging"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Releaser releases every lock a transaction still holds. Implemented by
// the lock manager; the indirection keeps this package free of a dependency
// on it.
type Releaser interface {
	ReleaseAll(txn *Transaction)
}

// Registry is the single source of truth for live transactions. It hands
// out monotonically increasing transaction ids and drives commit and abort.
type Registry struct {
	nextID atomic.Int64

	mu   sync.RWMutex
	txns map[primitives.TxnID]*Transaction

	releaser Releaser
}

// NewRegistry creates an empty registry. releaser may be nil when no lock
// manager is in play, e.g. in storage-only tests.
func NewRegistry(releaser Releaser) *Registry {
	return &Registry{
		txns:     make(map[primitives.TxnID]*Transaction),
		releaser: releaser,
	}
}

// Begin starts a transaction at the given isolation level and registers it.
func (r *Registry) Begin(isolation IsolationLevel) *Transaction {
	id := primitives.TxnID(r.nextID.Add(1))
	txn := New(id, isolation)

	r.mu.Lock()
	r.txns[id] = txn
	r.mu.Unlock()

	logging.Debug("transaction started",
		zap.Int64("txn_id", int64(id)), zap.Stringer("isolation", isolation))
	return txn
}

// Get retrieves a live transaction by id.
func (r *Registry) Get(id primitives.TxnID) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	txn, ok := r.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d not found", id)
	}
	return txn, nil
}

// Commit finishes txn, releasing all of its locks.
func (r *Registry) Commit(txn *Transaction) {
	txn.SetState(Committed)
	r.finish(txn)
	logging.Debug("transaction committed", zap.Int64("txn_id", int64(txn.ID())))
}

// Abort rolls txn back and releases all of its locks.
func (r *Registry) Abort(txn *Transaction) {
	txn.SetState(Aborted)
	r.finish(txn)
	logging.Debug("transaction aborted", zap.Int64("txn_id", int64(txn.ID())))
}

func (r *Registry) finish(txn *Transaction) {
	if r.releaser != nil {
		r.releaser.ReleaseAll(txn)
	}
	r.mu.Lock()
	delete(r.txns, txn.ID())
	r.mu.Unlock()
}

// Count returns the number of live transactions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.txns)
}
