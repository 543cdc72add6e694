package lock

import (
	"sync"

	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Mode is the strength of a record lock.
type Mode int

const (
	// Shared locks are compatible with each other.
	Shared Mode = iota
	// Exclusive locks are compatible with nothing.
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "EXCLUSIVE"
	}
	return "SHARED"
}

// request is one transaction's position in a record's lock queue. A request
// is either granted (the transaction holds the lock) or waiting.
type request struct {
	txn     *transaction.Transaction
	mode    Mode
	granted bool
}

// requestQueue holds the FIFO lock queue for a single record. The condition
// variable shares the manager's mutex, so waiters sleep without holding it
// and re-check their request after every wakeup.
type requestQueue struct {
	requests  []*request
	cond      *sync.Cond
	upgrading primitives.TxnID
}

func newRequestQueue(mu *sync.Mutex) *requestQueue {
	return &requestQueue{
		cond:      sync.NewCond(mu),
		upgrading: primitives.InvalidTxnID,
	}
}

func (q *requestQueue) find(id primitives.TxnID) *request {
	for _, req := range q.requests {
		if req.txn.ID() == id {
			return req
		}
	}
	return nil
}

// remove drops the request belonging to id. It reports whether anything was
// removed.
func (q *requestQueue) remove(id primitives.TxnID) bool {
	for i, req := range q.requests {
		if req.txn.ID() == id {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			if q.upgrading == id {
				q.upgrading = primitives.InvalidTxnID
			}
			return true
		}
	}
	return false
}

// grant hands the lock to every waiting request that is now compatible,
// preserving FIFO order, and wakes the queue when anything changed.
//
// Rules: a pending upgrade outranks all other waiters and is granted once
// its transaction is the only remaining holder; otherwise waiters are
// scanned front to back, shared requests are granted while only shared
// locks are held, an exclusive request is granted only when nothing is
// held, and the scan stops at the first request that cannot be granted.
func (q *requestQueue) grant(rid primitives.RID) {
	holders := 0
	sharedOnly := true
	for _, req := range q.requests {
		if req.granted {
			holders++
			if req.mode == Exclusive {
				sharedOnly = false
			}
		}
	}

	woke := false
	if q.upgrading != primitives.InvalidTxnID {
		if holders == 0 {
			req := q.find(q.upgrading)
			if req != nil {
				req.granted = true
				req.txn.AddExclusiveLock(rid)
				holders = 1
				sharedOnly = false
				woke = true
			}
			q.upgrading = primitives.InvalidTxnID
		}
		// An unfinished upgrade blocks everyone behind it.
		if q.upgrading != primitives.InvalidTxnID {
			if woke {
				q.cond.Broadcast()
			}
			return
		}
	}

	for _, req := range q.requests {
		if req.granted {
			continue
		}
		if req.mode == Shared {
			if !sharedOnly {
				break
			}
			req.granted = true
			req.txn.AddSharedLock(rid)
			holders++
			woke = true
			continue
		}
		// Exclusive request: needs an empty queue ahead of it.
		if holders > 0 {
			break
		}
		req.granted = true
		req.txn.AddExclusiveLock(rid)
		holders++
		sharedOnly = false
		woke = true
		break
	}

	if woke {
		q.cond.Broadcast()
	}
}
