package btree

import (
	"go.uber.org/zap"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/logging"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// opType selects the safety rule applied while crabbing down the tree.
type opType int

const (
	opInsert opType = iota
	opDelete
)

// opContext tracks the pages a single mutating operation holds
// write-latched and pinned, root-first, plus pages scheduled for deletion.
// Ancestor latches are retained until a node proves safe; everything left
// in the context is released together when the operation completes.
type opContext struct {
	txn     *transaction.Transaction
	latched []*buffer.Page
	deleted []primitives.PageID
	dirty   bool
}

func newOpContext(txn *transaction.Transaction) *opContext {
	return &opContext{txn: txn}
}

func (ctx *opContext) addLatched(page *buffer.Page) {
	ctx.latched = append(ctx.latched, page)
}

// latchedPage finds an already-latched page by id. A miss is a programmer
// error: the crabbing protocol guarantees the parent of any unsafe node is
// retained.
func (ctx *opContext) latchedPage(pageID primitives.PageID) *buffer.Page {
	for i := len(ctx.latched) - 1; i >= 0; i-- {
		if ctx.latched[i].PageID() == pageID {
			return ctx.latched[i]
		}
	}
	panic("btree: required ancestor page is not latched")
}

// releaseAllButLast unlatches and unpins every retained ancestor above the
// most recently latched page. Called once a node is known safe. Released
// ancestors were never modified, so they are unpinned clean.
func (ctx *opContext) releaseAllButLast(bpm *buffer.BufferPoolManager) {
	n := len(ctx.latched)
	for i := 0; i < n-1; i++ {
		page := ctx.latched[i]
		page.WUnlatch()
		bpm.UnpinPage(page.PageID(), false)
	}
	ctx.latched = ctx.latched[n-1:]
}

// release unlatches and unpins everything still held, newest first, then
// deletes pages consumed by merges. Deletion must come after the unpins so
// the pin counts can reach zero.
func (ctx *opContext) release(bpm *buffer.BufferPoolManager) {
	for i := len(ctx.latched) - 1; i >= 0; i-- {
		page := ctx.latched[i]
		page.WUnlatch()
		bpm.UnpinPage(page.PageID(), ctx.dirty)
	}
	ctx.latched = ctx.latched[:0]

	for _, pageID := range ctx.deleted {
		if !bpm.DeletePage(pageID) {
			logging.Debug("deferred page delete refused, still pinned",
				zap.Int32("page_id", int32(pageID)))
		}
	}
	ctx.deleted = ctx.deleted[:0]
}
