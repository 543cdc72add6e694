package btree

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/dberr"
	"github.com/Ou-Rui/my-bustub/pkg/logging"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Comparator orders two keys. It returns a negative number when a sorts
// before b, zero when they are equal, and a positive number otherwise.
type Comparator func(a, b int64) int

// Int64Comparator is the natural ordering on int64 keys.
func Int64Comparator(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// BPlusTree is a disk-backed B+ tree index mapping int64 keys to record
// identifiers. All pages live in the buffer pool; the tree itself holds no
// key data in memory, only the identity of the root page.
//
// Concurrent readers and writers are coordinated with latch crabbing:
// each operation latches pages top-down and releases an ancestor's latch as
// soon as its child cannot split or underflow into it. The root page id is
// revalidated after latching the root, so operations racing a root change
// simply retry.
type BPlusTree struct {
	name            string
	bpm             *buffer.BufferPoolManager
	cmp             Comparator
	leafMaxSize     int
	internalMaxSize int

	rootMu     sync.Mutex
	rootPageID primitives.PageID
}

// NewBPlusTree opens the index named name, recovering its root page id from
// the header page when the index already exists and registering a fresh
// record otherwise.
func NewBPlusTree(name string, bpm *buffer.BufferPoolManager, cmp Comparator,
	leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	if leafMaxSize <= 1 || leafMaxSize > nodeCapacity {
		return nil, fmt.Errorf("btree: leaf max size %d out of range (2..%d)", leafMaxSize, nodeCapacity)
	}
	// Internal fanout below 3 would let a non-root internal node hold a
	// single child.
	if internalMaxSize <= 2 || internalMaxSize >= nodeCapacity {
		return nil, fmt.Errorf("btree: internal max size %d out of range (3..%d)", internalMaxSize, nodeCapacity-1)
	}
	t := &BPlusTree{
		name:            name,
		bpm:             bpm,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      primitives.InvalidPageID,
	}
	if err := t.loadRootFromHeader(); err != nil {
		return nil, err
	}
	return t, nil
}

// RootPageID returns the current root page id, InvalidPageID when the tree
// is empty.
func (t *BPlusTree) RootPageID() primitives.PageID {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	return t.rootPageID
}

// IsEmpty reports whether the tree holds no entries.
func (t *BPlusTree) IsEmpty() bool {
	return t.RootPageID() == primitives.InvalidPageID
}

func (t *BPlusTree) loadRootFromHeader() error {
	page := t.bpm.FetchPage(primitives.HeaderPageID)
	if page == nil {
		return fmt.Errorf("btree %q: fetch header page: %w", t.name, dberr.ErrOutOfMemory)
	}
	page.WLatch()
	hdr := asHeader(page)
	dirty := false
	if rootID, ok := hdr.getRootID(t.name); ok {
		t.rootPageID = rootID
	} else {
		if !hdr.insertRecord(t.name, primitives.InvalidPageID) {
			page.WUnlatch()
			t.bpm.UnpinPage(page.PageID(), false)
			return fmt.Errorf("btree %q: header page is full", t.name)
		}
		dirty = true
	}
	page.WUnlatch()
	t.bpm.UnpinPage(page.PageID(), dirty)
	return nil
}

// setRoot publishes a new root page id and persists it in the header page.
// rootMu is held across the header write so header records are applied in
// the same order the in-memory root changes.
func (t *BPlusTree) setRoot(rootID primitives.PageID) {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	t.rootPageID = rootID
	t.writeHeaderRoot(rootID)
}

func (t *BPlusTree) writeHeaderRoot(rootID primitives.PageID) {
	page := t.bpm.FetchPage(primitives.HeaderPageID)
	if page == nil {
		// The id is already published in memory; losing the header update
		// only costs durability of the root pointer.
		logging.Error("failed to fetch header page for root update",
			zap.String("index", t.name), zap.Int32("root", int32(rootID)))
		return
	}
	page.WLatch()
	asHeader(page).updateRecord(t.name, rootID)
	page.WUnlatch()
	t.bpm.UnpinPage(page.PageID(), true)
}

// GetValue looks up key and returns its record id. The second result is
// false when the key is absent.
func (t *BPlusTree) GetValue(key int64, txn *transaction.Transaction) (primitives.RID, bool, error) {
	for {
		rootID := t.RootPageID()
		if rootID == primitives.InvalidPageID {
			return primitives.RID{}, false, nil
		}
		page := t.bpm.FetchPage(rootID)
		if page == nil {
			return primitives.RID{}, false, fmt.Errorf("btree %q: fetch root: %w", t.name, dberr.ErrOutOfMemory)
		}
		page.RLatch()
		if t.RootPageID() != rootID {
			page.RUnlatch()
			t.bpm.UnpinPage(rootID, false)
			continue
		}

		node := nodePage{page: page}
		for !node.isLeaf() {
			childID := asInternal(page).lookup(key, t.cmp)
			child := t.bpm.FetchPage(childID)
			if child == nil {
				page.RUnlatch()
				t.bpm.UnpinPage(page.PageID(), false)
				return primitives.RID{}, false, fmt.Errorf("btree %q: fetch page %d: %w", t.name, childID, dberr.ErrOutOfMemory)
			}
			child.RLatch()
			page.RUnlatch()
			t.bpm.UnpinPage(page.PageID(), false)
			page = child
			node = nodePage{page: page}
		}

		rid, found := asLeaf(page).lookup(key, t.cmp)
		page.RUnlatch()
		t.bpm.UnpinPage(page.PageID(), false)
		return rid, found, nil
	}
}

// Insert adds a key/value pair. It returns false with a nil error when the
// key is already present; duplicate keys are not supported.
func (t *BPlusTree) Insert(key int64, value primitives.RID, txn *transaction.Transaction) (bool, error) {
	for {
		if t.RootPageID() == primitives.InvalidPageID {
			created, err := t.startNewTree(key, value)
			if err != nil {
				return false, err
			}
			if created {
				return true, nil
			}
			// Another writer created the root first; fall through to the
			// regular descent.
		}

		ctx := newOpContext(txn)
		leaf, ok, err := t.findLeafWrite(key, opInsert, ctx)
		if err != nil {
			ctx.release(t.bpm)
			return false, err
		}
		if !ok {
			// Tree became empty between the check and the descent.
			continue
		}

		size := leaf.size()
		newSize := leaf.insert(key, value, t.cmp)
		if newSize == size {
			ctx.release(t.bpm)
			return false, nil
		}
		ctx.dirty = true

		if newSize == leaf.maxSize() {
			if err := t.splitLeaf(leaf, ctx); err != nil {
				ctx.release(t.bpm)
				return false, err
			}
		}
		ctx.release(t.bpm)
		return true, nil
	}
}

// startNewTree creates a root leaf holding the first entry. It returns
// false when a concurrent writer already created the root.
func (t *BPlusTree) startNewTree(key int64, value primitives.RID) (bool, error) {
	t.rootMu.Lock()
	if t.rootPageID != primitives.InvalidPageID {
		t.rootMu.Unlock()
		return false, nil
	}
	page, pageID := t.bpm.NewPage()
	if page == nil {
		t.rootMu.Unlock()
		return false, fmt.Errorf("btree %q: new root: %w", t.name, dberr.ErrOutOfMemory)
	}
	leaf := initLeaf(page, primitives.InvalidPageID, t.leafMaxSize)
	leaf.insert(key, value, t.cmp)
	t.rootPageID = pageID
	t.writeHeaderRoot(pageID)
	t.rootMu.Unlock()

	t.bpm.UnpinPage(pageID, true)
	logging.Debug("started new tree", zap.String("index", t.name), zap.Int32("root", int32(pageID)))
	return true, nil
}

// findLeafWrite crabs from the root to the leaf that owns key, write-latching
// each page and releasing ancestors once a child is safe for op. The latched
// path is recorded in ctx. The boolean result is false when the tree is
// empty.
func (t *BPlusTree) findLeafWrite(key int64, op opType, ctx *opContext) (leafPage, bool, error) {
	var page *buffer.Page
	for {
		rootID := t.RootPageID()
		if rootID == primitives.InvalidPageID {
			return leafPage{}, false, nil
		}
		page = t.bpm.FetchPage(rootID)
		if page == nil {
			return leafPage{}, false, fmt.Errorf("btree %q: fetch root: %w", t.name, dberr.ErrOutOfMemory)
		}
		page.WLatch()
		if t.RootPageID() == rootID {
			break
		}
		// Root changed underneath us; retry with the new one.
		page.WUnlatch()
		t.bpm.UnpinPage(rootID, false)
	}
	ctx.addLatched(page)

	node := nodePage{page: page}
	for !node.isLeaf() {
		childID := asInternal(page).lookup(key, t.cmp)
		child := t.bpm.FetchPage(childID)
		if child == nil {
			return leafPage{}, false, fmt.Errorf("btree %q: fetch page %d: %w", t.name, childID, dberr.ErrOutOfMemory)
		}
		child.WLatch()
		ctx.addLatched(child)
		if t.isSafe(nodePage{page: child}, op) {
			ctx.releaseAllButLast(t.bpm)
		}
		page = child
		node = nodePage{page: page}
	}
	return asLeaf(page), true, nil
}

// isSafe reports whether node can absorb op without splitting or
// underflowing, which lets the crabbing descent drop all ancestor latches.
func (t *BPlusTree) isSafe(node nodePage, op opType) bool {
	if op == opInsert {
		if node.isLeaf() {
			return node.size()+1 < node.maxSize()
		}
		return node.size()+1 <= node.maxSize()
	}
	// Deletion: the root underflows by its own rules.
	if node.isRoot() {
		if node.isLeaf() {
			return node.size() > 1
		}
		return node.size() > 2
	}
	return node.size() > node.minSize()
}

// splitLeaf moves the upper half of leaf into a fresh sibling, links the
// sibling into the leaf chain and pushes the separator key to the parent.
func (t *BPlusTree) splitLeaf(leaf leafPage, ctx *opContext) error {
	popupKey := leaf.keyAt(leaf.size() / 2)

	page, pageID := t.bpm.NewPage()
	if page == nil {
		return fmt.Errorf("btree %q: split leaf: %w", t.name, dberr.ErrOutOfMemory)
	}
	page.WLatch()
	ctx.addLatched(page)
	sibling := initLeaf(page, leaf.parent(), t.leafMaxSize)

	leaf.moveHalfTo(sibling)
	sibling.setNextPageID(leaf.nextPageID())
	leaf.setNextPageID(pageID)

	return t.insertIntoParent(leaf.nodePage, popupKey, sibling.nodePage, ctx)
}

// splitInternal moves the upper half of node into a fresh sibling,
// reparenting the migrated children, and pushes the separator key up.
func (t *BPlusTree) splitInternal(node internalPage, ctx *opContext) error {
	popupKey := node.keyAt(node.size() / 2)

	page, _ := t.bpm.NewPage()
	if page == nil {
		return fmt.Errorf("btree %q: split internal: %w", t.name, dberr.ErrOutOfMemory)
	}
	page.WLatch()
	ctx.addLatched(page)
	sibling := initInternal(page, node.parent(), t.internalMaxSize)

	if err := node.moveHalfTo(sibling, t.adopt); err != nil {
		return err
	}
	return t.insertIntoParent(node.nodePage, popupKey, sibling.nodePage, ctx)
}

// insertIntoParent records that old was split and newNode now holds the keys
// at and above key. A root split grows the tree by one level.
func (t *BPlusTree) insertIntoParent(old nodePage, key int64, newNode nodePage, ctx *opContext) error {
	if old.isRoot() {
		page, pageID := t.bpm.NewPage()
		if page == nil {
			return fmt.Errorf("btree %q: grow root: %w", t.name, dberr.ErrOutOfMemory)
		}
		root := initInternal(page, primitives.InvalidPageID, t.internalMaxSize)
		root.populateNewRoot(old.pageID(), key, newNode.pageID())
		old.setParent(pageID)
		newNode.setParent(pageID)
		t.bpm.UnpinPage(pageID, true)
		t.setRoot(pageID)
		return nil
	}

	parentPage := ctx.latchedPage(old.parent())
	parent := asInternal(parentPage)
	newSize := parent.insertNodeAfter(old.pageID(), key, newNode.pageID())
	if newSize > parent.maxSize() {
		return t.splitInternal(parent, ctx)
	}
	return nil
}

// adopt points child's parent pointer at parent. Used when entries migrate
// between internal pages; the subtree is latched above, so touching the
// child without its own latch is safe.
func (t *BPlusTree) adopt(childID, parentID primitives.PageID) error {
	page := t.bpm.FetchPage(childID)
	if page == nil {
		return fmt.Errorf("btree %q: adopt page %d: %w", t.name, childID, dberr.ErrOutOfMemory)
	}
	(nodePage{page: page}).setParent(parentID)
	t.bpm.UnpinPage(childID, true)
	return nil
}
