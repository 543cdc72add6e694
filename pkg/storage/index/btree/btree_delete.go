package btree

import (
	"fmt"

	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/dberr"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Remove deletes key from the tree. Removing an absent key is a no-op.
func (t *BPlusTree) Remove(key int64, txn *transaction.Transaction) error {
	if t.RootPageID() == primitives.InvalidPageID {
		return nil
	}

	ctx := newOpContext(txn)
	leaf, ok, err := t.findLeafWrite(key, opDelete, ctx)
	if err != nil {
		ctx.release(t.bpm)
		return err
	}
	if !ok {
		return nil
	}

	size := leaf.size()
	newSize := leaf.remove(key, t.cmp)
	if newSize == size {
		ctx.release(t.bpm)
		return nil
	}
	ctx.dirty = true

	err = t.coalesceOrRedistribute(leaf.nodePage, ctx)
	ctx.release(t.bpm)
	return err
}

// coalesceOrRedistribute restores the minimum-occupancy invariant for node
// after a removal, borrowing from or merging with a sibling. Merging removes
// a separator from the parent, which may cascade upward.
func (t *BPlusTree) coalesceOrRedistribute(node nodePage, ctx *opContext) error {
	if node.isRoot() {
		return t.adjustRoot(node, ctx)
	}
	if node.size() >= node.minSize() {
		return nil
	}

	parentPage := ctx.latchedPage(node.parent())
	parent := asInternal(parentPage)
	idx := parent.valueIndex(node.pageID())
	if idx < 0 {
		panic("btree: node missing from its parent")
	}

	// Prefer the right sibling; the last child borrows from the left.
	sibIdx := idx + 1
	if sibIdx >= parent.size() {
		sibIdx = idx - 1
	}
	sibPage := t.bpm.FetchPage(parent.valueAt(sibIdx))
	if sibPage == nil {
		return fmt.Errorf("btree %q: fetch sibling: %w", t.name, dberr.ErrOutOfMemory)
	}
	sibPage.WLatch()
	ctx.addLatched(sibPage)
	sib := nodePage{page: sibPage}

	if node.isLeaf() {
		if node.size()+sib.size() >= node.maxSize() {
			t.redistributeLeaf(asLeaf(node.page), asLeaf(sibPage), parent, idx, sibIdx)
			return nil
		}
		return t.coalesceLeaf(asLeaf(node.page), asLeaf(sibPage), parent, idx, sibIdx, ctx)
	}
	if node.size()+sib.size() > node.maxSize() {
		return t.redistributeInternal(asInternal(node.page), asInternal(sibPage), parent, idx, sibIdx)
	}
	return t.coalesceInternal(asInternal(node.page), asInternal(sibPage), parent, idx, sibIdx, ctx)
}

// redistributeLeaf borrows one entry from the sibling and refreshes the
// separator key in the parent.
func (t *BPlusTree) redistributeLeaf(node, sib leafPage, parent internalPage, idx, sibIdx int) {
	if sibIdx > idx {
		sib.moveFirstToEndOf(node)
		parent.setKeyAt(sibIdx, sib.keyAt(0))
	} else {
		sib.moveLastToFrontOf(node)
		parent.setKeyAt(idx, node.keyAt(0))
	}
}

// redistributeInternal rotates one entry through the parent separator.
func (t *BPlusTree) redistributeInternal(node, sib internalPage, parent internalPage, idx, sibIdx int) error {
	if sibIdx > idx {
		middle := parent.keyAt(sibIdx)
		newSeparator := sib.keyAt(1)
		if err := sib.moveFirstToEndOf(node, middle, t.adopt); err != nil {
			return err
		}
		parent.setKeyAt(sibIdx, newSeparator)
		return nil
	}
	middle := parent.keyAt(idx)
	newSeparator := sib.keyAt(sib.size() - 1)
	if err := sib.moveLastToFrontOf(node, middle, t.adopt); err != nil {
		return err
	}
	parent.setKeyAt(idx, newSeparator)
	return nil
}

// coalesceLeaf merges the right member of the pair into the left one,
// removes the separator from the parent and schedules the emptied page for
// deletion.
func (t *BPlusTree) coalesceLeaf(node, sib leafPage, parent internalPage, idx, sibIdx int, ctx *opContext) error {
	recipient, donor, removeIdx := node, sib, sibIdx
	if sibIdx < idx {
		recipient, donor, removeIdx = sib, node, idx
	}
	donor.moveAllTo(recipient)
	parent.remove(removeIdx)
	ctx.deleted = append(ctx.deleted, donor.pageID())
	return t.coalesceOrRedistribute(parent.nodePage, ctx)
}

// coalesceInternal merges the right member into the left one, pulling the
// parent separator down between them.
func (t *BPlusTree) coalesceInternal(node, sib internalPage, parent internalPage, idx, sibIdx int, ctx *opContext) error {
	recipient, donor, removeIdx := node, sib, sibIdx
	if sibIdx < idx {
		recipient, donor, removeIdx = sib, node, idx
	}
	middle := parent.keyAt(removeIdx)
	if err := donor.moveAllTo(recipient, middle, t.adopt); err != nil {
		return err
	}
	parent.remove(removeIdx)
	ctx.deleted = append(ctx.deleted, donor.pageID())
	return t.coalesceOrRedistribute(parent.nodePage, ctx)
}

// adjustRoot handles the two cases where a deletion reshapes the top of the
// tree: the root leaf became empty, or an internal root was left with a
// single child.
func (t *BPlusTree) adjustRoot(root nodePage, ctx *opContext) error {
	if !root.isLeaf() && root.size() == 1 {
		childID := asInternal(root.page).removeAndReturnOnlyChild()
		if err := t.adopt(childID, primitives.InvalidPageID); err != nil {
			return err
		}
		ctx.deleted = append(ctx.deleted, root.pageID())
		t.setRoot(childID)
		return nil
	}
	if root.isLeaf() && root.size() == 0 {
		ctx.deleted = append(ctx.deleted, root.pageID())
		t.setRoot(primitives.InvalidPageID)
	}
	return nil
}
