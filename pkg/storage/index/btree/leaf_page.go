package btree

import (
	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// leafPage views a page as a leaf node: an ordered array of (key, RID)
// pairs plus a next-leaf pointer chaining leaves left to right.
type leafPage struct {
	nodePage
}

func asLeaf(page *buffer.Page) leafPage {
	return leafPage{asNode(page)}
}

func initLeaf(page *buffer.Page, parent primitives.PageID, maxSize int) leafPage {
	leaf := asLeaf(page)
	leaf.writeInt32(offPageType, pageTypeLeaf)
	leaf.setSize(0)
	leaf.writeInt32(offMaxSize, int32(maxSize))
	leaf.setParent(parent)
	leaf.setNextPageID(primitives.InvalidPageID)
	return leaf
}

func (l leafPage) nextPageID() primitives.PageID {
	return primitives.PageID(l.readInt32(offNextPage))
}

func (l leafPage) setNextPageID(pageID primitives.PageID) {
	l.writeInt32(offNextPage, int32(pageID))
}

func (l leafPage) keyAt(index int) int64 {
	return l.readInt64(entryOffset(index))
}

func (l leafPage) valueAt(index int) primitives.RID {
	off := entryOffset(index) + 8
	return primitives.RID{
		PageID:  primitives.PageID(l.readInt32(off)),
		SlotNum: uint32(l.readInt32(off + 4)),
	}
}

func (l leafPage) setEntryAt(index int, key int64, value primitives.RID) {
	off := entryOffset(index)
	l.writeInt64(off, key)
	l.writeInt32(off+8, int32(value.PageID))
	l.writeInt32(off+12, int32(value.SlotNum))
}

func (l leafPage) copyEntry(dst int, src int) {
	l.setEntryAt(dst, l.keyAt(src), l.valueAt(src))
}

// keyIndex returns the index of the first key >= the given key, or size()
// when every key is smaller. Binary search.
func (l leafPage) keyIndex(key int64, cmp Comparator) int {
	left, right := 0, l.size()
	for left < right {
		mid := left + (right-left)/2
		if cmp(l.keyAt(mid), key) < 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// lookup binary-searches for an exact key match.
func (l leafPage) lookup(key int64, cmp Comparator) (primitives.RID, bool) {
	index := l.keyIndex(key, cmp)
	if index < l.size() && cmp(l.keyAt(index), key) == 0 {
		return l.valueAt(index), true
	}
	return primitives.RID{}, false
}

// insert places the pair in sorted position and returns the new size. A
// duplicate key is a no-op returning the unchanged size.
func (l leafPage) insert(key int64, value primitives.RID, cmp Comparator) int {
	size := l.size()
	index := l.keyIndex(key, cmp)
	if index < size && cmp(l.keyAt(index), key) == 0 {
		return size
	}
	for i := size - 1; i >= index; i-- {
		l.copyEntry(i+1, i)
	}
	l.setEntryAt(index, key, value)
	l.setSize(size + 1)
	return size + 1
}

// remove deletes the entry with the given key, keeping entries contiguous,
// and returns the new size. Missing key is a no-op returning the unchanged
// size.
func (l leafPage) remove(key int64, cmp Comparator) int {
	size := l.size()
	index := l.keyIndex(key, cmp)
	if index >= size || cmp(l.keyAt(index), key) != 0 {
		return size
	}
	for i := index + 1; i < size; i++ {
		l.copyEntry(i-1, i)
	}
	l.setSize(size - 1)
	return size - 1
}

// moveHalfTo moves the upper half of entries to an empty recipient, which
// becomes the right sibling.
func (l leafPage) moveHalfTo(recipient leafPage) {
	size := l.size()
	mid := size / 2
	for i := mid; i < size; i++ {
		recipient.setEntryAt(i-mid, l.keyAt(i), l.valueAt(i))
	}
	recipient.setSize(size - mid)
	l.setSize(mid)
}

// moveAllTo appends every entry to the recipient, which must lie to the
// left, and passes on the next-leaf pointer.
func (l leafPage) moveAllTo(recipient leafPage) {
	size := l.size()
	recSize := recipient.size()
	for i := 0; i < size; i++ {
		recipient.setEntryAt(recSize+i, l.keyAt(i), l.valueAt(i))
	}
	recipient.setSize(recSize + size)
	l.setSize(0)
	recipient.setNextPageID(l.nextPageID())
}

// moveFirstToEndOf shifts this page's first entry onto the recipient's
// tail. The recipient is the left neighbor.
func (l leafPage) moveFirstToEndOf(recipient leafPage) {
	firstKey, firstVal := l.keyAt(0), l.valueAt(0)
	size := l.size()
	for i := 1; i < size; i++ {
		l.copyEntry(i-1, i)
	}
	l.setSize(size - 1)

	recipient.setEntryAt(recipient.size(), firstKey, firstVal)
	recipient.setSize(recipient.size() + 1)
}

// moveLastToFrontOf shifts this page's last entry onto the recipient's
// head. The recipient is the right neighbor.
func (l leafPage) moveLastToFrontOf(recipient leafPage) {
	size := l.size()
	lastKey, lastVal := l.keyAt(size-1), l.valueAt(size-1)
	l.setSize(size - 1)

	recSize := recipient.size()
	for i := recSize - 1; i >= 0; i-- {
		recipient.copyEntry(i+1, i)
	}
	recipient.setEntryAt(0, lastKey, lastVal)
	recipient.setSize(recSize + 1)
}
