package btree

import (
	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// internalPage views a page as an internal node: an ordered array of
// (key, child page id) pairs. The key at index 0 is a placeholder; its
// child covers every key less than the key at index 1.
type internalPage struct {
	nodePage
}

func asInternal(page *buffer.Page) internalPage {
	return internalPage{asNode(page)}
}

func initInternal(page *buffer.Page, parent primitives.PageID, maxSize int) internalPage {
	node := asInternal(page)
	node.writeInt32(offPageType, pageTypeInternal)
	node.setSize(0)
	node.writeInt32(offMaxSize, int32(maxSize))
	node.setParent(parent)
	return node
}

func (n internalPage) keyAt(index int) int64 {
	return n.readInt64(entryOffset(index))
}

func (n internalPage) setKeyAt(index int, key int64) {
	n.writeInt64(entryOffset(index), key)
}

func (n internalPage) valueAt(index int) primitives.PageID {
	return primitives.PageID(n.readInt32(entryOffset(index) + 8))
}

func (n internalPage) setValueAt(index int, pageID primitives.PageID) {
	n.writeInt32(entryOffset(index)+8, int32(pageID))
}

func (n internalPage) setEntryAt(index int, key int64, value primitives.PageID) {
	n.setKeyAt(index, key)
	n.setValueAt(index, value)
}

func (n internalPage) copyEntry(dst int, src int) {
	n.setEntryAt(dst, n.keyAt(src), n.valueAt(src))
}

// valueIndex returns the index whose child pointer equals the given page
// id, or -1.
func (n internalPage) valueIndex(pageID primitives.PageID) int {
	for i := 0; i < n.size(); i++ {
		if n.valueAt(i) == pageID {
			return i
		}
	}
	return -1
}

// lookup returns the child covering the key: binary-search for the first
// key strictly greater than the target and take the child to its left. The
// search starts at index 1 because index 0 holds the placeholder key.
func (n internalPage) lookup(key int64, cmp Comparator) primitives.PageID {
	left, right := 1, n.size()
	for left < right {
		mid := left + (right-left)/2
		if cmp(n.keyAt(mid), key) <= 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return n.valueAt(left - 1)
}

// populateNewRoot sets up a freshly allocated root with two children
// separated by key.
func (n internalPage) populateNewRoot(left primitives.PageID, key int64, right primitives.PageID) {
	n.setEntryAt(0, 0, left)
	n.setEntryAt(1, key, right)
	n.setSize(2)
}

// insertNodeAfter places (key, newValue) immediately after the entry whose
// child is oldValue, returning the new size.
func (n internalPage) insertNodeAfter(oldValue primitives.PageID, key int64, newValue primitives.PageID) int {
	size := n.size()
	index := n.valueIndex(oldValue)
	if index < 0 {
		return size
	}
	for i := size - 1; i > index; i-- {
		n.copyEntry(i+1, i)
	}
	n.setEntryAt(index+1, key, newValue)
	n.setSize(size + 1)
	return size + 1
}

// remove deletes the entry at index, keeping entries contiguous.
func (n internalPage) remove(index int) {
	size := n.size()
	for i := index + 1; i < size; i++ {
		n.copyEntry(i-1, i)
	}
	n.setSize(size - 1)
}

// removeAndReturnOnlyChild empties a root that has collapsed to a single
// child and returns that child.
func (n internalPage) removeAndReturnOnlyChild() primitives.PageID {
	child := n.valueAt(0)
	n.setSize(0)
	return child
}

// adoptFunc reparents a child page; the tree supplies an implementation
// backed by the buffer pool since children are page-id references, not
// pointers.
type adoptFunc func(child primitives.PageID, parent primitives.PageID) error

// moveHalfTo moves the upper half of entries to an empty recipient and
// reparents the moved children. The recipient's first key becomes the
// placeholder.
func (n internalPage) moveHalfTo(recipient internalPage, adopt adoptFunc) error {
	size := n.size()
	mid := size / 2
	for i := mid; i < size; i++ {
		recipient.setEntryAt(i-mid, n.keyAt(i), n.valueAt(i))
		if err := adopt(n.valueAt(i), recipient.pageID()); err != nil {
			return err
		}
	}
	recipient.setSize(size - mid)
	n.setSize(mid)
	recipient.setKeyAt(0, 0)
	return nil
}

// moveAllTo appends every entry to the left-neighbor recipient, filling the
// placeholder slot with the separator key pulled down from the parent.
func (n internalPage) moveAllTo(recipient internalPage, middleKey int64, adopt adoptFunc) error {
	n.setKeyAt(0, middleKey)
	size := n.size()
	recSize := recipient.size()
	for i := 0; i < size; i++ {
		recipient.setEntryAt(recSize+i, n.keyAt(i), n.valueAt(i))
		if err := adopt(n.valueAt(i), recipient.pageID()); err != nil {
			return err
		}
	}
	recipient.setSize(recSize + size)
	n.setSize(0)
	return nil
}

// moveFirstToEndOf shifts the first entry onto the left-neighbor
// recipient's tail. middleKey is the parent separator between recipient and
// this node; it becomes the moved entry's key.
func (n internalPage) moveFirstToEndOf(recipient internalPage, middleKey int64, adopt adoptFunc) error {
	child := n.valueAt(0)
	recipient.setEntryAt(recipient.size(), middleKey, child)
	recipient.setSize(recipient.size() + 1)
	if err := adopt(child, recipient.pageID()); err != nil {
		return err
	}

	size := n.size()
	for i := 1; i < size; i++ {
		n.copyEntry(i-1, i)
	}
	n.setSize(size - 1)
	n.setKeyAt(0, 0)
	return nil
}

// moveLastToFrontOf shifts the last entry onto the right-neighbor
// recipient's head. middleKey is the parent separator between this node and
// the recipient; it lands at the recipient's index 1.
func (n internalPage) moveLastToFrontOf(recipient internalPage, middleKey int64, adopt adoptFunc) error {
	size := n.size()
	lastKey, lastChild := n.keyAt(size-1), n.valueAt(size-1)
	n.setSize(size - 1)

	recSize := recipient.size()
	recipient.setKeyAt(0, middleKey)
	for i := recSize - 1; i >= 0; i-- {
		recipient.copyEntry(i+1, i)
	}
	recipient.setEntryAt(0, lastKey, lastChild)
	recipient.setKeyAt(0, 0)
	recipient.setSize(recSize + 1)
	return adopt(lastChild, recipient.pageID())
}
