// Package btree implements a concurrent B+Tree index whose nodes live in
// buffer-pool pages. Node content is raw serialized bytes interpreted
// through typed wrappers: a shared header prefix carries a type tag, sizes
// and the parent pointer; leaf and internal wrappers add their own layouts
// on top. Dispatch is on the tag, never on live objects, because any page
// may be evicted and reloaded between operations.
package btree

import (
	"encoding/binary"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Page byte layout (little endian).
//
// Common header (both node kinds):
//
//	[0:4)   page type tag (int32): 1 = leaf, 2 = internal
//	[4:8)   size (int32): entries in a leaf, child pointers in an internal
//	[8:12)  max size (int32)
//	[12:16) parent page id (int32), InvalidPageID at the root
//
// Leaf only:
//
//	[16:20) next leaf page id (int32), InvalidPageID at the rightmost leaf
//
// Entries for both kinds start at offset 24 with a 16-byte stride:
//
//	leaf:     key (int64) + value RID (page id int32, slot uint32)
//	internal: key (int64) + child page id (int32) + 4 bytes padding
//
// An internal node's key at index 0 is a placeholder and never meaningful;
// its value is the leftmost child.
const (
	pageTypeInvalid  int32 = 0
	pageTypeLeaf     int32 = 1
	pageTypeInternal int32 = 2

	offPageType = 0
	offSize     = 4
	offMaxSize  = 8
	offParent   = 12
	offNextPage = 16

	entriesStart = 24
	entrySize    = 16

	// nodeCapacity is the hard bound on entries per page.
	nodeCapacity = (primitives.PageSize - entriesStart) / entrySize

	// DefaultLeafMaxSize allows a leaf to fill the page; a leaf holds at
	// most max-1 entries between operations (it splits upon reaching max).
	DefaultLeafMaxSize = nodeCapacity

	// DefaultInternalMaxSize leaves headroom for the transient max+1
	// pointers an internal node holds mid-split.
	DefaultInternalMaxSize = nodeCapacity - 1
)

// nodePage is the common prefix view shared by both node kinds.
type nodePage struct {
	page *buffer.Page
}

func asNode(page *buffer.Page) nodePage {
	return nodePage{page: page}
}

func (n nodePage) data() []byte {
	return n.page.Data()
}

func (n nodePage) pageID() primitives.PageID {
	return n.page.PageID()
}

func (n nodePage) isLeaf() bool {
	return n.readInt32(offPageType) == pageTypeLeaf
}

func (n nodePage) size() int {
	return int(n.readInt32(offSize))
}

func (n nodePage) setSize(size int) {
	n.writeInt32(offSize, int32(size))
}

func (n nodePage) maxSize() int {
	return int(n.readInt32(offMaxSize))
}

// minSize is the underflow threshold. The root is exempt. Internal nodes
// round up so that a non-root internal node always keeps at least two
// children; leaves round down because a leaf at max splits around size/2 and
// the smaller half must still be legal.
func (n nodePage) minSize() int {
	if n.isLeaf() {
		return n.maxSize() / 2
	}
	return (n.maxSize() + 1) / 2
}

func (n nodePage) parent() primitives.PageID {
	return primitives.PageID(n.readInt32(offParent))
}

func (n nodePage) setParent(pageID primitives.PageID) {
	n.writeInt32(offParent, int32(pageID))
}

func (n nodePage) isRoot() bool {
	return n.parent() == primitives.InvalidPageID
}

func (n nodePage) readInt32(off int) int32 {
	return int32(binary.LittleEndian.Uint32(n.data()[off : off+4]))
}

func (n nodePage) writeInt32(off int, v int32) {
	binary.LittleEndian.PutUint32(n.data()[off:off+4], uint32(v))
}

func (n nodePage) readInt64(off int) int64 {
	return int64(binary.LittleEndian.Uint64(n.data()[off : off+8]))
}

func (n nodePage) writeInt64(off int, v int64) {
	binary.LittleEndian.PutUint64(n.data()[off:off+8], uint64(v))
}

func entryOffset(index int) int {
	return entriesStart + index*entrySize
}
