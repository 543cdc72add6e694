package btree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
	"github.com/Ou-Rui/my-bustub/pkg/storage/disk"
)

func newTestTree(t *testing.T, leafMax, internalMax int) (*BPlusTree, *buffer.BufferPoolManager) {
	t.Helper()
	bpm := buffer.NewBufferPoolManager(64, disk.NewMemManager())
	tree, err := NewBPlusTree("test_index", bpm, Int64Comparator, leafMax, internalMax)
	require.NoError(t, err)
	return tree, bpm
}

func ridFor(key int64) primitives.RID {
	return primitives.NewRID(primitives.PageID(key>>16), uint32(key&0xffff))
}

func insertKeys(t *testing.T, tree *BPlusTree, keys []int64) {
	t.Helper()
	for _, key := range keys {
		inserted, err := tree.Insert(key, ridFor(key), nil)
		require.NoError(t, err)
		require.True(t, inserted, "key %d", key)
	}
}

func verifyKeys(t *testing.T, tree *BPlusTree, keys []int64) {
	t.Helper()
	for _, key := range keys {
		rid, found, err := tree.GetValue(key, nil)
		require.NoError(t, err)
		require.True(t, found, "key %d", key)
		require.Equal(t, ridFor(key), rid, "key %d", key)
	}
}

func TestBPlusTreeEmpty(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	assert.True(t, tree.IsEmpty())
	assert.Equal(t, primitives.InvalidPageID, tree.RootPageID())

	_, found, err := tree.GetValue(42, nil)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tree.Remove(42, nil))
}

func TestBPlusTreeInsertAndGet(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	insertKeys(t, tree, []int64{5, 3, 8, 1, 9, 7, 2, 6, 4})
	verifyKeys(t, tree, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9})

	_, found, err := tree.GetValue(10, nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBPlusTreeDuplicateInsert(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	inserted, err := tree.Insert(7, ridFor(7), nil)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = tree.Insert(7, primitives.NewRID(99, 99), nil)
	require.NoError(t, err)
	assert.False(t, inserted)

	// The original value is untouched.
	rid, found, err := tree.GetValue(7, nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ridFor(7), rid)
}

func TestBPlusTreeSequentialSplits(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	var keys []int64
	for k := int64(1); k <= 200; k++ {
		keys = append(keys, k)
	}
	insertKeys(t, tree, keys)
	verifyKeys(t, tree, keys)
}

func TestBPlusTreeRandomInsert(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)

	rng := rand.New(rand.NewSource(15445))
	keys := rng.Perm(500)
	for _, k := range keys {
		inserted, err := tree.Insert(int64(k), ridFor(int64(k)), nil)
		require.NoError(t, err)
		require.True(t, inserted)
	}
	for k := 0; k < 500; k++ {
		rid, found, err := tree.GetValue(int64(k), nil)
		require.NoError(t, err)
		require.True(t, found, "key %d", k)
		require.Equal(t, ridFor(int64(k)), rid)
	}
}

func TestBPlusTreeScanIsSorted(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	rng := rand.New(rand.NewSource(1))
	for _, k := range rng.Perm(300) {
		inserted, err := tree.Insert(int64(k), ridFor(int64(k)), nil)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	want := int64(0)
	for !it.IsEnd() {
		assert.Equal(t, want, it.Key())
		assert.Equal(t, ridFor(want), it.Value())
		want++
		require.NoError(t, it.Next())
	}
	assert.Equal(t, int64(300), want)
}

func TestBPlusTreeBeginAt(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	// Even keys only.
	for k := int64(0); k < 100; k += 2 {
		inserted, err := tree.Insert(k, ridFor(k), nil)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	// Seeking an absent odd key lands on the next even one.
	it, err := tree.BeginAt(31)
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	assert.Equal(t, int64(32), it.Key())
	it.Close()

	it, err = tree.BeginAt(98)
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	assert.Equal(t, int64(98), it.Key())
	it.Close()

	// Past the largest key.
	it, err = tree.BeginAt(99)
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
	it.Close()
}

func TestBPlusTreeDeleteAscending(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	var keys []int64
	for k := int64(1); k <= 120; k++ {
		keys = append(keys, k)
	}
	insertKeys(t, tree, keys)

	for i, key := range keys {
		require.NoError(t, tree.Remove(key, nil))
		_, found, err := tree.GetValue(key, nil)
		require.NoError(t, err)
		require.False(t, found, "key %d still present", key)
		// Everything after the deletion point survives.
		if i+1 < len(keys) {
			_, found, err = tree.GetValue(keys[i+1], nil)
			require.NoError(t, err)
			require.True(t, found)
		}
	}
	assert.True(t, tree.IsEmpty())
	assert.Equal(t, primitives.InvalidPageID, tree.RootPageID())
}

func TestBPlusTreeDeleteDescending(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	var keys []int64
	for k := int64(1); k <= 120; k++ {
		keys = append(keys, k)
	}
	insertKeys(t, tree, keys)

	for i := len(keys) - 1; i >= 0; i-- {
		require.NoError(t, tree.Remove(keys[i], nil))
		_, found, err := tree.GetValue(keys[i], nil)
		require.NoError(t, err)
		require.False(t, found)
	}
	assert.True(t, tree.IsEmpty())
}

func TestBPlusTreeDeleteRandom(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)

	rng := rand.New(rand.NewSource(7))
	perm := rng.Perm(400)
	for _, k := range perm {
		inserted, err := tree.Insert(int64(k), ridFor(int64(k)), nil)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	// Delete half in a fresh random order, keep the rest.
	order := rng.Perm(400)
	deleted := make(map[int64]bool)
	for _, k := range order[:200] {
		require.NoError(t, tree.Remove(int64(k), nil))
		deleted[int64(k)] = true
	}
	for k := int64(0); k < 400; k++ {
		_, found, err := tree.GetValue(k, nil)
		require.NoError(t, err)
		require.Equal(t, !deleted[k], found, "key %d", k)
	}

	// Removing an already-removed key is a no-op.
	require.NoError(t, tree.Remove(int64(order[0]), nil))
}

func TestBPlusTreeRemoveAbsentKey(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)
	insertKeys(t, tree, []int64{1, 2, 3})

	require.NoError(t, tree.Remove(99, nil))
	verifyKeys(t, tree, []int64{1, 2, 3})
}

func TestBPlusTreeReinsertAfterDelete(t *testing.T) {
	tree, _ := newTestTree(t, 3, 3)

	insertKeys(t, tree, []int64{1, 2, 3, 4, 5})
	require.NoError(t, tree.Remove(3, nil))

	inserted, err := tree.Insert(3, ridFor(3), nil)
	require.NoError(t, err)
	assert.True(t, inserted)
	verifyKeys(t, tree, []int64{1, 2, 3, 4, 5})
}

func TestBPlusTreeRootRecoveredFromHeader(t *testing.T) {
	bpm := buffer.NewBufferPoolManager(64, disk.NewMemManager())
	tree, err := NewBPlusTree("persistent_index", bpm, Int64Comparator, 3, 3)
	require.NoError(t, err)

	for k := int64(0); k < 50; k++ {
		inserted, err := tree.Insert(k, ridFor(k), nil)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	// A second handle over the same pool sees the same root.
	reopened, err := NewBPlusTree("persistent_index", bpm, Int64Comparator, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, tree.RootPageID(), reopened.RootPageID())
	for k := int64(0); k < 50; k++ {
		rid, found, err := reopened.GetValue(k, nil)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, ridFor(k), rid)
	}

	// Distinct index names get distinct header records.
	other, err := NewBPlusTree("other_index", bpm, Int64Comparator, 3, 3)
	require.NoError(t, err)
	assert.True(t, other.IsEmpty())
}

func TestBPlusTreeRejectsBadFanout(t *testing.T) {
	bpm := buffer.NewBufferPoolManager(8, disk.NewMemManager())

	_, err := NewBPlusTree("x", bpm, Int64Comparator, 1, 3)
	assert.Error(t, err)
	_, err = NewBPlusTree("x", bpm, Int64Comparator, 3, nodeCapacity)
	assert.Error(t, err)
	// Internal fanout 2 would permit single-child internal nodes.
	_, err = NewBPlusTree("x", bpm, Int64Comparator, 3, 2)
	assert.Error(t, err)
}

// verifyStructure walks the whole tree and asserts the occupancy invariants:
// every non-root node holds at least minSize entries, every internal node
// has at least two children, and children point back at their parent.
func verifyStructure(t *testing.T, tree *BPlusTree, bpm *buffer.BufferPoolManager) {
	t.Helper()
	rootID := tree.RootPageID()
	if rootID == primitives.InvalidPageID {
		return
	}

	var walk func(id primitives.PageID, isRoot bool)
	walk = func(id primitives.PageID, isRoot bool) {
		page := bpm.FetchPage(id)
		require.NotNil(t, page, "page %d", id)
		defer bpm.UnpinPage(id, false)

		node := nodePage{page: page}
		if !isRoot {
			require.GreaterOrEqual(t, node.size(), node.minSize(),
				"page %d holds %d entries, min is %d", id, node.size(), node.minSize())
		}
		if node.isLeaf() {
			return
		}

		internal := asInternal(page)
		require.GreaterOrEqual(t, internal.size(), 2,
			"internal page %d has fewer than two children", id)
		for i := 0; i < internal.size(); i++ {
			childID := internal.valueAt(i)
			child := bpm.FetchPage(childID)
			require.NotNil(t, child, "page %d", childID)
			require.Equal(t, id, (nodePage{page: child}).parent(),
				"page %d has a stale parent pointer", childID)
			bpm.UnpinPage(childID, false)
			walk(childID, false)
		}
	}
	walk(rootID, true)
}

func TestBPlusTreeDeleteKeepsNodesMinimallyFull(t *testing.T) {
	for _, fanout := range []int{3, 4, 5} {
		tree, bpm := newTestTree(t, fanout, fanout)

		rng := rand.New(rand.NewSource(int64(fanout)))
		n := 300
		alive := make(map[int64]bool, n)
		for _, k := range rng.Perm(n) {
			inserted, err := tree.Insert(int64(k), ridFor(int64(k)), nil)
			require.NoError(t, err)
			require.True(t, inserted)
			alive[int64(k)] = true
		}
		verifyStructure(t, tree, bpm)

		for i, k := range rng.Perm(n) {
			require.NoError(t, tree.Remove(int64(k), nil), "fanout %d key %d", fanout, k)
			delete(alive, int64(k))
			if (i+1)%25 != 0 {
				continue
			}
			verifyStructure(t, tree, bpm)
			for key := range alive {
				_, found, err := tree.GetValue(key, nil)
				require.NoError(t, err)
				require.True(t, found, "fanout %d key %d", fanout, key)
			}
		}
		verifyStructure(t, tree, bpm)
		assert.True(t, tree.IsEmpty(), "fanout %d", fanout)
	}
}
