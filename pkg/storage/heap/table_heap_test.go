package heap

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/concurrency/lock"
	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/encoding"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
	"github.com/Ou-Rui/my-bustub/pkg/storage/disk"
)

func newTestHeap(t *testing.T) *TableHeap {
	t.Helper()
	bpm := buffer.NewBufferPoolManager(32, disk.NewMemManager())
	h, err := NewTableHeap(bpm, nil)
	require.NoError(t, err)
	return h
}

func TestTableHeapInsertAndGet(t *testing.T) {
	h := newTestHeap(t)

	rid, err := h.InsertTuple(encoding.EncodeRow(1, "alpha"), nil)
	require.NoError(t, err)

	data, err := h.GetTuple(rid, nil)
	require.NoError(t, err)
	key, value, err := encoding.DecodeRow(data)
	require.NoError(t, err)
	assert.Equal(t, int64(1), key)
	assert.Equal(t, "alpha", value)
}

func TestTableHeapRejectsOversizedTuple(t *testing.T) {
	h := newTestHeap(t)
	_, err := h.InsertTuple(make([]byte, primitives.PageSize), nil)
	assert.Error(t, err)
}

func TestTableHeapUpdateKeepsRID(t *testing.T) {
	h := newTestHeap(t)

	rid, err := h.InsertTuple(encoding.EncodeRow(1, "before"), nil)
	require.NoError(t, err)

	require.NoError(t, h.UpdateTuple(rid, encoding.EncodeRow(1, "after, and longer"), nil))
	data, err := h.GetTuple(rid, nil)
	require.NoError(t, err)
	_, value, err := encoding.DecodeRow(data)
	require.NoError(t, err)
	assert.Equal(t, "after, and longer", value)
}

func TestTableHeapDeleteLifecycle(t *testing.T) {
	h := newTestHeap(t)

	rid, err := h.InsertTuple(encoding.EncodeRow(1, "doomed"), nil)
	require.NoError(t, err)

	require.NoError(t, h.MarkDelete(rid, nil))
	_, err = h.GetTuple(rid, nil)
	assert.Error(t, err, "marked tuple is invisible")

	require.NoError(t, h.RollbackDelete(rid, nil))
	_, err = h.GetTuple(rid, nil)
	assert.NoError(t, err, "rollback revives the tuple")

	require.NoError(t, h.MarkDelete(rid, nil))
	require.NoError(t, h.ApplyDelete(rid, nil))
	_, err = h.GetTuple(rid, nil)
	assert.Error(t, err)
	assert.Error(t, h.RollbackDelete(rid, nil), "applied delete cannot be rolled back")
}

func TestTableHeapSlotReuseAfterApplyDelete(t *testing.T) {
	h := newTestHeap(t)

	first, err := h.InsertTuple(encoding.EncodeRow(1, "one"), nil)
	require.NoError(t, err)
	_, err = h.InsertTuple(encoding.EncodeRow(2, "two"), nil)
	require.NoError(t, err)

	require.NoError(t, h.MarkDelete(first, nil))
	require.NoError(t, h.ApplyDelete(first, nil))

	third, err := h.InsertTuple(encoding.EncodeRow(3, "three"), nil)
	require.NoError(t, err)
	assert.Equal(t, first, third, "freed slot is reused")

	data, err := h.GetTuple(third, nil)
	require.NoError(t, err)
	key, _, err := encoding.DecodeRow(data)
	require.NoError(t, err)
	assert.Equal(t, int64(3), key)
}

func TestTableHeapGrowsPageChain(t *testing.T) {
	h := newTestHeap(t)

	// Large rows force multiple pages.
	payload := make([]byte, 1000)
	var rids []primitives.RID
	for i := 0; i < 20; i++ {
		rid, err := h.InsertTuple(payload, nil)
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	pages := make(map[primitives.PageID]bool)
	for _, rid := range rids {
		pages[rid.PageID] = true
	}
	assert.Greater(t, len(pages), 1, "inserts should spill onto further pages")

	for _, rid := range rids {
		data, err := h.GetTuple(rid, nil)
		require.NoError(t, err)
		assert.Len(t, data, 1000)
	}
}

func TestTableHeapIterator(t *testing.T) {
	h := newTestHeap(t)

	inserted := make(map[primitives.RID]int64)
	for i := int64(0); i < 50; i++ {
		rid, err := h.InsertTuple(encoding.EncodeRow(i, fmt.Sprintf("row-%d", i)), nil)
		require.NoError(t, err)
		inserted[rid] = i
	}

	// Delete a few and expect the iterator to skip them.
	var deleted primitives.RID
	for rid, key := range inserted {
		if key == 25 {
			deleted = rid
			require.NoError(t, h.MarkDelete(rid, nil))
		}
	}

	it, err := h.Iterator(nil)
	require.NoError(t, err)
	seen := make(map[primitives.RID]bool)
	for it.Valid() {
		require.NotEqual(t, deleted, it.RID())
		key, _, err := encoding.DecodeRow(it.Tuple())
		require.NoError(t, err)
		assert.Equal(t, inserted[it.RID()], key)
		seen[it.RID()] = true
		require.NoError(t, it.Next())
	}
	assert.Len(t, seen, 49)
}

func TestTableHeapEmptyIterator(t *testing.T) {
	h := newTestHeap(t)
	it, err := h.Iterator(nil)
	require.NoError(t, err)
	assert.False(t, it.Valid())
	require.NoError(t, it.Next())
}

func TestTableHeapLockingReadsAndWrites(t *testing.T) {
	bpm := buffer.NewBufferPoolManager(32, disk.NewMemManager())
	lm := lock.NewManager(0)
	t.Cleanup(lm.Close)
	reg := transaction.NewRegistry(lm)

	h, err := NewTableHeap(bpm, lm)
	require.NoError(t, err)

	writer := reg.Begin(transaction.RepeatableRead)
	rid, err := h.InsertTuple(encoding.EncodeRow(1, "locked"), writer)
	require.NoError(t, err)
	assert.True(t, writer.IsExclusiveLocked(rid))
	reg.Commit(writer)
	assert.False(t, writer.IsExclusiveLocked(rid))

	reader := reg.Begin(transaction.RepeatableRead)
	_, err = h.GetTuple(rid, reader)
	require.NoError(t, err)
	assert.True(t, reader.IsSharedLocked(rid))

	// An update by the same transaction upgrades the shared lock.
	require.NoError(t, h.UpdateTuple(rid, encoding.EncodeRow(1, "upgraded"), reader))
	assert.True(t, reader.IsExclusiveLocked(rid))
	assert.False(t, reader.IsSharedLocked(rid))
	reg.Commit(reader)
}

func TestTableHeapConcurrentInserts(t *testing.T) {
	bpm := buffer.NewBufferPoolManager(64, disk.NewMemManager())
	h, err := NewTableHeap(bpm, nil)
	require.NoError(t, err)

	const workers = 8
	const perWorker = 100

	rids := make([][]primitives.RID, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				key := int64(w*perWorker + i)
				rid, err := h.InsertTuple(encoding.EncodeRow(key, "x"), nil)
				if err != nil {
					return err
				}
				rids[w] = append(rids[w], rid)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Every insert got a distinct record id and is readable.
	all := make(map[primitives.RID]bool)
	for w := 0; w < workers; w++ {
		for i, rid := range rids[w] {
			require.False(t, all[rid], "duplicate rid %s", rid)
			all[rid] = true
			data, err := h.GetTuple(rid, nil)
			require.NoError(t, err)
			key, _, err := encoding.DecodeRow(data)
			require.NoError(t, err)
			require.Equal(t, int64(w*perWorker+i), key)
		}
	}
	assert.Len(t, all, workers*perWorker)
}

func TestTableHeapReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.db")
	dm, err := disk.NewFileManager(path)
	require.NoError(t, err)

	bpm := buffer.NewBufferPoolManager(16, dm)
	h, err := NewTableHeap(bpm, nil)
	require.NoError(t, err)

	var rids []primitives.RID
	for i := 0; i < 20; i++ {
		rid, err := h.InsertTuple(encoding.EncodeRow(int64(i), fmt.Sprintf("row-%d", i)), nil)
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	firstPageID := h.FirstPageID()
	bpm.FlushAllPages()
	require.NoError(t, dm.Close())

	dm2, err := disk.NewFileManager(path)
	require.NoError(t, err)
	defer dm2.Close()
	reopened := OpenTableHeap(buffer.NewBufferPoolManager(16, dm2), nil, firstPageID)
	require.Equal(t, firstPageID, reopened.FirstPageID())

	for i, rid := range rids {
		data, err := reopened.GetTuple(rid, nil)
		require.NoError(t, err)
		key, value, err := encoding.DecodeRow(data)
		require.NoError(t, err)
		assert.Equal(t, int64(i), key)
		assert.Equal(t, fmt.Sprintf("row-%d", i), value)
	}
}
