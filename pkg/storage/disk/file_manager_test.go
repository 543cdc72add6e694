package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

func TestFileManagerReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileManager(path)
	require.NoError(t, err)
	defer dm.Close()

	pageID := dm.AllocatePage()
	out := make([]byte, primitives.PageSize)
	copy(out, "some page content")
	require.NoError(t, dm.WritePage(pageID, out))

	in := make([]byte, primitives.PageSize)
	require.NoError(t, dm.ReadPage(pageID, in))
	assert.Equal(t, out, in)
}

func TestFileManagerReadPastEOFZeroFills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileManager(path)
	require.NoError(t, err)
	defer dm.Close()

	pageID := dm.AllocatePage()
	buf := make([]byte, primitives.PageSize)
	for i := range buf {
		buf[i] = 0xff
	}
	require.NoError(t, dm.ReadPage(pageID, buf))
	for _, b := range buf {
		require.Zero(t, b)
	}
}

func TestFileManagerReservesHeaderPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileManager(path)
	require.NoError(t, err)
	defer dm.Close()

	first := dm.AllocatePage()
	assert.Greater(t, int32(first), int32(primitives.HeaderPageID))
}

func TestFileManagerReopenResumesAllocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	dm, err := NewFileManager(path)
	require.NoError(t, err)
	var last primitives.PageID
	buf := make([]byte, primitives.PageSize)
	for i := 0; i < 5; i++ {
		last = dm.AllocatePage()
		require.NoError(t, dm.WritePage(last, buf))
	}
	require.NoError(t, dm.Close())

	dm2, err := NewFileManager(path)
	require.NoError(t, err)
	defer dm2.Close()
	assert.Greater(t, int32(dm2.AllocatePage()), int32(last))
}

func TestFileManagerRejectsBadArguments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileManager(path)
	require.NoError(t, err)

	assert.Error(t, dm.WritePage(1, make([]byte, 10)))
	assert.Error(t, dm.ReadPage(-1, make([]byte, primitives.PageSize)))

	require.NoError(t, dm.Close())
	require.NoError(t, dm.Close(), "double close is a no-op")
	assert.Error(t, dm.ReadPage(1, make([]byte, primitives.PageSize)))
}

func TestMemManagerMirrorsFileSemantics(t *testing.T) {
	dm := NewMemManager()

	pageID := dm.AllocatePage()
	assert.Greater(t, int32(pageID), int32(primitives.HeaderPageID))

	out := make([]byte, primitives.PageSize)
	copy(out, "in memory")
	require.NoError(t, dm.WritePage(pageID, out))
	assert.Equal(t, 1, dm.NumWrittenPages())

	in := make([]byte, primitives.PageSize)
	require.NoError(t, dm.ReadPage(pageID, in))
	assert.Equal(t, out, in)

	dm.DeallocatePage(pageID)
	assert.Zero(t, dm.NumWrittenPages())
	require.NoError(t, dm.ReadPage(pageID, in))
	for _, b := range in {
		require.Zero(t, b)
	}
}
