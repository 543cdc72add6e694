package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

func TestLRUReplacerVictimOrder(t *testing.T) {
	r := NewLRUReplacer(7)

	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	r.Unpin(4)
	r.Unpin(5)
	r.Unpin(6)
	assert.Equal(t, 6, r.Size())

	for _, want := range []primitives.FrameID{1, 2, 3} {
		got, ok := r.Victim()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 3, r.Size())
}

func TestLRUReplacerPinRemoves(t *testing.T) {
	r := NewLRUReplacer(7)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	r.Pin(2)
	assert.Equal(t, 2, r.Size())

	got, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), got)
	got, ok = r.Victim()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(3), got)

	_, ok = r.Victim()
	assert.False(t, ok)
}

func TestLRUReplacerPinAbsentFrame(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Pin(99)
	assert.Equal(t, 1, r.Size())
}

func TestLRUReplacerDuplicateUnpin(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(1)
	r.Unpin(1)
	assert.Equal(t, 1, r.Size())

	got, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), got)
	_, ok = r.Victim()
	assert.False(t, ok)
}

func TestLRUReplacerCapacity(t *testing.T) {
	r := NewLRUReplacer(2)
	r.Unpin(1)
	r.Unpin(2)
	// Full: further unpins are dropped.
	r.Unpin(3)
	assert.Equal(t, 2, r.Size())

	got, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), got)
}

func TestLRUReplacerEmptyVictim(t *testing.T) {
	r := NewLRUReplacer(4)
	_, ok := r.Victim()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size())
}

func TestLRUReplacerReinsertAfterVictim(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)

	got, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, primitives.FrameID(1), got)

	// 1 was evicted, so unpinning it again makes it the newest entry.
	r.Unpin(1)
	got, ok = r.Victim()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(2), got)
	got, ok = r.Victim()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), got)
}
