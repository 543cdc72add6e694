package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowRoundTrip(t *testing.T) {
	data := EncodeRow(-42, "hello world")
	key, value, err := DecodeRow(data)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), key)
	assert.Equal(t, "hello world", value)
}

func TestDecodeRowRejectsGarbage(t *testing.T) {
	_, _, err := DecodeRow([]byte{1, 2, 3})
	assert.Error(t, err)

	// Length prefix larger than the payload.
	data := EncodeRow(1, "abc")
	_, _, err = DecodeRow(data[:len(data)-1])
	assert.Error(t, err)
}
