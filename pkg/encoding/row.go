// Package encoding holds the fixed little-endian row codec used by the
// demo workload and tests: an int64 key followed by a length-prefixed
// string payload.
package encoding

import (
	"encoding/binary"
	"fmt"
)

// EncodeRow serializes a key and payload into a heap tuple.
func EncodeRow(key int64, value string) []byte {
	buf := make([]byte, 8+4+len(value))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(key))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(value)))
	copy(buf[12:], value)
	return buf
}

// DecodeRow parses a tuple produced by EncodeRow.
func DecodeRow(data []byte) (int64, string, error) {
	if len(data) < 12 {
		return 0, "", fmt.Errorf("row too short: %d bytes", len(data))
	}
	key := int64(binary.LittleEndian.Uint64(data[0:8]))
	n := binary.LittleEndian.Uint32(data[8:12])
	if uint32(len(data)-12) < n {
		return 0, "", fmt.Errorf("row payload truncated: want %d bytes, have %d", n, len(data)-12)
	}
	return key, string(data[12 : 12+n]), nil
}
