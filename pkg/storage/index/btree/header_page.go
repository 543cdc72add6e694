package btree

import (
	"encoding/binary"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// headerPage views the reserved header page (page id 0) as a table of
// (index name, root page id) records. Every tree consults and updates its
// record on each root change, so a reopened file can find its roots again.
//
// Layout: record count (int32) followed by fixed-width records of
// headerNameLen name bytes (zero padded) plus an int32 root page id.
const (
	headerNameLen    = 32
	headerRecordSize = headerNameLen + 4
	headerMaxRecords = (primitives.PageSize - 4) / headerRecordSize
)

type headerPage struct {
	page *buffer.Page
}

func asHeader(page *buffer.Page) headerPage {
	return headerPage{page: page}
}

func (h headerPage) recordCount() int {
	return int(int32(binary.LittleEndian.Uint32(h.page.Data()[0:4])))
}

func (h headerPage) setRecordCount(count int) {
	binary.LittleEndian.PutUint32(h.page.Data()[0:4], uint32(count))
}

func (h headerPage) recordOffset(index int) int {
	return 4 + index*headerRecordSize
}

func (h headerPage) nameAt(index int) string {
	off := h.recordOffset(index)
	raw := h.page.Data()[off : off+headerNameLen]
	end := 0
	for end < headerNameLen && raw[end] != 0 {
		end++
	}
	return string(raw[:end])
}

func (h headerPage) rootAt(index int) primitives.PageID {
	off := h.recordOffset(index) + headerNameLen
	return primitives.PageID(int32(binary.LittleEndian.Uint32(h.page.Data()[off : off+4])))
}

func (h headerPage) setRootAt(index int, rootPageID primitives.PageID) {
	off := h.recordOffset(index) + headerNameLen
	binary.LittleEndian.PutUint32(h.page.Data()[off:off+4], uint32(rootPageID))
}

func (h headerPage) find(name string) int {
	for i := 0; i < h.recordCount(); i++ {
		if h.nameAt(i) == name {
			return i
		}
	}
	return -1
}

// insertRecord appends a (name, root) record. Fails if the name already
// exists, is too long, or the page is full.
func (h headerPage) insertRecord(name string, rootPageID primitives.PageID) bool {
	if len(name) > headerNameLen || h.find(name) >= 0 {
		return false
	}
	count := h.recordCount()
	if count >= headerMaxRecords {
		return false
	}

	off := h.recordOffset(count)
	raw := h.page.Data()[off : off+headerNameLen]
	for i := range raw {
		raw[i] = 0
	}
	copy(raw, name)
	h.setRootAt(count, rootPageID)
	h.setRecordCount(count + 1)
	return true
}

// updateRecord rewrites the root page id of an existing record.
func (h headerPage) updateRecord(name string, rootPageID primitives.PageID) bool {
	index := h.find(name)
	if index < 0 {
		return false
	}
	h.setRootAt(index, rootPageID)
	return true
}

// getRootID looks up the root page id recorded for an index name.
func (h headerPage) getRootID(name string) (primitives.PageID, bool) {
	index := h.find(name)
	if index < 0 {
		return primitives.InvalidPageID, false
	}
	return h.rootAt(index), true
}
