package heap

import (
	"encoding/binary"

	"github.com/Ou-Rui/my-bustub/pkg/buffer"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// Slotted page layout. The header and slot array grow forward from the
// start of the page; tuple data grows backward from the end.
//
//	| prev | next | freeSpacePtr | slotCount | slot 0 | slot 1 | ... |
//	|              ...free space...                                  |
//	|                  ... tuple data (grows backward) ...           |
//
// Each slot is an (offset, size) pair. A slot with offset 0 is free; a
// size with the high bit set marks a tuple deleted but not yet reclaimed.
const (
	offPrevPage   = 0
	offNextPage   = 4
	offFreeSpace  = 8
	offSlotCount  = 12
	slotsStart    = 16
	slotEntrySize = 8

	deletedMask uint32 = 1 << 31
)

// tablePage is a typed view over a pinned buffer page holding tuples.
// Callers hold the page latch; the wrapper itself does no locking.
type tablePage struct {
	page *buffer.Page
}

func asTablePage(page *buffer.Page) tablePage {
	return tablePage{page: page}
}

// initTablePage formats a fresh page: empty slot array, free space pointer
// at the end of the page.
func initTablePage(page *buffer.Page, prev primitives.PageID) tablePage {
	p := tablePage{page: page}
	p.setPrevPageID(prev)
	p.setNextPageID(primitives.InvalidPageID)
	p.setFreeSpacePointer(primitives.PageSize)
	p.setSlotCount(0)
	return p
}

func (p tablePage) data() []byte {
	return p.page.Data()
}

func (p tablePage) pageID() primitives.PageID {
	return p.page.PageID()
}

func (p tablePage) readU32(off int) uint32 {
	return binary.LittleEndian.Uint32(p.data()[off : off+4])
}

func (p tablePage) writeU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(p.data()[off:off+4], v)
}

func (p tablePage) prevPageID() primitives.PageID {
	return primitives.PageID(int32(p.readU32(offPrevPage)))
}

func (p tablePage) setPrevPageID(pageID primitives.PageID) {
	p.writeU32(offPrevPage, uint32(int32(pageID)))
}

func (p tablePage) nextPageID() primitives.PageID {
	return primitives.PageID(int32(p.readU32(offNextPage)))
}

func (p tablePage) setNextPageID(pageID primitives.PageID) {
	p.writeU32(offNextPage, uint32(int32(pageID)))
}

func (p tablePage) freeSpacePointer() uint32 {
	return p.readU32(offFreeSpace)
}

func (p tablePage) setFreeSpacePointer(ptr uint32) {
	p.writeU32(offFreeSpace, ptr)
}

func (p tablePage) slotCount() uint32 {
	return p.readU32(offSlotCount)
}

func (p tablePage) setSlotCount(count uint32) {
	p.writeU32(offSlotCount, count)
}

func (p tablePage) slotOffset(slot uint32) uint32 {
	return p.readU32(slotsStart + int(slot)*slotEntrySize)
}

func (p tablePage) slotSize(slot uint32) uint32 {
	return p.readU32(slotsStart + int(slot)*slotEntrySize + 4)
}

func (p tablePage) setSlot(slot, offset, size uint32) {
	p.writeU32(slotsStart+int(slot)*slotEntrySize, offset)
	p.writeU32(slotsStart+int(slot)*slotEntrySize+4, size)
}

// freeSpace is the gap between the end of the slot array and the start of
// tuple data.
func (p tablePage) freeSpace() uint32 {
	return p.freeSpacePointer() - uint32(slotsStart) - p.slotCount()*slotEntrySize
}

func isDeleted(size uint32) bool {
	return size&deletedMask != 0
}

func tupleSize(size uint32) uint32 {
	return size &^ deletedMask
}

// insertTuple stores data in a free slot, reusing an abandoned one when
// possible. It reports the slot used, or false when the page is full.
func (p tablePage) insertTuple(data []byte) (uint32, bool) {
	need := uint32(len(data))

	// Reuse a freed slot first.
	count := p.slotCount()
	slot := count
	for i := uint32(0); i < count; i++ {
		if p.slotOffset(i) == 0 && p.slotSize(i) == 0 {
			slot = i
			break
		}
	}

	free := p.freeSpace()
	if slot == count {
		if free < need+slotEntrySize {
			return 0, false
		}
	} else if free < need {
		return 0, false
	}

	offset := p.freeSpacePointer() - need
	copy(p.data()[offset:offset+need], data)
	p.setFreeSpacePointer(offset)
	p.setSlot(slot, offset, need)
	if slot == count {
		p.setSlotCount(count + 1)
	}
	return slot, true
}

// getTuple returns a copy of the tuple in slot. It reports false for free
// slots and tuples marked deleted.
func (p tablePage) getTuple(slot uint32) ([]byte, bool) {
	if slot >= p.slotCount() {
		return nil, false
	}
	offset, size := p.slotOffset(slot), p.slotSize(slot)
	if offset == 0 || isDeleted(size) {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, p.data()[offset:offset+size])
	return out, true
}

// markDelete flags the tuple deleted without reclaiming its space, so the
// delete can still be rolled back.
func (p tablePage) markDelete(slot uint32) bool {
	if slot >= p.slotCount() {
		return false
	}
	offset, size := p.slotOffset(slot), p.slotSize(slot)
	if offset == 0 || isDeleted(size) {
		return false
	}
	p.setSlot(slot, offset, size|deletedMask)
	return true
}

// rollbackDelete clears the deleted flag.
func (p tablePage) rollbackDelete(slot uint32) bool {
	if slot >= p.slotCount() {
		return false
	}
	offset, size := p.slotOffset(slot), p.slotSize(slot)
	if offset == 0 || !isDeleted(size) {
		return false
	}
	p.setSlot(slot, offset, tupleSize(size))
	return true
}

// applyDelete reclaims the space of a deleted (or live, during abort of an
// insert) tuple by compacting the data region and freeing the slot.
func (p tablePage) applyDelete(slot uint32) bool {
	if slot >= p.slotCount() {
		return false
	}
	offset := p.slotOffset(slot)
	if offset == 0 {
		return false
	}
	size := tupleSize(p.slotSize(slot))
	p.compactOut(slot, offset, size)
	p.setSlot(slot, 0, 0)
	return true
}

// compactOut removes size bytes at offset from the tuple data region,
// sliding everything below it up and fixing the affected slot offsets.
func (p tablePage) compactOut(slot, offset, size uint32) {
	free := p.freeSpacePointer()
	copy(p.data()[free+size:offset+size], p.data()[free:offset])
	p.setFreeSpacePointer(free + size)

	count := p.slotCount()
	for i := uint32(0); i < count; i++ {
		if i == slot {
			continue
		}
		o := p.slotOffset(i)
		if o != 0 && o < offset {
			p.setSlot(i, o+size, p.slotSize(i))
		}
	}
}

// updateTuple replaces the tuple in slot with data, keeping the slot (and
// therefore the record id) stable. It fails when the tuple is deleted or
// the page cannot hold the new size.
func (p tablePage) updateTuple(slot uint32, data []byte) bool {
	if slot >= p.slotCount() {
		return false
	}
	offset, size := p.slotOffset(slot), p.slotSize(slot)
	if offset == 0 || isDeleted(size) {
		return false
	}
	need := uint32(len(data))
	if p.freeSpace()+size < need {
		return false
	}

	p.compactOut(slot, offset, size)
	newOffset := p.freeSpacePointer() - need
	copy(p.data()[newOffset:newOffset+need], data)
	p.setFreeSpacePointer(newOffset)
	p.setSlot(slot, newOffset, need)
	return true
}

// maxTupleSize is the largest tuple a single empty page can hold.
func maxTupleSize() uint32 {
	return primitives.PageSize - slotsStart - slotEntrySize
}
