package primitives

import "fmt"

// RID is a record identifier: the page holding the record plus the slot
// number within that page. RIDs are comparable and used as map keys by the
// lock manager.
type RID struct {
	PageID  PageID
	SlotNum uint32
}

// NewRID builds a record identifier from a page id and slot number.
func NewRID(pageID PageID, slotNum uint32) RID {
	return RID{PageID: pageID, SlotNum: slotNum}
}

func (r RID) String() string {
	return fmt.Sprintf("RID{page=%d, slot=%d}", r.PageID, r.SlotNum)
}
