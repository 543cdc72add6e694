package buffer

import (
	"sync"

	"github.com/liyue201/gostl/ds/deque"
	"go.uber.org/zap"

	"github.com/Ou-Rui/my-bustub/pkg/logging"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
	"github.com/Ou-Rui/my-bustub/pkg/storage/disk"
)

// BufferPoolManager owns a fixed array of frames and a page table mapping
// resident page ids to frames. One coarse mutex serializes every public
// operation: correctness over intra-call parallelism.
//
// A frame is in exactly one of three states at any time: on the free list,
// evictable in the replacer, or pinned and untracked. Callers pair every
// successful FetchPage/NewPage with exactly one eventual UnpinPage.
type BufferPoolManager struct {
	poolSize    int
	pages       []*Page
	pageTable   map[primitives.PageID]primitives.FrameID
	freeList    *deque.Deque[primitives.FrameID]
	replacer    *LRUReplacer
	diskManager disk.Manager
	mutex       sync.Mutex
}

// NewBufferPoolManager builds a pool with poolSize frames, all initially on
// the free list.
func NewBufferPoolManager(poolSize int, diskManager disk.Manager) *BufferPoolManager {
	bpm := &BufferPoolManager{
		poolSize:    poolSize,
		pages:       make([]*Page, poolSize),
		pageTable:   make(map[primitives.PageID]primitives.FrameID),
		freeList:    deque.New[primitives.FrameID](),
		replacer:    NewLRUReplacer(poolSize),
		diskManager: diskManager,
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = newPage()
		bpm.freeList.PushBack(primitives.FrameID(i))
	}
	return bpm
}

// PoolSize returns the number of frames.
func (bpm *BufferPoolManager) PoolSize() int {
	return bpm.poolSize
}

// FetchPage pins the named page and returns its frame. If the page is not
// resident it is read from disk into a free or victim frame, flushing the
// victim's old contents first when dirty. Returns nil when every frame is
// pinned.
func (bpm *BufferPoolManager) FetchPage(pageID primitives.PageID) *Page {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	if frameID, ok := bpm.pageTable[pageID]; ok {
		page := bpm.pages[frameID]
		page.pinCount++
		bpm.replacer.Pin(frameID)
		return page
	}

	frameID, ok := bpm.acquireFrame()
	if !ok {
		logging.Debug("fetch failed, all pages pinned", zap.Int32("page_id", int32(pageID)))
		return nil
	}

	page := bpm.pages[frameID]
	bpm.pageTable[pageID] = frameID
	page.pageID = pageID
	page.pinCount = 1
	page.isDirty = false
	if err := bpm.diskManager.ReadPage(pageID, page.Data()); err != nil {
		logging.Error("read page from disk failed",
			zap.Int32("page_id", int32(pageID)), zap.Error(err))
		page.resetMemory()
	}
	return page
}

// NewPage allocates a fresh page id from the disk manager, installs it in a
// zero-filled frame pinned once, and returns the frame. Returns nil and
// InvalidPageID when no free or evictable frame exists.
func (bpm *BufferPoolManager) NewPage() (*Page, primitives.PageID) {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	frameID, ok := bpm.acquireFrame()
	if !ok {
		logging.Debug("new page failed, all pages pinned")
		return nil, primitives.InvalidPageID
	}

	pageID := bpm.diskManager.AllocatePage()
	bpm.pageTable[pageID] = frameID

	page := bpm.pages[frameID]
	page.pageID = pageID
	page.pinCount = 1
	page.isDirty = false
	page.resetMemory()
	return page, pageID
}

// UnpinPage drops one pin from the page. Fails on a non-resident page or a
// double-unpin. Sticky-dirty: once dirty, the page stays dirty until flushed
// no matter what later calls pass for isDirty. A pin count reaching zero
// hands the frame to the replacer.
func (bpm *BufferPoolManager) UnpinPage(pageID primitives.PageID, isDirty bool) bool {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		logging.Warn("unpin of non-resident page", zap.Int32("page_id", int32(pageID)))
		return false
	}

	page := bpm.pages[frameID]
	if page.pinCount <= 0 {
		logging.Warn("double unpin", zap.Int32("page_id", int32(pageID)))
		return false
	}

	if !page.isDirty {
		page.isDirty = isDirty
	}
	page.pinCount--
	if page.pinCount == 0 {
		bpm.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes the page's bytes to disk unconditionally and clears the
// dirty flag. Fails on the invalid sentinel or a non-resident page. Pin
// count is untouched.
func (bpm *BufferPoolManager) FlushPage(pageID primitives.PageID) bool {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	if pageID == primitives.InvalidPageID {
		return false
	}
	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return false
	}

	page := bpm.pages[frameID]
	if err := bpm.diskManager.WritePage(pageID, page.Data()); err != nil {
		logging.Error("flush page failed",
			zap.Int32("page_id", int32(pageID)), zap.Error(err))
		return false
	}
	page.isDirty = false
	return true
}

// DeletePage evicts the page and returns its identifier to the disk
// manager. Trivially true for a non-resident page; false while anyone holds
// a pin.
func (bpm *BufferPoolManager) DeletePage(pageID primitives.PageID) bool {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return true
	}

	page := bpm.pages[frameID]
	if page.pinCount > 0 {
		logging.Debug("delete refused, page in use",
			zap.Int32("page_id", int32(pageID)), zap.Int("pin_count", page.pinCount))
		return false
	}

	if page.isDirty {
		if err := bpm.diskManager.WritePage(pageID, page.Data()); err != nil {
			logging.Error("flush before delete failed",
				zap.Int32("page_id", int32(pageID)), zap.Error(err))
		}
	}
	page.pageID = primitives.InvalidPageID
	page.pinCount = 0
	page.isDirty = false
	page.resetMemory()

	delete(bpm.pageTable, pageID)
	bpm.replacer.Pin(frameID) // drop from the evictable set
	bpm.freeList.PushBack(frameID)
	bpm.diskManager.DeallocatePage(pageID)
	return true
}

// FlushAllPages writes every resident page to disk and clears all dirty
// flags, regardless of pin counts.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	for pageID, frameID := range bpm.pageTable {
		page := bpm.pages[frameID]
		if err := bpm.diskManager.WritePage(pageID, page.Data()); err != nil {
			logging.Error("flush all: write failed",
				zap.Int32("page_id", int32(pageID)), zap.Error(err))
			continue
		}
		page.isDirty = false
	}
}

// acquireFrame obtains a usable frame, preferring the free list over
// eviction. The caller holds bpm.mutex. On eviction the victim's dirty
// contents are written back and its page-table entry removed.
func (bpm *BufferPoolManager) acquireFrame() (primitives.FrameID, bool) {
	if !bpm.freeList.Empty() {
		frameID := bpm.freeList.PopFront()
		return frameID, true
	}

	frameID, ok := bpm.replacer.Victim()
	if !ok {
		return primitives.InvalidFrameID, false
	}

	victim := bpm.pages[frameID]
	if victim.isDirty {
		if err := bpm.diskManager.WritePage(victim.pageID, victim.Data()); err != nil {
			logging.Error("evict: write back failed",
				zap.Int32("page_id", int32(victim.pageID)), zap.Error(err))
		}
	}
	delete(bpm.pageTable, victim.pageID)
	victim.pageID = primitives.InvalidPageID
	victim.pinCount = 0
	victim.isDirty = false
	victim.resetMemory()
	return frameID, true
}
