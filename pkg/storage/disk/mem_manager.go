package disk

import (
	"fmt"
	"sync"

	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// MemManager is an in-memory Manager for tests. It mirrors FileManager's
// semantics, including zero-filled reads of never-written pages.
type MemManager struct {
	mu       sync.Mutex
	pages    map[primitives.PageID][]byte
	nextPage primitives.PageID
}

// NewMemManager returns an empty in-memory disk. As with FileManager,
// page 0 is reserved for the engine header page and never allocated.
func NewMemManager() *MemManager {
	return &MemManager{
		pages:    make(map[primitives.PageID][]byte),
		nextPage: primitives.HeaderPageID + 1,
	}
}

func (dm *MemManager) ReadPage(pageID primitives.PageID, buf []byte) error {
	if len(buf) != primitives.PageSize {
		return fmt.Errorf("buffer size %d != page size %d", len(buf), primitives.PageSize)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if data, ok := dm.pages[pageID]; ok {
		copy(buf, data)
		return nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (dm *MemManager) WritePage(pageID primitives.PageID, buf []byte) error {
	if len(buf) != primitives.PageSize {
		return fmt.Errorf("buffer size %d != page size %d", len(buf), primitives.PageSize)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	data, ok := dm.pages[pageID]
	if !ok {
		data = make([]byte, primitives.PageSize)
		dm.pages[pageID] = data
	}
	copy(data, buf)
	return nil
}

func (dm *MemManager) AllocatePage() primitives.PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	id := dm.nextPage
	dm.nextPage++
	return id
}

func (dm *MemManager) DeallocatePage(pageID primitives.PageID) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.pages, pageID)
}

func (dm *MemManager) Close() error { return nil }

// NumWrittenPages reports how many distinct pages have been written, for
// test assertions.
func (dm *MemManager) NumWrittenPages() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pages)
}
