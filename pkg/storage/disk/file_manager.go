package disk

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Ou-Rui/my-bustub/pkg/logging"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// FileManager is a Manager over a single OS file. Page i lives at byte
// offset i*PageSize. Reads and writes go through ReadAt/WriteAt so they are
// safe to issue concurrently; allocation is a plain atomic counter.
type FileManager struct {
	file     *os.File
	path     string
	nextPage atomic.Int32
	writeMu  sync.Mutex // serializes file growth, not steady-state writes
	closed   atomic.Bool
}

// NewFileManager opens (or creates) the backing file at path. The next page
// id to allocate is derived from the current file length, so reopening a
// file resumes allocation after the highest written page. Page 0 is never
// handed out; it is reserved for the engine header page.
func NewFileManager(path string) (*FileManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	dm := &FileManager{file: file, path: path}
	next := int32((info.Size() + primitives.PageSize - 1) / primitives.PageSize)
	if next <= int32(primitives.HeaderPageID) {
		next = int32(primitives.HeaderPageID) + 1
	}
	dm.nextPage.Store(next)
	logging.Debug("disk manager opened",
		zap.String("path", path),
		zap.Int32("next_page", dm.nextPage.Load()))
	return dm, nil
}

// ReadPage reads the page's bytes into buf. Pages past the end of the file
// (allocated but never written) read as zeroes.
func (dm *FileManager) ReadPage(pageID primitives.PageID, buf []byte) error {
	if err := dm.check(pageID, buf); err != nil {
		return err
	}
	n, err := dm.file.ReadAt(buf, int64(pageID)*primitives.PageSize)
	if err == io.EOF || (err == nil && n == len(buf)) {
		// short read past EOF: zero the tail
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read page %d: %w", pageID, err)
	}
	return nil
}

// WritePage persists buf as the page's bytes.
func (dm *FileManager) WritePage(pageID primitives.PageID, buf []byte) error {
	if err := dm.check(pageID, buf); err != nil {
		return err
	}
	dm.writeMu.Lock()
	defer dm.writeMu.Unlock()
	if _, err := dm.file.WriteAt(buf, int64(pageID)*primitives.PageSize); err != nil {
		return fmt.Errorf("write page %d: %w", pageID, err)
	}
	return nil
}

// AllocatePage hands out the next page identifier.
func (dm *FileManager) AllocatePage() primitives.PageID {
	return primitives.PageID(dm.nextPage.Add(1) - 1)
}

// DeallocatePage is a logical reclamation only; the file is not truncated
// and the id is never reused within a session.
func (dm *FileManager) DeallocatePage(pageID primitives.PageID) {
	logging.Debug("deallocate page", zap.Int32("page_id", int32(pageID)))
}

// Close flushes and closes the backing file.
func (dm *FileManager) Close() error {
	if dm.closed.Swap(true) {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		return fmt.Errorf("sync %s: %w", dm.path, err)
	}
	return dm.file.Close()
}

func (dm *FileManager) check(pageID primitives.PageID, buf []byte) error {
	if dm.closed.Load() {
		return fmt.Errorf("disk manager is closed")
	}
	if pageID < 0 {
		return fmt.Errorf("invalid page id %d", pageID)
	}
	if len(buf) != primitives.PageSize {
		return fmt.Errorf("buffer size %d != page size %d", len(buf), primitives.PageSize)
	}
	return nil
}
