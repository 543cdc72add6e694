// Package disk provides fixed-size block I/O against a backing file. The
// buffer pool is the only consumer; everything above it sees pages, never
// files.
package disk

import "github.com/Ou-Rui/my-bustub/pkg/primitives"

// Manager persists fixed-size pages and hands out page identifiers.
type Manager interface {
	// ReadPage fills buf with the page's on-disk bytes. buf must be
	// primitives.PageSize long. Reading a page that was never written
	// yields zeroes.
	ReadPage(pageID primitives.PageID, buf []byte) error

	// WritePage persists buf as the page's bytes. buf must be
	// primitives.PageSize long.
	WritePage(pageID primitives.PageID, buf []byte) error

	// AllocatePage returns a fresh page identifier.
	AllocatePage() primitives.PageID

	// DeallocatePage reclaims a page identifier. No reuse guarantee is
	// implied.
	DeallocatePage(pageID primitives.PageID)

	// Close releases underlying resources.
	Close() error
}
