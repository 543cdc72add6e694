// Package primitives defines the identifier types shared by every layer of
// the storage engine: pages, frames, transactions and record identifiers.
package primitives

// PageID names a fixed-size block on durable storage. It is stable for the
// lifetime of the backing file and unique within it.
type PageID int32

// FrameID indexes a slot in the buffer pool's frame array.
type FrameID int32

// TxnID identifies a transaction. Ids are allocated monotonically, so a
// larger id always belongs to a younger transaction.
type TxnID int64

// Sentinel values for invalid/unset identifiers.
const (
	// InvalidPageID denotes "no page". Page 0 is valid and reserved for the
	// engine's header page.
	InvalidPageID PageID = -1

	// InvalidFrameID denotes "no frame".
	InvalidFrameID FrameID = -1

	// InvalidTxnID denotes "no transaction".
	InvalidTxnID TxnID = -1

	// HeaderPageID is the reserved page holding index-name -> root-page
	// records.
	HeaderPageID PageID = 0
)

// PageSize is the size of a page in bytes, the unit of disk I/O and
// buffer-pool caching.
const PageSize = 4096
