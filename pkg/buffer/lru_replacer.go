package buffer

import (
	"sync"

	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// lruNode is a link in the replacer's recency list.
type lruNode struct {
	frameID primitives.FrameID
	prev    *lruNode
	next    *lruNode
}

// LRUReplacer tracks which frames are evictable and picks victims in strict
// LRU order among unpinned frames: eviction order is the order of Unpin
// calls, not of access recency within a pin.
//
// Implemented as a doubly linked list (dummy head = most recent, dummy tail
// = least recent) plus a map for O(1) membership, all behind one mutex.
type LRUReplacer struct {
	maxSize int
	frames  map[primitives.FrameID]*lruNode
	head    *lruNode
	tail    *lruNode
	mutex   sync.Mutex
}

// NewLRUReplacer creates a replacer that tracks at most numFrames frames.
func NewLRUReplacer(numFrames int) *LRUReplacer {
	head := &lruNode{}
	tail := &lruNode{}
	head.next = tail
	tail.prev = head

	return &LRUReplacer{
		maxSize: numFrames,
		frames:  make(map[primitives.FrameID]*lruNode),
		head:    head,
		tail:    tail,
	}
}

// Victim removes and returns the least recently unpinned frame. The second
// return is false when no frame is evictable; Victim never blocks.
func (r *LRUReplacer) Victim() (primitives.FrameID, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.frames) == 0 {
		return primitives.InvalidFrameID, false
	}

	victim := r.tail.prev
	r.remove(victim)
	delete(r.frames, victim.frameID)
	return victim.frameID, true
}

// Pin removes a frame from the evictable set. No-op if it is not tracked.
func (r *LRUReplacer) Pin(frameID primitives.FrameID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	node, ok := r.frames[frameID]
	if !ok {
		return
	}
	r.remove(node)
	delete(r.frames, frameID)
}

// Unpin marks a frame evictable, inserting it at the most-recently-used
// position. No-op if the frame is already tracked or the replacer is full.
func (r *LRUReplacer) Unpin(frameID primitives.FrameID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.frames[frameID]; ok {
		return
	}
	if len(r.frames) >= r.maxSize {
		return
	}

	node := &lruNode{frameID: frameID}
	node.prev = r.head
	node.next = r.head.next
	r.head.next.prev = node
	r.head.next = node
	r.frames[frameID] = node
}

// Size returns the number of currently evictable frames.
func (r *LRUReplacer) Size() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.frames)
}

func (r *LRUReplacer) remove(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}
