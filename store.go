package foster

import (
	"sync"
	"sync/atomic"
)

// Allocator is the node-id policy capability spec.md §1 keeps out of
// scope. It only hands out identifiers; it has no opinion about how
// nodes are stored.
type Allocator interface {
	// NextID returns a fresh, never-before-issued node id.
	NextID() uint64
}

// inMemoryAllocator hands out monotonically increasing ids from an
// atomic counter, the same pattern as the teacher's newDup duplicate-key
// counter (bltree.go), generalized from a per-key dup counter to a
// per-node id source. Id 0 is reserved as the "no node" sentinel, so the
// counter starts at 1.
type inMemoryAllocator struct {
	next uint64
}

// NewInMemoryAllocator returns an Allocator backed by an atomic counter.
func NewInMemoryAllocator() Allocator {
	return &inMemoryAllocator{next: 0}
}

// NextID implements Allocator.
func (a *inMemoryAllocator) NextID() uint64 {
	return atomic.AddUint64(&a.next, 1)
}

// NodeStore holds every live node keyed by id. It replaces the
// teacher's BufMgr (bufmgr.go: mmap'd file + hash-table-pinned page
// pool + clock eviction) with a plain mutex-guarded map, since disk
// paging and eviction are explicit non-goals here (spec.md §1) — every
// node simply lives in memory for the process lifetime. What survives
// from BufMgr's design is the shape: a concurrent id -> node directory
// that LoadPage-style traversal code looks nodes up in while holding no
// more than the latches lock coupling requires.
type NodeStore struct {
	mu     sync.RWMutex
	nodes  map[uint64]*Node
	alloc  Allocator
	root   uint64
	logger Logger
}

// NewNodeStore creates an empty store and seeds it with a single empty
// leaf root, mirroring the teacher's NewBufMgr bootstrapping a root
// page at RootPage on first open.
func NewNodeStore(cfg Config) *NodeStore {
	cfg = cfg.normalize()
	s := &NodeStore{
		nodes:  make(map[uint64]*Node, cfg.StoreCapacityHint),
		alloc:  cfg.Allocator,
		logger: cfg.Logger,
	}
	root := newNode(s.alloc.NextID(), cfg.PageSize(), 0)
	s.put(root)
	s.root = root.id
	s.logger.Construct(root.id)
	return s
}

// RootID returns the current root node's id.
func (s *NodeStore) RootID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// SetRootID atomically installs a new root id, used by Tree.growRoot.
func (s *NodeStore) SetRootID(id uint64) {
	s.mu.Lock()
	s.root = id
	s.mu.Unlock()
}

// Get returns the node for id, or nil if it does not exist.
func (s *NodeStore) Get(id uint64) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id]
}

func (s *NodeStore) put(n *Node) {
	s.mu.Lock()
	s.nodes[n.id] = n
	s.mu.Unlock()
}

// Create allocates a fresh node of the given level (0 = leaf), registers
// it in the store, and emits the Construct log event (spec.md §6).
func (s *NodeStore) Create(pageSize uint32, level uint8) *Node {
	n := newNode(s.alloc.NextID(), pageSize, level)
	s.put(n)
	s.logger.Construct(n.id)
	return n
}

// Delete removes a node from the store. The tree itself never retires
// nodes: adoption keeps the former foster child as an ordinary child,
// and there is no merge or root collapse.
func (s *NodeStore) Delete(id uint64) {
	s.mu.Lock()
	delete(s.nodes, id)
	s.mu.Unlock()
}

// Len reports the number of live nodes, for tests and diagnostics.
func (s *NodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
