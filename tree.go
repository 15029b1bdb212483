package foster

import "github.com/pkg/errors"

// Tree is the public facade over a Foster B-tree (spec.md §1, §4.7's
// "Tree facade"): Put/Get/Remove/Iterate plus the split-retry and
// root-growth glue that traverse.go and node.go's primitives don't own
// themselves. It plays the role the teacher's BLTree (bltree.go) plays
// over BufMgr: the thing callers actually construct and call.
type Tree struct {
	store    *NodeStore
	codec    Codec
	logger   Logger
	pageSize uint32
}

// New builds an empty Tree from cfg, filling in defaults for any
// zero-valued capability.
func New(cfg Config) *Tree {
	cfg = cfg.normalize()
	return &Tree{
		store:    NewNodeStore(cfg),
		codec:    cfg.Codec,
		logger:   cfg.Logger,
		pageSize: cfg.PageSize(),
	}
}

// Get returns the value stored for key, or ErrKeyNotFound.
func (t *Tree) Get(key []byte) ([]byte, error) {
	leaf := t.traverse(key, false, true)
	relKey := stripPrefix(leaf, key)
	v, found := findRecord(leaf, t.codec, relKey)
	leaf.latch.ReleaseRead()
	if !found {
		return nil, wrapKeyNotFound(key)
	}
	return v, nil
}

// Put inserts key with value (spec.md §6: `put(key, value, upsert=false)`).
// If key already exists and upsert is false, it returns ErrExistentKey
// and leaves the tree unchanged. It retries through a split when the
// responsible leaf has no room (spec.md §4.7's split-retry).
func (t *Tree) Put(key, value []byte, upsert bool) error {
	leaf := t.traverse(key, true, true)
	for {
		relKey := stripPrefix(leaf, key)
		if !upsert {
			if _, exists := findRecord(leaf, t.codec, relKey); exists {
				leaf.latch.ReleaseWrite()
				return wrapExistentKey(key)
			}
		}
		if ok, _ := insertLeaf(leaf, t.codec, relKey, value); ok {
			t.logger.Insert(key, value)
			leaf.latch.ReleaseWrite()
			return nil
		}

		wasRoot := leaf.id == t.store.RootID()
		newLeaf := t.store.Create(t.pageSize, 0)
		newLeaf.latch.AcquireWrite()
		if !Split(leaf, newLeaf, t.codec, t.logger) {
			newLeaf.latch.ReleaseWrite()
			leaf.latch.ReleaseWrite()
			return errors.New("foster: record too large for an empty page")
		}
		if wasRoot {
			t.growRoot(leaf)
		}

		if leaf.KeyRangeContains(key) {
			newLeaf.latch.ReleaseWrite()
			continue
		}
		leaf.latch.ReleaseWrite()
		leaf = newLeaf
	}
}

// Remove deletes key, returning ErrKeyNotFound if it was absent.
func (t *Tree) Remove(key []byte) error {
	leaf := t.traverse(key, true, true)
	relKey := stripPrefix(leaf, key)
	found := removeRecord(leaf, t.codec, relKey)
	leaf.latch.ReleaseWrite()
	if !found {
		return wrapKeyNotFound(key)
	}
	t.logger.Remove(key)
	return nil
}

// Iterate calls fn for every (key, value) pair in the single leaf
// responsible for key, in ascending order, stopping early if fn returns
// false. Per spec.md §6, iteration is per-node only: a node's foster
// child (if any) is a separate node with its own key range, and
// scanning across it — or across any other node boundary — is an
// explicit non-goal (spec.md §1), so callers that want the foster
// child's records call Iterate again with a key inside its range.
func (t *Tree) Iterate(key []byte, fn func(key, value []byte) bool) {
	leaf := t.traverse(key, false, true)
	recs := iterateLeaf(leaf, t.codec)
	leaf.latch.ReleaseRead()
	for _, r := range recs {
		if !fn(r.Key, r.Value) {
			return
		}
	}
}

// growRoot is called whenever the node currently serving as root has
// just split (via Put's split-retry or adoptInto's parent foster-split)
// and so still carries an unadopted foster child of its own. Root
// growth cannot wait for opportunistic adoption, since the root has no
// parent to adopt into; it creates a fresh branch root synchronously,
// mirroring the teacher's splitRoot (bltree.go), which also special-
// cases the rootless-parent case instead of deferring it.
func (t *Tree) growRoot(node *Node) {
	if node.id != t.store.RootID() || !node.HasFosterChild() {
		return
	}
	fosterKey := node.FosterKey()
	if fosterKey == nil {
		fosterKey = node.HighKey()
	}
	fosterID, _ := node.FosterChildID()

	newRoot := t.store.Create(t.pageSize, node.Level()+1)
	insertBranch(newRoot, t.codec, []byte{}, node.id)
	insertBranch(newRoot, t.codec, fosterKey, fosterID)

	node.clearFosterLink()
	node.SetHighKey(fosterKey)
	node.MaybeGrowPrefix(t.codec)

	t.store.SetRootID(newRoot.id)
}
