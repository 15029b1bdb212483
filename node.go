package foster

import "bytes"

// Node is the FosterNode overlay (spec.md §4.4) on top of a Page: it
// interprets the five foster fields and adds a Latch and identity. It
// generalizes the teacher's implicit page-header fields (PageHeader's
// Lvl/Right/Bits in page.go) into spec.md's explicit fence/foster-key/
// foster-pointer/prefix model. AddFosterChild/Rebalance/Split are
// grounded on bltree.go's splitPage/splitKeys, reworked into the two
// independent steps spec.md §4.4/§4.7 separates: publishing a foster
// child (no parent touched) versus a later, optional adoption that
// posts the separator (traverse.go).
type Node struct {
	id    uint64
	page  *Page
	latch Latch
}

func newNode(id uint64, pageSize uint32, level uint8) *Node {
	return &Node{id: id, page: NewPage(pageSize, level)}
}

// ID returns the node's identity, stable for its lifetime.
func (n *Node) ID() uint64 { return n.id }

// Level returns the node's tree level (0 = leaf).
func (n *Node) Level() uint8 { return n.page.Level() }

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool { return n.Level() == 0 }

// --- fence keys ---

// LowKey returns the node's inclusive lower fence, or nil if unset
// (meaning the node covers everything from -infinity).
func (n *Node) LowKey() []byte {
	v, _ := n.page.GetField(FieldLowKey)
	return v
}

// HighKey returns the node's exclusive upper fence, or nil if unset
// (meaning the node covers everything up to +infinity).
func (n *Node) HighKey() []byte {
	v, _ := n.page.GetField(FieldHighKey)
	return v
}

// SetLowKey installs the node's lower fence.
func (n *Node) SetLowKey(key []byte) bool {
	if key == nil {
		n.page.ClearField(FieldLowKey)
		return true
	}
	return n.page.SetField(FieldLowKey, key)
}

// SetHighKey installs the node's upper fence.
func (n *Node) SetHighKey(key []byte) bool {
	if key == nil {
		n.page.ClearField(FieldHighKey)
		return true
	}
	return n.page.SetField(FieldHighKey, key)
}

// FenceContains reports whether key falls within [LowKey, HighKey),
// treating an unset fence as unbounded on that side.
func (n *Node) FenceContains(key []byte) bool {
	if lo := n.LowKey(); lo != nil && bytes.Compare(key, lo) < 0 {
		return false
	}
	if hi := n.HighKey(); hi != nil && bytes.Compare(key, hi) >= 0 {
		return false
	}
	return true
}

// KeyRangeContains implements spec.md §4.4: fence_contains(key) AND
// (FosterKey absent OR key < FosterKey). It is the predicate traversal
// uses to decide whether to keep following the foster chain.
func (n *Node) KeyRangeContains(key []byte) bool {
	if !n.FenceContains(key) {
		return false
	}
	if fk := n.FosterKey(); fk != nil && bytes.Compare(key, fk) >= 0 {
		return false
	}
	return true
}

// --- foster relationship ---

// HasFosterChild reports whether this node currently has a published,
// unadopted foster child.
func (n *Node) HasFosterChild() bool { return n.page.HasField(FieldFosterPtr) }

// FosterKey returns the separator key between this node's own keys and
// its foster child's keys (every key >= FosterKey belongs to the
// foster child), or nil if there is no foster child or the child is
// still empty (I7: FosterKey absent means FosterKey ≡ HighKey).
func (n *Node) FosterKey() []byte {
	v, _ := n.page.GetField(FieldFosterKey)
	return v
}

// FosterChildID returns the foster child's node id, or (0, false) if
// there is none.
func (n *Node) FosterChildID() (uint64, bool) {
	v, ok := n.page.GetField(FieldFosterPtr)
	if !ok {
		return 0, false
	}
	return decodeNodeID(v), true
}

func (n *Node) setFosterPtr(childID uint64) bool {
	return n.page.SetField(FieldFosterPtr, encodeNodeID(childID))
}

// clearFosterLink dissolves this node's foster relationship, once
// adoption has posted the separator into the parent.
func (n *Node) clearFosterLink() {
	n.page.ClearField(FieldFosterKey)
	n.page.ClearField(FieldFosterPtr)
}

// --- prefix compression ---

// Prefix returns the common prefix stripped from every key stored in
// this node's slots (spec.md §4.4); stored keys are relative to it,
// while slot pmnks are computed over the full key (Prefix + stored key).
func (n *Node) Prefix() []byte {
	v, _ := n.page.GetField(FieldPrefix)
	return v
}

// SetPrefix installs (or clears, with nil/empty) the node's stored-key
// prefix.
func (n *Node) SetPrefix(p []byte) bool {
	if len(p) == 0 {
		n.page.ClearField(FieldPrefix)
		return true
	}
	return n.page.SetField(FieldPrefix, p)
}

// TruncateKeys re-strips every stored key of an additional `extra`
// bytes beyond the node's current prefix, called when a tightened
// fence lets the common prefix grow (spec.md §4.4, boundary test B3).
// Best-effort: on failure the node is left with its old (still valid,
// just less compressed) prefix.
func (n *Node) TruncateKeys(codec Codec, extra []byte) bool {
	if len(extra) == 0 {
		return true
	}
	cnt := n.page.SlotCount()
	type entry struct {
		pmnk uint64
		blob []byte
	}
	entries := make([]entry, 0, cnt)
	for i := uint32(0); i < cnt; i++ {
		if n.page.Ghost(i) {
			continue
		}
		blob := n.page.GetPayloadForSlot(i)
		var key []byte
		var rest []byte
		var childID uint64
		if n.IsLeaf() {
			k, v := codec.DecodeLeaf(blob)
			key, rest = k, v
		} else {
			k, c := codec.DecodeBranch(blob)
			key, childID = k, c
			rest = nil
		}
		if !bytes.HasPrefix(key, extra) {
			return false
		}
		newKey := key[len(extra):]
		var newBlob []byte
		if n.IsLeaf() {
			newBlob = codec.EncodeLeaf(newKey, rest)
		} else {
			newBlob = codec.EncodeBranch(newKey, childID)
		}
		entries = append(entries, entry{codec.PMNK(append(append([]byte{}, n.Prefix()...), key...)), newBlob})
	}

	newPrefix := append(append([]byte{}, n.Prefix()...), extra...)
	old := make([][]byte, cnt)
	for i := uint32(0); i < cnt; i++ {
		if !n.page.Ghost(i) {
			old[i] = n.page.GetPayloadForSlot(i)
		}
	}
	for i := cnt; i > 0; i-- {
		ptr := n.page.PayloadPtr(i - 1)
		n.page.FreePayload(ptr, n.page.PayloadLenAt(ptr))
		n.page.DeleteSlot(i - 1)
	}
	if !n.SetPrefix(newPrefix) {
		n.rebuildSlots(codec, old)
		return false
	}
	for _, e := range entries {
		ptr, ok := n.page.AllocatePayload(len(e.blob))
		if !ok {
			return false
		}
		n.page.WritePayload(ptr, e.blob)
		idx := n.page.SlotCount()
		n.page.InsertSlot(idx)
		n.page.SetPmnk(idx, e.pmnk)
		n.page.SetPayloadPtr(idx, ptr)
	}
	n.page.SortSlots()
	return true
}

// rebuildSlots is a best-effort rollback helper for TruncateKeys; it is
// only reached when SetPrefix fails after slots were already cleared,
// which in practice cannot happen (clearing slots only frees space),
// but is kept so TruncateKeys never silently loses data.
func (n *Node) rebuildSlots(codec Codec, blobs [][]byte) {
	for _, blob := range blobs {
		if blob == nil {
			continue
		}
		var key []byte
		if n.IsLeaf() {
			key, _ = codec.DecodeLeaf(blob)
		} else {
			key, _ = codec.DecodeBranch(blob)
		}
		full := append(append([]byte{}, n.Prefix()...), key...)
		ptr, ok := n.page.AllocatePayload(len(blob))
		if !ok {
			continue
		}
		n.page.WritePayload(ptr, blob)
		idx := n.page.SlotCount()
		n.page.InsertSlot(idx)
		n.page.SetPmnk(idx, codec.PMNK(full))
		n.page.SetPayloadPtr(idx, ptr)
	}
	n.page.SortSlots()
}

// MaybeGrowPrefix implements the other half of spec.md §4.4's prefix
// compression: whenever a fence tightens (adoption narrowing a child's
// HighKey, or root growth narrowing the old root's), the node's common
// prefix can grow too. It recomputes commonPrefixLen(LowKey, HighKey)
// beyond the node's current prefix and, if it grew, calls TruncateKeys
// with exactly the new bytes (spec's "truncate_keys(new_len-old_len)").
// A no-op if either fence is unbounded or the prefix cannot grow.
func (n *Node) MaybeGrowPrefix(codec Codec) {
	lo, hi := n.LowKey(), n.HighKey()
	if lo == nil || hi == nil {
		return
	}
	old := n.Prefix()
	if len(lo) < len(old) || len(hi) < len(old) {
		return
	}
	loRest, hiRest := lo[len(old):], hi[len(old):]
	extraLen := commonPrefixLen(loRest, hiRest)
	if extraLen == 0 {
		return
	}
	n.TruncateKeys(codec, loRest[:extraLen])
}

func encodeNodeID(id uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(id >> (8 * uint(i)))
	}
	return b
}

func decodeNodeID(b []byte) uint64 {
	var id uint64
	for _, c := range b {
		id = id<<8 | uint64(c)
	}
	return id
}

// AddFosterChild implements spec.md §4.4 add_foster_child(parent,
// child) exactly: child inherits parent's HighKey as both its fences
// (an empty node per invariant I7), inherits any existing foster chain
// from parent (chain extension), and parent's own foster pointer is
// retargeted to child with its FosterKey cleared (empty foster).
func AddFosterChild(parent, child *Node) bool {
	hi := parent.HighKey()
	if !child.SetLowKey(hi) {
		return false
	}
	if !child.SetHighKey(hi) {
		return false
	}
	if !child.SetPrefix(parent.Prefix()) {
		return false
	}
	if parent.HasFosterChild() {
		fk := parent.FosterKey()
		fid, _ := parent.FosterChildID()
		if fk != nil {
			if !child.page.SetField(FieldFosterKey, fk) {
				return false
			}
		}
		if !child.setFosterPtr(fid) {
			return false
		}
	}
	if !parent.setFosterPtr(child.id) {
		return false
	}
	parent.page.ClearField(FieldFosterKey)
	return true
}

// Rebalance implements spec.md §4.4 rebalance(parent): requires a
// foster child already published by AddFosterChild. It picks the
// node's median slot as the split key, moves every record from there
// onward into the (empty) foster child via the atomic move protocol
// (§4.5, kv.go's atomicMove), then sets the parent's FosterKey and the
// child's LowKey to the split key; the parent's own fences are unchanged.
func Rebalance(parent, child *Node, codec Codec, logger Logger) bool {
	if !parent.HasFosterChild() {
		return false
	}
	cnt := parent.page.SlotCount()
	if cnt == 0 {
		return true // nothing to move; empty foster child is still valid (I7)
	}
	splitSlot := cnt / 2
	splitKeyRel := parent.decodeKeyAt(splitSlot, codec)
	splitKey := append(append([]byte{}, parent.Prefix()...), splitKeyRel...)

	if logger != nil {
		logger.Rebalance(splitKey)
	}

	count := cnt - splitSlot
	if !atomicMove(parent, splitSlot, count, child, 0) {
		return false
	}

	if !parent.page.SetField(FieldFosterKey, splitKey) {
		return false
	}
	child.SetLowKey(splitKey)
	child.SetHighKey(parent.HighKey())
	return true
}

// Split implements spec.md §4.4 split(node, new_node) = AddFosterChild
// + Rebalance. When node has no foster child and no room left for the
// FosterPtr field, it moves the upper half of the records into newNode
// first and then publishes newNode as the foster child.
func Split(node, newNode *Node, codec Codec, logger Logger) bool {
	if cnt := node.page.SlotCount(); cnt > 1 && !node.HasFosterChild() &&
		node.page.FreeBytes() < ceilBlocks(8+payloadLenPrefix) {
		// No room for the FosterPtr field: move the upper half of the
		// records out first, then publish newNode as the foster child.
		splitKey := append(append([]byte{}, node.Prefix()...), node.decodeKeyAt(cnt/2, codec)...)
		if !atomicMove(node, cnt/2, cnt-cnt/2, newNode, 0) {
			return false
		}
		if logger != nil {
			logger.Rebalance(splitKey)
		}
		return AddFosterChild(node, newNode) && node.page.SetField(FieldFosterKey, splitKey) &&
			newNode.SetLowKey(splitKey)
	}
	if !AddFosterChild(node, newNode) {
		return false
	}
	if !Rebalance(node, newNode, codec, logger) {
		node.clearFosterLink()
		return false
	}
	return true
}

// decodeKeyAt returns the prefix-relative key stored at slot i.
func (n *Node) decodeKeyAt(i uint32, codec Codec) []byte {
	blob := n.page.GetPayloadForSlot(i)
	if n.IsLeaf() {
		k, _ := codec.DecodeLeaf(blob)
		return k
	}
	k, _ := codec.DecodeBranch(blob)
	return k
}
