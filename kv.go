package foster

// kv.go implements spec.md's KeyValue layer (§4.2/§4.3): sorted
// insert/find/remove over a node's slot vector keyed by pmnk binary
// search with linear disambiguation among pmnk ties, back-step-on-miss
// child lookup for branch nodes, and the atomic record move primitive
// (§4.5) used by rebalance. It is grounded on the teacher's FindSlot
// (page.go, a plain binary search over fixed-width keys) generalized to
// pmnk-prefix comparison plus a full-key tiebreak, and on findKey
// (bltree.go) for branch descent.
//
// Every lookup and insert here takes prefix-relative keys; stripping a
// node's Prefix from a full key is the caller's job (stripPrefix in
// traverse.go), since only the caller knows whether it is walking a
// single node or following a foster chain with a different prefix at
// each hop. iterateLeaf re-prepends the node's Prefix on output.

import "bytes"

// findSlot returns the index of the slot holding relKey, and whether
// it was found. On a miss it returns the index at which relKey would
// be inserted to keep the vector sorted.
func findSlot(n *Node, codec Codec, relKey []byte) (uint32, bool) {
	full := append(append([]byte{}, n.Prefix()...), relKey...)
	target := codec.PMNK(full)
	cnt := n.page.SlotCount()
	lo, hi := uint32(0), cnt
	for lo < hi {
		mid := (lo + hi) / 2
		if n.page.Pmnk(mid) < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	// lo is now the first slot whose pmnk >= target; linearly scan
	// forward through any pmnk ties to find an exact key match, moving
	// the insertion point past tied keys that sort before relKey.
	pos := lo
	for i := lo; i < cnt && n.page.Pmnk(i) == target; i++ {
		if n.page.Ghost(i) {
			continue
		}
		c := bytes.Compare(n.decodeKeyAt(i, codec), relKey)
		if c == 0 {
			return i, true
		}
		if c < 0 {
			pos = i + 1
		}
	}
	return pos, false
}

// findChildSlot implements back-step-on-miss (§4.3): for a branch node,
// returns the index of the slot whose key is the largest key <= relKey
// (the child responsible for relKey). If relKey is smaller than every
// stored key, it falls back to slot 0 (the leftmost child).
func findChildSlot(n *Node, codec Codec, relKey []byte) uint32 {
	idx, found := findSlot(n, codec, relKey)
	if found {
		return idx
	}
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// findRecord looks up relKey in a leaf node.
func findRecord(n *Node, codec Codec, relKey []byte) ([]byte, bool) {
	idx, found := findSlot(n, codec, relKey)
	if !found {
		return nil, false
	}
	_, v := codec.DecodeLeaf(n.page.GetPayloadForSlot(idx))
	return v, true
}

// findChildID looks up the child node id responsible for relKey in a
// branch node.
func findChildID(n *Node, codec Codec, relKey []byte) uint64 {
	idx := findChildSlot(n, codec, relKey)
	_, childID := codec.DecodeBranch(n.page.GetPayloadForSlot(idx))
	return childID
}

// insertLeaf inserts or upserts (relKey, value) into a leaf node.
// Returns (ok=false) on NoSpace; existed reports whether relKey was
// already present (and has been overwritten).
func insertLeaf(n *Node, codec Codec, relKey, value []byte) (ok bool, existed bool) {
	idx, found := findSlot(n, codec, relKey)
	blob := codec.EncodeLeaf(relKey, value)
	if found {
		oldPtr := n.page.PayloadPtr(idx)
		oldLen := n.page.PayloadLenAt(oldPtr)
		newPtr, ok2 := allocateReplacing(n.page, oldPtr, oldLen, len(blob))
		if !ok2 {
			return false, true
		}
		n.page.WritePayload(newPtr, blob)
		n.page.SetPayloadPtr(idx, newPtr)
		return true, true
	}
	ptr, ok2 := n.page.AllocatePayload(len(blob))
	if !ok2 {
		return false, false
	}
	if !n.page.InsertSlot(idx) {
		n.page.FreePayload(ptr, len(blob))
		return false, false
	}
	n.page.WritePayload(ptr, blob)
	full := append(append([]byte{}, n.Prefix()...), relKey...)
	n.page.SetPmnk(idx, codec.PMNK(full))
	n.page.SetPayloadPtr(idx, ptr)
	return true, false
}

// insertBranch inserts a (relKey, childID) separator into a branch
// node. Returns false (NoSpace) if there is no room. Branch keys are
// unique by construction (they are always freshly minted foster keys),
// so this never upserts.
func insertBranch(n *Node, codec Codec, relKey []byte, childID uint64) bool {
	idx, found := findSlot(n, codec, relKey)
	if found {
		return false
	}
	blob := codec.EncodeBranch(relKey, childID)
	ptr, ok := n.page.AllocatePayload(len(blob))
	if !ok {
		return false
	}
	if !n.page.InsertSlot(idx) {
		n.page.FreePayload(ptr, len(blob))
		return false
	}
	n.page.WritePayload(ptr, blob)
	full := append(append([]byte{}, n.Prefix()...), relKey...)
	n.page.SetPmnk(idx, codec.PMNK(full))
	n.page.SetPayloadPtr(idx, ptr)
	return true
}

// removeRecord deletes relKey from n (leaf or branch), returning
// whether it was present.
func removeRecord(n *Node, codec Codec, relKey []byte) bool {
	idx, found := findSlot(n, codec, relKey)
	if !found {
		return false
	}
	ptr := n.page.PayloadPtr(idx)
	n.page.FreePayload(ptr, n.page.PayloadLenAt(ptr))
	n.page.DeleteSlot(idx)
	return true
}

// allocateReplacing frees the old payload at oldPtr and allocates a new
// one sized for newLen, used by leaf upsert. It frees first so an
// in-place same-size update reuses the just-freed space rather than
// needlessly growing the heap.
func allocateReplacing(p *Page, oldPtr uint32, oldLen, newLen int) (uint32, bool) {
	p.FreePayload(oldPtr, oldLen)
	return p.AllocatePayload(newLen)
}

// record is a decoded, fully-prefixed (key, value) pair, used by
// iteration (tree.go's Iterate) and tests.
type record struct {
	Key   []byte
	Value []byte
}

// iterateLeaf returns every live record in a leaf node, in sorted
// order, with the node's prefix re-prepended.
func iterateLeaf(n *Node, codec Codec) []record {
	cnt := n.page.SlotCount()
	out := make([]record, 0, cnt)
	prefix := n.Prefix()
	for i := uint32(0); i < cnt; i++ {
		if n.page.Ghost(i) {
			continue
		}
		k, v := codec.DecodeLeaf(n.page.GetPayloadForSlot(i))
		full := append(append([]byte{}, prefix...), k...)
		out = append(out, record{Key: full, Value: v})
	}
	return out
}

// atomicMove implements spec.md §4.5: move count records starting at
// slot srcFrom in src to the front of dst (dst must be empty on entry,
// the only case rebalance uses), succeed-or-nothing. On any mid-way
// failure every already-inserted destination slot is undone (payload
// freed, slot deleted) before returning false; nothing is removed from
// src unless every record was moved successfully.
func atomicMove(src *Node, srcFrom uint32, count uint32, dst *Node, dstAt uint32) bool {
	moved := 0
	for i := uint32(0); i < count; i++ {
		srcIdx := srcFrom + i
		if src.page.Ghost(srcIdx) {
			moved++
			continue
		}
		blob := src.page.GetPayloadForSlot(srcIdx)
		ptr, ok := dst.page.AllocatePayload(len(blob))
		if !ok {
			undoAtomicMove(dst, dstAt, moved)
			return false
		}
		if !dst.page.InsertSlot(dstAt + uint32(moved)) {
			dst.page.FreePayload(ptr, len(blob))
			undoAtomicMove(dst, dstAt, moved)
			return false
		}
		dst.page.WritePayload(ptr, blob)
		dst.page.SetPmnk(dstAt+uint32(moved), src.page.Pmnk(srcIdx))
		dst.page.SetPayloadPtr(dstAt+uint32(moved), ptr)
		moved++
	}

	// success: delete the moved source slots and free their payloads,
	// from the high end downward so earlier indices stay valid.
	for i := int(count) - 1; i >= 0; i-- {
		srcIdx := srcFrom + uint32(i)
		ptr := src.page.PayloadPtr(srcIdx)
		src.page.FreePayload(ptr, src.page.PayloadLenAt(ptr))
		src.page.DeleteSlot(srcIdx)
	}
	return true
}

func undoAtomicMove(dst *Node, dstAt uint32, moved int) {
	for i := moved - 1; i >= 0; i-- {
		idx := dstAt + uint32(i)
		ptr := dst.page.PayloadPtr(idx)
		dst.page.FreePayload(ptr, dst.page.PayloadLenAt(ptr))
		dst.page.DeleteSlot(idx)
	}
}
