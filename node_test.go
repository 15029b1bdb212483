package foster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fillLeaf(t *testing.T, n *Node, codec Codec, keys ...string) {
	t.Helper()
	for _, k := range keys {
		ok, _ := insertLeaf(n, codec, []byte(k), []byte(k+"-value"))
		require.True(t, ok)
	}
}

func TestSplitPublishesFosterChildWithoutTouchingParentLevel(t *testing.T) {
	codec := DefaultCodec{}
	parent := newNode(1, 256, 0)
	child := newNode(2, 256, 0)
	fillLeaf(t, parent, codec, "a", "b", "c", "d")

	require.True(t, Split(parent, child, codec, NewNoopLogger()))

	require.True(t, parent.HasFosterChild())
	fid, ok := parent.FosterChildID()
	require.True(t, ok)
	require.Equal(t, child.id, fid)

	// (P4) node.HighKey == f.HighKey; f.LowKey == node.FosterKey.
	require.Equal(t, parent.HighKey(), child.HighKey())
	require.Equal(t, parent.FosterKey(), child.LowKey())
	require.Equal(t, parent.Level(), child.Level())

	// every remaining parent key is below FosterKey; every child key is
	// at or above it (P3, via key_range_contains).
	for i := uint32(0); i < parent.page.SlotCount(); i++ {
		require.True(t, parent.KeyRangeContains(parent.decodeKeyAt(i, codec)))
	}
	for _, rec := range iterateLeaf(child, codec) {
		require.True(t, child.FenceContains(rec.Key))
	}
}

func TestAddFosterChildInheritsChain(t *testing.T) {
	codec := DefaultCodec{}
	grandparent := newNode(1, 256, 0)
	fillLeaf(t, grandparent, codec, "m", "n")
	mid := newNode(2, 256, 0)
	require.True(t, Split(grandparent, mid, codec, NewNoopLogger()))
	origFosterKey := grandparent.FosterKey()
	require.NotNil(t, origFosterKey)

	// grandparent now has a foster child (mid). Extend the chain one
	// more hop with a second AddFosterChild, as tryAdopt's internal
	// parent-split would: grandparent -> far -> mid.
	far := newNode(3, 256, 0)
	require.True(t, AddFosterChild(grandparent, far))

	farID, ok := far.FosterChildID()
	require.True(t, ok)
	require.Equal(t, mid.id, farID)
	require.Equal(t, origFosterKey, far.FosterKey())

	gfid, ok := grandparent.FosterChildID()
	require.True(t, ok)
	require.Equal(t, far.id, gfid)
	require.Nil(t, grandparent.FosterKey(), "parent's own foster key is unset after chain extension")
}

func TestKeyRangeContainsExcludesFosterChildKeys(t *testing.T) {
	codec := DefaultCodec{}
	n := newNode(1, 256, 0)
	fillLeaf(t, n, codec, "a", "b", "c", "d")
	child := newNode(2, 256, 0)
	require.True(t, Split(n, child, codec, NewNoopLogger()))

	fk := n.FosterKey()
	require.False(t, n.KeyRangeContains(fk), "foster key itself belongs to the foster child")
	require.True(t, n.FenceContains(fk), "fence alone does not exclude it")
}

// (B3) Prefix-truncated variable-length keys: after a foster unlink
// that tightens the fence, every stored key is re-prefixable to its
// original value.
func TestTruncateKeysPreservesFullKeys(t *testing.T) {
	codec := DefaultCodec{}
	// After a foster unlink drops every key but "apple" from this node,
	// the node's common prefix can grow from "ap" to "appl" — every
	// stored key must still be re-prefixable to its original value.
	n := newNode(1, 512, 0)
	require.True(t, n.SetPrefix([]byte("ap")))
	ok, _ := insertLeaf(n, codec, []byte("ple"), []byte("apple-value"))
	require.True(t, ok)

	require.True(t, n.TruncateKeys(codec, []byte("pl")))
	require.Equal(t, []byte("appl"), n.Prefix())

	full := iterateLeaf(n, codec)
	require.Len(t, full, 1)
	require.Equal(t, []byte("apple"), full[0].Key)
	require.Equal(t, []byte("apple-value"), full[0].Value)
}
