package foster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertFindRemoveLeaf(t *testing.T) {
	n := newNode(1, 4096, 0)
	codec := DefaultCodec{}

	ok, existed := insertLeaf(n, codec, []byte("b"), []byte("2"))
	require.True(t, ok)
	require.False(t, existed)

	ok, existed = insertLeaf(n, codec, []byte("a"), []byte("1"))
	require.True(t, ok)
	require.False(t, existed)

	ok, existed = insertLeaf(n, codec, []byte("c"), []byte("3"))
	require.True(t, ok)
	require.False(t, existed)

	v, found := findRecord(n, codec, []byte("a"))
	require.True(t, found)
	require.Equal(t, []byte("1"), v)

	// (P2) slots sorted by decoded key.
	require.Equal(t, []byte("a"), n.decodeKeyAt(0, codec))
	require.Equal(t, []byte("b"), n.decodeKeyAt(1, codec))
	require.Equal(t, []byte("c"), n.decodeKeyAt(2, codec))

	// upsert
	ok, existed = insertLeaf(n, codec, []byte("b"), []byte("22"))
	require.True(t, ok)
	require.True(t, existed)
	v, found = findRecord(n, codec, []byte("b"))
	require.True(t, found)
	require.Equal(t, []byte("22"), v)

	require.True(t, removeRecord(n, codec, []byte("b")))
	_, found = findRecord(n, codec, []byte("b"))
	require.False(t, found)
	require.False(t, removeRecord(n, codec, []byte("b")))
}

// Back-stepping find is load-bearing for branch descent (spec.md §9):
// find on miss returns the preceding slot.
func TestFindChildSlotBackStepsOnMiss(t *testing.T) {
	n := newNode(1, 4096, 1)
	codec := DefaultCodec{}
	require.True(t, insertBranch(n, codec, []byte{}, 100))
	require.True(t, insertBranch(n, codec, []byte("m"), 200))
	require.True(t, insertBranch(n, codec, []byte("t"), 300))

	require.Equal(t, uint64(100), findChildID(n, codec, []byte("a")))
	require.Equal(t, uint64(200), findChildID(n, codec, []byte("m")))
	require.Equal(t, uint64(200), findChildID(n, codec, []byte("n")))
	require.Equal(t, uint64(300), findChildID(n, codec, []byte("t")))
	require.Equal(t, uint64(300), findChildID(n, codec, []byte("z")))
}

func TestAtomicMoveSucceedsAndDeletesSource(t *testing.T) {
	src := newNode(1, 4096, 0)
	dst := newNode(2, 4096, 0)
	codec := DefaultCodec{}

	for _, k := range []string{"a", "b", "c", "d"} {
		ok, _ := insertLeaf(src, codec, []byte(k), []byte(k+"v"))
		require.True(t, ok)
	}
	require.True(t, atomicMove(src, 2, 2, dst, 0))
	require.Equal(t, uint32(2), src.page.SlotCount())
	require.Equal(t, uint32(2), dst.page.SlotCount())

	v, found := findRecord(dst, codec, []byte("c"))
	require.True(t, found)
	require.Equal(t, []byte("cv"), v)
	_, found = findRecord(src, codec, []byte("c"))
	require.False(t, found)
}
