package foster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// (P6) Round-trip: encode(decode(p)) == p byte-wise for every payload
// produced by the layer.
func TestDefaultCodecLeafRoundTrip(t *testing.T) {
	c := DefaultCodec{}
	cases := []struct{ key, value []byte }{
		{[]byte("apple"), []byte("fruit")},
		{[]byte(""), []byte("empty key")},
		{[]byte("k"), []byte("")},
	}
	for _, tc := range cases {
		blob := c.EncodeLeaf(tc.key, tc.value)
		k, v := c.DecodeLeaf(blob)
		require.Equal(t, tc.key, k)
		require.Equal(t, tc.value, v)
		require.Equal(t, blob, c.EncodeLeaf(k, v))
	}
}

func TestDefaultCodecBranchRoundTrip(t *testing.T) {
	c := DefaultCodec{}
	blob := c.EncodeBranch([]byte("separator"), 0xDEADBEEF)
	k, id := c.DecodeBranch(blob)
	require.Equal(t, []byte("separator"), k)
	require.Equal(t, uint64(0xDEADBEEF), id)
}

// Precondition for (B2): two keys that differ only after their first 8
// bytes share a pmnk, so slot search must fall back to full-key comparison.
func TestPMNKCanCollideOnLongKeys(t *testing.T) {
	c := DefaultCodec{}
	a := []byte("aaaaaaaaXXXXXXXX")
	b := []byte("aaaaaaaaYYYYYYYY")
	require.Equal(t, c.PMNK(a), c.PMNK(b), "first 8 bytes intentionally identical")
	require.NotEqual(t, a, b)
}

func TestCommonPrefixLen(t *testing.T) {
	require.Equal(t, 2, commonPrefixLen([]byte("apple"), []byte("apricot")))
	require.Equal(t, 0, commonPrefixLen([]byte("apple"), []byte("banana")))
	require.Equal(t, 5, commonPrefixLen([]byte("apple"), []byte("apple")))
	require.Equal(t, 0, commonPrefixLen(nil, []byte("x")))
}
