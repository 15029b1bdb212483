package foster

import "encoding/binary"

// Codec is the encoding-policy capability spec.md §1 explicitly keeps
// out of scope: how a key collapses into a poor-man's normalized key
// (pmnk) for fast slot comparison, and how a key and value serialize
// into the payload heap. A Tree is built with a default, stdlib-only
// Codec and never hard-codes one.
type Codec interface {
	// PMNK collapses key's leading bytes into a fixed-width, order
	// preserving prefix used for binary search and slot ordering.
	// Ties (pmnk equality) are broken by comparing the full key.
	PMNK(key []byte) uint64

	// EncodeLeaf packs a leaf record's key and value into one payload
	// blob for the slot array's payload heap.
	EncodeLeaf(key, value []byte) []byte

	// DecodeLeaf splits a leaf payload blob back into key and value.
	DecodeLeaf(blob []byte) (key, value []byte)

	// EncodeBranch packs a branch record's separator key and child
	// node id.
	EncodeBranch(key []byte, childID uint64) []byte

	// DecodeBranch splits a branch payload blob back into separator
	// key and child node id.
	DecodeBranch(blob []byte) (key []byte, childID uint64)
}

// DefaultCodec is the stock Codec: pmnk is the big-endian value of the
// key's first 8 bytes (zero-padded), matching the teacher's PutID/GetID
// big-endian fixed-width convention, generalized from a 6-byte page id
// to an 8-byte PMNK per spec.md §1. A leaf payload is a 2-byte key
// length, the key, then the value; a branch payload is the 8-byte child
// id followed by the key. No compression or external library is
// involved, since this is purely an in-process binary layout and no
// pack example wires a schema/serialization library for page-level
// blobs (see DESIGN.md's codec entry).
type DefaultCodec struct{}

// PMNK implements Codec.
func (DefaultCodec) PMNK(key []byte) uint64 {
	var buf [8]byte
	n := copy(buf[:], key)
	_ = n
	return binary.BigEndian.Uint64(buf[:])
}

// EncodeLeaf implements Codec.
func (DefaultCodec) EncodeLeaf(key, value []byte) []byte {
	out := make([]byte, 2+len(key)+len(value))
	binary.LittleEndian.PutUint16(out, uint16(len(key)))
	copy(out[2:], key)
	copy(out[2+len(key):], value)
	return out
}

// DecodeLeaf implements Codec.
func (DefaultCodec) DecodeLeaf(blob []byte) (key, value []byte) {
	klen := binary.LittleEndian.Uint16(blob)
	key = blob[2 : 2+klen]
	value = blob[2+klen:]
	return
}

// EncodeBranch implements Codec.
func (DefaultCodec) EncodeBranch(key []byte, childID uint64) []byte {
	out := make([]byte, 8+len(key))
	binary.LittleEndian.PutUint64(out, childID)
	copy(out[8:], key)
	return out
}

// DecodeBranch implements Codec.
func (DefaultCodec) DecodeBranch(blob []byte) (key []byte, childID uint64) {
	childID = binary.LittleEndian.Uint64(blob)
	key = blob[8:]
	return
}

// commonPrefixLen returns the length of the longest common prefix of a
// and b, used by the FosterNode overlay to maintain its compressed
// Prefix field (spec.md §4.4).
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
