package foster

import (
	"github.com/pkg/errors"
)

// Sentinel errors surfaced at the API boundary (spec.md §7). NoSpace is
// deliberately NOT an error: allocator-backed primitives return it as a
// plain bool so split-retry loops can drive on it without allocating or
// inspecting an error value on the hot path.
var (
	// ErrKeyNotFound is returned by Get and Remove when the key is
	// absent.
	ErrKeyNotFound = errors.New("foster: key not found")

	// ErrExistentKey is returned by a sorted insert that finds the key
	// already present and was not asked to upsert.
	ErrExistentKey = errors.New("foster: key already exists")
)

// wrapKeyNotFound attaches the offending key to ErrKeyNotFound while
// keeping errors.Is(err, ErrKeyNotFound) true.
func wrapKeyNotFound(key []byte) error {
	return errors.Wrapf(ErrKeyNotFound, "key %x", key)
}

func wrapExistentKey(key []byte) error {
	return errors.Wrapf(ErrExistentKey, "key %x", key)
}

// debugAsserts gates invariant checking that must never run in a release
// build (spec.md §7: InvariantViolation is fatal and debug-only).
const debugAsserts = false

// invariantViolation panics with a stack-carrying error. It must only be
// called from behind `if debugAsserts`.
func invariantViolation(format string, args ...interface{}) {
	panic(errors.Errorf(format, args...))
}
