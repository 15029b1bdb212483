package foster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatchReadersConcurrent(t *testing.T) {
	var l Latch
	l.AcquireRead()
	require.True(t, l.HasReader())
	l.AcquireRead()

	done := make(chan struct{})
	go func() {
		l.AcquireRead()
		l.ReleaseRead()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader should not block behind another reader")
	}

	l.ReleaseRead()
	l.ReleaseRead()
	require.False(t, l.HasReader())
}

func TestLatchWriterExcludesReaders(t *testing.T) {
	var l Latch
	l.AcquireWrite()
	require.True(t, l.HasWriter())

	acquired := make(chan struct{})
	go func() {
		l.AcquireRead()
		close(acquired)
		l.ReleaseRead()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired while writer held the latch")
	case <-time.After(50 * time.Millisecond):
	}

	l.ReleaseWrite()
	<-acquired
}

func TestLatchAttemptUpgradeSucceedsAlone(t *testing.T) {
	var l Latch
	l.AcquireRead()
	require.True(t, l.AttemptUpgrade())
	require.True(t, l.HasWriter())
	l.ReleaseWrite()
}

func TestLatchAttemptUpgradeFailsWithOtherReaders(t *testing.T) {
	var l Latch
	l.AcquireRead()
	l.AcquireRead()
	require.False(t, l.AttemptUpgrade())
	// latch must still be held for read afterward, same as before the call.
	require.True(t, l.HasReader())
	l.ReleaseRead()
	l.ReleaseRead()
}

func TestLatchDowngrade(t *testing.T) {
	var l Latch
	l.AcquireWrite()
	l.Downgrade()
	require.True(t, l.HasReader())
	require.False(t, l.HasWriter())
	l.ReleaseRead()
}
