package foster

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Logger is the write-only sink capability from spec.md §6: Insert,
// Remove, Rebalance, and Construct events flow through it. It is
// advisory only — nothing in this module replays the log.
type Logger interface {
	Insert(key, value []byte)
	Remove(key []byte)
	Rebalance(splitKey []byte)
	Construct(nodeID uint64)
}

// logrLogger adapts a logr.Logger to the Logger capability, the way
// daicang-mk pairs go-logr/logr with go-logr/stdr for structured,
// level-gated logging instead of calling log.Printf directly.
type logrLogger struct {
	log logr.Logger
}

// NewDefaultLogger builds a Logger backed by stdr writing to stderr.
// High-volume per-record events (Insert/Remove) log at V(1); structural
// events (Rebalance/Construct) log at the default level.
func NewDefaultLogger() Logger {
	std := stdr.New(log.New(os.Stderr, "", log.LstdFlags))
	return &logrLogger{log: std}
}

// NewLogger adapts a caller-supplied logr.Logger.
func NewLogger(l logr.Logger) Logger {
	return &logrLogger{log: l}
}

func (l *logrLogger) Insert(key, value []byte) {
	l.log.V(1).Info("insert", "key", key, "valueLen", len(value))
}

func (l *logrLogger) Remove(key []byte) {
	l.log.V(1).Info("remove", "key", key)
}

func (l *logrLogger) Rebalance(splitKey []byte) {
	l.log.Info("rebalance", "splitKey", splitKey)
}

func (l *logrLogger) Construct(nodeID uint64) {
	l.log.Info("construct", "nodeID", nodeID)
}

// noopLogger discards every event; useful for benchmarks and tests that
// don't want log noise.
type noopLogger struct{}

func (noopLogger) Insert(key, value []byte)  {}
func (noopLogger) Remove(key []byte)         {}
func (noopLogger) Rebalance(splitKey []byte) {}
func (noopLogger) Construct(nodeID uint64)   {}

// NewNoopLogger returns a Logger that discards all events.
func NewNoopLogger() Logger { return noopLogger{} }
