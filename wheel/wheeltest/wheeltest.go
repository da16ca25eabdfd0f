// Package wheeltest holds small test helpers for the wheel package's test
// files: a zaptest-backed logger for
// exercising the logged constructor variants, and a comparable pair
// snapshot for readable head/last assertions.
package wheeltest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewLogger returns a *zap.SugaredLogger that writes through t.Log, for
// tests exercising HandshakeLogged/AcceptLogged instead of the silent
// Handshake/Accept entry points.
func NewLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	return zaptest.NewLogger(t).Sugar()
}

// PairSnapshot is a plain, comparable view of a wheel header's packed
// head/last pair, decoupled from the wheel package's own Offset type so
// this package stays a leaf with no import back on wheel.
type PairSnapshot struct {
	Head uint32
	Last uint32
}

// DiffPair returns a human-readable diff between two snapshots, empty if
// they're equal.
func DiffPair(want, got PairSnapshot) string {
	return cmp.Diff(want, got)
}
