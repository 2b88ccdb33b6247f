package testsupport

import (
	"testing"

	"shelfrate/internal/ledger"
)

// NewLedger returns an in-memory ledger with default policy and registers
// cleanup.
func NewLedger(t testing.TB) *ledger.Ledger {
	t.Helper()

	l := ledger.New(ledger.NewMemoryStore(), ledger.DefaultPolicy())
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l
}
