package testsupport

import (
	"testing"

	"clipmerge/internal/config"
	"clipmerge/internal/history"
)

// MustOpenLedger opens a history.Ledger for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config, opts ...history.Option) *history.Ledger {
	t.Helper()

	ledger, err := history.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = ledger.Close()
	})
	return ledger
}
