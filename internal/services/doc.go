// Package services defines shared error markers consumed by the consolidation
// pipeline and its external-tool adapters.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that keep failure
//     messages uniform (component: operation: message: cause).
//   - FailureStatus, which translates a failed batch into the ledger status
//     shown by `clipmerge history` (failed and retried next cycle, or blocked
//     until an operator intervenes).
package services
