// Package pipeline drives consolidation cycles.
//
// A cycle runs, in order: journal recovery, orphaned temp cleanup,
// planning, one render-and-commit per batch, and finally the optional
// compression pass. A failing batch is journaled and logged, and the cycle
// moves on to the next batch. Only problems that prevent the cycle from
// running at all (an unreadable root, an unusable ledger) are returned as
// errors.
//
// Run performs one cycle immediately and, when given a notification
// channel, waits for filesystem activity, lets it settle, and runs again.
// Cycles never overlap; activity during a cycle leaves one pending signal
// that triggers exactly one follow-up cycle.
package pipeline
