// Package history persists the consolidation journal in SQLite.
//
// Every batch is recorded before its artifact is committed and updated as it
// moves through pending, committed, and archived. On startup the journal is
// the source of truth for finishing archive moves that a crash interrupted
// after the artifact rename, so fragment content is never lost or merged
// twice. Terminal failures are kept for the history command.
package history
