// Package catalog reads the highlights tree and reports what is unmerged,
// what is already merged, and what was left behind by an interrupted run.
//
// State is inferred purely from directory membership: a fragment is any
// finished media file directly under a category (or scope) directory; merged
// artifacts live under combined/ (or as the scope's combined file); consumed
// fragments live under processed/ and are never offered again. Hidden names
// are reserved for in-flight temporary output and are never treated as
// fragments or artifacts.
package catalog
