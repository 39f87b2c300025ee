// Package commit is the only writer of merged artifacts and the only mover
// of fragments into the archive.
//
// A batch is rendered into a hidden temporary file beside its artifact. The
// rename of that file over the artifact path is the single commit point;
// fragments are archived only afterwards. Each step is journaled in the
// history ledger so a crash between the rename and the last archive move is
// finished on the next run instead of merging the same fragments twice.
//
// The package also removes temporary files abandoned by interrupted runs
// and, when compression is enabled, re-encodes intermediate artifacts into
// their final format.
package commit
