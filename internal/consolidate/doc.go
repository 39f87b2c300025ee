// Package consolidate drives the media engine over one planned batch.
//
// Each element is probed for its duration and streams, real fragments get
// a short fade in and out, the existing merged artifact (when extending) is
// passed through untouched, and the engine is invoked exactly once to write
// the whole batch to a caller-chosen temporary path. Any probe or engine
// failure aborts the batch; the caller decides what to do with the temp
// file.
package consolidate
