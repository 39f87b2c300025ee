// Package ffmpeg builds and executes ffmpeg commands for batch
// consolidation and the later compression pass.
//
// Build helpers produce argument slices only; Client runs them through an
// injectable Executor. Every invocation shares one preamble that silences
// progress output, and failures are returned as *EngineError with the
// stderr tail classified into a Reason.
package ffmpeg
