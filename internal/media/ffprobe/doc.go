// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Prober: the probe contract consumed by the consolidation executor
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Helper methods on Result provide stream counts, duration parsing, and
// first-stream lookups. Probe failures are reported as *ProbeError.
package ffprobe
