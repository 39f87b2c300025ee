package ffmpeg

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Reason classifies why an engine invocation failed.
type Reason string

const (
	ReasonMissingStream Reason = "missing_stream"
	ReasonInvalidData   Reason = "invalid_data"
	ReasonNoSpace       Reason = "no_space"
	ReasonPermission    Reason = "permission"
	ReasonUnknown       Reason = "unknown"
)

// Checked in order; first match wins.
var (
	reNoSpace       = regexp.MustCompile(`(?i)No space left on device|Disk quota exceeded`)
	rePermission    = regexp.MustCompile(`(?i)Permission denied|Operation not permitted|Read-only file system`)
	reMissingStream = regexp.MustCompile(
		`(?i)Stream specifier ':[av]:0' in filtergraph description .* matches no streams|` +
			`matches no streams|` +
			`Output file #\d+ does not contain any stream|` +
			`Stream map '.*' matches no streams`)
	reInvalidData = regexp.MustCompile(
		`(?i)Invalid data found when processing input|` +
			`moov atom not found|` +
			`Error while decoding stream|` +
			`could not find codec parameters|` +
			`End of file|` +
			`Invalid argument`)
)

// Classify maps engine stderr to a Reason.
func Classify(stderr string) Reason {
	switch {
	case reNoSpace.MatchString(stderr):
		return ReasonNoSpace
	case rePermission.MatchString(stderr):
		return ReasonPermission
	case reMissingStream.MatchString(stderr):
		return ReasonMissingStream
	case reInvalidData.MatchString(stderr):
		return ReasonInvalidData
	default:
		return ReasonUnknown
	}
}

// EngineError reports a failed ffmpeg invocation.
type EngineError struct {
	ExitCode int
	Stderr   string
	Reason   Reason
	Err      error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("ffmpeg failed (%s, exit %d)", e.Reason, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// AsEngineError extracts an *EngineError from err.
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

const stderrTailBytes = 4096

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTailBytes {
		return s
	}
	s = s[len(s)-stderrTailBytes:]
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	return s
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
