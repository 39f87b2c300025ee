package ffmpeg

import (
	"fmt"
	"io"
	"strings"
)

// WriteConcatList writes paths in the concat demuxer's list format.
func WriteConcatList(w io.Writer, paths []string) error {
	for _, path := range paths {
		if strings.ContainsAny(path, "\n\r") {
			return fmt.Errorf("concat list: path contains a line break: %q", path)
		}
		escaped := strings.ReplaceAll(path, "'", `'\''`)
		if _, err := fmt.Fprintf(w, "file '%s'\n", escaped); err != nil {
			return fmt.Errorf("concat list: %w", err)
		}
	}
	return nil
}
