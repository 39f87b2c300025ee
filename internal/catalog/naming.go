package catalog

import (
	"strings"

	"github.com/google/uuid"
)

const tempMarker = ".partial-"

// TempName returns a hidden, unique file name for in-flight output that will
// later be renamed to stem+ext. The extension is kept so the media engine can
// infer the container.
func TempName(stem, ext string) string {
	return "." + stem + tempMarker + uuid.NewString()[:8] + ext
}

// IsTempName reports whether name was produced by TempName.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, tempMarker)
}
