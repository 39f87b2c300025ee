package commit

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"clipmerge/internal/catalog"
	"clipmerge/internal/logging"
)

// CleanupOrphans removes temporary outputs abandoned by interrupted runs in
// every artifact directory under the root. It must run after Recover, which
// relies on temp files to tell interrupted commits apart.
func (m *Manager) CleanupOrphans(ctx context.Context) (int, error) {
	categories, err := m.catalog.Categories()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		for _, dir := range m.artifactDirs(category) {
			temps, err := m.catalog.OrphanedTemps(dir)
			if err != nil {
				m.logger.Warn("orphan scan failed", logging.String("dir", dir), logging.Error(err))
				continue
			}
			for _, temp := range temps {
				if err := os.Remove(temp); err != nil {
					m.logger.Warn("failed to remove orphaned temporary output",
						logging.String("path", temp),
						logging.Error(err),
					)
					continue
				}
				removed++
				m.logger.Info("removed orphaned temporary output", logging.String("path", temp))
			}
		}
	}
	return removed, nil
}

// artifactDirs lists the category's combined directory and every scope
// folder, the places a merged artifact (and its temp files) can live.
func (m *Manager) artifactDirs(category catalog.Category) []string {
	dirs := []string{m.catalog.CombinedDir(category)}
	entries, err := os.ReadDir(category.Path)
	if err != nil {
		return dirs
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if name == m.cfg.Fragments.CombinedDir || name == m.cfg.Fragments.ProcessedDir {
			continue
		}
		dirs = append(dirs, filepath.Join(category.Path, name))
	}
	return dirs
}
