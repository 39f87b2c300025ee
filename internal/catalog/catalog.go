package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facette/natsort"

	"clipmerge/internal/config"
	"clipmerge/internal/logging"
)

// Category is one directory directly under the root, e.g. one game.
type Category struct {
	Name string
	Path string
}

// Fragment is one unmerged media file.
type Fragment struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Artifact is a merged file for one stem (a date key, or the scoped
// artifact name) in a given directory.
type Artifact struct {
	Stem         string
	Path         string
	Ext          string
	Intermediate bool
}

// Catalog lists categories, fragments, and artifacts under the configured root.
type Catalog struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock overrides the clock used for minimum-age checks.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Catalog for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "catalog"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Categories returns every non-hidden directory directly under the root in
// natural name order.
func (c *Catalog) Categories() ([]Category, error) {
	root := c.cfg.Paths.Root
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read root %q: %w", root, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || isHidden(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	natsort.Sort(names)

	categories := make([]Category, 0, len(names))
	for _, name := range names {
		categories = append(categories, Category{Name: name, Path: filepath.Join(root, name)})
	}
	return categories, nil
}

// CombinedDir returns the merged-artifact directory of a category.
func (c *Catalog) CombinedDir(cat Category) string {
	return filepath.Join(cat.Path, c.cfg.Fragments.CombinedDir)
}

// ScopedArtifactStem returns the file stem of a scope's merged artifact.
func (c *Catalog) ScopedArtifactStem() string {
	return c.cfg.Fragments.ScopedArtifactName
}

// ProcessedDir returns the archive directory under dir.
func (c *Catalog) ProcessedDir(dir string) string {
	return filepath.Join(dir, c.cfg.Fragments.ProcessedDir)
}

// Fragments lists finished fragments directly under dir in natural name
// order. Sub-directories (combined/, processed/, scopes) are never entered.
// Names listed in exclude are skipped, as are fragments younger than the
// configured minimum age.
func (c *Catalog) Fragments(dir string, exclude ...string) ([]Fragment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", dir, err)
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	minAge := c.cfg.MinFragmentAge()
	now := c.now()
	byName := make(map[string]Fragment, len(entries))
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || isHidden(name) {
			continue
		}
		if _, excluded := skip[name]; excluded {
			continue
		}
		if !c.cfg.IsFragmentExt(filepath.Ext(name)) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %q: %w", filepath.Join(dir, name), err)
		}
		if minAge > 0 && now.Sub(info.ModTime()) < minAge {
			c.logger.Debug("fragment too recent; deferring to next cycle",
				logging.String("fragment", name),
				logging.Duration("age", now.Sub(info.ModTime())),
			)
			continue
		}
		byName[name] = Fragment{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		names = append(names, name)
	}
	natsort.Sort(names)

	fragments := make([]Fragment, 0, len(names))
	for _, name := range names {
		fragments = append(fragments, byName[name])
	}
	return fragments, nil
}

// Artifacts returns the merged artifacts in dir keyed by stem. When both an
// intermediate and a final file exist for a stem, the intermediate wins: it
// is the newer content whose compression has not finished yet.
func (c *Catalog) Artifacts(dir string) (map[string]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Artifact{}, nil
		}
		return nil, fmt.Errorf("read %q: %w", dir, err)
	}
	artifacts := make(map[string]Artifact, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || isHidden(name) {
			continue
		}
		artifact, ok := c.classifyArtifact(dir, name)
		if !ok {
			continue
		}
		if existing, found := artifacts[artifact.Stem]; found && existing.Intermediate {
			continue
		}
		artifacts[artifact.Stem] = artifact
	}
	return artifacts, nil
}

// LookupArtifact returns the current artifact for stem in dir.
func (c *Catalog) LookupArtifact(dir, stem string) (Artifact, bool, error) {
	for _, ext := range c.artifactExts() {
		path := filepath.Join(dir, stem+ext)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Artifact{}, false, fmt.Errorf("stat %q: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		return Artifact{
			Stem:         stem,
			Path:         path,
			Ext:          ext,
			Intermediate: c.cfg.Compress.Enabled && ext == c.cfg.Compress.IntermediateExt,
		}, true, nil
	}
	return Artifact{}, false, nil
}

// ArtifactNames returns every file name the artifact for stem may use, so
// callers can exclude them from fragment listings.
func (c *Catalog) ArtifactNames(stem string) []string {
	exts := c.artifactExts()
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, stem+ext)
	}
	return names
}

// Intermediates returns artifacts in dir that still await compression.
func (c *Catalog) Intermediates(dir string) ([]Artifact, error) {
	if !c.cfg.Compress.Enabled {
		return nil, nil
	}
	artifacts, err := c.Artifacts(dir)
	if err != nil {
		return nil, err
	}
	stems := make([]string, 0, len(artifacts))
	for stem, artifact := range artifacts {
		if artifact.Intermediate {
			stems = append(stems, stem)
		}
	}
	natsort.Sort(stems)
	out := make([]Artifact, 0, len(stems))
	for _, stem := range stems {
		out = append(out, artifacts[stem])
	}
	return out, nil
}

// OrphanedTemps lists temporary outputs in dir left by an interrupted run.
func (c *Catalog) OrphanedTemps(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %q: %w", dir, err)
	}
	var temps []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && IsTempName(entry.Name()) {
			temps = append(temps, filepath.Join(dir, entry.Name()))
		}
	}
	return temps, nil
}

func (c *Catalog) classifyArtifact(dir, name string) (Artifact, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" {
		return Artifact{}, false
	}
	for _, candidate := range c.artifactExts() {
		if ext == candidate {
			return Artifact{
				Stem:         stem,
				Path:         filepath.Join(dir, name),
				Ext:          ext,
				Intermediate: c.cfg.Compress.Enabled && ext == c.cfg.Compress.IntermediateExt,
			}, true
		}
	}
	return Artifact{}, false
}

// artifactExts lists artifact extensions in lookup preference order.
func (c *Catalog) artifactExts() []string {
	if c.cfg.Compress.Enabled {
		return []string{c.cfg.Compress.IntermediateExt, c.cfg.Merge.OutputExt}
	}
	return []string{c.cfg.Merge.OutputExt}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
