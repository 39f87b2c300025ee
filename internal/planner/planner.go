package planner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"clipmerge/internal/catalog"
	"clipmerge/internal/datekey"
	"clipmerge/internal/logging"
)

// Mode says whether a batch starts a new artifact or extends an existing one.
type Mode string

const (
	ModeNew    Mode = "new"
	ModeExtend Mode = "extend"
)

// Element is one input of a batch, in concatenation order.
type Element struct {
	Name string
	Path string
	// Existing marks the synthetic reference to the current merged artifact.
	Existing bool
}

// Target describes where a batch's artifact lives.
type Target struct {
	Dir  string
	Stem string
}

// Batch is every fragment sharing one key within one category or scope.
type Batch struct {
	Category     string
	CategoryPath string
	Scope        string
	Key          string
	Mode         Mode
	Target       Target
	ArchiveDir   string
	Existing     *catalog.Artifact
	Elements     []Element
	Fragments    []catalog.Fragment
}

// Label identifies the batch in logs.
func (b *Batch) Label() string {
	if b.Scope != "" {
		return b.Category + "/" + b.Scope
	}
	return b.Category + "/" + b.Key
}

// Skipped records a fragment that could not be placed in any batch.
type Skipped struct {
	Category string
	Path     string
	Reason   string
}

// Plan is the outcome of one planning pass.
type Plan struct {
	Batches []*Batch
	Skipped []Skipped
}

// FragmentCount totals the real fragments across all batches.
func (p *Plan) FragmentCount() int {
	total := 0
	for _, batch := range p.Batches {
		total += len(batch.Fragments)
	}
	return total
}

// Planner builds batches from a catalog.
type Planner struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// New constructs a Planner over cat.
func New(cat *catalog.Catalog, logger *slog.Logger) *Planner {
	return &Planner{
		catalog: cat,
		logger:  logging.NewComponentLogger(logger, "planner"),
	}
}

// PlanRoot groups every category's fragments by date key.
func (p *Planner) PlanRoot() (*Plan, error) {
	categories, err := p.catalog.Categories()
	if err != nil {
		return nil, err
	}
	plan := &Plan{}
	for _, category := range categories {
		if err := p.planCategory(plan, category); err != nil {
			logging.WarnWithContext(p.logger, "category scan failed; skipping",
				"category_scan_failed",
				logging.String(logging.FieldCategory, category.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "fragments in this category wait for the next cycle"),
			)
		}
	}
	return plan, nil
}

func (p *Planner) planCategory(plan *Plan, category catalog.Category) error {
	fragments, err := p.catalog.Fragments(category.Path)
	if err != nil {
		return err
	}
	if len(fragments) == 0 {
		return nil
	}

	combinedDir := p.catalog.CombinedDir(category)
	groups := make(map[string][]catalog.Fragment)
	var order []string
	for _, fragment := range fragments {
		key, ok := datekey.Extract(fragment.Name)
		if !ok {
			p.logger.Warn("fragment has no date key; leaving in place",
				logging.String(logging.FieldCategory, category.Name),
				logging.String("fragment", fragment.Name),
				logging.String(logging.FieldEventType, "fragment_keyless"),
			)
			plan.Skipped = append(plan.Skipped, Skipped{
				Category: category.Name,
				Path:     fragment.Path,
				Reason:   "no date key",
			})
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], fragment)
	}

	for _, key := range order {
		batch, err := p.buildBatch(category, "", key, combinedDir, p.catalog.ProcessedDir(category.Path), groups[key])
		if err != nil {
			logging.WarnWithContext(p.logger, "artifact lookup failed; skipping key",
				"artifact_lookup_failed",
				logging.String(logging.FieldCategory, category.Name),
				logging.String(logging.FieldKey, key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "fragments for this day wait for the next cycle"),
			)
			for _, fragment := range groups[key] {
				plan.Skipped = append(plan.Skipped, Skipped{
					Category: category.Name,
					Path:     fragment.Path,
					Reason:   "artifact lookup failed",
				})
			}
			continue
		}
		if batch != nil {
			plan.Batches = append(plan.Batches, batch)
		}
	}
	return nil
}

// PlanScope builds one batch per category that contains the named sub-folder.
func (p *Planner) PlanScope(scope string) (*Plan, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" || scope == "." || scope == ".." || strings.ContainsAny(scope, `/\`) {
		return nil, fmt.Errorf("invalid scope %q: must be a single folder name", scope)
	}
	categories, err := p.catalog.Categories()
	if err != nil {
		return nil, err
	}
	stem := p.catalog.ScopedArtifactStem()
	plan := &Plan{}
	for _, category := range categories {
		dir := filepath.Join(category.Path, scope)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		fragments, err := p.catalog.Fragments(dir, p.catalog.ArtifactNames(stem)...)
		if err != nil {
			logging.WarnWithContext(p.logger, "scope scan failed; skipping",
				"scope_scan_failed",
				logging.String(logging.FieldCategory, category.Name),
				logging.String("scope", scope),
				logging.Error(err),
			)
			continue
		}
		batch, err := p.buildBatch(category, scope, scope, dir, p.catalog.ProcessedDir(dir), fragments)
		if err != nil {
			logging.WarnWithContext(p.logger, "scope artifact lookup failed; skipping",
				"scope_scan_failed",
				logging.String(logging.FieldCategory, category.Name),
				logging.String("scope", scope),
				logging.Error(err),
			)
			continue
		}
		if batch != nil {
			plan.Batches = append(plan.Batches, batch)
		}
	}
	return plan, nil
}

func (p *Planner) buildBatch(category catalog.Category, scope, key, artifactDir, archiveDir string, fragments []catalog.Fragment) (*Batch, error) {
	if len(fragments) == 0 {
		return nil, nil
	}
	stem := key
	if scope != "" {
		stem = p.catalog.ScopedArtifactStem()
	}
	existing, found, err := p.catalog.LookupArtifact(artifactDir, stem)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		Category:     category.Name,
		CategoryPath: category.Path,
		Scope:        scope,
		Key:          key,
		Mode:         ModeNew,
		Target:       Target{Dir: artifactDir, Stem: stem},
		ArchiveDir:   archiveDir,
		Fragments:    fragments,
		Elements:     make([]Element, 0, len(fragments)+1),
	}
	if found {
		batch.Mode = ModeExtend
		batch.Existing = &existing
		batch.Elements = append(batch.Elements, Element{
			Name:     filepath.Base(existing.Path),
			Path:     existing.Path,
			Existing: true,
		})
	}
	for _, fragment := range fragments {
		batch.Elements = append(batch.Elements, Element{Name: fragment.Name, Path: fragment.Path})
	}
	return batch, nil
}
