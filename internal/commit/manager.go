package commit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"clipmerge/internal/catalog"
	"clipmerge/internal/config"
	"clipmerge/internal/fileutil"
	"clipmerge/internal/history"
	"clipmerge/internal/logging"
	"clipmerge/internal/media/ffmpeg"
	"clipmerge/internal/planner"
	"clipmerge/internal/services"
)

const component = "commit"

// Journal records batch progress. *history.Ledger satisfies it.
type Journal interface {
	Begin(ctx context.Context, batch *history.Batch) error
	MarkCommitted(ctx context.Context, id string) error
	MarkArchived(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, status history.Status, message string) error
	Unfinished(ctx context.Context) ([]*history.Batch, error)
}

// Compressor re-encodes one file. *ffmpeg.Client satisfies it.
type Compressor interface {
	Compress(ctx context.Context, input, output string, enc ffmpeg.Encode) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithCompressor injects a custom compressor (primarily for tests).
func WithCompressor(c Compressor) Option {
	return func(m *Manager) {
		if c != nil {
			m.compressor = c
		}
	}
}

// Manager stages, commits, and archives batches.
type Manager struct {
	cfg        *config.Config
	catalog    *catalog.Catalog
	journal    Journal
	compressor Compressor
	logger     *slog.Logger
}

// New constructs a Manager.
func New(cfg *config.Config, cat *catalog.Catalog, journal Journal, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		catalog:    cat,
		journal:    journal,
		compressor: ffmpeg.New(cfg.Merge.FFmpegBinary),
		logger:     logging.NewComponentLogger(logger, component),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Outcome describes a commit attempt. BatchID is set once the batch has a
// journal entry; Committed once the artifact has been replaced.
type Outcome struct {
	BatchID      string
	Committed    bool
	ArtifactPath string
	Archived     []string
	Superseded   string
}

// ArtifactPath returns the canonical artifact path a batch commits to.
func (m *Manager) ArtifactPath(batch *planner.Batch) string {
	return filepath.Join(batch.Target.Dir, batch.Target.Stem+m.cfg.ArtifactExt())
}

// Stage returns a fresh temporary output path beside the batch's artifact,
// creating the artifact directory if needed.
func (m *Manager) Stage(batch *planner.Batch) (string, error) {
	if err := os.MkdirAll(batch.Target.Dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, component, "stage", "create artifact directory", err)
	}
	return filepath.Join(batch.Target.Dir, catalog.TempName(batch.Target.Stem, m.cfg.ArtifactExt())), nil
}

// Discard removes a temporary output. Missing files are ignored.
func (m *Manager) Discard(tempPath string) {
	if tempPath == "" {
		return
	}
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove temporary output",
			logging.String("path", tempPath),
			logging.Error(err),
		)
	}
}

// Preflight verifies that every fragment can be archived without clobbering
// an existing archive entry.
func (m *Manager) Preflight(batch *planner.Batch) error {
	if err := os.MkdirAll(batch.ArchiveDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, component, "preflight", "create archive directory", err)
	}
	for _, fragment := range batch.Fragments {
		if _, err := os.Stat(fragment.Path); err != nil {
			return services.Wrap(services.ErrNotFound, component, "preflight",
				fmt.Sprintf("fragment %s disappeared", fragment.Name), err)
		}
		archivePath := filepath.Join(batch.ArchiveDir, fragment.Name)
		if fileutil.Exists(archivePath) {
			return services.Wrap(services.ErrValidation, component, "preflight",
				fmt.Sprintf("archive entry %s already exists", archivePath), nil)
		}
	}
	return nil
}

// Commit promotes tempPath to the batch's artifact and archives its
// fragments. Any error before the rename leaves the previous artifact and
// every fragment untouched and removes tempPath, unless the failure could not
// be journaled, in which case Recover removes it. An error after the rename
// leaves the journal entry committed for Recover to finish.
func (m *Manager) Commit(ctx context.Context, cycleID string, batch *planner.Batch, tempPath string) (Outcome, error) {
	if err := m.Preflight(batch); err != nil {
		m.Discard(tempPath)
		return Outcome{}, err
	}

	artifactPath := m.ArtifactPath(batch)
	record := &history.Batch{
		ID:           uuid.NewString(),
		CycleID:      cycleID,
		Category:     batch.Category,
		Scope:        batch.Scope,
		Key:          batch.Key,
		Mode:         string(batch.Mode),
		ArtifactPath: artifactPath,
		TempPath:     tempPath,
		TempIdentity: fileutil.Identity(tempPath),
		Fragments:    make([]history.Fragment, 0, len(batch.Fragments)),
	}
	for _, fragment := range batch.Fragments {
		record.Fragments = append(record.Fragments, history.Fragment{
			Name:        fragment.Name,
			SourcePath:  fragment.Path,
			ArchivePath: filepath.Join(batch.ArchiveDir, fragment.Name),
		})
	}
	if err := m.journal.Begin(ctx, record); err != nil {
		m.Discard(tempPath)
		return Outcome{}, services.Wrap(services.ErrTransient, component, "journal", "record pending batch", err)
	}
	logger := m.logger.With(
		logging.String(logging.FieldBatchID, record.ID),
		logging.String(logging.FieldCategory, batch.Category),
		logging.String(logging.FieldKey, batch.Key),
	)

	if err := fileutil.Rename(tempPath, artifactPath); err != nil {
		// The temp file is only removed once the entry is no longer pending;
		// otherwise Recover discards it.
		wrapped := services.Wrap(services.ErrTransient, component, "rename", "promote merged artifact", err)
		if m.markFailed(ctx, record.ID, wrapped) == nil {
			m.Discard(tempPath)
		}
		return Outcome{BatchID: record.ID}, wrapped
	}
	if err := fileutil.SyncDir(batch.Target.Dir); err != nil {
		logger.Warn("artifact directory sync failed", logging.Error(err))
	}
	if err := m.journal.MarkCommitted(ctx, record.ID); err != nil {
		logger.Error("failed to journal commit; recovery will treat batch as committed",
			logging.String(logging.FieldEventType, "journal_commit_failed"),
			logging.Error(err),
		)
	}

	outcome := Outcome{BatchID: record.ID, Committed: true, ArtifactPath: artifactPath}
	if batch.Existing != nil && batch.Existing.Path != artifactPath {
		if err := os.Remove(batch.Existing.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove superseded artifact",
				logging.String("path", batch.Existing.Path),
				logging.Error(err),
			)
		} else {
			outcome.Superseded = batch.Existing.Path
		}
	}

	archived, err := m.archive(record.Fragments)
	outcome.Archived = archived
	if err != nil {
		logging.ErrorWithContext(logger, "archive incomplete after commit", "archive_incomplete",
			logging.Error(err),
			logging.Int("archived", len(archived)),
			logging.Int("fragments", len(record.Fragments)),
			logging.String(logging.FieldErrorHint, "fix permissions or free space; remaining moves finish on the next cycle"),
		)
		return outcome, services.Wrap(services.ErrTransient, component, "archive", "move fragments", err)
	}
	if err := m.journal.MarkArchived(ctx, record.ID); err != nil {
		logger.Warn("failed to journal archive completion", logging.Error(err))
	}
	logger.Info("batch committed",
		logging.String("artifact", artifactPath),
		logging.Int("archived", len(archived)),
	)
	return outcome, nil
}

// archive moves every fragment to its archive path, stopping at the first
// failure.
func (m *Manager) archive(fragments []history.Fragment) ([]string, error) {
	archived := make([]string, 0, len(fragments))
	dirs := make(map[string]struct{})
	for _, fragment := range fragments {
		if err := fileutil.MoveNoClobber(fragment.SourcePath, fragment.ArchivePath); err != nil {
			return archived, err
		}
		archived = append(archived, fragment.ArchivePath)
		dirs[filepath.Dir(fragment.SourcePath)] = struct{}{}
	}
	for dir := range dirs {
		if err := fileutil.SyncDir(dir); err != nil {
			m.logger.Debug("source directory sync failed", logging.String("dir", dir), logging.Error(err))
		}
	}
	return archived, nil
}

// RecordFailure journals a batch that failed before reaching the commit
// point so it shows up in history.
func (m *Manager) RecordFailure(ctx context.Context, cycleID string, batch *planner.Batch, cause error) {
	record := &history.Batch{
		ID:           uuid.NewString(),
		CycleID:      cycleID,
		Category:     batch.Category,
		Scope:        batch.Scope,
		Key:          batch.Key,
		Mode:         string(batch.Mode),
		ArtifactPath: m.ArtifactPath(batch),
	}
	for _, fragment := range batch.Fragments {
		record.Fragments = append(record.Fragments, history.Fragment{
			Name:        fragment.Name,
			SourcePath:  fragment.Path,
			ArchivePath: filepath.Join(batch.ArchiveDir, fragment.Name),
		})
	}
	if err := m.journal.Begin(ctx, record); err != nil {
		m.logger.Warn("failed to journal batch failure", logging.Error(err))
		return
	}
	_ = m.markFailed(ctx, record.ID, cause)
}

func (m *Manager) markFailed(ctx context.Context, id string, cause error) error {
	err := m.journal.MarkFailed(ctx, id, services.FailureStatus(cause), cause.Error())
	if err != nil {
		m.logger.Warn("failed to journal batch failure",
			logging.String(logging.FieldBatchID, id),
			logging.Error(err),
		)
	}
	return err
}
