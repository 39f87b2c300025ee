package commit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"clipmerge/internal/fileutil"
	"clipmerge/internal/history"
	"clipmerge/internal/logging"
)

// RecoveryReport summarizes one Recover pass.
type RecoveryReport struct {
	Completed int
	Discarded int
	// Stuck lists fragment paths that belong to a committed artifact but
	// could not be archived yet. They must not be offered to a new batch.
	Stuck map[string]struct{}
}

// Recover finishes or rolls back journal entries left unfinished by an
// earlier run. A committed entry (or a pending one whose temp file is now
// the artifact) already has its fragments inside the artifact, so the
// remaining archive moves are completed. Any other pending entry never
// reached the commit point: it is marked failed and its temp file removed.
func (m *Manager) Recover(ctx context.Context) (RecoveryReport, error) {
	report := RecoveryReport{Stuck: make(map[string]struct{})}
	entries, err := m.journal.Unfinished(ctx)
	if err != nil {
		return report, fmt.Errorf("load unfinished batches: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logger := m.logger.With(
			logging.String(logging.FieldBatchID, entry.ID),
			logging.String(logging.FieldCategory, entry.Category),
			logging.String(logging.FieldKey, entry.Key),
		)

		if entry.Status == history.StatusPending && !m.pendingWasRenamed(entry) {
			if err := m.journal.MarkFailed(ctx, entry.ID, history.StatusFailed, "interrupted before commit"); err != nil {
				logger.Warn("failed to journal interrupted batch", logging.Error(err))
				continue
			}
			m.Discard(entry.TempPath)
			report.Discarded++
			logger.Info("discarded batch interrupted before commit")
			continue
		}

		if entry.Status == history.StatusPending {
			if err := m.journal.MarkCommitted(ctx, entry.ID); err != nil {
				logger.Warn("failed to journal recovered commit", logging.Error(err))
			}
		}
		if err := m.finishArchive(entry); err != nil {
			for _, fragment := range entry.Fragments {
				if fileutil.Exists(fragment.SourcePath) {
					report.Stuck[fragment.SourcePath] = struct{}{}
				}
			}
			logging.ErrorWithContext(logger, "could not finish archiving committed batch", "recovery_archive_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix permissions or free space; fragments stay out of new batches until archived"),
			)
			continue
		}
		if err := m.journal.MarkArchived(ctx, entry.ID); err != nil {
			logger.Warn("failed to journal recovered archive", logging.Error(err))
		}
		report.Completed++
		logger.Info("completed archive of committed batch", logging.Int("fragments", len(entry.Fragments)))
	}
	return report, nil
}

// pendingWasRenamed reports whether the file now at the artifact path is the
// temp file recorded at Begin, meaning the crash came after the rename. An
// artifact that merely exists, as in extend mode, proves nothing.
func (m *Manager) pendingWasRenamed(entry *history.Batch) bool {
	if entry.TempIdentity == "" || fileutil.Exists(entry.TempPath) {
		return false
	}
	return fileutil.Identity(entry.ArtifactPath) == entry.TempIdentity
}

// finishArchive moves every fragment still in the active set. A fragment
// present at both paths was interrupted mid-copy; the archive copy is
// discarded and the move redone.
func (m *Manager) finishArchive(entry *history.Batch) error {
	for _, fragment := range entry.Fragments {
		if !fileutil.Exists(fragment.SourcePath) {
			continue
		}
		if fileutil.Exists(fragment.ArchivePath) {
			if err := os.Remove(fragment.ArchivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove partial archive %q: %w", fragment.ArchivePath, err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(fragment.ArchivePath), 0o755); err != nil {
			return fmt.Errorf("create archive directory: %w", err)
		}
		if err := fileutil.MoveNoClobber(fragment.SourcePath, fragment.ArchivePath); err != nil {
			return err
		}
	}
	return nil
}
