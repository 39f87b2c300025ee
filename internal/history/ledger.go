package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"clipmerge/internal/config"
)

// ErrBatchNotFound is returned when a journal entry does not exist.
var ErrBatchNotFound = errors.New("batch not found")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger is the SQLite-backed consolidation journal.
type Ledger struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Open connects to the ledger under the configured state directory.
func Open(cfg *config.Config, opts ...Option) (*Ledger, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.LedgerPath(), opts...)
}

// OpenPath connects to (or creates) the ledger at path and applies migrations.
func OpenPath(path string, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	ledger := &Ledger{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(ledger)
	}
	if err := ledger.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Begin records batch as pending together with its fragment moves. An ID is
// assigned when the batch has none.
func (l *Ledger) Begin(ctx context.Context, batch *Batch) error {
	if batch == nil {
		return errors.New("batch is nil")
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	batch.Status = StatusPending
	batch.StartedAt = l.now().UTC()
	batch.FinishedAt = time.Time{}
	batch.Error = ""

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO batches (
            id, cycle_id, category, scope, batch_key, mode, artifact_path, temp_path,
            temp_identity, fragment_count, status, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.CycleID,
		batch.Category,
		nullableString(batch.Scope),
		batch.Key,
		batch.Mode,
		batch.ArtifactPath,
		nullableString(batch.TempPath),
		nullableString(batch.TempIdentity),
		len(batch.Fragments),
		batch.Status,
		batch.StartedAt.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	for i, fragment := range batch.Fragments {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO batch_fragments (batch_id, position, name, source_path, archive_path) VALUES (?, ?, ?, ?, ?)`,
			batch.ID, i, fragment.Name, fragment.SourcePath, fragment.ArchivePath,
		); err != nil {
			return fmt.Errorf("insert fragment %s: %w", fragment.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// MarkCommitted records that the artifact rename has happened.
func (l *Ledger) MarkCommitted(ctx context.Context, id string) error {
	return l.transition(ctx, id, StatusCommitted, "", StatusPending)
}

// MarkArchived records that every fragment has reached the archive.
func (l *Ledger) MarkArchived(ctx context.Context, id string) error {
	return l.transition(ctx, id, StatusArchived, "", StatusCommitted)
}

// MarkFailed records that a pending batch was aborted. status must be
// StatusFailed or StatusBlocked.
func (l *Ledger) MarkFailed(ctx context.Context, id string, status Status, message string) error {
	if status != StatusFailed && status != StatusBlocked {
		return fmt.Errorf("invalid failure status %q", status)
	}
	return l.transition(ctx, id, status, message, StatusPending)
}

func (l *Ledger) transition(ctx context.Context, id string, to Status, message string, from Status) error {
	var finishedAt any
	if to.Terminal() {
		finishedAt = l.now().UTC().Format(timeLayout)
	}
	res, err := l.db.ExecContext(
		ctx,
		`UPDATE batches SET status = ?, error_message = ?, finished_at = COALESCE(?, finished_at)
         WHERE id = ? AND status = ?`,
		to, nullableString(message), finishedAt, id, from,
	)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := l.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("batch %s: cannot move from %s to %s", id, current.Status, to)
	}
	return nil
}

// Get loads a batch and its fragments.
func (l *Ledger) Get(ctx context.Context, id string) (*Batch, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	if err := l.loadFragments(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Unfinished returns pending and committed batches, oldest first.
func (l *Ledger) Unfinished(ctx context.Context) ([]*Batch, error) {
	return l.query(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE status IN (?, ?) ORDER BY started_at, id`,
		StatusPending, StatusCommitted,
	)
}

// Recent returns the newest batches, optionally filtered by status.
func (l *Ledger) Recent(ctx context.Context, limit int, statuses ...Status) ([]*Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + batchColumns + ` FROM batches`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	return l.query(ctx, query, args...)
}

// Counts returns the number of batches per status.
func (l *Ledger) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM batches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count batches: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]*Batch, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	_ = rows.Close()

	for _, batch := range batches {
		if err := l.loadFragments(ctx, batch); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

func (l *Ledger) loadFragments(ctx context.Context, batch *Batch) error {
	rows, err := l.db.QueryContext(
		ctx,
		`SELECT name, source_path, archive_path FROM batch_fragments WHERE batch_id = ? ORDER BY position`,
		batch.ID,
	)
	if err != nil {
		return fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	batch.Fragments = batch.Fragments[:0]
	for rows.Next() {
		var fragment Fragment
		if err := rows.Scan(&fragment.Name, &fragment.SourcePath, &fragment.ArchivePath); err != nil {
			return fmt.Errorf("scan fragment: %w", err)
		}
		batch.Fragments = append(batch.Fragments, fragment)
	}
	return rows.Err()
}
