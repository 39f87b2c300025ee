package history

import (
	"database/sql"
	"time"
)

const batchColumns = "id, cycle_id, category, scope, batch_key, mode, artifact_path, temp_path, temp_identity, status, error_message, started_at, finished_at"

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		batch       Batch
		scope       sql.NullString
		tempPath    sql.NullString
		tempID      sql.NullString
		status      string
		errorMsg    sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&batch.ID,
		&batch.CycleID,
		&batch.Category,
		&scope,
		&batch.Key,
		&batch.Mode,
		&batch.ArtifactPath,
		&tempPath,
		&tempID,
		&status,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	batch.Scope = scope.String
	batch.TempPath = tempPath.String
	batch.TempIdentity = tempID.String
	batch.Status = Status(status)
	batch.Error = errorMsg.String
	batch.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid {
		batch.FinishedAt = parseTime(finishedRaw.String)
	}
	return &batch, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
