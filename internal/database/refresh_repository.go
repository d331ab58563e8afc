package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"epgcacher/models"
)

// RefreshRepository records the outcome of refresh cycles.
type RefreshRepository struct {
	db *sql.DB
}

// NewRefreshRepository creates a repository over the given connection.
func NewRefreshRepository(db *sql.DB) *RefreshRepository {
	return &RefreshRepository{db: db}
}

// Record inserts one cycle outcome.
func (r *RefreshRepository) Record(result models.RefreshResult) error {
	sourceErrors := ""
	if len(result.SourceErrors) > 0 {
		data, err := json.Marshal(result.SourceErrors)
		if err != nil {
			return fmt.Errorf("encode source errors: %w", err)
		}
		sourceErrors = string(data)
	}

	success := 0
	if result.Success {
		success = 1
	}

	_, err := r.db.Exec(`
		INSERT INTO refresh_history
			(cycle_id, started_at, finished_at, success, generation_id,
			 failure_reason, source_errors, channel_count, programme_count,
			 skipped_entries, carried_forward)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.CycleID, result.StartedAt.UTC(), result.FinishedAt.UTC(), success,
		result.GenerationID, result.FailureReason, sourceErrors,
		result.ChannelCount, result.ProgrammeCount,
		result.SkippedEntries, result.CarriedForward,
	)
	if err != nil {
		return fmt.Errorf("record refresh result: %w", err)
	}
	return nil
}

// Recent returns the most recent cycle outcomes, newest first.
func (r *RefreshRepository) Recent(limit int) ([]models.RefreshResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT cycle_id, started_at, finished_at, success, generation_id,
		       failure_reason, source_errors, channel_count, programme_count,
		       skipped_entries, carried_forward
		FROM refresh_history
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query refresh history: %w", err)
	}
	defer rows.Close()

	var results []models.RefreshResult
	for rows.Next() {
		result, err := scanRefreshResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// LastSuccess returns the most recent successful cycle, or nil when no
// cycle has ever succeeded.
func (r *RefreshRepository) LastSuccess() (*models.RefreshResult, error) {
	row := r.db.QueryRow(`
		SELECT cycle_id, started_at, finished_at, success, generation_id,
		       failure_reason, source_errors, channel_count, programme_count,
		       skipped_entries, carried_forward
		FROM refresh_history
		WHERE success = 1
		ORDER BY started_at DESC, id DESC
		LIMIT 1`)

	result, err := scanRefreshResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Prune removes history rows whose cycle started before the cutoff.
func (r *RefreshRepository) Prune(olderThan time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM refresh_history WHERE started_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune refresh history: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefreshResult(row rowScanner) (models.RefreshResult, error) {
	var (
		result       models.RefreshResult
		success      int
		sourceErrors string
	)
	err := row.Scan(
		&result.CycleID, &result.StartedAt, &result.FinishedAt, &success,
		&result.GenerationID, &result.FailureReason, &sourceErrors,
		&result.ChannelCount, &result.ProgrammeCount,
		&result.SkippedEntries, &result.CarriedForward,
	)
	if err == sql.ErrNoRows {
		return result, err
	}
	if err != nil {
		return result, fmt.Errorf("scan refresh history row: %w", err)
	}
	result.Success = success == 1
	if sourceErrors != "" {
		if err := json.Unmarshal([]byte(sourceErrors), &result.SourceErrors); err != nil {
			return result, fmt.Errorf("decode source errors: %w", err)
		}
	}
	result.StartedAt = result.StartedAt.UTC()
	result.FinishedAt = result.FinishedAt.UTC()
	return result, nil
}
