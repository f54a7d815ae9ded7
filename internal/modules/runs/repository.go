package runs

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository stores runs in the runs database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "margin_runs").Logger(),
	}
}

const runColumns = `id, label, evaluation_time, created_at, fingerprint, coordinates, paths,
	posting_threshold, total_mean, total_p99, floor_events`

// Create inserts a run together with its encoded breakdown.
func (r *Repository) Create(ctx context.Context, run Run, rec record) error {
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO margin_runs (`+runColumns+`, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Label,
		run.EvaluationTime.UnixNano(),
		run.CreatedAt.UnixNano(),
		run.Fingerprint,
		run.Coordinates,
		run.Paths,
		run.PostingThreshold,
		run.TotalMean,
		run.TotalP99,
		run.FloorEvents,
		blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert margin run: %w", err)
	}
	return nil
}

// GetByID returns a run with its decoded breakdown, or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+`, result FROM margin_runs WHERE id = ?`, id)

	var blob []byte
	run, err := scanRun(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get margin run %s: %w", id, err)
	}

	rec, err := decodeRecord(blob)
	if err != nil {
		return nil, fmt.Errorf("margin run %s: %w", id, err)
	}
	run.Summary = &rec.Summary
	run.Result = rec.Result
	return run, nil
}

// List returns the most recent runs first, without breakdowns.
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM margin_runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list margin runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan margin run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate margin runs: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes runs created before cutoff and returns the count.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM margin_runs WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete margin runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted margin runs: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun reads runColumns and, when blob is not nil, the result column.
func scanRun(s scanner, blob *[]byte) (*Run, error) {
	var run Run
	var evaluation, created int64
	dest := []interface{}{
		&run.ID,
		&run.Label,
		&evaluation,
		&created,
		&run.Fingerprint,
		&run.Coordinates,
		&run.Paths,
		&run.PostingThreshold,
		&run.TotalMean,
		&run.TotalP99,
		&run.FloorEvents,
	}
	if blob != nil {
		dest = append(dest, blob)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	run.EvaluationTime = time.Unix(0, evaluation).UTC()
	run.CreatedAt = time.Unix(0, created).UTC()
	return &run, nil
}

func encodeRecord(rec record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode run result: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(blob []byte) (record, error) {
	var rec record
	dec := msgpack.NewDecoder(bytes.NewReader(blob))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&rec); err != nil {
		return record{}, fmt.Errorf("failed to decode run result: %w", err)
	}
	return rec, nil
}
