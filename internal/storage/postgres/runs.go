package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// ValidStatus reports whether status is a recognised run status.
func ValidStatus(status string) bool {
	switch status {
	case StatusOK, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// ErrRunNotFound is returned when a run lookup yields no results.
var ErrRunNotFound = errors.New("conversion run not found")

// ErrInvalidStatus is returned when a run carries an unrecognised status.
var ErrInvalidStatus = errors.New("invalid run status")

// DefaultListLimit bounds ListRecent when no limit is given.
const DefaultListLimit = 50

// Run is one recorded conversion.
type Run struct {
	ID               uuid.UUID
	SourcePath       string
	OutputPath       string
	SourceGeneration string
	TargetGeneration string
	Status           string
	ActorsIn         int
	ActorsOut        int
	// Diagnostics counts diagnostics by kind name.
	Diagnostics map[string]int
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}

// RunRepository records conversion runs.
type RunRepository struct {
	db *pgxpool.Pool
}

// NewRunRepository creates a RunRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, source_path, output_path, source_generation, target_generation, status,
	actors_in, actors_out, diagnostics, error, duration_ms, created_at`

// Record inserts run, assigning an ID when it has none.
//
// Precondition: run.Status must satisfy ValidStatus.
// Postcondition: Returns the stored Run with ID and CreatedAt set.
func (r *RunRepository) Record(ctx context.Context, run Run) (Run, error) {
	if !ValidStatus(run.Status) {
		return Run{}, fmt.Errorf("%w: %q", ErrInvalidStatus, run.Status)
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Diagnostics == nil {
		run.Diagnostics = map[string]int{}
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO conversion_runs (id, source_path, output_path, source_generation, target_generation,
		     status, actors_in, actors_out, diagnostics, error, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+runColumns,
		run.ID, run.SourcePath, run.OutputPath, run.SourceGeneration, run.TargetGeneration,
		run.Status, run.ActorsIn, run.ActorsOut, run.Diagnostics, run.Error, run.Duration.Milliseconds(),
	)
	stored, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("inserting conversion run: %w", err)
	}
	return stored, nil
}

// Get retrieves a run by ID.
//
// Postcondition: Returns ErrRunNotFound when no run has the ID.
func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM conversion_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("querying conversion run: %w", err)
	}
	return run, nil
}

// ListRecent returns up to limit runs, newest first. A limit < 1 uses
// DefaultListLimit.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+runColumns+` FROM conversion_runs ORDER BY created_at DESC, id LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversion runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversion run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conversion runs: %w", err)
	}
	return runs, nil
}

func listLimit(limit int) int {
	if limit < 1 {
		return DefaultListLimit
	}
	return limit
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run        Run
		durationMS int64
	)
	err := row.Scan(&run.ID, &run.SourcePath, &run.OutputPath, &run.SourceGeneration, &run.TargetGeneration,
		&run.Status, &run.ActorsIn, &run.ActorsOut, &run.Diagnostics, &run.Error, &durationMS, &run.CreatedAt)
	if err != nil {
		return Run{}, err
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}
