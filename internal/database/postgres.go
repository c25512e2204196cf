package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/9gptlog/dossier-analyzer/internal/models"
)

// ErrAnalysisNotFound is returned when no history row matches a run ID.
var ErrAnalysisNotFound = errors.New("analysis not found")

// ErrAlreadyConfirmed is returned when a confirmation targets a run
// whose outcome was already finalized. History rows are never rewritten.
var ErrAlreadyConfirmed = errors.New("analysis outcome already confirmed")

func ConnectDB(connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	return dbpool, nil
}

type PostgresDBManager struct {
	dbpool *pgxpool.Pool
	ctx    context.Context
}

func NewPostgresDBManager(ctx context.Context, pool *pgxpool.Pool) *PostgresDBManager {
	return &PostgresDBManager{dbpool: pool, ctx: ctx}
}

// CreateAnalysisTables creates the append-only history table and the
// procuring-unit registry.
func (m *PostgresDBManager) CreateAnalysisTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analysis_records (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL,
			nup VARCHAR(25) NOT NULL,
			mode VARCHAR(30) NOT NULL CHECK (mode IN ('full', 'credit_note_pending')),
			checksum VARCHAR(64) NOT NULL,
			page_count INTEGER NOT NULL,
			suggested_outcome VARCHAR(40) NOT NULL,
			confirmed_outcome VARCHAR(40),
			findings jsonb,
			masks jsonb,
			dispatch_text TEXT,
			analyzed_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_records_run_id ON analysis_records (run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_records_nup ON analysis_records (nup, analyzed_at);`,
		`CREATE TABLE IF NOT EXISTS procuring_units (
			uasg VARCHAR(10) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			first_seen TIMESTAMP NOT NULL DEFAULT now()
		);`,
	}

	for _, query := range queries {
		_, err := m.dbpool.Exec(m.ctx, query)
		if err != nil {
			return fmt.Errorf("error creating analysis tables: %v", err)
		}
	}

	return nil
}

// InsertAnalysis appends one history row and returns its id. Rows are
// never updated except for the one-shot confirmed_outcome column.
func (m *PostgresDBManager) InsertAnalysis(record *AnalysisRecord) (int, error) {
	query := `
	INSERT INTO analysis_records (run_id, nup, mode, checksum, page_count, suggested_outcome, findings, masks, dispatch_text, analyzed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id;`

	var id int
	err := m.dbpool.QueryRow(m.ctx, query,
		record.RunID, record.NUP, record.Mode, record.Checksum, record.PageCount,
		record.Suggested, record.Findings, record.Masks, record.DispatchText, record.AnalyzedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error inserting analysis record: %v", err)
	}

	return id, nil
}

// GetAnalysis returns the most recent history row for a run ID.
func (m *PostgresDBManager) GetAnalysis(runID uuid.UUID) (*AnalysisRecord, error) {
	query := `
	SELECT id, run_id, nup, mode, checksum, page_count, suggested_outcome, COALESCE(confirmed_outcome, ''), findings, masks, COALESCE(dispatch_text, ''), analyzed_at
	FROM analysis_records
	WHERE run_id = $1
	ORDER BY analyzed_at DESC, id DESC
	LIMIT 1;`

	record := &AnalysisRecord{}
	err := m.dbpool.QueryRow(m.ctx, query, runID).Scan(
		&record.ID, &record.RunID, &record.NUP, &record.Mode, &record.Checksum, &record.PageCount,
		&record.Suggested, &record.ConfirmedOutcome, &record.Findings, &record.Masks, &record.DispatchText, &record.AnalyzedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("error finding analysis record by run id: %v", err)
	}

	return record, nil
}

// ConfirmOutcome records the reviewer's final outcome for a run. The
// transition fires once; a second confirmation is rejected.
func (m *PostgresDBManager) ConfirmOutcome(runID uuid.UUID, outcome models.Outcome) error {
	query := `
	UPDATE analysis_records
	SET confirmed_outcome = $1
	WHERE run_id = $2 AND confirmed_outcome IS NULL;`

	tag, err := m.dbpool.Exec(m.ctx, query, outcome, runID)
	if err != nil {
		return fmt.Errorf("error confirming analysis outcome: %v", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := m.GetAnalysis(runID)
		if err != nil {
			return err
		}
		if existing.ConfirmedOutcome != "" {
			return ErrAlreadyConfirmed
		}
		return ErrAnalysisNotFound
	}

	return nil
}

// IsAlreadyAnalyzed reports whether the same page content was already
// run in the same mode, keyed on the xxhash page checksum.
func (m *PostgresDBManager) IsAlreadyAnalyzed(checksum string, mode models.Mode) (bool, error) {
	query := `
	SELECT id
	FROM analysis_records
	WHERE checksum = $1 AND mode = $2
	LIMIT 1;`

	var id int
	err := m.dbpool.QueryRow(m.ctx, query, checksum, mode).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("error finding analysis record by checksum: %v", err)
	}

	return true, nil
}

// UpsertProcuringUnit registers a newly seen UASG. Known units keep
// their first recorded name.
func (m *PostgresDBManager) UpsertProcuringUnit(uasg string, name string) error {
	if uasg == "" {
		return nil
	}

	query := `
	INSERT INTO procuring_units (uasg, name)
	VALUES ($1, $2)
	ON CONFLICT (uasg) DO NOTHING;`

	_, err := m.dbpool.Exec(m.ctx, query, uasg, name)
	if err != nil {
		return fmt.Errorf("error upserting procuring unit %s: %v", uasg, err)
	}

	return nil
}
