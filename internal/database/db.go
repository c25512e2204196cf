package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/9gptlog/dossier-analyzer/internal/models"
)

// AnalysisRecord is one row of the append-only analysis history.
// Suggested is what the pipeline produced; ConfirmedOutcome is set only
// by the explicit confirmation transition and is empty until then.
type AnalysisRecord struct {
	ID               int
	RunID            uuid.UUID
	NUP              string
	Mode             models.Mode
	Checksum         string
	PageCount        int
	Suggested        models.Outcome
	ConfirmedOutcome models.Outcome
	Findings         []models.Finding
	Masks            []string
	DispatchText     string
	AnalyzedAt       time.Time
}

type DBManager interface {
	CreateAnalysisTables() error
	InsertAnalysis(record *AnalysisRecord) (int, error)
	GetAnalysis(runID uuid.UUID) (*AnalysisRecord, error)
	ConfirmOutcome(runID uuid.UUID, outcome models.Outcome) error
	IsAlreadyAnalyzed(checksum string, mode models.Mode) (bool, error)
	UpsertProcuringUnit(uasg string, name string) error
}
