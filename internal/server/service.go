package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/9gptlog/dossier-analyzer/internal/analysis"
	"github.com/9gptlog/dossier-analyzer/internal/database"
	"github.com/9gptlog/dossier-analyzer/internal/decision"
	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/segmenter"
)

// Analyzer runs the dossier pipeline. Satisfied by *analysis.Service.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*models.AnalysisResult, error)
}

type AnalysisService struct {
	Analyzer  Analyzer
	DBManager database.DBManager
	Log       *logrus.Logger
}

func NewAnalysisService(analyzer Analyzer, dbManager database.DBManager, log *logrus.Logger) *AnalysisService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AnalysisService{Analyzer: analyzer, DBManager: dbManager, Log: log}
}

type analysisResponse struct {
	RunID        uuid.UUID        `json:"run_id"`
	NUP          string           `json:"nup"`
	Mode         models.Mode      `json:"mode"`
	Checksum     string           `json:"checksum"`
	Suggested    models.Outcome   `json:"suggested_outcome"`
	Confirmed    models.Outcome   `json:"confirmed_outcome,omitempty"`
	Findings     []models.Finding `json:"findings"`
	Masks        []string         `json:"masks,omitempty"`
	DispatchText string           `json:"dispatch_text,omitempty"`
}

// CreateAnalysis runs the pipeline over the posted page texts and
// appends the result to the history.
func (h *AnalysisService) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, segmenter.ErrNoRequisition), errors.Is(err, segmenter.ErrNoReadablePages):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	seen, err := h.DBManager.IsAlreadyAnalyzed(result.Checksum, result.Mode)
	if err != nil {
		h.Log.WithError(err).Warn("Failed to check analysis history for duplicate content")
	} else if seen {
		// Same page content, same mode: the run is appended anyway, the
		// history keeps every run, but reviewers want to know.
		h.Log.WithFields(logrus.Fields{"checksum": result.Checksum, "nup": result.Dossier.NUP}).
			Info("Dossier content was analyzed before")
	}

	record := &database.AnalysisRecord{
		RunID:        result.RunID,
		NUP:          result.Dossier.NUP,
		Mode:         result.Mode,
		Checksum:     result.Checksum,
		PageCount:    result.Dossier.PageCount,
		Suggested:    result.Suggested,
		Findings:     result.Findings,
		Masks:        result.Masks,
		DispatchText: result.DispatchText,
		AnalyzedAt:   result.AnalyzedAt,
	}
	if _, err := h.DBManager.InsertAnalysis(record); err != nil {
		h.Log.WithError(err).Error("Failed to persist analysis record")
		http.Error(w, "Failed to persist analysis", http.StatusInternalServerError)
		return
	}

	ident := result.Dossier.Identification
	if err := h.DBManager.UpsertProcuringUnit(ident.UASG, ident.RequesterUnit); err != nil {
		// The registry is advisory, a failed upsert never fails the run.
		h.Log.WithError(err).Warn("Failed to register procuring unit")
	}

	writeJSON(w, http.StatusCreated, analysisResponse{
		RunID:        result.RunID,
		NUP:          result.Dossier.NUP,
		Mode:         result.Mode,
		Checksum:     result.Checksum,
		Suggested:    result.Suggested,
		Findings:     result.Findings,
		Masks:        result.Masks,
		DispatchText: result.DispatchText,
	})
}

// GetAnalysis returns the stored history row for a run ID.
func (h *AnalysisService) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid analysis id", http.StatusBadRequest)
		return
	}

	record, err := h.DBManager.GetAnalysis(runID)
	if err != nil {
		if errors.Is(err, database.ErrAnalysisNotFound) {
			http.Error(w, "Analysis not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to retrieve analysis", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, analysisResponse{
		RunID:        record.RunID,
		NUP:          record.NUP,
		Mode:         record.Mode,
		Checksum:     record.Checksum,
		Suggested:    record.Suggested,
		Confirmed:    record.ConfirmedOutcome,
		Findings:     record.Findings,
		Masks:        record.Masks,
		DispatchText: record.DispatchText,
	})
}

type confirmRequest struct {
	Outcome models.Outcome `json:"outcome"`
}

// ConfirmAnalysis records the reviewer's final outcome for a run. The
// transition is one-shot and a second confirmation returns 409.
func (h *AnalysisService) ConfirmAnalysis(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid analysis id", http.StatusBadRequest)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := decision.NewState().Confirm(req.Outcome); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.DBManager.ConfirmOutcome(runID, req.Outcome); err != nil {
		switch {
		case errors.Is(err, database.ErrAnalysisNotFound):
			http.Error(w, "Analysis not found", http.StatusNotFound)
		case errors.Is(err, database.ErrAlreadyConfirmed):
			http.Error(w, "Analysis outcome already confirmed", http.StatusConflict)
		default:
			http.Error(w, "Failed to confirm analysis", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]models.Outcome{"confirmed_outcome": req.Outcome})
}

func (h *AnalysisService) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
