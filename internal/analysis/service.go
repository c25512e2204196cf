package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/9gptlog/dossier-analyzer/internal/decision"
	"github.com/9gptlog/dossier-analyzer/internal/generator"
	"github.com/9gptlog/dossier-analyzer/internal/ledger"
	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/refdata"
	"github.com/9gptlog/dossier-analyzer/internal/rules"
	"github.com/9gptlog/dossier-analyzer/pkg/checksum"
)

// Segmenter splits a page stream into typed document sections.
type Segmenter interface {
	Segment(pages []models.Page) ([]models.Section, error)
}

// FieldExtractor pulls structured records out of classified sections.
type FieldExtractor interface {
	Identification(sections []models.Section) models.IdentificationRecord
	Items(sections []models.Section) []models.Item
	CreditNotes(sections []models.Section) []models.CreditNote
	Certificates(sections []models.Section) []models.Certificate
	Dispatches(sections []models.Section) []models.Dispatch
	Parties(sections []models.Section) []models.PartyRef
}

// Request is the ingestion contract for one analysis run. Pages must
// arrive in dossier order; Mode defaults to full.
type Request struct {
	NUP   string        `json:"nup"`
	Pages []models.Page `json:"pages" validate:"required,min=1,dive"`
	Mode  models.Mode   `json:"mode" validate:"omitempty,oneof=full credit_note_pending"`
}

type ServiceConfig struct {
	NumExtractionWorkers int
}

// Service orchestrates the analysis pipeline: segment, extract,
// resolve the ledger, evaluate rules, aggregate the decision and
// generate the output texts.
type Service struct {
	segmenter Segmenter
	extractor FieldExtractor
	worker    Worker
	catalog   *refdata.Catalog
	config    ServiceConfig
	log       *logrus.Logger
	clock     func() time.Time
}

var validate = validator.New()

func NewService(segmenter Segmenter, extractor FieldExtractor, worker Worker, catalog *refdata.Catalog, cfg ServiceConfig, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.NumExtractionWorkers < 1 {
		cfg.NumExtractionWorkers = 1
	}
	return &Service{
		segmenter: segmenter,
		extractor: extractor,
		worker:    worker,
		catalog:   catalog,
		config:    cfg,
		log:       log,
		clock:     time.Now,
	}
}

// WithClock fixes the reference time used for deadline and validity
// rules. Intended for tests and replayed runs.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Analyze runs the full pipeline over one dossier. Findings are data,
// not errors; an error return means the run itself could not proceed.
func (s *Service) Analyze(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid analysis request: %w", err)
	}
	mode := req.Mode
	if mode == "" {
		mode = models.ModeFull
	}

	texts := make([]string, len(req.Pages))
	ocrPages := 0
	for i, p := range req.Pages {
		texts[i] = p.Text
		if p.OCR {
			ocrPages++
		}
	}
	pagesChecksum := checksum.CalculatePagesChecksum(texts)

	logEntry := s.log.WithFields(logrus.Fields{
		"nup":      req.NUP,
		"pages":    len(req.Pages),
		"mode":     mode,
		"checksum": pagesChecksum,
	})

	// Step 1: Segment the page stream into typed sections. A dossier
	// without a requisition cannot be analyzed at all.
	logEntry.Info("Segmenting dossier pages")
	sections, err := s.segmenter.Segment(req.Pages)
	if err != nil {
		return nil, fmt.Errorf("failed to segment dossier: %w", err)
	}

	// Step 2: Run the per-concern extractors over the worker pool.
	// Each job writes a distinct dossier field, so no locking is
	// needed: the WaitGroup join publishes every write.
	logEntry.Info("Extracting fields from sections")
	dossier := &models.Dossier{
		PageCount:    len(req.Pages),
		OCRPageCount: ocrPages,
		Sections:     sections,
	}
	jobs := []func(){
		func() { dossier.Identification = s.extractor.Identification(sections) },
		func() { dossier.Items = s.extractor.Items(sections) },
		func() { dossier.CreditNotes = s.extractor.CreditNotes(sections) },
		func() { dossier.Certificates = s.extractor.Certificates(sections) },
		func() { dossier.Dispatches = s.extractor.Dispatches(sections) },
		func() { dossier.Parties = s.extractor.Parties(sections) },
	}

	worker := s.worker.WithJobQueue(len(jobs))
	extractionRunner, extractionWaitGroup, err := worker.SetupExtractionWorkers(s.config.NumExtractionWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to setup extraction workers: %w", err)
	}
	extractionRunner.Run()
	for _, job := range jobs {
		worker.Dispatch(job)
	}
	worker.Finish()
	extractionWaitGroup.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis aborted: %w", err)
	}

	dossier.NUP = req.NUP
	if dossier.NUP == "" {
		dossier.NUP = dossier.Identification.NUP
	}

	// Step 3: Resolve budget positions across all credit notes.
	resolution := ledger.ResolveAll(dossier.CreditNotes)

	// Step 4: Evaluate the rule battery.
	logEntry.Info("Evaluating validation rules")
	findings := rules.Evaluate(rules.Context{
		Dossier: dossier,
		Ledger:  resolution,
		Catalog: s.catalog,
		Mode:    mode,
		Today:   s.clock(),
	})

	// Step 5: Aggregate to a suggested outcome and generate the
	// editable output texts. Pending mode produces no masks.
	suggested := decision.Suggest(findings, mode)
	var masks []string
	if mode == models.ModeFull {
		masks = generator.Masks(dossier, s.catalog)
	}
	dispatchText := generator.DispatchText(suggested, findings)

	logEntry.WithFields(logrus.Fields{
		"findings": len(findings),
		"outcome":  suggested,
	}).Info("Analysis finished")

	return &models.AnalysisResult{
		RunID:        runID(pagesChecksum, mode),
		Mode:         mode,
		Dossier:      dossier,
		Findings:     findings,
		Suggested:    suggested,
		Masks:        masks,
		DispatchText: dispatchText,
		AnalyzedAt:   s.clock(),
		Checksum:     pagesChecksum,
	}, nil
}

// runID derives a stable identifier from the page content and the
// analysis mode, so re-running the same dossier yields the same ID.
func runID(pagesChecksum string, mode models.Mode) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(pagesChecksum+"|"+string(mode)))
}
