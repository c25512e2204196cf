package decision

import (
	"errors"
	"fmt"

	"github.com/9gptlog/dossier-analyzer/internal/models"
)

var (
	ErrAlreadyFinalized = errors.New("decision already finalized")
	ErrInvalidOutcome   = errors.New("invalid confirmation outcome")
)

// Suggest folds the findings into a proposed outcome. It is only ever a
// proposal: block findings suggest rejection but never force it, and the
// pending-credit-note mode overrides everything else.
func Suggest(findings []models.Finding, mode models.Mode) models.Outcome {
	if mode == models.ModeCreditNotePending {
		return models.OutcomePartialPendingCreditNote
	}
	switch models.WorstSeverity(findings) {
	case models.SeverityBlock:
		return models.OutcomeRejected
	case models.SeverityCaveat:
		return models.OutcomeApprovedWithCaveat
	default:
		return models.OutcomeApproved
	}
}

// State is the human-in-the-loop decision machine. It starts pending and
// admits a single externally-triggered transition to a terminal outcome;
// the pipeline itself never drives it.
type State struct {
	current models.Outcome
}

func NewState() *State {
	return &State{current: models.OutcomePending}
}

func (s *State) Current() models.Outcome {
	return s.current
}

func (s *State) Finalized() bool {
	return s.current != models.OutcomePending
}

var terminalOutcomes = map[models.Outcome]bool{
	models.OutcomeApproved:                 true,
	models.OutcomeApprovedWithCaveat:       true,
	models.OutcomeRejected:                 true,
	models.OutcomePartialPendingCreditNote: true,
}

// Confirm records the analyst's decision. Only the pending state accepts
// a confirmation and only terminal outcomes are accepted.
func (s *State) Confirm(outcome models.Outcome) error {
	if s.current != models.OutcomePending {
		return fmt.Errorf("%w: current state is %s", ErrAlreadyFinalized, s.current)
	}
	if !terminalOutcomes[outcome] {
		return fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}
	s.current = outcome
	return nil
}
