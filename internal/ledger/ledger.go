package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/9gptlog/dossier-analyzer/internal/models"
)

// Resolution is the deduplicated view of a credit note's accounting
// detail: one available-balance figure per expense code.
type Resolution struct {
	// Positions holds the genuinely distinct balance positions per
	// expense code, in first-seen order.
	Positions map[string][]models.LedgerLine
	// Balances is the sum of distinct positions per expense code.
	Balances map[string]decimal.Decimal
	// Total is the sum over all expense codes.
	Total decimal.Decimal
}

// Codes returns the resolved expense codes in stable sorted order.
func (r Resolution) Codes() []string {
	codes := make([]string, 0, len(r.Balances))
	for code := range r.Balances {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// BalanceFor returns the available balance for the code, if resolved.
func (r Resolution) BalanceFor(code string) (decimal.Decimal, bool) {
	b, ok := r.Balances[code]
	return b, ok
}

// Resolve groups ledger lines by expense code and collapses lines whose
// (fund, program, unit, action, value) tuple is identical. Such lines are
// the same balance observed in multiple accounting views, never two
// balances. Lines differing in any of those fields stay independent even
// when the expense code matches.
func Resolve(note models.CreditNote) Resolution {
	res := Resolution{
		Positions: make(map[string][]models.LedgerLine),
		Balances:  make(map[string]decimal.Decimal),
		Total:     decimal.Zero,
	}

	type seenKey struct {
		code string
		pos  models.PositionKey
	}
	seen := make(map[seenKey]bool)

	for _, line := range note.Lines {
		key := seenKey{code: line.ExpenseCode, pos: line.Key()}
		if seen[key] {
			continue
		}
		seen[key] = true
		res.Positions[line.ExpenseCode] = append(res.Positions[line.ExpenseCode], line)
		res.Balances[line.ExpenseCode] = res.Balances[line.ExpenseCode].Add(line.Value)
		res.Total = res.Total.Add(line.Value)
	}

	return res
}

// ResolveAll merges the resolutions of several credit notes into one
// combined per-code balance view.
func ResolveAll(notes []models.CreditNote) Resolution {
	combined := Resolution{
		Positions: make(map[string][]models.LedgerLine),
		Balances:  make(map[string]decimal.Decimal),
		Total:     decimal.Zero,
	}
	for _, note := range notes {
		res := Resolve(note)
		for code, lines := range res.Positions {
			combined.Positions[code] = append(combined.Positions[code], lines...)
		}
		for code, balance := range res.Balances {
			combined.Balances[code] = combined.Balances[code].Add(balance)
		}
		combined.Total = combined.Total.Add(res.Total)
	}
	return combined
}
