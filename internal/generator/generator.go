package generator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/normalizer"
	"github.com/9gptlog/dossier-analyzer/internal/refdata"
)

// Commitment-note masks follow the house pattern: a fixed field order per
// instrument type, optional budget fields included only when present, and
// a terminating period.

var objectAbbreviations = map[string]string{
	"aquisicao":   "AQS",
	"servico":     "SV",
	"servicos":    "SV",
	"manutencao":  "MNT",
	"material":    "MAT",
	"materiais":   "MAT",
	"equipamento": "EQP",
	"contratacao": "CONTR",
	"fornecimento": "FORN",
}

const maxObjectWords = 6

// abbreviateObject shortens the purpose text for the mask: known words
// collapse to their abbreviation, everything is uppercased and capped at
// six words.
func abbreviateObject(purpose string) string {
	words := strings.Fields(purpose)
	var out []string
	for _, w := range words {
		folded := normalizer.Fold(w)
		if folded == "de" || folded == "da" || folded == "do" || folded == "e" {
			continue
		}
		if abbr, ok := objectAbbreviations[folded]; ok {
			out = append(out, abbr)
		} else {
			out = append(out, strings.ToUpper(w))
		}
		if len(out) == maxObjectWords {
			break
		}
	}
	return strings.Join(out, " ")
}

type instrumentKind int

const (
	instrumentTender instrumentKind = iota
	instrumentContract
	instrumentDirect
)

func classifyInstrument(instrument string) instrumentKind {
	folded := normalizer.Fold(instrument)
	switch {
	case strings.Contains(folded, "contrato"):
		return instrumentContract
	case strings.Contains(folded, "dispensa"):
		return instrumentDirect
	default:
		return instrumentTender
	}
}

var reInstrumentNr = regexp.MustCompile(`\d{1,5}/\d{4}`)

func instrumentNumber(instrument string) string {
	return reInstrumentNr.FindString(instrument)
}

// Masks renders one commitment-note description per credit note. Optional
// budget fields (fund, program, funding unit) appear iff the normalized
// credit-note data carries them; absent fields are never defaulted.
func Masks(d *models.Dossier, catalog *refdata.Catalog) []string {
	var masks []string
	for _, note := range d.CreditNotes {
		masks = append(masks, mask(d, note, catalog))
	}
	return masks
}

func mask(d *models.Dossier, note models.CreditNote, catalog *refdata.Catalog) string {
	ident := d.Identification
	var parts []string

	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}

	add(unitLabel(ident.RequesterUnit, ident.UASG, catalog))
	if ident.RequisitionNr != "" {
		req := "REQ " + ident.RequisitionNr
		if ident.Sector != "" {
			req += "-" + strings.ToUpper(ident.Sector)
		}
		add(req)
	}
	add(abbreviateObject(ident.Purpose))

	if note.Number != "" {
		nc := "NC " + note.Number
		if note.IssueDate.Known {
			nc += " DE " + note.IssueDate.String()
		}
		add(nc)
	}
	add(issuerLabel(note, catalog))

	code, fund, program, unit, action := noteBudgetFields(note, ident)
	if code != "" {
		add("ND " + code)
	}
	if fund != "" {
		add("FONTE " + fund)
	}
	if program != "" {
		add("PTRES " + program)
	}
	if unit != "" {
		add("UGR " + unit)
	}
	if action != "" {
		add("PI " + action)
	}

	nr := instrumentNumber(ident.Instrument)
	switch classifyInstrument(ident.Instrument) {
	case instrumentContract:
		if nr != "" {
			add("CONT " + nr)
		}
	case instrumentDirect:
		if nr != "" {
			add("DISP " + nr)
		}
	default:
		if nr != "" {
			add("PE " + nr)
		}
	}
	if ident.UASG != "" {
		add("UASG " + ident.UASG)
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ") + "."
}

// noteBudgetFields reads the budget codes from the credit note's first
// ledger line, falling back to the requisition header when the note has
// no usable detail.
func noteBudgetFields(note models.CreditNote, ident models.IdentificationRecord) (code, fund, program, unit, action string) {
	if len(note.Lines) > 0 {
		l := note.Lines[0]
		return l.ExpenseCode, l.Fund, l.Program, l.Unit, l.Action
	}
	return ident.ExpenseCode, ident.Fund, ident.PTRES, ident.UGR, ident.PI
}

func unitLabel(unitName, uasg string, catalog *refdata.Catalog) string {
	if unitName != "" {
		return strings.ToUpper(unitName)
	}
	if catalog != nil && uasg != "" {
		if name, ok := catalog.UnitName(uasg); ok {
			return strings.ToUpper(name)
		}
	}
	return ""
}

func issuerLabel(note models.CreditNote, catalog *refdata.Catalog) string {
	name := note.IssuerName
	if name == "" && catalog != nil && note.IssuerUnit != "" {
		if n, ok := catalog.UnitName(note.IssuerUnit); ok {
			name = n
		}
	}
	if name == "" {
		return ""
	}
	return "DO " + strings.ToUpper(name)
}

// The advisory memorandum opens with a fixed phrase, then one sentence
// per relevant finding, block findings first and production order inside
// each severity. The text is a draft for the analyst, never final.
const (
	introPrefix      = "Informo que "
	additionalPrefix = "Adicionalmente, "
)

// Acknowledgement is the static text used when the outcome is a plain
// approval; no memorandum body is generated in that case.
const Acknowledgement = "De acordo. Encaminhe-se para emissão da nota de empenho."

// DispatchText renders the memorandum body for outcomes that need one.
// Plain approvals and pending analyses yield an empty string.
func DispatchText(outcome models.Outcome, findings []models.Finding) string {
	if outcome != models.OutcomeApprovedWithCaveat && outcome != models.OutcomeRejected {
		return ""
	}

	relevant := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity == models.SeverityCaveat || f.Severity == models.SeverityBlock {
			relevant = append(relevant, f)
		}
	}
	if len(relevant) == 0 {
		return ""
	}

	// Stable sort keeps production order within each severity.
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Severity > relevant[j].Severity
	})

	var b strings.Builder
	for i, f := range relevant {
		sentence := sentenceFor(f)
		if i == 0 {
			b.WriteString(introPrefix + sentence)
		} else {
			b.WriteString(" " + additionalPrefix + sentence)
		}
	}
	return b.String()
}

func sentenceFor(f models.Finding) string {
	msg := strings.TrimSpace(f.Message)
	if msg == "" {
		msg = fmt.Sprintf("a verificação %s apontou inconsistência", f.Rule)
	}
	msg = lowerFirst(msg)
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}

func lowerFirst(s string) string {
	for i, r := range s {
		return strings.ToLower(string(r)) + s[i+len(string(r)):]
	}
	return s
}
