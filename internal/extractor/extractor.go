package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/normalizer"
)

// Extractor turns classified sections into raw field records. It never
// fails: unmatched fields resolve to their zero value and malformed rows
// are skipped, both surfacing later as findings rather than errors.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Identification reads the cover and requisition sections. Requisition
// text takes precedence because rules run first on it and the first match
// wins.
func (e *Extractor) Identification(sections []models.Section) models.IdentificationRecord {
	text := joinSections(sections, models.KindRequisition) + "\n" + joinSections(sections, models.KindCover)
	raw := applyRules(identificationRules, text, codeShadow(text))

	rec := models.IdentificationRecord{
		NUP:            raw["nup"],
		RequesterUnit:  raw["unit"],
		Sector:         raw["sector"],
		Purpose:        raw["purpose"],
		SupplierName:   raw["supplier"],
		SupplierTaxID:  raw["cnpj"],
		CommitmentType: strings.ToLower(raw["commitment_type"]),
		Instrument:     raw["instrument"],
		UASG:           raw["uasg"],
		PI:             raw["pi"],
		PTRES:          raw["ptres"],
		Fund:           raw["fund"],
		UGR:            raw["ugr"],
		CreditNoteRef:  raw["nc_ref"],
		RequisitionNr:  raw["req_nr"],
		RequisitionDt:  normalizer.ParseDate(raw["req_date"]),
		DeclaredTotal:  normalizer.ParseMoneyOpt(raw["total"]),
	}
	rec.ExpenseCode = normalizer.NormalizeExpenseCode(raw["nd"])
	return rec
}

// Item rows come in two layouts: with an ND/SI column between the unit
// and the quantity, and without it. The wider pattern is tried first.
var (
	reItemRowWithND = regexp.MustCompile(`(?m)^\s*(\d{1,3})\s+(\d{4,7})\s+(.+?)\s{2,}([A-ZÇ]{1,6})\s+(\d{2}[./]\d{2}(?:[./]\d{2})?(?:/\d{1,2})?)\s+([\d.,]+)\s+([\d.,]+)\s+([\d.,]+)\s*$`)
	reItemRow       = regexp.MustCompile(`(?m)^\s*(\d{1,3})\s+(\d{4,7})\s+(.+?)\s{2,}([A-ZÇ]{1,6})\s+([\d.,]+)\s+([\d.,]+)\s+([\d.,]+)\s*$`)
)

// Items extracts the requisition's item table.
func (e *Extractor) Items(sections []models.Section) []models.Item {
	text := joinSections(sections, models.KindRequisition)
	var items []models.Item
	seen := make(map[int]bool)

	for _, m := range reItemRowWithND.FindAllStringSubmatch(text, -1) {
		item := buildItem(m[1], m[2], m[3], m[4], m[6], m[7], m[8], m[5])
		if !seen[item.Number] {
			seen[item.Number] = true
			items = append(items, item)
		}
	}
	for _, m := range reItemRow.FindAllStringSubmatch(text, -1) {
		item := buildItem(m[1], m[2], m[3], m[4], m[5], m[6], m[7], "")
		if !seen[item.Number] {
			seen[item.Number] = true
			items = append(items, item)
		}
	}
	return items
}

func buildItem(number, catalog, description, unit, qty, unitPrice, total, ndsi string) models.Item {
	n, _ := strconv.Atoi(number)
	code, sub := normalizer.SplitExpenseCode(ndsi)
	return models.Item{
		Number:      n,
		CatalogCode: catalog,
		Description: strings.TrimSpace(description),
		Unit:        unit,
		Quantity:    normalizer.ParseQuantity(qty),
		ExpenseCode: code,
		SubElement:  sub,
		UnitPrice:   normalizer.ParseMoneyOpt(unitPrice),
		TotalPrice:  normalizer.ParseMoneyOpt(total),
	}
}

// Credit-note accounting detail appears in two dialects. The
// DEMONSTRA-DIARIO listing pairs an event line carrying the value with a
// data line carrying ESF PTRES FONTE ND UGR PI; the standard listing puts
// everything on one row under a DESTINO header.
var (
	reEventLine  = regexp.MustCompile(`(?m)^\s*(\d{3})\s+\d{6}.*?([\d.,]+)\s*$`)
	reDetailLine = regexp.MustCompile(`(?m)^\s*(\d)\s+(\d{4,6})\s+(\d{6,10})\s+(3[34]\d{4})\s+(\d{6})\s+([A-Z0-9]{8,15})\s*$`)
	reDestRow    = regexp.MustCompile(`(?m)^\s*(\d)\s+(\d{4,6})\s+(\d{6,10})\s+(3[34]\d{4})\s+(\d{6})\s+([A-Z0-9]{8,15})\s+([\d.,]+)\s*$`)
)

// CreditNotes extracts one credit note per active credit-note section.
func (e *Extractor) CreditNotes(sections []models.Section) []models.CreditNote {
	var notes []models.CreditNote
	for _, sec := range sections {
		if sec.Kind != models.KindCreditNote || !sec.Active {
			continue
		}
		notes = append(notes, e.creditNote(sec.Text))
	}
	return notes
}

func (e *Extractor) creditNote(text string) models.CreditNote {
	raw := applyRules(creditNoteHeaderRules, text, codeShadow(text))

	note := models.CreditNote{
		Number:             raw["number"],
		IssueDate:          normalizer.ParseDate(raw["issue_date"]),
		IssuerUnit:         raw["issuer_unit"],
		IssuerName:         raw["issuer_name"],
		BeneficiaryUnit:    raw["beneficiary_unit"],
		BeneficiaryName:    raw["beneficiary_name"],
		CommitmentDeadline: normalizer.ParseDate(raw["deadline"]),
	}

	shadow := codeShadow(text)
	note.Lines, note.QuarantinedLines = extractLedgerLines(shadow)
	return note
}

func extractLedgerLines(text string) ([]models.LedgerLine, int) {
	var lines []models.LedgerLine
	quarantined := 0

	// Standard DESTINO rows carry the value inline.
	for _, m := range reDestRow.FindAllStringSubmatch(text, -1) {
		value, err := normalizer.ParseMoney(m[7])
		if err != nil {
			quarantined++
			continue
		}
		lines = append(lines, models.LedgerLine{
			Sphere:      m[1],
			Program:     m[2],
			Fund:        m[3],
			ExpenseCode: m[4],
			Unit:        m[5],
			Action:      m[6],
			Value:       value,
		})
	}
	if len(lines) > 0 || quarantined > 0 {
		return lines, quarantined
	}

	// DEMONSTRA-DIARIO: pair each event line with the next detail line.
	events := reEventLine.FindAllStringSubmatchIndex(text, -1)
	for _, ev := range events {
		eventCode := text[ev[2]:ev[3]]
		valueStr := text[ev[4]:ev[5]]
		rest := text[ev[1]:]
		dm := reDetailLine.FindStringSubmatch(rest)
		if dm == nil {
			quarantined++
			continue
		}
		value, err := normalizer.ParseMoney(valueStr)
		if err != nil {
			quarantined++
			continue
		}
		lines = append(lines, models.LedgerLine{
			EventCode:   eventCode,
			Sphere:      dm[1],
			Program:     dm[2],
			Fund:        dm[3],
			ExpenseCode: dm[4],
			Unit:        dm[5],
			Action:      dm[6],
			Value:       value,
		})
	}
	return lines, quarantined
}

var (
	rePartyTaxID = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`)
	rePartyName  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)raz[aã]o social[:\s]+([^\n]+)`),
		regexp.MustCompile(`(?i)fornecedor[:\s]+([^\n]+)`),
		regexp.MustCompile(`(?i)empresa[:\s]+([^\n]+)`),
	}
	partySources = []models.SectionKind{
		models.KindRequisition,
		models.KindCertificates,
		models.KindContract,
		models.KindCreditNote,
	}
)

// Parties collects every occurrence of the supplier's identity across
// the sections that quote it. The identity rule needs all of them, not
// just the authoritative one from the requisition.
func (e *Extractor) Parties(sections []models.Section) []models.PartyRef {
	var parties []models.PartyRef
	for _, source := range partySources {
		for _, sec := range sections {
			if sec.Kind != source || !sec.Active {
				continue
			}
			ref := models.PartyRef{Source: source, TaxID: rePartyTaxID.FindString(sec.Text)}
			for _, re := range rePartyName {
				if m := re.FindStringSubmatch(sec.Text); m != nil {
					ref.Name = trimValue(m[1])
					break
				}
			}
			if ref.TaxID != "" || ref.Name != "" {
				parties = append(parties, ref)
			}
		}
	}
	return parties
}

func joinSections(sections []models.Section, kind models.SectionKind) string {
	var parts []string
	for _, sec := range sections {
		if sec.Kind == kind && sec.Active {
			parts = append(parts, sec.Text)
		}
	}
	return strings.Join(parts, "\n")
}
