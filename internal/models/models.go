package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Severity int

const (
	SeverityConformant Severity = iota
	SeverityCaveat
	SeverityBlock
)

func (s Severity) String() string {
	switch s {
	case SeverityCaveat:
		return "caveat"
	case SeverityBlock:
		return "block"
	default:
		return "conformant"
	}
}

// Worse returns the more severe of the two.
func (s Severity) Worse(other Severity) Severity {
	if other > s {
		return other
	}
	return s
}

type Outcome string

const (
	OutcomePending                  Outcome = "pending"
	OutcomeApproved                 Outcome = "approved"
	OutcomeApprovedWithCaveat       Outcome = "approved_with_caveat"
	OutcomeRejected                 Outcome = "rejected"
	OutcomePartialPendingCreditNote Outcome = "partial_pending_credit_note"
)

type Mode string

const (
	ModeFull              Mode = "full"
	ModeCreditNotePending Mode = "credit_note_pending"
)

type SectionKind string

const (
	KindCover        SectionKind = "cover"
	KindOpeningTerm  SectionKind = "opening_term"
	KindChecklist    SectionKind = "checklist"
	KindRequisition  SectionKind = "requisition"
	KindCreditNote   SectionKind = "credit_note"
	KindCertificates SectionKind = "certificates"
	KindContract     SectionKind = "contract"
	KindDispatch     SectionKind = "dispatch"
	KindUnclassified SectionKind = "unclassified"
)

// Page is one unit of extracted text from the bundled dossier file.
type Page struct {
	Number int    `json:"number" validate:"gte=1"`
	Text   string `json:"text"`
	OCR    bool   `json:"ocr"`
}

// Section is a typed, ordered span of page text. Superseded sections are
// kept for audit but excluded from extraction.
type Section struct {
	Kind      SectionKind
	FirstPage int
	LastPage  int
	Text      string
	Active    bool
}

// Date wraps a calendar date whose presence is optional. The zero value
// means "unknown date".
type Date struct {
	Time  time.Time
	Known bool
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Known: true}
}

// DaysUntil returns the number of whole days from ref to the date.
// Negative means the date is already past.
func (d Date) DaysUntil(ref time.Time) int {
	r := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Time.Sub(r).Hours() / 24)
}

func (d Date) String() string {
	if !d.Known {
		return ""
	}
	return d.Time.Format("02/01/2006")
}

// IdentificationRecord holds the fields extracted from the cover and the
// requisition header. Empty string means the field was not found.
type IdentificationRecord struct {
	NUP            string
	RequesterUnit  string
	Sector         string
	Purpose        string
	SupplierName   string
	SupplierTaxID  string
	CommitmentType string
	Instrument     string
	UASG           string
	ExpenseCode    string
	PI             string
	PTRES          string
	Fund           string
	UGR            string
	CreditNoteRef  string
	RequisitionNr  string
	RequisitionDt  Date
	DeclaredTotal  decimal.NullDecimal
}

// Item is one row of the requisition's item table.
type Item struct {
	Number      int
	CatalogCode string
	Description string
	Unit        string
	Quantity    decimal.NullDecimal
	ExpenseCode string
	SubElement  string
	UnitPrice   decimal.NullDecimal
	TotalPrice  decimal.NullDecimal
}

// LedgerLine ties a value to a combination of budget-code fields inside a
// credit note.
type LedgerLine struct {
	EventCode   string
	ExpenseCode string
	Fund        string
	Program     string
	Unit        string
	Action      string
	Sphere      string
	Value       decimal.Decimal
}

// PositionKey identifies one logical balance position. Two ledger lines
// with the same key are the same balance observed twice.
type PositionKey struct {
	Fund    string
	Program string
	Unit    string
	Action  string
	Value   string
}

func (l LedgerLine) Key() PositionKey {
	return PositionKey{
		Fund:    l.Fund,
		Program: l.Program,
		Unit:    l.Unit,
		Action:  l.Action,
		Value:   l.Value.StringFixed(2),
	}
}

// CreditNote is a financial authorization with its accounting detail.
type CreditNote struct {
	Number             string
	IssueDate          Date
	IssuerUnit         string
	IssuerName         string
	BeneficiaryUnit    string
	BeneficiaryName    string
	CommitmentDeadline Date
	Lines              []LedgerLine
	QuarantinedLines   int
}

type CertificateCategory string

const (
	CertRegistration       CertificateCategory = "registration"
	CertFederalTax         CertificateCategory = "federal_tax"
	CertStateTax           CertificateCategory = "state_tax"
	CertMunicipalTax       CertificateCategory = "municipal_tax"
	CertSocialSecurity     CertificateCategory = "social_security"
	CertFGTS               CertificateCategory = "fgts"
	CertLabor              CertificateCategory = "labor"
	CertDebarment          CertificateCategory = "debarment"
	CertIndirectImpediment CertificateCategory = "indirect_impediment"
	CertCADIN              CertificateCategory = "cadin"
	CertTCU                CertificateCategory = "tcu"
	CertCNJ                CertificateCategory = "cnj"
	CertCEIS               CertificateCategory = "ceis"
	CertCNEP               CertificateCategory = "cnep"
)

// Certificate is one compliance check result from the certificate bundle.
type Certificate struct {
	Category CertificateCategory
	TaxID    string
	Result   string
	Validity Date
}

// Dispatch is one step in the administrative sign-off chain.
type Dispatch struct {
	Sequence   int
	AuthorRole string
	Body       string
	NUP        string
	SignedAt   Date
}

// PartyRef is one occurrence of the supplier's identity in a section.
// The identity rule compares every occurrence character for character.
type PartyRef struct {
	Source SectionKind
	TaxID  string
	Name   string
}

// Dossier is the whole submitted bundle. Sections are immutable once
// segmented; later stages attach derived data, never rewrite them.
type Dossier struct {
	NUP            string
	PageCount      int
	OCRPageCount   int
	Sections       []Section
	Parties        []PartyRef
	Identification IdentificationRecord
	Items          []Item
	CreditNotes    []CreditNote
	Certificates   []Certificate
	Dispatches     []Dispatch
}

// ActiveSections returns the active sections of the given kind in order.
func (d *Dossier) ActiveSections(kind SectionKind) []Section {
	var out []Section
	for _, s := range d.Sections {
		if s.Kind == kind && s.Active {
			out = append(out, s)
		}
	}
	return out
}

// Finding is the sole vocabulary for "something is wrong". Findings are
// append-only; the aggregator summarizes but never drops them.
type Finding struct {
	ID       uuid.UUID
	Rule     string
	Severity Severity
	Message  string
	Refs     []string
}

// AnalysisResult is the structured output of one pipeline run.
type AnalysisResult struct {
	RunID        uuid.UUID
	Mode         Mode
	Dossier      *Dossier
	Findings     []Finding
	Suggested    Outcome
	Masks        []string
	DispatchText string
	AnalyzedAt   time.Time
	Checksum     string
}

// WorstSeverity folds the findings to their most severe level.
func WorstSeverity(findings []Finding) Severity {
	worst := SeverityConformant
	for _, f := range findings {
		worst = worst.Worse(f.Severity)
	}
	return worst
}
