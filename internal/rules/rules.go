package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/9gptlog/dossier-analyzer/internal/ledger"
	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/normalizer"
	"github.com/9gptlog/dossier-analyzer/internal/refdata"
)

// Context carries everything a rule may consume. Rules are pure
// functions of it: same context, same findings.
type Context struct {
	Dossier *models.Dossier
	Ledger  ledger.Resolution
	Catalog *refdata.Catalog
	Mode    models.Mode
	Today   time.Time
}

// Rule pairs an identifier with its evaluation function. Rules that
// consume credit-note data are skipped entirely in credit-note-pending
// mode rather than evaluated against defaults.
type Rule struct {
	ID              string
	NeedsCreditNote bool
	Eval            func(Context) []models.Finding
}

// Battery returns the fixed rule set in deterministic order. Adding a
// rule never requires touching existing ones.
func Battery() []Rule {
	return []Rule{
		{ID: "identity_consistency", Eval: identityConsistency},
		{ID: "item_arithmetic", Eval: itemArithmetic},
		{ID: "expense_code_agreement", NeedsCreditNote: true, Eval: expenseCodeAgreement},
		{ID: "balance_sufficiency", NeedsCreditNote: true, Eval: balanceSufficiency},
		{ID: "ledger_integrity", NeedsCreditNote: true, Eval: ledgerIntegrity},
		{ID: "commitment_deadline", NeedsCreditNote: true, Eval: commitmentDeadline},
		{ID: "certificate_validity", Eval: certificateValidity},
		{ID: "expense_nature", Eval: expenseNature},
		{ID: "procedural_completeness", Eval: proceduralCompleteness},
		{ID: "dispatch_chain", Eval: dispatchChain},
	}
}

// Evaluate applies every applicable rule and concatenates the findings.
// No rule ever escalates or suppresses another rule's findings.
func Evaluate(ctx Context) []models.Finding {
	findings := []models.Finding{}
	for _, rule := range Battery() {
		if ctx.Mode == models.ModeCreditNotePending && rule.NeedsCreditNote {
			continue
		}
		findings = append(findings, rule.Eval(ctx)...)
	}
	return findings
}

// finding builds a Finding with an identifier derived from its content,
// so repeated runs over identical input produce identical output.
func finding(rule string, severity models.Severity, message string, refs ...string) models.Finding {
	seed := rule + "|" + message + "|" + strings.Join(refs, ",")
	return models.Finding{
		ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)),
		Rule:     rule,
		Severity: severity,
		Message:  message,
		Refs:     refs,
	}
}

// moneyTolerance absorbs rounding drift in extracted prices.
var moneyTolerance = decimal.RequireFromString("0.02")

func fmtBRL(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// The supplier tax identifier is authoritative: any divergence between
// its occurrences blocks, while a name divergence under a matching
// identifier is only a caveat.
func identityConsistency(ctx Context) []models.Finding {
	var findings []models.Finding

	type occurrence struct {
		source string
		value  string
	}
	var ids []occurrence
	var names []occurrence

	if ctx.Dossier.Identification.SupplierTaxID != "" {
		ids = append(ids, occurrence{"identificacao", ctx.Dossier.Identification.SupplierTaxID})
	}
	if ctx.Dossier.Identification.SupplierName != "" {
		names = append(names, occurrence{"identificacao", ctx.Dossier.Identification.SupplierName})
	}
	for _, p := range ctx.Dossier.Parties {
		if p.TaxID != "" {
			ids = append(ids, occurrence{string(p.Source), p.TaxID})
		}
		if p.Name != "" {
			names = append(names, occurrence{string(p.Source), p.Name})
		}
	}

	idMismatch := false
	if len(ids) > 1 {
		for _, occ := range ids[1:] {
			if occ.value != ids[0].value {
				idMismatch = true
				findings = append(findings, finding("identity_consistency", models.SeverityBlock,
					fmt.Sprintf("CNPJ divergente entre as seções: %s (%s) ≠ %s (%s)",
						ids[0].value, ids[0].source, occ.value, occ.source),
					ids[0].source, occ.source))
			}
		}
	}

	if !idMismatch && len(names) > 1 {
		for _, occ := range names[1:] {
			if !strings.EqualFold(occ.value, names[0].value) {
				findings = append(findings, finding("identity_consistency", models.SeverityCaveat,
					fmt.Sprintf("razão social divergente com CNPJ coincidente: %q (%s) ≠ %q (%s)",
						names[0].value, names[0].source, occ.value, occ.source),
					names[0].source, occ.source))
				break
			}
		}
	}

	if len(findings) == 0 && len(ids) > 1 {
		findings = append(findings, finding("identity_consistency", models.SeverityConformant,
			fmt.Sprintf("CNPJ %s consistente em todas as seções", ids[0].value)))
	}
	return findings
}

func itemArithmetic(ctx Context) []models.Finding {
	var findings []models.Finding
	sum := decimal.Zero
	summed := false

	for _, item := range ctx.Dossier.Items {
		ref := fmt.Sprintf("item:%d", item.Number)
		switch {
		case item.Quantity.Valid && item.UnitPrice.Valid && item.TotalPrice.Valid:
			calc := item.Quantity.Decimal.Mul(item.UnitPrice.Decimal).Round(2)
			diff := calc.Sub(item.TotalPrice.Decimal).Abs()
			if diff.GreaterThan(moneyTolerance) {
				findings = append(findings, finding("item_arithmetic", models.SeverityCaveat,
					fmt.Sprintf("item %d: %s × %s = %s ≠ %s declarado",
						item.Number, item.Quantity.Decimal.String(),
						fmtBRL(item.UnitPrice.Decimal), fmtBRL(calc), fmtBRL(item.TotalPrice.Decimal)), ref))
			} else {
				findings = append(findings, finding("item_arithmetic", models.SeverityConformant,
					fmt.Sprintf("item %d: %s × %s = %s",
						item.Number, item.Quantity.Decimal.String(),
						fmtBRL(item.UnitPrice.Decimal), fmtBRL(item.TotalPrice.Decimal)), ref))
			}
			sum = sum.Add(item.TotalPrice.Decimal)
			summed = true
		case item.Quantity.Valid || item.UnitPrice.Valid || item.TotalPrice.Valid:
			findings = append(findings, finding("item_arithmetic", models.SeverityCaveat,
				fmt.Sprintf("item %d: dados incompletos, verificar manualmente", item.Number), ref))
		}
	}

	declared := ctx.Dossier.Identification.DeclaredTotal
	if summed && declared.Valid {
		if sum.Sub(declared.Decimal).Abs().GreaterThan(moneyTolerance) {
			findings = append(findings, finding("item_arithmetic", models.SeverityCaveat,
				fmt.Sprintf("soma dos itens %s ≠ valor total declarado %s", fmtBRL(sum), fmtBRL(declared.Decimal))))
		} else {
			findings = append(findings, finding("item_arithmetic", models.SeverityConformant,
				fmt.Sprintf("valor total do processo: %s", fmtBRL(sum))))
		}
	}
	return findings
}

// requisitionCode is the expense code the requisition claims, taken from
// the header or, failing that, the first item that carries one.
func requisitionCode(d *models.Dossier) string {
	if d.Identification.ExpenseCode != "" {
		return d.Identification.ExpenseCode
	}
	for _, item := range d.Items {
		if len(item.ExpenseCode) == 6 {
			return item.ExpenseCode
		}
	}
	return ""
}

func expenseCodeAgreement(ctx Context) []models.Finding {
	reqCode := normalizer.NormalizeExpenseCode(requisitionCode(ctx.Dossier))
	codes := ctx.Ledger.Codes()

	if reqCode == "" || len(codes) == 0 {
		return []models.Finding{finding("expense_code_agreement", models.SeverityConformant,
			"ND não extraída em uma das pontas, comparação não realizada")}
	}

	var findings []models.Finding
	for _, ncCode := range codes {
		switch {
		case ncCode == reqCode:
			findings = append(findings, finding("expense_code_agreement", models.SeverityConformant,
				fmt.Sprintf("ND da NC igual à ND da requisição: %s", ncCode), "nd:"+ncCode))
		case normalizer.IsGenericExpenseCode(ncCode):
			findings = append(findings, finding("expense_code_agreement", models.SeverityCaveat,
				fmt.Sprintf("NC com ND genérica (%s) e requisição com ND %s, realizar a classificação no DETAORC", ncCode, reqCode), "nd:"+ncCode))
		default:
			findings = append(findings, finding("expense_code_agreement", models.SeverityCaveat,
				fmt.Sprintf("ND da NC (%s) difere da ND da requisição (%s), verificar com o analista", ncCode, reqCode), "nd:"+ncCode))
		}
	}
	return findings
}

func balanceSufficiency(ctx Context) []models.Finding {
	total := decimal.Zero
	known := false
	for _, item := range ctx.Dossier.Items {
		if item.TotalPrice.Valid {
			total = total.Add(item.TotalPrice.Decimal)
			known = true
		}
	}
	if !known && ctx.Dossier.Identification.DeclaredTotal.Valid {
		total = ctx.Dossier.Identification.DeclaredTotal.Decimal
		known = true
	}

	if !known || len(ctx.Ledger.Balances) == 0 {
		return []models.Finding{finding("balance_sufficiency", models.SeverityConformant,
			"saldo ou valor requisitado não extraído, comparação não realizada")}
	}

	reqCode := normalizer.NormalizeExpenseCode(requisitionCode(ctx.Dossier))
	balance, ok := ctx.Ledger.BalanceFor(reqCode)
	divergent := ""
	if !ok {
		// No position under the requisition's code. The total of the
		// other codes is compared instead, and the finding says so; the
		// code mismatch itself is expense_code_agreement's subject.
		balance = ctx.Ledger.Total
		divergent = " (saldo em ND divergente da requisição)"
	}

	if balance.GreaterThanOrEqual(total) {
		return []models.Finding{finding("balance_sufficiency", models.SeverityConformant,
			fmt.Sprintf("saldo %s ≥ valor requisitado %s%s", fmtBRL(balance), fmtBRL(total), divergent))}
	}
	return []models.Finding{finding("balance_sufficiency", models.SeverityCaveat,
		fmt.Sprintf("saldo %s < valor requisitado %s%s, pode haver saldo complementar em outro PI", fmtBRL(balance), fmtBRL(total), divergent))}
}

// ledgerIntegrity reports credit-note lines that could not be parsed
// into balance positions. Quarantined lines never abort resolution, but
// the resolved balance may be understated without them.
func ledgerIntegrity(ctx Context) []models.Finding {
	var findings []models.Finding
	for _, note := range ctx.Dossier.CreditNotes {
		if note.QuarantinedLines == 0 {
			continue
		}
		findings = append(findings, finding("ledger_integrity", models.SeverityCaveat,
			fmt.Sprintf("%d linha(s) orçamentária(s) da NC %s não interpretada(s) e excluída(s) do saldo",
				note.QuarantinedLines, note.Number), "nc:"+note.Number))
	}
	return findings
}

// Deadline tiers never block: funds have been committed past the nominal
// deadline before and the decision stays with the analyst.
func commitmentDeadline(ctx Context) []models.Finding {
	var findings []models.Finding
	for _, note := range ctx.Dossier.CreditNotes {
		ref := "nc:" + note.Number
		if !note.CommitmentDeadline.Known {
			findings = append(findings, finding("commitment_deadline", models.SeverityConformant,
				fmt.Sprintf("prazo para empenho da NC %s não extraído", note.Number), ref))
			continue
		}
		days := note.CommitmentDeadline.DaysUntil(ctx.Today)
		deadline := note.CommitmentDeadline.String()
		switch {
		case days < 0:
			findings = append(findings, finding("commitment_deadline", models.SeverityCaveat,
				fmt.Sprintf("prazo para empenho vencido há %d dias (%s)", -days, deadline), ref))
		case days <= 7:
			findings = append(findings, finding("commitment_deadline", models.SeverityCaveat,
				fmt.Sprintf("prazo para empenho urgente: %d dias restantes (%s)", days, deadline), ref))
		case days <= 15:
			findings = append(findings, finding("commitment_deadline", models.SeverityCaveat,
				fmt.Sprintf("prazo para empenho em %d dias (%s), atenção ao vencimento", days, deadline), ref))
		default:
			findings = append(findings, finding("commitment_deadline", models.SeverityConformant,
				fmt.Sprintf("prazo para empenho em %d dias (%s)", days, deadline), ref))
		}
	}
	return findings
}

func certificateValidity(ctx Context) []models.Finding {
	var findings []models.Finding
	for _, cert := range ctx.Dossier.Certificates {
		ref := "cert:" + string(cert.Category)
		findings = append(findings, certificateResultFinding(cert, ref)...)

		if !cert.Validity.Known {
			continue
		}
		days := cert.Validity.DaysUntil(ctx.Today)
		validity := cert.Validity.String()
		switch {
		case days < 0:
			findings = append(findings, finding("certificate_validity", models.SeverityBlock,
				fmt.Sprintf("certidão %s vencida há %d dias (%s)", cert.Category, -days, validity), ref))
		case days <= 15:
			findings = append(findings, finding("certificate_validity", models.SeverityCaveat,
				fmt.Sprintf("certidão %s vence em %d dias (%s)", cert.Category, days, validity), ref))
		default:
			findings = append(findings, finding("certificate_validity", models.SeverityConformant,
				fmt.Sprintf("certidão %s válida até %s", cert.Category, validity), ref))
		}
	}
	return findings
}

func certificateResultFinding(cert models.Certificate, ref string) []models.Finding {
	result := strings.ToUpper(strings.TrimSpace(cert.Result))
	clear := result == "" || result == "NADA CONSTA" || result == "CREDENCIADO"
	if clear {
		if result != "" {
			return []models.Finding{finding("certificate_validity", models.SeverityConformant,
				fmt.Sprintf("consulta %s: %s", cert.Category, strings.ToLower(result)), ref)}
		}
		return nil
	}

	// Indirect impediment occurrences are informative hits against third
	// parties linked to the supplier, capped at caveat.
	if cert.Category == models.CertIndirectImpediment {
		return []models.Finding{finding("certificate_validity", models.SeverityCaveat,
			fmt.Sprintf("ocorrências impeditivas indiretas registradas: %s", strings.ToLower(result)), ref)}
	}
	return []models.Finding{finding("certificate_validity", models.SeverityBlock,
		fmt.Sprintf("resultado desabonador na consulta %s: %s", cert.Category, strings.ToLower(result)), ref)}
}

func expenseNature(ctx Context) []models.Finding {
	if ctx.Catalog == nil {
		return nil
	}
	var findings []models.Finding
	for _, item := range ctx.Dossier.Items {
		code := item.ExpenseCode
		if code == "" {
			code = ctx.Dossier.Identification.ExpenseCode
		}
		if code == "" || item.Description == "" {
			continue
		}
		ref := fmt.Sprintf("item:%d", item.Number)

		elementNature := ctx.Catalog.ElementNature(code)
		if elementNature == refdata.NatureOther {
			findings = append(findings, finding("expense_nature", models.SeverityCaveat,
				fmt.Sprintf("item %d: elemento de despesa %s não resolvido no catálogo", item.Number, code), ref))
			continue
		}
		described := refdata.DetectNature(item.Description)
		if described == "" || described == elementNature {
			continue
		}
		findings = append(findings, finding("expense_nature", models.SeverityCaveat,
			fmt.Sprintf("item %d: ND indica %s, mas a descrição sugere %s", item.Number, elementNature, described), ref))
	}
	return findings
}

var mandatoryKinds = []models.SectionKind{
	models.KindCover,
	models.KindOpeningTerm,
	models.KindChecklist,
	models.KindRequisition,
	models.KindCreditNote,
	models.KindCertificates,
	models.KindDispatch,
}

func proceduralCompleteness(ctx Context) []models.Finding {
	var findings []models.Finding
	for _, kind := range mandatoryKinds {
		if len(ctx.Dossier.ActiveSections(kind)) > 0 {
			continue
		}
		// The credit note is the one conditionally optional piece: in
		// credit-note-pending mode its absence is the expected state.
		if kind == models.KindCreditNote && ctx.Mode == models.ModeCreditNotePending {
			continue
		}
		findings = append(findings, finding("procedural_completeness", models.SeverityCaveat,
			fmt.Sprintf("peça obrigatória ausente no processo: %s", kind), "section:"+string(kind)))
	}
	// Unclassified spans are kept out of extraction; report them once so
	// the reviewer knows pages were skipped.
	unclassifiedPages := 0
	for _, sec := range ctx.Dossier.Sections {
		if sec.Kind == models.KindUnclassified {
			unclassifiedPages += sec.LastPage - sec.FirstPage + 1
		}
	}
	if unclassifiedPages > 0 {
		findings = append(findings, finding("procedural_completeness", models.SeverityCaveat,
			fmt.Sprintf("%d página(s) não classificada(s) e excluída(s) da extração", unclassifiedPages),
			"section:unclassified"))
	}
	return findings
}

func dispatchChain(ctx Context) []models.Finding {
	var findings []models.Finding
	for _, dispatch := range ctx.Dossier.Dispatches {
		if dispatch.NUP == "" || ctx.Dossier.NUP == "" {
			continue
		}
		ref := fmt.Sprintf("dispatch:%d", dispatch.Sequence)
		if dispatch.NUP != ctx.Dossier.NUP {
			findings = append(findings, finding("dispatch_chain", models.SeverityCaveat,
				fmt.Sprintf("despacho %d referencia NUP %s, divergente do NUP do processo %s",
					dispatch.Sequence, dispatch.NUP, ctx.Dossier.NUP), ref))
		} else {
			findings = append(findings, finding("dispatch_chain", models.SeverityConformant,
				fmt.Sprintf("despacho %d referencia o NUP do processo", dispatch.Sequence), ref))
		}
	}
	return findings
}
