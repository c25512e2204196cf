package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/normalizer"
)

type certSpec struct {
	category models.CertificateCategory
	presence *regexp.Regexp
}

// The presence patterns run against accent-folded lowercase text. Order
// matters: the consolidated-consultation registries come before the
// generic debarment wording they embed.
var certSpecs = []certSpec{
	{models.CertRegistration, regexp.MustCompile(`situacao do fornecedor|nivel de credenciamento`)},
	{models.CertFederalTax, regexp.MustCompile(`receita federal e pgfn|tributos federais|receita federal`)},
	{models.CertStateTax, regexp.MustCompile(`fazenda estadual|tributos estaduais`)},
	{models.CertMunicipalTax, regexp.MustCompile(`fazenda municipal|tributos municipais`)},
	{models.CertSocialSecurity, regexp.MustCompile(`seguridade social|inss`)},
	{models.CertFGTS, regexp.MustCompile(`fgts`)},
	{models.CertLabor, regexp.MustCompile(`debitos trabalhistas|justica do trabalho|trabalhista`)},
	{models.CertIndirectImpediment, regexp.MustCompile(`ocorrencias impeditivas indiretas`)},
	{models.CertDebarment, regexp.MustCompile(`impedid[oa]s? de licitar|impedimento de licitar`)},
	{models.CertCADIN, regexp.MustCompile(`cadin`)},
	{models.CertTCU, regexp.MustCompile(`tribunal de contas da uniao|inabilitados.{0,30}tcu|\btcu\b`)},
	{models.CertCNJ, regexp.MustCompile(`cadastro nacional de condenacoes civeis|\bcnj\b`)},
	{models.CertCEIS, regexp.MustCompile(`empresas inidoneas e suspensas|\bceis\b`)},
	{models.CertCNEP, regexp.MustCompile(`empresas punidas|\bcnep\b`)},
}

var (
	reCNPJ         = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`)
	reWindowDate   = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
	reValidityDate = regexp.MustCompile(`valid[a-z]*[^0-9\n]{0,40}(\d{1,2}/\d{1,2}/\d{4})`)
	reNothingFound = regexp.MustCompile(`nada consta|nao consta|sem ocorrencias`)
	reFound        = regexp.MustCompile(`consta(?:m|ram)? (?:registro|ocorrencia)[a-z]*`)
	reRegistered   = regexp.MustCompile(`credenciado`)
)

const certWindow = 160

// Certificates scans the certificate-bundle sections for each known
// compliance category. A category absent from the text simply produces
// no Certificate; completeness is judged by the rule battery, not here.
func (e *Extractor) Certificates(sections []models.Section) []models.Certificate {
	text := joinSections(sections, models.KindCertificates)
	if text == "" {
		return nil
	}
	folded := normalizer.Fold(text)
	taxID := reCNPJ.FindString(text)

	var certs []models.Certificate
	seen := make(map[models.CertificateCategory]bool)
	for _, spec := range certSpecs {
		loc := spec.presence.FindStringIndex(folded)
		if loc == nil || seen[spec.category] {
			continue
		}
		seen[spec.category] = true

		// The window runs to the end of the line the category was found
		// on. Results and validity dates sit on that same line.
		end := loc[1] + certWindow
		if nl := strings.IndexByte(folded[loc[1]:], '\n'); nl >= 0 && loc[1]+nl < end {
			end = loc[1] + nl
		}
		if end > len(folded) {
			end = len(folded)
		}
		window := folded[loc[0]:end]

		certs = append(certs, models.Certificate{
			Category: spec.category,
			TaxID:    taxID,
			Result:   windowResult(window),
			Validity: windowValidity(window),
		})
	}
	return certs
}

func windowResult(window string) string {
	if reNothingFound.MatchString(window) {
		return "NADA CONSTA"
	}
	if m := reFound.FindString(window); m != "" {
		return strings.ToUpper(m)
	}
	if reRegistered.MatchString(window) {
		return "Credenciado"
	}
	return ""
}

func windowValidity(window string) models.Date {
	if m := reValidityDate.FindStringSubmatch(window); m != nil {
		return normalizer.ParseDate(m[1])
	}
	if m := reWindowDate.FindString(window); m != "" {
		return normalizer.ParseDate(m)
	}
	return models.Date{}
}

var reDispatchStart = regexp.MustCompile(`(?i)despacho\s*(?:n[ro.º°\s]{0,4})?\d`)

// Dispatches splits the dispatch sections on their headers and extracts
// one record per dispatch in chain order.
func (e *Extractor) Dispatches(sections []models.Section) []models.Dispatch {
	text := joinSections(sections, models.KindDispatch)
	if text == "" {
		return nil
	}

	starts := reDispatchStart.FindAllStringIndex(text, -1)
	if starts == nil {
		return []models.Dispatch{buildDispatch(text, 1)}
	}

	var dispatches []models.Dispatch
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		dispatches = append(dispatches, buildDispatch(text[loc[0]:end], i+1))
	}
	return dispatches
}

func buildDispatch(body string, order int) models.Dispatch {
	raw := applyRules(dispatchRules, body, codeShadow(body))

	seq := order
	if n, err := strconv.Atoi(raw["sequence"]); err == nil {
		seq = n
	}
	return models.Dispatch{
		Sequence:   seq,
		AuthorRole: raw["author"],
		Body:       strings.TrimSpace(body),
		NUP:        raw["nup"],
		SignedAt:   normalizer.ParseDate(raw["date"]),
	}
}
