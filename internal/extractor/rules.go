package extractor

import "regexp"

// fieldRule binds one capture pattern to a named field. Rules for the
// same field run in declaration order and the first match wins; later
// rules for an already-resolved field are skipped.
type fieldRule struct {
	field   string
	pattern *regexp.Regexp
	// onCodes switches matching to the code-normalized shadow text, in
	// which punctuation inside digit groups has been stripped.
	onCodes bool
}

// applyRules resolves each field to the first matching rule's first
// capture group. Unmatched fields are simply absent from the map.
func applyRules(rules []fieldRule, text, codeText string) map[string]string {
	raw := make(map[string]string)
	for _, rule := range rules {
		if _, done := raw[rule.field]; done {
			continue
		}
		haystack := text
		if rule.onCodes {
			haystack = codeText
		}
		if m := rule.pattern.FindStringSubmatch(haystack); m != nil {
			raw[rule.field] = trimValue(m[1])
		}
	}
	return raw
}

var reDigitDot = regexp.MustCompile(`(\d)\.(\d)`)

// codeShadow strips separating punctuation between digits so code rules
// need not special-case "33.90.30" versus "339030".
func codeShadow(text string) string {
	prev := ""
	for prev != text {
		prev = text
		text = reDigitDot.ReplaceAllString(text, "$1$2")
	}
	return text
}

var reTrim = regexp.MustCompile(`^[\s:.\-–]+|[\s:.\-–]+$`)

func trimValue(s string) string {
	return reTrim.ReplaceAllString(s, "")
}

var identificationRules = []fieldRule{
	{field: "nup", pattern: regexp.MustCompile(`(\d{5}\.\d{6}/\d{4}-\d{2})`)},
	{field: "cnpj", pattern: regexp.MustCompile(`(\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2})`)},
	{field: "supplier", pattern: regexp.MustCompile(`(?i)raz[aã]o social[:\s]+([^\n]+)`)},
	{field: "supplier", pattern: regexp.MustCompile(`(?i)fornecedor[:\s]+([^\n]+)`)},
	{field: "supplier", pattern: regexp.MustCompile(`(?i)empresa[:\s]+([^\n]+)`)},
	{field: "unit", pattern: regexp.MustCompile(`(?i)om requisitante[:\s]+([^\n]+)`)},
	{field: "unit", pattern: regexp.MustCompile(`(?i)organiza[cç][aã]o militar[:\s]+([^\n]+)`)},
	{field: "sector", pattern: regexp.MustCompile(`(?i)setor(?: requisitante)?[:\s]+([^\n]+)`)},
	{field: "purpose", pattern: regexp.MustCompile(`(?i)objeto[:\s]+([^\n]+)`)},
	{field: "purpose", pattern: regexp.MustCompile(`(?i)finalidade[:\s]+([^\n]+)`)},
	{field: "commitment_type", pattern: regexp.MustCompile(`(?i)\b(ordin[aá]rio|estimativo|global)\b`)},
	{field: "instrument", pattern: regexp.MustCompile(`(?i)(preg[aã]o(?: eletr[oô]nico)?\s*(?:n[ro.º°\s]{0,4})?\d{1,5}/\d{4})`)},
	{field: "instrument", pattern: regexp.MustCompile(`(?i)(contrato\s*(?:n[ro.º°\s]{0,4})?\d{1,5}/\d{4})`)},
	{field: "instrument", pattern: regexp.MustCompile(`(?i)(dispensa de licita[cç][aã]o\s*(?:n[ro.º°\s]{0,4})?\d{1,5}/\d{4})`)},
	{field: "uasg", pattern: regexp.MustCompile(`(?i)uasg[:\s]*(\d{6})`)},
	{field: "req_nr", pattern: regexp.MustCompile(`(?i)requisi[cç][aã]o[^\d\n]{0,30}(\d{1,5})`)},
	{field: "req_date", pattern: regexp.MustCompile(`(?i)data(?: da requisi[cç][aã]o)?[:\s]*(\d{1,2}/\d{1,2}/\d{2,4})`)},
	{field: "nc_ref", pattern: regexp.MustCompile(`(20\d{2}NC\d{6})`), onCodes: true},
	{field: "nd", pattern: regexp.MustCompile(`\b(3[34]\d{4})\b`), onCodes: true},
	{field: "pi", pattern: regexp.MustCompile(`(?i)\bpi\b[:\s]*([A-Z0-9]{8,15})\b`)},
	{field: "ptres", pattern: regexp.MustCompile(`(?i)ptres[:\s]*(\d{4,6})`)},
	{field: "fund", pattern: regexp.MustCompile(`(?i)fonte[:\s]*(\d{4,10})`)},
	{field: "ugr", pattern: regexp.MustCompile(`(?i)ugr[:\s]*(\d{6})`)},
	{field: "total", pattern: regexp.MustCompile(`(?i)valor total do processo[:\s]*(?:R\$)?\s*([\d.,]+)`)},
	{field: "total", pattern: regexp.MustCompile(`(?i)valor total(?: geral)?[^\S\n]*:?[^\S\n]*R\$[^\S\n]*([\d.,]+)`)},
}

var creditNoteHeaderRules = []fieldRule{
	{field: "number", pattern: regexp.MustCompile(`(20\d{2}NC\d{6})`), onCodes: true},
	{field: "issue_date", pattern: regexp.MustCompile(`(?i)(?:data(?:\s+de)?\s+emiss[aã]o|emitida em)[:\s]*(\d{1,2}/\d{1,2}/\d{2,4})`)},
	{field: "issuer_unit", pattern: regexp.MustCompile(`(?i)ug\s*(?:/gest[aã]o)?\s*emitente[:\s]*(\d{6})`)},
	{field: "issuer_name", pattern: regexp.MustCompile(`(?i)ug\s*(?:/gest[aã]o)?\s*emitente[:\s]*\d{6}[\s\-–]+([^\n]+)`)},
	{field: "beneficiary_unit", pattern: regexp.MustCompile(`(?i)ug\s*(?:/gest[aã]o)?\s*favorecida[:\s]*(\d{6})`)},
	{field: "beneficiary_name", pattern: regexp.MustCompile(`(?i)ug\s*(?:/gest[aã]o)?\s*favorecida[:\s]*\d{6}[\s\-–]+([^\n]+)`)},
	{field: "deadline", pattern: regexp.MustCompile(`(?i)prazo para empenho[^\d\n]*(\d{1,2}/\d{1,2}/\d{2,4})`)},
	{field: "deadline", pattern: regexp.MustCompile(`(?i)prazo para empenho[^\d\n]*(\d{1,2}\s*de\s*[a-zç]+\s*de\s*\d{4})`)},
	{field: "deadline", pattern: regexp.MustCompile(`(?i)empenhar at[eé][^\d\n]*(\d{1,2}/\d{1,2}/\d{2,4})`)},
}

var dispatchRules = []fieldRule{
	{field: "sequence", pattern: regexp.MustCompile(`(?i)despacho\s*(?:n[ro.º°\s]{0,4})?(\d{1,5})`)},
	{field: "nup", pattern: regexp.MustCompile(`(\d{5}\.\d{6}/\d{4}-\d{2})`)},
	{field: "author", pattern: regexp.MustCompile(`(?i)\b(ordenador de despesas|fiscal administrativo|chefe d[aeo][^\n,]*|encarregado d[aeo][^\n,]*)`)},
	{field: "date", pattern: regexp.MustCompile(`(?i)em[,]?\s*(\d{1,2}\s*de\s*[a-zç]+\s*de\s*\d{4})`)},
	{field: "date", pattern: regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)},
}
