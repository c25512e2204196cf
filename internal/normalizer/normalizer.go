package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/9gptlog/dossier-analyzer/internal/models"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases the text and strips diacritics so keyword matching does
// not depend on accent spelling.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

var monthsByName = map[string]time.Month{
	"jan": time.January, "janeiro": time.January,
	"fev": time.February, "fevereiro": time.February,
	"mar": time.March, "marco": time.March,
	"abr": time.April, "abril": time.April,
	"mai": time.May, "maio": time.May,
	"jun": time.June, "junho": time.June,
	"jul": time.July, "julho": time.July,
	"ago": time.August, "agosto": time.August,
	"set": time.September, "setembro": time.September,
	"out": time.October, "outubro": time.October,
	"nov": time.November, "novembro": time.November,
	"dez": time.December, "dezembro": time.December,
}

var (
	reDateNumeric = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	reDateProse   = regexp.MustCompile(`^(\d{1,2})\s+de\s+([a-z]+)\s+de\s+(\d{4})$`)
	reDateNamed   = regexp.MustCompile(`^(\d{1,2})\s*/?\s*([a-z]{3,9})\.?\s*/?\s*(\d{2,4})$`)
)

// ParseDate converts any of the date spellings found in the dossiers into
// a calendar date. Unparseable input yields an unknown date, never an
// error. Accepted layouts include 31/12/2025, 31/12/25, 31/DEZ/2025,
// 31 DEZ 25, 31Dez25, 31DEZ2025 and "31 de dezembro de 2025".
func ParseDate(raw string) models.Date {
	s := strings.TrimSpace(Fold(raw))
	if s == "" {
		return models.Date{}
	}

	if m := reDateNumeric.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], int(mustMonth(m[2])), m[3])
	}
	if m := reDateProse.FindStringSubmatch(s); m != nil {
		if month, ok := monthsByName[m[2]]; ok {
			return buildDate(m[1], int(month), m[3])
		}
		return models.Date{}
	}
	if m := reDateNamed.FindStringSubmatch(s); m != nil {
		if month, ok := monthsByName[m[2]]; ok {
			return buildDate(m[1], int(month), m[3])
		}
	}
	return models.Date{}
}

func mustMonth(s string) time.Month {
	n, _ := strconv.Atoi(s)
	return time.Month(n)
}

func buildDate(dayStr string, month int, yearStr string) models.Date {
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return models.Date{}
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return models.Date{}
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return models.Date{}
	}
	d := models.NewDate(year, time.Month(month), day)
	// Reject rollovers such as 31/02.
	if d.Time.Day() != day {
		return models.Date{}
	}
	return d
}

var reCanonicalMoney = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)

// ParseMoney converts a Brazilian-formatted monetary string ("R$ 1.999,80")
// into a two-place decimal. Canonical input ("1999.80") passes through
// unchanged.
func ParseMoney(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty monetary value")
	}

	if !reCanonicalMoney.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable monetary value %q: %w", raw, err)
	}
	return d, nil
}

// ParseMoneyOpt is ParseMoney with absence folded into a null decimal.
func ParseMoneyOpt(raw string) decimal.NullDecimal {
	d, err := ParseMoney(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseQuantity accepts Brazilian decimal quantities ("6,666" or "1.234,5")
// as well as canonical ones.
func ParseQuantity(raw string) decimal.NullDecimal {
	return ParseMoneyOpt(raw)
}

// NormalizeExpenseCode strips internal punctuation so "33.90.30" and
// "339030" compare equal. Idempotent on canonical codes.
func NormalizeExpenseCode(code string) string {
	s := strings.TrimSpace(code)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// SplitExpenseCode separates an expense code from its trailing sub-element
// suffix. "39.17" yields ("39", "17"); "33.90.39/24" yields ("339039",
// "24"); a plain code yields an empty sub-element.
func SplitExpenseCode(code string) (string, string) {
	s := strings.TrimSpace(code)
	if s == "" {
		return "", ""
	}

	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		sub := strings.TrimSpace(s[idx+1:])
		base := NormalizeExpenseCode(s[:idx])
		if isShortDigits(sub) {
			return base, sub
		}
		return base, ""
	}

	parts := strings.Split(s, ".")
	if len(parts) == 2 && isShortDigits(parts[0]) && isShortDigits(parts[1]) {
		return parts[0], parts[1]
	}

	return NormalizeExpenseCode(s), ""
}

// Element returns the expense-element portion of a code: the last two
// digits of a full six-digit code, or the code itself when it is already
// an element.
func Element(code string) string {
	s := NormalizeExpenseCode(code)
	if len(s) == 6 && isDigits(s) {
		return s[4:]
	}
	if isShortDigits(s) {
		return s
	}
	return ""
}

// IsGenericExpenseCode reports whether the code is the unassigned
// placeholder that requires manual budget classification.
func IsGenericExpenseCode(code string) bool {
	return NormalizeExpenseCode(code) == "339000"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isShortDigits(s string) bool {
	return len(s) >= 1 && len(s) <= 2 && isDigits(s)
}
