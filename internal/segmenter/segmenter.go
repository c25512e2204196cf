package segmenter

import (
	"errors"
	"regexp"
	"strings"

	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/normalizer"
)

// ErrNoRequisition is the single fatal segmentation failure. Every
// downstream stage depends on a requisition section being present.
var ErrNoRequisition = errors.New("no requisition section classified")

// ErrNoReadablePages is returned when the bundle has no text at all.
var ErrNoReadablePages = errors.New("no readable pages in dossier")

type indicator struct {
	phrase string
	weight int
}

// Indicator phrases are matched against accent-folded lowercase text, so
// the table is written without diacritics.
var indicatorsByKind = map[models.SectionKind][]indicator{
	models.KindCover: {
		{"capa do processo", 3},
		{"rol de pecas", 2},
		{"processo administrativo eletronico", 2},
	},
	models.KindOpeningTerm: {
		{"termo de abertura", 3},
		{"autuacao do processo", 2},
	},
	models.KindChecklist: {
		{"check-list", 3},
		{"check list", 3},
		{"lista de verificacao", 3},
	},
	models.KindRequisition: {
		{"requisicao", 2},
		{"setor requisitante", 2},
		{"nd/si", 1},
		{"catmat", 1},
		{"catser", 1},
		{"valor total", 1},
		{"p. unit", 1},
		{"qtd", 1},
	},
	models.KindCreditNote: {
		{"nota de credito", 3},
		{"demonstra-diario", 3},
		{"prazo para empenho", 2},
		{"esf ptres fonte", 2},
		{"destino", 1},
	},
	models.KindCertificates: {
		{"declaracao sicaf", 3},
		{"consulta consolidada", 3},
		{"sicaf", 2},
		{"certidao", 2},
		{"cadin", 2},
		{"ocorrencias impeditivas", 2},
		{"nada consta", 1},
	},
	models.KindContract: {
		{"termo de contrato", 3},
		{"ata de registro de precos", 2},
		{"clausula primeira", 2},
		{"das partes", 1},
	},
	models.KindDispatch: {
		{"despacho", 3},
		{"encaminho o presente", 1},
		{"de acordo", 1},
	},
}

// Classification order matters for ties: dispatch pages often quote
// requisition vocabulary, so dispatch is tested first.
var kindOrder = []models.SectionKind{
	models.KindCover,
	models.KindOpeningTerm,
	models.KindChecklist,
	models.KindDispatch,
	models.KindCreditNote,
	models.KindCertificates,
	models.KindContract,
	models.KindRequisition,
}

const minScore = 3

var (
	reWithdrawn     = regexp.MustCompile(`desentranh`)
	reCreditNoteNr  = regexp.MustCompile(`20\d{2}nc\d{6}`)
	reRequisitionNr = regexp.MustCompile(`requisicao[^0-9]{0,30}n?[ro.\s]{0,4}(\d{1,5})`)
)

type Segmenter struct{}

func New() *Segmenter {
	return &Segmenter{}
}

// Segment classifies each page, merges consecutive pages of the same kind
// into sections and filters superseded versions. The only hard failures
// are an empty bundle and the absence of any requisition section.
func (s *Segmenter) Segment(pages []models.Page) ([]models.Section, error) {
	readable := 0
	for _, p := range pages {
		if len(p.Text) > 0 {
			readable++
		}
	}
	if readable == 0 {
		return nil, ErrNoReadablePages
	}

	var sections []models.Section
	for _, page := range pages {
		kind := classify(page.Text)
		if n := len(sections); n > 0 && sections[n-1].Kind == kind && sections[n-1].LastPage == page.Number-1 {
			sections[n-1].LastPage = page.Number
			sections[n-1].Text += "\n" + page.Text
			continue
		}
		sections = append(sections, models.Section{
			Kind:      kind,
			FirstPage: page.Number,
			LastPage:  page.Number,
			Text:      page.Text,
			Active:    kind != models.KindUnclassified,
		})
	}

	markWithdrawn(sections)
	resolveDuplicates(sections)

	hasRequisition := false
	for _, sec := range sections {
		if sec.Kind == models.KindRequisition && sec.Active {
			hasRequisition = true
			break
		}
	}
	if !hasRequisition {
		return nil, ErrNoRequisition
	}

	return sections, nil
}

func classify(text string) models.SectionKind {
	folded := normalizer.Fold(text)

	bestKind := models.KindUnclassified
	bestScore := 0
	for _, kind := range kindOrder {
		score, hits := score(folded, indicatorsByKind[kind])
		// Requisition vocabulary is too common to trust a single hit.
		if kind == models.KindRequisition && hits < 2 {
			continue
		}
		if score >= minScore && score > bestScore {
			bestKind = kind
			bestScore = score
		}
	}
	return bestKind
}

func score(folded string, indicators []indicator) (int, int) {
	total, hits := 0, 0
	for _, ind := range indicators {
		if strings.Contains(folded, ind.phrase) {
			total += ind.weight
			hits++
		}
	}
	return total, hits
}


// markWithdrawn deactivates sections carrying an explicit withdrawal
// annotation. They stay in the list for audit.
func markWithdrawn(sections []models.Section) {
	for i := range sections {
		if reWithdrawn.MatchString(normalizer.Fold(sections[i].Text)) {
			sections[i].Active = false
		}
	}
}

// resolveDuplicates keeps only the most recent active section when two
// active sections of the same kind share a logical identity (the same
// credit-note or requisition number).
func resolveDuplicates(sections []models.Section) {
	lastByIdentity := make(map[string]int)
	for i := range sections {
		if !sections[i].Active {
			continue
		}
		id := sectionIdentity(sections[i])
		if id == "" {
			continue
		}
		if prev, seen := lastByIdentity[id]; seen {
			sections[prev].Active = false
		}
		lastByIdentity[id] = i
	}
}

func sectionIdentity(sec models.Section) string {
	folded := normalizer.Fold(sec.Text)
	switch sec.Kind {
	case models.KindCreditNote:
		if m := reCreditNoteNr.FindString(folded); m != "" {
			return string(sec.Kind) + ":" + m
		}
	case models.KindRequisition:
		if m := reRequisitionNr.FindStringSubmatch(folded); m != nil {
			return string(sec.Kind) + ":" + m[1]
		}
	}
	return ""
}
