package segmenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9gptlog/dossier-analyzer/internal/models"
)

const requisitionText = `REQUISIÇÃO DE MATERIAL Nr 123
SETOR REQUISITANTE: Setor de Aprovisionamento
ITEM  CATMAT  DESCRIÇÃO  QTD  P. UNIT  VALOR TOTAL`

const creditNoteText = `NOTA DE CRÉDITO 2025NC000123
PRAZO PARA EMPENHO: 30/09/2025
ESF PTRES FONTE ND UGR PI`

const dispatchText = `DESPACHO Nº 45
Encaminho o presente processo para análise.`

func pages(texts ...string) []models.Page {
	out := make([]models.Page, len(texts))
	for i, t := range texts {
		out[i] = models.Page{Number: i + 1, Text: t}
	}
	return out
}

func TestSegment(t *testing.T) {
	s := New()

	t.Run("Expect: pages are classified by keyword score", func(t *testing.T) {
		sections, err := s.Segment(pages(requisitionText, creditNoteText, dispatchText))
		require.NoError(t, err)
		require.Len(t, sections, 3)
		assert.Equal(t, models.KindRequisition, sections[0].Kind)
		assert.Equal(t, models.KindCreditNote, sections[1].Kind)
		assert.Equal(t, models.KindDispatch, sections[2].Kind)
	})

	t.Run("Expect: consecutive pages of the same kind merge into one section", func(t *testing.T) {
		sections, err := s.Segment(pages(requisitionText, requisitionText+" continuação"))
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, 1, sections[0].FirstPage)
		assert.Equal(t, 2, sections[0].LastPage)
	})

	t.Run("Expect: low-score pages are retained as unclassified", func(t *testing.T) {
		sections, err := s.Segment(pages(requisitionText, "texto qualquer sem marcadores"))
		require.NoError(t, err)
		require.Len(t, sections, 2)
		assert.Equal(t, models.KindUnclassified, sections[1].Kind)
		assert.False(t, sections[1].Active)
	})

	t.Run("Expect: withdrawn sections are deactivated but kept for audit", func(t *testing.T) {
		withdrawn := creditNoteText + "\nDOCUMENTO DESENTRANHADO DO PROCESSO"
		sections, err := s.Segment(pages(requisitionText, withdrawn))
		require.NoError(t, err)
		require.Len(t, sections, 2)
		assert.Equal(t, models.KindCreditNote, sections[1].Kind)
		assert.False(t, sections[1].Active)
	})

	t.Run("Expect: duplicate identity keeps only the most recent section", func(t *testing.T) {
		sections, err := s.Segment(pages(creditNoteText, requisitionText, creditNoteText))
		require.NoError(t, err)
		require.Len(t, sections, 3)
		assert.False(t, sections[0].Active)
		assert.True(t, sections[2].Active)
	})

	t.Run("Expect: missing requisition aborts the pipeline", func(t *testing.T) {
		_, err := s.Segment(pages(creditNoteText, dispatchText))
		assert.ErrorIs(t, err, ErrNoRequisition)
	})

	t.Run("Expect: empty bundle aborts the pipeline", func(t *testing.T) {
		_, err := s.Segment(pages("", ""))
		assert.ErrorIs(t, err, ErrNoReadablePages)

		_, err = s.Segment(nil)
		assert.ErrorIs(t, err, ErrNoReadablePages)
	})

	t.Run("Expect: a single requisition keyword is not enough", func(t *testing.T) {
		sections, err := s.Segment(pages(requisitionText, "valor total da obra conforme planilha"))
		require.NoError(t, err)
		assert.Equal(t, models.KindUnclassified, sections[1].Kind)
	})
}
