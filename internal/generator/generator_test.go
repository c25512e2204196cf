package generator

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9gptlog/dossier-analyzer/internal/models"
)

func maskDossier() *models.Dossier {
	return &models.Dossier{
		Identification: models.IdentificationRecord{
			RequesterUnit: "9º Gpt Log",
			Sector:        "Aprov",
			Purpose:       "AQUISIÇÃO DE MATERIAL DE CONSTRUÇÃO",
			Instrument:    "PREGÃO ELETRÔNICO Nr 12/2025",
			UASG:          "160222",
			RequisitionNr: "123",
		},
		CreditNotes: []models.CreditNote{{
			Number:     "2025NC000123",
			IssueDate:  models.NewDate(2025, time.July, 1),
			IssuerName: "COMANDO LOGÍSTICO",
			Lines: []models.LedgerLine{{
				ExpenseCode: "339030",
				Fund:        "0100000000",
				Program:     "168421",
				Unit:        "167504",
				Action:      "A9GPTLOG22",
				Value:       decimal.NewFromInt(2000),
			}},
		}},
	}
}

func TestMasks(t *testing.T) {
	t.Run("Expect: one mask per credit note with fields in fixed order", func(t *testing.T) {
		d := maskDossier()
		masks := Masks(d, nil)
		require.Len(t, masks, 1)

		m := masks[0]
		assert.True(t, strings.HasSuffix(m, "."))
		assert.Contains(t, m, "9º GPT LOG")
		assert.Contains(t, m, "REQ 123-APROV")
		assert.Contains(t, m, "AQS MAT")
		assert.Contains(t, m, "NC 2025NC000123 DE 01/07/2025")
		assert.Contains(t, m, "DO COMANDO LOGÍSTICO")
		assert.Contains(t, m, "ND 339030")
		assert.Contains(t, m, "PI A9GPTLOG22")
		assert.Contains(t, m, "PE 12/2025")
		assert.Contains(t, m, "UASG 160222")

		ncIdx := strings.Index(m, "NC ")
		ndIdx := strings.Index(m, "ND ")
		peIdx := strings.Index(m, "PE ")
		assert.Less(t, ncIdx, ndIdx)
		assert.Less(t, ndIdx, peIdx)
	})

	t.Run("Expect: optional fields appear iff present", func(t *testing.T) {
		d := maskDossier()
		d.CreditNotes[0].Lines[0].Fund = ""
		d.CreditNotes[0].Lines[0].Unit = ""
		without := Masks(d, nil)[0]
		assert.NotContains(t, without, "FONTE")
		assert.NotContains(t, without, "UGR")
		assert.Contains(t, without, "PTRES 168421")
	})

	t.Run("Expect: adding an optional field only adds its token", func(t *testing.T) {
		d := maskDossier()
		d.CreditNotes[0].Lines[0].Fund = ""
		without := Masks(d, nil)[0]

		d.CreditNotes[0].Lines[0].Fund = "0100000000"
		with := Masks(d, nil)[0]

		assert.Equal(t, without, strings.Replace(with, ", FONTE 0100000000", "", 1))
	})

	t.Run("Expect: contract instruments use the CONT token", func(t *testing.T) {
		d := maskDossier()
		d.Identification.Instrument = "CONTRATO Nr 7/2025"
		m := Masks(d, nil)[0]
		assert.Contains(t, m, "CONT 7/2025")
		assert.NotContains(t, m, "PE 7/2025")
	})

	t.Run("Expect: no credit notes produces no masks", func(t *testing.T) {
		assert.Empty(t, Masks(&models.Dossier{}, nil))
	})
}

func caveatFinding(msg string) models.Finding {
	return models.Finding{Severity: models.SeverityCaveat, Message: msg}
}

func blockFinding(msg string) models.Finding {
	return models.Finding{Severity: models.SeverityBlock, Message: msg}
}

func TestDispatchText(t *testing.T) {
	t.Run("Expect: plain approval produces no body", func(t *testing.T) {
		assert.Empty(t, DispatchText(models.OutcomeApproved, []models.Finding{caveatFinding("x")}))
		assert.Empty(t, DispatchText(models.OutcomePartialPendingCreditNote, nil))
	})

	t.Run("Expect: body opens with the fixed phrase", func(t *testing.T) {
		text := DispatchText(models.OutcomeApprovedWithCaveat, []models.Finding{
			caveatFinding("Certidão FGTS vence em 5 dias"),
		})
		assert.Equal(t, "Informo que certidão FGTS vence em 5 dias.", text)
	})

	t.Run("Expect: block findings come first, then production order", func(t *testing.T) {
		text := DispatchText(models.OutcomeRejected, []models.Finding{
			caveatFinding("prazo para empenho urgente"),
			blockFinding("CNPJ divergente entre as seções"),
			caveatFinding("saldo insuficiente"),
		})
		require.True(t, strings.HasPrefix(text, "Informo que cNPJ divergente") ||
			strings.HasPrefix(text, "Informo que CNPJ divergente"),
			"block finding must open the body: %s", text)
		first := strings.Index(text, "prazo para empenho")
		second := strings.Index(text, "saldo insuficiente")
		assert.Greater(t, first, 0)
		assert.Greater(t, second, first)
		assert.Contains(t, text, additionalPrefix)
	})

	t.Run("Expect: conformant findings never appear", func(t *testing.T) {
		text := DispatchText(models.OutcomeApprovedWithCaveat, []models.Finding{
			{Severity: models.SeverityConformant, Message: "tudo certo"},
			caveatFinding("uma ressalva"),
		})
		assert.NotContains(t, text, "tudo certo")
	})
}
