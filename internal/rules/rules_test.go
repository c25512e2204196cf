package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9gptlog/dossier-analyzer/internal/ledger"
	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/refdata"
)

var today = time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func testCatalog(t *testing.T) *refdata.Catalog {
	t.Helper()
	c, err := refdata.Parse([]byte(`
elements:
  "30": {name: "Material de Consumo", nature: material}
  "39": {name: "Outros Serviços de Terceiros - PJ", nature: service}
`))
	require.NoError(t, err)
	return c
}

func baseContext(d *models.Dossier) Context {
	return Context{Dossier: d, Mode: models.ModeFull, Today: today}
}

func bySeverity(findings []models.Finding, rule string) (conformant, caveat, block int) {
	for _, f := range findings {
		if f.Rule != rule {
			continue
		}
		switch f.Severity {
		case models.SeverityConformant:
			conformant++
		case models.SeverityCaveat:
			caveat++
		case models.SeverityBlock:
			block++
		}
	}
	return
}

func TestItemArithmetic(t *testing.T) {
	t.Run("Expect: quantity times unit price within tolerance is conformant", func(t *testing.T) {
		d := &models.Dossier{Items: []models.Item{{
			Number:     1,
			Quantity:   dec("6666"),
			UnitPrice:  dec("0.30"),
			TotalPrice: dec("1999.80"),
		}}}
		findings := itemArithmetic(baseContext(d))
		conformant, caveat, block := bySeverity(findings, "item_arithmetic")
		assert.Equal(t, 1, conformant)
		assert.Zero(t, caveat)
		assert.Zero(t, block)
	})

	t.Run("Expect: divergence is a caveat, never a block", func(t *testing.T) {
		d := &models.Dossier{Items: []models.Item{{
			Number:     1,
			Quantity:   dec("10"),
			UnitPrice:  dec("2.00"),
			TotalPrice: dec("25.00"),
		}}}
		findings := itemArithmetic(baseContext(d))
		_, caveat, block := bySeverity(findings, "item_arithmetic")
		assert.Equal(t, 1, caveat)
		assert.Zero(t, block)
	})

	t.Run("Expect: partial data is flagged for manual verification", func(t *testing.T) {
		d := &models.Dossier{Items: []models.Item{{Number: 2, Quantity: dec("5")}}}
		findings := itemArithmetic(baseContext(d))
		_, caveat, _ := bySeverity(findings, "item_arithmetic")
		assert.Equal(t, 1, caveat)
	})

	t.Run("Expect: declared total is checked against the item sum", func(t *testing.T) {
		d := &models.Dossier{
			Identification: models.IdentificationRecord{DeclaredTotal: dec("100.00")},
			Items: []models.Item{{
				Number: 1, Quantity: dec("1"), UnitPrice: dec("50.00"), TotalPrice: dec("50.00"),
			}},
		}
		findings := itemArithmetic(baseContext(d))
		_, caveat, _ := bySeverity(findings, "item_arithmetic")
		assert.Equal(t, 1, caveat)
	})
}

func TestExpenseCodeAgreement(t *testing.T) {
	resolved := func(code string) ledger.Resolution {
		return ledger.Resolve(models.CreditNote{Lines: []models.LedgerLine{{
			ExpenseCode: code, Fund: "0100000000", Value: decimal.NewFromInt(5000),
		}}})
	}
	dossier := &models.Dossier{Identification: models.IdentificationRecord{ExpenseCode: "339039"}}

	t.Run("Expect: equal codes are conformant", func(t *testing.T) {
		ctx := baseContext(dossier)
		ctx.Ledger = resolved("339039")
		conformant, caveat, block := bySeverity(expenseCodeAgreement(ctx), "expense_code_agreement")
		assert.Equal(t, 1, conformant)
		assert.Zero(t, caveat)
		assert.Zero(t, block)
	})

	t.Run("Expect: generic credit-note code requires manual classification", func(t *testing.T) {
		ctx := baseContext(dossier)
		ctx.Ledger = resolved("339000")
		findings := expenseCodeAgreement(ctx)
		_, caveat, block := bySeverity(findings, "expense_code_agreement")
		assert.Equal(t, 1, caveat)
		assert.Zero(t, block)
		assert.Contains(t, findings[0].Message, "DETAORC")
	})

	t.Run("Expect: different specific codes are a caveat, not a block", func(t *testing.T) {
		ctx := baseContext(dossier)
		ctx.Ledger = resolved("339030")
		_, caveat, block := bySeverity(expenseCodeAgreement(ctx), "expense_code_agreement")
		assert.Equal(t, 1, caveat)
		assert.Zero(t, block)
	})
}

func TestBalanceSufficiency(t *testing.T) {
	dossier := &models.Dossier{
		Identification: models.IdentificationRecord{ExpenseCode: "339030"},
		Items:          []models.Item{{Number: 1, TotalPrice: dec("2000.00")}},
	}

	t.Run("Expect: sufficient balance is conformant", func(t *testing.T) {
		ctx := baseContext(dossier)
		ctx.Ledger = ledger.Resolve(models.CreditNote{Lines: []models.LedgerLine{{
			ExpenseCode: "339030", Value: decimal.NewFromInt(2000),
		}}})
		conformant, caveat, _ := bySeverity(balanceSufficiency(ctx), "balance_sufficiency")
		assert.Equal(t, 1, conformant)
		assert.Zero(t, caveat)
	})

	t.Run("Expect: insufficient balance is a caveat, never a block", func(t *testing.T) {
		ctx := baseContext(dossier)
		ctx.Ledger = ledger.Resolve(models.CreditNote{Lines: []models.LedgerLine{{
			ExpenseCode: "339030", Value: decimal.NewFromInt(100),
		}}})
		_, caveat, block := bySeverity(balanceSufficiency(ctx), "balance_sufficiency")
		assert.Equal(t, 1, caveat)
		assert.Zero(t, block)
	})

	t.Run("Expect: balance under a divergent code is flagged in the message", func(t *testing.T) {
		ctx := baseContext(dossier)
		ctx.Ledger = ledger.Resolve(models.CreditNote{Lines: []models.LedgerLine{{
			ExpenseCode: "339039", Value: decimal.NewFromInt(2000),
		}}})
		findings := balanceSufficiency(ctx)
		require.Len(t, findings, 1)
		assert.Contains(t, findings[0].Message, "ND divergente")
	})
}

func TestLedgerIntegrity(t *testing.T) {
	t.Run("Expect: one caveat per credit note with quarantined lines", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{CreditNotes: []models.CreditNote{
			{Number: "2026NC000123", QuarantinedLines: 2},
			{Number: "2026NC000124"},
		}})
		findings := ledgerIntegrity(ctx)
		require.Len(t, findings, 1)
		assert.Equal(t, models.SeverityCaveat, findings[0].Severity)
		assert.Contains(t, findings[0].Message, "2 linha(s)")
		assert.Contains(t, findings[0].Message, "2026NC000123")
	})

	t.Run("Expect: clean credit notes produce no findings", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{CreditNotes: []models.CreditNote{
			{Number: "2026NC000123", Lines: []models.LedgerLine{{ExpenseCode: "339030", Value: decimal.NewFromInt(100)}}},
		}})
		assert.Empty(t, ledgerIntegrity(ctx))
	})
}

func TestCommitmentDeadlineTiers(t *testing.T) {
	cases := []struct {
		name     string
		deadline models.Date
		caveat   bool
	}{
		{"Expect: more than 15 days ahead is conformant", models.NewDate(2026, time.March, 10), false},
		{"Expect: 8 to 15 days ahead is a caveat", models.NewDate(2026, time.February, 20), true},
		{"Expect: 7 days or fewer is an urgent caveat", models.NewDate(2026, time.February, 14), true},
		{"Expect: past deadline is a caveat, never a block", models.NewDate(2026, time.January, 31), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &models.Dossier{CreditNotes: []models.CreditNote{{
				Number: "2026NC000001", CommitmentDeadline: tc.deadline,
			}}}
			findings := commitmentDeadline(baseContext(d))
			conformant, caveat, block := bySeverity(findings, "commitment_deadline")
			assert.Zero(t, block)
			if tc.caveat {
				assert.Equal(t, 1, caveat)
			} else {
				assert.Equal(t, 1, conformant)
			}
		})
	}
}

func TestCertificateValidity(t *testing.T) {
	certDossier := func(c models.Certificate) *models.Dossier {
		return &models.Dossier{Certificates: []models.Certificate{c}}
	}

	t.Run("Expect: validity within 15 days is a caveat", func(t *testing.T) {
		// 16/02/2026 evaluated on 10/02/2026, six days ahead.
		d := certDossier(models.Certificate{
			Category: models.CertFederalTax,
			Result:   "NADA CONSTA",
			Validity: models.NewDate(2026, time.February, 16),
		})
		_, caveat, block := bySeverity(certificateValidity(baseContext(d)), "certificate_validity")
		assert.Equal(t, 1, caveat)
		assert.Zero(t, block)
	})

	t.Run("Expect: validity more than 15 days ahead is conformant", func(t *testing.T) {
		ctx := baseContext(certDossier(models.Certificate{
			Category: models.CertFederalTax,
			Result:   "NADA CONSTA",
			Validity: models.NewDate(2026, time.February, 16),
		}))
		ctx.Today = time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC)
		_, caveat, block := bySeverity(certificateValidity(ctx), "certificate_validity")
		assert.Zero(t, caveat)
		assert.Zero(t, block)
	})

	t.Run("Expect: expired validity blocks", func(t *testing.T) {
		d := certDossier(models.Certificate{
			Category: models.CertFGTS,
			Validity: models.NewDate(2026, time.January, 31),
		})
		_, _, block := bySeverity(certificateValidity(baseContext(d)), "certificate_validity")
		assert.Equal(t, 1, block)
	})

	t.Run("Expect: disqualifying sanctions result blocks", func(t *testing.T) {
		d := certDossier(models.Certificate{
			Category: models.CertCEIS,
			Result:   "CONSTA REGISTRO",
		})
		_, _, block := bySeverity(certificateValidity(baseContext(d)), "certificate_validity")
		assert.Equal(t, 1, block)
	})

	t.Run("Expect: indirect impediment occurrences cap at caveat", func(t *testing.T) {
		d := certDossier(models.Certificate{
			Category: models.CertIndirectImpediment,
			Result:   "CONSTAM OCORRÊNCIAS",
		})
		_, caveat, block := bySeverity(certificateValidity(baseContext(d)), "certificate_validity")
		assert.Equal(t, 1, caveat)
		assert.Zero(t, block)
	})
}

func TestIdentityConsistency(t *testing.T) {
	t.Run("Expect: tax identifier mismatch blocks", func(t *testing.T) {
		d := &models.Dossier{
			Identification: models.IdentificationRecord{SupplierTaxID: "12.345.678/0001-90"},
			Parties: []models.PartyRef{
				{Source: models.KindCertificates, TaxID: "99.999.999/0001-00"},
			},
		}
		_, _, block := bySeverity(identityConsistency(baseContext(d)), "identity_consistency")
		assert.Equal(t, 1, block)
	})

	t.Run("Expect: name mismatch under matching identifier is exactly one caveat", func(t *testing.T) {
		d := &models.Dossier{
			Identification: models.IdentificationRecord{
				SupplierTaxID: "12.345.678/0001-90",
				SupplierName:  "A LTDA",
			},
			Parties: []models.PartyRef{
				{Source: models.KindCertificates, TaxID: "12.345.678/0001-90", Name: "B LTDA"},
			},
		}
		findings := identityConsistency(baseContext(d))
		_, caveat, block := bySeverity(findings, "identity_consistency")
		assert.Equal(t, 1, caveat)
		assert.Zero(t, block)
	})

	t.Run("Expect: fully consistent identity is conformant", func(t *testing.T) {
		d := &models.Dossier{
			Identification: models.IdentificationRecord{
				SupplierTaxID: "12.345.678/0001-90",
				SupplierName:  "A LTDA",
			},
			Parties: []models.PartyRef{
				{Source: models.KindCertificates, TaxID: "12.345.678/0001-90", Name: "A LTDA"},
			},
		}
		conformant, caveat, block := bySeverity(identityConsistency(baseContext(d)), "identity_consistency")
		assert.Equal(t, 1, conformant)
		assert.Zero(t, caveat)
		assert.Zero(t, block)
	})
}

func TestExpenseNature(t *testing.T) {
	t.Run("Expect: service description under material code is a caveat", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{Items: []models.Item{{
			Number:      1,
			ExpenseCode: "339030",
			Description: "CONTRATAÇÃO DE SERVIÇO DE MANUTENÇÃO PREVENTIVA",
		}}})
		ctx.Catalog = testCatalog(t)
		_, caveat, _ := bySeverity(expenseNature(ctx), "expense_nature")
		assert.Equal(t, 1, caveat)
	})

	t.Run("Expect: matching nature produces no finding", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{Items: []models.Item{{
			Number:      1,
			ExpenseCode: "339030",
			Description: "AQUISIÇÃO DE CIMENTO",
		}}})
		ctx.Catalog = testCatalog(t)
		assert.Empty(t, expenseNature(ctx))
	})

	t.Run("Expect: unresolved catalog code is flagged", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{Items: []models.Item{{
			Number:      1,
			ExpenseCode: "339047",
			Description: "OBRIGAÇÕES TRIBUTÁRIAS",
		}}})
		ctx.Catalog = testCatalog(t)
		_, caveat, _ := bySeverity(expenseNature(ctx), "expense_nature")
		assert.Equal(t, 1, caveat)
	})
}

func TestProceduralCompleteness(t *testing.T) {
	allSections := func() []models.Section {
		var secs []models.Section
		for _, k := range mandatoryKinds {
			secs = append(secs, models.Section{Kind: k, Active: true})
		}
		return secs
	}

	t.Run("Expect: complete dossier produces no findings", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{Sections: allSections()})
		assert.Empty(t, proceduralCompleteness(ctx))
	})

	t.Run("Expect: each missing mandatory piece is one caveat", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{Sections: []models.Section{
			{Kind: models.KindRequisition, Active: true},
		}})
		_, caveat, block := bySeverity(proceduralCompleteness(ctx), "procedural_completeness")
		assert.Equal(t, len(mandatoryKinds)-1, caveat)
		assert.Zero(t, block)
	})

	t.Run("Expect: pending mode does not flag the missing credit note", func(t *testing.T) {
		secs := []models.Section{}
		for _, k := range mandatoryKinds {
			if k != models.KindCreditNote {
				secs = append(secs, models.Section{Kind: k, Active: true})
			}
		}
		ctx := baseContext(&models.Dossier{Sections: secs})
		ctx.Mode = models.ModeCreditNotePending
		assert.Empty(t, proceduralCompleteness(ctx))
	})

	t.Run("Expect: unclassified pages are reported once", func(t *testing.T) {
		secs := allSections()
		secs = append(secs, models.Section{Kind: models.KindUnclassified, FirstPage: 9, LastPage: 11})
		ctx := baseContext(&models.Dossier{Sections: secs})
		findings := proceduralCompleteness(ctx)
		require.Len(t, findings, 1)
		assert.Equal(t, models.SeverityCaveat, findings[0].Severity)
		assert.Contains(t, findings[0].Message, "3 página(s)")
	})
}

func TestDispatchChain(t *testing.T) {
	t.Run("Expect: dispatch referencing another process is a caveat", func(t *testing.T) {
		d := &models.Dossier{
			NUP: "64322.001234/2025-11",
			Dispatches: []models.Dispatch{
				{Sequence: 1, NUP: "64322.001234/2025-11"},
				{Sequence: 2, NUP: "64322.009999/2025-99"},
			},
		}
		conformant, caveat, _ := bySeverity(dispatchChain(baseContext(d)), "dispatch_chain")
		assert.Equal(t, 1, conformant)
		assert.Equal(t, 1, caveat)
	})
}

func TestEvaluate(t *testing.T) {
	t.Run("Expect: pending mode skips credit-note dependent rules", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{
			CreditNotes: []models.CreditNote{{
				Number:             "2026NC000001",
				CommitmentDeadline: models.NewDate(2026, time.January, 1),
				QuarantinedLines:   1,
			}},
		})
		ctx.Mode = models.ModeCreditNotePending
		for _, f := range Evaluate(ctx) {
			assert.NotEqual(t, "commitment_deadline", f.Rule)
			assert.NotEqual(t, "balance_sufficiency", f.Rule)
			assert.NotEqual(t, "expense_code_agreement", f.Rule)
			assert.NotEqual(t, "ledger_integrity", f.Rule)
		}
	})

	t.Run("Expect: two runs over the same input are identical", func(t *testing.T) {
		ctx := baseContext(&models.Dossier{
			NUP: "64322.001234/2025-11",
			Identification: models.IdentificationRecord{
				SupplierTaxID: "12.345.678/0001-90",
				ExpenseCode:   "339030",
			},
			Items: []models.Item{{Number: 1, Quantity: dec("2"), UnitPrice: dec("10.00"), TotalPrice: dec("20.00")}},
		})
		assert.Equal(t, Evaluate(ctx), Evaluate(ctx))
	})
}
