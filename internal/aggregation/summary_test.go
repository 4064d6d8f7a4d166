package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-analyzer/internal/ml"
	"expense-analyzer/internal/models"
)

func summaryFixture() SummaryInput {
	shared := func(t models.Transaction) models.Transaction {
		t.SharingType = models.SharingShared
		return t
	}
	txs := []models.Transaction{
		tx("1", 1, "100", "S", "P1"),
		tx("2", 1, "300", "S", "P1"),
		shared(tx("3", 1, "50", "S", "P2")),
		tx("4", 2, "100", "S", "P1"),
		tx("5", 2, "110", "S", "P1"),
		tx("6", 2, "105", "S", "P1"),
		tx("7", 2, "5000", "S", "P1"),
		tx("8", 2, "95", "S", "P1"),
		tx("9", 2, "102", "S", "P1"),
		tx("10", 2, "98", "S", "P1"),
		tx("10", 2, "98", "S", "P1"),
		tx("11", 2, "-40", "S", "P1"),
		shared(tx("12", 2, "70", "S", "P2")),
	}
	integratedRows := []models.IntegratedRow{
		{Project: "P1", SharingType: models.SharingExclusive, JoinKey: "K1", Budgeted: d("1200")},
		{Project: "P3", SharingType: models.SharingExclusive, JoinKey: "K1", Budgeted: d("1200")},
		{Project: "P2", SharingType: models.SharingShared, JoinKey: "K2", Budgeted: d("2400")},
	}
	return SummaryInput{
		Transactions:   txs,
		Integrated:     integratedRows,
		ReferenceMonth: 2,
		UnitCode:       "045",
		Forest:         ml.DefaultForestConfig(),
	}
}

func TestBuildExecutiveSummaryTotals(t *testing.T) {
	s := BuildExecutiveSummary(summaryFixture())

	assert.True(t, s.Decimal("valor_total_ano").Equal(d("6130")))
	assert.True(t, s.Decimal("valor_total_mes").Equal(d("5680")))
	assert.Equal(t, 11, s.Int("qtd_lancamentos_ano"))
	assert.Equal(t, 8, s.Int("qtd_lancamentos_mes"))

	assert.True(t, s.Decimal("gastos_mes_exclusivo").Equal(d("5610")))
	assert.True(t, s.Decimal("gastos_mes_compartilhado").Equal(d("70")))
	assert.True(t, s.Decimal("gastos_ano_compartilhado").Equal(d("120")))
	assert.Equal(t, 9, s.Int("qtd_lancamentos_ano_exclusivo"))

	assert.True(t, s.Decimal("orcamento_planejado_ano").Equal(d("3600")))
	assert.True(t, s.Decimal("orcamento_mes_referencia").Equal(d("300")))
	assert.True(t, s.Decimal("orcamento_total_exclusivo").Equal(d("1200")))
	assert.True(t, s.Decimal("orcamento_mes_compartilhado").Equal(d("200")))

	assert.True(t, s.Decimal("maior_ano_exclusivo").Equal(d("5000")))
	assert.True(t, s.Decimal("menor_ano_exclusivo").Equal(d("95")))
	assert.True(t, s.Decimal("mediana_ano_exclusivo").Equal(d("102")))
	assert.True(t, s.Decimal("valor_mediano_mes_exclusivo").Equal(d("102")))

	assert.Equal(t, "Fev", s.Label("mes_referencia"))
	assert.Equal(t, "045", s.Label("numero_unidade"))
}

func TestBuildExecutiveSummaryNormalRange(t *testing.T) {
	s := BuildExecutiveSummary(summaryFixture())

	require.True(t, s.Has("max_normal_mes_exclusivo"))
	require.True(t, s.Has("min_normal_mes_exclusivo"))
	assert.True(t, s.Decimal("max_normal_mes_exclusivo").LessThan(d("5000")), "the 5000 outlier is excluded from the normal range")
	assert.True(t, s.Decimal("min_normal_mes_exclusivo").GreaterThanOrEqual(d("95")))

	// a single shared value in the month cannot produce a range
	assert.False(t, s.Has("min_normal_mes_compartilhado"))
	assert.False(t, s.Has("max_normal_mes_compartilhado"))
}

func TestBuildExecutiveSummaryEmpty(t *testing.T) {
	s := BuildExecutiveSummary(SummaryInput{ReferenceMonth: 5})

	assert.True(t, s.Decimal("valor_total_ano").IsZero())
	assert.True(t, s.Decimal("media_ano_exclusivo").IsZero())
	assert.True(t, s.Decimal("orcamento_mes_referencia").IsZero())
	assert.Equal(t, "Mai", s.Label("mes_referencia"))
	assert.False(t, s.Has("min_normal_mes_exclusivo"))
}
