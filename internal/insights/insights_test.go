package insights

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-analyzer/internal/models"
	"expense-analyzer/pkg/logger"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(month, dd int) time.Time {
	return time.Date(2024, time.Month(month), dd, 0, 0, 0, 0, time.UTC)
}

func tx(ref string, date time.Time, value, supplier, project string) models.Transaction {
	return models.Transaction{
		ReferenceID:   ref,
		Date:          date,
		Value:         d(value),
		Supplier:      supplier,
		Project:       project,
		CostCenter:    "1.01.02.003.0045",
		BusinessUnit:  "SP - Norte",
		AccountCode:   "3.1.01",
		AccountLevel4: "Serviços de Terceiros",
		SharingType:   models.SharingExclusive,
	}
}

func account(t models.Transaction, name string) models.Transaction {
	t.AccountLevel4 = name
	return t
}

func shared(t models.Transaction) models.Transaction {
	t.SharingType = models.SharingShared
	return t
}

func quietLogger() logger.Logger {
	return logger.NewWithWriter(&discard{}, logger.ErrorLevel)
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func refsOf(anomalies []models.Anomaly) []string {
	out := make([]string, len(anomalies))
	for i, a := range anomalies {
		out[i] = a.ReferenceID
	}
	return out
}

func TestRarityFlagsRarePairsAndSuppliers(t *testing.T) {
	txs := []models.Transaction{
		tx("a1", day(1, 5), "100", "SupplierA", "P1"),
		tx("a2", day(2, 5), "110", "SupplierA", "P1"),
		tx("a3", day(3, 5), "120", "SupplierA", "P1"),
		tx("a4", day(4, 5), "130", "SupplierA", "P1"),
		tx("a5", day(5, 5), "900", "SupplierA", "P2"),
		tx("b1", day(2, 9), "40", "SupplierB", "P1"),
		tx("b2", day(6, 9), "45", "SupplierB", "P1"),
		tx("b2", day(6, 9), "45", "SupplierB", "P1"),
		tx("c1", day(3, 1), "10", "SupplierC", "P3"),
		tx("n1", day(1, 2), "70", models.NotInformed, "P1"),
		tx("r1", day(1, 3), "-80", "SupplierD", "P1"),
	}

	detector := NewContextualDetector(DefaultContextualConfig(), quietLogger())
	result := detector.Detect(txs, nil)

	require.True(t, result.OK())
	assert.Equal(t, []string{"b1", "c1", "a5", "b2"}, refsOf(result.Anomalies))

	byRef := make(map[string]models.Anomaly)
	for _, a := range result.Anomalies {
		byRef[a.ReferenceID] = a
	}
	assert.Equal(t, JustificationRarePair, byRef["a5"].Justification)
	assert.Equal(t, fmt.Sprintf(JustificationRareSupplier, 2), byRef["b1"].Justification)
	assert.Equal(t, fmt.Sprintf(JustificationBoth, 1), byRef["c1"].Justification)

	assert.True(t, result.Projects()["P2"])
	assert.False(t, result.Projects()["P4"])
	assert.Equal(t, []string{"a5"}, refsOf(result.InMonth(5)))
}

func TestRarityIgnoresPlaceholderSuppliers(t *testing.T) {
	txs := []models.Transaction{
		tx("a1", day(1, 5), "100", "SupplierA", "P1"),
		tx("a2", day(2, 5), "100", "SupplierA", "P1"),
		tx("n1", day(3, 5), "5000", models.NotInformed, "P8"),
		tx("f1", day(3, 6), "7000", models.SupplierNotFound, "P9"),
	}

	result := NewContextualDetector(DefaultContextualConfig(), quietLogger()).Detect(txs, nil)

	require.True(t, result.OK())
	for _, a := range result.Anomalies {
		assert.NotEqual(t, models.NotInformed, a.Supplier)
		assert.NotEqual(t, models.SupplierNotFound, a.Supplier)
	}
	assert.False(t, result.Projects()["P8"])
	assert.False(t, result.Projects()["P9"])
}

func TestRarityExcludesAccounts(t *testing.T) {
	txs := []models.Transaction{
		account(tx("x1", day(1, 1), "10", "SupplierX", "P1"), "Folha de Pagamento"),
		tx("y1", day(1, 2), "20", "SupplierY", "P1"),
	}

	detector := NewContextualDetector(DefaultContextualConfig(), quietLogger())
	result := detector.Detect(txs, []string{" folha de pagamento "})

	require.True(t, result.OK())
	assert.Equal(t, []string{"y1"}, refsOf(result.Anomalies))
}

func TestDetectDeduplicatesByNaturalKey(t *testing.T) {
	txs := []models.Transaction{
		tx("k1", day(3, 3), "500", "SupplierK", "P1"),
		tx("k2", day(3, 3), "500", "SupplierK", "P1"),
	}

	result := NewContextualDetector(DefaultContextualConfig(), quietLogger()).Detect(txs, nil)

	require.True(t, result.OK())
	assert.Equal(t, []string{"k1"}, refsOf(result.Anomalies))
}

func TestDetectWithoutEligibleRows(t *testing.T) {
	txs := []models.Transaction{
		tx("n1", day(1, 2), "70", models.SupplierNotFound, "P1"),
	}

	result := NewContextualDetector(DefaultContextualConfig(), quietLogger()).Detect(txs, nil)

	assert.False(t, result.OK())
	assert.Equal(t, StatusInsufficientData, result.Status)
	assert.Empty(t, result.Anomalies)
}

func TestIsolationStrategyNeedsMinSamples(t *testing.T) {
	config := DefaultContextualConfig()
	config.Strategy = StrategyIsolation

	txs := []models.Transaction{
		tx("1", day(1, 1), "100", "S", "P"),
		tx("2", day(1, 2), "110", "S", "P"),
		tx("3", day(1, 3), "9000", "S", "P"),
	}
	result := NewContextualDetector(config, quietLogger()).Detect(txs, nil)

	assert.Equal(t, StatusInsufficientData, result.Status)
	assert.Contains(t, result.Reason, "need 10")
}

func TestIsolationStrategyFlagsOutlier(t *testing.T) {
	config := DefaultContextualConfig()
	config.Strategy = StrategyIsolation

	var txs []models.Transaction
	for i := 0; i < 40; i++ {
		value := fmt.Sprintf("%d", 100+i%7)
		txs = append(txs, tx(fmt.Sprintf("n%02d", i), day(1+i%12, 1+i%28), value, "S", "P"))
	}
	txs = append(txs, tx("outlier", day(6, 15), "50000", "S", "P"))

	result := NewContextualDetector(config, quietLogger()).Detect(txs, nil)

	require.True(t, result.OK())
	assert.Contains(t, refsOf(result.Anomalies), "outlier")
	assert.LessOrEqual(t, len(result.Anomalies), 2)
	for _, a := range result.Anomalies {
		assert.Empty(t, a.Justification, "isolation rows are justified by root-cause enrichment")
	}
}

func TestContextualConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultContextualConfig().Validate())

	bad := DefaultContextualConfig()
	bad.Strategy = "neural"
	assert.Error(t, bad.Validate())

	bad = DefaultContextualConfig()
	bad.Contamination = 0
	assert.Error(t, bad.Validate())

	bad = DefaultContextualConfig()
	bad.PairMaxOccurrences = 0
	assert.Error(t, bad.Validate())
}

func TestInvestigateRootCause(t *testing.T) {
	history := []models.Transaction{
		tx("x1", day(1, 10), "100", "SupplierX", "P1"),
		tx("x2", day(2, 10), "100", "SupplierX", "P1"),
		tx("x3", day(3, 10), "100", "SupplierX", "P1"),
		tx("x4", day(4, 10), "1000", "SupplierX", "P1"),
		tx("y1", day(4, 12), "300", "SupplierY", "P2"),
		tx("z1", day(1, 1), "100", "SupplierZ", "P1"),
		tx("z2", day(2, 1), "100", "SupplierZ", "P1"),
		tx("z3", day(3, 1), "100", "SupplierZ", "P1"),
		tx("z4", day(4, 1), "100", "SupplierZ", "P1"),
		tx("z5", day(4, 20), "120", "SupplierZ", "P1"),
	}
	flagged := []models.Anomaly{
		anomalyOf(history[3], ""),
		anomalyOf(history[4], ""),
		anomalyOf(history[9], ""),
		anomalyOf(tx("w1", day(4, 2), "10", "SupplierW", "P9"), "Já justificada."),
	}

	out := InvestigateRootCause(flagged, history)
	require.Len(t, out, 4)

	assert.Equal(t, fmt.Sprintf(CauseValueAboveMean, "R$ 1.000,00", 5, "R$ 100,00"), out[0].Justification)
	assert.Equal(t, CauseFirstOccurrence+"; "+fmt.Sprintf(CauseLowActivity, 1), out[1].Justification)
	assert.Equal(t, CauseModelFallback, out[2].Justification)
	assert.Equal(t, "Já justificada.", out[3].Justification)

	assert.Empty(t, flagged[0].Justification, "input must not be modified")
	assert.Nil(t, InvestigateRootCause(nil, history))
}

func monthSeries(values ...string) []models.Transaction {
	var txs []models.Transaction
	for i, v := range values {
		txs = append(txs, tx(fmt.Sprintf("m%d", i+1), day(i+1, 15), v, "S", "P"))
	}
	return txs
}

func TestMonthlyTrendFlagsPeak(t *testing.T) {
	txs := monthSeries("100", "110", "105", "200", "115", "120")
	txs = append(txs, shared(tx("m4s", day(4, 20), "50", "S", "P")))

	result := MonthlyTrend(txs, DefaultTrendConfig())

	require.True(t, result.OK())
	require.Len(t, result.Rows, 6)
	for i, row := range result.Rows {
		assert.Equal(t, i+1, row.Month)
		if row.Month == 4 {
			assert.Equal(t, FlagPeak, row.Flag)
			assert.True(t, row.Total.Equal(d("250")))
			assert.True(t, row.Exclusive.Equal(d("200")))
			assert.True(t, row.Shared.Equal(d("50")))
		} else {
			assert.Empty(t, row.Flag, "month %d", row.Month)
		}
	}
	assert.Len(t, result.Flagged(), 1)

	table := TrendTable(result)
	assert.Equal(t, 6, table.Len())
	assert.Equal(t, FlagPeak, table.StringCell(3, models.ColTrendFlag))
	assert.Equal(t, "Abr", table.StringCell(3, models.ColMonth))
}

func TestMonthlyTrendShortSeries(t *testing.T) {
	result := MonthlyTrend(monthSeries("100", "900", "105"), DefaultTrendConfig())

	assert.Equal(t, StatusInsufficientData, result.Status)
	require.Len(t, result.Rows, 3)
	assert.Empty(t, result.Flagged())
	assert.True(t, result.Rows[1].Total.Equal(d("900")))
}

func TestVariation(t *testing.T) {
	assert.Equal(t, 0.0, variation([]float64{0, 100, 0}))
	assert.InDelta(t, 0.7071, variation([]float64{100, 0, 300}), 1e-4)
	assert.Equal(t, 0.0, variation(nil))
}

func TestProfiles(t *testing.T) {
	txs := []models.Transaction{
		account(tx("1", day(1, 1), "100", "S", "P"), "Energia"),
		account(tx("2", day(2, 1), "300", "S", "P"), "Energia"),
		account(tx("3", day(1, 1), "1000", "S", "P"), "Aluguel"),
		account(tx("4", day(1, 2), "-50", "S", "P"), "Multas"),
		account(tx("5", day(1, 3), "20", "S", "P"), "  "),
	}

	profiles := Profiles(txs)

	require.Len(t, profiles, 2)
	assert.Equal(t, "Aluguel", profiles[0].Account)
	assert.Equal(t, 1, profiles[0].Frequency)
	assert.Equal(t, 0.0, profiles[0].Variation)
	assert.Equal(t, "Energia", profiles[1].Account)
	assert.True(t, profiles[1].Total.Equal(d("400")))
	assert.InDelta(t, 0.7071, profiles[1].Variation, 1e-4)
}

func TestClusterReducesK(t *testing.T) {
	txs := []models.Transaction{
		account(tx("1", day(1, 1), "100", "S", "P"), "Energia"),
		account(tx("2", day(2, 1), "300", "S", "P"), "Energia"),
		account(tx("3", day(1, 1), "5000", "S", "P"), "Aluguel"),
	}
	config := DefaultClusterConfig()
	config.K = 3

	result := NewAccountClusterer(config, quietLogger()).Cluster(txs)

	require.True(t, result.OK())
	assert.Equal(t, 2, result.K)
	assert.Len(t, result.Summaries, 2)
	assert.Len(t, result.Order, 2)
	assert.NotEqual(t, result.Order[0], result.Order[1])

	first := result.Members[result.Order[0]]
	require.Len(t, first, 1)
	assert.Equal(t, "Aluguel", first[0].Account)
	assert.Equal(t, result.Order[0], first[0].Cluster)
}

func TestClusterInsufficientAccounts(t *testing.T) {
	clusterer := NewAccountClusterer(DefaultClusterConfig(), quietLogger())

	single := clusterer.Cluster([]models.Transaction{
		account(tx("1", day(1, 1), "100", "S", "P"), "Energia"),
		account(tx("2", day(2, 1), "300", "S", "P"), "Energia"),
	})
	assert.Equal(t, StatusInsufficientData, single.Status)
	assert.Empty(t, single.Members)

	blank := clusterer.Cluster([]models.Transaction{
		account(tx("1", day(1, 1), "100", "S", "P"), ""),
		account(tx("2", day(2, 1), "300", "S", "P"), ""),
	})
	assert.Equal(t, StatusInsufficientData, blank.Status)
}

func TestClusterNamesAreUnique(t *testing.T) {
	var txs []models.Transaction
	add := func(name string, months []int, value string) {
		for _, m := range months {
			txs = append(txs, account(tx(fmt.Sprintf("%s-%d-%d", name, m, len(txs)), day(m, 10), value, "S", "P"), name))
		}
	}
	every := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	add("Aluguel", []int{1, 4, 7, 10}, "20000")
	add("Limpeza", every, "300")
	add("Energia", every, "350")
	add("Eventos", []int{3}, "100")
	add("Eventos", []int{9}, "2500")
	add("Viagens", []int{2}, "80")
	add("Viagens", []int{11}, "1900")
	add("Correios", []int{5}, "15")

	result := NewAccountClusterer(DefaultClusterConfig(), quietLogger()).Cluster(txs)

	require.True(t, result.OK())
	assert.Equal(t, 4, result.K)

	seen := make(map[string]bool)
	members := 0
	for _, name := range result.Order {
		assert.False(t, seen[name], "duplicate cluster name %q", name)
		seen[name] = true
		summary := result.Summaries[name]
		assert.Equal(t, name, summary.Name)
		assert.NotEmpty(t, summary.Description)
		assert.Equal(t, len(result.Members[name]), summary.Members)
		members += summary.Members
	}
	assert.Equal(t, 6, members)

	for i := 1; i < len(result.Order); i++ {
		assert.GreaterOrEqual(t,
			result.Summaries[result.Order[i-1]].MeanTotal,
			result.Summaries[result.Order[i]].MeanTotal)
	}

	table := AssignmentTable(result)
	assert.Equal(t, 6, table.Len())
	assert.Equal(t, "Aluguel", table.StringCell(0, models.ColAccount))
}

func TestAnomalyTable(t *testing.T) {
	anomalies := []models.Anomaly{anomalyOf(tx("1", day(1, 1), "10", "S", "P"), "motivo")}

	table := AnomalyTable(anomalies)

	assert.Equal(t, []string{models.ColDate, models.ColSupplier, models.ColProject, models.ColRealized, models.ColJustification}, table.ColumnNames())
	assert.Equal(t, "motivo", table.StringCell(0, models.ColJustification))
	assert.True(t, table.DecimalCell(0, models.ColRealized).Equal(d("10")))
}
