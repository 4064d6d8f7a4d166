package aggregation

import (
	"github.com/shopspring/decimal"

	"expense-analyzer/internal/ml"
	"expense-analyzer/internal/models"
)

// Summary is the flat KPI dictionary consumed by the report templates.
// Money values are decimal.Decimal, counts are int and labels are string.
type Summary map[string]any

// Has reports whether key is present
func (s Summary) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Decimal returns a money value, or zero when absent
func (s Summary) Decimal(key string) decimal.Decimal {
	if v, ok := s[key].(decimal.Decimal); ok {
		return v
	}
	return decimal.Zero
}

// Int returns a count, or zero when absent
func (s Summary) Int(key string) int {
	if v, ok := s[key].(int); ok {
		return v
	}
	return 0
}

// Label returns a text value, or "" when absent
func (s Summary) Label(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

var twelve = decimal.NewFromInt(12)

// SummaryInput gathers what the executive summary folds together
type SummaryInput struct {
	// Transactions of the unit, already sharing-classified
	Transactions []models.Transaction
	// Integrated rows of the unit
	Integrated     []models.IntegratedRow
	ReferenceMonth int
	UnitCode       string
	// Forest configures the outlier step of the normal range
	Forest ml.ForestConfig
}

// BuildExecutiveSummary computes month and year totals, counts and descriptive
// statistics split by sharing type, the annual budget with its 1/12 monthly
// share, and the "normal" value range of the reference month. The normal
// range keys are omitted when the month has fewer than two distinct values.
func BuildExecutiveSummary(in SummaryInput) Summary {
	s := make(Summary)
	year := Expenses(in.Transactions)
	month := InMonth(year, in.ReferenceMonth)

	s["valor_total_ano"] = sumValues(year)
	s["valor_total_mes"] = sumValues(month)
	s["qtd_lancamentos_ano"] = len(year)
	s["qtd_lancamentos_mes"] = len(month)

	planned := BudgetOf(in.Integrated)
	s["orcamento_planejado_ano"] = planned
	s["orcamento_mes_referencia"] = planned.Div(twelve).Round(2)

	for _, sharing := range []models.SharingType{models.SharingExclusive, models.SharingShared} {
		suffix := sharing.SummaryKey()
		yearSlice := BySharing(year, sharing)
		monthSlice := BySharing(month, sharing)

		s["gastos_ano_"+suffix] = sumValues(yearSlice)
		s["gastos_mes_"+suffix] = sumValues(monthSlice)
		s["qtd_lancamentos_ano_"+suffix] = len(yearSlice)
		s["qtd_lancamentos_mes_"+suffix] = len(monthSlice)

		budget := BudgetOf(IntegratedBySharing(in.Integrated, sharing))
		s["orcamento_total_"+suffix] = budget
		s["orcamento_mes_"+suffix] = budget.Div(twelve).Round(2)

		yearValues := floatValues(yearSlice)
		s["media_ano_"+suffix] = toDecimal(ml.Mean(yearValues))
		s["mediana_ano_"+suffix] = medianOrZero(yearValues)
		s["maior_ano_"+suffix] = maxValue(yearSlice)
		s["menor_ano_"+suffix] = minValue(yearSlice)

		monthValues := floatValues(monthSlice)
		s["valor_mediano_mes_"+suffix] = medianOrZero(monthValues)
		if lo, hi, ok := normalRange(monthSlice, in.Forest); ok {
			s["min_normal_mes_"+suffix] = lo
			s["max_normal_mes_"+suffix] = hi
		}
	}

	s["numero_unidade"] = in.UnitCode
	s["mes_referencia"] = models.MonthLabel(in.ReferenceMonth)
	return s
}

// normalRange drops isolation-forest outliers and returns the min and max of
// the remaining values
func normalRange(txs []models.Transaction, config ml.ForestConfig) (decimal.Decimal, decimal.Decimal, bool) {
	values := floatValues(txs)
	if ml.DistinctCount(values) < 2 {
		return decimal.Zero, decimal.Zero, false
	}
	if config.NumTrees == 0 {
		config = ml.DefaultForestConfig()
	}
	config.Contamination = 0
	outliers, err := ml.NewIsolationForest(config).FitPredict(ml.Column(values))
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}

	var inliers []models.Transaction
	for i, tx := range txs {
		if !outliers[i] {
			inliers = append(inliers, tx)
		}
	}
	if len(inliers) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	return minValue(inliers), maxValue(inliers), true
}

func sumValues(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Value)
	}
	return total
}

func floatValues(txs []models.Transaction) []float64 {
	out := make([]float64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Value.InexactFloat64()
	}
	return out
}

func maxValue(txs []models.Transaction) decimal.Decimal {
	if len(txs) == 0 {
		return decimal.Zero
	}
	best := txs[0].Value
	for _, tx := range txs[1:] {
		best = decimal.Max(best, tx.Value)
	}
	return best
}

func minValue(txs []models.Transaction) decimal.Decimal {
	if len(txs) == 0 {
		return decimal.Zero
	}
	best := txs[0].Value
	for _, tx := range txs[1:] {
		best = decimal.Min(best, tx.Value)
	}
	return best
}

func medianOrZero(values []float64) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return toDecimal(ml.Median(values))
}

func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
