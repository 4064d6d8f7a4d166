package insights

import (
	"github.com/shopspring/decimal"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/ml"
	"expense-analyzer/internal/models"
)

// Trend flags
const (
	FlagPeak = "Atypical Peak"
	FlagDrop = "Atypical Drop"
)

// TrendConfig configures the monthly-trend detector
type TrendConfig struct {
	// MinMonths is the shortest series that gets flagged
	MinMonths int `mapstructure:"min_months"`
	Forest    ml.ForestConfig
}

// DefaultTrendConfig returns the production configuration
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{MinMonths: 4, Forest: ml.DefaultForestConfig()}
}

// TrendRow is one month of the trend table
type TrendRow struct {
	Month     int             `json:"month"`
	Label     string          `json:"label"`
	Exclusive decimal.Decimal `json:"exclusive"`
	Shared    decimal.Decimal `json:"shared"`
	Total     decimal.Decimal `json:"total"`
	Flag      string          `json:"flag"`
}

// TrendResult holds the chronological month rows. Status is insufficient_data
// when the series was too short to flag, in which case Rows still carries the
// plain monthly totals.
type TrendResult struct {
	Outcome
	Rows []TrendRow `json:"rows"`
}

// Flagged returns the rows with a non-empty flag
func (r TrendResult) Flagged() []TrendRow {
	var out []TrendRow
	for _, row := range r.Rows {
		if row.Flag != "" {
			out = append(out, row)
		}
	}
	return out
}

// MonthlyTrend sums expenses per month split by sharing type and flags the
// months whose total the isolation forest isolates. A flagged month above the
// median of the unflagged months is a peak, otherwise a drop.
func MonthlyTrend(txs []models.Transaction, config TrendConfig) TrendResult {
	expenses := aggregation.Expenses(txs)
	exclusive := monthIndex(aggregation.ByMonth(aggregation.BySharing(expenses, models.SharingExclusive)))
	shared := monthIndex(aggregation.ByMonth(aggregation.BySharing(expenses, models.SharingShared)))

	var rows []TrendRow
	for _, m := range aggregation.ByMonth(expenses) {
		rows = append(rows, TrendRow{
			Month:     m.Month,
			Label:     m.Label,
			Exclusive: exclusive[m.Month],
			Shared:    shared[m.Month],
			Total:     m.Total,
		})
	}

	minMonths := config.MinMonths
	if minMonths < 2 {
		minMonths = 2
	}
	if len(rows) < minMonths {
		return TrendResult{Outcome: insufficient("%d months, need %d", len(rows), minMonths), Rows: rows}
	}

	totals := make([]float64, len(rows))
	for i, row := range rows {
		totals[i] = row.Total.InexactFloat64()
	}

	forest := config.Forest
	if forest.NumTrees == 0 {
		forest = ml.DefaultForestConfig()
	}
	forest.Contamination = 0
	outliers, err := ml.NewIsolationForest(forest).FitPredict(ml.Column(totals))
	if err != nil {
		return TrendResult{Outcome: insufficient("isolation forest: %v", err), Rows: rows}
	}

	var normal []float64
	for i, flagged := range outliers {
		if !flagged {
			normal = append(normal, totals[i])
		}
	}
	if len(normal) == 0 {
		return TrendResult{Outcome: ok(), Rows: rows}
	}

	median := ml.Median(normal)
	for i, flagged := range outliers {
		if !flagged {
			continue
		}
		if totals[i] > median {
			rows[i].Flag = FlagPeak
		} else {
			rows[i].Flag = FlagDrop
		}
	}
	return TrendResult{Outcome: ok(), Rows: rows}
}

func monthIndex(rows []aggregation.MonthTotal) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.Month] = r.Total
	}
	return out
}

// TrendTable renders the monthly trend
func TrendTable(result TrendResult) *models.Table {
	table := models.NewTable("tendencia",
		models.Column{Name: models.ColMonth, Kind: models.KindText},
		models.Column{Name: models.ColRealizedExclusive, Kind: models.KindMoney},
		models.Column{Name: models.ColRealizedShared, Kind: models.KindMoney},
		models.Column{Name: models.ColRealized, Kind: models.KindMoney},
		models.Column{Name: models.ColTrendFlag, Kind: models.KindText},
	)
	for _, r := range result.Rows {
		table.AddRow(r.Label, r.Exclusive, r.Shared, r.Total, r.Flag)
	}
	return table
}
