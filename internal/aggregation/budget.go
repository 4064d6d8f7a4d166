package aggregation

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"expense-analyzer/internal/models"
)

// Thresholds holds the execution ratios that drive the criticality tag
type Thresholds struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
}

// DefaultThresholds returns the production thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.90, Medium: 0.75}
}

// Validate checks that the thresholds are ordered and positive
func (t Thresholds) Validate() error {
	if t.Medium <= 0 || t.High <= 0 {
		return fmt.Errorf("criticality thresholds must be positive")
	}
	if t.Medium >= t.High {
		return fmt.Errorf("medium threshold %.2f must be below high threshold %.2f", t.Medium, t.High)
	}
	return nil
}

// Classify returns the criticality tag for an execution ratio. The first
// matching rule wins:
//
//	ratio > High                  -> High
//	ratio > Medium with anomaly   -> High
//	ratio > Medium                -> Medium
//	any anomaly                   -> Medium
//	otherwise                     -> Low
func Classify(ratio float64, hasAnomaly bool, t Thresholds) models.Criticality {
	switch {
	case ratio > t.High:
		return models.CriticalityHigh
	case ratio > t.Medium && hasAnomaly:
		return models.CriticalityHigh
	case ratio > t.Medium:
		return models.CriticalityMedium
	case hasAnomaly:
		return models.CriticalityMedium
	default:
		return models.CriticalityLow
	}
}

// ExecutionRatio divides realized by budgeted, returning 0 instead of an
// undefined or infinite result.
func ExecutionRatio(realized, budgeted decimal.Decimal) float64 {
	if budgeted.IsZero() {
		return 0
	}
	ratio := realized.Div(budgeted).InexactFloat64()
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0
	}
	return ratio
}

// ExecutionRow is one project of the budget execution table
type ExecutionRow struct {
	Project     string
	Criticality models.Criticality
	Budgeted    decimal.Decimal
	Realized    decimal.Decimal
	Ratio       float64
	IsTotal     bool
}

// BudgetExecution groups integrated rows by project, computes the execution
// ratio and criticality tag, sorts by realized spend and appends a Grand
// Total row. anomalous holds the projects with at least one contextual
// anomaly. Empty input yields an empty result without the total row.
func BudgetExecution(rows []models.IntegratedRow, anomalous map[string]bool, t Thresholds) []ExecutionRow {
	if len(rows) == 0 {
		return nil
	}

	index := make(map[string]int)
	var out []ExecutionRow
	for _, r := range rows {
		i, ok := index[r.Project]
		if !ok {
			i = len(out)
			index[r.Project] = i
			out = append(out, ExecutionRow{Project: r.Project, Budgeted: decimal.Zero, Realized: decimal.Zero})
		}
		out[i].Budgeted = out[i].Budgeted.Add(r.Budgeted)
		out[i].Realized = out[i].Realized.Add(r.Realized)
	}

	totalBudget, totalRealized := decimal.Zero, decimal.Zero
	for i := range out {
		out[i].Ratio = ExecutionRatio(out[i].Realized, out[i].Budgeted)
		out[i].Criticality = Classify(out[i].Ratio, anomalous[out[i].Project], t)
		totalBudget = totalBudget.Add(out[i].Budgeted)
		totalRealized = totalRealized.Add(out[i].Realized)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Realized.GreaterThan(out[j].Realized)
	})

	return append(out, ExecutionRow{
		Project:     models.GrandTotalLabel,
		Criticality: models.CriticalityNone,
		Budgeted:    totalBudget,
		Realized:    totalRealized,
		Ratio:       ExecutionRatio(totalRealized, totalBudget),
		IsTotal:     true,
	})
}

// ExecutionTable renders the budget execution rows
func ExecutionTable(name string, rows []ExecutionRow) *models.Table {
	table := models.NewTable(name,
		models.Column{Name: models.ColProject, Kind: models.KindText},
		models.Column{Name: models.ColCriticality, Kind: models.KindText},
		models.Column{Name: models.ColBudgeted, Kind: models.KindMoney},
		models.Column{Name: models.ColRealized, Kind: models.KindMoney},
		models.Column{Name: models.ColExecution, Kind: models.KindRatio},
	)
	for _, r := range rows {
		table.AddRow(r.Project, r.Criticality.String(), r.Budgeted, r.Realized, r.Ratio)
	}
	return table
}
