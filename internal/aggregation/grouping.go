package aggregation

import (
	"sort"

	"github.com/shopspring/decimal"

	"expense-analyzer/internal/models"
)

var hundred = decimal.NewFromInt(100)

// DefaultExcludedSuppliers lists the placeholder suppliers left out of the
// supplier ranking and the anomaly detectors.
var DefaultExcludedSuppliers = []string{models.NotInformed, models.SupplierNotFound}

// SupplierTotal is one row of the supplier ranking
type SupplierTotal struct {
	Supplier string
	Total    decimal.Decimal
}

// ProjectTotal is one row of the per-project table
type ProjectTotal struct {
	Project string
	Total   decimal.Decimal
	// Participation is the unit share of the project's global spend, in percent.
	// Only meaningful when HasParticipation is set.
	Participation    float64
	HasParticipation bool
}

// MonthTotal is one row of the per-month table
type MonthTotal struct {
	Month int
	Label string
	Total decimal.Decimal
}

// ProjectTotals maps a project to its spend across every business unit
type ProjectTotals map[string]decimal.Decimal

// groupSum sums values by key preserving first-seen key order
type groupSum struct {
	order  []string
	totals map[string]decimal.Decimal
}

func newGroupSum() *groupSum {
	return &groupSum{totals: make(map[string]decimal.Decimal)}
}

func (g *groupSum) add(key string, v decimal.Decimal) {
	current, ok := g.totals[key]
	if !ok {
		g.order = append(g.order, key)
	}
	g.totals[key] = current.Add(v)
}

// BySupplier ranks suppliers by summed expense, largest first, and keeps the
// top n. Equal sums keep first-seen order. Suppliers in excluded are dropped.
func BySupplier(txs []models.Transaction, topN int, excluded []string) []SupplierTotal {
	skip := make(map[string]struct{}, len(excluded))
	for _, s := range excluded {
		skip[s] = struct{}{}
	}

	sums := newGroupSum()
	for _, tx := range Expenses(txs) {
		if _, ok := skip[tx.Supplier]; ok {
			continue
		}
		sums.add(tx.Supplier, tx.Value)
	}

	out := make([]SupplierTotal, 0, len(sums.order))
	for _, supplier := range sums.order {
		out = append(out, SupplierTotal{Supplier: supplier, Total: sums.totals[supplier]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})

	if topN >= 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// GlobalProjectTotals sums expenses per project over the whole dataset. It is
// computed once and shared by every unit as the participation denominator.
func GlobalProjectTotals(all []models.Transaction) ProjectTotals {
	totals := make(ProjectTotals)
	for _, tx := range Expenses(all) {
		totals[tx.Project] = totals[tx.Project].Add(tx.Value)
	}
	return totals
}

// ByProject sums expenses per project, largest first. When global is not nil
// each row also carries its participation in the project's global spend.
func ByProject(txs []models.Transaction, global ProjectTotals) []ProjectTotal {
	sums := newGroupSum()
	for _, tx := range Expenses(txs) {
		sums.add(tx.Project, tx.Value)
	}

	out := make([]ProjectTotal, 0, len(sums.order))
	for _, project := range sums.order {
		row := ProjectTotal{Project: project, Total: sums.totals[project]}
		if global != nil {
			row.HasParticipation = true
			if denom, ok := global[project]; ok && !denom.IsZero() {
				row.Participation = row.Total.Div(denom).Mul(hundred).InexactFloat64()
			}
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out
}

// ByMonth sums expenses per calendar month in chronological order
func ByMonth(txs []models.Transaction) []MonthTotal {
	var totals [13]decimal.Decimal
	var present [13]bool
	for _, tx := range Expenses(txs) {
		m := tx.Month()
		totals[m] = totals[m].Add(tx.Value)
		present[m] = true
	}

	var out []MonthTotal
	for m := 1; m <= 12; m++ {
		if present[m] {
			out = append(out, MonthTotal{Month: m, Label: models.MonthLabel(m), Total: totals[m]})
		}
	}
	return out
}

// SupplierTable renders the supplier ranking
func SupplierTable(rows []SupplierTotal) *models.Table {
	table := models.NewTable("fornecedores",
		models.Column{Name: models.ColSupplier, Kind: models.KindText},
		models.Column{Name: models.ColRealizedYear, Kind: models.KindMoney},
	)
	for _, r := range rows {
		table.AddRow(r.Supplier, r.Total)
	}
	return table
}

// ProjectTable renders the per-project table. The participation column is
// present only when the rows carry it.
func ProjectTable(rows []ProjectTotal) *models.Table {
	withParticipation := len(rows) > 0 && rows[0].HasParticipation
	columns := []models.Column{
		{Name: models.ColProject, Kind: models.KindText},
		{Name: models.ColRealizedYear, Kind: models.KindMoney},
	}
	if withParticipation {
		columns = append(columns, models.Column{Name: models.ColParticipation, Kind: models.KindPercent})
	}
	table := models.NewTable("projetos", columns...)
	for _, r := range rows {
		if withParticipation {
			table.AddRow(r.Project, r.Total, r.Participation)
		} else {
			table.AddRow(r.Project, r.Total)
		}
	}
	return table
}

// MonthTable renders the per-month table
func MonthTable(rows []MonthTotal) *models.Table {
	table := models.NewTable("meses",
		models.Column{Name: models.ColMonthNumber, Kind: models.KindInt},
		models.Column{Name: models.ColMonth, Kind: models.KindText},
		models.Column{Name: models.ColRealized, Kind: models.KindMoney},
	)
	for _, r := range rows {
		table.AddRow(r.Month, r.Label, r.Total)
	}
	return table
}
