package aggregation

import (
	"strings"

	"github.com/shopspring/decimal"

	"expense-analyzer/internal/models"
)

// ClassifySharing decides, across the whole dataset, whether each project is
// reported by exactly one business unit (Exclusive) or several (Shared).
func ClassifySharing(all []models.Transaction) map[string]models.SharingType {
	units := make(map[string]map[string]struct{})
	for _, tx := range all {
		set, ok := units[tx.Project]
		if !ok {
			set = make(map[string]struct{})
			units[tx.Project] = set
		}
		set[strings.TrimSpace(tx.BusinessUnit)] = struct{}{}
	}

	out := make(map[string]models.SharingType, len(units))
	for project, set := range units {
		if len(set) == 1 {
			out[project] = models.SharingExclusive
		} else {
			out[project] = models.SharingShared
		}
	}
	return out
}

// ApplySharing returns a copy of txs with SharingType set from the classification
func ApplySharing(txs []models.Transaction, sharing map[string]models.SharingType) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	for i, tx := range txs {
		if st, ok := sharing[tx.Project]; ok {
			tx.SharingType = st
		}
		out[i] = tx
	}
	return out
}

// AnnualBudget sums budget records per truncated cost-center key
func AnnualBudget(records []models.BudgetRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		key := r.JoinKey()
		out[key] = out[key].Add(r.BudgetedValue)
	}
	return out
}

type integrationKey struct {
	unit, project string
	sharing       models.SharingType
	joinKey       string
}

// Integrate groups realized expenses by (unit, project, sharing type, join
// key) and attaches the annual budget of the join key. Keys without a budget
// get zero. Rows come out in first-seen order.
func Integrate(txs []models.Transaction, annual map[string]decimal.Decimal) []models.IntegratedRow {
	index := make(map[integrationKey]int)
	var rows []models.IntegratedRow

	for _, tx := range Expenses(txs) {
		key := integrationKey{
			unit:    strings.TrimSpace(tx.BusinessUnit),
			project: tx.Project,
			sharing: tx.SharingType,
			joinKey: tx.JoinKey(),
		}
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, models.IntegratedRow{
				BusinessUnit: key.unit,
				Project:      key.project,
				SharingType:  key.sharing,
				JoinKey:      key.joinKey,
				Realized:     decimal.Zero,
				Budgeted:     annual[key.joinKey],
			})
		}
		rows[i].Realized = rows[i].Realized.Add(tx.Value)
	}
	return rows
}

// IntegratedForUnit filters integrated rows by business unit
func IntegratedForUnit(rows []models.IntegratedRow, unit string) []models.IntegratedRow {
	unit = strings.TrimSpace(unit)
	var out []models.IntegratedRow
	for _, r := range rows {
		if r.BusinessUnit == unit {
			out = append(out, r)
		}
	}
	return out
}

// IntegratedBySharing filters integrated rows by sharing type
func IntegratedBySharing(rows []models.IntegratedRow, sharing models.SharingType) []models.IntegratedRow {
	var out []models.IntegratedRow
	for _, r := range rows {
		if r.SharingType == sharing {
			out = append(out, r)
		}
	}
	return out
}

// BudgetOf sums the budget of the distinct join keys in rows. Several
// projects can hang off one cost center; counting its budget once per
// project would inflate the plan.
func BudgetOf(rows []models.IntegratedRow) decimal.Decimal {
	seen := make(map[string]struct{})
	total := decimal.Zero
	for _, r := range rows {
		if _, ok := seen[r.JoinKey]; ok {
			continue
		}
		seen[r.JoinKey] = struct{}{}
		total = total.Add(r.Budgeted)
	}
	return total
}
