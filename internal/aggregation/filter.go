// Package aggregation turns a transaction ledger into the grouped tables,
// budget execution view and executive summary rendered per business unit.
// Every function here is pure: inputs are never mutated and results are
// freshly allocated.
package aggregation

import (
	"strings"

	"expense-analyzer/internal/models"
)

// Deduplicate keeps the first occurrence of each reference id, in input
// order. The source join fans out rows, so this must run before any sum.
func Deduplicate(txs []models.Transaction) []models.Transaction {
	seen := make(map[string]struct{}, len(txs))
	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if _, dup := seen[tx.ReferenceID]; dup {
			continue
		}
		seen[tx.ReferenceID] = struct{}{}
		out = append(out, tx)
	}
	return out
}

// ExpensesOnly keeps rows with a strictly positive value. An empty result is
// a valid outcome, not an error.
func ExpensesOnly(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsExpense() {
			out = append(out, tx)
		}
	}
	return out
}

// Expenses applies Deduplicate then ExpensesOnly. This is the view every
// spend aggregate is computed on.
func Expenses(txs []models.Transaction) []models.Transaction {
	return ExpensesOnly(Deduplicate(txs))
}

// FillMissing replaces blank supplier and project values with the "Não
// Informado" placeholder so grouping never produces an empty key. The
// accounting category stays blank: clustering skips rows without one.
func FillMissing(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	for i, tx := range txs {
		tx.Supplier = models.OrPlaceholder(tx.Supplier)
		tx.Project = models.OrPlaceholder(tx.Project)
		tx.AccountLevel4 = strings.TrimSpace(tx.AccountLevel4)
		tx.BusinessUnit = strings.TrimSpace(tx.BusinessUnit)
		out[i] = tx
	}
	return out
}

// ForUnit returns the rows reported by the named business unit
func ForUnit(txs []models.Transaction, unit string) []models.Transaction {
	unit = strings.TrimSpace(unit)
	var out []models.Transaction
	for _, tx := range txs {
		if strings.TrimSpace(tx.BusinessUnit) == unit {
			out = append(out, tx)
		}
	}
	return out
}

// BySharing returns the rows whose project has the given sharing type
func BySharing(txs []models.Transaction, sharing models.SharingType) []models.Transaction {
	var out []models.Transaction
	for _, tx := range txs {
		if tx.SharingType == sharing {
			out = append(out, tx)
		}
	}
	return out
}

// InMonth returns the rows dated in month m
func InMonth(txs []models.Transaction, m int) []models.Transaction {
	var out []models.Transaction
	for _, tx := range txs {
		if tx.Month() == m {
			out = append(out, tx)
		}
	}
	return out
}

// UpToMonth drops rows dated after month m. Used by the month override.
func UpToMonth(txs []models.Transaction, m int) []models.Transaction {
	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Month() <= m {
			out = append(out, tx)
		}
	}
	return out
}

// ReferenceMonth returns the latest month present, or 0 for no rows
func ReferenceMonth(txs []models.Transaction) int {
	ref := 0
	for _, tx := range txs {
		ref = max(ref, tx.Month())
	}
	return ref
}

// BusinessUnits lists the distinct business units in first-seen order
func BusinessUnits(txs []models.Transaction) []string {
	seen := make(map[string]struct{})
	var units []string
	for _, tx := range txs {
		unit := strings.TrimSpace(tx.BusinessUnit)
		if unit == "" {
			continue
		}
		if _, ok := seen[unit]; ok {
			continue
		}
		seen[unit] = struct{}{}
		units = append(units, unit)
	}
	return units
}
