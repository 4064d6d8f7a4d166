// Package extract loads the expense ledger and the planned budget from the
// configured source: delimited exports on disk or a PostgreSQL warehouse.
package extract

import (
	"context"
	"strings"
	"time"

	"expense-analyzer/internal/models"
)

// Filter narrows a ledger load
type Filter struct {
	// Year keeps transactions dated in that year, 0 for every year
	Year int
	// Units keeps the listed business units, empty for all
	Units []string
	// From and To bound the transaction date, zero for open
	From time.Time
	To   time.Time
}

// Match reports whether tx passes the filter
func (f Filter) Match(tx *models.Transaction) bool {
	if f.Year != 0 && tx.Date.Year() != f.Year {
		return false
	}
	if !f.From.IsZero() && tx.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(f.To) {
		return false
	}
	if len(f.Units) == 0 {
		return true
	}
	unit := strings.TrimSpace(tx.BusinessUnit)
	for _, u := range f.Units {
		if strings.TrimSpace(u) == unit {
			return true
		}
	}
	return false
}

// Apply returns the transactions passing the filter
func (f Filter) Apply(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(txs))
	for i := range txs {
		if f.Match(&txs[i]) {
			out = append(out, txs[i])
		}
	}
	return out
}

// Source provides the raw tables of a run
type Source interface {
	// Name identifies the source in logs and the run manifest
	Name() string
	// Ledger returns the expense ledger rows passing filter
	Ledger(ctx context.Context, filter Filter) ([]models.Transaction, error)
	// Budget returns the budget rows of period, every period when empty
	Budget(ctx context.Context, period string) ([]models.BudgetRecord, error)
	// Units lists the business units present in the ledger of year
	Units(ctx context.Context, year int) ([]string, error)
	Close() error
}

// Dataset is the result of the upfront extraction step
type Dataset struct {
	Transactions []models.Transaction
	Budget       []models.BudgetRecord
}

// Load reads the ledger and the budget of a run
func Load(ctx context.Context, src Source, filter Filter, period string) (*Dataset, error) {
	txs, err := src.Ledger(ctx, filter)
	if err != nil {
		return nil, err
	}
	budget, err := src.Budget(ctx, period)
	if err != nil {
		return nil, err
	}
	return &Dataset{Transactions: txs, Budget: budget}, nil
}
