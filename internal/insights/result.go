// Package insights flags unusual transactions and months and profiles
// accounting categories by spending behavior.
package insights

import (
	"fmt"
	"strings"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/models"
)

// Status tells renderers whether a result carries a signal or was skipped
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
)

// Outcome is embedded by every insight result
type Outcome struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// OK reports whether the insight ran
func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

func ok() Outcome {
	return Outcome{Status: StatusOK}
}

func insufficient(format string, args ...any) Outcome {
	return Outcome{Status: StatusInsufficientData, Reason: fmt.Sprintf(format, args...)}
}

// prepare applies the expense view and drops placeholder suppliers and the
// excluded accounting categories
func prepare(txs []models.Transaction, excludedSuppliers, excludedAccounts []string) []models.Transaction {
	skipSupplier := toSet(excludedSuppliers)
	skipAccount := toSet(excludedAccounts)

	var out []models.Transaction
	for _, tx := range aggregation.Expenses(txs) {
		if _, skip := skipSupplier[normalize(tx.Supplier)]; skip {
			continue
		}
		if _, skip := skipAccount[normalize(tx.AccountLevel4)]; skip {
			continue
		}
		if _, skip := skipAccount[normalize(tx.AccountCode)]; skip {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[normalize(v)] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type pairKey struct {
	supplier, project string
}

func pairOf(tx models.Transaction) pairKey {
	return pairKey{supplier: tx.Supplier, project: tx.Project}
}

func anomalyOf(tx models.Transaction, justification string) models.Anomaly {
	return models.Anomaly{
		ReferenceID:   tx.ReferenceID,
		Date:          tx.Date,
		Supplier:      tx.Supplier,
		Project:       tx.Project,
		Value:         tx.Value,
		Justification: justification,
	}
}
