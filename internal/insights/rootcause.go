package insights

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/models"
)

// Root-cause explanation fragments
const (
	CauseFirstOccurrence = "Primeira ocorrência da combinação fornecedor/projeto no histórico."
	CauseValueAboveMean  = "Valor %s acima de %dx a média histórica da combinação (%s)."
	CauseLowActivity     = "Fornecedor com baixa atividade (%d lançamentos no ano)."
	CauseModelFallback   = "Padrão de valor atípico identificado pelo modelo."
)

const (
	valueMultiplier  = 5
	lowActivityLimit = 3
)

var multiplier = decimal.NewFromInt(valueMultiplier)

// InvestigateRootCause fills the justification of each flagged row from the
// unit's history. Rows that already carry a justification are returned as is.
// A row is the first occurrence of its pair when no earlier history row shares
// the pair; the pair mean used for the value check excludes the row itself.
func InvestigateRootCause(flagged []models.Anomaly, history []models.Transaction) []models.Anomaly {
	if len(flagged) == 0 {
		return nil
	}
	history = aggregation.Expenses(history)

	byPair := make(map[pairKey][]models.Transaction)
	suppliers := make(map[string]int)
	for _, tx := range history {
		byPair[pairOf(tx)] = append(byPair[pairOf(tx)], tx)
		suppliers[tx.Supplier]++
	}

	out := make([]models.Anomaly, len(flagged))
	for i, a := range flagged {
		out[i] = a
		if strings.TrimSpace(a.Justification) != "" {
			continue
		}

		var reasons []string
		key := pairKey{supplier: a.Supplier, project: a.Project}
		previous, others := splitHistory(byPair[key], a)
		if previous == 0 {
			reasons = append(reasons, CauseFirstOccurrence)
		}
		if len(others) > 0 {
			mean := meanValue(others)
			if mean.IsPositive() && a.Value.GreaterThan(mean.Mul(multiplier)) {
				reasons = append(reasons, fmt.Sprintf(CauseValueAboveMean,
					models.FormatBRL(a.Value, 2), valueMultiplier, models.FormatBRL(mean, 2)))
			}
		}
		if count := suppliers[a.Supplier]; count <= lowActivityLimit {
			reasons = append(reasons, fmt.Sprintf(CauseLowActivity, count))
		}

		if len(reasons) == 0 {
			out[i].Justification = CauseModelFallback
		} else {
			out[i].Justification = strings.Join(reasons, "; ")
		}
	}
	return out
}

// splitHistory counts the pair rows dated before the anomaly and returns the
// pair rows other than the anomaly itself
func splitHistory(rows []models.Transaction, a models.Anomaly) (int, []models.Transaction) {
	previous := 0
	var others []models.Transaction
	self := a.NaturalKey()
	for _, tx := range rows {
		if tx.Date.Before(a.Date) {
			previous++
		}
		row := anomalyOf(tx, "")
		if row.NaturalKey() == self {
			continue
		}
		others = append(others, tx)
	}
	return previous, others
}

func meanValue(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Value)
	}
	return total.Div(decimal.NewFromInt(int64(len(txs))))
}
