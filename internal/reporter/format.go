package reporter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/models"
)

// emptyCell is shown for zero money values and missing cells
const emptyCell = "-"

// SummaryItem is one line of the month/year KPI table
type SummaryItem struct {
	Label   string
	Month   string
	Year    string
	IsTotal bool
}

// SummaryItems lays out the executive summary as the month/year KPI table
func SummaryItems(s aggregation.Summary) []SummaryItem {
	money := func(key string) string { return formatMoney(s.Decimal(key)) }
	return []SummaryItem{
		{Label: "Total Gasto (Realizado)", Month: money("valor_total_mes"), Year: money("valor_total_ano"), IsTotal: true},
		{Label: "Gastos - Iniciativas exclusivas", Month: money("gastos_mes_exclusivo"), Year: money("gastos_ano_exclusivo")},
		{Label: "Gastos - Iniciativas compartilhadas", Month: money("gastos_mes_compartilhado"), Year: money("gastos_ano_compartilhado")},
		{Label: "Orçamento Planejado (a+b)", Month: money("orcamento_mes_referencia"), Year: money("orcamento_planejado_ano"), IsTotal: true},
		{Label: "Orçamento - Iniciativas exclusivas (a)", Month: money("orcamento_mes_exclusivo"), Year: money("orcamento_total_exclusivo")},
		{Label: "Orçamento - Iniciativas compartilhadas (b)", Month: money("orcamento_mes_compartilhado"), Year: money("orcamento_total_compartilhado")},
		{
			Label:   "Total de Lançamentos",
			Month:   formatInt(s.Int("qtd_lancamentos_mes")),
			Year:    formatInt(s.Int("qtd_lancamentos_ano")),
			IsTotal: true,
		},
	}
}

// ContextItem is one line of the value context block of a sharing type
type ContextItem struct {
	Label string
	Value string
}

// ContextItems returns the descriptive statistics of one sharing type. The
// normal range line is left out when the summary has no range for the month.
func ContextItems(s aggregation.Summary, sharing models.SharingType) []ContextItem {
	suffix := sharing.SummaryKey()
	money := func(key string) string { return formatMoney(s.Decimal(key + suffix)) }

	items := []ContextItem{
		{Label: "Valor mediano no mês", Value: money("valor_mediano_mes_")},
	}
	if s.Has("min_normal_mes_" + suffix) {
		items = append(items, ContextItem{
			Label: "Faixa normal no mês",
			Value: money("min_normal_mes_") + " a " + money("max_normal_mes_"),
		})
	}
	return append(items,
		ContextItem{Label: "Média anual", Value: money("media_ano_")},
		ContextItem{Label: "Mediana anual", Value: money("mediana_ano_")},
		ContextItem{Label: "Maior lançamento", Value: money("maior_ano_")},
		ContextItem{Label: "Menor lançamento", Value: money("menor_ano_")},
	)
}

func formatMoney(v decimal.Decimal) string {
	if v.IsZero() {
		return emptyCell
	}
	return models.FormatBRL(v, 0)
}

func formatInt(n int) string {
	return models.FormatNumberBR(decimal.NewFromInt(int64(n)), 0)
}

func formatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64) + "%"
}

// FormatCell renders a cell for people: Brazilian money and number notation,
// ratios as whole percentages and day-first dates
func FormatCell(column models.Column, v any) string {
	if v == nil {
		return emptyCell
	}
	switch column.Kind {
	case models.KindMoney:
		if d, ok := v.(decimal.Decimal); ok {
			return formatMoney(d)
		}
	case models.KindPercent:
		if f, ok := v.(float64); ok {
			return formatPercent(f)
		}
	case models.KindRatio:
		if f, ok := v.(float64); ok {
			return formatPercent(f * 100)
		}
	case models.KindInt:
		if n, ok := v.(int); ok {
			return formatInt(n)
		}
	case models.KindFloat:
		if f, ok := v.(float64); ok {
			return models.FormatNumberBR(decimal.NewFromFloat(f), 2)
		}
	case models.KindDate:
		if t, ok := v.(time.Time); ok {
			return t.Format("02/01/2006")
		}
	}
	return fmt.Sprint(v)
}

// RawCell renders a cell for machines: plain decimals, ISO dates and
// unformatted floats, so exported tables can be read back
func RawCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case time.Time:
		return x.Format("2006-01-02")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// criticalityClass maps a criticality tag to a CSS class
func criticalityClass(tag string) string {
	return "crit-" + strings.ToLower(strings.ReplaceAll(tag, " ", "-"))
}
