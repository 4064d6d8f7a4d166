package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Column names consumed by the HTML, workbook and email templates. Renaming
// any of them breaks the templates.
const (
	ColSupplier          = "Fornecedor"
	ColRealizedYear      = "Realizado (Ano)"
	ColProject           = "Projeto"
	ColCriticality       = "Criticidade"
	ColBudgeted          = "Orçado"
	ColRealized          = "Realizado"
	ColExecution         = "% Execução"
	ColParticipation     = "% Participação"
	ColMonth             = "Mês"
	ColMonthNumber       = "Nº Mês"
	ColRealizedExclusive = "Realizado (Exclusivo)"
	ColRealizedShared    = "Realizado (Compartilhado)"
	ColTrendFlag         = "Sinalização da IA"
	ColDate              = "Data"
	ColJustification     = "Justificativa IA"
	ColAccount           = "Agrupamento Contábil (Nível 4)"
	ColTotalYear         = "Valor Total (Ano)"
	ColCountYear         = "Qtd. Lançamentos (Ano)"
	ColVariation         = "Coeficiente de Variação (CV)"
	ColCluster           = "Cluster"
)

// GrandTotalLabel names the synthetic total row of the budget execution table
const GrandTotalLabel = "Grand Total"

// ColumnKind tells renderers how to format a cell
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindMoney
	KindPercent
	KindRatio
	KindInt
	KindFloat
	KindDate
)

// Column describes one table column
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// Table is the in-memory tabular contract handed to renderers. Cells hold
// string, decimal.Decimal, float64, int or time.Time values matching the
// column kind.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewTable creates an empty table with the given columns
func NewTable(name string, columns ...Column) *Table {
	return &Table{Name: name, Columns: columns, Rows: [][]any{}}
}

// AddRow appends a row. It panics on arity mismatch since that is a
// programming error in the aggregator.
func (t *Table) AddRow(cells ...any) {
	if len(cells) != len(t.Columns) {
		panic(fmt.Sprintf("table %s: row has %d cells, want %d", t.Name, len(cells), len(t.Columns)))
	}
	t.Rows = append(t.Rows, cells)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// IsEmpty reports whether the table has no rows
func (t *Table) IsEmpty() bool {
	return len(t.Rows) == 0
}

// ColumnIndex returns the index of the named column or -1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnNames returns the column headers in order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Cell returns the value at row i of the named column
func (t *Table) Cell(i int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return nil
	}
	return t.Rows[i][idx]
}

// DecimalCell returns a money cell as decimal, or zero when absent
func (t *Table) DecimalCell(i int, column string) decimal.Decimal {
	switch v := t.Cell(i, column).(type) {
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	default:
		return decimal.Zero
	}
}

// StringCell returns a text cell, or "" when absent
func (t *Table) StringCell(i int, column string) string {
	switch v := t.Cell(i, column).(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
