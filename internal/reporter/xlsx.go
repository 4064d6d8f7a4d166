package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"expense-analyzer/internal/models"
)

const (
	summarySheet   = "Resumo"
	maxSheetName   = 31
	moneyNumFormat = `"R$" #,##0.00`
	dateNumFormat  = "dd/mm/yyyy"
)

var sheetNameReplacer = strings.NewReplacer(
	":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")",
)

type workbookStyles struct {
	header  int
	total   int
	money   int
	percent int
	date    int
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	var s workbookStyles
	var err error
	moneyFmt, dateFmt := moneyNumFormat, dateNumFormat

	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"004A8F"}},
	}); err != nil {
		return s, err
	}
	if s.total, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, err
	}
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt}); err != nil {
		return s, err
	}
	// built-in format 9 is "0%"
	if s.percent, err = f.NewStyle(&excelize.Style{NumFmt: 9}); err != nil {
		return s, err
	}
	if s.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt}); err != nil {
		return s, err
	}
	return s, nil
}

// generateWorkbook writes one sheet for the summary and one per section
func (rg *ReportGenerator) generateWorkbook(report *UnitReport, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newWorkbookStyles(f)
	if err != nil {
		return fmt.Errorf("failed to create workbook styles: %w", err)
	}

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if err := rg.writeSummarySheet(f, report, styles); err != nil {
		return fmt.Errorf("failed to write summary sheet: %w", err)
	}

	used := map[string]bool{summarySheet: true}
	for _, section := range report.Sections {
		if section.Table == nil {
			continue
		}
		name := uniqueSheetName(section.Title, used)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		if err := writeTableSheet(f, name, section.Table, styles); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", name, err)
		}
	}

	f.SetActiveSheet(0)
	return f.Write(writer)
}

func (rg *ReportGenerator) writeSummarySheet(f *excelize.File, report *UnitReport, styles workbookStyles) error {
	rows := [][]any{
		{"Unidade", report.Unit},
		{"Referência", fmt.Sprintf("%s/%d", models.MonthLabel(report.ReferenceMonth), report.Year)},
		{"Gerado em", report.GeneratedAt.Format(time.RFC3339)},
		{},
		{"Indicador", "Mês", "Ano"},
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(summarySheet, cellName(1, i+1), &row); err != nil {
			return err
		}
	}
	headerRow := len(rows)
	if err := f.SetCellStyle(summarySheet, cellName(1, headerRow), cellName(3, headerRow), styles.header); err != nil {
		return err
	}

	s := report.Summary
	lines := []struct {
		label string
		month string
		year  string
	}{
		{"Total Gasto (Realizado)", "valor_total_mes", "valor_total_ano"},
		{"Gastos - Iniciativas exclusivas", "gastos_mes_exclusivo", "gastos_ano_exclusivo"},
		{"Gastos - Iniciativas compartilhadas", "gastos_mes_compartilhado", "gastos_ano_compartilhado"},
		{"Orçamento Planejado (a+b)", "orcamento_mes_referencia", "orcamento_planejado_ano"},
		{"Orçamento - Iniciativas exclusivas (a)", "orcamento_mes_exclusivo", "orcamento_total_exclusivo"},
		{"Orçamento - Iniciativas compartilhadas (b)", "orcamento_mes_compartilhado", "orcamento_total_compartilhado"},
	}
	r := headerRow + 1
	for _, line := range lines {
		row := []any{line.label, s.Decimal(line.month).InexactFloat64(), s.Decimal(line.year).InexactFloat64()}
		if err := f.SetSheetRow(summarySheet, cellName(1, r), &row); err != nil {
			return err
		}
		if err := f.SetCellStyle(summarySheet, cellName(2, r), cellName(3, r), styles.money); err != nil {
			return err
		}
		r++
	}
	counts := []any{"Total de Lançamentos", s.Int("qtd_lancamentos_mes"), s.Int("qtd_lancamentos_ano")}
	if err := f.SetSheetRow(summarySheet, cellName(1, r), &counts); err != nil {
		return err
	}
	return f.SetColWidth(summarySheet, "A", "C", 42)
}

func writeTableSheet(f *excelize.File, sheet string, table *models.Table, styles workbookStyles) error {
	header := make([]any, len(table.Columns))
	for i, name := range table.ColumnNames() {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last := len(table.Columns)
	if err := f.SetCellStyle(sheet, "A1", cellName(last, 1), styles.header); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	for i, row := range table.Rows {
		r := i + 2
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = workbookValue(table.Columns[j], v)
		}
		if err := f.SetSheetRow(sheet, cellName(1, r), &values); err != nil {
			return err
		}
		for j, column := range table.Columns {
			style, ok := columnStyle(column.Kind, styles)
			if !ok {
				continue
			}
			if err := f.SetCellStyle(sheet, cellName(j+1, r), cellName(j+1, r), style); err != nil {
				return err
			}
		}
		if len(row) > 0 && row[0] == models.GrandTotalLabel {
			if err := f.SetCellStyle(sheet, cellName(1, r), cellName(1, r), styles.total); err != nil {
				return err
			}
		}
	}
	return f.SetColWidth(sheet, "A", columnLetter(last), 24)
}

// workbookValue converts a cell to a type excelize stores natively
func workbookValue(column models.Column, v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case float64:
		if column.Kind == models.KindPercent {
			return x / 100
		}
		return x
	case nil:
		return ""
	default:
		return x
	}
}

func columnStyle(kind models.ColumnKind, styles workbookStyles) (int, bool) {
	switch kind {
	case models.KindMoney:
		return styles.money, true
	case models.KindPercent, models.KindRatio:
		return styles.percent, true
	case models.KindDate:
		return styles.date, true
	default:
		return 0, false
	}
}

func uniqueSheetName(title string, used map[string]bool) string {
	base := strings.TrimSpace(sheetNameReplacer.Replace(title))
	if base == "" {
		base = "Tabela"
	}
	base = truncateRunes(base, maxSheetName)
	name := base
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf(" %d", n)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	used[name] = true
	return name
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func columnLetter(col int) string {
	name, _ := excelize.ColumnNumberToName(col)
	return name
}
