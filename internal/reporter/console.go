package reporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"expense-analyzer/internal/models"
)

func (rg *ReportGenerator) palette() (heading, total, warn *color.Color) {
	heading = color.New(color.FgCyan, color.Bold)
	total = color.New(color.Bold)
	warn = color.New(color.FgYellow)
	if !rg.config.UseColors {
		heading.DisableColor()
		total.DisableColor()
		warn.DisableColor()
	}
	return heading, total, warn
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(report *UnitReport, writer io.Writer) error {
	heading, total, warn := rg.palette()

	heading.Fprintf(writer, "ANÁLISE DE DESPESAS - %s\n", report.Unit)
	fmt.Fprintf(writer, "Referência: %s/%d", models.MonthLabel(report.ReferenceMonth), report.Year)
	if report.RunID != "" {
		fmt.Fprintf(writer, "  Execução: %s", report.RunID)
	}
	fmt.Fprintf(writer, "\n\n")

	heading.Fprintf(writer, "=== RESUMO EXECUTIVO ===\n")
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Indicador\tMês\tAno\n")
	for _, item := range SummaryItems(report.Summary) {
		line := fmt.Sprintf("%s\t%s\t%s\n", item.Label, item.Month, item.Year)
		if item.IsTotal {
			line = total.Sprint(line)
		} else {
			line = "  " + line
		}
		fmt.Fprint(tw, line)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(writer, "\n")

	for _, section := range report.Sections {
		heading.Fprintf(writer, "=== %s ===\n", strings.ToUpper(section.Title))
		if section.Note != "" {
			warn.Fprintf(writer, "%s\n", section.Note)
		}
		if section.Table != nil && !section.Table.IsEmpty() {
			if err := rg.printTable(section.Table, writer); err != nil {
				return err
			}
		} else if section.Note == "" {
			fmt.Fprintf(writer, "Sem registros.\n")
		}
		fmt.Fprintf(writer, "\n")
	}
	return nil
}

func (rg *ReportGenerator) printTable(table *models.Table, writer io.Writer) error {
	width := rg.config.TableMaxWidth / max(len(table.Columns), 1)
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)

	headers := make([]string, len(table.Columns))
	for i, name := range table.ColumnNames() {
		headers[i] = truncate(name, width)
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for i, row := range table.Rows {
		// Limit output for very long tables
		if rg.config.MaxConsoleRows > 0 && i >= rg.config.MaxConsoleRows {
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(writer, "  ... e mais %d linhas\n", len(table.Rows)-i)
			return nil
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = truncate(FormatCell(table.Columns[j], v), width)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if width < 4 || len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}
