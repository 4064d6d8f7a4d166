package reporter

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"expense-analyzer/internal/models"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
	"cell": func(table *models.Table, i int, v any) string {
		return FormatCell(table.Columns[i], v)
	},
	"critColumn": func(table *models.Table) int {
		return table.ColumnIndex(models.ColCriticality)
	},
	"critClass": func(v any) string {
		return criticalityClass(fmt.Sprint(v))
	},
	"isTotal": func(row []any) bool {
		return len(row) > 0 && row[0] == models.GrandTotalLabel
	},
}).ParseFS(templateFS, "templates/report.html.tmpl"))

type htmlData struct {
	Report    *UnitReport
	UnitCode  string
	Month     string
	Generated string
	Items     []SummaryItem
	Exclusive []ContextItem
	Shared    []ContextItem
}

// generateHTMLReport renders the detailed report page
func (rg *ReportGenerator) generateHTMLReport(report *UnitReport, writer io.Writer) error {
	data := htmlData{
		Report:    report,
		UnitCode:  report.Summary.Label("numero_unidade"),
		Month:     models.MonthLabel(report.ReferenceMonth),
		Generated: report.GeneratedAt.Format("02/01/2006 15:04"),
		Items:     SummaryItems(report.Summary),
		Exclusive: ContextItems(report.Summary, models.SharingExclusive),
		Shared:    ContextItems(report.Summary, models.SharingShared),
	}
	if err := reportTemplate.Execute(writer, data); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}
