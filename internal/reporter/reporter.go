// Package reporter renders the per-unit analysis into its artifacts.
//
// A UnitReport carries the executive summary, the unit ledger and the ordered
// analysis sections, each backed by a models.Table. Every format renders the
// same report:
//   - Console: section headings and aligned tables for the terminal
//   - JSON: the summary and raw tables for downstream consumers
//   - CSV: the unit ledger, semicolon separated with a UTF-8 BOM
//   - HTML: the detailed report page
//   - XLSX: one workbook sheet per section
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.GenerateReport(report, reporter.FormatHTML, file)
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatHTML    OutputFormat = "html"
	FormatXLSX    OutputFormat = "xlsx"
	// FormatTables writes every report table to its own CSV file
	FormatTables OutputFormat = "tables"
)

// AllFormats lists the file formats written by default
var AllFormats = []OutputFormat{FormatCSV, FormatHTML, FormatXLSX, FormatJSON}

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatHTML, FormatXLSX, FormatTables:
		return true
	default:
		return false
	}
}

// ParseFormats splits a comma separated format list
func ParseFormats(s string) ([]OutputFormat, error) {
	var formats []OutputFormat
	seen := make(map[OutputFormat]bool)
	for _, part := range strings.Split(s, ",") {
		f := OutputFormat(strings.ToLower(strings.TrimSpace(part)))
		if f == "" {
			continue
		}
		if !f.IsValid() {
			return nil, fmt.Errorf("invalid output format: %s", f)
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("at least one output format is required")
	}
	return formats, nil
}

// Section is one titled table of the report
type Section struct {
	Title string        `json:"title"`
	Table *models.Table `json:"table"`
	// Note explains an empty or degraded section
	Note string `json:"note,omitempty"`
}

// UnitReport is everything rendered for one business unit
type UnitReport struct {
	RunID          string               `json:"run_id"`
	Unit           string               `json:"unit"`
	Year           int                  `json:"year"`
	ReferenceMonth int                  `json:"reference_month"`
	GeneratedAt    time.Time            `json:"generated_at"`
	Summary        aggregation.Summary  `json:"summary"`
	Sections       []Section            `json:"sections"`
	Ledger         []models.Transaction `json:"-"`
}

// Period returns the <year><Mon> label used in artifact names
func (r *UnitReport) Period() string {
	return fmt.Sprintf("%d%s", r.Year, models.MonthLabel(r.ReferenceMonth))
}

// DisplayName returns the unit name without the regional prefix
func (r *UnitReport) DisplayName() string {
	return strings.TrimSpace(strings.TrimPrefix(r.Unit, unitPrefix))
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Formats written per unit
	Formats []OutputFormat `json:"formats"`
	// OutputDir receives the artifacts
	OutputDir string `json:"output_dir"`

	// Console formatting options
	UseColors     bool `json:"use_colors"`
	TableMaxWidth int  `json:"table_max_width"`
	// MaxConsoleRows truncates long tables on the console, 0 for no limit
	MaxConsoleRows int `json:"max_console_rows"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVBOM       bool `json:"csv_bom"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Formats:        AllFormats,
		OutputDir:      "output",
		UseColors:      true,
		TableMaxWidth:  120,
		MaxConsoleRows: 20,
		CSVDelimiter:   ';',
		CSVBOM:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if len(c.Formats) == 0 {
		return fmt.Errorf("at least one output format is required")
	}
	for _, f := range c.Formats {
		if !f.IsValid() {
			return fmt.Errorf("invalid output format: %s", f)
		}
	}
	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}
	if c.MaxConsoleRows < 0 {
		return fmt.Errorf("max console rows cannot be negative, got %d", c.MaxConsoleRows)
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '\n' || c.CSVDelimiter == '"' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator renders unit reports in the configured formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport renders report in format and writes it to writer
func (rg *ReportGenerator) GenerateReport(report *UnitReport, format OutputFormat, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("unit report cannot be nil")
	}

	switch format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateLedgerCSV(report, writer)
	case FormatHTML:
		return rg.generateHTMLReport(report, writer)
	case FormatXLSX:
		return rg.generateWorkbook(report, writer)
	case FormatTables:
		return fmt.Errorf("format %s writes one file per table, use WriteArtifacts", format)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// generateJSONReport writes the summary document of the unit
func (rg *ReportGenerator) generateJSONReport(report *UnitReport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
