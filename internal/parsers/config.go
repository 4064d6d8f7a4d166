package parsers

import (
	"fmt"
	"sort"
	"strings"
)

// Standard field names. ColumnMap translates them into the header names of a
// concrete export.
const (
	FieldReference     = "reference"
	FieldDate          = "date"
	FieldValue         = "value"
	FieldSupplier      = "supplier"
	FieldProject       = "project"
	FieldCostCenter    = "cost_center"
	FieldBusinessUnit  = "business_unit"
	FieldAccountCode   = "account_code"
	FieldAccountLevel4 = "account_level4"
	FieldBudgetKey     = "budget_key"
	FieldPeriod        = "period"
	FieldBudgeted      = "budgeted"
)

// ColumnMap maps a standard field to its header name. Aliases lists extra
// header names accepted for the same field, tried in order.
type ColumnMap struct {
	Columns map[string]string   `mapstructure:"columns" yaml:"columns"`
	Aliases map[string][]string `mapstructure:"aliases" yaml:"aliases,omitempty"`
}

// Candidates returns the header names accepted for field
func (m ColumnMap) Candidates(field string) []string {
	var out []string
	if name, ok := m.Columns[field]; ok && strings.TrimSpace(name) != "" {
		out = append(out, name)
	}
	return append(out, m.Aliases[field]...)
}

// Name returns the primary header name of field
func (m ColumnMap) Name(field string) string {
	if name, ok := m.Columns[field]; ok {
		return name
	}
	return field
}

func (m ColumnMap) validate(required []string) error {
	for _, field := range required {
		if len(m.Candidates(field)) == 0 {
			return fmt.Errorf("column for field %q cannot be empty", field)
		}
	}
	return nil
}

// LedgerConfig describes the expense ledger export
type LedgerConfig struct {
	ColumnMap `mapstructure:",squash" yaml:",inline"`
	Delimiter rune `mapstructure:"-" yaml:"-"`
	HasHeader bool `mapstructure:"has_header" yaml:"has_header"`
	// MaxIssues stops a load after this many rejected rows, 0 for no limit
	MaxIssues int `mapstructure:"max_issues" yaml:"max_issues"`
}

// LedgerRequiredFields lists the fields every ledger row must carry
var LedgerRequiredFields = []string{
	FieldReference, FieldDate, FieldValue, FieldSupplier, FieldProject,
	FieldCostCenter, FieldBusinessUnit,
}

// LedgerOptionalFields may be missing from the export. Rows then carry a blank
// value and the analyses that need the field report insufficient data.
var LedgerOptionalFields = []string{FieldAccountLevel4, FieldAccountCode}

// Validate checks the ledger configuration
func (c *LedgerConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	if c.MaxIssues < 0 {
		return fmt.Errorf("max issues cannot be negative, got %d", c.MaxIssues)
	}
	return c.ColumnMap.validate(LedgerRequiredFields)
}

// Fingerprint identifies every setting that changes how a ledger file is
// parsed. Equal fingerprints yield equal rows for the same file.
func (c *LedgerConfig) Fingerprint() string {
	set := make(map[string]struct{}, len(c.Columns)+len(c.Aliases))
	for field := range c.Columns {
		set[field] = struct{}{}
	}
	for field := range c.Aliases {
		set[field] = struct{}{}
	}
	fields := make([]string, 0, len(set))
	for field := range set {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	fmt.Fprintf(&b, "delim=%q;header=%t;max_issues=%d", c.Delimiter, c.HasHeader, c.MaxIssues)
	for _, field := range fields {
		fmt.Fprintf(&b, ";%s=%q", field, c.Candidates(field))
	}
	return b.String()
}

// DefaultLedgerConfig matches the ledger view export: semicolon separated
// with upper-case headers
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		ColumnMap: ColumnMap{
			Columns: map[string]string{
				FieldReference:     "LCTREF",
				FieldDate:          "DATA",
				FieldValue:         "VALOR",
				FieldSupplier:      "FORNECEDOR",
				FieldProject:       "PROJETO",
				FieldCostCenter:    "CC",
				FieldBusinessUnit:  "UNIDADE",
				FieldAccountCode:   "CODCONTA",
				FieldAccountLevel4: "DESCRICAO_NIVEL4",
			},
			Aliases: map[string][]string{
				FieldValue:         {"UNIFICAVALOR"},
				FieldCostCenter:    {"CODCCUSTO"},
				FieldAccountLevel4: {"NIVEL4", "Agrupamento Contábil (Nível 4)"},
			},
		},
		Delimiter: ';',
		HasHeader: true,
		MaxIssues: 1000,
	}
}

// BudgetConfig describes the planned-budget export
type BudgetConfig struct {
	ColumnMap `mapstructure:",squash" yaml:",inline"`
	Delimiter rune `mapstructure:"-" yaml:"-"`
	HasHeader bool `mapstructure:"has_header" yaml:"has_header"`
	MaxIssues int  `mapstructure:"max_issues" yaml:"max_issues"`
}

// BudgetRequiredFields lists the fields every budget row must carry
var BudgetRequiredFields = []string{FieldBudgetKey, FieldBudgeted}

// Validate checks the budget configuration
func (c *BudgetConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	if c.MaxIssues < 0 {
		return fmt.Errorf("max issues cannot be negative, got %d", c.MaxIssues)
	}
	return c.ColumnMap.validate(BudgetRequiredFields)
}

// DefaultBudgetConfig matches the budget export
func DefaultBudgetConfig() *BudgetConfig {
	return &BudgetConfig{
		ColumnMap: ColumnMap{
			Columns: map[string]string{
				FieldBudgetKey: "CODCCUSTO",
				FieldPeriod:    "IDPERIODO",
				FieldBudgeted:  "VALOR_ORCADO",
			},
		},
		Delimiter: ';',
		HasHeader: true,
		MaxIssues: 1000,
	}
}

// StreamingConfig holds configuration for batched loads
type StreamingConfig struct {
	BatchSize        int  `mapstructure:"batch_size"`
	ReportProgress   bool `mapstructure:"report_progress"`
	ProgressInterval int  `mapstructure:"progress_interval"`
}

// DefaultStreamingConfig returns a configuration with sensible defaults for streaming
func DefaultStreamingConfig() *StreamingConfig {
	return &StreamingConfig{
		BatchSize:        1000,
		ReportProgress:   false,
		ProgressInterval: 10000,
	}
}

// Validate checks if the streaming configuration is valid
func (sc *StreamingConfig) Validate() error {
	if sc.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", sc.BatchSize)
	}
	if sc.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive, got %d", sc.ProgressInterval)
	}
	return nil
}
