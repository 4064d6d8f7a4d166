package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"expense-analyzer/internal/insights"
	"expense-analyzer/internal/reporter"
	"expense-analyzer/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestParseUnitDirectory(t *testing.T) {
	data := []byte(`
- name: "SP - Norte"
  recipient: norte@example.com
  excluded_accounts:
    - Impostos
    - Folha
- name: " SP - Sul "
`)
	directory, err := ParseUnitDirectory(data, "units.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(directory) != 2 {
		t.Fatalf("expected 2 units, got %d", len(directory))
	}
	north := directory["SP - Norte"]
	if north.Recipient != "norte@example.com" {
		t.Errorf("expected recipient 'norte@example.com', got '%s'", north.Recipient)
	}
	if len(north.ExcludedAccounts) != 2 || north.ExcludedAccounts[0] != "Impostos" {
		t.Errorf("unexpected excluded accounts: %v", north.ExcludedAccounts)
	}
	if _, ok := directory["SP - Sul"]; !ok {
		t.Error("expected unit names to be trimmed")
	}
}

func TestParseUnitDirectoryErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		category errors.ErrorCategory
	}{
		{
			name:     "not a list",
			data:     "name: SP - Norte\n",
			category: errors.CategoryParse,
		},
		{
			name:     "missing name",
			data:     "- recipient: x@example.com\n",
			category: errors.CategoryValidation,
		},
		{
			name:     "duplicate name",
			data:     "- name: A\n- name: A\n",
			category: errors.CategoryValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUnitDirectory([]byte(tt.data), "units.yaml")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.IsCategory(err, tt.category) {
				t.Errorf("expected %s error, got %v", tt.category, err)
			}
		})
	}
}

func TestLoadUnitDirectoryMissingFile(t *testing.T) {
	_, err := LoadUnitDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected file error, got %v", err)
	}
}

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	v.Set(KeyYear, 2024)
	v.Set(KeyLedgerFile, "base.csv")

	settings, err := FromViper(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.Pipeline.Year != 2024 {
		t.Errorf("expected year 2024, got %d", settings.Pipeline.Year)
	}
	if settings.Pipeline.BudgetPeriod != "2024" {
		t.Errorf("expected budget period to default to the year, got '%s'", settings.Pipeline.BudgetPeriod)
	}
	if settings.Pipeline.TopSuppliers != 5 {
		t.Errorf("expected 5 top suppliers, got %d", settings.Pipeline.TopSuppliers)
	}
	if settings.Pipeline.Contextual.Strategy != insights.StrategyRarity {
		t.Errorf("expected rarity strategy, got %s", settings.Pipeline.Contextual.Strategy)
	}
	if settings.Source.Kind != SourceCSV {
		t.Errorf("expected csv source, got %s", settings.Source.Kind)
	}
	if len(settings.Report.Formats) != len(reporter.AllFormats) {
		t.Errorf("expected default formats, got %v", settings.Report.Formats)
	}
	if !settings.Report.UseColors {
		t.Error("expected colors to be enabled by default")
	}
}

func TestFromViperOverrides(t *testing.T) {
	units := writeFile(t, "units.yaml", "- name: SP - Norte\n  excluded_accounts: [Impostos]\n")

	v := viper.New()
	v.Set(KeyYear, 2023)
	v.Set(KeyBudgetPeriod, "2023-R1")
	v.Set(KeyMonth, 6)
	v.Set(KeyUnit, []string{"SP - Norte", " ", "SP - Sul"})
	v.Set(KeyUnitsFile, units)
	v.Set(KeyLedgerFile, "base.csv")
	v.Set(KeyTopSuppliers, 10)
	v.Set(KeyClusters, 6)
	v.Set(KeyAnomalyStrategy, "ISOLATION")
	v.Set(KeyFormats, "html,xlsx")
	v.Set(KeyNoColor, true)
	v.Set(KeyOutputDir, "reports")
	v.Set(KeyProgress, true)
	v.Set(KeyThresholds, map[string]interface{}{"high": 0.95, "medium": 0.8})

	settings, err := FromViper(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pc := settings.Pipeline
	if pc.BudgetPeriod != "2023-R1" {
		t.Errorf("expected budget period '2023-R1', got '%s'", pc.BudgetPeriod)
	}
	if pc.MonthOverride != 6 {
		t.Errorf("expected month override 6, got %d", pc.MonthOverride)
	}
	if len(pc.Units) != 2 || pc.Units[1] != "SP - Sul" {
		t.Errorf("expected blank units to be dropped, got %v", pc.Units)
	}
	if pc.TopSuppliers != 10 {
		t.Errorf("expected 10 top suppliers, got %d", pc.TopSuppliers)
	}
	if pc.Clusters.K != 6 {
		t.Errorf("expected 6 clusters, got %d", pc.Clusters.K)
	}
	if pc.Contextual.Strategy != insights.StrategyIsolation {
		t.Errorf("expected isolation strategy, got %s", pc.Contextual.Strategy)
	}
	if pc.Thresholds.High != 0.95 || pc.Thresholds.Medium != 0.8 {
		t.Errorf("unexpected thresholds: %+v", pc.Thresholds)
	}
	if excluded := pc.ExcludedAccounts("SP - Norte"); len(excluded) != 1 {
		t.Errorf("expected directory to be loaded, got %v", excluded)
	}

	if len(settings.Report.Formats) != 2 ||
		settings.Report.Formats[0] != reporter.FormatHTML ||
		settings.Report.Formats[1] != reporter.FormatXLSX {
		t.Errorf("unexpected formats: %v", settings.Report.Formats)
	}
	if settings.Report.UseColors {
		t.Error("expected colors to be disabled")
	}
	if settings.Report.OutputDir != "reports" {
		t.Errorf("expected output dir 'reports', got '%s'", settings.Report.OutputDir)
	}
	if !settings.Progress {
		t.Error("expected progress to be enabled")
	}
}

func TestFromViperErrors(t *testing.T) {
	tests := []struct {
		name     string
		values   map[string]interface{}
		category errors.ErrorCategory
	}{
		{
			name:     "csv source without ledger",
			values:   map[string]interface{}{KeyYear: 2024},
			category: errors.CategoryConfiguration,
		},
		{
			name:     "unknown source",
			values:   map[string]interface{}{KeyYear: 2024, KeySource: "oracle"},
			category: errors.CategoryConfiguration,
		},
		{
			name:     "invalid format",
			values:   map[string]interface{}{KeyYear: 2024, KeyLedgerFile: "a.csv", KeyFormats: "pdf"},
			category: errors.CategoryConfiguration,
		},
		{
			name:     "month out of range",
			values:   map[string]interface{}{KeyYear: 2024, KeyLedgerFile: "a.csv", KeyMonth: 13},
			category: errors.CategoryConfiguration,
		},
		{
			name:     "unknown strategy",
			values:   map[string]interface{}{KeyYear: 2024, KeyLedgerFile: "a.csv", KeyAnomalyStrategy: "zscore"},
			category: errors.CategoryConfiguration,
		},
		{
			name:     "missing units file",
			values:   map[string]interface{}{KeyYear: 2024, KeyLedgerFile: "a.csv", KeyUnitsFile: "/nonexistent/units.yaml"},
			category: errors.CategoryFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for key, value := range tt.values {
				v.Set(key, value)
			}
			_, err := FromViper(v)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.IsCategory(err, tt.category) {
				t.Errorf("expected %s error, got %v", tt.category, err)
			}
		})
	}
}

func TestFromViperPostgres(t *testing.T) {
	v := viper.New()
	v.Set(KeyYear, 2024)
	v.Set(KeySource, "postgres")
	v.Set(KeyConnections, map[string]interface{}{"hub": "EXPENSE_DB_HUB_DSN"})
	v.Set(KeyTimeout, "30s")

	settings, err := FromViper(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Source.Kind != SourcePostgres {
		t.Errorf("expected postgres source, got %s", settings.Source.Kind)
	}
	if settings.Source.Postgres.Connections["hub"] != "EXPENSE_DB_HUB_DSN" {
		t.Errorf("unexpected connections: %v", settings.Source.Postgres.Connections)
	}
	if settings.Source.Postgres.Timeout.Seconds() != 30 {
		t.Errorf("expected 30s timeout, got %v", settings.Source.Postgres.Timeout)
	}
}

func TestValidateFileExists(t *testing.T) {
	file := writeFile(t, "base.csv", "a;b\n")

	if err := ValidateFileExists(file); err != nil {
		t.Errorf("expected existing file to validate, got %v", err)
	}
	if err := ValidateFileExists(filepath.Dir(file)); err == nil {
		t.Error("expected error for a directory")
	}
	if err := ValidateFileExists(filepath.Join(t.TempDir(), "missing.csv")); !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected file error, got %v", err)
	}
}

func TestBuildSourceMissingLedger(t *testing.T) {
	_, err := BuildSource(SourceSettings{Kind: SourceCSV, LedgerFile: "/nonexistent/base.csv"}, nil)
	if !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected file error, got %v", err)
	}
}
