// Package config turns command-line flags, the optional config file and the
// environment into the immutable settings of one run.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"expense-analyzer/internal/extract"
	"expense-analyzer/internal/insights"
	"expense-analyzer/internal/parsers"
	"expense-analyzer/internal/pipeline"
	"expense-analyzer/internal/reporter"
	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// Source kinds accepted by --source
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// Keys read from viper. Flags use the same names.
const (
	KeyYear            = "year"
	KeyBudgetPeriod    = "budget-period"
	KeyMonth           = "month"
	KeySource          = "source"
	KeyLedgerFile      = "ledger-file"
	KeyBudgetFile      = "budget-file"
	KeyUnitsFile       = "units-file"
	KeyUnit            = "unit"
	KeyOutputDir       = "output-dir"
	KeyFormats         = "formats"
	KeyTopSuppliers    = "top-suppliers"
	KeyClusters        = "clusters"
	KeyAnomalyStrategy = "anomaly-strategy"
	KeyProgress        = "progress"
	KeyNoColor         = "no-color"

	// config file only
	KeyThresholds  = "thresholds"
	KeyContextual  = "contextual"
	KeyTrend       = "trend"
	KeyClusterOpts = "clustering"
	KeyQueries     = "postgres.queries"
	KeyConnections = "postgres.connections"
	KeyTimeout     = "postgres.timeout"
)

// SourceSettings selects and configures the ledger source
type SourceSettings struct {
	Kind       string
	LedgerFile string
	BudgetFile string
	Postgres   extract.PostgresConfig
}

// Settings is everything a run needs
type Settings struct {
	Pipeline pipeline.Config
	Source   SourceSettings
	Report   *reporter.ReportConfig
	Progress bool
}

// UnitDirectoryFile is the layout of the units file
type UnitDirectoryFile []pipeline.UnitProfile

// LoadUnitDirectory reads the business-unit directory from a YAML file
func LoadUnitDirectory(path string) (map[string]pipeline.UnitProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}
	return ParseUnitDirectory(data, path)
}

// ParseUnitDirectory decodes a units file. Names must be unique and non-empty.
func ParseUnitDirectory(data []byte, path string) (map[string]pipeline.UnitProfile, error) {
	var entries UnitDirectoryFile
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "", "", err).
			WithSuggestion("The units file must be a YAML list of {name, recipient, excluded_accounts}")
	}

	directory := make(map[string]pipeline.UnitProfile, len(entries))
	for i, entry := range entries {
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.Name == "" {
			return nil, errors.ValidationError(errors.CodeMissingField, "name", i, nil).
				WithContext("file", path).
				WithSuggestion("Every unit entry needs a name")
		}
		if _, dup := directory[entry.Name]; dup {
			return nil, errors.ValidationError(errors.CodeInvalidData, "name", entry.Name, fmt.Errorf("duplicate unit")).
				WithContext("file", path)
		}
		directory[entry.Name] = entry
	}
	return directory, nil
}

// FromViper builds the run settings from the bound flags and the config file
func FromViper(v *viper.Viper) (*Settings, error) {
	year := v.GetInt(KeyYear)
	if year == 0 {
		year = time.Now().Year()
	}

	pc := pipeline.DefaultConfig(year)
	pc.BudgetPeriod = strings.TrimSpace(v.GetString(KeyBudgetPeriod))
	if pc.BudgetPeriod == "" {
		pc.BudgetPeriod = fmt.Sprint(year)
	}
	pc.MonthOverride = v.GetInt(KeyMonth)
	pc.Units = cleanList(v.GetStringSlice(KeyUnit))
	if v.IsSet(KeyTopSuppliers) {
		pc.TopSuppliers = v.GetInt(KeyTopSuppliers)
	}

	if err := unmarshalIfSet(v, KeyThresholds, &pc.Thresholds); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(v, KeyContextual, &pc.Contextual); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(v, KeyTrend, &pc.Trend); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(v, KeyClusterOpts, &pc.Clusters); err != nil {
		return nil, err
	}
	if v.IsSet(KeyClusters) {
		pc.Clusters.K = v.GetInt(KeyClusters)
	}
	if strategy := strings.TrimSpace(v.GetString(KeyAnomalyStrategy)); strategy != "" {
		pc.Contextual.Strategy = insights.Strategy(strings.ToLower(strategy))
	}

	if path := v.GetString(KeyUnitsFile); path != "" {
		directory, err := LoadUnitDirectory(path)
		if err != nil {
			return nil, err
		}
		pc.Directory = directory
	}

	if err := pc.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pipeline", year, err).
			WithSuggestion("Check --year, --month, --top-suppliers, --clusters and --anomaly-strategy")
	}

	source, err := sourceSettings(v)
	if err != nil {
		return nil, err
	}

	report, err := reportConfig(v)
	if err != nil {
		return nil, err
	}

	return &Settings{
		Pipeline: pc,
		Source:   source,
		Report:   report,
		Progress: v.GetBool(KeyProgress),
	}, nil
}

func sourceSettings(v *viper.Viper) (SourceSettings, error) {
	s := SourceSettings{
		Kind:       strings.ToLower(strings.TrimSpace(v.GetString(KeySource))),
		LedgerFile: v.GetString(KeyLedgerFile),
		BudgetFile: v.GetString(KeyBudgetFile),
	}
	if s.Kind == "" {
		s.Kind = SourceCSV
	}

	switch s.Kind {
	case SourceCSV:
		if s.LedgerFile == "" {
			return s, errors.ConfigurationError(errors.CodeMissingConfig, KeyLedgerFile, nil, nil).
				WithSuggestion("Pass --ledger-file with the ledger export, or use --source postgres")
		}
	case SourcePostgres:
		if err := unmarshalIfSet(v, KeyQueries, &s.Postgres.Queries); err != nil {
			return s, err
		}
		if v.IsSet(KeyConnections) {
			s.Postgres.Connections = v.GetStringMapString(KeyConnections)
		}
		s.Postgres.Timeout = v.GetDuration(KeyTimeout)
	default:
		return s, errors.ConfigurationError(errors.CodeInvalidConfig, KeySource, s.Kind, nil).
			WithSuggestion("Valid sources: csv, postgres")
	}
	return s, nil
}

func reportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	rc := reporter.DefaultReportConfig()
	if dir := v.GetString(KeyOutputDir); dir != "" {
		rc.OutputDir = dir
	}
	if v.IsSet(KeyFormats) {
		formats, err := reporter.ParseFormats(strings.Join(v.GetStringSlice(KeyFormats), ","))
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyFormats, v.Get(KeyFormats), err).
				WithSuggestion("Valid formats: console, json, csv, html, xlsx, tables")
		}
		rc.Formats = formats
	}
	rc.UseColors = !v.GetBool(KeyNoColor)
	if err := rc.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report", rc.OutputDir, err)
	}
	return rc, nil
}

// BuildSource opens the configured ledger source
func BuildSource(s SourceSettings, log logger.Logger) (extract.Source, error) {
	switch s.Kind {
	case SourcePostgres:
		return extract.NewPostgresSource(s.Postgres)
	default:
		for _, path := range []string{s.LedgerFile, s.BudgetFile} {
			if path == "" {
				continue
			}
			if err := ValidateFileExists(path); err != nil {
				return nil, err
			}
		}
		return extract.NewCSVSource(s.LedgerFile, s.BudgetFile,
			parsers.DefaultLedgerConfig(), parsers.DefaultBudgetConfig(), extract.NewCache(log))
	}
}

// ValidateFileExists checks that path is a readable regular file
func ValidateFileExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeFileNotFound, path, fmt.Errorf("%s is a directory, expected a file", path))
	}
	file, err := os.Open(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return file.Close()
}

func unmarshalIfSet(v *viper.Viper, key string, target any) error {
	if !v.IsSet(key) {
		return nil
	}
	if err := v.UnmarshalKey(key, target); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, key, v.Get(key), err).
			WithSuggestion("Check the " + key + " section of the config file")
	}
	return nil
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
