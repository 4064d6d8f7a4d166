package pipeline

import (
	"fmt"
	"strings"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/insights"
	"expense-analyzer/internal/ml"
)

// UnitProfile is one entry of the business-unit directory
type UnitProfile struct {
	Name      string `yaml:"name" json:"name"`
	Recipient string `yaml:"recipient" json:"recipient,omitempty"`
	// ExcludedAccounts are accounting categories left out of anomaly detection
	ExcludedAccounts []string `yaml:"excluded_accounts" json:"excluded_accounts,omitempty"`
}

// Config holds the settings of one batch run. It is built once at startup
// and never mutated afterwards.
type Config struct {
	Year int
	// BudgetPeriod selects the budget rows, every period when empty
	BudgetPeriod string
	// MonthOverride limits each unit slice to months up to it, 0 for none.
	// Sharing and budget integration always cover the whole year.
	MonthOverride int
	// Units restricts the run, every unit in the ledger when empty
	Units []string
	// Directory maps unit names to their profile
	Directory map[string]UnitProfile

	TopSuppliers int
	Thresholds   aggregation.Thresholds
	Contextual   insights.ContextualConfig
	Trend        insights.TrendConfig
	Clusters     insights.ClusterConfig
	// SummaryForest configures the normal range of the executive summary
	SummaryForest ml.ForestConfig
}

// DefaultConfig returns a default configuration for year
func DefaultConfig(year int) Config {
	return Config{
		Year:          year,
		TopSuppliers:  5,
		Directory:     map[string]UnitProfile{},
		Thresholds:    aggregation.DefaultThresholds(),
		Contextual:    insights.DefaultContextualConfig(),
		Trend:         insights.DefaultTrendConfig(),
		Clusters:      insights.DefaultClusterConfig(),
		SummaryForest: ml.DefaultForestConfig(),
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.Year < 2000 || c.Year > 2100 {
		return fmt.Errorf("year must be within 2000-2100, got %d", c.Year)
	}
	if c.MonthOverride < 0 || c.MonthOverride > 12 {
		return fmt.Errorf("month override must be within 1-12, got %d", c.MonthOverride)
	}
	if c.TopSuppliers <= 0 {
		return fmt.Errorf("top suppliers must be positive, got %d", c.TopSuppliers)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Contextual.Validate(); err != nil {
		return err
	}
	if c.Trend.MinMonths < 2 {
		return fmt.Errorf("trend min months must be at least 2, got %d", c.Trend.MinMonths)
	}
	if c.Clusters.K < 2 {
		return fmt.Errorf("cluster count must be at least 2, got %d", c.Clusters.K)
	}
	if c.Clusters.Quantile <= 0 || c.Clusters.Quantile >= 1 {
		return fmt.Errorf("cluster quantile must be within (0, 1), got %v", c.Clusters.Quantile)
	}
	return c.SummaryForest.Validate()
}

// ExcludedAccounts returns the accounting categories excluded for unit
func (c Config) ExcludedAccounts(unit string) []string {
	if profile, ok := c.Directory[strings.TrimSpace(unit)]; ok {
		return profile.ExcludedAccounts
	}
	return nil
}
