package extract

import (
	"context"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/models"
	"expense-analyzer/internal/parsers"
	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// CSVSource reads the ledger and the budget from delimited files
type CSVSource struct {
	LedgerPath string
	BudgetPath string

	ledger *parsers.LedgerParser
	budget *parsers.BudgetParser
	// layout fingerprints the ledger config for cache keys
	layout string
	cache  *Cache
	logger logger.Logger
}

// NewCSVSource creates a file source. A nil cache disables caching; nil
// configs select the default export layouts.
func NewCSVSource(ledgerPath, budgetPath string, ledgerConfig *parsers.LedgerConfig, budgetConfig *parsers.BudgetConfig, cache *Cache) (*CSVSource, error) {
	if ledgerConfig == nil {
		ledgerConfig = parsers.DefaultLedgerConfig()
	}
	ledger, err := parsers.NewLedgerParser(ledgerConfig)
	if err != nil {
		return nil, err
	}
	budget, err := parsers.NewBudgetParser(budgetConfig)
	if err != nil {
		return nil, err
	}
	return &CSVSource{
		LedgerPath: ledgerPath,
		BudgetPath: budgetPath,
		ledger:     ledger,
		budget:     budget,
		layout:     ledgerConfig.Fingerprint(),
		cache:      cache,
		logger:     logger.GetGlobalLogger().WithComponent("csv_source"),
	}, nil
}

// Name identifies the source
func (s *CSVSource) Name() string {
	return "csv:" + s.LedgerPath
}

// Ledger parses the ledger file, or reuses the cached copy, and slices it by filter
func (s *CSVSource) Ledger(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	load := func(ctx context.Context) ([]models.Transaction, error) {
		txs, stats, err := s.ledger.ParseFile(ctx, s.LedgerPath)
		if err != nil {
			return nil, err
		}
		if stats.HasErrors() {
			s.logger.WithFields(logger.Fields{
				"path":   s.LedgerPath,
				"issues": stats.ErrorCount(),
			}).Warn("Ledger rows were rejected")
		}
		return txs, nil
	}

	var all []models.Transaction
	var err error
	if s.cache != nil {
		all, err = s.cache.Get(ctx, CacheKey{Path: s.LedgerPath, Config: s.layout}, load)
	} else {
		all, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	rows := filter.Apply(all)
	s.logger.WithFields(logger.Fields{
		"rows":  len(rows),
		"year":  filter.Year,
		"units": filter.Units,
	}).Info("Ledger sliced")
	return rows, nil
}

// Budget parses the budget file. A source without a budget file yields no rows.
func (s *CSVSource) Budget(ctx context.Context, period string) ([]models.BudgetRecord, error) {
	if s.BudgetPath == "" {
		s.logger.Warn("No budget file configured, budget columns will be zero")
		return nil, nil
	}
	records, _, err := s.budget.ParseFile(ctx, s.BudgetPath)
	if err != nil {
		return nil, err
	}
	return parsers.FilterPeriod(records, period), nil
}

// Units lists the business units of the ledger in year
func (s *CSVSource) Units(ctx context.Context, year int) ([]string, error) {
	txs, err := s.Ledger(ctx, Filter{Year: year})
	if err != nil {
		return nil, err
	}
	units := aggregation.BusinessUnits(txs)
	if len(units) == 0 {
		return nil, errors.ExtractionError(errors.CodeEmptyExtraction, s.Name(), nil)
	}
	return units, nil
}

// Close releases nothing; files are closed after each parse
func (s *CSVSource) Close() error {
	return nil
}
