package parsers

import (
	"context"
	"io"

	"expense-analyzer/internal/models"
	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// BudgetParser handles parsing of planned-budget exports
type BudgetParser struct {
	*BaseParser
	config *BudgetConfig
	logger logger.Logger
}

// NewBudgetParser creates a new BudgetParser with the given configuration
func NewBudgetParser(config *BudgetConfig) (*BudgetParser, error) {
	if config == nil {
		config = DefaultBudgetConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"budget_parser_config",
			config.Columns,
			err,
		).WithSuggestion("Check the budget column mapping")
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &BudgetParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("budget_parser"),
	}, nil
}

// ParseFile parses a budget file
func (bp *BudgetParser) ParseFile(ctx context.Context, filePath string) ([]models.BudgetRecord, *ParseStats, error) {
	file, err := bp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return bp.Parse(ctx, file, filePath)
}

// Parse reads every budget row of r. Rows of other periods are kept; the
// caller filters by period.
func (bp *BudgetParser) Parse(ctx context.Context, r io.Reader, name string) ([]models.BudgetRecord, *ParseStats, error) {
	bp.logger.WithFields(logger.Fields{
		"file_path": name,
		"operation": "parse_budget",
	}).Info("Starting budget parsing")

	reader := bp.NewReader(r)
	parseCtx := NewParseContext(ctx, name)
	stats := NewParseStats(bp.config.MaxIssues)

	if err := bp.ReadHeaders(reader, parseCtx, bp.config.ColumnMap, BudgetRequiredFields); err != nil {
		return nil, stats, err
	}

	var records []models.BudgetRecord
	err := streamRecords(bp.BaseParser, reader, parseCtx, stats, DefaultStreamingConfig().BatchSize, bp.convert,
		func(batch []models.BudgetRecord) error {
			records = append(records, batch...)
			return nil
		}, nil, 0)
	logCompletion(bp.logger, name, stats)
	if err != nil {
		return nil, stats, err
	}
	return records, stats, nil
}

func (bp *BudgetParser) convert(record []string, parseCtx *ParseContext) (models.BudgetRecord, *errors.RowIssue) {
	file, line := parseCtx.File, parseCtx.LineNumber

	key := GetFieldValue(record, parseCtx, FieldBudgetKey)
	if key == "" {
		return models.BudgetRecord{}, errors.EmptyValueIssue(file, line, bp.config.Name(FieldBudgetKey))
	}

	raw := GetFieldValue(record, parseCtx, FieldBudgeted)
	value, err := models.ParseDecimalFromString(raw)
	if err != nil {
		return models.BudgetRecord{}, errors.InvalidAmountIssue(file, line, bp.config.Name(FieldBudgeted), raw)
	}

	return models.BudgetRecord{
		CostCenterKey: key,
		PeriodID:      GetFieldValue(record, parseCtx, FieldPeriod),
		BudgetedValue: value,
	}, nil
}

// FilterPeriod keeps the records of period, or all records when period is empty
func FilterPeriod(records []models.BudgetRecord, period string) []models.BudgetRecord {
	if period == "" {
		return records
	}
	var out []models.BudgetRecord
	for _, r := range records {
		if r.PeriodID == period {
			out = append(out, r)
		}
	}
	return out
}
