package parsers

import (
	"context"
	"io"
	"strings"

	"expense-analyzer/internal/models"
	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// LedgerParser handles parsing of expense ledger exports
type LedgerParser struct {
	*BaseParser
	config *LedgerConfig
	logger logger.Logger
}

// NewLedgerParser creates a new LedgerParser with the given configuration
func NewLedgerParser(config *LedgerConfig) (*LedgerParser, error) {
	if config == nil {
		config = DefaultLedgerConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"ledger_parser_config",
			config.Columns,
			err,
		).WithSuggestion("Check the ledger column mapping")
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	log := logger.GetGlobalLogger().WithComponent("ledger_parser")
	log.WithFields(logger.Fields{
		"has_header": config.HasHeader,
		"delimiter":  string(config.Delimiter),
	}).Debug("Created ledger parser")

	return &LedgerParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     log,
	}, nil
}

// ParseFile parses a ledger file
func (lp *LedgerParser) ParseFile(ctx context.Context, filePath string) ([]models.Transaction, *ParseStats, error) {
	file, err := lp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return lp.Parse(ctx, file, filePath)
}

// Parse reads every ledger row of r. name labels issues and log lines.
func (lp *LedgerParser) Parse(ctx context.Context, r io.Reader, name string) ([]models.Transaction, *ParseStats, error) {
	var transactions []models.Transaction
	stats, err := lp.Stream(ctx, r, name, DefaultStreamingConfig().BatchSize, func(batch []models.Transaction) error {
		transactions = append(transactions, batch...)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return transactions, stats, nil
}

// Stream parses r and hands valid transactions to callback in batches
func (lp *LedgerParser) Stream(
	ctx context.Context,
	r io.Reader,
	name string,
	batchSize int,
	callback func([]models.Transaction) error,
) (*ParseStats, error) {
	return lp.StreamWithProgress(ctx, r, name, batchSize, callback, nil, 0)
}

// StreamWithProgress is Stream with a progress callback every interval records
func (lp *LedgerParser) StreamWithProgress(
	ctx context.Context,
	r io.Reader,
	name string,
	batchSize int,
	callback func([]models.Transaction) error,
	progress ProgressCallback,
	interval int,
) (*ParseStats, error) {
	lp.logger.WithFields(logger.Fields{
		"file_path": name,
		"operation": "parse_ledger",
	}).Info("Starting ledger parsing")

	reader := lp.NewReader(r)
	parseCtx := NewParseContext(ctx, name)
	stats := NewParseStats(lp.config.MaxIssues)

	if err := lp.ReadHeaders(reader, parseCtx, lp.config.ColumnMap, LedgerRequiredFields, LedgerOptionalFields...); err != nil {
		return stats, err
	}
	for _, field := range LedgerOptionalFields {
		if !parseCtx.Has(field) {
			lp.logger.WithFields(logger.Fields{
				"file_path": name,
				"column":    lp.config.Name(field),
			}).Warn("Optional ledger column is missing, values are left blank")
		}
	}

	err := streamRecords(lp.BaseParser, reader, parseCtx, stats, batchSize, lp.convert, callback, progress, interval)
	logCompletion(lp.logger, name, stats)
	return stats, err
}

// convert builds a transaction from one record. Blank dimensions are kept
// blank; FillMissing replaces them later with the placeholder label.
func (lp *LedgerParser) convert(record []string, parseCtx *ParseContext) (models.Transaction, *errors.RowIssue) {
	file, line := parseCtx.File, parseCtx.LineNumber
	column := lp.config.Name

	reference := GetFieldValue(record, parseCtx, FieldReference)
	if reference == "" {
		return models.Transaction{}, errors.EmptyValueIssue(file, line, column(FieldReference))
	}

	rawDate := GetFieldValue(record, parseCtx, FieldDate)
	date, err := models.ParseDateWithFormats(rawDate)
	if err != nil {
		return models.Transaction{}, errors.InvalidDateIssue(file, line, column(FieldDate), rawDate)
	}

	rawValue := GetFieldValue(record, parseCtx, FieldValue)
	value, err := models.ParseDecimalFromString(rawValue)
	if err != nil {
		return models.Transaction{}, errors.InvalidAmountIssue(file, line, column(FieldValue), rawValue)
	}

	tx := models.Transaction{
		ReferenceID:   reference,
		Date:          date,
		Value:         value,
		Supplier:      GetFieldValue(record, parseCtx, FieldSupplier),
		Project:       GetFieldValue(record, parseCtx, FieldProject),
		CostCenter:    GetFieldValue(record, parseCtx, FieldCostCenter),
		BusinessUnit:  strings.TrimSpace(GetFieldValue(record, parseCtx, FieldBusinessUnit)),
		AccountCode:   GetFieldValue(record, parseCtx, FieldAccountCode),
		AccountLevel4: GetFieldValue(record, parseCtx, FieldAccountLevel4),
	}
	if err := tx.Validate(); err != nil {
		return models.Transaction{}, errors.MalformedRowIssue(errors.CodeMissingField, file, line, column(FieldBusinessUnit), err.Error())
	}
	return tx, nil
}
