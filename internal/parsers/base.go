// Package parsers loads the expense ledger and the planned budget from
// delimited exports.
//
// Exports come from spreadsheet tools and database views, so the parsers
// accept a UTF-8 byte order mark, Brazilian number notation ("1.234,56"),
// ISO and day-first dates and alternative header names. Rows that cannot be
// converted are collected as issues and skipped; a missing required column
// aborts the load.
//
// Example usage:
//
//	parser, err := NewLedgerParser(DefaultLedgerConfig())
//	txs, stats, err := parser.ParseFile(ctx, "despesas.csv")
//
//	// batched load
//	stats, err = parser.Stream(ctx, file, "despesas.csv", 500, func(batch []models.Transaction) error {
//		return sink.Add(batch)
//	})
package parsers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ';',
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"has_header":        config.HasHeader,
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
		"max_field_size":    config.MaxFieldSize,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	File       string
	LineNumber int
	Headers    []string
	// FieldIndex maps a standard field to its column index
	FieldIndex map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		File:       file,
		FieldIndex: make(map[string]int),
		ctx:        ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// Has reports whether the header carries field
func (pc *ParseContext) Has(field string) bool {
	_, ok := pc.FieldIndex[field]
	return ok
}

// OpenFile opens a CSV file, mapping failures to file errors
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
	}
	return file, nil
}

// NewReader wraps r in a csv.Reader configured for the export, skipping a
// leading UTF-8 byte order mark
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	buffered := bufio.NewReader(r)
	if head, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(buffered)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1 // Variable number of fields
	reader.LazyQuotes = true
	return reader
}

// ReadHeaders reads the header row and resolves every field of columns to a
// column index. Missing required fields abort the load. Without a header row
// the required fields come first, then the optional ones, in the given order.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, columns ColumnMap, required []string, optional ...string) error {
	if !bp.config.HasHeader {
		layout := append(append([]string{}, required...), optional...)
		parseCtx.Headers = make([]string, len(layout))
		for i, field := range layout {
			parseCtx.Headers[i] = columns.Name(field)
			parseCtx.FieldIndex[field] = i
		}
		bp.logger.WithField("default_headers", parseCtx.Headers).Debug("Using default headers")
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			bp.logger.WithField("file", parseCtx.File).Error("File is empty or contains no data")
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				"empty",
				nil,
			).WithSuggestion("Ensure the file contains header and data rows")
		}

		bp.logger.WithError(err).Error("Failed to read header row")
		return errors.ParseError(
			errors.CodeInvalidFormat,
			parseCtx.File,
			1,
			"headers",
			"",
			err,
		).WithSuggestion("Check the file format and the delimiter")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = cleanHeaders(headers)

	position := make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		key := strings.ToLower(header)
		if _, dup := position[key]; !dup {
			position[key] = i
		}
	}

	fields := make(map[string]struct{})
	for field := range columns.Columns {
		fields[field] = struct{}{}
	}
	for field := range columns.Aliases {
		fields[field] = struct{}{}
	}
	for field := range fields {
		for _, candidate := range columns.Candidates(field) {
			if idx, ok := position[strings.ToLower(strings.TrimSpace(candidate))]; ok {
				parseCtx.FieldIndex[field] = idx
				break
			}
		}
	}

	var expected []string
	for _, field := range required {
		if !parseCtx.Has(field) {
			expected = append(expected, columns.Name(field))
		}
	}
	if len(expected) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   expected,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")
		return errors.MissingColumnsError(parseCtx.File, expected, parseCtx.Headers)
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Successfully read headers")
	return nil
}

// cleanHeaders trims whitespace and a stray byte order mark from header names
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(header, string(utf8BOM)))
	}
	return cleaned
}

// ReadRecord reads the next non-empty record. Oversized fields and invalid
// encodings come back as a row issue with a nil record.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, *errors.RowIssue, error) {
	for {
		if parseCtx.IsCancelled() {
			bp.logger.Debug("Record reading cancelled by context")
			return nil, nil, errors.InternalError(
				errors.CodeUnexpectedError,
				"csv_parsing",
				fmt.Errorf("parsing cancelled: %w", parseCtx.ctx.Err()),
			)
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, nil, err
			}
			parseCtx.LineNumber++
			bp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read CSV record")
			if _, ok := err.(*csv.ParseError); ok {
				return nil, errors.MalformedRowIssue(errors.CodeInvalidFormat, parseCtx.File, parseCtx.LineNumber, "", err.Error()), nil
			}
			return nil, nil, errors.FileError(errors.CodeDirectoryError, parseCtx.File, err)
		}

		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		for i, field := range record {
			if bp.config.MaxFieldSize > 0 && len(field) > bp.config.MaxFieldSize {
				bp.logger.WithFields(logger.Fields{
					"line_number": parseCtx.LineNumber,
					"column":      i,
					"field_size":  len(field),
					"max_size":    bp.config.MaxFieldSize,
				}).Warn("Field exceeds maximum size limit")
				return nil, errors.MalformedRowIssue(errors.CodeInvalidData, parseCtx.File, parseCtx.LineNumber,
					columnName(parseCtx, i), fmt.Sprintf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize)), nil
			}
			if bp.config.ValidateEncoding && !utf8.ValidString(field) {
				return nil, errors.EncodingIssue(parseCtx.File, parseCtx.LineNumber, columnName(parseCtx, i)), nil
			}
		}

		return record, nil, nil
	}
}

func columnName(parseCtx *ParseContext, i int) string {
	if i < len(parseCtx.Headers) {
		return parseCtx.Headers[i]
	}
	return fmt.Sprintf("field_%d", i)
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue returns the trimmed value of field, or "" when the header or the
// record lacks it
func GetFieldValue(record []string, parseCtx *ParseContext, field string) string {
	idx, ok := parseCtx.FieldIndex[field]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	Issues        *errors.IssueCollector
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(maxIssues int) *ParseStats {
	return &ParseStats{Issues: errors.NewIssueCollector(maxIssues)}
}

// ErrorCount returns the number of rejected rows
func (ps *ParseStats) ErrorCount() int {
	return ps.Issues.Len()
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount() > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount())
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	issues := ps.Issues.Issues()
	if len(issues) == 0 {
		return nil
	}

	limit := len(issues)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for _, issue := range issues[:limit] {
		samples = append(samples, issue.Error())
	}
	return samples
}
