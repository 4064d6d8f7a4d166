package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// ProgressReport contains information about parsing progress for long-running loads
type ProgressReport struct {
	ProcessedRecords int
	ValidRecords     int
	ErrorCount       int
	ElapsedTime      time.Duration
}

// ProgressCallback is called periodically to report parsing progress
type ProgressCallback func(*ProgressReport)

// rowConverter turns one record into a value or a row issue
type rowConverter[T any] func(record []string, parseCtx *ParseContext) (T, *errors.RowIssue)

// streamRecords reads records after the header, converts them and hands them
// to emit in batches of batchSize. Row issues are collected in stats; the load
// stops early when the collector is full or emit fails.
func streamRecords[T any](
	bp *BaseParser,
	reader *csv.Reader,
	parseCtx *ParseContext,
	stats *ParseStats,
	batchSize int,
	convert rowConverter[T],
	emit func([]T) error,
	progress ProgressCallback,
	progressInterval int,
) error {
	if batchSize <= 0 {
		batchSize = DefaultStreamingConfig().BatchSize
	}
	start := time.Now()
	batch := make([]T, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := emit(batch); err != nil {
			return errors.ProcessingError(errors.CodeProcessingError, "batch_callback", err)
		}
		batch = make([]T, 0, batchSize)
		return nil
	}

	for {
		record, issue, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.TotalLines = parseCtx.LineNumber
			return err
		}
		if issue == nil {
			stats.RecordsParsed++
			var value T
			value, issue = convert(record, parseCtx)
			if issue == nil {
				batch = append(batch, value)
				stats.RecordsValid++
			}
		}
		if issue != nil {
			if !stats.Issues.Add(issue) {
				stats.TotalLines = parseCtx.LineNumber
				return errors.New(errors.CategoryParse, errors.CodeInvalidData,
					fmt.Sprintf("too many invalid rows in %s (%d)", parseCtx.File, stats.ErrorCount())).
					WithSuggestion("check the delimiter and the column mapping of the export")
			}
		}

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		if progress != nil && progressInterval > 0 && stats.RecordsParsed > 0 && stats.RecordsParsed%progressInterval == 0 {
			progress(&ProgressReport{
				ProcessedRecords: stats.RecordsParsed,
				ValidRecords:     stats.RecordsValid,
				ErrorCount:       stats.ErrorCount(),
				ElapsedTime:      time.Since(start),
			})
		}
	}

	stats.TotalLines = parseCtx.LineNumber
	if err := flush(); err != nil {
		return err
	}
	if progress != nil {
		progress(&ProgressReport{
			ProcessedRecords: stats.RecordsParsed,
			ValidRecords:     stats.RecordsValid,
			ErrorCount:       stats.ErrorCount(),
			ElapsedTime:      time.Since(start),
		})
	}
	return nil
}

// logCompletion logs the outcome of a load with a sample of rejected rows
func logCompletion(log logger.Logger, file string, stats *ParseStats) {
	log.WithFields(logger.Fields{
		"file_path":      file,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount(),
	}).Info("Parsing completed")

	if stats.HasErrors() {
		log.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}
}
