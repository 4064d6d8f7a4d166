package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with enhanced error handling
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
	// Console receives the console format, os.Stdout when nil
	Console io.Writer
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
		Console:         os.Stdout,
	}, nil
}

// GenerateReportSafely renders one format with input validation and a
// console fallback for failed structured formats
func (srg *SafeReportGenerator) GenerateReportSafely(report *UnitReport, format OutputFormat, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(report, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	err := srg.GenerateReport(report, format, writer)
	if err == nil {
		return nil
	}
	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	if srg.shouldAttemptFormatFallback(format, writer) {
		return srg.generateWithFormatFallback(report, writer, err)
	}
	return srg.wrapGenerationError(format, err)
}

// WriteArtifacts writes every configured file format of report into the
// output directory. A failed format does not stop the others; the failures
// come back as an ErrorSummary next to the artifacts that were written.
func (srg *SafeReportGenerator) WriteArtifacts(report *UnitReport) ([]Artifact, error) {
	if err := srg.validateInputs(report, io.Discard); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(srg.config.OutputDir, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, srg.config.OutputDir, err)
	}

	var artifacts []Artifact
	var failures []*errors.AnalyzerError
	for _, format := range srg.config.Formats {
		if format == FormatConsole {
			if err := srg.GenerateReportSafely(report, format, srg.Console); err != nil {
				failures = append(failures, srg.wrapGenerationError(format, err))
			}
			continue
		}
		if format == FormatTables {
			written, err := srg.writeTables(report)
			artifacts = append(artifacts, written...)
			if err != nil {
				srg.logger.WithError(err).WithField("format", format).Error("Table export failed")
				failures = append(failures, srg.wrapGenerationError(format, err))
			}
			continue
		}

		path := filepath.Join(srg.config.OutputDir, ArtifactName(report, format))
		artifact, err := srg.writeFile(report, format, path)
		if err != nil && srg.isFileError(err) {
			artifact, err = srg.generateWithOutputFallback(report, format, path, err)
		}
		if err != nil {
			srg.logger.WithError(err).WithField("format", format).Error("Artifact generation failed")
			failures = append(failures, srg.wrapGenerationError(format, err))
			continue
		}
		artifacts = append(artifacts, artifact)
		srg.logger.WithFields(logger.Fields{
			"unit":   report.Unit,
			"format": format,
			"path":   artifact.Path,
		}).Info("Artifact written")
	}

	if len(failures) > 0 {
		return artifacts, errors.NewErrorSummary(failures)
	}
	return artifacts, nil
}

func (srg *SafeReportGenerator) writeFile(report *UnitReport, format OutputFormat, path string) (Artifact, error) {
	file, err := os.Create(path)
	if err != nil {
		return Artifact{}, err
	}
	if err := srg.GenerateReport(report, format, file); err != nil {
		file.Close()
		os.Remove(path)
		return Artifact{}, err
	}
	if err := file.Close(); err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Format: format, Path: path, Bytes: info.Size()}, nil
}

// writeTables exports each section table of report to its own CSV file.
// Sections without a table are skipped.
func (srg *SafeReportGenerator) writeTables(report *UnitReport) ([]Artifact, error) {
	var artifacts []Artifact
	for _, section := range report.Sections {
		if section.Table == nil {
			continue
		}
		path := filepath.Join(srg.config.OutputDir, TableArtifactName(report, section.Table))
		file, err := os.Create(path)
		if err != nil {
			return artifacts, err
		}
		if err := srg.WriteTableCSV(section.Table, file); err != nil {
			file.Close()
			os.Remove(path)
			return artifacts, err
		}
		if err := file.Close(); err != nil {
			return artifacts, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, Artifact{Format: FormatTables, Path: path, Bytes: info.Size()})
	}
	srg.logger.WithFields(logger.Fields{
		"unit":   report.Unit,
		"tables": len(artifacts),
	}).Info("Report tables exported")
	return artifacts, nil
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(report *UnitReport, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"report",
			nil,
			nil,
		).WithSuggestion("Provide a valid unit report")
	}

	if strings.TrimSpace(report.Unit) == "" {
		return errors.ValidationError(
			errors.CodeMissingField,
			"unit",
			report.Unit,
			nil,
		).WithSuggestion("The report must name its business unit")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("Provide a valid output writer")
	}

	return nil
}

// shouldAttemptFormatFallback reports whether a console rendering can replace
// the failed format. Binary and file outputs are never mixed with text.
func (srg *SafeReportGenerator) shouldAttemptFormatFallback(format OutputFormat, writer io.Writer) bool {
	if format == FormatConsole || format == FormatXLSX {
		return false
	}
	_, isFile := writer.(*os.File)
	return !isFile || writer == os.Stdout || writer == os.Stderr
}

// generateWithFormatFallback renders the console format after a failure
func (srg *SafeReportGenerator) generateWithFormatFallback(report *UnitReport, writer io.Writer, originalErr error) error {
	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := srg.GenerateReport(report, FormatConsole, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	srg.logger.Info("Report generated successfully using format fallback")
	return nil
}

// generateWithOutputFallback retries a failed artifact under a backup name
func (srg *SafeReportGenerator) generateWithOutputFallback(report *UnitReport, format OutputFormat, originalPath string, originalErr error) (Artifact, error) {
	backupPath := srg.generateBackupPath(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Info("Attempting output fallback")

	artifact, err := srg.writeFile(report, format, backupPath)
	if err != nil {
		return Artifact{}, errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	srg.logger.WithField("backup_file", backupPath).Warn("Artifact written to backup location")
	return artifact, nil
}

// isFileError checks if the error is file-related
func (srg *SafeReportGenerator) isFileError(err error) bool {
	return os.IsPermission(err) ||
		os.IsExist(err) ||
		isSpaceError(err)
}

// generateBackupPath creates a backup file path
func (srg *SafeReportGenerator) generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(format OutputFormat, err error) *errors.AnalyzerError {
	if analyzerErr, ok := errors.AsAnalyzerError(err); ok {
		return analyzerErr
	}

	return errors.ReportError(
		errors.CodeRenderFailed,
		string(format),
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

// Utility functions

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
