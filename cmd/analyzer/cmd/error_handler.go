package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if summary, ok := err.(*errors.ErrorSummary); ok {
		return h.handleErrorSummary(summary)
	}
	if analyzerErr, ok := errors.AsAnalyzerError(err); ok {
		return h.handleAnalyzerError(analyzerErr)
	}
	return h.handleGenericError(err)
}

// handleAnalyzerError handles AnalyzerError with detailed context
func (h *CLIErrorHandler) handleAnalyzerError(err *errors.AnalyzerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			if key == "stack" && !h.verbose {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleErrorSummary lists every failed unit of a partially completed run
func (h *CLIErrorHandler) handleErrorSummary(summary *errors.ErrorSummary) int {
	fmt.Fprintf(h.out, "Error: run completed with %d failures\n", summary.Total)
	for i, err := range summary.Errors {
		fmt.Fprintf(h.out, "  %d. [%s] %s\n", i+1, err.Category, err.Message)
		if h.verbose && err.Cause != nil {
			fmt.Fprintf(h.out, "     cause: %v\n", err.Cause)
		}
	}
	fmt.Fprintf(h.out, "\nArtifacts of the successful units were written; see the run manifest.\n")
	return summary.GetExitCode()
}

// handleGenericError handles errors outside the AnalyzerError taxonomy
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more details\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the ledger and budget exports exist and are readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure the output directory is writable`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the export is semicolon separated with a header row
• Check that values use the Brazilian format (1.234,56) or plain decimals
• Ensure the file is UTF-8 encoded (a BOM is accepted)`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that every required column has a value
• Verify dates use DD/MM/YYYY or YYYY-MM-DD
• Check the units file entries`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Database DSNs are read from the environment or the .env file
• Use 'analyzer run --help' to see all available options`

	case errors.CategoryExtraction:
		return `Extraction error help:
• Check the database DSN and network access
• Verify the query registry in the config file
• Confirm the year has ledger rows`

	case errors.CategoryProcessing, errors.CategoryReport:
		return `Processing error help:
• Other units were still processed; check the run manifest
• Run with --verbose and --log-level debug for the unit logs`

	default:
		return `For more help:
• Use 'analyzer --help' for general help
• Use 'analyzer run --help' for command-specific help`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
