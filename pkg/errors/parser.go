package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RowIssue describes a single rejected input row. Row issues never abort a
// load; they are collected and reported alongside the parse statistics.
type RowIssue struct {
	*AnalyzerError
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// Error includes the location of the rejected row
func (e *RowIssue) Error() string {
	location := fmt.Sprintf("at %s:%d", filepath.Base(e.File), e.Line)
	if e.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Column)
	}
	return fmt.Sprintf("%s %s", e.AnalyzerError.Message, location)
}

func newRowIssue(code ErrorCode, file string, line int, column, value, expected, message string) *RowIssue {
	base := New(CategoryParse, code, message).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
	return &RowIssue{
		AnalyzerError: base,
		File:          file,
		Line:          line,
		Column:        column,
		Value:         value,
		Expected:      expected,
	}
}

// InvalidAmountIssue reports an amount that could not be parsed
func InvalidAmountIssue(file string, line int, column, value string) *RowIssue {
	return newRowIssue(CodeInvalidAmount, file, line, column, value,
		"decimal number such as 1234.56 or 1.234,56", "invalid amount format")
}

// InvalidDateIssue reports a date that could not be parsed
func InvalidDateIssue(file string, line int, column, value string) *RowIssue {
	return newRowIssue(CodeInvalidDate, file, line, column, value,
		"date in YYYY-MM-DD or DD/MM/YYYY format", "invalid date format")
}

// EmptyValueIssue reports a required field left empty
func EmptyValueIssue(file string, line int, column string) *RowIssue {
	return newRowIssue(CodeMissingField, file, line, column, "", "non-empty value", "required field is empty")
}

// EncodingIssue reports a row holding bytes that are not valid UTF-8
func EncodingIssue(file string, line int, column string) *RowIssue {
	return newRowIssue(CodeEncodingError, file, line, column, "", "UTF-8 text", "invalid UTF-8 encoding")
}

// MalformedRowIssue reports a row the reader could not split or accept
func MalformedRowIssue(code ErrorCode, file string, line int, column, message string) *RowIssue {
	return newRowIssue(code, file, line, column, "", "", message)
}

// MissingColumnsError is returned when a header lacks required columns. It is
// fatal for the load, unlike row issues.
func MissingColumnsError(file string, expected, actual []string) *AnalyzerError {
	missing := findMissingColumns(expected, actual)
	return New(CategoryParse, CodeMissingColumn,
		fmt.Sprintf("missing required columns in %s: %s", filepath.Base(file), strings.Join(missing, ", "))).
		WithSuggestion("check the extraction query or CSV header").
		WithContext("file", file).
		WithContext("missing", missing)
}

// IssueCollector accumulates row issues up to a limit
type IssueCollector struct {
	issues    []*RowIssue
	maxIssues int
}

// NewIssueCollector creates a collector. maxIssues <= 0 means unlimited.
func NewIssueCollector(maxIssues int) *IssueCollector {
	return &IssueCollector{maxIssues: maxIssues}
}

// Add records an issue and reports whether loading may continue
func (c *IssueCollector) Add(issue *RowIssue) bool {
	if issue == nil {
		return true
	}
	c.issues = append(c.issues, issue)
	return c.maxIssues <= 0 || len(c.issues) < c.maxIssues
}

// Issues returns the collected issues
func (c *IssueCollector) Issues() []*RowIssue {
	return c.issues
}

// Len returns the number of collected issues
func (c *IssueCollector) Len() int {
	return len(c.issues)
}

// Summary folds the collected issues into an ErrorSummary
func (c *IssueCollector) Summary() *ErrorSummary {
	errs := make([]*AnalyzerError, len(c.issues))
	for i, issue := range c.issues {
		errs[i] = issue.AnalyzerError
	}
	return NewErrorSummary(errs)
}

func findMissingColumns(expected, actual []string) []string {
	actualSet := make(map[string]bool)
	for _, col := range actual {
		actualSet[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range expected {
		if !actualSet[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}
	return missing
}
