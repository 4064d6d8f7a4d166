package reporter

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"expense-analyzer/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ledgerHeaders match the ledger export layout so the file can be parsed back
var ledgerHeaders = []string{
	"LCTREF", "DATA", "VALOR", "FORNECEDOR", "PROJETO", "CC", "UNIDADE",
	"CODCONTA", "DESCRICAO_NIVEL4", "TIPO_PROJETO",
}

func (rg *ReportGenerator) newCSVWriter(writer io.Writer) (*csv.Writer, error) {
	if rg.config.CSVBOM {
		if _, err := writer.Write(utf8BOM); err != nil {
			return nil, fmt.Errorf("failed to write CSV BOM: %w", err)
		}
	}
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	return csvWriter, nil
}

// generateLedgerCSV writes the unit ledger with comma decimals
func (rg *ReportGenerator) generateLedgerCSV(report *UnitReport, writer io.Writer) error {
	csvWriter, err := rg.newCSVWriter(writer)
	if err != nil {
		return err
	}

	if err := csvWriter.Write(ledgerHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, tx := range report.Ledger {
		record := []string{
			tx.ReferenceID,
			tx.Date.Format("2006-01-02"),
			strings.Replace(tx.Value.StringFixed(2), ".", ",", 1),
			tx.Supplier,
			tx.Project,
			tx.CostCenter,
			tx.BusinessUnit,
			tx.AccountCode,
			tx.AccountLevel4,
			tx.SharingType.String(),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write ledger record %s: %w", tx.ReferenceID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteTableCSV writes a table with raw cell values
func (rg *ReportGenerator) WriteTableCSV(table *models.Table, writer io.Writer) error {
	csvWriter, err := rg.newCSVWriter(writer)
	if err != nil {
		return err
	}
	if err := csvWriter.Write(table.ColumnNames()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for i, row := range table.Rows {
		record := make([]string, len(row))
		for j, v := range row {
			record[j] = RawCell(v)
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, table.Name, err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// ReadCSVTable reads a table written by WriteTableCSV. Every column comes
// back as text; an optional BOM is skipped.
func ReadCSVTable(r io.Reader, name string, delimiter rune) (*models.Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("table %s has no header row", name)
	}

	columns := make([]models.Column, len(records[0]))
	for i, header := range records[0] {
		columns[i] = models.Column{Name: header, Kind: models.KindText}
	}
	table := models.NewTable(name, columns...)
	for _, record := range records[1:] {
		cells := make([]any, len(record))
		for i, v := range record {
			cells[i] = v
		}
		table.AddRow(cells...)
	}
	return table, nil
}
