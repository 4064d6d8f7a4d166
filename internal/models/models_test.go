package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransaction_Validate(t *testing.T) {
	valid := Transaction{
		ReferenceID:  "L-1",
		Date:         time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Value:        decimal.NewFromInt(10),
		BusinessUnit: "SP - Norte",
	}

	tests := []struct {
		name    string
		mutate  func(tx *Transaction)
		wantErr bool
	}{
		{"valid", func(tx *Transaction) {}, false},
		{"empty reference", func(tx *Transaction) { tx.ReferenceID = " " }, true},
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, true},
		{"empty unit", func(tx *Transaction) { tx.BusinessUnit = "" }, true},
		{"zero value is allowed", func(tx *Transaction) { tx.Value = decimal.Zero }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			err := tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransaction_DerivedFields(t *testing.T) {
	tx := Transaction{
		Date:       time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Value:      decimal.NewFromFloat(-5),
		CostCenter: "1.01.02.003.0045",
	}

	if tx.Month() != 7 {
		t.Errorf("expected month 7, got %d", tx.Month())
	}
	if tx.IsExpense() {
		t.Error("negative value must not be an expense")
	}
	if got := tx.JoinKey(); got != "1.01.02.003." {
		t.Errorf("expected 12-character join key, got %q", got)
	}
	if got := tx.UnitCode(); got != "045" {
		t.Errorf("expected unit code 045, got %q", got)
	}
}

func TestTruncateKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ABCDEFGHIJKLMNOP", "ABCDEFGHIJKL"},
		{"SHORT", "SHORT"},
		{"ÁÉÍÓÚÇÃÕÂÊÔÀxyz", "ÁÉÍÓÚÇÃÕÂÊÔÀ"},
		{"  ABCDEFGHIJKLM  ", "ABCDEFGHIJKL"},
	}
	for _, tt := range tests {
		if got := TruncateKey(tt.in); got != tt.want {
			t.Errorf("TruncateKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"1234.56", "1234.56", false},
		{"1.234,56", "1234.56", false},
		{"R$ 1.234,56", "1234.56", false},
		{"-12,5", "-12.5", false},
		{"(12,00)", "-12", false},
		{"1.234.567", "1234567", false},
		{"0", "0", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParseDateWithFormats(t *testing.T) {
	want := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-02-15", "15/02/2024", "2024/02/15", "2024-02-15 00:00:00"} {
		got, err := ParseDateWithFormats(in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%q: got %v, want %v", in, got, want)
		}
	}
	if _, err := ParseDateWithFormats("02-30-2024"); err == nil {
		t.Error("expected error for unsupported layout")
	}
}

func TestMonthLabels(t *testing.T) {
	if MonthLabel(2) != "Fev" || MonthLabel(12) != "Dez" {
		t.Errorf("unexpected labels %q %q", MonthLabel(2), MonthLabel(12))
	}
	if MonthLabel(0) != "" || MonthLabel(13) != "" {
		t.Error("out of range months must map to empty labels")
	}
	if MonthNumber("ago") != 8 || MonthNumber("xx") != 0 {
		t.Error("unexpected MonthNumber results")
	}
}

func TestTransaction_MarshalJSON(t *testing.T) {
	tx := &Transaction{
		ReferenceID: "L-9",
		Date:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Value:       decimal.RequireFromString("1234.50"),
	}
	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"value":"1234.5"`) || !strings.Contains(string(data), `"date":"2024-01-02"`) {
		t.Errorf("unexpected json %s", data)
	}
}

func TestTable(t *testing.T) {
	table := NewTable("suppliers",
		Column{Name: ColSupplier, Kind: KindText},
		Column{Name: ColRealizedYear, Kind: KindMoney},
	)
	table.AddRow("ACME", decimal.NewFromInt(10))

	if table.Len() != 1 || table.IsEmpty() {
		t.Fatal("expected one row")
	}
	if table.StringCell(0, ColSupplier) != "ACME" {
		t.Errorf("unexpected supplier cell %q", table.StringCell(0, ColSupplier))
	}
	if !table.DecimalCell(0, ColRealizedYear).Equal(decimal.NewFromInt(10)) {
		t.Error("unexpected value cell")
	}
	if table.Cell(0, "missing") != nil || table.Cell(5, ColSupplier) != nil {
		t.Error("expected nil for unknown column or row")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on arity mismatch")
		}
	}()
	table.AddRow("only one cell")
}

func TestAnomaly_NaturalKey(t *testing.T) {
	a := Anomaly{ReferenceID: "1", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Supplier: "S", Project: "P", Value: decimal.RequireFromString("10.00")}
	b := a
	b.ReferenceID = "2"
	b.Value = decimal.RequireFromString("10")
	if a.NaturalKey() != b.NaturalKey() {
		t.Errorf("expected equal natural keys, got %q and %q", a.NaturalKey(), b.NaturalKey())
	}
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in     string
		places int32
		want   string
	}{
		{"1234.5", 2, "R$ 1.234,50"},
		{"1234567.891", 0, "R$ 1.234.568"},
		{"-987.1", 2, "R$ -987,10"},
		{"0", 2, "R$ 0,00"},
		{"100", 0, "R$ 100"},
	}
	for _, tt := range tests {
		if got := FormatBRL(decimal.RequireFromString(tt.in), tt.places); got != tt.want {
			t.Errorf("FormatBRL(%s, %d) = %q, want %q", tt.in, tt.places, got, tt.want)
		}
	}
}
