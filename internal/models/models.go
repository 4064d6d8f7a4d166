package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder values written by the extraction layer when a dimension is absent
const (
	NotInformed      = "Não Informado"
	SupplierNotFound = "Fornecedor Não Encontrado"
)

// JoinKeyLength is the number of leading cost-center characters shared by the
// ledger and the budget tables.
const JoinKeyLength = 12

// unitCodeLength is the number of trailing cost-center characters that
// identify the business unit.
const unitCodeLength = 3

// SharingType classifies a project by how many business units report it
type SharingType string

const (
	// SharingExclusive marks a project reported by exactly one business unit
	SharingExclusive SharingType = "Exclusive"
	// SharingShared marks a project reported by more than one business unit
	SharingShared SharingType = "Shared"
)

// String returns the string representation of SharingType
func (s SharingType) String() string {
	return string(s)
}

// IsValid checks if the sharing type is known
func (s SharingType) IsValid() bool {
	return s == SharingExclusive || s == SharingShared
}

// SummaryKey returns the suffix used by executive summary keys
func (s SharingType) SummaryKey() string {
	if s == SharingExclusive {
		return "exclusivo"
	}
	return "compartilhado"
}

// Criticality is the budget risk tag of a project
type Criticality string

const (
	CriticalityHigh   Criticality = "High"
	CriticalityMedium Criticality = "Medium"
	CriticalityLow    Criticality = "Low"
	// CriticalityNone is used on the synthetic total row
	CriticalityNone Criticality = "-"
)

// String returns the string representation of Criticality
func (c Criticality) String() string {
	return string(c)
}

// Transaction is one row of the expense ledger
type Transaction struct {
	ReferenceID   string          `json:"reference_id"`
	Date          time.Time       `json:"date"`
	Value         decimal.Decimal `json:"value"`
	Supplier      string          `json:"supplier"`
	Project       string          `json:"project"`
	CostCenter    string          `json:"cost_center"`
	BusinessUnit  string          `json:"business_unit"`
	AccountCode   string          `json:"account_code"`
	AccountLevel4 string          `json:"account_level4"`
	SharingType   SharingType     `json:"sharing_type,omitempty"`
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ReferenceID) == "" {
		return fmt.Errorf("reference id cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if strings.TrimSpace(t.BusinessUnit) == "" {
		return fmt.Errorf("business unit cannot be empty")
	}
	return nil
}

// Month returns the calendar month number of the transaction
func (t *Transaction) Month() int {
	return int(t.Date.Month())
}

// IsExpense reports whether the transaction is a cost (positive value).
// Zero and negative values are credits or reversals.
func (t *Transaction) IsExpense() bool {
	return t.Value.IsPositive()
}

// JoinKey returns the truncated cost-center key used to join budget records
func (t *Transaction) JoinKey() string {
	return TruncateKey(t.CostCenter)
}

// UnitCode returns the business unit number encoded at the end of the cost center
func (t *Transaction) UnitCode() string {
	runes := []rune(strings.TrimSpace(t.CostCenter))
	if len(runes) <= unitCodeLength {
		return string(runes)
	}
	return string(runes[len(runes)-unitCodeLength:])
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{Ref: %s, Date: %s, Value: %s, Supplier: %s, Project: %s}",
		t.ReferenceID, t.Date.Format("2006-01-02"), t.Value.String(), t.Supplier, t.Project)
}

// MarshalJSON renders the value as a string to keep decimal precision
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Value string `json:"value"`
		Date  string `json:"date"`
		*Alias
	}{
		Value: t.Value.String(),
		Date:  t.Date.Format("2006-01-02"),
		Alias: (*Alias)(t),
	})
}

// BudgetRecord is one planned-budget row for a cost center and period
type BudgetRecord struct {
	CostCenterKey string          `json:"cost_center_key"`
	PeriodID      string          `json:"period_id"`
	BudgetedValue decimal.Decimal `json:"budgeted_value"`
}

// JoinKey returns the truncated key matching Transaction.JoinKey
func (b *BudgetRecord) JoinKey() string {
	return TruncateKey(b.CostCenterKey)
}

// TruncateKey keeps the first JoinKeyLength characters of a cost-center code.
// Shorter codes are returned unchanged.
func TruncateKey(code string) string {
	runes := []rune(strings.TrimSpace(code))
	if len(runes) <= JoinKeyLength {
		return string(runes)
	}
	return string(runes[:JoinKeyLength])
}

// IntegratedRow joins realized spend and annual budget per project and join key
type IntegratedRow struct {
	BusinessUnit string          `json:"business_unit"`
	Project      string          `json:"project"`
	SharingType  SharingType     `json:"sharing_type"`
	JoinKey      string          `json:"join_key"`
	Realized     decimal.Decimal `json:"realized"`
	Budgeted     decimal.Decimal `json:"budgeted"`
}

// Anomaly is a transaction flagged by the contextual detector
type Anomaly struct {
	ReferenceID   string          `json:"reference_id"`
	Date          time.Time       `json:"date"`
	Supplier      string          `json:"supplier"`
	Project       string          `json:"project"`
	Value         decimal.Decimal `json:"value"`
	Justification string          `json:"justification"`
}

// NaturalKey identifies an anomaly independently of its reference id
func (a *Anomaly) NaturalKey() string {
	return strings.Join([]string{a.Date.Format("2006-01-02"), a.Supplier, a.Project, a.Value.String()}, "|")
}

// MonthLabels maps month numbers to their display labels
var MonthLabels = [...]string{"", "Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

// MonthLabel returns the three-letter label for month m, or "" when out of range
func MonthLabel(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return MonthLabels[m]
}

// MonthNumber returns the month number of a display label, or 0
func MonthNumber(label string) int {
	for i := 1; i <= 12; i++ {
		if strings.EqualFold(MonthLabels[i], strings.TrimSpace(label)) {
			return i
		}
	}
	return 0
}
