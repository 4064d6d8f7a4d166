// Command generate writes synthetic ledger and budget exports in the layout
// the analyzer reads: semicolon separated, UTF-8 with BOM, Brazilian decimals.
//
//	go run ./testdata/generators -output-dir testdata/generated -year 2024
//	go run ./testdata/generators -scenario anomalies -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ledgerHeader = []string{"LCTREF", "DATA", "VALOR", "FORNECEDOR", "PROJETO", "CC", "UNIDADE", "CODCONTA", "DESCRICAO_NIVEL4"}

var budgetHeader = []string{"CODCCUSTO", "IDPERIODO", "VALOR_ORCADO"}

var accounts = []struct{ code, level4 string }{
	{"4.1.01", "Serviços de Terceiros"},
	{"4.1.02", "Materiais de Consumo"},
	{"4.1.03", "Manutenção Predial"},
	{"4.1.04", "Viagens e Estadias"},
	{"4.1.05", "Tecnologia da Informação"},
	{"4.2.01", "Energia Elétrica"},
}

var suppliers = []string{
	"ACME SERVICOS LTDA", "BETA MATERIAIS SA", "GAMA ENGENHARIA", "DELTA TURISMO",
	"EPSILON TI", "ZETA ENERGIA", "ETA LIMPEZA", "THETA MANUTENCAO",
}

// Generator produces the ledger and budget of one synthetic year
type Generator struct {
	Year        int
	Units       int
	Projects    int
	PerMonth    int
	SharedRatio float64
	rng         *rand.Rand
}

// LedgerRow is one line of the ledger export
type LedgerRow struct {
	Reference    string
	Date         time.Time
	Value        decimal.Decimal
	Supplier     string
	Project      string
	CostCenter   string
	BusinessUnit string
	AccountCode  string
	Level4       string
}

// BudgetRow is one line of the budget export
type BudgetRow struct {
	CostCenterKey string
	Period        string
	Budgeted      decimal.Decimal
}

func main() {
	var (
		outputDir = flag.String("output-dir", "../generated", "Output directory for generated files")
		year      = flag.Int("year", 2024, "Fiscal year of the generated ledger")
		units     = flag.Int("units", 3, "Number of business units")
		projects  = flag.Int("projects", 4, "Projects per business unit")
		perMonth  = flag.Int("per-month", 40, "Ledger rows per unit and month")
		shared    = flag.Float64("shared-ratio", 0.25, "Share of rows booked on the shared project")
		scenario  = flag.String("scenario", "baseline", "Scenario: baseline, anomalies, over-budget, duplicates, all")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
	)
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	g := &Generator{
		Year:        *year,
		Units:       *units,
		Projects:    *projects,
		PerMonth:    *perMonth,
		SharedRatio: *shared,
		rng:         rand.New(rand.NewSource(*seed)),
	}

	scenarios := []string{*scenario}
	if *scenario == "all" {
		scenarios = []string{"baseline", "anomalies", "over-budget", "duplicates"}
	}

	for _, name := range scenarios {
		ledger := g.Baseline()
		budget := g.Budget(ledger, 1.3)
		switch name {
		case "baseline":
		case "anomalies":
			ledger = g.InjectAnomalies(ledger)
		case "over-budget":
			budget = g.Budget(ledger, 0.7)
		case "duplicates":
			ledger = g.InjectDuplicates(ledger)
		default:
			log.Fatalf("Unknown scenario: %s", name)
		}

		ledgerPath := filepath.Join(*outputDir, fmt.Sprintf("ledger_%s.csv", name))
		budgetPath := filepath.Join(*outputDir, fmt.Sprintf("budget_%s.csv", name))
		if err := WriteLedger(ledgerPath, ledger); err != nil {
			log.Fatalf("Failed to write ledger: %v", err)
		}
		if err := WriteBudget(budgetPath, budget); err != nil {
			log.Fatalf("Failed to write budget: %v", err)
		}
		fmt.Printf("Scenario %-12s %6d ledger rows -> %s\n", name, len(ledger), ledgerPath)
	}
	fmt.Printf("Seed used: %d\n", *seed)
}

func (g *Generator) unitName(u int) string {
	return fmt.Sprintf("SP - UNIDADE %02d", u+1)
}

func (g *Generator) costCenter(project, unit int) string {
	return fmt.Sprintf("CC%010d%03d", project+1, unit+1)
}

// Baseline creates an ordinary year: every unit books each month on its own
// projects, and some rows go to one project shared by every unit
func (g *Generator) Baseline() []LedgerRow {
	var rows []LedgerRow
	sharedProject := g.Units * g.Projects

	for u := 0; u < g.Units; u++ {
		for month := 1; month <= 12; month++ {
			for i := 0; i < g.PerMonth; i++ {
				project := u*g.Projects + g.rng.Intn(g.Projects)
				projectName := fmt.Sprintf("PROJETO %03d", project+1)
				if g.rng.Float64() < g.SharedRatio {
					project = sharedProject
					projectName = "PROJETO COMPARTILHADO"
				}
				account := accounts[g.rng.Intn(len(accounts))]
				rows = append(rows, LedgerRow{
					Reference:    fmt.Sprintf("L%07d", len(rows)+1),
					Date:         g.dayIn(month),
					Value:        g.amount(200, 15000),
					Supplier:     suppliers[g.rng.Intn(len(suppliers))],
					Project:      projectName,
					CostCenter:   g.costCenter(project, u),
					BusinessUnit: g.unitName(u),
					AccountCode:  account.code,
					Level4:       account.level4,
				})
			}
		}
	}

	// Revenue rows and a blank supplier are filtered out downstream
	rows = append(rows, LedgerRow{
		Reference:    fmt.Sprintf("L%07d", len(rows)+1),
		Date:         g.dayIn(6),
		Value:        g.amount(1000, 5000).Neg(),
		Supplier:     suppliers[0],
		Project:      "PROJETO 001",
		CostCenter:   g.costCenter(0, 0),
		BusinessUnit: g.unitName(0),
		AccountCode:  "3.1.01",
		Level4:       "Receita de Serviços",
	})
	rows = append(rows, LedgerRow{
		Reference:    fmt.Sprintf("L%07d", len(rows)+1),
		Date:         g.dayIn(7),
		Value:        g.amount(100, 500),
		Project:      "PROJETO 001",
		CostCenter:   g.costCenter(0, 0),
		BusinessUnit: g.unitName(0),
		AccountCode:  accounts[1].code,
		Level4:       accounts[1].level4,
	})
	return rows
}

// InjectAnomalies adds one-off suppliers on a single project with values far
// above the usual range, concentrated in the last month
func (g *Generator) InjectAnomalies(rows []LedgerRow) []LedgerRow {
	for u := 0; u < g.Units; u++ {
		for i := 0; i < 3; i++ {
			project := u * g.Projects
			rows = append(rows, LedgerRow{
				Reference:    fmt.Sprintf("A%07d", len(rows)+1),
				Date:         g.dayIn(12),
				Value:        g.amount(80000, 250000),
				Supplier:     fmt.Sprintf("FORNECEDOR EVENTUAL %02d%02d", u+1, i+1),
				Project:      fmt.Sprintf("PROJETO %03d", project+1),
				CostCenter:   g.costCenter(project, u),
				BusinessUnit: g.unitName(u),
				AccountCode:  accounts[4].code,
				Level4:       accounts[4].level4,
			})
		}
	}
	return rows
}

// InjectDuplicates repeats a tenth of the rows verbatim
func (g *Generator) InjectDuplicates(rows []LedgerRow) []LedgerRow {
	n := len(rows)
	for i := 0; i < n; i += 10 {
		rows = append(rows, rows[i])
	}
	return rows
}

// Budget plans each cost-center key at factor times its realized expense
func (g *Generator) Budget(rows []LedgerRow, factor float64) []BudgetRow {
	totals := make(map[string]decimal.Decimal)
	var keys []string
	for _, r := range rows {
		if !r.Value.IsPositive() {
			continue
		}
		key := r.CostCenter[:12]
		if _, ok := totals[key]; !ok {
			keys = append(keys, key)
		}
		totals[key] = totals[key].Add(r.Value)
	}

	out := make([]BudgetRow, 0, len(keys))
	for _, key := range keys {
		out = append(out, BudgetRow{
			CostCenterKey: key,
			Period:        fmt.Sprint(g.Year),
			Budgeted:      totals[key].Mul(decimal.NewFromFloat(factor)).Round(2),
		})
	}
	return out
}

func (g *Generator) dayIn(month int) time.Time {
	return time.Date(g.Year, time.Month(month), 1+g.rng.Intn(28), 0, 0, 0, 0, time.UTC)
}

func (g *Generator) amount(min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(min + g.rng.Float64()*(max-min)).Round(2)
}

// brazilian renders 1234.5 as 1.234,50
func brazilian(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "," + frac
}

// WriteLedger writes the ledger export
func WriteLedger(path string, rows []LedgerRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Reference, r.Date.Format("02/01/2006"), brazilian(r.Value), r.Supplier,
			r.Project, r.CostCenter, r.BusinessUnit, r.AccountCode, r.Level4,
		})
	}
	return writeCSV(path, ledgerHeader, records)
}

// WriteBudget writes the budget export
func WriteBudget(path string, rows []BudgetRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{r.CostCenterKey, r.Period, brazilian(r.Budgeted)})
	}
	return writeCSV(path, budgetHeader, records)
}

func writeCSV(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.WriteString("\ufeff"); err != nil {
		return err
	}
	w := csv.NewWriter(file)
	w.Comma = ';'
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return file.Sync()
}
