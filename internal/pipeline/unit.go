package pipeline

import (
	"context"
	"fmt"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/insights"
	"expense-analyzer/internal/models"
	"expense-analyzer/internal/reporter"
	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// Section titles of the unit report
const (
	TitleExecutionExclusive = "Execução Orçamentária - Exclusivos"
	TitleExecutionShared    = "Execução Orçamentária - Compartilhados"
	TitleSuppliersExclusive = "Top Fornecedores - Exclusivos"
	TitleSuppliersShared    = "Top Fornecedores - Compartilhados"
	TitleProjects           = "Participação por Projeto"
	TitleTrend              = "Tendência Mensal"
	TitleMonthAnomalies     = "Ocorrências do Mês"
	TitleYearAnomalies      = "Ocorrências do Ano"
	TitleClusters           = "Clusters de Contas"
)

// UnitAnalysis holds every aggregate and insight of one business unit
type UnitAnalysis struct {
	Unit           string
	ReferenceMonth int
	Summary        aggregation.Summary

	Clusters  insights.ClusterResult
	Anomalies insights.ContextualResult
	// MonthAnomalies are the reference-month anomalies with root causes
	MonthAnomalies []models.Anomaly

	ExclusiveExecution []aggregation.ExecutionRow
	SharedExecution    []aggregation.ExecutionRow
	ExclusiveSuppliers []aggregation.SupplierTotal
	SharedSuppliers    []aggregation.SupplierTotal
	Projects           []aggregation.ProjectTotal
	Trend              insights.TrendResult

	// Ledger is the raw slice of the unit, exported as CSV
	Ledger []models.Transaction
}

// AnalyzeUnit computes the aggregates and insights of unit over the shared
// dataset. The dataset is only read.
func (p *Pipeline) AnalyzeUnit(ctx context.Context, dataset *Dataset, unit string) (*UnitAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txs := aggregation.ForUnit(dataset.Transactions, unit)
	if p.config.MonthOverride > 0 {
		txs = aggregation.UpToMonth(txs, p.config.MonthOverride)
	}
	if len(txs) == 0 {
		return nil, errors.ProcessingError(
			errors.CodeUnitFailed,
			"unit_slice",
			fmt.Errorf("no ledger rows for unit %q", unit),
		).WithContext("unit", unit).WithSuggestion("Check the unit name against the units command output")
	}
	integrated := aggregation.IntegratedForUnit(dataset.Integrated, unit)
	expenses := aggregation.Expenses(txs)

	ref := p.config.MonthOverride
	if ref == 0 {
		ref = aggregation.ReferenceMonth(expenses)
	}
	log := p.logger.WithFields(logger.Fields{"unit": unit, "reference_month": ref})

	a := &UnitAnalysis{
		Unit:           unit,
		ReferenceMonth: ref,
		Ledger:         txs,
	}

	a.Summary = aggregation.BuildExecutiveSummary(aggregation.SummaryInput{
		Transactions:   txs,
		Integrated:     integrated,
		ReferenceMonth: ref,
		UnitCode:       unitCode(txs),
		Forest:         p.config.SummaryForest,
	})

	exclusive := aggregation.BySharing(txs, models.SharingExclusive)
	shared := aggregation.BySharing(txs, models.SharingShared)

	a.Clusters = p.clusterer.Cluster(aggregation.Expenses(exclusive))
	a.Anomalies = p.detector.Detect(exclusive, p.config.ExcludedAccounts(unit))

	anomalous := a.Anomalies.Projects()
	a.ExclusiveExecution = aggregation.BudgetExecution(
		aggregation.IntegratedBySharing(integrated, models.SharingExclusive), anomalous, p.config.Thresholds)
	a.SharedExecution = aggregation.BudgetExecution(
		aggregation.IntegratedBySharing(integrated, models.SharingShared), anomalous, p.config.Thresholds)

	a.ExclusiveSuppliers = aggregation.BySupplier(exclusive, p.config.TopSuppliers, aggregation.DefaultExcludedSuppliers)
	a.SharedSuppliers = aggregation.BySupplier(shared, p.config.TopSuppliers, aggregation.DefaultExcludedSuppliers)
	a.Projects = aggregation.ByProject(txs, dataset.GlobalProjects)
	a.Trend = insights.MonthlyTrend(txs, p.config.Trend)

	a.MonthAnomalies = insights.InvestigateRootCause(a.Anomalies.InMonth(ref), aggregation.Expenses(exclusive))

	log.WithFields(logger.Fields{
		"transactions":    len(expenses),
		"anomalies":       len(a.Anomalies.Anomalies),
		"month_anomalies": len(a.MonthAnomalies),
		"clusters":        len(a.Clusters.Order),
		"trend_status":    a.Trend.Status,
	}).Debug("Unit analysis completed")
	return a, nil
}

// BuildReport turns an analysis into the report handed to the writers
func (p *Pipeline) BuildReport(runID string, a *UnitAnalysis) *reporter.UnitReport {
	report := &reporter.UnitReport{
		RunID:          runID,
		Unit:           a.Unit,
		Year:           p.config.Year,
		ReferenceMonth: a.ReferenceMonth,
		GeneratedAt:    p.clock(),
		Summary:        a.Summary,
		Ledger:         a.Ledger,
	}

	report.Sections = append(report.Sections,
		reporter.Section{Title: TitleExecutionExclusive, Table: aggregation.ExecutionTable("execucao_exclusivos", a.ExclusiveExecution)},
		reporter.Section{Title: TitleExecutionShared, Table: aggregation.ExecutionTable("execucao_compartilhados", a.SharedExecution)},
		reporter.Section{Title: TitleSuppliersExclusive, Table: aggregation.SupplierTable(a.ExclusiveSuppliers)},
		reporter.Section{Title: TitleSuppliersShared, Table: aggregation.SupplierTable(a.SharedSuppliers)},
		reporter.Section{Title: TitleProjects, Table: aggregation.ProjectTable(a.Projects)},
		reporter.Section{Title: TitleTrend, Table: insights.TrendTable(a.Trend), Note: outcomeNote(a.Trend.Outcome)},
		reporter.Section{Title: TitleMonthAnomalies, Table: insights.AnomalyTable(a.MonthAnomalies), Note: outcomeNote(a.Anomalies.Outcome)},
		reporter.Section{Title: TitleYearAnomalies, Table: insights.AnomalyTable(a.Anomalies.Anomalies), Note: outcomeNote(a.Anomalies.Outcome)},
	)

	if !a.Clusters.OK() {
		report.Sections = append(report.Sections, reporter.Section{Title: TitleClusters, Note: outcomeNote(a.Clusters.Outcome)})
		return report
	}
	report.Sections = append(report.Sections, reporter.Section{Title: TitleClusters, Table: insights.AssignmentTable(a.Clusters)})
	for _, name := range a.Clusters.Order {
		report.Sections = append(report.Sections, reporter.Section{
			Title: "Cluster " + name,
			Table: insights.MemberTable(name, a.Clusters.Members[name]),
			Note:  a.Clusters.Summaries[name].Description,
		})
	}
	return report
}

// outcomeNote explains a skipped insight, empty when it ran
func outcomeNote(o insights.Outcome) string {
	if o.OK() {
		return ""
	}
	return "Dados insuficientes para análise: " + o.Reason
}

// unitCode returns the code of the first row carrying a cost center
func unitCode(txs []models.Transaction) string {
	for i := range txs {
		if code := txs[i].UnitCode(); code != "" {
			return code
		}
	}
	return ""
}
