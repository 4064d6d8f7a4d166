package insights

import (
	"fmt"
	"sort"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/ml"
	"expense-analyzer/internal/models"
	"expense-analyzer/pkg/logger"
)

// Strategy selects how contextual anomalies are detected
type Strategy string

const (
	// StrategyRarity flags rare supplier/project pairs and low-activity suppliers
	StrategyRarity Strategy = "rarity"
	// StrategyIsolation runs an isolation forest over value and frequency features
	StrategyIsolation Strategy = "isolation"
)

// Justifications attached by the rarity rule
const (
	JustificationRarePair     = "Combinação fornecedor/projeto inédita no ano."
	JustificationRareSupplier = "Fornecedor com baixa atividade no ano (%d lançamentos)."
	JustificationBoth         = "Combinação fornecedor/projeto inédita no ano e fornecedor com baixa atividade (%d lançamentos)."
)

// ContextualConfig configures the contextual anomaly detector
type ContextualConfig struct {
	Strategy Strategy `mapstructure:"strategy"`
	// PairMaxOccurrences flags pairs seen at most this many times
	PairMaxOccurrences int `mapstructure:"pair_max_occurrences"`
	// SupplierMaxOccurrences flags suppliers seen at most this many times
	SupplierMaxOccurrences int `mapstructure:"supplier_max_occurrences"`
	// Contamination is the outlier fraction of the isolation strategy
	Contamination float64 `mapstructure:"contamination"`
	// MinSamples is the smallest input the isolation strategy runs on
	MinSamples        int      `mapstructure:"min_samples"`
	ExcludedSuppliers []string `mapstructure:"excluded_suppliers"`
	Forest            ml.ForestConfig
}

// DefaultContextualConfig returns the production configuration
func DefaultContextualConfig() ContextualConfig {
	return ContextualConfig{
		Strategy:               StrategyRarity,
		PairMaxOccurrences:     1,
		SupplierMaxOccurrences: 3,
		Contamination:          0.02,
		MinSamples:             10,
		ExcludedSuppliers:      aggregation.DefaultExcludedSuppliers,
		Forest:                 ml.DefaultForestConfig(),
	}
}

// Validate checks the detector configuration
func (c ContextualConfig) Validate() error {
	switch c.Strategy {
	case StrategyRarity, StrategyIsolation:
	default:
		return fmt.Errorf("unknown anomaly strategy %q", c.Strategy)
	}
	if c.PairMaxOccurrences < 1 || c.SupplierMaxOccurrences < 1 {
		return fmt.Errorf("occurrence limits must be at least 1")
	}
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return fmt.Errorf("contamination must be within (0, 0.5], got %v", c.Contamination)
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("min samples must be at least 2, got %d", c.MinSamples)
	}
	return nil
}

// ContextualResult holds the flagged transactions, unique by natural key
type ContextualResult struct {
	Outcome
	Anomalies []models.Anomaly `json:"anomalies"`
}

// Projects returns the set of projects with at least one anomaly
func (r ContextualResult) Projects() map[string]bool {
	out := make(map[string]bool, len(r.Anomalies))
	for _, a := range r.Anomalies {
		out[a.Project] = true
	}
	return out
}

// InMonth returns the anomalies dated in month m
func (r ContextualResult) InMonth(m int) []models.Anomaly {
	var out []models.Anomaly
	for _, a := range r.Anomalies {
		if int(a.Date.Month()) == m {
			out = append(out, a)
		}
	}
	return out
}

// ContextualDetector flags transactions whose supplier/project context is unusual
type ContextualDetector struct {
	config ContextualConfig
	logger logger.Logger
}

// NewContextualDetector creates a detector
func NewContextualDetector(config ContextualConfig, log logger.Logger) *ContextualDetector {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &ContextualDetector{
		config: config,
		logger: log.WithComponent("contextual_detector"),
	}
}

// Detect flags anomalies in the full-year transactions of one unit. Rows in
// excludedAccounts (matched on account description or code) are ignored.
func (d *ContextualDetector) Detect(txs []models.Transaction, excludedAccounts []string) ContextualResult {
	rows := prepare(txs, d.config.ExcludedSuppliers, excludedAccounts)
	if len(rows) == 0 {
		return ContextualResult{Outcome: insufficient("no eligible transactions")}
	}

	var anomalies []models.Anomaly
	switch d.config.Strategy {
	case StrategyIsolation:
		if len(rows) < max(d.config.MinSamples, 2) {
			d.logger.WithFields(logger.Fields{
				"rows":        len(rows),
				"min_samples": d.config.MinSamples,
			}).Warn("Not enough transactions for isolation strategy")
			return ContextualResult{Outcome: insufficient("%d transactions, need %d", len(rows), d.config.MinSamples)}
		}
		var err error
		anomalies, err = d.isolation(rows)
		if err != nil {
			d.logger.WithError(err).Warn("Isolation strategy failed")
			return ContextualResult{Outcome: insufficient("isolation forest: %v", err)}
		}
	default:
		anomalies = d.rarity(rows)
	}

	anomalies = uniqueByNaturalKey(anomalies)
	d.logger.WithFields(logger.Fields{
		"strategy":  d.config.Strategy,
		"rows":      len(rows),
		"anomalies": len(anomalies),
	}).Debug("Contextual detection completed")

	return ContextualResult{Outcome: ok(), Anomalies: anomalies}
}

func (d *ContextualDetector) rarity(rows []models.Transaction) []models.Anomaly {
	pairs := make(map[pairKey]int)
	suppliers := make(map[string]int)
	for _, tx := range rows {
		pairs[pairOf(tx)]++
		suppliers[tx.Supplier]++
	}

	var out []models.Anomaly
	for _, tx := range rows {
		rarePair := pairs[pairOf(tx)] <= d.config.PairMaxOccurrences
		supplierCount := suppliers[tx.Supplier]
		rareSupplier := supplierCount <= d.config.SupplierMaxOccurrences

		switch {
		case rarePair && rareSupplier:
			out = append(out, anomalyOf(tx, fmt.Sprintf(JustificationBoth, supplierCount)))
		case rarePair:
			out = append(out, anomalyOf(tx, JustificationRarePair))
		case rareSupplier:
			out = append(out, anomalyOf(tx, fmt.Sprintf(JustificationRareSupplier, supplierCount)))
		}
	}
	return out
}

// isolation builds one feature row per transaction: the value z-score within
// its supplier/project pair, the supplier and project frequencies and the raw
// value. Flagged rows carry no justification; InvestigateRootCause adds it.
func (d *ContextualDetector) isolation(rows []models.Transaction) ([]models.Anomaly, error) {
	pairValues := make(map[pairKey][]float64)
	suppliers := make(map[string]int)
	projects := make(map[string]int)
	for _, tx := range rows {
		pairValues[pairOf(tx)] = append(pairValues[pairOf(tx)], tx.Value.InexactFloat64())
		suppliers[tx.Supplier]++
		projects[tx.Project]++
	}

	type moments struct{ mean, std float64 }
	stats := make(map[pairKey]moments, len(pairValues))
	for key, values := range pairValues {
		stats[key] = moments{mean: ml.Mean(values), std: ml.SampleStdDev(values)}
	}

	X := make([][]float64, len(rows))
	for i, tx := range rows {
		value := tx.Value.InexactFloat64()
		m := stats[pairOf(tx)]
		z := 0.0
		if m.std > 0 {
			z = (value - m.mean) / m.std
		}
		X[i] = []float64{z, float64(suppliers[tx.Supplier]), float64(projects[tx.Project]), value}
	}

	var scaler ml.StandardScaler
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		return nil, err
	}

	config := d.config.Forest
	if config.NumTrees == 0 {
		config = ml.DefaultForestConfig()
	}
	config.Contamination = d.config.Contamination
	outliers, err := ml.NewIsolationForest(config).FitPredict(scaled)
	if err != nil {
		return nil, err
	}

	var out []models.Anomaly
	for i, flagged := range outliers {
		if flagged {
			out = append(out, anomalyOf(rows[i], ""))
		}
	}
	return out, nil
}

// uniqueByNaturalKey keeps the first anomaly per (date, supplier, project,
// value) and orders the result by date
func uniqueByNaturalKey(in []models.Anomaly) []models.Anomaly {
	seen := make(map[string]struct{}, len(in))
	out := make([]models.Anomaly, 0, len(in))
	for _, a := range in {
		key := a.NaturalKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// AnomalyTable renders anomalies with the occurrence-table columns
func AnomalyTable(anomalies []models.Anomaly) *models.Table {
	table := models.NewTable("ocorrencias",
		models.Column{Name: models.ColDate, Kind: models.KindDate},
		models.Column{Name: models.ColSupplier, Kind: models.KindText},
		models.Column{Name: models.ColProject, Kind: models.KindText},
		models.Column{Name: models.ColRealized, Kind: models.KindMoney},
		models.Column{Name: models.ColJustification, Kind: models.KindText},
	)
	for _, a := range anomalies {
		table.AddRow(a.Date, a.Supplier, a.Project, a.Value, a.Justification)
	}
	return table
}
