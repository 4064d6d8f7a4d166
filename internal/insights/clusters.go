package insights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/ml"
	"expense-analyzer/internal/models"
	"expense-analyzer/pkg/logger"
)

// Cluster profile names, in cascade priority
const (
	ClusterSporadic  = "Sporadic/Variable Events"
	ClusterRecurrent = "Recurrence and Volume"
	ClusterHighValue = "High Financial Impact"
	ClusterLowImpact = "Low Impact and Activity"
)

var clusterDescriptions = map[string]string{
	ClusterSporadic:  "Contas com gastos irregulares ao longo dos meses, concentrados em poucos períodos.",
	ClusterRecurrent: "Contas com lançamentos frequentes e recorrentes, típicas da operação contínua.",
	ClusterHighValue: "Contas que concentram a maior parte do valor gasto no ano.",
	ClusterLowImpact: "Contas com poucos lançamentos e baixo valor acumulado.",
}

var cascade = []string{ClusterSporadic, ClusterRecurrent, ClusterHighValue, ClusterLowImpact}

// ClusterConfig configures the account clusterer
type ClusterConfig struct {
	K int `mapstructure:"k"`
	// Quantile is the per-feature threshold a centroid must exceed to match a rule
	Quantile float64 `mapstructure:"quantile"`
	Seed     uint64  `mapstructure:"seed"`
}

// DefaultClusterConfig returns the production configuration
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{K: 4, Quantile: 0.75, Seed: 42}
}

// AccountProfile holds the behavioral features of one accounting category
type AccountProfile struct {
	Account   string          `json:"account"`
	Total     decimal.Decimal `json:"total"`
	Frequency int             `json:"frequency"`
	// Variation is the coefficient of variation of the monthly sums
	Variation float64 `json:"variation"`
	Cluster   string  `json:"cluster"`
}

// ClusterSummary describes one cluster by the mean features of its members
type ClusterSummary struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Members       int     `json:"members"`
	MeanTotal     float64 `json:"mean_total"`
	MeanFrequency float64 `json:"mean_frequency"`
	MeanVariation float64 `json:"mean_variation"`
}

// ClusterResult holds the member accounts and summary of every cluster.
// Order lists cluster names by mean total, largest first.
type ClusterResult struct {
	Outcome
	K         int                         `json:"k"`
	Members   map[string][]AccountProfile `json:"members"`
	Summaries map[string]ClusterSummary   `json:"summaries"`
	Order     []string                    `json:"order"`
}

// AccountClusterer partitions accounting categories by spending behavior
type AccountClusterer struct {
	config ClusterConfig
	logger logger.Logger
}

// NewAccountClusterer creates a clusterer
func NewAccountClusterer(config ClusterConfig, log logger.Logger) *AccountClusterer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &AccountClusterer{
		config: config,
		logger: log.WithComponent("account_clusterer"),
	}
}

// Cluster profiles every account of txs and partitions the profiles into at
// most K clusters. K is reduced to the number of accounts; fewer than two
// accounts yield an insufficient_data result.
func (c *AccountClusterer) Cluster(txs []models.Transaction) ClusterResult {
	profiles := Profiles(txs)
	if len(profiles) < 2 {
		c.logger.WithField("accounts", len(profiles)).Warn("Not enough accounts to cluster")
		return ClusterResult{Outcome: insufficient("%d accounts with spend, need 2", len(profiles))}
	}

	k := c.config.K
	if k < 1 {
		k = DefaultClusterConfig().K
	}
	if k > len(profiles) {
		c.logger.WithFields(logger.Fields{
			"requested": k,
			"accounts":  len(profiles),
		}).Debug("Reducing cluster count to account count")
		k = len(profiles)
	}

	X := make([][]float64, len(profiles))
	for i, p := range profiles {
		X[i] = features(p)
	}
	var scaler ml.StandardScaler
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		return ClusterResult{Outcome: insufficient("scaling: %v", err)}
	}

	kmConfig := ml.DefaultKMeansConfig(k)
	kmConfig.Seed = c.config.Seed
	fit, err := ml.NewKMeans(kmConfig).Fit(scaled)
	if err != nil {
		c.logger.WithError(err).Warn("KMeans failed")
		return ClusterResult{Outcome: insufficient("kmeans: %v", err)}
	}

	summaries := summarize(profiles, fit.Labels, k)
	names := c.name(summaries, X)

	result := ClusterResult{
		Outcome:   ok(),
		K:         k,
		Members:   make(map[string][]AccountProfile, k),
		Summaries: make(map[string]ClusterSummary, k),
	}
	for _, s := range summaries {
		if s.Members == 0 {
			continue
		}
		name := names[s.label]
		s.ClusterSummary.Name = name
		s.ClusterSummary.Description = describe(name)
		result.Summaries[name] = s.ClusterSummary
		result.Order = append(result.Order, name)
	}
	for i, p := range profiles {
		p.Cluster = names[fit.Labels[i]]
		result.Members[p.Cluster] = append(result.Members[p.Cluster], p)
	}
	for _, members := range result.Members {
		sortByTotal(members)
	}
	return result
}

// Profiles computes the features of every account with positive spend,
// ordered by total descending
func Profiles(txs []models.Transaction) []AccountProfile {
	type acc struct {
		total   decimal.Decimal
		count   int
		monthly [13]float64
	}
	accounts := make(map[string]*acc)
	var order []string
	for _, tx := range aggregation.Expenses(txs) {
		name := strings.TrimSpace(tx.AccountLevel4)
		if name == "" {
			continue
		}
		a, seen := accounts[name]
		if !seen {
			a = &acc{total: decimal.Zero}
			accounts[name] = a
			order = append(order, name)
		}
		a.total = a.total.Add(tx.Value)
		a.count++
		a.monthly[tx.Month()] += tx.Value.InexactFloat64()
	}

	var out []AccountProfile
	for _, name := range order {
		a := accounts[name]
		if !a.total.IsPositive() || a.count == 0 {
			continue
		}
		out = append(out, AccountProfile{
			Account:   name,
			Total:     a.total,
			Frequency: a.count,
			Variation: variation(a.monthly[1:]),
		})
	}
	sortByTotal(out)
	return out
}

// variation is the sample standard deviation over the mean of the positive
// monthly sums, or 0 with fewer than two such months
func variation(monthly []float64) float64 {
	var positive []float64
	for _, v := range monthly {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) < 2 {
		return 0
	}
	mean := ml.Mean(positive)
	if mean == 0 {
		return 0
	}
	return ml.SampleStdDev(positive) / mean
}

func features(p AccountProfile) []float64 {
	return []float64{p.Total.InexactFloat64(), float64(p.Frequency), p.Variation}
}

type labeledSummary struct {
	ClusterSummary
	label int
}

func summarize(profiles []AccountProfile, labels []int, k int) []labeledSummary {
	out := make([]labeledSummary, k)
	for i := range out {
		out[i].label = i
	}
	for i, p := range profiles {
		s := &out[labels[i]]
		s.Members++
		s.MeanTotal += p.Total.InexactFloat64()
		s.MeanFrequency += float64(p.Frequency)
		s.MeanVariation += p.Variation
	}
	for i := range out {
		if n := float64(out[i].Members); n > 0 {
			out[i].MeanTotal /= n
			out[i].MeanFrequency /= n
			out[i].MeanVariation /= n
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MeanTotal > out[j].MeanTotal
	})
	return out
}

// name walks the clusters by mean total and gives each the first cascade name
// it matches that is still free. A cluster matches a rule when its mean
// feature exceeds the configured quantile of that feature across accounts.
func (c *AccountClusterer) name(summaries []labeledSummary, X [][]float64) map[int]string {
	q := c.config.Quantile
	if q <= 0 || q >= 1 {
		q = DefaultClusterConfig().Quantile
	}
	column := func(j int) []float64 {
		out := make([]float64, len(X))
		for i, row := range X {
			out[i] = row[j]
		}
		return out
	}
	totalCut := ml.Quantile(column(0), q)
	frequencyCut := ml.Quantile(column(1), q)
	variationCut := ml.Quantile(column(2), q)

	used := make(map[string]bool)
	names := make(map[int]string, len(summaries))
	for _, s := range summaries {
		if s.Members == 0 {
			continue
		}
		var matches []string
		if s.MeanVariation > variationCut {
			matches = append(matches, ClusterSporadic)
		}
		if s.MeanFrequency > frequencyCut {
			matches = append(matches, ClusterRecurrent)
		}
		if s.MeanTotal > totalCut {
			matches = append(matches, ClusterHighValue)
		}
		matches = append(matches, ClusterLowImpact)
		matches = append(matches, cascade...)

		name := ""
		for _, candidate := range matches {
			if !used[candidate] {
				name = candidate
				break
			}
		}
		if name == "" {
			name = fmt.Sprintf("Grupo %d", s.label+1)
		}
		used[name] = true
		names[s.label] = name
	}
	return names
}

func describe(name string) string {
	if d, ok := clusterDescriptions[name]; ok {
		return d
	}
	return "Grupo sem perfil predominante."
}

func sortByTotal(profiles []AccountProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Total.GreaterThan(profiles[j].Total)
	})
}

// MemberTable renders the accounts of one cluster
func MemberTable(name string, members []AccountProfile) *models.Table {
	table := models.NewTable(name,
		models.Column{Name: models.ColAccount, Kind: models.KindText},
		models.Column{Name: models.ColTotalYear, Kind: models.KindMoney},
		models.Column{Name: models.ColCountYear, Kind: models.KindInt},
		models.Column{Name: models.ColVariation, Kind: models.KindRatio},
	)
	for _, p := range members {
		table.AddRow(p.Account, p.Total, p.Frequency, p.Variation)
	}
	return table
}

// AssignmentTable renders every clustered account with its cluster name,
// following the cluster order
func AssignmentTable(result ClusterResult) *models.Table {
	table := models.NewTable("clusters",
		models.Column{Name: models.ColAccount, Kind: models.KindText},
		models.Column{Name: models.ColTotalYear, Kind: models.KindMoney},
		models.Column{Name: models.ColCountYear, Kind: models.KindInt},
		models.Column{Name: models.ColVariation, Kind: models.KindRatio},
		models.Column{Name: models.ColCluster, Kind: models.KindText},
	)
	for _, name := range result.Order {
		for _, p := range result.Members[name] {
			table.AddRow(p.Account, p.Total, p.Frequency, p.Variation, name)
		}
	}
	return table
}
