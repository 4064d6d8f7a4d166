package extract

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/models"
	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// Registered query names
const (
	QueryLedger = "base_despesas"
	QueryBudget = "orcamento"
	QueryUnits  = "unidades"
)

// Query is one entry of the named query registry
type Query struct {
	Title      string `mapstructure:"title" yaml:"title"`
	SQL        string `mapstructure:"sql" yaml:"sql"`
	Connection string `mapstructure:"connection" yaml:"connection"`
}

// DefaultQueries returns the registry used when the config file has none.
// Money columns are cast to text so the decimal parser keeps every digit.
func DefaultQueries() map[string]Query {
	return map[string]Query{
		QueryLedger: {
			Title:      "Base de despesas",
			Connection: "hub",
			SQL: `SELECT LCTREF::text, DATA, VALOR::text,
	COALESCE(FORNECEDOR, ''), COALESCE(PROJETO, ''), COALESCE(CC, ''),
	COALESCE(UNIDADE, ''), COALESCE(CODCONTA, ''), COALESCE(DESCRICAO_NIVEL4, '')
FROM despesas.base_despesas
WHERE ($1 = 0 OR EXTRACT(YEAR FROM DATA) = $1)`,
		},
		QueryBudget: {
			Title:      "Orçamento planejado",
			Connection: "hub",
			SQL: `SELECT CODCCUSTO::text, IDPERIODO::text, VALOR_ORCADO::text
FROM despesas.orcamento
WHERE ($1 = '' OR IDPERIODO::text = $1)`,
		},
		QueryUnits: {
			Title:      "Unidades de negócio",
			Connection: "hub",
			SQL: `SELECT DISTINCT UNIDADE FROM despesas.base_despesas
WHERE UNIDADE IS NOT NULL AND ($1 = 0 OR EXTRACT(YEAR FROM DATA) = $1)`,
		},
	}
}

// DefaultConnections maps connection names to the environment variable holding their DSN
func DefaultConnections() map[string]string {
	return map[string]string{"hub": "EXPENSE_DB_HUB_DSN"}
}

// Rows is the cursor surface the source reads from
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier runs SQL against one connection
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Close()
}

// Dialer opens a Querier for a DSN
type Dialer func(ctx context.Context, dsn string) (Querier, error)

type poolQuerier struct {
	pool *pgxpool.Pool
}

func (p *poolQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *poolQuerier) Close() {
	p.pool.Close()
}

// DialPool opens a pgx connection pool and checks it with a ping
func DialPool(ctx context.Context, dsn string) (Querier, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &poolQuerier{pool: pool}, nil
}

// PostgresConfig configures the warehouse source
type PostgresConfig struct {
	// Queries is the named query registry
	Queries map[string]Query
	// Connections maps connection names to the env var carrying the DSN
	Connections map[string]string
	// Timeout bounds each query, 0 for none
	Timeout time.Duration
	// Dial opens connections, DialPool when nil
	Dial Dialer
}

// PostgresSource reads the ledger and the budget through the query registry.
// Connections are opened lazily and shared between queries.
type PostgresSource struct {
	config PostgresConfig
	mu     sync.Mutex
	pools  map[string]Querier
	logger logger.Logger
}

// NewPostgresSource validates the registry and returns a source
func NewPostgresSource(config PostgresConfig) (*PostgresSource, error) {
	if len(config.Queries) == 0 {
		config.Queries = DefaultQueries()
	}
	if len(config.Connections) == 0 {
		config.Connections = DefaultConnections()
	}
	if config.Dial == nil {
		config.Dial = DialPool
	}
	for _, name := range []string{QueryLedger, QueryBudget} {
		q, ok := config.Queries[name]
		if !ok {
			return nil, errors.ConfigurationError(errors.CodeUnknownQuery, "queries", name, nil).
				WithSuggestion("register the query under queries in the config file")
		}
		if _, ok := config.Connections[q.Connection]; !ok {
			return nil, errors.ConfigurationError(errors.CodeUnknownConnection, "connections", q.Connection, nil).
				WithContext("query", name)
		}
	}
	return &PostgresSource{
		config: config,
		pools:  make(map[string]Querier),
		logger: logger.GetGlobalLogger().WithComponent("postgres_source"),
	}, nil
}

// Name identifies the source
func (s *PostgresSource) Name() string {
	return "postgres:" + s.config.Queries[QueryLedger].Connection
}

func (s *PostgresSource) connection(ctx context.Context, name string) (Querier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.pools[name]; ok {
		return q, nil
	}
	envVar, ok := s.config.Connections[name]
	if !ok {
		return nil, errors.ConfigurationError(errors.CodeUnknownConnection, "connections", name, nil)
	}
	dsn := strings.TrimSpace(os.Getenv(envVar))
	if dsn == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, envVar, "", nil).
			WithSuggestion("set " + envVar + " in the environment or the .env file")
	}
	q, err := s.config.Dial(ctx, dsn)
	if err != nil {
		return nil, errors.ExtractionError(errors.CodeConnectionFailed, name, err)
	}
	s.pools[name] = q
	s.logger.WithField("connection", name).Info("Connected to database")
	return q, nil
}

// run executes a registered query and hands every row to scan
func (s *PostgresSource) run(ctx context.Context, name string, scan func(Rows) error, args ...any) error {
	query, ok := s.config.Queries[name]
	if !ok {
		return errors.ConfigurationError(errors.CodeUnknownQuery, "queries", name, nil)
	}
	conn, err := s.connection(ctx, query.Connection)
	if err != nil {
		return err
	}
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := conn.Query(ctx, query.SQL, args...)
	if err != nil {
		return errors.ExtractionError(errors.CodeQueryFailed, name, err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		if err := scan(rows); err != nil {
			return errors.ExtractionError(errors.CodeQueryFailed, name, err).WithContext("row", count+1)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return errors.ExtractionError(errors.CodeQueryFailed, name, err)
	}

	s.logger.WithFields(logger.Fields{
		"query":    name,
		"title":    query.Title,
		"rows":     count,
		"duration": time.Since(start).String(),
	}).Info("Query completed")
	return nil
}

// Ledger runs the ledger query for the filter year and slices the rows
func (s *PostgresSource) Ledger(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	var txs []models.Transaction
	skipped := 0
	err := s.run(ctx, QueryLedger, func(rows Rows) error {
		var tx models.Transaction
		var value string
		if err := rows.Scan(&tx.ReferenceID, &tx.Date, &value, &tx.Supplier, &tx.Project,
			&tx.CostCenter, &tx.BusinessUnit, &tx.AccountCode, &tx.AccountLevel4); err != nil {
			return err
		}
		amount, err := models.ParseDecimalFromString(value)
		if err != nil {
			skipped++
			return nil
		}
		tx.Value = amount
		if tx.Validate() != nil {
			skipped++
			return nil
		}
		txs = append(txs, tx)
		return nil
	}, filter.Year)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.WithField("skipped", skipped).Warn("Ledger rows were rejected")
	}
	return filter.Apply(txs), nil
}

// Budget runs the budget query for period
func (s *PostgresSource) Budget(ctx context.Context, period string) ([]models.BudgetRecord, error) {
	var records []models.BudgetRecord
	err := s.run(ctx, QueryBudget, func(rows Rows) error {
		var rec models.BudgetRecord
		var value string
		if err := rows.Scan(&rec.CostCenterKey, &rec.PeriodID, &value); err != nil {
			return err
		}
		amount, err := models.ParseDecimalFromString(value)
		if err != nil {
			return err
		}
		rec.BudgetedValue = amount
		records = append(records, rec)
		return nil
	}, period)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Units lists the business units of year, through the units query when
// registered and through the ledger otherwise
func (s *PostgresSource) Units(ctx context.Context, year int) ([]string, error) {
	if _, ok := s.config.Queries[QueryUnits]; !ok {
		txs, err := s.Ledger(ctx, Filter{Year: year})
		if err != nil {
			return nil, err
		}
		return aggregation.BusinessUnits(txs), nil
	}

	seen := make(map[string]bool)
	err := s.run(ctx, QueryUnits, func(rows Rows) error {
		var unit string
		if err := rows.Scan(&unit); err != nil {
			return err
		}
		if u := strings.TrimSpace(unit); u != "" {
			seen[u] = true
		}
		return nil
	}, year)
	if err != nil {
		return nil, err
	}
	if len(seen) == 0 {
		return nil, errors.ExtractionError(errors.CodeEmptyExtraction, s.Name(), nil)
	}
	units := make([]string, 0, len(seen))
	for u := range seen {
		units = append(units, u)
	}
	sort.Strings(units)
	return units, nil
}

// Close closes every open connection
func (s *PostgresSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, q := range s.pools {
		q.Close()
		delete(s.pools, name)
	}
	return nil
}
