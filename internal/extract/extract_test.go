package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-analyzer/internal/models"
	"expense-analyzer/internal/parsers"
	"expense-analyzer/pkg/errors"
)

const ledgerCSV = "LCTREF;DATA;VALOR;FORNECEDOR;PROJETO;CC;UNIDADE;CODCONTA;DESCRICAO_NIVEL4\n" +
	"1;2024-01-10;100,00;ACME;P1;CC001101;SP - CENTRO;4.1;Serviços\n" +
	"2;2024-02-10;200,00;ACME;P1;CC001101;SP - CENTRO;4.1;Serviços\n" +
	"3;2024-02-11;50,00;BETA;P2;CC001102;SP - NORTE;4.2;Materiais\n" +
	"4;2023-12-30;75,00;BETA;P2;CC001102;SP - NORTE;4.2;Materiais\n"

const budgetCSV = "CODCCUSTO;IDPERIODO;VALOR_ORCADO\n" +
	"CC001101;2024;1200,00\n" +
	"CC001102;2023;600,00\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestFilterMatch(t *testing.T) {
	tx := models.Transaction{ReferenceID: "1", Date: date(2024, 3, 15), BusinessUnit: " SP - CENTRO "}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"same year", Filter{Year: 2024}, true},
		{"other year", Filter{Year: 2023}, false},
		{"unit listed", Filter{Units: []string{"SP - NORTE", "SP - CENTRO"}}, true},
		{"unit not listed", Filter{Units: []string{"SP - NORTE"}}, false},
		{"inside range", Filter{From: date(2024, 3, 1), To: date(2024, 3, 31)}, true},
		{"before range", Filter{From: date(2024, 4, 1)}, false},
		{"after range", Filter{To: date(2024, 2, 29)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(&tx))
		})
	}
}

func TestCSVSourceLedgerAndBudget(t *testing.T) {
	dir := t.TempDir()
	ledger := writeFile(t, dir, "ledger.csv", ledgerCSV)
	budget := writeFile(t, dir, "budget.csv", budgetCSV)

	src, err := NewCSVSource(ledger, budget, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	txs, err := src.Ledger(ctx, Filter{Year: 2024})
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	txs, err = src.Ledger(ctx, Filter{Year: 2024, Units: []string{"SP - NORTE"}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "3", txs[0].ReferenceID)

	records, err := src.Budget(ctx, "2024")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].BudgetedValue.Equal(decimal.NewFromInt(1200)))

	units, err := src.Units(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, []string{"SP - CENTRO", "SP - NORTE"}, units)
}

func TestCSVSourceWithoutBudget(t *testing.T) {
	dir := t.TempDir()
	src, err := NewCSVSource(writeFile(t, dir, "ledger.csv", ledgerCSV), "", nil, nil, nil)
	require.NoError(t, err)

	records, err := src.Budget(context.Background(), "2024")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCSVSourceMissingFile(t *testing.T) {
	src, err := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), "", nil, nil, nil)
	require.NoError(t, err)

	_, err = src.Ledger(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFile))
}

func TestCacheReusesParsedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ledger.csv", ledgerCSV)
	cache := NewCache(nil)

	src, err := NewCSVSource(path, "", nil, nil, cache)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := src.Ledger(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, first, 4)
	assert.Equal(t, 1, cache.Len())

	// a rewritten file is not seen until the entry is invalidated
	writeFile(t, dir, "ledger.csv", ledgerCSV+"5;2024-03-01;10,00;GAMA;P3;CC001101;SP - CENTRO;4.1;Serviços\n")
	cached, err := src.Ledger(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, cached, 4)

	cache.Invalidate(path)
	assert.Equal(t, 0, cache.Len())
	reloaded, err := src.Ledger(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, reloaded, 5)

	cache.Reset()
	assert.Equal(t, 0, cache.Len())
}

func TestCacheSeparatesColumnLayouts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ledger.csv", ledgerCSV)
	cache := NewCache(nil)
	ctx := context.Background()

	standard, err := NewCSVSource(path, "", nil, nil, cache)
	require.NoError(t, err)
	// same file, but the supplier column is read from PROJETO
	swapped := parsers.DefaultLedgerConfig()
	swapped.Columns[parsers.FieldSupplier] = "PROJETO"
	swapped.Aliases = nil
	other, err := NewCSVSource(path, "", swapped, nil, cache)
	require.NoError(t, err)

	first, err := standard.Ledger(ctx, Filter{})
	require.NoError(t, err)
	second, err := other.Ledger(ctx, Filter{})
	require.NoError(t, err)

	assert.Equal(t, 2, cache.Len())
	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first[0].Supplier, second[0].Supplier)
	assert.Equal(t, first[0].Project, second[0].Supplier)

	again, err := standard.Ledger(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 2, cache.Len())

	cache.Invalidate(path)
	assert.Equal(t, 0, cache.Len())
}

func TestLedgerConfigFingerprint(t *testing.T) {
	a := parsers.DefaultLedgerConfig()
	b := parsers.DefaultLedgerConfig()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Delimiter = ','
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := parsers.DefaultLedgerConfig()
	c.Aliases[parsers.FieldValue] = append(c.Aliases[parsers.FieldValue], "VLR")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	cache := NewCache(nil)
	calls := 0
	load := func(context.Context) ([]models.Transaction, error) {
		calls++
		return nil, fmt.Errorf("boom")
	}

	key := CacheKey{Path: "x"}
	_, err := cache.Get(context.Background(), key, load)
	require.Error(t, err)
	_, err = cache.Get(context.Background(), key, load)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, cache.Len())
}

type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d columns, %d destinations", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) Close()     {}

type fakeQuerier struct {
	results map[string][][]any
	calls   []string
	args    [][]any
	closed  bool
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (Rows, error) {
	q.calls = append(q.calls, sql)
	q.args = append(q.args, args)
	data, ok := q.results[sql]
	if !ok {
		return nil, fmt.Errorf("relation does not exist")
	}
	return &fakeRows{data: data}, nil
}

func (q *fakeQuerier) Close() { q.closed = true }

func newFakeSource(t *testing.T, q *fakeQuerier) *PostgresSource {
	t.Helper()
	t.Setenv("EXPENSE_DB_HUB_DSN", "postgres://user@localhost/hub")
	dials := 0
	src, err := NewPostgresSource(PostgresConfig{
		Dial: func(_ context.Context, dsn string) (Querier, error) {
			dials++
			require.Equal(t, "postgres://user@localhost/hub", dsn)
			require.Equal(t, 1, dials, "connection must be reused")
			return q, nil
		},
	})
	require.NoError(t, err)
	return src
}

func TestPostgresSourceLedger(t *testing.T) {
	queries := DefaultQueries()
	q := &fakeQuerier{results: map[string][][]any{
		queries[QueryLedger].SQL: {
			{"1", date(2024, 1, 10), "100.50", "ACME", "P1", "CC001101", "SP - CENTRO", "4.1", "Serviços"},
			{"2", date(2024, 1, 11), "abc", "ACME", "P1", "CC001101", "SP - CENTRO", "4.1", "Serviços"},
			{"3", date(2024, 1, 12), "10", "BETA", "P2", "CC001102", "SP - NORTE", "4.2", "Materiais"},
		},
		queries[QueryBudget].SQL: {
			{"CC001101", "2024", "1200.00"},
		},
	}}
	src := newFakeSource(t, q)
	ctx := context.Background()

	txs, err := src.Ledger(ctx, Filter{Year: 2024, Units: []string{"SP - CENTRO"}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "1", txs[0].ReferenceID)
	assert.True(t, txs[0].Value.Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, []any{2024}, q.args[0])

	records, err := src.Budget(ctx, "2024")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CC001101", records[0].CostCenterKey)
	assert.Equal(t, []any{"2024"}, q.args[1])

	require.NoError(t, src.Close())
	assert.True(t, q.closed)
}

func TestPostgresSourceUnits(t *testing.T) {
	q := &fakeQuerier{results: map[string][][]any{
		DefaultQueries()[QueryUnits].SQL: {{"SP - NORTE"}, {" SP - CENTRO "}, {""}},
	}}
	src := newFakeSource(t, q)

	units, err := src.Units(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, []string{"SP - CENTRO", "SP - NORTE"}, units)
}

func TestPostgresSourceQueryFailure(t *testing.T) {
	src := newFakeSource(t, &fakeQuerier{results: map[string][][]any{}})

	_, err := src.Ledger(context.Background(), Filter{Year: 2024})
	require.Error(t, err)
	ae, ok := errors.AsAnalyzerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeQueryFailed, ae.Code)
}

func TestPostgresSourceMissingDSN(t *testing.T) {
	t.Setenv("EXPENSE_DB_HUB_DSN", "")
	src, err := NewPostgresSource(PostgresConfig{
		Dial: func(context.Context, string) (Querier, error) {
			t.Fatal("dial must not run without a DSN")
			return nil, nil
		},
	})
	require.NoError(t, err)

	_, err = src.Budget(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNewPostgresSourceRejectsUnknownConnection(t *testing.T) {
	queries := DefaultQueries()
	q := queries[QueryBudget]
	q.Connection = "legacy"
	queries[QueryBudget] = q

	_, err := NewPostgresSource(PostgresConfig{Queries: queries})
	require.Error(t, err)
	ae, ok := errors.AsAnalyzerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnknownConnection, ae.Code)
}
