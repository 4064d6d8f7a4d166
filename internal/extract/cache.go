package extract

import (
	"context"
	"sync"
	"time"

	"expense-analyzer/internal/models"
	"expense-analyzer/pkg/logger"
)

// CacheKey identifies one parse of a ledger file. The same path read with
// another column layout is a different entry.
type CacheKey struct {
	Path   string
	Config string
}

type cacheEntry struct {
	transactions []models.Transaction
	loadedAt     time.Time
}

// Cache keeps fully parsed ledger files in memory so repeated loads of the
// same file and layout only slice the rows. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]cacheEntry
	logger  logger.Logger
}

// NewCache creates an empty cache
func NewCache(log logger.Logger) *Cache {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Cache{
		entries: make(map[CacheKey]cacheEntry),
		logger:  log.WithComponent("ledger_cache"),
	}
}

// Get returns the cached rows of key, calling load on a miss
func (c *Cache) Get(ctx context.Context, key CacheKey, load func(context.Context) ([]models.Transaction, error)) ([]models.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.logger.WithFields(logger.Fields{
			"path":      key.Path,
			"rows":      len(entry.transactions),
			"loaded_at": entry.loadedAt.Format(time.RFC3339),
		}).Debug("Using cached ledger")
		return entry.transactions, nil
	}

	start := time.Now()
	txs, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.entries[key] = cacheEntry{transactions: txs, loadedAt: time.Now()}
	c.logger.WithFields(logger.Fields{
		"path":     key.Path,
		"rows":     len(txs),
		"entries":  len(c.entries),
		"duration": time.Since(start).String(),
	}).Info("Ledger loaded and cached")
	return txs, nil
}

// Invalidate drops every cached parse of path
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.Path == path {
			delete(c.entries, key)
		}
	}
}

// Reset drops every cached file
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]cacheEntry)
}

// Len returns the number of cached parses
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
