package collector

import (
	"context"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// DefaultTimeout bounds a single upstream HTTP call.
const DefaultTimeout = 10 * time.Second

// Config holds collector configuration
type Config struct {
	Enabled bool
	APIKey  string
	BaseURL string // Overrides the provider endpoint; used by tests and proxies
	Timeout time.Duration
	Extra   map[string]any
}

// Collector fetches opaque provider payloads. It never parses them beyond
// what is needed to classify transport failures.
type Collector interface {
	// Metadata
	Name() string

	// Lifecycle
	Init(cfg Config) error

	// Data fetching
	FetchQuote(ctx context.Context, symbol string) (core.RawPayload, error)
	FetchHistory(ctx context.Context, symbol string, lookback int) (core.RawPayload, error)
}

// Searcher is implemented by collectors that can look symbols up by free text
type Searcher interface {
	Search(ctx context.Context, query string) (core.RawPayload, error)
}
