// Package source defines the retrieval connector contract and the
// request-scoped fan-out/fan-in gatherer that feeds the fusion engine.
//
// Each connector is an independent read-only retrieval backend. Connectors
// fail independently: an error or timeout in one never blocks the others
// and never fails the overall gather. The gatherer returns a finished
// snapshot — connectors return values, nothing mutates shared state — so
// the downstream fusion call needs no locks and its output cannot depend
// on which connector finished first.
package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/fusion"
)

// DefaultTimeout is the per-connector search deadline.
const DefaultTimeout = 5 * time.Second

// Query is a single retrieval request fanned out to all connectors.
type Query struct {
	Text      string
	SessionID uuid.UUID // used by the conversation connector; Nil otherwise
	OwnerID   string    // scopes owner-partitioned sources; empty uses the connector's default
	Limit     int       // per-source result cap
}

// Connector is a single retrieval backend.
//
// Search returns candidates scored on the source's local scale, normalized
// to [0,1] before returning. Implementations must respect ctx cancellation.
type Connector interface {
	Name() fusion.Source
	Search(ctx context.Context, q Query) ([]fusion.Candidate, error)
}

// Gatherer fans a query out to all connectors concurrently and collects
// the results into an immutable snapshot.
//
// Gatherer is stateless between calls and safe for concurrent use.
type Gatherer struct {
	connectors []Connector
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGatherer creates a Gatherer. timeout bounds each connector
// independently; zero or negative uses DefaultTimeout.
func NewGatherer(connectors []Connector, timeout time.Duration, logger *slog.Logger) *Gatherer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatherer{connectors: connectors, timeout: timeout, logger: logger}
}

// Gather runs each connector in its own goroutine under an independent
// per-source timeout and returns the collected snapshot after every
// goroutine has finished.
//
// A connector that errors or times out contributes an empty list for its
// source (degraded-but-available) with a warn log; it never aborts the
// request. The returned map is a finished value, never mutated after
// return.
func (g *Gatherer) Gather(ctx context.Context, q Query) map[fusion.Source][]fusion.Candidate {
	results := make([]([]fusion.Candidate), len(g.connectors))

	var wg sync.WaitGroup
	for i, c := range g.connectors {
		wg.Add(1)
		go func() {
			defer wg.Done()

			searchCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			start := time.Now()
			candidates, err := c.Search(searchCtx, q)
			if err != nil {
				g.logger.Warn("source search failed, continuing without it",
					"source", c.Name(),
					"error", err,
					"elapsed", time.Since(start),
				)
				return
			}
			results[i] = candidates
		}()
	}
	wg.Wait()

	snapshot := make(map[fusion.Source][]fusion.Candidate, len(g.connectors))
	for i, c := range g.connectors {
		if len(results[i]) > 0 {
			snapshot[c.Name()] = results[i]
		}
	}
	return snapshot
}
