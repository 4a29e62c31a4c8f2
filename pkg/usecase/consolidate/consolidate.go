package consolidate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/repository"
	"github.com/magi-stack/rin-memory/pkg/utils/logging"
)

// neighborLimit caps how many candidates one record is compared against
// in a single pass.
const neighborLimit = 64

// Engine periodically merges near-duplicate approved memories. The
// earliest record of a duplicate cluster stays canonical; later records
// are marked merged and chain their provenance into it.
type Engine struct {
	store              repository.VectorStore
	approvedCollection string
	threshold          float64
	interval           time.Duration
	leaseTTL           time.Duration

	lease  runLease
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Result summarizes one consolidation pass.
type Result struct {
	Scanned    int
	Merged     int
	Canonicals int
}

// Option is a functional option for Engine
type Option func(*Engine)

// WithCollection overrides the approved collection name.
func WithCollection(name string) Option {
	return func(e *Engine) {
		e.approvedCollection = name
	}
}

// WithThreshold sets the minimum similarity for two records to merge.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.threshold = threshold
	}
}

// WithInterval sets the scheduling period for background runs.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithLeaseTTL bounds how long a run may hold the exclusion lease.
func WithLeaseTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.leaseTTL = d
	}
}

// New creates a consolidation Engine.
func New(store repository.VectorStore, opts ...Option) *Engine {
	e := &Engine{
		store:              store,
		approvedCollection: repository.DefaultApprovedCollection,
		threshold:          0.9,
		interval:           time.Hour,
		leaseTTL:           30 * time.Minute,
		stopCh:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start launches the background worker. A tick that fires while a run
// is still active is skipped outright, not queued.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		logger := logging.From(ctx)
		logger.Info("consolidation worker started", "interval", e.interval)

		for {
			select {
			case <-ticker.C:
				result, err := e.RunOnce(ctx)
				switch {
				case errors.Is(err, model.ErrConsolidationBusy):
					logger.Debug("consolidation run skipped, previous run still active")
				case err != nil:
					// A failed run is never fatal; the next tick retries.
					logger.Warn("consolidation run failed", "error", err)
				default:
					logger.Info("consolidation run finished",
						"scanned", result.Scanned, "merged", result.Merged, "canonicals", result.Canonicals)
				}
			case <-e.stopCh:
				logger.Info("consolidation worker stopped")
				return
			}
		}
	}()
}

// Stop halts the background worker and waits for it to exit. An
// in-flight run is not cancelled.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// RunOnce executes one consolidation pass under the run lease. It fails
// with model.ErrConsolidationBusy when a run is already active.
func (e *Engine) RunOnce(ctx context.Context) (*Result, error) {
	token, ok := e.lease.TryAcquire(e.leaseTTL)
	if !ok {
		return nil, goerr.Wrap(model.ErrConsolidationBusy, "skipping consolidation run")
	}
	defer e.lease.Release(token)

	// Ascending creation order: the earliest record of a cluster is
	// always visited first and becomes the merge target, never the
	// reverse, so merges cannot cascade.
	records, err := e.store.List(ctx, e.approvedCollection, repository.Filter{
		Status: model.StatusApproved,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list approved memories")
	}

	result := &Result{Scanned: len(records)}
	visited := make(map[model.MemoryID]bool, len(records))

	for _, canonical := range records {
		if visited[canonical.ID] {
			continue
		}
		visited[canonical.ID] = true

		merged, err := e.absorbNeighbors(ctx, canonical, visited)
		if err != nil {
			return nil, err
		}
		if merged > 0 {
			result.Merged += merged
			result.Canonicals++
		}
	}

	return result, nil
}

// absorbNeighbors merges every unvisited approved record whose
// similarity to canonical clears the threshold. It returns how many
// records were absorbed.
func (e *Engine) absorbNeighbors(ctx context.Context, canonical *model.Memory, visited map[model.MemoryID]bool) (int, error) {
	neighbors, err := e.store.Search(ctx, e.approvedCollection, canonical.Embedding, repository.SearchOptions{
		Limit:    neighborLimit,
		MinScore: e.threshold,
		Filter:   repository.Filter{Status: model.StatusApproved},
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to search neighbors", goerr.V("id", canonical.ID))
	}

	merged := 0
	for _, hit := range neighbors {
		m := hit.Memory
		if m.ID == canonical.ID || visited[m.ID] {
			continue
		}
		visited[m.ID] = true

		if !m.Status.CanTransition(model.StatusMerged) {
			continue
		}

		// The absorbed record points forward at its canonical; the
		// canonical accumulates the absorbed IDs plus anything the
		// absorbed record had itself absorbed in earlier runs.
		// Canonical first: a crash after this upsert leaves the record
		// still approved, so the next run re-absorbs it, and the dedupe
		// below keeps its provenance entry from doubling.
		canonical.Provenance = appendProvenance(canonical.Provenance, m.ID)
		canonical.Provenance = appendProvenance(canonical.Provenance, m.Provenance...)
		if err := e.store.Upsert(ctx, e.approvedCollection, canonical); err != nil {
			return merged, goerr.Wrap(err, "failed to update canonical memory", goerr.V("id", canonical.ID))
		}

		m.Status = model.StatusMerged
		m.MergedInto = canonical.ID
		if err := e.store.Upsert(ctx, e.approvedCollection, m); err != nil {
			return merged, goerr.Wrap(err, "failed to mark memory merged", goerr.V("id", m.ID))
		}

		logging.From(ctx).Info("merged memory",
			"id", m.ID, "into", canonical.ID, "score", hit.Score)
		merged++
	}

	return merged, nil
}

// appendProvenance appends IDs that are not already recorded.
func appendProvenance(prov []model.MemoryID, ids ...model.MemoryID) []model.MemoryID {
	for _, id := range ids {
		seen := false
		for _, p := range prov {
			if p == id {
				seen = true
				break
			}
		}
		if !seen {
			prov = append(prov, id)
		}
	}
	return prov
}
