package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/repository"
)

// RecallOptions bounds a semantic search over approved memories.
type RecallOptions struct {
	Limit    int
	MinScore float64
	Category string
	UserID   string
}

// Recall performs similarity search over approved records only. Merged
// and pending records are never returned. An empty result is not an
// error.
func (u *UseCase) Recall(ctx context.Context, query string, opts RecallOptions) ([]*model.ScoredMemory, error) {
	if opts.Limit <= 0 {
		return nil, goerr.Wrap(model.ErrValidation, "limit must be positive",
			goerr.V("limit", opts.Limit))
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	embedding, err := u.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	results, err := u.store.Search(ctx, u.approvedCollection, embedding, repository.SearchOptions{
		Limit:    opts.Limit,
		MinScore: opts.MinScore,
		Filter: repository.Filter{
			Status:   model.StatusApproved,
			Category: opts.Category,
			UserID:   opts.UserID,
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories")
	}

	// Backends return highest score first; re-sort for the tie rule:
	// equal scores rank the more recent record first.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}
