package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/repository"
	"github.com/magi-stack/rin-memory/pkg/usecase/memory"
)

// fixtureEmbedder returns hand-built vectors per text so tests control
// similarity scores exactly.
type fixtureEmbedder struct {
	vectors map[string][]float32
}

func (e *fixtureEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return nil, goerr.New("no fixture vector", goerr.V("text", text))
}

func (e *fixtureEmbedder) Dimension() int {
	return 3
}

type failEmbedder struct{}

func (e *failEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "embedding service is down")
}

func (e *failEmbedder) Dimension() int {
	return 3
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewChromem(), &fixtureEmbedder{})

	_, err := uc.Store(ctx, "", model.Metadata{UserID: "rin"})
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrValidation)).Equal(true)

	_, err = uc.Store(ctx, "   \n\t ", model.Metadata{UserID: "rin"})
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrValidation)).Equal(true)
}

func TestStorePending(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChromem()
	embedder := &fixtureEmbedder{vectors: map[string][]float32{
		"prefers dark mode": {1, 0, 0},
	}}
	uc := memory.New(store, embedder)
	gt.NoError(t, uc.Init(ctx))

	id, err := uc.Store(ctx, "prefers dark mode", model.Metadata{
		UserID:   "rin",
		Category: "preference",
		Source:   "conv-1",
	})
	gt.NoError(t, err)

	mem, err := store.Get(ctx, repository.DefaultPendingCollection, id)
	gt.NoError(t, err)
	gt.Equal(t, mem.Status, model.StatusPending)
	gt.Equal(t, mem.Metadata.ContentHash, model.ContentHash("prefers dark mode"))
	gt.V(t, mem.ApprovedAt).Nil()

	// Nothing lands in the approved collection.
	approved, err := store.List(ctx, repository.DefaultApprovedCollection, repository.Filter{})
	gt.NoError(t, err)
	gt.Equal(t, len(approved), 0)
}

func TestStoreAutoApprove(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChromem()
	embedder := &fixtureEmbedder{vectors: map[string][]float32{
		"lives in Tokyo": {0, 1, 0},
	}}
	uc := memory.New(store, embedder, memory.WithAutoApprove(true))
	gt.NoError(t, uc.Init(ctx))

	id, err := uc.Store(ctx, "lives in Tokyo", model.Metadata{UserID: "rin"})
	gt.NoError(t, err)

	mem, err := store.Get(ctx, repository.DefaultApprovedCollection, id)
	gt.NoError(t, err)
	gt.Equal(t, mem.Status, model.StatusApproved)
	gt.V(t, mem.ApprovedAt).NotNil()

	pending, err := store.List(ctx, repository.DefaultPendingCollection, repository.Filter{})
	gt.NoError(t, err)
	gt.Equal(t, len(pending), 0)
}

func TestStoreEmbedderFailure(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChromem()
	uc := memory.New(store, &failEmbedder{})
	gt.NoError(t, uc.Init(ctx))

	_, err := uc.Store(ctx, "prefers dark mode", model.Metadata{UserID: "rin"})
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrEmbeddingUnavailable)).Equal(true)

	// Hard failure: nothing is persisted anywhere.
	for _, collection := range []string{repository.DefaultPendingCollection, repository.DefaultApprovedCollection} {
		records, err := store.List(ctx, collection, repository.Filter{})
		gt.NoError(t, err)
		gt.Equal(t, len(records), 0)
	}
}

func TestRecall(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChromem()
	embedder := &fixtureEmbedder{vectors: map[string][]float32{
		"query":             {1, 0, 0},
		"exact match":       {1, 0, 0},
		"close match":       {0.8, 0.6, 0},
		"unrelated":         {0, 1, 0},
		"pending candidate": {1, 0, 0},
	}}
	uc := memory.New(store, embedder, memory.WithAutoApprove(true))
	gt.NoError(t, uc.Init(ctx))

	for _, content := range []string{"exact match", "close match", "unrelated"} {
		_, err := uc.Store(ctx, content, model.Metadata{UserID: "rin"})
		gt.NoError(t, err)
	}

	// A pending record with a perfect score must never be recalled.
	pendingUC := memory.New(store, embedder)
	_, err := pendingUC.Store(ctx, "pending candidate", model.Metadata{UserID: "rin"})
	gt.NoError(t, err)

	results, err := uc.Recall(ctx, "query", memory.RecallOptions{Limit: 10, MinScore: 0.5})
	gt.NoError(t, err)
	gt.Equal(t, len(results), 2)
	gt.Equal(t, results[0].Memory.Content, "exact match")
	gt.Equal(t, results[1].Memory.Content, "close match")
	gt.V(t, results[0].Score > results[1].Score).Equal(true)

	// Limit trims after ordering.
	results, err = uc.Recall(ctx, "query", memory.RecallOptions{Limit: 1, MinScore: 0.5})
	gt.NoError(t, err)
	gt.Equal(t, len(results), 1)
	gt.Equal(t, results[0].Memory.Content, "exact match")

	// No match above the floor is an empty result, not an error.
	results, err = uc.Recall(ctx, "query", memory.RecallOptions{Limit: 10, MinScore: 1.1})
	gt.NoError(t, err)
	gt.Equal(t, len(results), 0)
}

func TestRecallTieBreak(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChromem()
	embedder := &fixtureEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
	}}
	uc := memory.New(store, embedder)
	gt.NoError(t, uc.Init(ctx))

	// Two approved records share one embedding so their scores are
	// identical; the more recent one must rank first.
	base := time.Now().Add(-time.Hour)
	older := &model.Memory{
		ID:         model.NewMemoryID(),
		Content:    "older memory",
		Embedding:  []float32{1, 0, 0},
		Metadata:   model.Metadata{UserID: "rin"},
		Status:     model.StatusApproved,
		CreatedAt:  base,
		ApprovedAt: &base,
	}
	newerAt := base.Add(time.Hour)
	newer := &model.Memory{
		ID:         model.NewMemoryID(),
		Content:    "newer memory",
		Embedding:  []float32{1, 0, 0},
		Metadata:   model.Metadata{UserID: "rin"},
		Status:     model.StatusApproved,
		CreatedAt:  newerAt,
		ApprovedAt: &newerAt,
	}
	for _, mem := range []*model.Memory{older, newer} {
		gt.NoError(t, store.Upsert(ctx, repository.DefaultApprovedCollection, mem))
	}

	results, err := uc.Recall(ctx, "query", memory.RecallOptions{Limit: 10})
	gt.NoError(t, err)
	gt.Equal(t, len(results), 2)
	gt.Equal(t, results[0].Score, results[1].Score)
	gt.Equal(t, results[0].Memory.ID, newer.ID)
	gt.Equal(t, results[1].Memory.ID, older.ID)
}

func TestRecallValidation(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewChromem(), &fixtureEmbedder{})

	_, err := uc.Recall(ctx, "query", memory.RecallOptions{Limit: 0})
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrValidation)).Equal(true)
}

func TestRecallUserIsolation(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChromem()
	embedder := &fixtureEmbedder{vectors: map[string][]float32{
		"query":        {1, 0, 0},
		"rin memory":   {1, 0, 0},
		"asuka memory": {1, 0, 0},
	}}
	uc := memory.New(store, embedder, memory.WithAutoApprove(true))
	gt.NoError(t, uc.Init(ctx))

	_, err := uc.Store(ctx, "rin memory", model.Metadata{UserID: "rin"})
	gt.NoError(t, err)
	_, err = uc.Store(ctx, "asuka memory", model.Metadata{UserID: "asuka"})
	gt.NoError(t, err)

	results, err := uc.Recall(ctx, "query", memory.RecallOptions{Limit: 10, UserID: "rin"})
	gt.NoError(t, err)
	gt.Equal(t, len(results), 1)
	gt.Equal(t, results[0].Memory.Metadata.UserID, "rin")
}

func TestExistsByHash(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChromem()
	embedder := &fixtureEmbedder{vectors: map[string][]float32{
		"prefers dark mode": {1, 0, 0},
	}}
	uc := memory.New(store, embedder)
	gt.NoError(t, uc.Init(ctx))

	_, err := uc.Store(ctx, "prefers dark mode", model.Metadata{UserID: "rin"})
	gt.NoError(t, err)

	exists, err := uc.ExistsByHash(ctx, model.ContentHash("prefers dark mode"))
	gt.NoError(t, err)
	gt.Equal(t, exists, true)

	exists, err = uc.ExistsByHash(ctx, model.ContentHash("something else"))
	gt.NoError(t, err)
	gt.Equal(t, exists, false)
}
