package consolidate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/repository"
	"github.com/magi-stack/rin-memory/pkg/usecase/consolidate"
)

func newStore(t *testing.T) repository.VectorStore {
	t.Helper()
	store := repository.NewChromem()
	gt.NoError(t, store.EnsureCollection(context.Background(), repository.DefaultApprovedCollection, 3))
	return store
}

func seedApproved(t *testing.T, store repository.VectorStore, content string, embedding []float32, createdAt time.Time) *model.Memory {
	t.Helper()
	approvedAt := createdAt
	mem := &model.Memory{
		ID:         model.NewMemoryID(),
		Content:    content,
		Embedding:  embedding,
		Metadata:   model.Metadata{UserID: "rin", ContentHash: model.ContentHash(content)},
		Status:     model.StatusApproved,
		CreatedAt:  createdAt,
		ApprovedAt: &approvedAt,
	}
	gt.NoError(t, store.Upsert(context.Background(), repository.DefaultApprovedCollection, mem))
	return mem
}

func TestRunOnceMergesNearDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Now().Add(-time.Hour)

	// a and b are near-duplicates; c is unrelated.
	a := seedApproved(t, store, "prefers dark mode", []float32{1, 0, 0}, base)
	b := seedApproved(t, store, "likes dark themes", []float32{0.96, 0.28, 0}, base.Add(time.Minute))
	c := seedApproved(t, store, "lives in Tokyo", []float32{0, 1, 0}, base.Add(2*time.Minute))

	engine := consolidate.New(store, consolidate.WithThreshold(0.9))

	result, err := engine.RunOnce(ctx)
	gt.NoError(t, err)
	gt.Equal(t, result.Scanned, 3)
	gt.Equal(t, result.Merged, 1)
	gt.Equal(t, result.Canonicals, 1)

	// The earliest record stays canonical and records what it absorbed.
	gotA, err := store.Get(ctx, repository.DefaultApprovedCollection, a.ID)
	gt.NoError(t, err)
	gt.Equal(t, gotA.Status, model.StatusApproved)
	gt.Equal(t, gotA.Provenance, []model.MemoryID{b.ID})

	gotB, err := store.Get(ctx, repository.DefaultApprovedCollection, b.ID)
	gt.NoError(t, err)
	gt.Equal(t, gotB.Status, model.StatusMerged)
	gt.Equal(t, gotB.MergedInto, a.ID)

	gotC, err := store.Get(ctx, repository.DefaultApprovedCollection, c.ID)
	gt.NoError(t, err)
	gt.Equal(t, gotC.Status, model.StatusApproved)
	gt.Equal(t, len(gotC.Provenance), 0)
}

func TestRunOnceChainsProvenance(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Now().Add(-time.Hour)

	absorbed := model.NewMemoryID()

	a := seedApproved(t, store, "prefers dark mode", []float32{1, 0, 0}, base)

	// b already absorbed another record in an earlier run.
	b := seedApproved(t, store, "likes dark themes", []float32{0.96, 0.28, 0}, base.Add(time.Minute))
	b.Provenance = []model.MemoryID{absorbed}
	gt.NoError(t, store.Upsert(ctx, repository.DefaultApprovedCollection, b))

	engine := consolidate.New(store, consolidate.WithThreshold(0.9))

	_, err := engine.RunOnce(ctx)
	gt.NoError(t, err)

	gotA, err := store.Get(ctx, repository.DefaultApprovedCollection, a.ID)
	gt.NoError(t, err)
	gt.Equal(t, gotA.Provenance, []model.MemoryID{b.ID, absorbed})
}

func TestRunOnceIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Now().Add(-time.Hour)

	seedApproved(t, store, "prefers dark mode", []float32{1, 0, 0}, base)
	seedApproved(t, store, "likes dark themes", []float32{0.96, 0.28, 0}, base.Add(time.Minute))

	engine := consolidate.New(store, consolidate.WithThreshold(0.9))

	first, err := engine.RunOnce(ctx)
	gt.NoError(t, err)
	gt.Equal(t, first.Merged, 1)

	// Merged records are out of scope for later passes.
	second, err := engine.RunOnce(ctx)
	gt.NoError(t, err)
	gt.Equal(t, second.Scanned, 1)
	gt.Equal(t, second.Merged, 0)
}

// mergeFailStore fails the write that marks a record merged, once,
// simulating a crash between the canonical update and the merge mark.
type mergeFailStore struct {
	repository.VectorStore
	failID model.MemoryID
	failed bool
}

func (s *mergeFailStore) Upsert(ctx context.Context, collection string, mem *model.Memory) error {
	if !s.failed && mem.ID == s.failID && mem.Status == model.StatusMerged {
		s.failed = true
		return model.ErrStoreUnavailable
	}
	return s.VectorStore.Upsert(ctx, collection, mem)
}

func TestRunOnceRecoversInterruptedMerge(t *testing.T) {
	ctx := context.Background()
	inner := newStore(t)
	base := time.Now().Add(-time.Hour)

	a := seedApproved(t, inner, "prefers dark mode", []float32{1, 0, 0}, base)
	b := seedApproved(t, inner, "likes dark themes", []float32{0.96, 0.28, 0}, base.Add(time.Minute))

	store := &mergeFailStore{VectorStore: inner, failID: b.ID}
	engine := consolidate.New(store, consolidate.WithThreshold(0.9))

	// The interrupted run persisted the canonical's provenance but left
	// the absorbed record approved.
	_, err := engine.RunOnce(ctx)
	gt.Error(t, err)

	gotA, err := inner.Get(ctx, repository.DefaultApprovedCollection, a.ID)
	gt.NoError(t, err)
	gt.Equal(t, gotA.Provenance, []model.MemoryID{b.ID})

	gotB, err := inner.Get(ctx, repository.DefaultApprovedCollection, b.ID)
	gt.NoError(t, err)
	gt.Equal(t, gotB.Status, model.StatusApproved)

	// The next run re-absorbs the record without doubling its provenance
	// entry.
	result, err := engine.RunOnce(ctx)
	gt.NoError(t, err)
	gt.Equal(t, result.Merged, 1)

	gotA, err = inner.Get(ctx, repository.DefaultApprovedCollection, a.ID)
	gt.NoError(t, err)
	gt.Equal(t, gotA.Provenance, []model.MemoryID{b.ID})

	gotB, err = inner.Get(ctx, repository.DefaultApprovedCollection, b.ID)
	gt.NoError(t, err)
	gt.Equal(t, gotB.Status, model.StatusMerged)
	gt.Equal(t, gotB.MergedInto, a.ID)
}

func TestRunOnceBelowThreshold(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Now().Add(-time.Hour)

	seedApproved(t, store, "prefers dark mode", []float32{1, 0, 0}, base)
	seedApproved(t, store, "somewhat related", []float32{0.8, 0.6, 0}, base.Add(time.Minute))

	engine := consolidate.New(store, consolidate.WithThreshold(0.9))

	result, err := engine.RunOnce(ctx)
	gt.NoError(t, err)
	gt.Equal(t, result.Merged, 0)
}

// blockingStore parks List until released so a run can be held open
// while another one is attempted.
type blockingStore struct {
	repository.VectorStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) List(ctx context.Context, collection string, filter repository.Filter) ([]*model.Memory, error) {
	close(s.entered)
	<-s.release
	return s.VectorStore.List(ctx, collection, filter)
}

func TestRunOnceBusy(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{
		VectorStore: newStore(t),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}

	engine := consolidate.New(store)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunOnce(ctx)
		done <- err
	}()

	<-store.entered

	_, err := engine.RunOnce(ctx)
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrConsolidationBusy)).Equal(true)

	close(store.release)
	gt.NoError(t, <-done)
}
