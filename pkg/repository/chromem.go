package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/philippgille/chromem-go"
)

// ChromemStore implements VectorStore on an embedded in-process chromem
// index. It is the default backend for local runs and tests: no external
// service, same contract. Full records are kept alongside the index so
// listing and filtering do not depend on vector search.
type ChromemStore struct {
	db *chromem.DB

	mu      sync.RWMutex
	records map[string]map[model.MemoryID]*model.Memory
	dims    map[string]int
}

func NewChromem() *ChromemStore {
	return &ChromemStore{
		db:      chromem.NewDB(),
		records: make(map[string]map[model.MemoryID]*model.Memory),
		dims:    make(map[string]int),
	}
}

// noEmbed rejects implicit embedding: every document arrives with its
// vector already computed by the Embedder.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, goerr.New("chromem store requires precomputed embeddings")
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(name, nil, noEmbed)
}

func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.dims[name]; ok && existing != dimension {
		return goerr.New("collection dimension mismatch",
			goerr.V("collection", name), goerr.V("want", existing), goerr.V("got", dimension))
	}
	s.dims[name] = dimension

	if _, ok := s.records[name]; !ok {
		s.records[name] = make(map[model.MemoryID]*model.Memory)
	}
	_, err := s.collection(name)
	return err
}

func (s *ChromemStore) Upsert(ctx context.Context, collection string, mem *model.Memory) error {
	col, err := s.collection(collection)
	if err != nil {
		return goerr.Wrap(err, "failed to open collection", goerr.V("collection", collection))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dim, ok := s.dims[collection]; ok && len(mem.Embedding) != dim {
		return goerr.Wrap(model.ErrValidation, "embedding dimension mismatch",
			goerr.V("want", dim), goerr.V("got", len(mem.Embedding)))
	}

	if _, ok := s.records[collection]; !ok {
		s.records[collection] = make(map[model.MemoryID]*model.Memory)
	}

	// Replace semantics: drop any previous document with this ID first.
	if _, exists := s.records[collection][mem.ID]; exists {
		if err := col.Delete(ctx, nil, nil, string(mem.ID)); err != nil {
			return goerr.Wrap(err, "failed to replace document", goerr.V("id", mem.ID))
		}
	}

	if err := col.AddDocument(ctx, chromem.Document{
		ID:        string(mem.ID),
		Content:   mem.Content,
		Embedding: mem.Embedding,
	}); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("id", mem.ID))
	}

	clone := *mem
	s.records[collection][mem.ID] = &clone
	return nil
}

func (s *ChromemStore) Get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mem, ok := s.records[collection][id]; ok {
		clone := *mem
		return &clone, nil
	}
	return nil, goerr.Wrap(model.ErrNotFound, "record does not exist",
		goerr.V("collection", collection), goerr.V("id", id))
}

func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]*model.ScoredMemory, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open collection", goerr.V("collection", collection))
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	// Fetch the whole collection and filter here: metadata filters are
	// applied to full records, not index payloads.
	hits, err := col.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("collection", collection))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*model.ScoredMemory, 0, len(hits))
	for _, hit := range hits {
		mem, ok := s.records[collection][model.MemoryID(hit.ID)]
		if !ok {
			continue
		}
		score := float64(hit.Similarity)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		if !opts.Filter.Matches(mem) {
			continue
		}
		clone := *mem
		results = append(results, &model.ScoredMemory{Memory: &clone, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *ChromemStore) List(ctx context.Context, collection string, filter Filter) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memories []*model.Memory
	for _, mem := range s.records[collection] {
		if filter.Matches(mem) {
			clone := *mem
			memories = append(memories, &clone)
		}
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
	return memories, nil
}

func (s *ChromemStore) Delete(ctx context.Context, collection string, id model.MemoryID) error {
	col, err := s.collection(collection)
	if err != nil {
		return goerr.Wrap(err, "failed to open collection", goerr.V("collection", collection))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[collection][id]; !ok {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, string(id)); err != nil {
		return goerr.Wrap(err, "failed to delete document", goerr.V("id", id))
	}
	delete(s.records[collection], id)
	return nil
}
