package repository

import (
	"context"

	"github.com/magi-stack/rin-memory/pkg/model"
)

// Default collection names, matching the deployed layout: unapproved
// candidates stage in the pending collection, everything searchable
// lives in the approved one. Both share a single vector dimension.
const (
	DefaultPendingCollection  = "rin_pending_memories"
	DefaultApprovedCollection = "rin_memory"
)

// Filter restricts store operations by exact-match metadata fields.
// Zero values mean no restriction.
type Filter struct {
	UserID      string
	Category    string
	Status      model.Status
	ContentHash string
}

// Matches reports whether a record satisfies the filter.
func (f Filter) Matches(mem *model.Memory) bool {
	if f.UserID != "" && mem.Metadata.UserID != f.UserID {
		return false
	}
	if f.Category != "" && mem.Metadata.Category != f.Category {
		return false
	}
	if f.Status != "" && mem.Status != f.Status {
		return false
	}
	if f.ContentHash != "" && mem.Metadata.ContentHash != f.ContentHash {
		return false
	}
	return true
}

// SearchOptions bounds a similarity search.
type SearchOptions struct {
	Limit    int
	MinScore float64
	Filter   Filter
}

// VectorStore is the persistence contract for memory records. Upserts
// take caller-supplied IDs so retries are idempotent; Delete on an
// absent ID is a no-op.
type VectorStore interface {
	// EnsureCollection makes the named collection usable with the given
	// vector dimension. Calling it for an existing collection is a no-op.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes a record, replacing any record with the same ID.
	Upsert(ctx context.Context, collection string, mem *model.Memory) error

	// Get retrieves a record by ID, failing with model.ErrNotFound when
	// it does not exist.
	Get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error)

	// Search returns records similar to the vector, highest score first.
	Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]*model.ScoredMemory, error)

	// List returns all matching records ordered by ascending CreatedAt.
	List(ctx context.Context, collection string, filter Filter) ([]*model.Memory, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, collection string, id model.MemoryID) error
}
