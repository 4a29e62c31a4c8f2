package review

import (
	"context"

	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/repository"
)

// UseCase exposes the pending queue and the approval state machine to
// the external review bridge. Operations are idempotent because the
// bridge may deliver a human's action more than once.
type UseCase struct {
	store              repository.VectorStore
	pendingCollection  string
	approvedCollection string
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithCollections overrides the pending and approved collection names.
func WithCollections(pending, approved string) Option {
	return func(uc *UseCase) {
		uc.pendingCollection = pending
		uc.approvedCollection = approved
	}
}

// New creates a review UseCase instance
func New(store repository.VectorStore, opts ...Option) *UseCase {
	uc := &UseCase{
		store:              store,
		pendingCollection:  repository.DefaultPendingCollection,
		approvedCollection: repository.DefaultApprovedCollection,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// ListPending returns every record waiting for review, oldest first.
func (u *UseCase) ListPending(ctx context.Context) ([]*model.Memory, error) {
	return u.store.List(ctx, u.pendingCollection, repository.Filter{})
}
