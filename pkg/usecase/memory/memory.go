package memory

import (
	"time"

	"github.com/magi-stack/rin-memory/pkg/adapter"
	"github.com/magi-stack/rin-memory/pkg/policy"
	"github.com/magi-stack/rin-memory/pkg/repository"
)

// UseCase provides memory ingestion and recall.
type UseCase struct {
	store    repository.VectorStore
	embedder adapter.Embedder
	policy   *policy.IngestPolicy

	pendingCollection  string
	approvedCollection string
	autoApprove        bool
	timeout            time.Duration
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

// WithAutoApprove makes every ingested record skip the review queue.
func WithAutoApprove(enabled bool) Option {
	return func(uc *UseCase) {
		uc.autoApprove = enabled
	}
}

// WithPolicy installs a Rego ingest policy consulted per candidate.
func WithPolicy(p *policy.IngestPolicy) Option {
	return func(uc *UseCase) {
		uc.policy = p
	}
}

// WithTimeout bounds each store/recall operation.
func WithTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.timeout = d
	}
}

// New creates a memory UseCase instance
func New(store repository.VectorStore, embedder adapter.Embedder, opts ...Option) *UseCase {
	uc := &UseCase{
		store:              store,
		embedder:           embedder,
		pendingCollection:  repository.DefaultPendingCollection,
		approvedCollection: repository.DefaultApprovedCollection,
		timeout:            10 * time.Second,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
