package extract

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/adapter"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/usecase/memory"
	"github.com/magi-stack/rin-memory/pkg/utils/logging"
)

// UseCase runs the extraction pipeline: probe the store, archive the
// transcript, extract candidate memories, and ingest the novel ones.
type UseCase struct {
	extractor adapter.Extractor
	memory    *memory.UseCase
	archive   adapter.Archive

	categories    []string
	probeAttempts int
	probeBackoff  time.Duration
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithArchive stores raw transcripts before extraction.
func WithArchive(a adapter.Archive) Option {
	return func(uc *UseCase) {
		uc.archive = a
	}
}

// WithCategories restricts extraction to the given category taxonomy.
func WithCategories(categories []string) Option {
	return func(uc *UseCase) {
		uc.categories = categories
	}
}

// WithProbe tunes the store readiness probe.
func WithProbe(attempts int, backoff time.Duration) Option {
	return func(uc *UseCase) {
		uc.probeAttempts = attempts
		uc.probeBackoff = backoff
	}
}

// New creates an extraction UseCase instance
func New(extractor adapter.Extractor, mem *memory.UseCase, opts ...Option) *UseCase {
	uc := &UseCase{
		extractor:     extractor,
		memory:        mem,
		categories:    DefaultCategories,
		probeAttempts: 5,
		probeBackoff:  time.Second,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Result reports what one transcript produced.
type Result struct {
	Stored  []model.MemoryID
	Skipped int
	Failed  []error
}

// FromTranscript extracts candidate memories from a conversation and
// ingests each novel one into the pending queue. Candidates whose
// content hash already exists are skipped, so re-running over the same
// transcript is idempotent. Per-candidate failures are collected, never
// fatal.
func (u *UseCase) FromTranscript(ctx context.Context, conversationID, userID, transcript string) (*Result, error) {
	if transcript == "" {
		return nil, goerr.Wrap(model.ErrValidation, "transcript is empty")
	}

	if err := u.waitReady(ctx); err != nil {
		return nil, err
	}

	logger := logging.From(ctx)

	if u.archive != nil {
		// Archival is best effort: losing the raw transcript does not
		// invalidate the extracted memories.
		if err := u.archive.Put(ctx, conversationID, []byte(transcript)); err != nil {
			logger.Warn("failed to archive transcript",
				"conversation_id", conversationID, "error", err)
		}
	}

	candidates, err := u.extractor.Extract(ctx, transcript, u.categories)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract candidates",
			goerr.V("conversation_id", conversationID))
	}

	result := &Result{}
	for _, c := range candidates {
		exists, err := u.memory.ExistsByHash(ctx, model.ContentHash(c.Content))
		if err != nil {
			result.Failed = append(result.Failed, goerr.Wrap(err, "idempotency lookup failed"))
			continue
		}
		if exists {
			result.Skipped++
			continue
		}

		id, err := u.memory.Store(ctx, c.Content, model.Metadata{
			UserID:   userID,
			Category: c.Category,
			Source:   conversationID,
		})
		if err != nil {
			result.Failed = append(result.Failed, goerr.Wrap(err, "failed to store candidate"))
			continue
		}
		result.Stored = append(result.Stored, id)
	}

	logger.Info("processed transcript",
		"conversation_id", conversationID,
		"stored", len(result.Stored), "skipped", result.Skipped, "failed", len(result.Failed))
	return result, nil
}

// waitReady probes the store with bounded retries instead of sleeping a
// fixed delay before importing. The store is always probed at least once.
func (u *UseCase) waitReady(ctx context.Context) error {
	attempts := u.probeAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(u.probeBackoff << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = u.memory.Init(ctx); lastErr == nil {
			return nil
		}
	}
	return goerr.Wrap(model.ErrStoreUnavailable, "store did not become ready",
		goerr.V("attempts", attempts), goerr.V("cause", lastErr))
}
