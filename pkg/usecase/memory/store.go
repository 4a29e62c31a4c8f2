package memory

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/policy"
	"github.com/magi-stack/rin-memory/pkg/repository"
	"github.com/magi-stack/rin-memory/pkg/utils/logging"
)

// Init makes both collections usable with the embedder's dimension. It
// doubles as the readiness probe: a store that cannot answer this call
// is not ready for ingestion.
func (u *UseCase) Init(ctx context.Context) error {
	dim := u.embedder.Dimension()
	if err := u.store.EnsureCollection(ctx, u.pendingCollection, dim); err != nil {
		return goerr.Wrap(err, "failed to ensure pending collection")
	}
	if err := u.store.EnsureCollection(ctx, u.approvedCollection, dim); err != nil {
		return goerr.Wrap(err, "failed to ensure approved collection")
	}
	return nil
}

// Store ingests one candidate memory: validate, embed, and upsert a
// single record. If embedding fails nothing is persisted. The record
// lands in the pending queue unless auto-approval is configured or the
// ingest policy approves it.
func (u *UseCase) Store(ctx context.Context, content string, meta model.Metadata) (model.MemoryID, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", goerr.Wrap(model.ErrValidation, "content is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	embedding, err := u.embedder.Embed(ctx, content)
	if err != nil {
		return "", goerr.Wrap(err, "failed to embed content")
	}

	approved, err := u.shouldAutoApprove(ctx, content, meta)
	if err != nil {
		return "", err
	}

	meta.ContentHash = model.ContentHash(content)
	now := time.Now()

	mem := &model.Memory{
		ID:        model.NewMemoryID(),
		Content:   content,
		Embedding: embedding,
		Metadata:  meta,
		Status:    model.StatusPending,
		CreatedAt: now,
	}

	collection := u.pendingCollection
	if approved {
		mem.Status = model.StatusApproved
		mem.ApprovedAt = &now
		collection = u.approvedCollection
	}

	if err := u.store.Upsert(ctx, collection, mem); err != nil {
		return "", goerr.Wrap(err, "failed to persist memory", goerr.V("id", mem.ID))
	}

	logging.From(ctx).Info("stored memory",
		"id", mem.ID, "status", mem.Status, "category", meta.Category)
	return mem.ID, nil
}

func (u *UseCase) shouldAutoApprove(ctx context.Context, content string, meta model.Metadata) (bool, error) {
	if u.autoApprove {
		return true, nil
	}
	if u.policy == nil {
		return false, nil
	}

	approve, err := u.policy.AutoApprove(ctx, policy.Input{
		Content:  content,
		Category: meta.Category,
		UserID:   meta.UserID,
		Source:   meta.Source,
	})
	if err != nil {
		return false, goerr.Wrap(err, "ingest policy evaluation failed")
	}
	return approve, nil
}

// ExistsByHash reports whether a record with the content hash is already
// staged or approved. Extraction uses it as an idempotency check so
// re-processing a transcript never duplicates memories.
func (u *UseCase) ExistsByHash(ctx context.Context, contentHash string) (bool, error) {
	for _, collection := range []string{u.pendingCollection, u.approvedCollection} {
		found, err := u.store.List(ctx, collection, repository.Filter{ContentHash: contentHash})
		if err != nil {
			return false, goerr.Wrap(err, "failed to look up content hash",
				goerr.V("collection", collection))
		}
		if len(found) > 0 {
			return true, nil
		}
	}
	return false, nil
}
