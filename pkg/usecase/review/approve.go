package review

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/utils/logging"
)

// Approve moves a pending record into the approved collection, keeping
// its stored embedding. Approving a record that is already approved or
// merged is a no-op reported as success: the review bridge may deliver
// the same human action twice.
func (u *UseCase) Approve(ctx context.Context, id model.MemoryID) error {
	mem, err := u.store.Get(ctx, u.pendingCollection, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return u.approveMissing(ctx, id)
		}
		return goerr.Wrap(err, "failed to get pending memory", goerr.V("id", id))
	}

	if !mem.Status.CanTransition(model.StatusApproved) {
		return goerr.New("illegal status transition",
			goerr.V("id", id), goerr.V("from", mem.Status), goerr.V("to", model.StatusApproved))
	}

	now := time.Now()
	mem.Status = model.StatusApproved
	mem.ApprovedAt = &now

	// Upsert before delete: a crash in between leaves a duplicate that a
	// repeated approval cleans up, never a lost record.
	if err := u.store.Upsert(ctx, u.approvedCollection, mem); err != nil {
		return goerr.Wrap(err, "failed to store approved memory", goerr.V("id", id))
	}
	if err := u.store.Delete(ctx, u.pendingCollection, id); err != nil {
		return goerr.Wrap(err, "failed to remove memory from pending queue", goerr.V("id", id))
	}

	logging.From(ctx).Info("approved memory", "id", id)
	return nil
}

// approveMissing resolves an approval for an ID that is not pending:
// success when the record already moved on, ErrNotFound otherwise.
func (u *UseCase) approveMissing(ctx context.Context, id model.MemoryID) error {
	mem, err := u.store.Get(ctx, u.approvedCollection, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return goerr.Wrap(model.ErrNotFound, "memory is not pending nor approved", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to get approved memory", goerr.V("id", id))
	}

	logging.From(ctx).Debug("approval for already settled memory",
		"id", id, "status", mem.Status)
	return nil
}
