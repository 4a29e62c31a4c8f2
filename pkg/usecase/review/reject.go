package review

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/utils/logging"
)

// Reject deletes a pending record entirely. Rejection is not a persisted
// state; the record is simply gone. Rejecting an ID that was already
// deleted is a no-op reported as success.
func (u *UseCase) Reject(ctx context.Context, id model.MemoryID) error {
	if err := u.store.Delete(ctx, u.pendingCollection, id); err != nil {
		return goerr.Wrap(err, "failed to delete pending memory", goerr.V("id", id))
	}

	logging.From(ctx).Info("rejected memory", "id", id)
	return nil
}
