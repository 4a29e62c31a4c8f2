package review

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/magi-stack/rin-memory/pkg/utils/logging"
)

// ApproveAll applies Approve to every currently pending record. The
// batch is not a transaction: each record is processed independently and
// its outcome collected, so one failure never blocks the rest.
func (u *UseCase) ApproveAll(ctx context.Context) (*model.BatchResult, error) {
	return u.batch(ctx, model.ReviewActionApprove, u.Approve)
}

// RejectAll applies Reject to every currently pending record, with the
// same independent per-record semantics as ApproveAll.
func (u *UseCase) RejectAll(ctx context.Context) (*model.BatchResult, error) {
	return u.batch(ctx, model.ReviewActionReject, u.Reject)
}

func (u *UseCase) batch(ctx context.Context, action model.ReviewAction, apply func(context.Context, model.MemoryID) error) (*model.BatchResult, error) {
	pending, err := u.ListPending(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pending memories")
	}

	result := &model.BatchResult{
		Outcomes: make([]model.ReviewOutcome, 0, len(pending)),
	}

	for _, mem := range pending {
		outcome := model.ReviewOutcome{ID: mem.ID, Action: action}
		if err := apply(ctx, mem.ID); err != nil {
			outcome.Err = err
			logging.From(ctx).Warn("batch review operation failed",
				"action", action, "id", mem.ID, "error", err)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	return result, nil
}
