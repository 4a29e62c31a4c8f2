package model

// ReviewAction identifies which review operation produced an outcome.
type ReviewAction string

const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
)

// ReviewOutcome is the per-record result of a review operation. Err is
// nil for success, including idempotent no-op success.
type ReviewOutcome struct {
	ID     MemoryID
	Action ReviewAction
	Err    error
}

// BatchResult collects the independent outcomes of approve_all or
// reject_all. A failure on one record never blocks the others.
type BatchResult struct {
	Outcomes []ReviewOutcome
}

// Failed returns the outcomes that carried an error.
func (r *BatchResult) Failed() []ReviewOutcome {
	var failed []ReviewOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
