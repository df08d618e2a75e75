package ledger

import "context"

// Repo defines persistence operations for the submission history.
type Repo interface {
	Record(ctx context.Context, submission Submission) error
	UpdateStatus(ctx context.Context, requestID string, update Update) error
	List(ctx context.Context, ownerKey string, limit int) ([]Submission, error)
}

const defaultListLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
