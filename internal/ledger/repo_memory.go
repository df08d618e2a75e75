package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo keeps submissions in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Submission
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]Submission),
		now:  time.Now,
	}
}

// Record stores the submission, replacing an earlier record with the same request id.
func (r *MemoryRepo) Record(ctx context.Context, submission Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := r.now().UTC()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[submission.RequestID] = submission
	return nil
}

// UpdateStatus applies update to a recorded submission.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, requestID string, update Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	submission, ok := r.byID[requestID]
	if !ok {
		return ErrNotFound
	}
	submission.Status = update.Status
	if update.ReportPath != "" {
		submission.ReportPath = update.ReportPath
	}
	if update.ErrorMessage != "" {
		submission.ErrorMessage = update.ErrorMessage
	}
	submission.UpdatedAt = r.now().UTC()
	r.byID[requestID] = submission
	return nil
}

// List returns the owner's most recent submissions, newest first.
func (r *MemoryRepo) List(ctx context.Context, ownerKey string, limit int) ([]Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Submission, 0, len(r.byID))
	for _, submission := range r.byID {
		if submission.OwnerKey == ownerKey {
			out = append(out, submission)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
