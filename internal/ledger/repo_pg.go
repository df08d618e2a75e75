package ledger

import (
	"context"
	"database/sql"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r *PGRepo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Record inserts the submission, or refreshes its status when the request id
// is already present.
func (r *PGRepo) Record(ctx context.Context, submission Submission) error {
	const query = `
INSERT INTO submissions (
	request_id, owner_key, device_path, file_name, patient_id, report_type,
	status, report_path, error_message, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (request_id) DO UPDATE
SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	now := r.now()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	_, err := r.DB.ExecContext(ctx, query,
		submission.RequestID,
		submission.OwnerKey,
		submission.DevicePath,
		submission.FileName,
		submission.PatientID,
		submission.ReportType,
		submission.Status,
		submission.ReportPath,
		submission.ErrorMessage,
		submission.CreatedAt,
		now,
	)
	return err
}

// UpdateStatus applies update to a recorded submission.
func (r *PGRepo) UpdateStatus(ctx context.Context, requestID string, update Update) error {
	const query = `
UPDATE submissions
SET status = $2,
    report_path = COALESCE(NULLIF($3, ''), report_path),
    error_message = COALESCE(NULLIF($4, ''), error_message),
    updated_at = $5
WHERE request_id = $1`
	res, err := r.DB.ExecContext(ctx, query, requestID, update.Status, update.ReportPath, update.ErrorMessage, r.now())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the owner's most recent submissions, newest first.
func (r *PGRepo) List(ctx context.Context, ownerKey string, limit int) ([]Submission, error) {
	const query = `
SELECT request_id, owner_key, device_path, file_name, patient_id, report_type,
       status, report_path, error_message, created_at, updated_at
FROM submissions
WHERE owner_key = $1
ORDER BY created_at DESC, request_id
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, ownerKey, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(
			&s.RequestID,
			&s.OwnerKey,
			&s.DevicePath,
			&s.FileName,
			&s.PatientID,
			&s.ReportType,
			&s.Status,
			&s.ReportPath,
			&s.ErrorMessage,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
