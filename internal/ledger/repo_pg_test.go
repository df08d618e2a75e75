package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoRecordInsertsSubmission(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	repo := &PGRepo{DB: db, Now: func() time.Time { return now }}
	submission := Submission{
		RequestID:  "5f0c6c9e-3f44-4a77-8d2b-7a1f0f7f2a10",
		OwnerKey:   "owner",
		DevicePath: "clinic-3",
		FileName:   "scan.dcm",
		ReportType: "standard",
		Status:     "PENDING",
	}

	mock.ExpectExec("INSERT INTO submissions").
		WithArgs(
			submission.RequestID,
			submission.OwnerKey,
			submission.DevicePath,
			submission.FileName,
			"",
			submission.ReportType,
			submission.Status,
			"",
			"",
			now,
			now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Record(context.Background(), submission); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE submissions").
		WithArgs("missing", "FAILED", "", "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatus(context.Background(), "missing", Update{Status: "FAILED", ErrorMessage: "boom"})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	created := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"request_id", "owner_key", "device_path", "file_name", "patient_id", "report_type",
		"status", "report_path", "error_message", "created_at", "updated_at",
	}).
		AddRow("r-2", "owner", "clinic-3", "b.dcm", "", "standard", "COMPLETED", "/tmp/b.pdf", "", created.Add(time.Minute), created.Add(2*time.Minute)).
		AddRow("r-1", "owner", "clinic-3", "a.dcm", "P-1", "standard", "FAILED", "", "bad image", created, created)

	mock.ExpectQuery("SELECT request_id, owner_key").
		WithArgs("owner", defaultListLimit).
		WillReturnRows(rows)

	got, err := (&PGRepo{DB: db}).List(context.Background(), "owner", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].RequestID != "r-2" || got[0].ReportPath != "/tmp/b.pdf" {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].PatientID != "P-1" || got[1].ErrorMessage != "bad image" {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
