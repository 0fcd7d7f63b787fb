package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

func newBatchRepoWithMock(t *testing.T) (*BatchRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &BatchRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCreateBatchInsertsDocumentIDs(t *testing.T) {
	repo, mock, done := newBatchRepoWithMock(t)
	defer done()

	created := time.Now().UTC()
	mock.ExpectExec("INSERT INTO intake_batches").
		WithArgs("batch-1", "case-1", []byte(`["doc-1","doc-2"]`), 3, 1, "queued", created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateBatch(context.Background(), &domain.Batch{
		ID:          "batch-1",
		CaseID:      "case-1",
		DocumentIDs: []string{"doc-1", "doc-2"},
		Submitted:   3,
		Rejected:    1,
		Status:      domain.BatchQueued,
		CreatedAt:   created,
	})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSettleBatchReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newBatchRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE intake_batches").
		WithArgs("missing", "settled", 1, 0, true, []byte(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SettleBatch(context.Background(), &domain.BatchResult{
		BatchID:   "missing",
		Succeeded: 1,
		GateFired: true,
		SettledAt: time.Now().UTC(),
	})
	if !domain.IsKind(err, domain.ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetBatchReturnsSettledSummary(t *testing.T) {
	repo, mock, done := newBatchRepoWithMock(t)
	defer done()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	settled := created.Add(time.Minute)
	mock.ExpectQuery("FROM intake_batches").
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "case_id", "document_ids", "submitted", "rejected", "status",
			"succeeded", "failed", "gate_fired", "warnings", "created_at", "settled_at",
		}).AddRow(
			"batch-1", "case-1", []byte(`["doc-1"]`), 2, 1, "settled",
			1, 1, true, []byte(`["verification email could not be sent"]`), created, settled,
		))

	rec, err := repo.GetBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if rec.Status != domain.BatchSettled || !rec.GateFired || rec.Succeeded != 1 || rec.Failed != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.DocumentIDs) != 1 || len(rec.Warnings) != 1 {
		t.Fatalf("unexpected lists: ids=%v warnings=%v", rec.DocumentIDs, rec.Warnings)
	}
	if rec.SettledAt == nil || !rec.SettledAt.Equal(settled) {
		t.Fatalf("unexpected settled_at: %v", rec.SettledAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetBatchReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newBatchRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM intake_batches").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBatch(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}
