package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) CreateBatch(ctx context.Context, batch *domain.Batch) error {
	ids := batch.DocumentIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal document ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO intake_batches (id, case_id, document_ids, submitted, rejected, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, batch.ID, batch.CaseID, idsJSON, batch.Submitted, batch.Rejected, string(batch.Status), batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) SettleBatch(ctx context.Context, res *domain.BatchResult) error {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE intake_batches
SET status = $2, succeeded = $3, failed = $4, gate_fired = $5, warnings = $6, settled_at = $7
WHERE id = $1
`, res.BatchID, string(domain.BatchSettled), res.Succeeded, res.Failed, res.GateFired, warningsJSON, res.SettledAt)
	if err != nil {
		return fmt.Errorf("settle batch: %w", err)
	}
	return requireAffected(result, domain.ErrBatchNotFound, "settle batch", res.BatchID)
}

func (r *BatchRepository) GetBatch(ctx context.Context, id string) (*domain.BatchRecord, error) {
	var (
		rec         domain.BatchRecord
		status      string
		idsRaw      []byte
		warningsRaw []byte
		settledAt   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, case_id, document_ids, submitted, rejected, status, succeeded, failed, gate_fired, warnings, created_at, settled_at
FROM intake_batches
WHERE id = $1
`, id).Scan(
		&rec.ID, &rec.CaseID, &idsRaw, &rec.Submitted, &rec.Rejected, &status,
		&rec.Succeeded, &rec.Failed, &rec.GateFired, &warningsRaw, &rec.CreatedAt, &settledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrBatchNotFound, "get batch", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	if len(idsRaw) > 0 {
		if err := json.Unmarshal(idsRaw, &rec.DocumentIDs); err != nil {
			return nil, fmt.Errorf("unmarshal document ids: %w", err)
		}
	}
	if len(warningsRaw) > 0 {
		if err := json.Unmarshal(warningsRaw, &rec.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	rec.Status = domain.BatchStatus(status)
	if settledAt.Valid {
		t := settledAt.Time
		rec.SettledAt = &t
	}
	return &rec, nil
}
