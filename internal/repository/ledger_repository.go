package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"paperflow/internal/domain"
)

// uniqueViolation - код ошибки postgres для нарушения уникальности
const uniqueViolation = "23505"

type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Record вставляет запись о выдаче. Ограничение уникальности по
// (распространитель, предмет, дата экзамена) гарантирует не более
// одной выдачи на комбинацию.
func (r *LedgerRepository) Record(ctx context.Context, rec *domain.DistributionRecord) error {
	query := `
        INSERT INTO distribution_ledger (distributor_id, subject_code, exam_date, paper_uuid)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		rec.DistributorID,
		rec.SubjectCode,
		rec.ExamDate,
		rec.PaperUUID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.NewValidationError(
				"subject %s already distributed by %s for exam date %s",
				rec.SubjectCode, rec.DistributorID, rec.ExamDate.Format("2006-01-02"),
			)
		}
		return domain.NewTransientError(fmt.Errorf("failed to record distribution: %w", err))
	}

	return nil
}

// Remove удаляет запись журнала, оставшуюся от несостоявшейся выдачи,
// чтобы ограничение уникальности не блокировало законный повтор
func (r *LedgerRepository) Remove(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM distribution_ledger WHERE id = $1`, id); err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to remove distribution record: %w", err))
	}
	return nil
}

// ListByPaper возвращает записи журнала по работе, новые первыми
func (r *LedgerRepository) ListByPaper(ctx context.Context, paperUUID uuid.UUID) ([]domain.DistributionRecord, error) {
	records := []domain.DistributionRecord{}
	query := `SELECT * FROM distribution_ledger WHERE paper_uuid = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &records, query, paperUUID); err != nil {
		return nil, domain.NewTransientError(fmt.Errorf("failed to list distributions: %w", err))
	}

	return records, nil
}
