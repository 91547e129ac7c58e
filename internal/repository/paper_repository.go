package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"paperflow/internal/domain"
)

// filterColumns - белый список колонок, по которым представления могут фильтровать
var filterColumns = map[string]bool{
	"academic_year":   true,
	"status":          true,
	"department_name": true,
	"semester":        true,
}

// scopeColumns - колонки, которые резолвер областей видимости может закреплять за ролью
var scopeColumns = map[string]bool{
	"department_name": true,
	"uploader_id":     true,
}

// intColumns требуют числового значения фильтра
var intColumns = map[string]bool{
	"academic_year": true,
	"semester":      true,
}

type PaperRepository struct {
	db *sqlx.DB
}

func NewPaperRepository(db *sqlx.DB) *PaperRepository {
	return &PaperRepository{db: db}
}

// Create вставляет новую запись о работе
func (r *PaperRepository) Create(ctx context.Context, paper *domain.ExamPaper) error {
	query := `
        INSERT INTO exam_papers (
            uuid, subject_code, subject_name, department_name, semester,
            academic_year, status, uploader_id,
            qp_file_url, qp_mime_type, scheme_file_url, scheme_mime_type
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		paper.UUID,
		paper.SubjectCode,
		paper.SubjectName,
		paper.DepartmentName,
		paper.Semester,
		paper.AcademicYear,
		paper.Status,
		paper.UploaderID,
		paper.QPFileURL,
		paper.QPMimeType,
		paper.SchemeFileURL,
		paper.SchemeMimeType,
	).Scan(&paper.CreatedAt, &paper.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create paper: %w", err)
	}

	return nil
}

// List выполняет выборку с областью видимости, фильтрами, поиском и пагинацией.
// Обязательные фильтры области видимости применяются безусловно, до фильтров
// вызывающей стороны. TotalCount считается по тому же WHERE, что и срез страницы.
func (r *PaperRepository) List(ctx context.Context, desc domain.QueryDescriptor) (domain.PageResult[domain.ExamPaper], error) {
	empty := domain.PageResult[domain.ExamPaper]{Items: []domain.ExamPaper{}}

	if desc.Page < 1 {
		return empty, domain.NewValidationError("page must be a positive integer, got %d", desc.Page)
	}

	// Пустая область видимости соответствует нулю строк - это не ошибка
	if desc.Scope.Empty() {
		return empty, nil
	}

	where, args, err := listConditions(desc)
	if err != nil {
		return empty, err
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM exam_papers WHERE " + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return empty, domain.NewTransientError(fmt.Errorf("failed to count papers: %w", err))
	}

	query := fmt.Sprintf(
		"SELECT * FROM exam_papers WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		where, domain.PageSize, (desc.Page-1)*domain.PageSize,
	)

	items := []domain.ExamPaper{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return empty, domain.NewTransientError(fmt.Errorf("failed to list papers: %w", err))
	}

	return domain.PageResult[domain.ExamPaper]{Items: items, TotalCount: total}, nil
}

// listConditions собирает WHERE-условия для List в порядке:
// статусы области видимости, обязательные фильтры, фильтры вызывающей стороны, поиск
func listConditions(desc domain.QueryDescriptor) (string, []interface{}, error) {
	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	statuses := make([]string, 0, len(desc.Scope.AllowedStatuses))
	for _, st := range desc.Scope.AllowedStatuses {
		statuses = append(statuses, string(st))
	}
	args = append(args, pq.Array(statuses))
	conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))

	for _, f := range desc.Scope.MandatoryFilters {
		if !scopeColumns[f.Field] {
			return "", nil, domain.NewValidationError("invalid scope filter field %q", f.Field)
		}
		args = append(args, f.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", f.Field, len(args)))
	}

	for _, f := range desc.Filters {
		// Пустое или сигнальное значение "all" - пропуск фильтра
		if f.Value == "" || strings.EqualFold(f.Value, "all") {
			continue
		}
		if !filterColumns[f.Field] {
			return "", nil, domain.NewValidationError("invalid filter field %q", f.Field)
		}
		if intColumns[f.Field] {
			n, err := strconv.Atoi(f.Value)
			if err != nil {
				return "", nil, domain.NewValidationError("filter %s requires a numeric value, got %q", f.Field, f.Value)
			}
			args = append(args, n)
		} else {
			args = append(args, f.Value)
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", f.Field, len(args)))
	}

	if desc.Search != "" {
		args = append(args, "%"+desc.Search+"%")
		conds = append(conds, fmt.Sprintf("subject_code ILIKE $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args, nil
}

// Get возвращает работу по идентификатору в пределах области видимости.
// Работа вне области видимости неотличима от несуществующей.
func (r *PaperRepository) Get(ctx context.Context, id uuid.UUID, scope domain.AccessScope) (*domain.ExamPaper, error) {
	if scope.Empty() {
		return nil, domain.NewNotFound(id.String())
	}

	desc := domain.QueryDescriptor{Scope: scope}
	where, args, err := listConditions(desc)
	if err != nil {
		return nil, err
	}

	args = append(args, id)
	query := fmt.Sprintf("SELECT * FROM exam_papers WHERE %s AND uuid = $%d", where, len(args))

	var paper domain.ExamPaper
	if err := r.db.GetContext(ctx, &paper, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFound(id.String())
		}
		return nil, domain.NewTransientError(fmt.Errorf("failed to get paper: %w", err))
	}

	return &paper, nil
}

// UpdateFields выполняет частичное обновление со сравнением текущего статуса.
// Переход фиксируется только если статус строки все еще равен ожидаемому,
// иначе второй участник гонки получает отказ вместо молчаливой перезаписи.
func (r *PaperRepository) UpdateFields(ctx context.Context, id uuid.UUID, expected domain.Status, upd domain.PaperUpdate) (*domain.ExamPaper, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.ClearApprover {
		sets = append(sets, "approver_id = NULL")
	} else if upd.ApproverID != nil {
		add("approver_id", *upd.ApproverID)
	}
	if upd.QPFileURL != nil {
		add("qp_file_url", *upd.QPFileURL)
	}
	if upd.QPMimeType != nil {
		add("qp_mime_type", *upd.QPMimeType)
	}
	if upd.SchemeFileURL != nil {
		add("scheme_file_url", *upd.SchemeFileURL)
	}
	if upd.SchemeMimeType != nil {
		add("scheme_mime_type", *upd.SchemeMimeType)
	}

	if len(args) == 0 && !upd.ClearApprover {
		return nil, domain.NewValidationError("no fields to update")
	}

	args = append(args, id)
	idArg := len(args)
	args = append(args, expected)
	expectedArg := len(args)

	query := fmt.Sprintf(
		"UPDATE exam_papers SET %s WHERE uuid = $%d AND status = $%d RETURNING *",
		strings.Join(sets, ", "), idArg, expectedArg,
	)

	var paper domain.ExamPaper
	err := r.db.GetContext(ctx, &paper, query, args...)
	if err == nil {
		return &paper, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewTransientError(fmt.Errorf("failed to update paper: %w", err))
	}

	// Ноль строк: либо работы нет, либо статус уже изменился
	var current domain.Status
	probeErr := r.db.GetContext(ctx, &current, "SELECT status FROM exam_papers WHERE uuid = $1", id)
	if errors.Is(probeErr, sql.ErrNoRows) {
		return nil, domain.NewNotFound(id.String())
	}
	if probeErr != nil {
		return nil, domain.NewTransientError(fmt.Errorf("failed to probe paper status: %w", probeErr))
	}
	return nil, domain.NewStaleTransition(expected)
}
