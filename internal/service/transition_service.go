package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"paperflow/internal/domain"
)

// PaperStore описывает операции хранилища записей, нужные движку переходов
type PaperStore interface {
	Create(ctx context.Context, paper *domain.ExamPaper) error
	Get(ctx context.Context, id uuid.UUID, scope domain.AccessScope) (*domain.ExamPaper, error)
	UpdateFields(ctx context.Context, id uuid.UUID, expected domain.Status, upd domain.PaperUpdate) (*domain.ExamPaper, error)
}

// DistributionLedger описывает журнал выдачи работ
type DistributionLedger interface {
	Record(ctx context.Context, rec *domain.DistributionRecord) error
	Remove(ctx context.Context, id int64) error
}

// Invalidator сбрасывает записи кэша по тегу сущности
type Invalidator interface {
	Invalidate(entityTag string)
}

// SubmitPaperInput - входные данные первой подачи работы
type SubmitPaperInput struct {
	SubjectCode    string
	SubjectName    string
	DepartmentName string
	Semester       int
	AcademicYear   int
	QP             *domain.DocumentUpload
	Scheme         *domain.DocumentUpload
}

// TransitionService проверяет и применяет переходы статусов.
// Все изменения статуса и документов идут только через него:
// сначала файловая транзакция, затем CAS-обновление записи,
// затем инвалидация кэша.
type TransitionService struct {
	papers PaperStore
	ledger DistributionLedger
	docs   *DocumentService
	scopes *AccessScopeResolver
	cache  Invalidator
}

func NewTransitionService(
	papers PaperStore,
	ledger DistributionLedger,
	docs *DocumentService,
	scopes *AccessScopeResolver,
	cache Invalidator,
) *TransitionService {
	return &TransitionService{
		papers: papers,
		ledger: ledger,
		docs:   docs,
		scopes: scopes,
		cache:  cache,
	}
}

// Submit создает работу в начальном статусе Submitted.
// Оба документа обязательны при первой подаче.
func (s *TransitionService) Submit(ctx context.Context, actor domain.Actor, input SubmitPaperInput) (*domain.ExamPaper, error) {
	if actor.Role != domain.RoleAuthor {
		return nil, domain.NewIllegalTransition(actor.Role, "", domain.StatusSubmitted)
	}

	department := input.DepartmentName
	if department == "" {
		department = actor.Department
	}

	paper := &domain.ExamPaper{
		UUID:           uuid.New(),
		SubjectCode:    input.SubjectCode,
		SubjectName:    input.SubjectName,
		DepartmentName: department,
		Semester:       input.Semester,
		AcademicYear:   input.AcademicYear,
		Status:         domain.StatusSubmitted,
		UploaderID:     actor.ID,
	}

	pair, rollback, err := s.docs.ReplaceDocuments(ctx, paper, input.QP, input.Scheme)
	if err != nil {
		return nil, err
	}

	paper.QPFileURL = pair.QPFileURL
	paper.QPMimeType = pair.QPMimeType
	paper.SchemeFileURL = pair.SchemeFileURL
	paper.SchemeMimeType = pair.SchemeMimeType

	if err := s.papers.Create(ctx, paper); err != nil {
		// Запись не сохранилась - убираем загруженные в этом вызове объекты
		rollback()
		return nil, domain.NewPersistenceError(err)
	}

	s.cache.Invalidate(domain.PaperEntityTag)
	return paper, nil
}

// Resubmit возвращает работу из CorrectionRequested в Submitted.
// Автор может заменить один или оба документа, пропущенный файл
// сохраняет прежнюю ссылку.
func (s *TransitionService) Resubmit(ctx context.Context, actor domain.Actor, id uuid.UUID, qp, scheme *domain.DocumentUpload) (*domain.ExamPaper, error) {
	paper, err := s.papers.Get(ctx, id, s.scopes.Resolve(actor))
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(actor.Role, paper.Status, domain.StatusSubmitted) {
		return nil, domain.NewIllegalTransition(actor.Role, paper.Status, domain.StatusSubmitted)
	}

	pair, rollback, err := s.docs.ReplaceDocuments(ctx, paper, qp, scheme)
	if err != nil {
		return nil, err
	}

	status := domain.StatusSubmitted
	upd := domain.PaperUpdate{
		Status:         &status,
		ClearApprover:  true,
		QPFileURL:      &pair.QPFileURL,
		QPMimeType:     &pair.QPMimeType,
		SchemeFileURL:  &pair.SchemeFileURL,
		SchemeMimeType: &pair.SchemeMimeType,
	}

	updated, err := s.papers.UpdateFields(ctx, id, paper.Status, upd)
	if err != nil {
		rollback()
		return nil, err
	}

	s.cache.Invalidate(domain.PaperEntityTag)
	return updated, nil
}

// Approve продвигает работу на следующий уровень утверждения.
// Проверяющий совета может приложить проверенные документы,
// предметный проверяющий утверждает работу как есть.
func (s *TransitionService) Approve(ctx context.Context, actor domain.Actor, id uuid.UUID, qp, scheme *domain.DocumentUpload) (*domain.ExamPaper, error) {
	paper, err := s.papers.Get(ctx, id, s.scopes.Resolve(actor))
	if err != nil {
		return nil, err
	}

	var target domain.Status
	switch actor.Role {
	case domain.RoleSubjectReviewer:
		target = domain.StatusSubjectApproved
	case domain.RoleBoardReviewer:
		target = domain.StatusBoardApproved
	default:
		return nil, domain.NewIllegalTransition(actor.Role, paper.Status, paper.Status)
	}

	if !domain.CanTransition(actor.Role, paper.Status, target) {
		return nil, domain.NewIllegalTransition(actor.Role, paper.Status, target)
	}

	if (qp != nil || scheme != nil) && actor.Role != domain.RoleBoardReviewer {
		return nil, domain.NewValidationError("only the board reviewer may attach scrutinized documents")
	}

	status := target
	upd := domain.PaperUpdate{
		Status:     &status,
		ApproverID: &actor.ID,
	}

	rollback := func() {}
	if qp != nil || scheme != nil {
		pair, rb, err := s.docs.ReplaceDocuments(ctx, paper, qp, scheme)
		if err != nil {
			return nil, err
		}
		rollback = rb
		upd.QPFileURL = &pair.QPFileURL
		upd.QPMimeType = &pair.QPMimeType
		upd.SchemeFileURL = &pair.SchemeFileURL
		upd.SchemeMimeType = &pair.SchemeMimeType
	}

	updated, err := s.papers.UpdateFields(ctx, id, paper.Status, upd)
	if err != nil {
		rollback()
		return nil, err
	}

	s.cache.Invalidate(domain.PaperEntityTag)
	return updated, nil
}

// RequestCorrection возвращает работу автору на исправление
func (s *TransitionService) RequestCorrection(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.ExamPaper, error) {
	return s.applyStatus(ctx, actor, id, domain.StatusCorrectionRequested)
}

// Lock фиксирует утвержденную советом работу перед выдачей
func (s *TransitionService) Lock(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.ExamPaper, error) {
	return s.applyStatus(ctx, actor, id, domain.StatusLocked)
}

// Distribute переводит работу в Distributed и пишет запись в журнал выдачи.
// Журнал вставляется первым: его ограничение уникальности - барьер
// против повторной выдачи той же комбинации. Если CAS-обновление статуса
// после этого не проходит, запись журнала компенсируется, иначе она
// заблокировала бы повтор выдачи навсегда.
func (s *TransitionService) Distribute(ctx context.Context, actor domain.Actor, id uuid.UUID, examDate time.Time) (*domain.ExamPaper, error) {
	paper, err := s.papers.Get(ctx, id, s.scopes.Resolve(actor))
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(actor.Role, paper.Status, domain.StatusDistributed) {
		return nil, domain.NewIllegalTransition(actor.Role, paper.Status, domain.StatusDistributed)
	}

	rec := &domain.DistributionRecord{
		DistributorID: actor.ID,
		SubjectCode:   paper.SubjectCode,
		ExamDate:      examDate,
		PaperUUID:     paper.UUID,
	}
	if err := s.ledger.Record(ctx, rec); err != nil {
		return nil, err
	}

	status := domain.StatusDistributed
	upd := domain.PaperUpdate{
		Status:     &status,
		ApproverID: &actor.ID,
	}

	updated, err := s.papers.UpdateFields(ctx, id, paper.Status, upd)
	if err != nil {
		// Выдача не состоялась - убираем запись журнала
		if rmErr := s.ledger.Remove(context.Background(), rec.ID); rmErr != nil {
			log.Printf("warning: failed to roll back distribution record %d: %v", rec.ID, rmErr)
		}
		return nil, err
	}

	s.cache.Invalidate(domain.PaperEntityTag)
	return updated, nil
}

// applyStatus применяет переход без замены документов
func (s *TransitionService) applyStatus(ctx context.Context, actor domain.Actor, id uuid.UUID, target domain.Status) (*domain.ExamPaper, error) {
	paper, err := s.papers.Get(ctx, id, s.scopes.Resolve(actor))
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(actor.Role, paper.Status, target) {
		return nil, domain.NewIllegalTransition(actor.Role, paper.Status, target)
	}

	status := target
	upd := domain.PaperUpdate{
		Status:     &status,
		ApproverID: &actor.ID,
	}

	updated, err := s.papers.UpdateFields(ctx, id, paper.Status, upd)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(domain.PaperEntityTag)
	return updated, nil
}
