package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperflow/internal/domain"
)

// inMemPaperStore - хранилище записей в памяти для тестов движка переходов
type inMemPaperStore struct {
	mu         sync.Mutex
	papers     map[uuid.UUID]domain.ExamPaper
	failCreate bool
	// staleStatus заставляет Get сообщать устаревший статус,
	// имитируя гонку двух участников
	staleStatus *domain.Status
}

func newInMemPaperStore() *inMemPaperStore {
	return &inMemPaperStore{papers: make(map[uuid.UUID]domain.ExamPaper)}
}

func (s *inMemPaperStore) Create(_ context.Context, paper *domain.ExamPaper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errors.New("simulated database failure")
	}
	now := time.Now()
	paper.CreatedAt = now
	paper.UpdatedAt = now
	s.papers[paper.UUID] = *paper
	return nil
}

func (s *inMemPaperStore) Get(_ context.Context, id uuid.UUID, scope domain.AccessScope) (*domain.ExamPaper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paper, ok := s.papers[id]
	if !ok || !s.inScope(paper, scope) {
		return nil, domain.NewNotFound(id.String())
	}
	if s.staleStatus != nil {
		paper.Status = *s.staleStatus
	}
	return &paper, nil
}

func (s *inMemPaperStore) inScope(paper domain.ExamPaper, scope domain.AccessScope) bool {
	if !scope.Allows(paper.Status) {
		return false
	}
	for _, f := range scope.MandatoryFilters {
		switch f.Field {
		case "uploader_id":
			if paper.UploaderID != f.Value {
				return false
			}
		case "department_name":
			if paper.DepartmentName != f.Value {
				return false
			}
		}
	}
	return true
}

func (s *inMemPaperStore) UpdateFields(_ context.Context, id uuid.UUID, expected domain.Status, upd domain.PaperUpdate) (*domain.ExamPaper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paper, ok := s.papers[id]
	if !ok {
		return nil, domain.NewNotFound(id.String())
	}
	if paper.Status != expected {
		return nil, domain.NewStaleTransition(expected)
	}
	if upd.Status != nil {
		paper.Status = *upd.Status
	}
	if upd.ClearApprover {
		paper.ApproverID = nil
	} else if upd.ApproverID != nil {
		paper.ApproverID = upd.ApproverID
	}
	if upd.QPFileURL != nil {
		paper.QPFileURL = *upd.QPFileURL
	}
	if upd.QPMimeType != nil {
		paper.QPMimeType = *upd.QPMimeType
	}
	if upd.SchemeFileURL != nil {
		paper.SchemeFileURL = *upd.SchemeFileURL
	}
	if upd.SchemeMimeType != nil {
		paper.SchemeMimeType = *upd.SchemeMimeType
	}
	paper.UpdatedAt = time.Now()
	s.papers[id] = paper
	return &paper, nil
}

func (s *inMemPaperStore) snapshot(id uuid.UUID) domain.ExamPaper {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.papers[id]
}

func (s *inMemPaperStore) setStatus(id uuid.UUID, status domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paper := s.papers[id]
	paper.Status = status
	s.papers[id] = paper
}

// fakeLedger - журнал выдачи в памяти с контролем уникальности
type fakeLedger struct {
	mu      sync.Mutex
	records []domain.DistributionRecord
	seen    map[string]bool
	nextID  int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]bool)}
}

func ledgerKey(rec domain.DistributionRecord) string {
	return rec.DistributorID + "|" + rec.SubjectCode + "|" + rec.ExamDate.Format("2006-01-02")
}

func (l *fakeLedger) Record(_ context.Context, rec *domain.DistributionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(*rec)
	if l.seen[key] {
		return domain.NewValidationError("subject %s already distributed", rec.SubjectCode)
	}
	l.seen[key] = true
	l.nextID++
	rec.ID = l.nextID
	rec.CreatedAt = time.Now()
	l.records = append(l.records, *rec)
	return nil
}

func (l *fakeLedger) Remove(_ context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, rec := range l.records {
		if rec.ID == id {
			delete(l.seen, ledgerKey(rec))
			l.records = append(l.records[:i], l.records[i+1:]...)
			return nil
		}
	}
	return nil
}

// recordingCache считает инвалидации кэша
type recordingCache struct {
	mu   sync.Mutex
	tags []string
}

func (c *recordingCache) Invalidate(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, tag)
}

func (c *recordingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tags)
}

type fixture struct {
	store   *inMemPaperStore
	storage *fakeStorage
	ledger  *fakeLedger
	cache   *recordingCache
	svc     *TransitionService
}

func newFixture() *fixture {
	store := newInMemPaperStore()
	storage := newFakeStorage()
	ledger := newFakeLedger()
	cache := &recordingCache{}
	svc := NewTransitionService(
		store,
		ledger,
		NewDocumentService(storage),
		NewAccessScopeResolver(),
		cache,
	)
	return &fixture{store: store, storage: storage, ledger: ledger, cache: cache, svc: svc}
}

var (
	author      = domain.Actor{ID: "fac-1", Name: "A. Kumar", Role: domain.RoleAuthor, Department: "Computer Science"}
	subjRev     = domain.Actor{ID: "rev-1", Name: "S. Rao", Role: domain.RoleSubjectReviewer, Department: "Computer Science"}
	boardRev    = domain.Actor{ID: "brd-1", Name: "B. Iyer", Role: domain.RoleBoardReviewer, Department: "Computer Science"}
	oversight   = domain.Actor{ID: "ovr-1", Name: "O. Menon", Role: domain.RoleOversight, Department: "Controller Office"}
	distributor = domain.Actor{ID: "dst-1", Name: "D. Nair", Role: domain.RoleDistributor, Department: "Controller Office"}
)

func submitInput() SubmitPaperInput {
	return SubmitPaperInput{
		SubjectCode:    "CS501",
		SubjectName:    "Operating Systems",
		DepartmentName: "Computer Science",
		Semester:       5,
		AcademicYear:   2024,
		QP:             qpUpload(),
		Scheme:         schemeUpload(),
	}
}

func TestSubmitCreatesPaper(t *testing.T) {
	f := newFixture()

	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSubmitted, paper.Status)
	assert.Equal(t, author.ID, paper.UploaderID)
	assert.Nil(t, paper.ApproverID)
	assert.Contains(t, paper.QPFileURL, "papers/Academic Year 2024/Computer Science/Sem5/Operating Systems/QP.docx")
	assert.NotEmpty(t, paper.SchemeFileURL)
	assert.Equal(t, 1, f.cache.count(), "submit must invalidate list caches")
}

func TestSubmitRejectsNonAuthor(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Submit(context.Background(), subjRev, submitInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindIllegalTransition, domain.KindOf(err))
	assert.Empty(t, f.storage.objects, "no files may be uploaded for a rejected submission")
}

func TestSubmitPersistenceFailureRollsBackUploads(t *testing.T) {
	f := newFixture()
	f.store.failCreate = true

	_, err := f.svc.Submit(context.Background(), author, submitInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindPersistence, domain.KindOf(err))

	// Оба загруженных объекта откатываются, кэш не инвалидируется
	assert.Empty(t, f.storage.objects)
	assert.Len(t, f.storage.deletes, 2)
	assert.Zero(t, f.cache.count())
}

func TestSubjectReviewerApproves(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)

	approved, err := f.svc.Approve(context.Background(), subjRev, paper.UUID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSubjectApproved, approved.Status)
	require.NotNil(t, approved.ApproverID)
	assert.Equal(t, subjRev.ID, *approved.ApproverID)
	// Документы не тронуты
	assert.Equal(t, paper.QPFileURL, approved.QPFileURL)
	assert.Equal(t, paper.SchemeFileURL, approved.SchemeFileURL)
}

func TestIllegalTransitionsLeavePaperUntouched(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)
	before := f.store.snapshot(paper.UUID)
	invalidations := f.cache.count()

	cases := []struct {
		name string
		call func() error
	}{
		{"oversight cannot lock a submitted paper", func() error {
			_, err := f.svc.Lock(context.Background(), oversight, paper.UUID)
			return err
		}},
		{"author cannot resubmit without a correction request", func() error {
			_, err := f.svc.Resubmit(context.Background(), author, paper.UUID, nil, nil)
			return err
		}},
		{"oversight cannot approve", func() error {
			_, err := f.svc.Approve(context.Background(), oversight, paper.UUID, nil, nil)
			return err
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)
			assert.Equal(t, domain.ErrKindIllegalTransition, domain.KindOf(err))
			assert.Equal(t, before, f.store.snapshot(paper.UUID))
			assert.Equal(t, invalidations, f.cache.count())
		})
	}
}

func TestScopeHidesPaperFromWrongDepartment(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)

	otherDept := subjRev
	otherDept.Department = "Mechanical Engineering"

	_, err = f.svc.Approve(context.Background(), otherDept, paper.UUID, nil, nil)
	require.Error(t, err)
	// Работа вне области видимости неотличима от несуществующей
	assert.Equal(t, domain.ErrKindNotFound, domain.KindOf(err))
}

func TestCorrectionRoundTripPreservesScheme(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)

	_, err = f.svc.RequestCorrection(context.Background(), subjRev, paper.UUID)
	require.NoError(t, err)

	// Автор заменяет только QP
	newQP := &domain.DocumentUpload{
		Filename:    "os_qp_v2.docx",
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Data:        []byte("revised question paper"),
	}
	resubmitted, err := f.svc.Resubmit(context.Background(), author, paper.UUID, newQP, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSubmitted, resubmitted.Status)
	assert.Equal(t, paper.SchemeFileURL, resubmitted.SchemeFileURL, "omitted Scheme keeps its prior URL")
	assert.Nil(t, resubmitted.ApproverID, "approver resets on resubmission")
}

func TestBoardReviewerAttachesScrutinizedDocuments(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), subjRev, paper.UUID, nil, nil)
	require.NoError(t, err)

	scrutinized := &domain.DocumentUpload{
		Filename:    "os_qp_scrutinized.docx",
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Data:        []byte("scrutinized question paper"),
	}
	approved, err := f.svc.Approve(context.Background(), boardRev, paper.UUID, scrutinized, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusBoardApproved, approved.Status)
	require.NotNil(t, approved.ApproverID)
	assert.Equal(t, boardRev.ID, *approved.ApproverID)
	assert.Equal(t, paper.SchemeFileURL, approved.SchemeFileURL)
}

func TestSubjectReviewerCannotAttachDocuments(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), subjRev, paper.UUID, qpUpload(), nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindValidation, domain.KindOf(err))
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), subjRev, paper.UUID, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), boardRev, paper.UUID, nil, nil)
	require.NoError(t, err)

	locked, err := f.svc.Lock(context.Background(), oversight, paper.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLocked, locked.Status)

	examDate := time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)
	distributed, err := f.svc.Distribute(context.Background(), distributor, paper.UUID, examDate)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDistributed, distributed.Status)

	require.Len(t, f.ledger.records, 1)
	rec := f.ledger.records[0]
	assert.Equal(t, distributor.ID, rec.DistributorID)
	assert.Equal(t, "CS501", rec.SubjectCode)
	assert.Equal(t, paper.UUID, rec.PaperUUID)
}

func TestDistributeDuplicateIsRejectedBeforeStatusChange(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), subjRev, paper.UUID, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), boardRev, paper.UUID, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Lock(context.Background(), oversight, paper.UUID)
	require.NoError(t, err)

	examDate := time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)

	// Журнал уже содержит эту комбинацию
	require.NoError(t, f.ledger.Record(context.Background(), &domain.DistributionRecord{
		DistributorID: distributor.ID,
		SubjectCode:   "CS501",
		ExamDate:      examDate,
		PaperUUID:     paper.UUID,
	}))

	_, err = f.svc.Distribute(context.Background(), distributor, paper.UUID, examDate)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindValidation, domain.KindOf(err))
	assert.Equal(t, domain.StatusLocked, f.store.snapshot(paper.UUID).Status)
}

func TestDistributeFailedUpdateCompensatesLedgerRecord(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), subjRev, paper.UUID, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), boardRev, paper.UUID, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Lock(context.Background(), oversight, paper.UUID)
	require.NoError(t, err)

	examDate := time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)

	// Выдающий читает Locked, но строка уже ушла вперед: CAS-обновление
	// после вставки в журнал не проходит
	f.store.setStatus(paper.UUID, domain.StatusDistributed)
	stale := domain.StatusLocked
	f.store.staleStatus = &stale
	_, err = f.svc.Distribute(context.Background(), distributor, paper.UUID, examDate)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindIllegalTransition, domain.KindOf(err))

	// Запись журнала компенсирована, комбинация не заблокирована
	assert.Empty(t, f.ledger.records)

	f.store.setStatus(paper.UUID, domain.StatusLocked)
	f.store.staleStatus = nil
	distributed, err := f.svc.Distribute(context.Background(), distributor, paper.UUID, examDate)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDistributed, distributed.Status)
	assert.Len(t, f.ledger.records, 1)
}

func TestStaleTransitionLosesTheRace(t *testing.T) {
	f := newFixture()
	paper, err := f.svc.Submit(context.Background(), author, submitInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), subjRev, paper.UUID, nil, nil)
	require.NoError(t, err)

	// Второй проверяющий читает устаревший статус Submitted
	stale := domain.StatusSubmitted
	f.store.staleStatus = &stale

	_, err = f.svc.Approve(context.Background(), subjRev, paper.UUID, nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindIllegalTransition, domain.KindOf(err))
	assert.Equal(t, domain.StatusSubjectApproved, f.store.snapshot(paper.UUID).Status)
}
