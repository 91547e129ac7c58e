package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"paperflow/internal/auth"
	"paperflow/internal/cache"
	"paperflow/internal/domain"
	"paperflow/internal/repository"
	"paperflow/internal/service"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB на один документ

// submitForm - поля формы первой подачи работы
type submitForm struct {
	SubjectCode  string `validate:"required,max=8"`
	SubjectName  string `validate:"required"`
	Department   string `validate:"omitempty"`
	Semester     int    `validate:"required,min=1,max=8"`
	AcademicYear int    `validate:"required,min=2000,max=2100"`
}

// distributeRequest - тело запроса на выдачу работы
type distributeRequest struct {
	ExamDate string `json:"exam_date" validate:"required,datetime=2006-01-02"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type PaperHandler struct {
	transitions *service.TransitionService
	docs        *service.DocumentService
	scopes      *service.AccessScopeResolver
	papers      *repository.PaperRepository
	ledger      *repository.LedgerRepository
	queryCache  *cache.QueryCache[domain.ExamPaper]
	validate    *validator.Validate
}

func NewPaperHandler(
	transitions *service.TransitionService,
	docs *service.DocumentService,
	scopes *service.AccessScopeResolver,
	papers *repository.PaperRepository,
	ledger *repository.LedgerRepository,
	queryCache *cache.QueryCache[domain.ExamPaper],
) *PaperHandler {
	return &PaperHandler{
		transitions: transitions,
		docs:        docs,
		scopes:      scopes,
		papers:      papers,
		ledger:      ledger,
		queryCache:  queryCache,
		validate:    validator.New(),
	}
}

// SubmitPaper принимает первую подачу работы с обоими документами
func (h *PaperHandler) SubmitPaper(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(2 * maxUploadSize); err != nil {
		respondError(w, domain.NewValidationError("invalid multipart form: %v", err))
		return
	}

	semester, _ := strconv.Atoi(r.FormValue("semester"))
	year, _ := strconv.Atoi(r.FormValue("academic_year"))
	form := submitForm{
		SubjectCode:  r.FormValue("subject_code"),
		SubjectName:  r.FormValue("subject_name"),
		Department:   r.FormValue("department_name"),
		Semester:     semester,
		AcademicYear: year,
	}
	if err := h.validate.Struct(form); err != nil {
		respondError(w, domain.NewValidationError("invalid submission: %v", err))
		return
	}

	qp, err := readDocument(r, "qp_file")
	if err != nil {
		respondError(w, err)
		return
	}
	scheme, err := readDocument(r, "scheme_file")
	if err != nil {
		respondError(w, err)
		return
	}

	paper, err := h.transitions.Submit(r.Context(), actor, service.SubmitPaperInput{
		SubjectCode:    form.SubjectCode,
		SubjectName:    form.SubjectName,
		DepartmentName: form.Department,
		Semester:       form.Semester,
		AcademicYear:   form.AcademicYear,
		QP:             qp,
		Scheme:         scheme,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, paper)
}

// ListPapers возвращает страницу работ в области видимости актора
func (h *PaperHandler) ListPapers(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, domain.NewValidationError("page must be a positive integer, got %q", raw))
			return
		}
		page = n
	}

	filters := make([]domain.Filter, 0, 4)
	for param, column := range map[string]string{
		"academic_year":   "academic_year",
		"status":          "status",
		"department_name": "department_name",
		"semester":        "semester",
	} {
		if value := r.URL.Query().Get(param); value != "" {
			filters = append(filters, domain.Filter{Field: column, Value: value})
		}
	}

	desc := domain.QueryDescriptor{
		EntityTag: domain.PaperEntityTag,
		Filters:   filters,
		Search:    r.URL.Query().Get("search"),
		Page:      page,
		Scope:     h.scopes.Resolve(actor),
	}

	result, err := h.queryCache.Get(r.Context(), desc)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetPaper возвращает одну работу в пределах области видимости
func (h *PaperHandler) GetPaper(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := parseUUID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	paper, err := h.papers.Get(r.Context(), id, h.scopes.Resolve(actor))
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, paper)
}

// ResubmitPaper принимает повторную подачу после запроса исправлений
func (h *PaperHandler) ResubmitPaper(w http.ResponseWriter, r *http.Request) {
	h.transitionWithDocuments(w, r, h.transitions.Resubmit)
}

// ApprovePaper утверждает работу на уровне актора. Проверяющий совета
// может приложить проверенные документы.
func (h *PaperHandler) ApprovePaper(w http.ResponseWriter, r *http.Request) {
	h.transitionWithDocuments(w, r, h.transitions.Approve)
}

// RequestCorrection возвращает работу автору на исправление
func (h *PaperHandler) RequestCorrection(w http.ResponseWriter, r *http.Request) {
	h.plainTransition(w, r, h.transitions.RequestCorrection)
}

// LockPaper фиксирует работу перед выдачей
func (h *PaperHandler) LockPaper(w http.ResponseWriter, r *http.Request) {
	h.plainTransition(w, r, h.transitions.Lock)
}

// DistributePaper выдает зафиксированную работу и пишет журнал выдачи
func (h *PaperHandler) DistributePaper(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := parseUUID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req distributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("invalid request body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, domain.NewValidationError("invalid distribution request: %v", err))
		return
	}
	examDate, _ := time.Parse("2006-01-02", req.ExamDate)

	paper, err := h.transitions.Distribute(r.Context(), actor, id, examDate)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, paper)
}

// ListDistributions возвращает записи журнала выдачи по работе
func (h *PaperHandler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := parseUUID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	// Сначала проверяем, что работа видна актору
	if _, err := h.papers.Get(r.Context(), id, h.scopes.Resolve(actor)); err != nil {
		respondError(w, err)
		return
	}

	records, err := h.ledger.ListByPaper(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// DownloadDocument отдает документ работы из хранилища
func (h *PaperHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := parseUUID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	kind, ok := domain.ParseDocumentKind(chi.URLParam(r, "kind"))
	if !ok {
		respondError(w, domain.NewValidationError("unknown document kind %q", chi.URLParam(r, "kind")))
		return
	}

	paper, err := h.papers.Get(r.Context(), id, h.scopes.Resolve(actor))
	if err != nil {
		respondError(w, err)
		return
	}

	obj, err := h.docs.OpenDocument(r.Context(), paper, kind)
	if err != nil {
		respondError(w, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType())
	w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength(), 10))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s", service.DocumentFilename(paper, kind)))

	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("error streaming document %s/%s: %v", id, kind, err)
	}
}

type transitionFunc func(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.ExamPaper, error)

type documentTransitionFunc func(ctx context.Context, actor domain.Actor, id uuid.UUID, qp, scheme *domain.DocumentUpload) (*domain.ExamPaper, error)

func (h *PaperHandler) plainTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := parseUUID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	paper, err := fn(r.Context(), actor, id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, paper)
}

func (h *PaperHandler) transitionWithDocuments(w http.ResponseWriter, r *http.Request, fn documentTransitionFunc) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := parseUUID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var qp, scheme *domain.DocumentUpload
	if isMultipart(r) {
		if err := r.ParseMultipartForm(2 * maxUploadSize); err != nil {
			respondError(w, domain.NewValidationError("invalid multipart form: %v", err))
			return
		}
		if qp, err = readDocument(r, "qp_file"); err != nil {
			respondError(w, err)
			return
		}
		if scheme, err = readDocument(r, "scheme_file"); err != nil {
			respondError(w, err)
			return
		}
	}

	paper, err := fn(r.Context(), actor, id, qp, scheme)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, paper)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func parseUUID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "uuid")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError("invalid paper id %q", raw)
	}
	return id, nil
}

// readDocument читает файл из multipart-формы. Отсутствие файла -
// не ошибка: пропущенный документ при редактировании переносится как есть.
func readDocument(r *http.Request, field string) (*domain.DocumentUpload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, domain.NewValidationError("failed to read %s: %v", field, err)
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		return nil, domain.NewValidationError("%s exceeds the maximum size of %d bytes", field, maxUploadSize)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, domain.NewValidationError("failed to read %s: %v", field, err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &domain.DocumentUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

// respondError переводит типизированную ошибку ядра в HTTP-ответ
func respondError(w http.ResponseWriter, err error) {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		respondJSON(w, domainErr.HTTPStatus(), errorResponse{
			Error: domainErr.Error(),
			Kind:  string(domainErr.Kind()),
		})
		return
	}

	log.Printf("unexpected error: %v", err)
	respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}
