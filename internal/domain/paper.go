package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PageSize - фиксированный размер страницы для всех списочных представлений
const PageSize = 10

// PaperEntityTag - тег сущности для ключей кэша и инвалидации
const PaperEntityTag = "exam_papers"

// ExamPaper представляет экзаменационную работу (пару документов QP и Scheme)
type ExamPaper struct {
	UUID           uuid.UUID `json:"uuid" db:"uuid"`
	SubjectCode    string    `json:"subject_code" db:"subject_code"`
	SubjectName    string    `json:"subject_name" db:"subject_name"`
	DepartmentName string    `json:"department_name" db:"department_name"`
	Semester       int       `json:"semester" db:"semester"`
	AcademicYear   int       `json:"academic_year" db:"academic_year"`
	Status         Status    `json:"status" db:"status"`
	UploaderID     string    `json:"uploader_id" db:"uploader_id"`
	ApproverID     *string   `json:"approver_id,omitempty" db:"approver_id"`
	QPFileURL      string    `json:"qp_file_url" db:"qp_file_url"`
	QPMimeType     string    `json:"qp_mime_type" db:"qp_mime_type"`
	SchemeFileURL  string    `json:"scheme_file_url" db:"scheme_file_url"`
	SchemeMimeType string    `json:"scheme_mime_type" db:"scheme_mime_type"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// StorageFolder возвращает детерминированный путь в хранилище для работы.
// Путь - чистая функция от (год, кафедра, семестр, предмет), поэтому
// повторная загрузка тех же документов перезаписывает те же объекты.
func StorageFolder(academicYear int, department string, semester int, subjectName string) string {
	return fmt.Sprintf("papers/Academic Year %d/%s/Sem%d/%s",
		academicYear, department, semester, subjectName)
}

// StorageFolder возвращает путь в хранилище для данной работы
func (p *ExamPaper) StorageFolder() string {
	return StorageFolder(p.AcademicYear, p.DepartmentName, p.Semester, p.SubjectName)
}

// PaperUpdate описывает частичное обновление полей работы.
// Используется исключительно движком переходов статусов - прямое
// редактирование статуса в обход движка не допускается.
type PaperUpdate struct {
	Status         *Status
	ApproverID     *string
	ClearApprover  bool
	QPFileURL      *string
	QPMimeType     *string
	SchemeFileURL  *string
	SchemeMimeType *string
}
