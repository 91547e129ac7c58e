package domain

import (
	"time"

	"github.com/google/uuid"
)

// DistributionRecord - запись журнала выдачи работ.
// Уникальность по (распространитель, предмет, дата экзамена) обеспечивается
// ограничением в таблице журнала.
type DistributionRecord struct {
	ID            int64     `json:"id" db:"id"`
	DistributorID string    `json:"distributor_id" db:"distributor_id"`
	SubjectCode   string    `json:"subject_code" db:"subject_code"`
	ExamDate      time.Time `json:"exam_date" db:"exam_date"`
	PaperUUID     uuid.UUID `json:"paper_uuid" db:"paper_uuid"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
