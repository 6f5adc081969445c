package dto

import (
	"time"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// GradeRequest carries a teacher's score and feedback for one submission.
type GradeRequest struct {
	Score    float64 `json:"score" validate:"min=0"`
	Feedback string  `json:"feedback" validate:"omitempty,max=4000"`
	Reason   string  `json:"reason" validate:"omitempty,max=512"`
}

// SubmissionResponse is the serialized representation of a submission.
type SubmissionResponse struct {
	ID            uint                       `json:"id"`
	AssignmentID  uint                       `json:"assignment_id"`
	StudentID     *uint                      `json:"student_id,omitempty"`
	GroupID       *uint                      `json:"group_id,omitempty"`
	FileKeys      []string                   `json:"file_keys"`
	SubmittedAt   time.Time                  `json:"submitted_at"`
	Score         *float64                   `json:"score,omitempty"`
	Feedback      string                     `json:"feedback,omitempty"`
	GradedAt      *time.Time                 `json:"graded_at,omitempty"`
	LaborDivision []models.LaborContribution `json:"labor_division,omitempty"`
}

// NewSubmissionResponse converts a model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:            model.ID,
		AssignmentID:  model.AssignmentID,
		StudentID:     model.StudentID,
		GroupID:       model.GroupID,
		FileKeys:      model.FileKeys,
		SubmittedAt:   model.SubmittedAt,
		Score:         model.Score,
		Feedback:      model.Feedback,
		GradedAt:      model.GradedAt,
		LaborDivision: model.LaborDivision,
	}
}

// SignedFileResponse is a time-bounded access reference to a stored file.
type SignedFileResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GradeExportRow is one line of the per-assignment grade extract. Students
// without a submission still appear with empty fields.
type GradeExportRow struct {
	StudentID   uint       `json:"student_id"`
	StudentName string     `json:"student_name"`
	Submitted   bool       `json:"submitted"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
}

// AssignmentStatistics is the derived reporting view over the submission store.
type AssignmentStatistics struct {
	AssignmentID   uint           `json:"assignment_id"`
	EnrolledCount  int            `json:"enrolled_count"`
	SubmittedCount int            `json:"submitted_count"`
	GradedCount    int            `json:"graded_count"`
	SubmissionRate float64        `json:"submission_rate"`
	AverageScore   float64        `json:"average_score"`
	Distribution   map[string]int `json:"distribution"`
	CacheHit       bool           `json:"cache_hit,omitempty"`
}
