package dto

import (
	"time"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// AssignmentCreateRequest describes the payload for publishing a new assignment.
type AssignmentCreateRequest struct {
	ClassID       uint                    `json:"class_id" validate:"required"`
	Title         string                  `json:"title" validate:"required,min=3,max=255"`
	Description   string                  `json:"description" validate:"required,min=10"`
	Type          string                  `json:"type" validate:"omitempty,oneof=STANDARD GROUP_PROJECT SELF_PRACTICE"`
	StartTime     string                  `json:"start_time" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Deadline      string                  `json:"deadline" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	ReminderHours int                     `json:"reminder_hours" validate:"omitempty,min=1"`
	MaxScore      int                     `json:"max_score" validate:"required,min=1"`
	AllowLate     bool                    `json:"allow_late"`
	Config        models.AssignmentConfig `json:"config"`
}

// AssignmentUpdateRequest describes a partial assignment patch.
type AssignmentUpdateRequest struct {
	Title         *string                  `json:"title" validate:"omitempty,min=3,max=255"`
	Description   *string                  `json:"description" validate:"omitempty,min=10"`
	StartTime     *string                  `json:"start_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Deadline      *string                  `json:"deadline" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ReminderHours *int                     `json:"reminder_hours" validate:"omitempty,min=0"`
	MaxScore      *int                     `json:"max_score" validate:"omitempty,min=1"`
	AllowLate     *bool                    `json:"allow_late"`
	Config        *models.AssignmentConfig `json:"config"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID           uint                    `json:"id"`
	ClassID      uint                    `json:"class_id"`
	Title        string                  `json:"title"`
	Description  string                  `json:"description"`
	Type         models.AssignmentType   `json:"type"`
	Status       models.AssignmentStatus `json:"status"`
	StartTime    time.Time               `json:"start_time"`
	Deadline     time.Time               `json:"deadline"`
	ReminderTime *time.Time              `json:"reminder_time,omitempty"`
	ReminderSent bool                    `json:"reminder_sent"`
	MaxScore     int                     `json:"max_score"`
	AllowLate    bool                    `json:"allow_late"`
	Config       models.AssignmentConfig `json:"config"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// NewAssignmentResponse converts a model into a DTO, deriving the timing
// status for the supplied reference time.
func NewAssignmentResponse(model models.Assignment, now time.Time) AssignmentResponse {
	return AssignmentResponse{
		ID:           model.ID,
		ClassID:      model.ClassID,
		Title:        model.Title,
		Description:  model.Description,
		Type:         model.Type,
		Status:       model.StatusAt(now),
		StartTime:    model.StartTime,
		Deadline:     model.Deadline,
		ReminderTime: model.ReminderTime,
		ReminderSent: model.ReminderSent,
		MaxScore:     model.MaxScore,
		AllowLate:    model.AllowLate,
		Config:       model.Config,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, now time.Time) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, now))
	}

	return responses
}
