package dto

import (
	"time"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// ScoreAdjustmentItem is one per-student override within a batch adjustment.
type ScoreAdjustmentItem struct {
	StudentID   uint    `json:"student_id" validate:"required"`
	BaseScore   float64 `json:"base_score" validate:"min=0"`
	AdjustScore float64 `json:"adjust_score"`
	FinalScore  float64 `json:"final_score" validate:"min=0"`
	Reason      string  `json:"reason" validate:"omitempty,max=512"`
}

// AdjustScoresRequest batches per-student adjustments for a group submission.
type AdjustScoresRequest struct {
	Items []ScoreAdjustmentItem `json:"items" validate:"required,min=1,dive"`
}

// AdjustScoresResult reports partial-batch outcomes: how many tuples were
// attempted versus persisted, never an opaque all-or-nothing failure.
type AdjustScoresResult struct {
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    []uint `json:"failed,omitempty"`
}

// ScoreAuditEntryResponse serializes one immutable ledger entry.
type ScoreAuditEntryResponse struct {
	ID           uint      `json:"id"`
	SubmissionID uint      `json:"submission_id"`
	StudentID    *uint     `json:"student_id,omitempty"`
	OldScore     *float64  `json:"old_score,omitempty"`
	NewScore     float64   `json:"new_score"`
	Reason       string    `json:"reason"`
	OperatorID   uint      `json:"operator_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewScoreAuditEntryResponse converts a model into a DTO.
func NewScoreAuditEntryResponse(model models.ScoreAuditLog) ScoreAuditEntryResponse {
	return ScoreAuditEntryResponse{
		ID:           model.ID,
		SubmissionID: model.SubmissionID,
		StudentID:    model.StudentID,
		OldScore:     model.OldScore,
		NewScore:     model.NewScore,
		Reason:       model.Reason,
		OperatorID:   model.OperatorID,
		CreatedAt:    model.CreatedAt,
	}
}

// NewScoreAuditEntryResponseSlice converts a slice of models into DTOs.
func NewScoreAuditEntryResponseSlice(entries []models.ScoreAuditLog) []ScoreAuditEntryResponse {
	responses := make([]ScoreAuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, NewScoreAuditEntryResponse(entry))
	}

	return responses
}
