package models

import (
	"time"

	"gorm.io/datatypes"
)

// LaborContribution describes one member's share of a group submission.
type LaborContribution struct {
	StudentID           uint    `json:"student_id" validate:"required"`
	Task                string  `json:"task" validate:"required"`
	ContributionPercent float64 `json:"contribution_percent" validate:"min=0,max=100"`
	Description         string  `json:"description,omitempty"`
}

// Submission is the single live artifact record a student (or group) has for an
// assignment. Resubmission overwrites this row in place; the uniqueness indexes
// are the backstop against duplicates.
type Submission struct {
	ID            uint                                   `gorm:"primaryKey" json:"id"`
	AssignmentID  uint                                   `gorm:"not null;uniqueIndex:idx_submission_assignment_student;uniqueIndex:idx_submission_assignment_group" json:"assignment_id"`
	StudentID     *uint                                  `gorm:"uniqueIndex:idx_submission_assignment_student" json:"student_id,omitempty"`
	GroupID       *uint                                  `gorm:"uniqueIndex:idx_submission_assignment_group" json:"group_id,omitempty"`
	FileKeys      datatypes.JSONSlice[string]            `gorm:"type:json" json:"file_keys"`
	SubmittedAt   time.Time                              `gorm:"not null" json:"submitted_at"`
	Score         *float64                               `json:"score,omitempty"`
	Feedback      string                                 `gorm:"type:text" json:"feedback,omitempty"`
	GradedAt      *time.Time                             `json:"graded_at,omitempty"`
	GradedBy      *uint                                  `json:"graded_by,omitempty"`
	LaborDivision datatypes.JSONSlice[LaborContribution] `gorm:"type:json" json:"labor_division,omitempty"`
	CreatedAt     time.Time                              `json:"created_at"`
	UpdatedAt     time.Time                              `json:"updated_at"`

	Assignment Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsGraded reports whether a score has been assigned.
func (s Submission) IsGraded() bool {
	return s.Score != nil
}
