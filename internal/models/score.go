package models

import "time"

// Default audit reasons used when the operator supplies none.
const (
	AuditReasonTeacherGrading  = "teacher grading"
	AuditReasonGroupAdjustment = "group score adjustment"
)

// ScoreAuditLog is one immutable entry in the score history of a submission.
// Entries are only ever appended; the submission row reflects current state,
// the ledger is the source of truth for what changed and when.
type ScoreAuditLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	StudentID    *uint     `gorm:"index" json:"student_id,omitempty"`
	OldScore     *float64  `json:"old_score,omitempty"`
	NewScore     float64   `gorm:"not null" json:"new_score"`
	Reason       string    `gorm:"size:512;not null" json:"reason"`
	OperatorID   uint      `gorm:"not null" json:"operator_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScoreAdjustment is a per-student override of a group submission's base score.
// It is upserted per (submission, student); every write appends one audit entry.
type ScoreAdjustment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;uniqueIndex:idx_adjustment_submission_student" json:"submission_id"`
	StudentID    uint      `gorm:"not null;uniqueIndex:idx_adjustment_submission_student" json:"student_id"`
	BaseScore    float64   `gorm:"not null" json:"base_score"`
	AdjustScore  float64   `gorm:"not null" json:"adjust_score"`
	FinalScore   float64   `gorm:"not null" json:"final_score"`
	Reason       string    `gorm:"size:512" json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
