package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssignmentType discriminates the homework variants supported by the engine.
type AssignmentType string

// Supported assignment types.
const (
	AssignmentTypeStandard     AssignmentType = "STANDARD"
	AssignmentTypeGroupProject AssignmentType = "GROUP_PROJECT"
	AssignmentTypeSelfPractice AssignmentType = "SELF_PRACTICE"
)

// AssignmentStatus is the derived timing state of an assignment. It is a pure
// function of the clock and is never persisted.
type AssignmentStatus string

// Derived assignment statuses.
const (
	AssignmentStatusNotStarted AssignmentStatus = "NOT_STARTED"
	AssignmentStatusOpen       AssignmentStatus = "OPEN"
	AssignmentStatusClosed     AssignmentStatus = "CLOSED"
	AssignmentStatusLateOpen   AssignmentStatus = "LATE_OPEN"
)

// PeerReviewConfig tunes the peer-review round of a group project.
type PeerReviewConfig struct {
	ReviewersPerSubmission int        `json:"reviewers_per_submission" validate:"omitempty,min=1"`
	ReviewDeadline         *time.Time `json:"review_deadline,omitempty"`
	AnonymousMode          bool       `json:"anonymous_mode"`
	MinReviewsRequired     int        `json:"min_reviews_required" validate:"omitempty,min=0"`
	CoverageStrategy       string     `json:"coverage_strategy,omitempty"`
}

// GroupProjectConfig holds settings that only apply to GROUP_PROJECT assignments.
type GroupProjectConfig struct {
	GroupRequired      bool              `json:"group_required"`
	MinSize            int               `json:"min_size" validate:"required,min=1"`
	MaxSize            int               `json:"max_size" validate:"required,gtefield=MinSize"`
	GroupDeadline      *time.Time        `json:"group_deadline,omitempty"`
	AllowSwitch        bool              `json:"allow_switch"`
	AllowTeacherAssign bool              `json:"allow_teacher_assign"`
	UngroupedPolicy    string            `json:"ungrouped_policy,omitempty"`
	ScoringModel       string            `json:"scoring_model,omitempty"`
	PeerReview         *PeerReviewConfig `json:"peer_review,omitempty"`
}

// SelfPracticeConfig holds settings that only apply to SELF_PRACTICE assignments.
type SelfPracticeConfig struct {
	BonusCap         float64  `json:"bonus_cap" validate:"omitempty,min=0"`
	CountLimit       int      `json:"count_limit" validate:"omitempty,min=0"`
	QualityThreshold float64  `json:"quality_threshold" validate:"omitempty,min=0"`
	ScoringStrategy  string   `json:"scoring_strategy,omitempty"`
	AntiCheatRules   []string `json:"anti_cheat_rules,omitempty"`
}

// AssignmentConfig is the tagged union of type-specific settings. At most one
// variant is populated, and it must match the assignment type.
type AssignmentConfig struct {
	GroupProject *GroupProjectConfig `json:"group_project,omitempty"`
	SelfPractice *SelfPracticeConfig `json:"self_practice,omitempty"`
}

// Matches reports whether the populated variant agrees with the given type.
func (c AssignmentConfig) Matches(kind AssignmentType) bool {
	switch kind {
	case AssignmentTypeGroupProject:
		return c.GroupProject != nil && c.SelfPractice == nil
	case AssignmentTypeSelfPractice:
		return c.SelfPractice != nil && c.GroupProject == nil
	default:
		return c.GroupProject == nil && c.SelfPractice == nil
	}
}

// Assignment is the gradable unit of homework published by a teacher to a class.
type Assignment struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ClassID      uint           `gorm:"not null;index" json:"class_id"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	Type         AssignmentType `gorm:"size:32;not null;default:STANDARD" json:"type"`
	StartTime    time.Time      `gorm:"not null" json:"start_time"`
	Deadline     time.Time      `gorm:"not null" json:"deadline"`
	ReminderTime *time.Time     `gorm:"index" json:"reminder_time,omitempty"`
	ReminderSent bool           `gorm:"not null;default:false" json:"reminder_sent"`
	MaxScore     int            `gorm:"not null;default:100" json:"max_score"`
	AllowLate    bool           `gorm:"not null;default:false" json:"allow_late"`
	RawConfig    datatypes.JSON `gorm:"column:config;type:json" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Class Class `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`

	// Config is the decoded variant configuration. It is hydrated once on load
	// and serialized back on save; consumers never re-parse the raw column.
	Config AssignmentConfig `gorm:"-" json:"config"`
}

// BeforeSave serializes the typed config into the JSON column.
func (a *Assignment) BeforeSave(_ *gorm.DB) error {
	return a.encodeConfig()
}

// AfterFind hydrates the typed config exactly once per load.
func (a *Assignment) AfterFind(_ *gorm.DB) error {
	return a.decodeConfig()
}

// encodeConfig writes the typed variant back into the raw JSON column.
func (a *Assignment) encodeConfig() error {
	if !a.Config.Matches(a.Type) {
		return fmt.Errorf("config does not match assignment type %s", a.Type)
	}

	payload, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("encode assignment config: %w", err)
	}

	a.RawConfig = datatypes.JSON(payload)
	return nil
}

// decodeConfig hydrates the typed variant from the raw JSON column.
func (a *Assignment) decodeConfig() error {
	a.Config = AssignmentConfig{}
	if len(a.RawConfig) == 0 {
		return nil
	}

	if err := json.Unmarshal(a.RawConfig, &a.Config); err != nil {
		return fmt.Errorf("decode assignment config: %w", err)
	}

	return nil
}

// StatusAt derives the timing state for the given reference time.
func (a Assignment) StatusAt(reference time.Time) AssignmentStatus {
	switch {
	case reference.Before(a.StartTime):
		return AssignmentStatusNotStarted
	case !reference.After(a.Deadline):
		return AssignmentStatusOpen
	case a.AllowLate:
		return AssignmentStatusLateOpen
	default:
		return AssignmentStatusClosed
	}
}

// AcceptsSubmissions reports whether a submission is permitted at the given time.
func (a Assignment) AcceptsSubmissions(reference time.Time) bool {
	status := a.StatusAt(reference)
	return status == AssignmentStatusOpen || status == AssignmentStatusLateOpen
}

// DeriveReminderTime computes deadline minus the configured lead time. The
// result is fixed at create/update time and never recomputed implicitly.
func DeriveReminderTime(deadline time.Time, reminderHours int) *time.Time {
	if reminderHours <= 0 {
		return nil
	}

	t := deadline.Add(-time.Duration(reminderHours) * time.Hour)
	return &t
}
