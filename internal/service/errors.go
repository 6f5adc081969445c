package service

import "errors"

// Sentinel errors shared across the homework services. Handlers map these to
// HTTP statuses; every rejected mutation carries a specific reason.
var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrClassNotFound      = errors.New("class not found")

	ErrPermissionDenied = errors.New("caller does not own the target class")
	ErrNotEnrolled      = errors.New("student is not enrolled in this class")

	ErrInvalidTimeWindow = errors.New("start time must be before deadline")
	ErrConfigMismatch    = errors.New("config does not match assignment type")
	ErrScoreOutOfRange   = errors.New("score must be between 0 and the assignment max score")

	ErrNotOpenYet         = errors.New("assignment has not started yet")
	ErrDeadlinePassed     = errors.New("deadline has passed and late submission is not allowed")
	ErrNotGroupAssignment = errors.New("assignment is not a group project")
	ErrGroupRequired      = errors.New("this assignment requires a group submission")

	ErrGroupNotForming      = errors.New("group membership is frozen")
	ErrGroupFull            = errors.New("group has reached its maximum size")
	ErrAlreadyInGroup       = errors.New("student already belongs to a group for this assignment")
	ErrNotGroupLeader       = errors.New("only the group leader may submit for the group")
	ErrSwitchDisabled       = errors.New("leaving a group is disabled for this assignment")
	ErrGroupDeadlinePassed  = errors.New("group formation deadline has passed")
	ErrLaborDivisionMissing = errors.New("a labor division breakdown is required")
)

// Actor identifies the authenticated caller of a mutating operation.
type Actor struct {
	ID   uint
	Role string
}
