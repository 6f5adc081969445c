package models

import "time"

// GroupStatus is the membership state machine of an assignment group.
// FORMING -> LOCKED (teacher action) -> SUBMITTED (leader submits);
// FORMING may also transition directly to SUBMITTED. No transition leaves
// LOCKED or SUBMITTED back to FORMING.
type GroupStatus string

// Group statuses.
const (
	GroupStatusForming   GroupStatus = "FORMING"
	GroupStatusLocked    GroupStatus = "LOCKED"
	GroupStatusSubmitted GroupStatus = "SUBMITTED"
)

// GroupRole distinguishes the leader from ordinary members.
type GroupRole string

// Group member roles.
const (
	GroupRoleLeader GroupRole = "LEADER"
	GroupRoleMember GroupRole = "MEMBER"
)

// AssignmentGroup is a dynamically formed team for a GROUP_PROJECT assignment.
type AssignmentGroup struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	AssignmentID uint          `gorm:"not null;index" json:"assignment_id"`
	Name         string        `gorm:"size:255;not null" json:"name"`
	LeaderID     uint          `gorm:"not null" json:"leader_id"`
	Status       GroupStatus   `gorm:"size:32;not null;default:FORMING" json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Members      []GroupMember `gorm:"foreignKey:GroupID" json:"members,omitempty"`

	Assignment Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// MembershipFrozen reports whether join/leave mutations are rejected.
func (g AssignmentGroup) MembershipFrozen() bool {
	return g.Status != GroupStatusForming
}

// GroupMember records one student's membership in a group. The unique index on
// (assignment_id, student_id) enforces the one-group-per-assignment invariant
// even under concurrent joins.
type GroupMember struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	GroupID      uint      `gorm:"not null;index" json:"group_id"`
	AssignmentID uint      `gorm:"not null;uniqueIndex:idx_member_assignment_student" json:"assignment_id"`
	StudentID    uint      `gorm:"not null;uniqueIndex:idx_member_assignment_student" json:"student_id"`
	Role         GroupRole `gorm:"size:16;not null;default:MEMBER" json:"role"`
	JoinedAt     time.Time `gorm:"not null" json:"joined_at"`

	Student Student `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
