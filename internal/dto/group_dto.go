package dto

import (
	"time"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// GroupCreateRequest starts a new self-service group.
type GroupCreateRequest struct {
	AssignmentID uint   `json:"assignment_id" validate:"required"`
	Name         string `json:"name" validate:"required,min=1,max=255"`
}

// AutoAssignRequest triggers deterministic bin-packing of unassigned students.
type AutoAssignRequest struct {
	AssignmentID  uint `json:"assignment_id" validate:"required"`
	PreferredSize int  `json:"preferred_size" validate:"required,min=1"`
}

// AutoAssignResult reports partial-progress-friendly counts.
type AutoAssignResult struct {
	Assigned      int `json:"assigned"`
	GroupsCreated int `json:"groups_created"`
}

// LaborContributionRequest is one member's declared share of a group submission.
type LaborContributionRequest struct {
	StudentID           uint    `json:"student_id" validate:"required"`
	Task                string  `json:"task" validate:"required,max=255"`
	ContributionPercent float64 `json:"contribution_percent" validate:"min=0,max=100"`
	Description         string  `json:"description" validate:"omitempty,max=1000"`
}

// GroupSubmitRequest is the leader-only group submission payload.
type GroupSubmitRequest struct {
	LaborDivision []LaborContributionRequest `json:"labor_division" validate:"required,min=1,dive"`
}

// GroupMemberResponse serializes one membership row.
type GroupMemberResponse struct {
	StudentID uint             `json:"student_id"`
	Role      models.GroupRole `json:"role"`
	JoinedAt  time.Time        `json:"joined_at"`
}

// GroupResponse serializes a group with its ordered members.
type GroupResponse struct {
	ID           uint                  `json:"id"`
	AssignmentID uint                  `json:"assignment_id"`
	Name         string                `json:"name"`
	LeaderID     uint                  `json:"leader_id"`
	Status       models.GroupStatus    `json:"status"`
	Members      []GroupMemberResponse `json:"members"`
	CreatedAt    time.Time             `json:"created_at"`
}

// NewGroupResponse converts a model into a DTO.
func NewGroupResponse(model models.AssignmentGroup) GroupResponse {
	members := make([]GroupMemberResponse, 0, len(model.Members))
	for _, member := range model.Members {
		members = append(members, GroupMemberResponse{
			StudentID: member.StudentID,
			Role:      member.Role,
			JoinedAt:  member.JoinedAt,
		})
	}

	return GroupResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		Name:         model.Name,
		LeaderID:     model.LeaderID,
		Status:       model.Status,
		Members:      members,
		CreatedAt:    model.CreatedAt,
	}
}

// NewGroupResponseSlice converts a slice of models into DTOs.
func NewGroupResponseSlice(groups []models.AssignmentGroup) []GroupResponse {
	responses := make([]GroupResponse, 0, len(groups))
	for _, group := range groups {
		responses = append(responses, NewGroupResponse(group))
	}

	return responses
}
