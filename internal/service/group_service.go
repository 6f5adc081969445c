package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/dto"
	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/observability"
	"github.com/noah-isme/edu-homework-api/internal/repository"
)

// GroupService manages team assembly for group-project assignments: self
// service creation, joins and leaves with leader transfer, instructor locking
// and assignment, deterministic auto-assign, and the leader-only group submit.
type GroupService interface {
	Get(ctx context.Context, id uint) (dto.GroupResponse, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.GroupResponse, error)
	CreateGroup(ctx context.Context, studentID uint, payload dto.GroupCreateRequest) (dto.GroupResponse, error)
	Join(ctx context.Context, studentID, groupID uint) (dto.GroupResponse, error)
	Leave(ctx context.Context, studentID, groupID uint) error
	Lock(ctx context.Context, teacherID, groupID uint) error
	TeacherAssign(ctx context.Context, teacherID, groupID, studentID uint) (dto.GroupResponse, error)
	AutoAssign(ctx context.Context, teacherID uint, payload dto.AutoAssignRequest) (dto.AutoAssignResult, error)
	SubmitAsGroup(ctx context.Context, studentID, groupID uint, files []*multipart.FileHeader, payload dto.GroupSubmitRequest) (dto.SubmissionResponse, error)
}

type groupService struct {
	groups      repository.GroupRepository
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	roster      repository.RosterRepository
	storage     FileStorage
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGroupService builds the group formation service.
func NewGroupService(
	groups repository.GroupRepository,
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	roster repository.RosterRepository,
	storage FileStorage,
	validate *validator.Validate,
	logger zerolog.Logger,
) GroupService {
	return &groupService{
		groups:      groups,
		assignments: assignments,
		submissions: submissions,
		roster:      roster,
		storage:     storage,
		validator:   validate,
		logger:      logger.With().Str("component", "group_service").Logger(),
		now:         time.Now,
	}
}

func (s *groupService) Get(ctx context.Context, id uint) (dto.GroupResponse, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GroupResponse{}, ErrGroupNotFound
		}
		return dto.GroupResponse{}, err
	}

	return dto.NewGroupResponse(group), nil
}

func (s *groupService) ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.GroupResponse, error) {
	groups, err := s.groups.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	return dto.NewGroupResponseSlice(groups), nil
}

func (s *groupService) CreateGroup(ctx context.Context, studentID uint, payload dto.GroupCreateRequest) (dto.GroupResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GroupResponse{}, err
	}

	assignment, cfg, err := s.groupAssignment(ctx, payload.AssignmentID)
	if err != nil {
		return dto.GroupResponse{}, err
	}

	if cfg.GroupDeadline != nil && s.now().After(*cfg.GroupDeadline) {
		return dto.GroupResponse{}, ErrGroupDeadlinePassed
	}

	enrolled, err := s.roster.IsEnrolled(ctx, assignment.ClassID, studentID)
	if err != nil {
		return dto.GroupResponse{}, err
	}
	if !enrolled {
		return dto.GroupResponse{}, ErrNotEnrolled
	}

	if err := s.requireUnassigned(ctx, payload.AssignmentID, studentID); err != nil {
		return dto.GroupResponse{}, err
	}

	group := models.AssignmentGroup{
		AssignmentID: payload.AssignmentID,
		Name:         payload.Name,
		LeaderID:     studentID,
		Status:       models.GroupStatusForming,
	}
	leader := models.GroupMember{
		AssignmentID: payload.AssignmentID,
		StudentID:    studentID,
		Role:         models.GroupRoleLeader,
		JoinedAt:     s.now(),
	}

	if err := s.groups.CreateWithLeader(ctx, &group, &leader); err != nil {
		if errors.Is(err, repository.ErrDuplicateMembership) {
			return dto.GroupResponse{}, ErrAlreadyInGroup
		}
		return dto.GroupResponse{}, err
	}

	s.logger.Info().Uint("group_id", group.ID).Uint("leader_id", studentID).Msg("group created")

	group.Members = []models.GroupMember{leader}
	return dto.NewGroupResponse(group), nil
}

func (s *groupService) Join(ctx context.Context, studentID, groupID uint) (dto.GroupResponse, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GroupResponse{}, ErrGroupNotFound
		}
		return dto.GroupResponse{}, err
	}

	if group.MembershipFrozen() {
		return dto.GroupResponse{}, ErrGroupNotForming
	}

	assignment, cfg, err := s.groupAssignment(ctx, group.AssignmentID)
	if err != nil {
		return dto.GroupResponse{}, err
	}

	if cfg.GroupDeadline != nil && s.now().After(*cfg.GroupDeadline) {
		return dto.GroupResponse{}, ErrGroupDeadlinePassed
	}

	enrolled, err := s.roster.IsEnrolled(ctx, assignment.ClassID, studentID)
	if err != nil {
		return dto.GroupResponse{}, err
	}
	if !enrolled {
		return dto.GroupResponse{}, ErrNotEnrolled
	}

	if err := s.requireUnassigned(ctx, group.AssignmentID, studentID); err != nil {
		return dto.GroupResponse{}, err
	}

	member := models.GroupMember{
		AssignmentID: group.AssignmentID,
		StudentID:    studentID,
		Role:         models.GroupRoleMember,
		JoinedAt:     s.now(),
	}

	// The capacity check runs inside the repository transaction under a row
	// lock; the unique membership index is the final backstop.
	if err := s.groups.AddMember(ctx, groupID, &member, cfg.MaxSize); err != nil {
		switch {
		case errors.Is(err, repository.ErrGroupCapacityReached):
			return dto.GroupResponse{}, ErrGroupFull
		case errors.Is(err, repository.ErrDuplicateMembership):
			return dto.GroupResponse{}, ErrAlreadyInGroup
		default:
			return dto.GroupResponse{}, err
		}
	}

	s.logger.Info().Uint("group_id", groupID).Uint("student_id", studentID).Msg("student joined group")

	return s.Get(ctx, groupID)
}

func (s *groupService) Leave(ctx context.Context, studentID, groupID uint) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGroupNotFound
		}
		return err
	}

	if group.MembershipFrozen() {
		return ErrGroupNotForming
	}

	_, cfg, err := s.groupAssignment(ctx, group.AssignmentID)
	if err != nil {
		return err
	}

	if !cfg.AllowSwitch {
		return ErrSwitchDisabled
	}

	dissolved, newLeaderID, err := s.groups.RemoveMember(ctx, groupID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGroupNotFound
		}
		return err
	}

	event := s.logger.Info().Uint("group_id", groupID).Uint("student_id", studentID)
	if dissolved {
		event = event.Bool("dissolved", true)
	}
	if newLeaderID != nil {
		event = event.Uint("new_leader_id", *newLeaderID)
	}
	event.Msg("student left group")

	return nil
}

func (s *groupService) Lock(ctx context.Context, teacherID, groupID uint) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGroupNotFound
		}
		return err
	}

	assignment, _, err := s.groupAssignment(ctx, group.AssignmentID)
	if err != nil {
		return err
	}

	if err := s.requireOwnership(ctx, assignment.ClassID, teacherID); err != nil {
		return err
	}

	err = s.groups.UpdateStatus(ctx, groupID, []models.GroupStatus{models.GroupStatusForming}, models.GroupStatusLocked)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGroupNotForming
		}
		return err
	}

	s.logger.Info().Uint("group_id", groupID).Msg("group locked")
	return nil
}

func (s *groupService) TeacherAssign(ctx context.Context, teacherID, groupID, studentID uint) (dto.GroupResponse, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GroupResponse{}, ErrGroupNotFound
		}
		return dto.GroupResponse{}, err
	}

	assignment, _, err := s.groupAssignment(ctx, group.AssignmentID)
	if err != nil {
		return dto.GroupResponse{}, err
	}

	if err := s.requireOwnership(ctx, assignment.ClassID, teacherID); err != nil {
		return dto.GroupResponse{}, err
	}

	enrolled, err := s.roster.IsEnrolled(ctx, assignment.ClassID, studentID)
	if err != nil {
		return dto.GroupResponse{}, err
	}
	if !enrolled {
		return dto.GroupResponse{}, ErrNotEnrolled
	}

	if err := s.requireUnassigned(ctx, group.AssignmentID, studentID); err != nil {
		return dto.GroupResponse{}, err
	}

	member := models.GroupMember{
		AssignmentID: group.AssignmentID,
		StudentID:    studentID,
		Role:         models.GroupRoleMember,
		JoinedAt:     s.now(),
	}

	// Teacher placement bypasses the self-service capacity check but keeps
	// the one-group-per-assignment invariant.
	if err := s.groups.AddMember(ctx, groupID, &member, 0); err != nil {
		if errors.Is(err, repository.ErrDuplicateMembership) {
			return dto.GroupResponse{}, ErrAlreadyInGroup
		}
		return dto.GroupResponse{}, err
	}

	s.logger.Info().Uint("group_id", groupID).Uint("student_id", studentID).Msg("student assigned to group by teacher")

	return s.Get(ctx, groupID)
}

func (s *groupService) AutoAssign(ctx context.Context, teacherID uint, payload dto.AutoAssignRequest) (dto.AutoAssignResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AutoAssignResult{}, err
	}

	assignment, cfg, err := s.groupAssignment(ctx, payload.AssignmentID)
	if err != nil {
		return dto.AutoAssignResult{}, err
	}

	if err := s.requireOwnership(ctx, assignment.ClassID, teacherID); err != nil {
		return dto.AutoAssignResult{}, err
	}

	targetSize := clamp(payload.PreferredSize, cfg.MinSize, cfg.MaxSize)

	unassigned, err := s.groups.ListUnassignedStudents(ctx, payload.AssignmentID, assignment.ClassID)
	if err != nil {
		return dto.AutoAssignResult{}, err
	}

	result := dto.AutoAssignResult{}
	if len(unassigned) == 0 {
		return result, nil
	}

	groups, err := s.groups.ListByAssignment(ctx, payload.AssignmentID)
	if err != nil {
		return dto.AutoAssignResult{}, err
	}

	next := 0

	// Fill existing groups in creation order before opening new ones.
	// Partial progress is valid: re-running only touches students that are
	// still unassigned.
	for _, group := range groups {
		if group.Status != models.GroupStatusForming {
			continue
		}
		for placed := len(group.Members); placed < targetSize && next < len(unassigned); {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			member := models.GroupMember{
				AssignmentID: payload.AssignmentID,
				StudentID:    unassigned[next].ID,
				Role:         models.GroupRoleMember,
				JoinedAt:     s.now(),
			}
			if err := s.groups.AddMember(ctx, group.ID, &member, targetSize); err != nil {
				if errors.Is(err, repository.ErrDuplicateMembership) {
					next++
					continue
				}
				if errors.Is(err, repository.ErrGroupCapacityReached) {
					break
				}
				return result, err
			}
			next++
			placed++
			result.Assigned++
		}
	}

	groupCount, err := s.groups.CountByAssignment(ctx, payload.AssignmentID)
	if err != nil {
		return result, err
	}

	// Overflow students get sequentially numbered new groups; the first
	// assignee of each becomes its leader.
	for next < len(unassigned) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		leaderStudent := unassigned[next]
		group := models.AssignmentGroup{
			AssignmentID: payload.AssignmentID,
			Name:         fmt.Sprintf("第%d组", groupCount+1),
			LeaderID:     leaderStudent.ID,
			Status:       models.GroupStatusForming,
		}
		leader := models.GroupMember{
			AssignmentID: payload.AssignmentID,
			StudentID:    leaderStudent.ID,
			Role:         models.GroupRoleLeader,
			JoinedAt:     s.now(),
		}

		if err := s.groups.CreateWithLeader(ctx, &group, &leader); err != nil {
			if errors.Is(err, repository.ErrDuplicateMembership) {
				next++
				continue
			}
			return result, err
		}

		groupCount++
		next++
		result.Assigned++
		result.GroupsCreated++

		for placed := 1; placed < targetSize && next < len(unassigned); placed++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			member := models.GroupMember{
				AssignmentID: payload.AssignmentID,
				StudentID:    unassigned[next].ID,
				Role:         models.GroupRoleMember,
				JoinedAt:     s.now(),
			}
			if err := s.groups.AddMember(ctx, group.ID, &member, targetSize); err != nil {
				if errors.Is(err, repository.ErrDuplicateMembership) {
					next++
					placed--
					continue
				}
				return result, err
			}
			next++
			result.Assigned++
		}
	}

	observability.GroupAutoAssigned().Add(float64(result.Assigned))

	s.logger.Info().
		Uint("assignment_id", payload.AssignmentID).
		Int("assigned", result.Assigned).
		Int("groups_created", result.GroupsCreated).
		Msg("auto-assign completed")

	return result, nil
}

func (s *groupService) SubmitAsGroup(ctx context.Context, studentID, groupID uint, files []*multipart.FileHeader, payload dto.GroupSubmitRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if len(payload.LaborDivision) == 0 {
		return dto.SubmissionResponse{}, ErrLaborDivisionMissing
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrGroupNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if group.LeaderID != studentID {
		return dto.SubmissionResponse{}, ErrNotGroupLeader
	}

	assignment, _, err := s.groupAssignment(ctx, group.AssignmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	switch assignment.StatusAt(s.now()) {
	case models.AssignmentStatusNotStarted:
		return dto.SubmissionResponse{}, ErrNotOpenYet
	case models.AssignmentStatusClosed:
		return dto.SubmissionResponse{}, ErrDeadlinePassed
	}

	if len(files) == 0 {
		return dto.SubmissionResponse{}, fmt.Errorf("at least one submission file is required")
	}

	keys := make([]string, 0, len(files))
	for _, file := range files {
		reader, err := file.Open()
		if err != nil {
			s.releaseKeys(ctx, keys)
			return dto.SubmissionResponse{}, fmt.Errorf("failed to open file: %w", err)
		}

		key, err := s.storage.Save(ctx, file.Filename, reader)
		_ = reader.Close()
		if err != nil {
			s.releaseKeys(ctx, keys)
			return dto.SubmissionResponse{}, fmt.Errorf("failed to store file: %w", err)
		}
		keys = append(keys, key)
	}

	division := make([]models.LaborContribution, 0, len(payload.LaborDivision))
	for _, item := range payload.LaborDivision {
		division = append(division, models.LaborContribution{
			StudentID:           item.StudentID,
			Task:                item.Task,
			ContributionPercent: item.ContributionPercent,
			Description:         item.Description,
		})
	}

	submission := models.Submission{
		AssignmentID:  group.AssignmentID,
		GroupID:       &groupID,
		FileKeys:      keys,
		SubmittedAt:   s.now(),
		LaborDivision: division,
	}

	replacedKeys, err := s.submissions.Upsert(ctx, &submission)
	if err != nil {
		s.releaseKeys(ctx, keys)
		return dto.SubmissionResponse{}, err
	}
	s.releaseKeys(ctx, replacedKeys)

	err = s.groups.UpdateStatus(ctx, groupID,
		[]models.GroupStatus{models.GroupStatusForming, models.GroupStatusLocked},
		models.GroupStatusSubmitted)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().
		Uint("group_id", groupID).
		Uint("submission_id", submission.ID).
		Int("files", len(keys)).
		Msg("group submission stored")

	return dto.NewSubmissionResponse(submission), nil
}

// groupAssignment loads the assignment and asserts it is a group project with
// a decoded configuration.
func (s *groupService) groupAssignment(ctx context.Context, assignmentID uint) (models.Assignment, *models.GroupProjectConfig, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, nil, ErrAssignmentNotFound
		}
		return models.Assignment{}, nil, err
	}

	if assignment.Type != models.AssignmentTypeGroupProject || assignment.Config.GroupProject == nil {
		return models.Assignment{}, nil, ErrNotGroupAssignment
	}

	return assignment, assignment.Config.GroupProject, nil
}

func (s *groupService) requireUnassigned(ctx context.Context, assignmentID, studentID uint) error {
	_, err := s.groups.FindMembership(ctx, assignmentID, studentID)
	if err == nil {
		return ErrAlreadyInGroup
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return nil
}

func (s *groupService) requireOwnership(ctx context.Context, classID, teacherID uint) error {
	owned, err := s.roster.ClassOwnedBy(ctx, classID, teacherID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrPermissionDenied
	}

	return nil
}

func (s *groupService) releaseKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to release stored file")
		}
	}
}

func clamp(value, low, high int) int {
	if low > 0 && value < low {
		return low
	}
	if high > 0 && value > high {
		return high
	}
	return value
}
