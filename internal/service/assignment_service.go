package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/dto"
	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/repository"
)

// FileStorage abstracts the object store used for homework artifacts.
// Delete tolerates missing keys; SignedURL references expire after the TTL.
type FileStorage interface {
	Save(ctx context.Context, name string, reader io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	SignedURL(key string, ttl time.Duration) (string, error)
}

// AssignmentService owns the assignment lifecycle: creation, mutation,
// cascading deletion and the derived timing state machine.
type AssignmentService interface {
	ListByClass(ctx context.Context, classID uint) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, teacherID uint, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, teacherID uint, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, teacherID uint, id uint) error
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	roster    repository.RosterRepository
	storage   FileStorage
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, roster repository.RosterRepository, storage FileStorage, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		repo:      repo,
		roster:    roster,
		storage:   storage,
		validator: validate,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
		now:       time.Now,
	}
}

func (s *assignmentService) ListByClass(ctx context.Context, classID uint) ([]dto.AssignmentResponse, error) {
	assignments, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	return dto.NewAssignmentResponseSlice(assignments, s.now()), nil
}

func (s *assignmentService) Get(ctx context.Context, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}

		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

func (s *assignmentService) Create(ctx context.Context, teacherID uint, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.requireOwnership(ctx, payload.ClassID, teacherID); err != nil {
		return dto.AssignmentResponse{}, err
	}

	startTime, err := time.Parse(time.RFC3339, payload.StartTime)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("invalid start time: %w", err)
	}

	deadline, err := time.Parse(time.RFC3339, payload.Deadline)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("invalid deadline: %w", err)
	}

	if !startTime.Before(deadline) {
		return dto.AssignmentResponse{}, ErrInvalidTimeWindow
	}

	kind := models.AssignmentType(payload.Type)
	if kind == "" {
		kind = models.AssignmentTypeStandard
	}

	if !payload.Config.Matches(kind) {
		return dto.AssignmentResponse{}, ErrConfigMismatch
	}

	if kind == models.AssignmentTypeGroupProject {
		if err := s.validator.Struct(payload.Config.GroupProject); err != nil {
			return dto.AssignmentResponse{}, err
		}
	}

	assignment := models.Assignment{
		ClassID:      payload.ClassID,
		Title:        payload.Title,
		Description:  payload.Description,
		Type:         kind,
		StartTime:    startTime,
		Deadline:     deadline,
		ReminderTime: models.DeriveReminderTime(deadline, payload.ReminderHours),
		MaxScore:     payload.MaxScore,
		AllowLate:    payload.AllowLate,
		Config:       payload.Config,
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Str("type", string(kind)).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

func (s *assignmentService) Update(ctx context.Context, teacherID uint, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}

		return dto.AssignmentResponse{}, err
	}

	if err := s.requireOwnership(ctx, assignment.ClassID, teacherID); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if payload.Title != nil {
		assignment.Title = *payload.Title
	}

	if payload.Description != nil {
		assignment.Description = *payload.Description
	}

	if payload.StartTime != nil {
		startTime, err := time.Parse(time.RFC3339, *payload.StartTime)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("invalid start time: %w", err)
		}
		assignment.StartTime = startTime
	}

	if payload.Deadline != nil {
		deadline, err := time.Parse(time.RFC3339, *payload.Deadline)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("invalid deadline: %w", err)
		}
		assignment.Deadline = deadline
	}

	// The timing invariant is checked against the effective post-patch
	// window, not the incoming fields in isolation.
	if !assignment.StartTime.Before(assignment.Deadline) {
		return dto.AssignmentResponse{}, ErrInvalidTimeWindow
	}

	// The reminder time is only re-derived when the patch says so; a deadline
	// change alone never recomputes it.
	if payload.ReminderHours != nil {
		assignment.ReminderTime = models.DeriveReminderTime(assignment.Deadline, *payload.ReminderHours)
	}

	if payload.MaxScore != nil {
		assignment.MaxScore = *payload.MaxScore
	}

	if payload.AllowLate != nil {
		assignment.AllowLate = *payload.AllowLate
	}

	if payload.Config != nil {
		if !payload.Config.Matches(assignment.Type) {
			return dto.AssignmentResponse{}, ErrConfigMismatch
		}
		assignment.Config = *payload.Config
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment updated")

	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

func (s *assignmentService) Delete(ctx context.Context, teacherID uint, id uint) error {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	if err := s.requireOwnership(ctx, assignment.ClassID, teacherID); err != nil {
		return err
	}

	fileKeys, err := s.repo.DeleteCascade(ctx, id)
	if err != nil {
		return err
	}

	// The data-layer delete is committed; releasing blobs is compensation.
	// Failures are logged and never abort the operation.
	for _, key := range fileKeys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Uint("assignment_id", id).Msg("failed to release stored file")
		}
	}

	s.logger.Info().Uint("assignment_id", id).Int("released_files", len(fileKeys)).Msg("assignment deleted")
	return nil
}

func (s *assignmentService) requireOwnership(ctx context.Context, classID, teacherID uint) error {
	if _, err := s.roster.GetClass(ctx, classID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}

	owned, err := s.roster.ClassOwnedBy(ctx, classID, teacherID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrPermissionDenied
	}

	return nil
}
