package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/dto"
	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/repository"
)

// ScoringService handles per-student adjustments on group submissions and
// exposes the audit ledger.
type ScoringService interface {
	// AdjustScores applies a batch of per-student overrides to a group
	// submission. Each tuple commits independently; the result reports which
	// students failed instead of aborting the batch.
	AdjustScores(ctx context.Context, actor Actor, submissionID uint, payload dto.AdjustScoresRequest) (dto.AdjustScoresResult, error)
	ListAdjustments(ctx context.Context, actor Actor, submissionID uint) ([]models.ScoreAdjustment, error)
	AuditTrail(ctx context.Context, actor Actor, submissionID uint) ([]dto.ScoreAuditEntryResponse, error)
	StudentAuditTrail(ctx context.Context, actor Actor, studentID uint) ([]dto.ScoreAuditEntryResponse, error)
}

type scoringService struct {
	scores      repository.ScoreRepository
	submissions repository.SubmissionRepository
	groups      repository.GroupRepository
	roster      repository.RosterRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewScoringService constructs the scoring service.
func NewScoringService(
	scores repository.ScoreRepository,
	submissions repository.SubmissionRepository,
	groups repository.GroupRepository,
	roster repository.RosterRepository,
	validate *validator.Validate,
	logger zerolog.Logger,
) ScoringService {
	return &scoringService{
		scores:      scores,
		submissions: submissions,
		groups:      groups,
		roster:      roster,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "scoring_service").Logger(),
		now:         time.Now,
	}
}

func (s *scoringService) AdjustScores(ctx context.Context, actor Actor, submissionID uint, payload dto.AdjustScoresRequest) (dto.AdjustScoresResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AdjustScoresResult{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AdjustScoresResult{}, ErrSubmissionNotFound
		}
		return dto.AdjustScoresResult{}, err
	}

	if submission.GroupID == nil {
		return dto.AdjustScoresResult{}, ErrNotGroupAssignment
	}

	if err := s.requireOwnership(ctx, submission.Assignment.ClassID, actor.ID); err != nil {
		return dto.AdjustScoresResult{}, err
	}

	maxScore := float64(submission.Assignment.MaxScore)

	result := dto.AdjustScoresResult{Attempted: len(payload.Items)}

	// Tuples commit one by one; a bad student ID or a write failure marks
	// that tuple failed and the loop keeps going.
	for _, item := range payload.Items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if item.FinalScore < 0 || item.FinalScore > maxScore {
			result.Failed = append(result.Failed, item.StudentID)
			continue
		}

		member, err := s.groups.FindMembership(ctx, submission.AssignmentID, item.StudentID)
		if err != nil || member.GroupID != *submission.GroupID {
			result.Failed = append(result.Failed, item.StudentID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warn().Err(err).Uint("student_id", item.StudentID).Msg("membership lookup failed during adjustment")
			}
			continue
		}

		reason := strings.TrimSpace(s.sanitizer.Sanitize(item.Reason))
		if reason == "" {
			reason = models.AuditReasonGroupAdjustment
		}

		var oldScore *float64
		if previous, err := s.scores.GetAdjustment(ctx, submissionID, item.StudentID); err == nil {
			oldScore = &previous.FinalScore
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			result.Failed = append(result.Failed, item.StudentID)
			continue
		}

		studentID := item.StudentID
		adjustment := models.ScoreAdjustment{
			SubmissionID: submissionID,
			StudentID:    studentID,
			BaseScore:    item.BaseScore,
			AdjustScore:  item.AdjustScore,
			FinalScore:   item.FinalScore,
			Reason:       reason,
		}
		entry := models.ScoreAuditLog{
			SubmissionID: submissionID,
			StudentID:    &studentID,
			OldScore:     oldScore,
			NewScore:     item.FinalScore,
			Reason:       reason,
			OperatorID:   actor.ID,
		}

		if err := s.scores.UpsertAdjustmentWithAudit(ctx, &adjustment, &entry); err != nil {
			s.logger.Warn().Err(err).Uint("student_id", item.StudentID).Msg("adjustment write failed")
			result.Failed = append(result.Failed, item.StudentID)
			continue
		}

		result.Succeeded++
	}

	s.logger.Info().
		Uint("submission_id", submissionID).
		Int("attempted", result.Attempted).
		Int("succeeded", result.Succeeded).
		Int("failed", len(result.Failed)).
		Msg("group score adjustments applied")

	return result, nil
}

func (s *scoringService) ListAdjustments(ctx context.Context, actor Actor, submissionID uint) ([]models.ScoreAdjustment, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	if err := s.requireOwnership(ctx, submission.Assignment.ClassID, actor.ID); err != nil {
		return nil, err
	}

	return s.scores.ListAdjustmentsBySubmission(ctx, submissionID)
}

func (s *scoringService) AuditTrail(ctx context.Context, actor Actor, submissionID uint) ([]dto.ScoreAuditEntryResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	if err := s.requireOwnership(ctx, submission.Assignment.ClassID, actor.ID); err != nil {
		return nil, err
	}

	entries, err := s.scores.ListAuditBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	return dto.NewScoreAuditEntryResponseSlice(entries), nil
}

func (s *scoringService) StudentAuditTrail(ctx context.Context, actor Actor, studentID uint) ([]dto.ScoreAuditEntryResponse, error) {
	// Students may read their own history; teachers may read anyone's.
	if actor.Role != "teacher" && actor.ID != studentID {
		return nil, ErrPermissionDenied
	}

	entries, err := s.scores.ListAuditByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	return dto.NewScoreAuditEntryResponseSlice(entries), nil
}

func (s *scoringService) requireOwnership(ctx context.Context, classID, teacherID uint) error {
	owned, err := s.roster.ClassOwnedBy(ctx, classID, teacherID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrPermissionDenied
	}

	return nil
}
