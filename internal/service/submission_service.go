package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/dto"
	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/observability"
	"github.com/noah-isme/edu-homework-api/internal/repository"
)

// SubmissionService accepts and versions homework artifacts and exposes
// grading with a mandatory audit trail.
type SubmissionService interface {
	Submit(ctx context.Context, studentID, assignmentID uint, files []*multipart.FileHeader) (dto.SubmissionResponse, error)
	Grade(ctx context.Context, actor Actor, submissionID uint, payload dto.GradeRequest) (dto.SubmissionResponse, error)
	SignedFileURL(ctx context.Context, actor Actor, submissionID uint, key string) (dto.SignedFileResponse, error)
}

type submissionService struct {
	submissions  repository.SubmissionRepository
	assignments  repository.AssignmentRepository
	groups       repository.GroupRepository
	roster       repository.RosterRepository
	storage      FileStorage
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	signedURLTTL time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	assignments repository.AssignmentRepository,
	groups repository.GroupRepository,
	roster repository.RosterRepository,
	storage FileStorage,
	validate *validator.Validate,
	signedURLTTL time.Duration,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		submissions:  submissions,
		assignments:  assignments,
		groups:       groups,
		roster:       roster,
		storage:      storage,
		validator:    validate,
		sanitizer:    bluemonday.StrictPolicy(),
		signedURLTTL: signedURLTTL,
		logger:       logger.With().Str("component", "submission_service").Logger(),
		now:          time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, studentID, assignmentID uint, files []*multipart.FileHeader) (dto.SubmissionResponse, error) {
	if len(files) == 0 {
		return dto.SubmissionResponse{}, fmt.Errorf("at least one submission file is required")
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrAssignmentNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if assignment.Type == models.AssignmentTypeGroupProject {
		cfg := assignment.Config.GroupProject
		if cfg != nil && cfg.GroupRequired {
			return dto.SubmissionResponse{}, ErrGroupRequired
		}
	}

	enrolled, err := s.roster.IsEnrolled(ctx, assignment.ClassID, studentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !enrolled {
		return dto.SubmissionResponse{}, ErrNotEnrolled
	}

	switch assignment.StatusAt(s.now()) {
	case models.AssignmentStatusNotStarted:
		return dto.SubmissionResponse{}, ErrNotOpenYet
	case models.AssignmentStatusClosed:
		return dto.SubmissionResponse{}, ErrDeadlinePassed
	}

	keys, err := s.storeFiles(ctx, files)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		AssignmentID: assignmentID,
		StudentID:    &studentID,
		FileKeys:     keys,
		SubmittedAt:  s.now(),
	}

	replacedKeys, err := s.submissions.Upsert(ctx, &submission)
	if err != nil {
		// The row never became durable; release the freshly stored files.
		s.releaseKeys(ctx, keys)
		return dto.SubmissionResponse{}, err
	}

	// Old files are only released after the new row is committed, so a
	// partial failure can never leave the row pointing at deleted blobs.
	s.releaseKeys(ctx, replacedKeys)

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assignment_id", assignmentID).
		Uint("student_id", studentID).
		Int("files", len(keys)).
		Msg("submission stored")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Grade(ctx context.Context, actor Actor, submissionID uint, payload dto.GradeRequest) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/edu-homework-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.update")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	owned, err := s.roster.ClassOwnedBy(ctx, submission.Assignment.ClassID, actor.ID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}
	if !owned {
		span.SetStatus(codes.Error, "permission_denied")
		return dto.SubmissionResponse{}, ErrPermissionDenied
	}

	maxScore := float64(submission.Assignment.MaxScore)
	if payload.Score < 0 || payload.Score > maxScore {
		span.SetStatus(codes.Error, "score_out_of_range")
		return dto.SubmissionResponse{}, ErrScoreOutOfRange
	}

	oldScore := submission.Score
	score := payload.Score
	gradedAt := s.now()
	gradedBy := actor.ID

	submission.Score = &score
	submission.Feedback = strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))
	submission.GradedAt = &gradedAt
	submission.GradedBy = &gradedBy

	reason := strings.TrimSpace(s.sanitizer.Sanitize(payload.Reason))
	if reason == "" {
		reason = models.AuditReasonTeacherGrading
	}

	entry := models.ScoreAuditLog{
		SubmissionID: submission.ID,
		StudentID:    submission.StudentID,
		OldScore:     oldScore,
		NewScore:     score,
		Reason:       reason,
		OperatorID:   actor.ID,
	}

	// Grade update and ledger append commit or roll back together.
	if err := s.submissions.UpdateWithAudit(ctx, &submission, &entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_persist_failed")
		return dto.SubmissionResponse{}, err
	}

	observability.GradingsTotal().Inc()
	span.SetAttributes(attribute.Float64("grading.score", score))

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("operator_id", actor.ID).
		Float64("score", score).
		Msg("submission graded")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) SignedFileURL(ctx context.Context, actor Actor, submissionID uint, key string) (dto.SignedFileResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SignedFileResponse{}, ErrSubmissionNotFound
		}
		return dto.SignedFileResponse{}, err
	}

	if !containsKey(submission.FileKeys, key) {
		return dto.SignedFileResponse{}, ErrSubmissionNotFound
	}

	allowed, err := s.mayAccessFiles(ctx, actor, submission)
	if err != nil {
		return dto.SignedFileResponse{}, err
	}
	if !allowed {
		return dto.SignedFileResponse{}, ErrPermissionDenied
	}

	url, err := s.storage.SignedURL(key, s.signedURLTTL)
	if err != nil {
		return dto.SignedFileResponse{}, err
	}

	return dto.SignedFileResponse{
		URL:       url,
		ExpiresAt: s.now().Add(s.signedURLTTL),
	}, nil
}

// mayAccessFiles authorizes file access as the owning teacher, the submitting
// student, or a member of the submitting group.
func (s *submissionService) mayAccessFiles(ctx context.Context, actor Actor, submission models.Submission) (bool, error) {
	owned, err := s.roster.ClassOwnedBy(ctx, submission.Assignment.ClassID, actor.ID)
	if err != nil {
		return false, err
	}
	if owned {
		return true, nil
	}

	if submission.StudentID != nil && *submission.StudentID == actor.ID {
		return true, nil
	}

	if submission.GroupID != nil {
		member, err := s.groups.FindMembership(ctx, submission.AssignmentID, actor.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		return member.GroupID == *submission.GroupID, nil
	}

	return false, nil
}

func (s *submissionService) storeFiles(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, file := range files {
		if err := validateFileType(file); err != nil {
			s.releaseKeys(ctx, keys)
			return nil, err
		}

		reader, err := file.Open()
		if err != nil {
			s.releaseKeys(ctx, keys)
			return nil, fmt.Errorf("failed to open file: %w", err)
		}

		key, err := s.storage.Save(ctx, file.Filename, reader)
		_ = reader.Close()
		if err != nil {
			// A submission must not be recorded when a file never reached
			// storage; undo the partial batch.
			s.releaseKeys(ctx, keys)
			return nil, fmt.Errorf("failed to store file: %w", err)
		}

		keys = append(keys, key)
	}

	return keys, nil
}

func (s *submissionService) releaseKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to release stored file")
		}
	}
}

func containsKey(keys []string, key string) bool {
	for _, candidate := range keys {
		if candidate == key {
			return true
		}
	}
	return false
}

func validateFileType(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}

	allowed := []string{"application/pdf", "application/zip", "application/x-zip-compressed", "text/plain"}
	for _, a := range allowed {
		if mime.Is(a) {
			return nil
		}
	}

	return fmt.Errorf("unsupported file type: %s", mime.String())
}
