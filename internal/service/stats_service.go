package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/dto"
	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/repository"
)

// StatsService derives reporting views over the submission store: the grade
// extract and the per-assignment statistics summary.
type StatsService interface {
	// ExportGrades produces one row per enrolled student, ordered by
	// enrollment; students without a submission appear with empty fields.
	ExportGrades(ctx context.Context, actor Actor, assignmentID uint) ([]dto.GradeExportRow, error)
	// WriteGradesCSV streams the grade extract as CSV.
	WriteGradesCSV(ctx context.Context, actor Actor, assignmentID uint, w io.Writer) error
	Statistics(ctx context.Context, actor Actor, assignmentID uint) (dto.AssignmentStatistics, error)
}

type statsService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	groups      repository.GroupRepository
	roster      repository.RosterRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStatsService constructs the reporting service. The cache client may be
// nil, in which case statistics are always computed fresh.
func NewStatsService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	groups repository.GroupRepository,
	roster repository.RosterRepository,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) StatsService {
	return &statsService{
		assignments: assignments,
		submissions: submissions,
		groups:      groups,
		roster:      roster,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger.With().Str("component", "stats_service").Logger(),
		now:         time.Now,
	}
}

func (s *statsService) ExportGrades(ctx context.Context, actor Actor, assignmentID uint) ([]dto.GradeExportRow, error) {
	assignment, err := s.ownedAssignment(ctx, actor, assignmentID)
	if err != nil {
		return nil, err
	}

	students, err := s.roster.ListEnrolledStudents(ctx, assignment.ClassID)
	if err != nil {
		return nil, err
	}

	byStudent, err := s.submissionsByStudent(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	rows := make([]dto.GradeExportRow, 0, len(students))
	for _, student := range students {
		row := dto.GradeExportRow{
			StudentID:   student.ID,
			StudentName: student.Name,
		}
		if submission, ok := byStudent[student.ID]; ok {
			submittedAt := submission.SubmittedAt
			row.Submitted = true
			row.SubmittedAt = &submittedAt
			row.Score = submission.Score
			row.Feedback = submission.Feedback
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func (s *statsService) WriteGradesCSV(ctx context.Context, actor Actor, assignmentID uint, w io.Writer) error {
	rows, err := s.ExportGrades(ctx, actor, assignmentID)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"student_id", "student_name", "submitted", "submitted_at", "score", "feedback"}); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			strconv.FormatUint(uint64(row.StudentID), 10),
			row.StudentName,
			strconv.FormatBool(row.Submitted),
			"", "", "",
		}
		if row.SubmittedAt != nil {
			record[3] = row.SubmittedAt.Format(time.RFC3339)
		}
		if row.Score != nil {
			record[4] = strconv.FormatFloat(*row.Score, 'f', -1, 64)
		}
		record[5] = row.Feedback

		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func (s *statsService) Statistics(ctx context.Context, actor Actor, assignmentID uint) (dto.AssignmentStatistics, error) {
	assignment, err := s.ownedAssignment(ctx, actor, assignmentID)
	if err != nil {
		return dto.AssignmentStatistics{}, err
	}

	cacheKey := fmt.Sprintf("stats:assignment:%d", assignmentID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var stats dto.AssignmentStatistics
			if err := json.Unmarshal(cached, &stats); err == nil {
				stats.CacheHit = true
				return stats, nil
			}
		}
	}

	stats, err := s.computeStatistics(ctx, assignment)
	if err != nil {
		return dto.AssignmentStatistics{}, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("failed to cache statistics")
			}
		}
	}

	return stats, nil
}

func (s *statsService) computeStatistics(ctx context.Context, assignment models.Assignment) (dto.AssignmentStatistics, error) {
	students, err := s.roster.ListEnrolledStudents(ctx, assignment.ClassID)
	if err != nil {
		return dto.AssignmentStatistics{}, err
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentStatistics{}, err
	}

	stats := dto.AssignmentStatistics{
		AssignmentID:  assignment.ID,
		EnrolledCount: len(students),
		Distribution: map[string]int{
			"90-100": 0,
			"80-89":  0,
			"70-79":  0,
			"60-69":  0,
			"<60":    0,
		},
	}

	var scoreSum float64
	for _, submission := range submissions {
		stats.SubmittedCount++
		if submission.Score == nil {
			continue
		}

		stats.GradedCount++
		scoreSum += *submission.Score
		stats.Distribution[scoreBand(*submission.Score)]++
	}

	if stats.EnrolledCount > 0 {
		stats.SubmissionRate = float64(stats.SubmittedCount) / float64(stats.EnrolledCount)
	}
	if stats.GradedCount > 0 {
		stats.AverageScore = scoreSum / float64(stats.GradedCount)
	}

	return stats, nil
}

func (s *statsService) ownedAssignment(ctx context.Context, actor Actor, assignmentID uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	owned, err := s.roster.ClassOwnedBy(ctx, assignment.ClassID, actor.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if !owned {
		return models.Assignment{}, ErrPermissionDenied
	}

	return assignment, nil
}

// submissionsByStudent indexes every submission by the students it covers,
// expanding group submissions to all group members.
func (s *statsService) submissionsByStudent(ctx context.Context, assignmentID uint) (map[uint]models.Submission, error) {
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	byStudent := make(map[uint]models.Submission)
	for _, submission := range submissions {
		if submission.StudentID != nil {
			byStudent[*submission.StudentID] = submission
			continue
		}

		if submission.GroupID == nil {
			continue
		}

		group, err := s.groups.GetByID(ctx, *submission.GroupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		for _, member := range group.Members {
			byStudent[member.StudentID] = submission
		}
	}

	return byStudent, nil
}

func scoreBand(score float64) string {
	switch {
	case score >= 90:
		return "90-100"
	case score >= 80:
		return "80-89"
	case score >= 70:
		return "70-79"
	case score >= 60:
		return "60-69"
	default:
		return "<60"
	}
}
