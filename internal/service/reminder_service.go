package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/observability"
	"github.com/noah-isme/edu-homework-api/internal/repository"
)

// ReminderSender delivers a deadline reminder to one student.
type ReminderSender interface {
	SendReminder(ctx context.Context, email, name, assignmentTitle string, deadline time.Time, className string) error
}

// ReminderService periodically sweeps for assignments whose reminder window
// has opened and notifies every enrolled student who has not submitted yet.
type ReminderService interface {
	// Start runs the sweep loop until the context is cancelled.
	Start(ctx context.Context)
	// SweepOnce executes one sweep cycle and reports how many reminders were
	// dispatched.
	SweepOnce(ctx context.Context) (int, error)
}

type reminderService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	groups      repository.GroupRepository
	roster      repository.RosterRepository
	sender      ReminderSender
	interval    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReminderService builds the reminder sweep service.
func NewReminderService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	groups repository.GroupRepository,
	roster repository.RosterRepository,
	sender ReminderSender,
	interval time.Duration,
	logger zerolog.Logger,
) ReminderService {
	return &reminderService{
		assignments: assignments,
		submissions: submissions,
		groups:      groups,
		roster:      roster,
		sender:      sender,
		interval:    interval,
		logger:      logger.With().Str("component", "reminder_service").Logger(),
		now:         time.Now,
	}
}

func (s *reminderService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("reminder sweep loop started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reminder sweep loop stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("reminder sweep failed")
			}
		}
	}
}

func (s *reminderService) SweepOnce(ctx context.Context) (int, error) {
	started := s.now()
	observability.ReminderSweeps().Inc()
	defer func() {
		observability.ReminderSweepDuration().Observe(time.Since(started).Seconds())
	}()

	due, err := s.assignments.ListDueForReminder(ctx, started)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, assignment := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		n, err := s.remindAssignment(ctx, assignment)
		sent += n
		if err != nil {
			s.logger.Error().Err(err).Uint("assignment_id", assignment.ID).Msg("reminder dispatch failed for assignment")
			continue
		}

		// Flip only after every send was attempted so a crash mid-batch
		// lets the next sweep retry the whole assignment.
		flipped, err := s.assignments.MarkReminderSent(ctx, assignment.ID)
		if err != nil {
			s.logger.Error().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to mark reminder as sent")
			continue
		}
		if !flipped {
			s.logger.Debug().Uint("assignment_id", assignment.ID).Msg("reminder already claimed by another sweep")
		}
	}

	if len(due) > 0 {
		s.logger.Info().Int("assignments", len(due)).Int("reminders_sent", sent).Msg("reminder sweep completed")
	}

	return sent, nil
}

func (s *reminderService) remindAssignment(ctx context.Context, assignment models.Assignment) (int, error) {
	class, err := s.roster.GetClass(ctx, assignment.ClassID)
	if err != nil {
		return 0, err
	}

	students, err := s.roster.ListEnrolledStudents(ctx, assignment.ClassID)
	if err != nil {
		return 0, err
	}

	submitted, err := s.submittedStudentIDs(ctx, assignment.ID)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, student := range students {
		if submitted[student.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		err := s.sender.SendReminder(ctx, student.Email, student.Name, assignment.Title, assignment.Deadline, class.Name)
		if err != nil {
			// One unreachable mailbox never blocks the rest of the class.
			observability.ReminderFailures().Inc()
			s.logger.Warn().Err(err).
				Uint("assignment_id", assignment.ID).
				Uint("student_id", student.ID).
				Msg("reminder send failed")
			continue
		}

		observability.RemindersSent().Inc()
		sent++
	}

	return sent, nil
}

// submittedStudentIDs collects every student already covered by a submission,
// counting each member of a group that has submitted as covered.
func (s *reminderService) submittedStudentIDs(ctx context.Context, assignmentID uint) (map[uint]bool, error) {
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	covered := make(map[uint]bool)
	for _, submission := range submissions {
		if submission.StudentID != nil {
			covered[*submission.StudentID] = true
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
			covered[member.StudentID] = true
		}
	}

	return covered, nil
}
