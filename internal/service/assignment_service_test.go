package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-homework-api/internal/dto"
	"github.com/noah-isme/edu-homework-api/internal/models"
)

func setupAssignmentService(t *testing.T) (*assignmentService, *fakeAssignmentRepo, *fakeStorage) {
	t.Helper()

	roster := newFakeRosterRepo()
	roster.classes[1] = models.Class{ID: 1, Name: "CS101", TeacherID: 10}

	assignments := newFakeAssignmentRepo()
	store := &fakeStorage{}
	validate := validator.New(validator.WithRequiredStructEnabled())

	svc := NewAssignmentService(assignments, roster, store, validate, testLogger())
	return svc.(*assignmentService), assignments, store
}

func validCreateRequest() dto.AssignmentCreateRequest {
	now := time.Now()
	return dto.AssignmentCreateRequest{
		ClassID:     1,
		Title:       "Sorting algorithms",
		Description: "Implement merge sort and quick sort with benchmarks.",
		StartTime:   now.Add(time.Hour).Format(time.RFC3339),
		Deadline:    now.Add(48 * time.Hour).Format(time.RFC3339),
		MaxScore:    100,
	}
}

func TestCreateAssignmentRejectsInvertedWindow(t *testing.T) {
	svc, _, _ := setupAssignmentService(t)

	payload := validCreateRequest()
	payload.StartTime, payload.Deadline = payload.Deadline, payload.StartTime

	_, err := svc.Create(context.Background(), 10, payload)
	require.ErrorIs(t, err, ErrInvalidTimeWindow)
}

func TestCreateAssignmentRejectsMismatchedConfig(t *testing.T) {
	svc, _, _ := setupAssignmentService(t)

	// STANDARD assignment carrying a group-project config.
	payload := validCreateRequest()
	payload.Config = models.AssignmentConfig{
		GroupProject: &models.GroupProjectConfig{MinSize: 2, MaxSize: 4},
	}

	_, err := svc.Create(context.Background(), 10, payload)
	require.ErrorIs(t, err, ErrConfigMismatch)

	// GROUP_PROJECT assignment without one.
	payload = validCreateRequest()
	payload.Type = string(models.AssignmentTypeGroupProject)

	_, err = svc.Create(context.Background(), 10, payload)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestCreateAssignmentDerivesReminderTime(t *testing.T) {
	svc, _, _ := setupAssignmentService(t)

	payload := validCreateRequest()
	payload.ReminderHours = 24

	created, err := svc.Create(context.Background(), 10, payload)
	require.NoError(t, err)
	require.NotNil(t, created.ReminderTime)

	deadline, err := time.Parse(time.RFC3339, payload.Deadline)
	require.NoError(t, err)
	require.WithinDuration(t, deadline.Add(-24*time.Hour), *created.ReminderTime, time.Second)
}

func TestUpdateDeadlineDoesNotRecomputeReminder(t *testing.T) {
	svc, _, _ := setupAssignmentService(t)

	payload := validCreateRequest()
	payload.ReminderHours = 24
	created, err := svc.Create(context.Background(), 10, payload)
	require.NoError(t, err)
	originalReminder := *created.ReminderTime

	newDeadline := time.Now().Add(96 * time.Hour).Format(time.RFC3339)
	updated, err := svc.Update(context.Background(), 10, created.ID, dto.AssignmentUpdateRequest{
		Deadline: &newDeadline,
	})
	require.NoError(t, err)

	// The reminder stays where it was fixed at creation time.
	require.NotNil(t, updated.ReminderTime)
	require.WithinDuration(t, originalReminder, *updated.ReminderTime, time.Second)

	// An explicit reminder patch re-derives from the current deadline.
	hours := 12
	updated, err = svc.Update(context.Background(), 10, created.ID, dto.AssignmentUpdateRequest{
		ReminderHours: &hours,
	})
	require.NoError(t, err)
	deadline, err := time.Parse(time.RFC3339, newDeadline)
	require.NoError(t, err)
	require.WithinDuration(t, deadline.Add(-12*time.Hour), *updated.ReminderTime, time.Second)

	// Zero hours clears the reminder.
	zero := 0
	updated, err = svc.Update(context.Background(), 10, created.ID, dto.AssignmentUpdateRequest{
		ReminderHours: &zero,
	})
	require.NoError(t, err)
	require.Nil(t, updated.ReminderTime)
}

func TestUpdateValidatesEffectiveWindow(t *testing.T) {
	svc, _, _ := setupAssignmentService(t)

	created, err := svc.Create(context.Background(), 10, validCreateRequest())
	require.NoError(t, err)

	// Pulling the deadline before the unchanged start time must fail.
	badDeadline := time.Now().Add(30 * time.Minute).Format(time.RFC3339)
	_, err = svc.Update(context.Background(), 10, created.ID, dto.AssignmentUpdateRequest{
		Deadline: &badDeadline,
	})
	require.ErrorIs(t, err, ErrInvalidTimeWindow)
}

func TestCreateAssignmentRequiresOwnership(t *testing.T) {
	svc, _, _ := setupAssignmentService(t)

	_, err := svc.Create(context.Background(), 99, validCreateRequest())
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDeleteAssignmentReleasesStoredFiles(t *testing.T) {
	svc, assignments, store := setupAssignmentService(t)

	created, err := svc.Create(context.Background(), 10, validCreateRequest())
	require.NoError(t, err)

	assignments.cascadeKeys = []string{"stored/1-a.pdf", "stored/2-b.pdf"}

	require.NoError(t, svc.Delete(context.Background(), 10, created.ID))
	require.Equal(t, []string{"stored/1-a.pdf", "stored/2-b.pdf"}, store.deleted)

	_, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestDeleteAssignmentUnknownID(t *testing.T) {
	svc, _, _ := setupAssignmentService(t)

	err := svc.Delete(context.Background(), 10, 404)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}
