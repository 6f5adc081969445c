package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

func setupStatsService(t *testing.T, cache *redis.Client) (*statsService, *fakeAssignmentRepo, *fakeSubmissionRepo) {
	t.Helper()

	roster := newFakeRosterRepo()
	roster.classes[1] = models.Class{ID: 1, Name: "CS101", TeacherID: 10}
	roster.students[1] = []models.Student{
		{ID: 100, Name: "Alice"},
		{ID: 101, Name: "Bob"},
		{ID: 102, Name: "Cara"},
		{ID: 103, Name: "Dan"},
	}

	assignments := newFakeAssignmentRepo()
	submissions := newFakeSubmissionRepo(assignments)
	groups := newFakeGroupRepo(roster)

	svc := NewStatsService(assignments, submissions, groups, roster, cache, time.Minute, testLogger())
	return svc.(*statsService), assignments, submissions
}

func statsAssignment(assignments *fakeAssignmentRepo) models.Assignment {
	now := time.Now()
	return assignments.put(models.Assignment{
		ClassID:   1,
		Title:     "Quiz",
		StartTime: now.Add(-48 * time.Hour),
		Deadline:  now.Add(-time.Hour),
		MaxScore:  100,
	})
}

func addGradedSubmission(t *testing.T, submissions *fakeSubmissionRepo, assignmentID, studentID uint, score float64) {
	t.Helper()
	id := studentID
	submission := models.Submission{
		AssignmentID: assignmentID,
		StudentID:    &id,
		Score:        &score,
		Feedback:     "reviewed",
		SubmittedAt:  time.Now().Add(-2 * time.Hour),
	}
	_, err := submissions.Upsert(context.Background(), &submission)
	require.NoError(t, err)
}

func TestExportGradesIncludesNonSubmitters(t *testing.T) {
	svc, assignments, submissions := setupStatsService(t, nil)
	assignment := statsAssignment(assignments)
	addGradedSubmission(t, submissions, assignment.ID, 100, 92)
	addGradedSubmission(t, submissions, assignment.ID, 101, 58)

	rows, err := svc.ExportGrades(context.Background(), Actor{ID: 10, Role: "teacher"}, assignment.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	require.True(t, rows[0].Submitted)
	require.Equal(t, 92.0, *rows[0].Score)

	// Cara and Dan never submitted but still appear.
	require.False(t, rows[2].Submitted)
	require.Nil(t, rows[2].Score)
	require.False(t, rows[3].Submitted)
}

func TestWriteGradesCSV(t *testing.T) {
	svc, assignments, submissions := setupStatsService(t, nil)
	assignment := statsAssignment(assignments)
	addGradedSubmission(t, submissions, assignment.ID, 100, 92)

	var buf bytes.Buffer
	err := svc.WriteGradesCSV(context.Background(), Actor{ID: 10, Role: "teacher"}, assignment.ID, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	require.Equal(t, "student_id,student_name,submitted,submitted_at,score,feedback", lines[0])
	require.Contains(t, lines[1], "100,Alice,true")
	require.Contains(t, lines[1], "92")
	require.Contains(t, lines[2], "101,Bob,false,,,")
}

func TestStatisticsBandsAndRates(t *testing.T) {
	svc, assignments, submissions := setupStatsService(t, nil)
	assignment := statsAssignment(assignments)
	addGradedSubmission(t, submissions, assignment.ID, 100, 95)
	addGradedSubmission(t, submissions, assignment.ID, 101, 71)
	addGradedSubmission(t, submissions, assignment.ID, 102, 45)

	stats, err := svc.Statistics(context.Background(), Actor{ID: 10, Role: "teacher"}, assignment.ID)
	require.NoError(t, err)
	require.Equal(t, 4, stats.EnrolledCount)
	require.Equal(t, 3, stats.SubmittedCount)
	require.Equal(t, 3, stats.GradedCount)
	require.InDelta(t, 0.75, stats.SubmissionRate, 0.001)
	require.InDelta(t, 70.333, stats.AverageScore, 0.001)
	require.Equal(t, 1, stats.Distribution["90-100"])
	require.Equal(t, 1, stats.Distribution["70-79"])
	require.Equal(t, 1, stats.Distribution["<60"])
	require.Zero(t, stats.Distribution["80-89"])
}

func TestStatisticsCaching(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	svc, assignments, submissions := setupStatsService(t, client)
	assignment := statsAssignment(assignments)
	addGradedSubmission(t, submissions, assignment.ID, 100, 80)

	first, err := svc.Statistics(context.Background(), Actor{ID: 10, Role: "teacher"}, assignment.ID)
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Equal(t, 1, first.SubmittedCount)

	// New submissions are invisible until the cache entry expires.
	addGradedSubmission(t, submissions, assignment.ID, 101, 90)

	cached, err := svc.Statistics(context.Background(), Actor{ID: 10, Role: "teacher"}, assignment.ID)
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
	require.Equal(t, first.SubmittedCount, cached.SubmittedCount)
}

func TestStatisticsRequiresOwnership(t *testing.T) {
	svc, assignments, _ := setupStatsService(t, nil)
	assignment := statsAssignment(assignments)

	_, err := svc.Statistics(context.Background(), Actor{ID: 99, Role: "teacher"}, assignment.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)
}
