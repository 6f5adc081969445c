package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func windowAssignment(allowLate bool) Assignment {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return Assignment{
		StartTime: base,
		Deadline:  base.Add(72 * time.Hour),
		AllowLate: allowLate,
	}
}

func TestStatusAtTransitions(t *testing.T) {
	assignment := windowAssignment(false)

	require.Equal(t, AssignmentStatusNotStarted, assignment.StatusAt(assignment.StartTime.Add(-time.Minute)))
	require.Equal(t, AssignmentStatusOpen, assignment.StatusAt(assignment.StartTime))
	require.Equal(t, AssignmentStatusOpen, assignment.StatusAt(assignment.Deadline))
	require.Equal(t, AssignmentStatusClosed, assignment.StatusAt(assignment.Deadline.Add(time.Second)))

	late := windowAssignment(true)
	require.Equal(t, AssignmentStatusLateOpen, late.StatusAt(late.Deadline.Add(time.Second)))
}

func TestAcceptsSubmissions(t *testing.T) {
	assignment := windowAssignment(false)
	require.False(t, assignment.AcceptsSubmissions(assignment.StartTime.Add(-time.Minute)))
	require.True(t, assignment.AcceptsSubmissions(assignment.Deadline))
	require.False(t, assignment.AcceptsSubmissions(assignment.Deadline.Add(time.Second)))

	late := windowAssignment(true)
	require.True(t, late.AcceptsSubmissions(late.Deadline.Add(24*time.Hour)))
}

func TestDeriveReminderTime(t *testing.T) {
	deadline := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

	reminder := DeriveReminderTime(deadline, 24)
	require.NotNil(t, reminder)
	require.Equal(t, deadline.Add(-24*time.Hour), *reminder)

	require.Nil(t, DeriveReminderTime(deadline, 0))
	require.Nil(t, DeriveReminderTime(deadline, -1))
}

func TestAssignmentConfigMatches(t *testing.T) {
	group := AssignmentConfig{GroupProject: &GroupProjectConfig{MinSize: 2, MaxSize: 5}}
	practice := AssignmentConfig{SelfPractice: &SelfPracticeConfig{CountLimit: 3}}
	both := AssignmentConfig{GroupProject: group.GroupProject, SelfPractice: practice.SelfPractice}

	require.True(t, AssignmentConfig{}.Matches(AssignmentTypeStandard))
	require.True(t, group.Matches(AssignmentTypeGroupProject))
	require.True(t, practice.Matches(AssignmentTypeSelfPractice))

	require.False(t, group.Matches(AssignmentTypeStandard))
	require.False(t, AssignmentConfig{}.Matches(AssignmentTypeGroupProject))
	require.False(t, practice.Matches(AssignmentTypeGroupProject))
	require.False(t, both.Matches(AssignmentTypeGroupProject))
	require.False(t, both.Matches(AssignmentTypeSelfPractice))
}

func TestConfigRoundTripThroughRawColumn(t *testing.T) {
	deadline := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	assignment := Assignment{
		Type: AssignmentTypeGroupProject,
		Config: AssignmentConfig{
			GroupProject: &GroupProjectConfig{
				GroupRequired: true,
				MinSize:       2,
				MaxSize:       5,
				GroupDeadline: &deadline,
				AllowSwitch:   true,
			},
		},
	}

	require.NoError(t, assignment.BeforeSave(nil))
	require.NotEmpty(t, assignment.RawConfig)

	// Simulate a fresh load: wipe the decoded form and hydrate from the column.
	assignment.Config = AssignmentConfig{}
	require.NoError(t, assignment.AfterFind(nil))

	require.NotNil(t, assignment.Config.GroupProject)
	require.Equal(t, 5, assignment.Config.GroupProject.MaxSize)
	require.True(t, assignment.Config.GroupProject.GroupRequired)
	require.NotNil(t, assignment.Config.GroupProject.GroupDeadline)
	require.True(t, deadline.Equal(*assignment.Config.GroupProject.GroupDeadline))
}

func TestBeforeSaveRejectsMismatchedConfig(t *testing.T) {
	assignment := Assignment{
		Type:   AssignmentTypeStandard,
		Config: AssignmentConfig{SelfPractice: &SelfPracticeConfig{}},
	}

	require.Error(t, assignment.BeforeSave(nil))
}
