package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fakeStorage struct {
	saves    int
	saved    []string
	deleted  []string
	failSave bool
}

func (f *fakeStorage) Save(_ context.Context, name string, _ io.Reader) (string, error) {
	if f.failSave {
		return "", fmt.Errorf("storage unavailable")
	}
	f.saves++
	key := fmt.Sprintf("stored/%d-%s", f.saves, name)
	f.saved = append(f.saved, key)
	return key, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) SignedURL(key string, _ time.Duration) (string, error) {
	return "https://cdn.test/" + key + "?signed=1", nil
}

type fakeRosterRepo struct {
	classes  map[uint]models.Class
	students map[uint][]models.Student
}

func newFakeRosterRepo() *fakeRosterRepo {
	return &fakeRosterRepo{
		classes:  make(map[uint]models.Class),
		students: make(map[uint][]models.Student),
	}
}

func (f *fakeRosterRepo) GetClass(_ context.Context, id uint) (models.Class, error) {
	class, ok := f.classes[id]
	if !ok {
		return models.Class{}, gorm.ErrRecordNotFound
	}
	return class, nil
}

func (f *fakeRosterRepo) ClassOwnedBy(_ context.Context, classID, teacherID uint) (bool, error) {
	class, ok := f.classes[classID]
	return ok && class.TeacherID == teacherID, nil
}

func (f *fakeRosterRepo) IsEnrolled(_ context.Context, classID, studentID uint) (bool, error) {
	for _, student := range f.students[classID] {
		if student.ID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRosterRepo) ListEnrolledStudents(_ context.Context, classID uint) ([]models.Student, error) {
	return append([]models.Student(nil), f.students[classID]...), nil
}

type fakeAssignmentRepo struct {
	assignments map[uint]models.Assignment
	nextID      uint
	cascadeKeys []string
	deleted     []uint
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{assignments: make(map[uint]models.Assignment)}
}

func (f *fakeAssignmentRepo) put(assignment models.Assignment) models.Assignment {
	if assignment.ID == 0 {
		f.nextID++
		assignment.ID = f.nextID
	} else if assignment.ID > f.nextID {
		f.nextID = assignment.ID
	}
	f.assignments[assignment.ID] = assignment
	return assignment
}

func (f *fakeAssignmentRepo) ListByClass(_ context.Context, classID uint) ([]models.Assignment, error) {
	var result []models.Assignment
	for _, assignment := range f.assignments {
		if assignment.ClassID == classID {
			result = append(result, assignment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Deadline.Before(result[j].Deadline) })
	return result, nil
}

func (f *fakeAssignmentRepo) GetByID(_ context.Context, id uint) (models.Assignment, error) {
	assignment, ok := f.assignments[id]
	if !ok {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	return assignment, nil
}

func (f *fakeAssignmentRepo) Create(_ context.Context, assignment *models.Assignment) error {
	*assignment = f.put(*assignment)
	return nil
}

func (f *fakeAssignmentRepo) Update(_ context.Context, assignment *models.Assignment) error {
	if _, ok := f.assignments[assignment.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.assignments[assignment.ID] = *assignment
	return nil
}

func (f *fakeAssignmentRepo) DeleteCascade(_ context.Context, id uint) ([]string, error) {
	if _, ok := f.assignments[id]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	delete(f.assignments, id)
	f.deleted = append(f.deleted, id)
	return append([]string(nil), f.cascadeKeys...), nil
}

func (f *fakeAssignmentRepo) ListDueForReminder(_ context.Context, now time.Time) ([]models.Assignment, error) {
	var due []models.Assignment
	for _, assignment := range f.assignments {
		if assignment.ReminderTime == nil || assignment.ReminderSent {
			continue
		}
		if assignment.ReminderTime.After(now) || !assignment.Deadline.After(now) {
			continue
		}
		due = append(due, assignment)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (f *fakeAssignmentRepo) MarkReminderSent(_ context.Context, id uint) (bool, error) {
	assignment, ok := f.assignments[id]
	if !ok || assignment.ReminderSent {
		return false, nil
	}
	assignment.ReminderSent = true
	f.assignments[id] = assignment
	return true, nil
}

type fakeSubmissionRepo struct {
	submissions map[uint]models.Submission
	nextID      uint
	audits      []models.ScoreAuditLog
	assignments *fakeAssignmentRepo
}

func newFakeSubmissionRepo(assignments *fakeAssignmentRepo) *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		submissions: make(map[uint]models.Submission),
		assignments: assignments,
	}
}

func (f *fakeSubmissionRepo) withAssignment(submission models.Submission) models.Submission {
	if f.assignments != nil {
		if assignment, ok := f.assignments.assignments[submission.AssignmentID]; ok {
			submission.Assignment = assignment
		}
	}
	return submission
}

func (f *fakeSubmissionRepo) GetByID(_ context.Context, id uint) (models.Submission, error) {
	submission, ok := f.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return f.withAssignment(submission), nil
}

func (f *fakeSubmissionRepo) GetByAssignmentAndStudent(_ context.Context, assignmentID, studentID uint) (models.Submission, error) {
	for _, submission := range f.submissions {
		if submission.AssignmentID == assignmentID && submission.StudentID != nil && *submission.StudentID == studentID {
			return f.withAssignment(submission), nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (f *fakeSubmissionRepo) GetByAssignmentAndGroup(_ context.Context, assignmentID, groupID uint) (models.Submission, error) {
	for _, submission := range f.submissions {
		if submission.AssignmentID == assignmentID && submission.GroupID != nil && *submission.GroupID == groupID {
			return f.withAssignment(submission), nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (f *fakeSubmissionRepo) ListByAssignment(_ context.Context, assignmentID uint) ([]models.Submission, error) {
	var result []models.Submission
	for _, submission := range f.submissions {
		if submission.AssignmentID == assignmentID {
			result = append(result, submission)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeSubmissionRepo) Upsert(_ context.Context, submission *models.Submission) ([]string, error) {
	for id, existing := range f.submissions {
		if existing.AssignmentID != submission.AssignmentID {
			continue
		}
		sameStudent := submission.StudentID != nil && existing.StudentID != nil && *existing.StudentID == *submission.StudentID
		sameGroup := submission.GroupID != nil && existing.GroupID != nil && *existing.GroupID == *submission.GroupID
		if !sameStudent && !sameGroup {
			continue
		}

		replaced := append([]string(nil), existing.FileKeys...)
		existing.FileKeys = submission.FileKeys
		existing.SubmittedAt = submission.SubmittedAt
		existing.LaborDivision = submission.LaborDivision
		f.submissions[id] = existing
		*submission = existing
		return replaced, nil
	}

	f.nextID++
	submission.ID = f.nextID
	f.submissions[submission.ID] = *submission
	return nil, nil
}

func (f *fakeSubmissionRepo) UpdateWithAudit(_ context.Context, submission *models.Submission, entry *models.ScoreAuditLog) error {
	existing, ok := f.submissions[submission.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}

	existing.Score = submission.Score
	existing.Feedback = submission.Feedback
	existing.GradedAt = submission.GradedAt
	existing.GradedBy = submission.GradedBy
	f.submissions[submission.ID] = existing
	f.audits = append(f.audits, *entry)
	return nil
}

type fakeGroupRepo struct {
	groups       map[uint]models.AssignmentGroup
	order        []uint
	nextGroupID  uint
	nextMemberID uint
	roster       *fakeRosterRepo
}

func newFakeGroupRepo(roster *fakeRosterRepo) *fakeGroupRepo {
	return &fakeGroupRepo{
		groups: make(map[uint]models.AssignmentGroup),
		roster: roster,
	}
}

func (f *fakeGroupRepo) sortedMembers(group models.AssignmentGroup) []models.GroupMember {
	members := append([]models.GroupMember(nil), group.Members...)
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}

func (f *fakeGroupRepo) GetByID(_ context.Context, id uint) (models.AssignmentGroup, error) {
	group, ok := f.groups[id]
	if !ok {
		return models.AssignmentGroup{}, gorm.ErrRecordNotFound
	}
	group.Members = f.sortedMembers(group)
	return group, nil
}

func (f *fakeGroupRepo) ListByAssignment(_ context.Context, assignmentID uint) ([]models.AssignmentGroup, error) {
	var result []models.AssignmentGroup
	for _, id := range f.order {
		group, ok := f.groups[id]
		if !ok || group.AssignmentID != assignmentID {
			continue
		}
		group.Members = f.sortedMembers(group)
		result = append(result, group)
	}
	return result, nil
}

func (f *fakeGroupRepo) FindMembership(_ context.Context, assignmentID, studentID uint) (models.GroupMember, error) {
	for _, group := range f.groups {
		for _, member := range group.Members {
			if member.AssignmentID == assignmentID && member.StudentID == studentID {
				return member, nil
			}
		}
	}
	return models.GroupMember{}, gorm.ErrRecordNotFound
}

func (f *fakeGroupRepo) hasMembership(assignmentID, studentID uint) bool {
	_, err := f.FindMembership(context.Background(), assignmentID, studentID)
	return err == nil
}

func (f *fakeGroupRepo) CreateWithLeader(_ context.Context, group *models.AssignmentGroup, leader *models.GroupMember) error {
	if f.hasMembership(group.AssignmentID, leader.StudentID) {
		return repository.ErrDuplicateMembership
	}

	f.nextGroupID++
	group.ID = f.nextGroupID
	f.nextMemberID++
	leader.ID = f.nextMemberID
	leader.GroupID = group.ID

	stored := *group
	stored.Members = []models.GroupMember{*leader}
	f.groups[group.ID] = stored
	f.order = append(f.order, group.ID)
	return nil
}

func (f *fakeGroupRepo) AddMember(_ context.Context, groupID uint, member *models.GroupMember, maxSize int) error {
	group, ok := f.groups[groupID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if maxSize > 0 && len(group.Members) >= maxSize {
		return repository.ErrGroupCapacityReached
	}
	if f.hasMembership(member.AssignmentID, member.StudentID) {
		return repository.ErrDuplicateMembership
	}

	f.nextMemberID++
	member.ID = f.nextMemberID
	member.GroupID = groupID
	group.Members = append(group.Members, *member)
	f.groups[groupID] = group
	return nil
}

func (f *fakeGroupRepo) RemoveMember(_ context.Context, groupID, studentID uint) (bool, *uint, error) {
	group, ok := f.groups[groupID]
	if !ok {
		return false, nil, gorm.ErrRecordNotFound
	}

	found := false
	remaining := make([]models.GroupMember, 0, len(group.Members))
	for _, member := range group.Members {
		if member.StudentID == studentID {
			found = true
			continue
		}
		remaining = append(remaining, member)
	}
	if !found {
		return false, nil, gorm.ErrRecordNotFound
	}
	group.Members = remaining

	if group.LeaderID != studentID {
		f.groups[groupID] = group
		return false, nil, nil
	}

	if len(remaining) == 0 {
		delete(f.groups, groupID)
		return true, nil, nil
	}

	successor := f.sortedMembers(group)[0]
	for i := range group.Members {
		if group.Members[i].ID == successor.ID {
			group.Members[i].Role = models.GroupRoleLeader
		}
	}
	group.LeaderID = successor.StudentID
	f.groups[groupID] = group
	return false, &successor.StudentID, nil
}

func (f *fakeGroupRepo) UpdateStatus(_ context.Context, groupID uint, from []models.GroupStatus, to models.GroupStatus) error {
	group, ok := f.groups[groupID]
	if !ok {
		return gorm.ErrRecordNotFound
	}

	allowed := false
	for _, status := range from {
		if group.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return gorm.ErrRecordNotFound
	}

	group.Status = to
	f.groups[groupID] = group
	return nil
}

func (f *fakeGroupRepo) ListUnassignedStudents(_ context.Context, assignmentID, classID uint) ([]models.Student, error) {
	var result []models.Student
	for _, student := range f.roster.students[classID] {
		if !f.hasMembership(assignmentID, student.ID) {
			result = append(result, student)
		}
	}
	return result, nil
}

func (f *fakeGroupRepo) CountByAssignment(_ context.Context, assignmentID uint) (int64, error) {
	var count int64
	for _, group := range f.groups {
		if group.AssignmentID == assignmentID {
			count++
		}
	}
	return count, nil
}

type fakeScoreRepo struct {
	adjustments map[[2]uint]models.ScoreAdjustment
	audits      []models.ScoreAuditLog
	failFor     map[uint]bool
}

func newFakeScoreRepo() *fakeScoreRepo {
	return &fakeScoreRepo{
		adjustments: make(map[[2]uint]models.ScoreAdjustment),
		failFor:     make(map[uint]bool),
	}
}

func (f *fakeScoreRepo) ListAuditBySubmission(_ context.Context, submissionID uint) ([]models.ScoreAuditLog, error) {
	var result []models.ScoreAuditLog
	for i := len(f.audits) - 1; i >= 0; i-- {
		if f.audits[i].SubmissionID == submissionID {
			result = append(result, f.audits[i])
		}
	}
	return result, nil
}

func (f *fakeScoreRepo) ListAuditByStudent(_ context.Context, studentID uint) ([]models.ScoreAuditLog, error) {
	var result []models.ScoreAuditLog
	for i := len(f.audits) - 1; i >= 0; i-- {
		if f.audits[i].StudentID != nil && *f.audits[i].StudentID == studentID {
			result = append(result, f.audits[i])
		}
	}
	return result, nil
}

func (f *fakeScoreRepo) GetAdjustment(_ context.Context, submissionID, studentID uint) (models.ScoreAdjustment, error) {
	adjustment, ok := f.adjustments[[2]uint{submissionID, studentID}]
	if !ok {
		return models.ScoreAdjustment{}, gorm.ErrRecordNotFound
	}
	return adjustment, nil
}

func (f *fakeScoreRepo) ListAdjustmentsBySubmission(_ context.Context, submissionID uint) ([]models.ScoreAdjustment, error) {
	var result []models.ScoreAdjustment
	for key, adjustment := range f.adjustments {
		if key[0] == submissionID {
			result = append(result, adjustment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result, nil
}

func (f *fakeScoreRepo) UpsertAdjustmentWithAudit(_ context.Context, adjustment *models.ScoreAdjustment, entry *models.ScoreAuditLog) error {
	if f.failFor[adjustment.StudentID] {
		return fmt.Errorf("forced write failure")
	}

	f.adjustments[[2]uint{adjustment.SubmissionID, adjustment.StudentID}] = *adjustment
	f.audits = append(f.audits, *entry)
	return nil
}
