package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// ErrGroupCapacityReached is returned when a join would exceed the group's
// maximum size. The capacity check runs under a row lock so two concurrent
// joins cannot both pass it.
var ErrGroupCapacityReached = errors.New("group capacity reached")

// ErrDuplicateMembership is returned when the unique membership index rejects
// a second group for the same (assignment, student) pair.
var ErrDuplicateMembership = errors.New("student already belongs to a group for this assignment")

// GroupRepository defines persistence operations for assignment groups.
type GroupRepository interface {
	GetByID(ctx context.Context, id uint) (models.AssignmentGroup, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.AssignmentGroup, error)
	FindMembership(ctx context.Context, assignmentID, studentID uint) (models.GroupMember, error)
	// CreateWithLeader persists the group and its founding leader membership
	// in one transaction.
	CreateWithLeader(ctx context.Context, group *models.AssignmentGroup, leader *models.GroupMember) error
	// AddMember inserts a membership under a row lock on the group. When
	// maxSize > 0 the current member count is checked before inserting.
	AddMember(ctx context.Context, groupID uint, member *models.GroupMember, maxSize int) error
	// RemoveMember deletes the membership and, when the leaver is the leader,
	// either promotes the earliest-joined remaining member or dissolves the
	// group. It reports whether the group was dissolved and the new leader id
	// when a transfer happened.
	RemoveMember(ctx context.Context, groupID, studentID uint) (dissolved bool, newLeaderID *uint, err error)
	// UpdateStatus transitions the group state conditionally; it reports
	// gorm.ErrRecordNotFound when the group is not in one of the from states.
	UpdateStatus(ctx context.Context, groupID uint, from []models.GroupStatus, to models.GroupStatus) error
	// ListUnassignedStudents returns enrolled students of the class that have
	// no membership for the assignment, in enrollment order.
	ListUnassignedStudents(ctx context.Context, assignmentID, classID uint) ([]models.Student, error)
	CountByAssignment(ctx context.Context, assignmentID uint) (int64, error)
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository instantiates a GORM-backed group repository.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) GetByID(ctx context.Context, id uint) (models.AssignmentGroup, error) {
	var group models.AssignmentGroup
	err := r.db.WithContext(ctx).
		Preload("Members", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("joined_at ASC")
		}).
		First(&group, id).Error
	if err != nil {
		return models.AssignmentGroup{}, err
	}

	return group, nil
}

func (r *groupRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.AssignmentGroup, error) {
	var groups []models.AssignmentGroup
	err := r.db.WithContext(ctx).
		Preload("Members", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("joined_at ASC")
		}).
		Where("assignment_id = ?", assignmentID).
		Order("created_at ASC, id ASC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}

	return groups, nil
}

func (r *groupRepository) FindMembership(ctx context.Context, assignmentID, studentID uint) (models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&member).Error
	if err != nil {
		return models.GroupMember{}, err
	}

	return member, nil
}

func (r *groupRepository) CreateWithLeader(ctx context.Context, group *models.AssignmentGroup, leader *models.GroupMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(group).Error; err != nil {
			return err
		}

		leader.GroupID = group.ID
		if err := tx.Create(leader).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateMembership
			}
			return err
		}

		return nil
	})
}

func (r *groupRepository) AddMember(ctx context.Context, groupID uint, member *models.GroupMember, maxSize int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.AssignmentGroup
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&group, groupID).Error; err != nil {
			return err
		}

		if maxSize > 0 {
			var count int64
			if err := tx.Model(&models.GroupMember{}).
				Where("group_id = ?", groupID).
				Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(maxSize) {
				return ErrGroupCapacityReached
			}
		}

		member.GroupID = groupID
		if err := tx.Create(member).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateMembership
			}
			return err
		}

		return nil
	})
}

func (r *groupRepository) RemoveMember(ctx context.Context, groupID, studentID uint) (bool, *uint, error) {
	var dissolved bool
	var newLeaderID *uint

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.AssignmentGroup
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&group, groupID).Error; err != nil {
			return err
		}

		result := tx.Where("group_id = ?", groupID).
			Where("student_id = ?", studentID).
			Delete(&models.GroupMember{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if group.LeaderID != studentID {
			return nil
		}

		var successor models.GroupMember
		err := tx.Where("group_id = ?", groupID).
			Order("joined_at ASC, id ASC").
			First(&successor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dissolved = true
			return tx.Delete(&models.AssignmentGroup{}, groupID).Error
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&models.GroupMember{}).
			Where("id = ?", successor.ID).
			Update("role", models.GroupRoleLeader).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.AssignmentGroup{}).
			Where("id = ?", groupID).
			Update("leader_id", successor.StudentID).Error; err != nil {
			return err
		}

		newLeaderID = &successor.StudentID
		return nil
	})
	if err != nil {
		return false, nil, err
	}

	return dissolved, newLeaderID, nil
}

func (r *groupRepository) UpdateStatus(ctx context.Context, groupID uint, from []models.GroupStatus, to models.GroupStatus) error {
	result := r.db.WithContext(ctx).Model(&models.AssignmentGroup{}).
		Where("id = ?", groupID).
		Where("status IN ?", from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *groupRepository) ListUnassignedStudents(ctx context.Context, assignmentID, classID uint) ([]models.Student, error) {
	var students []models.Student
	err := r.db.WithContext(ctx).
		Joins("JOIN enrollments ON enrollments.student_id = students.id").
		Where("enrollments.class_id = ?", classID).
		Where("students.id NOT IN (?)",
			r.db.Model(&models.GroupMember{}).Select("student_id").Where("assignment_id = ?", assignmentID),
		).
		Order("enrollments.joined_at ASC, students.id ASC").
		Find(&students).Error
	if err != nil {
		return nil, err
	}

	return students, nil
}

func (r *groupRepository) CountByAssignment(ctx context.Context, assignmentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AssignmentGroup{}).
		Where("assignment_id = ?", assignmentID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// Fall back to the driver message for backends that do not translate
	// constraint errors.
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}
