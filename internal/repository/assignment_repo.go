package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	ListByClass(ctx context.Context, classID uint) ([]models.Assignment, error)
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	// DeleteCascade removes the assignment together with its submissions,
	// groups and group memberships in one transaction and returns every file
	// key that was reachable from the deleted submissions so the caller can
	// release the blobs afterwards.
	DeleteCascade(ctx context.Context, id uint) ([]string, error)
	// ListDueForReminder selects assignments whose reminder window has opened
	// and whose deadline has not yet passed.
	ListDueForReminder(ctx context.Context, now time.Time) ([]models.Assignment, error)
	// MarkReminderSent flips reminder_sent exactly once. It reports false when
	// another sweep already claimed the assignment.
	MarkReminderSent(ctx context.Context, id uint) (bool, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) ListByClass(ctx context.Context, classID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.db.WithContext(ctx).
		Where("class_id = ?", classID).
		Order("deadline ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

func (r *assignmentRepository) DeleteCascade(ctx context.Context, id uint) ([]string, error) {
	var fileKeys []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment models.Assignment
		if err := tx.First(&assignment, id).Error; err != nil {
			return err
		}

		var submissions []models.Submission
		if err := tx.Where("assignment_id = ?", id).Find(&submissions).Error; err != nil {
			return err
		}

		for _, submission := range submissions {
			fileKeys = append(fileKeys, submission.FileKeys...)
		}

		if err := tx.Where("submission_id IN (?)",
			tx.Model(&models.Submission{}).Select("id").Where("assignment_id = ?", id),
		).Delete(&models.ScoreAdjustment{}).Error; err != nil {
			return err
		}

		if err := tx.Where("assignment_id = ?", id).Delete(&models.Submission{}).Error; err != nil {
			return err
		}

		if err := tx.Where("assignment_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}

		if err := tx.Where("assignment_id = ?", id).Delete(&models.AssignmentGroup{}).Error; err != nil {
			return err
		}

		return tx.Delete(&models.Assignment{}, id).Error
	})
	if err != nil {
		return nil, err
	}

	return fileKeys, nil
}

func (r *assignmentRepository) ListDueForReminder(ctx context.Context, now time.Time) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.db.WithContext(ctx).
		Where("reminder_time IS NOT NULL").
		Where("reminder_time <= ?", now).
		Where("reminder_sent = ?", false).
		Where("deadline > ?", now).
		Order("reminder_time ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) MarkReminderSent(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ?", id).
		Where("reminder_sent = ?", false).
		Update("reminder_sent", true)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
