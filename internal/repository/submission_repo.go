package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	GetByAssignmentAndGroup(ctx context.Context, assignmentID, groupID uint) (models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	// Upsert stores the submission as the single live row for its
	// (assignment, student) or (assignment, group) pair. It returns the file
	// keys of the replaced version so the caller can release them after the
	// new row is durable.
	Upsert(ctx context.Context, submission *models.Submission) ([]string, error)
	// UpdateWithAudit persists the graded submission and appends the audit
	// entry inside one transaction; a failed append rolls the grade back.
	UpdateWithAudit(ctx context.Context, submission *models.Submission, entry *models.ScoreAuditLog) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).Preload("Assignment")
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndGroup(ctx context.Context, assignmentID, groupID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("group_id = ?", groupID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("submitted_at ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) Upsert(ctx context.Context, submission *models.Submission) ([]string, error) {
	var replacedKeys []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("assignment_id = ?", submission.AssignmentID)
		if submission.StudentID != nil {
			query = query.Where("student_id = ?", *submission.StudentID)
		} else if submission.GroupID != nil {
			query = query.Where("group_id = ?", *submission.GroupID)
		}

		var existing models.Submission
		err := query.First(&existing).Error
		switch {
		case err == nil:
			replacedKeys = append(replacedKeys, existing.FileKeys...)
			existing.FileKeys = submission.FileKeys
			existing.SubmittedAt = submission.SubmittedAt
			existing.LaborDivision = submission.LaborDivision
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			*submission = existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(submission).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	return replacedKeys, nil
}

func (r *submissionRepository) UpdateWithAudit(ctx context.Context, submission *models.Submission, entry *models.ScoreAuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"score":      submission.Score,
			"feedback":   submission.Feedback,
			"graded_at":  submission.GradedAt,
			"graded_by":  submission.GradedBy,
			"updated_at": time.Now(),
		}

		result := tx.Model(&models.Submission{}).
			Where("id = ?", submission.ID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Create(entry).Error
	})
}
