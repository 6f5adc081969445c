package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// ScoreRepository persists the append-only audit ledger and per-student
// score adjustments.
type ScoreRepository interface {
	ListAuditBySubmission(ctx context.Context, submissionID uint) ([]models.ScoreAuditLog, error)
	ListAuditByStudent(ctx context.Context, studentID uint) ([]models.ScoreAuditLog, error)
	GetAdjustment(ctx context.Context, submissionID, studentID uint) (models.ScoreAdjustment, error)
	ListAdjustmentsBySubmission(ctx context.Context, submissionID uint) ([]models.ScoreAdjustment, error)
	// UpsertAdjustmentWithAudit writes one adjustment row keyed by
	// (submission, student) and its audit entry in a single transaction, so a
	// persisted adjustment can never miss its ledger entry.
	UpsertAdjustmentWithAudit(ctx context.Context, adjustment *models.ScoreAdjustment, entry *models.ScoreAuditLog) error
}

type scoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository instantiates a GORM-backed score repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) ListAuditBySubmission(ctx context.Context, submissionID uint) ([]models.ScoreAuditLog, error) {
	var entries []models.ScoreAuditLog
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *scoreRepository) ListAuditByStudent(ctx context.Context, studentID uint) ([]models.ScoreAuditLog, error) {
	var entries []models.ScoreAuditLog
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *scoreRepository) GetAdjustment(ctx context.Context, submissionID, studentID uint) (models.ScoreAdjustment, error) {
	var adjustment models.ScoreAdjustment
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Where("student_id = ?", studentID).
		First(&adjustment).Error
	if err != nil {
		return models.ScoreAdjustment{}, err
	}

	return adjustment, nil
}

func (r *scoreRepository) ListAdjustmentsBySubmission(ctx context.Context, submissionID uint) ([]models.ScoreAdjustment, error) {
	var adjustments []models.ScoreAdjustment
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("student_id ASC").
		Find(&adjustments).Error
	if err != nil {
		return nil, err
	}

	return adjustments, nil
}

func (r *scoreRepository) UpsertAdjustmentWithAudit(ctx context.Context, adjustment *models.ScoreAdjustment, entry *models.ScoreAuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}, {Name: "student_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"base_score", "adjust_score", "final_score", "reason", "updated_at",
			}),
		}).Create(adjustment).Error
		if err != nil {
			return err
		}

		return tx.Create(entry).Error
	})
}
