package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/models"
)

// RosterRepository exposes read-only class membership queries.
type RosterRepository interface {
	GetClass(ctx context.Context, id uint) (models.Class, error)
	ClassOwnedBy(ctx context.Context, classID, teacherID uint) (bool, error)
	IsEnrolled(ctx context.Context, classID, studentID uint) (bool, error)
	ListEnrolledStudents(ctx context.Context, classID uint) ([]models.Student, error)
}

type rosterRepository struct {
	db *gorm.DB
}

// NewRosterRepository instantiates a GORM-backed roster repository.
func NewRosterRepository(db *gorm.DB) RosterRepository {
	return &rosterRepository{db: db}
}

func (r *rosterRepository) GetClass(ctx context.Context, id uint) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).First(&class, id).Error; err != nil {
		return models.Class{}, err
	}

	return class, nil
}

func (r *rosterRepository) ClassOwnedBy(ctx context.Context, classID, teacherID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Class{}).
		Where("id = ?", classID).
		Where("teacher_id = ?", teacherID).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *rosterRepository) IsEnrolled(ctx context.Context, classID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("class_id = ?", classID).
		Where("student_id = ?", studentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *rosterRepository) ListEnrolledStudents(ctx context.Context, classID uint) ([]models.Student, error) {
	var students []models.Student
	err := r.db.WithContext(ctx).
		Joins("JOIN enrollments ON enrollments.student_id = students.id").
		Where("enrollments.class_id = ?", classID).
		Order("enrollments.joined_at ASC").
		Find(&students).Error
	if err != nil {
		return nil, err
	}

	return students, nil
}
