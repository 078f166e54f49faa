package postgres

import (
	"context"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
	"gorm.io/gorm"
)

type CatalogPostgreSQL struct {
	db *gorm.DB
}

func NewCatalogPostgreSQL(db *gorm.DB) repositories.TestCatalog {
	return &CatalogPostgreSQL{db: db}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (c *CatalogPostgreSQL) GetTestDefinition(ctx context.Context, testID string) (*models.TestDefinition, error) {
	var test models.TestDefinition
	if err := c.db.WithContext(ctx).
		Preload("Sections", byPosition).
		Preload("Sections.Questions", byPosition).
		Preload("Sections.Questions.Options", byPosition).
		First(&test, "id = ?", testID).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &test, nil
}

func (c *CatalogPostgreSQL) IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("subject_id = ? AND student_id = ? AND active = ?", subjectID, studentID, true).
		Count(&count).Error
	return count > 0, err
}
