package migrations

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/confsentinel/sentinel/internal/models"
)

// Migrate runs the initial database migrations
func Migrate(db *gorm.DB) error {
	// Migrate models individually to avoid GORM confusion about relationships
	err := db.AutoMigrate(&models.TrackedFile{})
	if err != nil {
		return fmt.Errorf("failed to migrate tracked file model: %v", err)
	}

	err = db.AutoMigrate(&models.EnrolledSnapshot{})
	if err != nil {
		return fmt.Errorf("failed to migrate enrolled snapshot model: %v", err)
	}

	err = db.AutoMigrate(&models.Incident{})
	if err != nil {
		return fmt.Errorf("failed to migrate incident model: %v", err)
	}

	err = db.AutoMigrate(&models.ContentMismatchDetail{})
	if err != nil {
		return fmt.Errorf("failed to migrate content mismatch detail model: %v", err)
	}

	err = db.AutoMigrate(&models.MetadataMismatchDetail{})
	if err != nil {
		return fmt.Errorf("failed to migrate metadata mismatch detail model: %v", err)
	}

	err = db.AutoMigrate(&models.RawChangeEvent{})
	if err != nil {
		return fmt.Errorf("failed to migrate raw change event model: %v", err)
	}

	return nil
}
