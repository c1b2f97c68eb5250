package db

import (
	"fmt"

	"github.com/zulandar/locallm/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model in the schema.
func AllModels() []interface{} {
	return []interface{}{
		&models.Setting{},
		&models.Conversation{},
		&models.Message{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Reset drops every table and migrates a fresh schema.
func Reset(db *gorm.DB) error {
	all := AllModels()
	// Drop in reverse so messages go before conversations.
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("db: drop %T: %w", all[i], err)
		}
	}
	return AutoMigrate(db)
}
