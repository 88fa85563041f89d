package main

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/idohaver7/PatrolVision/internal/database"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/idohaver7/PatrolVision/internal/storage"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	log.SetHandler(cli.New(os.Stderr))

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.WithError(err).Fatal("❌ failed to connect to database")
	}
	defer database.Close()

	fmt.Println("Start cleanup...")

	// Uploaded media referenced by violations
	var names []string
	if err := database.DB.Model(&models.Violation{}).Pluck("media_url", &names).Error; err != nil {
		log.WithError(err).Fatal("failed to list media")
	}

	result := database.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Violation{})
	if result.Error != nil {
		log.WithError(result.Error).Fatal("failed to delete violations")
	}
	fmt.Printf("✅ Deleted %d violations\n", result.RowsAffected)

	dir := os.Getenv("UPLOADS_DIR")
	if dir == "" {
		dir = "uploads"
	}
	store, err := storage.NewMediaStore(dir)
	if err != nil {
		log.WithError(err).Fatal("failed to open uploads directory")
	}
	removed := 0
	for _, url := range names {
		name := storage.NameFromURL(url)
		if name == "" {
			continue
		}
		if err := store.Remove(name); err != nil {
			log.WithError(err).WithField("file", name).Warn("could not remove media")
			continue
		}
		removed++
	}
	fmt.Printf("✅ Removed %d media files\n", removed)

	fmt.Println("Cleanup finished successfully")
}
