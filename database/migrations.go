package database

import (
	"log/slog"

	"inkpress/models"

	"gorm.io/gorm"
)

// All lists every model AutoMigrate manages. Tests migrate the same set.
func All() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Category{},
		&models.Tag{},
		&models.Post{},
		&models.Comment{},
		&models.PostLike{},
		&models.CommentLike{},
		&models.NewsletterSubscriber{},
		&models.SiteSettings{},
		&models.Contact{},
		&models.BlacklistedToken{},
	}
}

func RunMigrations(db *gorm.DB) error {
	slog.Info("running database migrations")

	if err := db.AutoMigrate(All()...); err != nil {
		slog.Error("migrations failed", "error", err)
		return err
	}

	slog.Info("migrations completed")
	return nil
}
