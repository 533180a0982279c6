package testutil

import (
	"testing"

	"github.com/anjiri1684/estate_portal/database"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewTestDB returns a migrated in-memory SQLite database. A single connection
// is used so every transaction is serialized, mirroring row locks on Postgres.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := database.GormConfig()
	cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=off"), cfg)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.MigrateSchema(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func CreateListing(t *testing.T, db *gorm.DB, title string) models.Listing {
	t.Helper()
	listing := models.Listing{
		Title:        title,
		Slug:         "listing-" + uuid.NewString()[:8],
		PropertyType: "plot",
		City:         "Hyderabad",
		Price:        2500000,
		Status:       models.ListingAvailable,
	}
	if err := db.Create(&listing).Error; err != nil {
		t.Fatalf("failed to create listing: %v", err)
	}
	return listing
}

func CreateUser(t *testing.T, db *gorm.DB, email, role string) models.User {
	t.Helper()
	user := models.User{
		FullName: "Test User",
		Email:    email,
		Password: "x",
		Role:     role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}
