package database

import (
	"fmt"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// confirmedSlotIndex keeps at most one confirmed booking per listing, date and slot.
// Partial indexes are understood by both Postgres and SQLite.
const confirmedSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_confirmed_slot
	ON bookings (listing_id, booking_date, booking_time)
	WHERE status = 'confirmed'`

// GormConfig is shared by the Postgres connection and the test databases so
// both translate driver errors the same way.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

func ConnectDB(dsn string) error {
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	logger.Log.Info("✅ Database connected successfully")
	return nil
}

func Migrate() error {
	if err := MigrateSchema(DB); err != nil {
		return err
	}
	logger.Log.Info("✅ Database migration successful")
	return nil
}

func MigrateSchema(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Lead{},
		&models.Booking{},
		&models.Payment{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(confirmedSlotIndex).Error; err != nil {
		return fmt.Errorf("create confirmed slot index: %w", err)
	}
	return nil
}

func SeedAdmin(db *gorm.DB, email, password, fullName string) error {
	if email == "" || password == "" {
		logger.Log.Warn("ADMIN_EMAIL or ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fmt.Errorf("check for admin user: %w", err)
	}
	if count > 0 {
		logger.Log.Info("Admin user already exists.")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	adminUser := models.User{
		FullName: fullName,
		Email:    email,
		Password: string(hashedPassword),
		Role:     models.RoleAdmin,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	logger.Log.Info("✅ Admin user seeded successfully")
	return nil
}
