package services

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"bookworm/models"
)

func openTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("unwrap sql db: %v", err)
	}
	// A second pooled connection would see its own empty :memory: database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Book{}, &models.Copy{}, &models.User{}, &models.Rating{}, &models.EtlRun{}); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedBook(tb testing.TB, db *gorm.DB, id int, title, language string) {
	tb.Helper()
	book := models.Book{BookID: id, Title: title, LanguageCode: language}
	if err := db.Create(&book).Error; err != nil {
		tb.Fatalf("seed book %d: %v", id, err)
	}
}

func seedCopy(tb testing.TB, db *gorm.DB, copyID, bookID int) {
	tb.Helper()
	c := models.Copy{CopyID: copyID, BookID: bookID}
	if err := db.Create(&c).Error; err != nil {
		tb.Fatalf("seed copy %d: %v", copyID, err)
	}
}

func seedUser(tb testing.TB, db *gorm.DB, userID int, birthYear int) {
	tb.Helper()
	user := models.User{UserID: userID}
	if birthYear > 0 {
		date := time.Date(birthYear, time.May, 15, 0, 0, 0, 0, time.UTC)
		user.BirthDate = &date
		user.HasDemographics = true
	}
	if err := db.Create(&user).Error; err != nil {
		tb.Fatalf("seed user %d: %v", userID, err)
	}
}

func seedRating(tb testing.TB, db *gorm.DB, userID, copyID, value int) {
	tb.Helper()
	r := models.Rating{UserID: userID, CopyID: copyID, Rating: value}
	if err := db.Create(&r).Error; err != nil {
		tb.Fatalf("seed rating %d/%d: %v", userID, copyID, err)
	}
}
