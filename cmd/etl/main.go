// One-shot ETL runner: cleans the CSV extracts and rebuilds the catalog
// database, then exits. The server schedules the same pipeline via cron;
// this command exists for initial loads and manual refreshes.
package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"bookworm/config"
	"bookworm/etl"
	"bookworm/models"
	"bookworm/storage"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Book{}, &models.Copy{}, &models.User{}, &models.Rating{}, &models.EtlRun{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	var s3Client *awss3.Client
	if cfg.S3Enabled() {
		s3Client, err = storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
	}

	loader := etl.NewLoader(cfg, db, s3Client, logging)
	report, err := loader.Run(context.Background())
	if err != nil {
		logging.Fatal("ETL run failed", zap.Error(err))
	}
	logging.Info("ETL run finished", zap.Int("rows_loaded", report.RowsLoaded()))
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if cfg.DBDriver == "postgres" {
		return gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
}
