package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"bookworm/config"
	"bookworm/models"
	"bookworm/storage"
)

// Report summarizes one ETL run: per-extract row accounting, rows pruned by
// the referential sweep, and the final table sizes.
type Report struct {
	Tables           []TableStats `json:"tables"`
	CopiesDroppedFK  int          `json:"copies_dropped_fk"`
	RatingsDroppedFK int          `json:"ratings_dropped_fk"`
	FinalBooks       int          `json:"final_books"`
	FinalCopies      int          `json:"final_copies"`
	FinalUsers       int          `json:"final_users"`
	FinalRatings     int          `json:"final_ratings"`
}

// RowsLoaded is the total number of rows the run put into the store.
func (r *Report) RowsLoaded() int {
	return r.FinalBooks + r.FinalCopies + r.FinalUsers + r.FinalRatings
}

// Loader orchestrates the whole pipeline: fetch extracts, clean each table,
// prune referentially broken rows, rebuild the store and persist a report.
type Loader struct {
	Config   *config.Config
	DB       *gorm.DB
	S3Client *s3.Client
	Logger   *zap.Logger
}

// NewLoader creates a new Loader instance. s3Client may be nil when the
// extracts are read from the local raw directory.
func NewLoader(cfg *config.Config, db *gorm.DB, s3Client *s3.Client, logger *zap.Logger) *Loader {
	return &Loader{Config: cfg, DB: db, S3Client: s3Client, Logger: logger}
}

// Run executes one full load and records an EtlRun row either way. The
// tables are replaced wholesale inside a single transaction, so readers
// never observe a half-loaded catalog.
func (l *Loader) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	report, err := l.run(ctx)
	finished := time.Now()

	run := models.EtlRun{StartedAt: started, FinishedAt: finished, Succeeded: err == nil}
	if err != nil {
		run.Error = err.Error()
	} else if payload, jsonErr := json.Marshal(report); jsonErr == nil {
		run.Report = datatypes.JSON(payload)
	}
	if dbErr := l.DB.WithContext(ctx).Create(&run).Error; dbErr != nil {
		l.Logger.Warn("Failed to persist ETL run record", zap.Error(dbErr))
	}

	if err != nil {
		return nil, err
	}
	l.uploadReport(ctx, run.Report)
	return report, nil
}

func (l *Loader) run(ctx context.Context) (*Report, error) {
	if l.Config.S3Enabled() && l.S3Client != nil {
		if err := l.downloadExtracts(ctx); err != nil {
			return nil, err
		}
	}

	rawDir := l.Config.RawDataDir
	books, bookStats, err := CleanBooks(filepath.Join(rawDir, l.Config.BooksCSV))
	if err != nil {
		return nil, fmt.Errorf("clean books: %w", err)
	}
	copies, copyStats, err := CleanCopies(filepath.Join(rawDir, l.Config.CopiesCSV))
	if err != nil {
		return nil, fmt.Errorf("clean copies: %w", err)
	}
	infos, userStats, err := CleanUsers(filepath.Join(rawDir, l.Config.UsersCSV))
	if err != nil {
		return nil, fmt.Errorf("clean users: %w", err)
	}
	ratings, ratingStats, err := CleanRatings(filepath.Join(rawDir, l.Config.RatingsCSV))
	if err != nil {
		return nil, fmt.Errorf("clean ratings: %w", err)
	}

	report := &Report{Tables: []TableStats{bookStats, copyStats, userStats, ratingStats}}

	// Referential sweep: copies pointing at unknown books, then ratings
	// pointing at copies that just got dropped.
	validBooks := make(map[int]struct{}, len(books))
	for _, b := range books {
		validBooks[b.BookID] = struct{}{}
	}
	keptCopies := copies[:0]
	for _, c := range copies {
		if _, ok := validBooks[c.BookID]; ok {
			keptCopies = append(keptCopies, c)
		}
	}
	report.CopiesDroppedFK = len(copies) - len(keptCopies)
	copies = keptCopies

	validCopies := make(map[int]struct{}, len(copies))
	for _, c := range copies {
		validCopies[c.CopyID] = struct{}{}
	}
	keptRatings := ratings[:0]
	for _, r := range ratings {
		if _, ok := validCopies[r.CopyID]; ok {
			keptRatings = append(keptRatings, r)
		}
	}
	report.RatingsDroppedFK = len(ratings) - len(keptRatings)
	ratings = keptRatings

	users := buildUsers(ratings, infos)

	report.FinalBooks = len(books)
	report.FinalCopies = len(copies)
	report.FinalUsers = len(users)
	report.FinalRatings = len(ratings)

	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// FK-safe order: leaves first on delete, roots first on insert.
		for _, table := range []string{"ratings", "copies", "users", "books"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return err
			}
		}
		if len(books) > 0 {
			if err := tx.CreateInBatches(books, 500).Error; err != nil {
				return err
			}
		}
		if len(copies) > 0 {
			if err := tx.CreateInBatches(copies, 1000).Error; err != nil {
				return err
			}
		}
		if len(users) > 0 {
			if err := tx.CreateInBatches(users, 1000).Error; err != nil {
				return err
			}
		}
		if len(ratings) > 0 {
			if err := tx.CreateInBatches(ratings, 1000).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}

	l.Logger.Info("ETL run completed",
		zap.Int("books", report.FinalBooks),
		zap.Int("copies", report.FinalCopies),
		zap.Int("users", report.FinalUsers),
		zap.Int("ratings", report.FinalRatings),
		zap.Int("copies_dropped_fk", report.CopiesDroppedFK),
		zap.Int("ratings_dropped_fk", report.RatingsDroppedFK))
	return report, nil
}

// buildUsers derives the USER table as the union of all user_ids seen in the
// ratings, left-joined with the demographics file. has_demographics is true
// when any demographic field is present.
func buildUsers(ratings []models.Rating, infos []UserInfo) []models.User {
	byID := make(map[int]UserInfo, len(infos))
	for _, info := range infos {
		byID[info.UserID] = info
	}

	ids := make([]int, 0, len(ratings))
	seen := make(map[int]struct{}, len(ratings))
	for _, r := range ratings {
		if _, dup := seen[r.UserID]; dup {
			continue
		}
		seen[r.UserID] = struct{}{}
		ids = append(ids, r.UserID)
	}
	sort.Ints(ids)

	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		user := models.User{UserID: id}
		if info, ok := byID[id]; ok {
			user.BirthDate = info.BirthDate
			user.Sex = info.Sex
			user.Comment = info.Comment
			user.HasDemographics = info.BirthDate != nil || info.Sex != "" || info.Comment != ""
		}
		users = append(users, user)
	}
	return users
}

func (l *Loader) downloadExtracts(ctx context.Context) error {
	if err := os.MkdirAll(l.Config.RawDataDir, 0o755); err != nil {
		return err
	}
	for _, name := range []string{l.Config.BooksCSV, l.Config.CopiesCSV, l.Config.UsersCSV, l.Config.RatingsCSV} {
		key := path.Join(l.Config.S3Prefix, name)
		data, err := storage.DownloadFile(ctx, l.S3Client, l.Config.S3Bucket, key)
		if err != nil {
			return fmt.Errorf("download %s: %w", key, err)
		}
		if err := os.WriteFile(filepath.Join(l.Config.RawDataDir, name), data, 0o644); err != nil {
			return err
		}
		l.Logger.Info("Downloaded extract", zap.String("key", key), zap.Int("bytes", len(data)))
	}
	return nil
}

func (l *Loader) uploadReport(ctx context.Context, report datatypes.JSON) {
	if !l.Config.S3Enabled() || l.S3Client == nil || len(report) == 0 {
		return
	}
	key := fmt.Sprintf("reports/etl-%s.json", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := storage.UploadFile(ctx, l.S3Client, l.Config.S3Bucket, key, report, l.Config)
	if err != nil {
		l.Logger.Warn("Failed to upload ETL report", zap.Error(err))
		return
	}
	l.Logger.Info("ETL report uploaded", zap.String("link", link))
}
