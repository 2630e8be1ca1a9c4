package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookworm/models"
)

// Referential and validation errors surfaced to API callers as client input
// errors. Nothing is written when any of them occurs.
var (
	ErrUnknownUser      = errors.New("unknown user_id")
	ErrUnknownCopy      = errors.New("unknown copy_id")
	ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")
)

// RatingService is the only writer path into the store.
type RatingService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewRatingService creates a new RatingService instance.
func NewRatingService(db *gorm.DB, logger *zap.Logger) *RatingService {
	return &RatingService{DB: db, Logger: logger}
}

// Upsert stores a user's rating of a copy, overwriting any previous rating
// for the same (user, copy) pair. The existence checks and the write run in
// one transaction, and the conflict clause on the composite unique index
// covers the race where two submissions for the same pair arrive at once.
func (s *RatingService) Upsert(ctx context.Context, userID, copyID, value int) (*models.Rating, error) {
	if value < 1 || value > 5 {
		return nil, ErrRatingOutOfRange
	}

	rating := &models.Rating{UserID: userID, CopyID: copyID, Rating: value}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUnknownUser
		}
		if err := tx.Model(&models.Copy{}).Where("copy_id = ?", copyID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUnknownCopy
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "copy_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"rating":     value,
				"updated_at": time.Now(),
			}),
		}).Create(rating).Error
	})
	if err != nil {
		if errors.Is(err, ErrUnknownUser) || errors.Is(err, ErrUnknownCopy) {
			return nil, err
		}
		s.Logger.Error("Failed to upsert rating",
			zap.Int("user_id", userID),
			zap.Int("copy_id", copyID),
			zap.Error(err))
		return nil, err
	}
	return rating, nil
}

// UserRating is one row of a user's rating history, joined with book info.
type UserRating struct {
	UserID  int    `json:"user_id"`
	CopyID  int    `json:"copy_id"`
	BookID  int    `json:"book_id"`
	Title   string `json:"title"`
	Authors string `json:"authors,omitempty"`
	Rating  int    `json:"rating"`
}

// UserRatings returns everything the user has rated, title order.
func (s *RatingService) UserRatings(ctx context.Context, userID int) ([]UserRating, error) {
	var ratings []UserRating
	err := s.DB.WithContext(ctx).
		Table("ratings r").
		Select("r.user_id, r.copy_id, b.book_id, b.title, b.authors, r.rating").
		Joins("JOIN copies c ON c.copy_id = r.copy_id").
		Joins("JOIN books b ON b.book_id = c.book_id").
		Where("r.user_id = ?", userID).
		Order("b.title ASC").
		Scan(&ratings).Error
	if err != nil {
		s.Logger.Error("Failed to fetch user ratings", zap.Int("user_id", userID), zap.Error(err))
		return nil, err
	}
	return ratings, nil
}
