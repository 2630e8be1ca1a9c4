package services

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BookStats is the per-book popularity aggregate: how many ratings a book
// has collected across all of its copies and their arithmetic mean. Books
// without a single rating never appear in a stats result.
type BookStats struct {
	BookID       int     `json:"book_id"`
	Title        string  `json:"title"`
	Authors      string  `json:"authors,omitempty"`
	LanguageCode string  `json:"language_code,omitempty"`
	NumRatings   int     `json:"num_ratings"`
	MeanRating   float64 `json:"mean_rating"`
}

// ScoredBook is a BookStats row with its ranking score attached.
type ScoredBook struct {
	BookStats
	Score float64 `json:"score"`
}

// Recommender computes popularity-based book rankings. It holds no state of
// its own beyond the injected connection, so concurrent calls are safe.
type Recommender struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewRecommender creates a new Recommender instance.
func NewRecommender(db *gorm.DB, logger *zap.Logger) *Recommender {
	return &Recommender{DB: db, Logger: logger}
}

// Score combines rating quality and rating volume into one ranking value:
// mean * ln(1+n). The log keeps a single 5-star rating from outranking a
// heavily corroborated 4.5, without letting volume dominate linearly. This
// is a heuristic, not a confidence bound.
func Score(meanRating float64, numRatings int) float64 {
	return meanRating * math.Log1p(float64(numRatings))
}

// bookStats runs the Rating->Copy->Book join grouped by book.
func (rec *Recommender) bookStats(ctx context.Context) ([]BookStats, error) {
	var stats []BookStats
	err := rec.DB.WithContext(ctx).
		Table("books b").
		Select("b.book_id, b.title, b.authors, b.language_code, COUNT(r.rating) AS num_ratings, AVG(r.rating) AS mean_rating").
		Joins("JOIN copies c ON c.book_id = b.book_id").
		Joins("JOIN ratings r ON r.copy_id = c.copy_id").
		Group("b.book_id, b.title, b.authors, b.language_code").
		Scan(&stats).Error
	return stats, err
}

// ratedBookIDs returns the distinct set of books the user has already rated,
// resolved through the copies they rated. An unknown user simply yields an
// empty set.
func (rec *Recommender) ratedBookIDs(ctx context.Context, userID int) (map[int]struct{}, error) {
	var ids []int
	err := rec.DB.WithContext(ctx).
		Table("ratings r").
		Joins("JOIN copies c ON c.copy_id = r.copy_id").
		Where("r.user_id = ?", userID).
		Distinct().
		Pluck("c.book_id", &ids).Error
	if err != nil {
		return nil, err
	}
	rated := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		rated[id] = struct{}{}
	}
	return rated, nil
}

// rankOptions parameterizes the shared ranking pipeline. All four Top-N
// variants differ only in these knobs.
type rankOptions struct {
	n          int
	minRatings int
	language   string
	exclude    map[int]struct{}
}

// rank filters, scores, sorts and truncates a stats slice. Ties on score are
// broken by ascending book_id so results are reproducible.
func rank(stats []BookStats, opts rankOptions) []ScoredBook {
	ranked := make([]ScoredBook, 0, len(stats))
	for _, s := range stats {
		if opts.language != "" && s.LanguageCode != opts.language {
			continue
		}
		if s.NumRatings < opts.minRatings {
			continue
		}
		if _, already := opts.exclude[s.BookID]; already {
			continue
		}
		ranked = append(ranked, ScoredBook{BookStats: s, Score: Score(s.MeanRating, s.NumRatings)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].BookID < ranked[j].BookID
	})
	if opts.n >= 0 && len(ranked) > opts.n {
		ranked = ranked[:opts.n]
	}
	return ranked
}

// RecommendForUser returns up to n books ranked by popularity score, with
// every book the user already rated excluded. A user without prior ratings
// gets the unfiltered global ranking; that is not an error. Whether the
// user exists at all is the caller's concern.
func (rec *Recommender) RecommendForUser(ctx context.Context, userID, n, minRatings int) ([]ScoredBook, error) {
	exclude, err := rec.ratedBookIDs(ctx, userID)
	if err != nil {
		rec.Logger.Error("Failed to fetch rated books for user", zap.Int("user_id", userID), zap.Error(err))
		return nil, err
	}
	stats, err := rec.bookStats(ctx)
	if err != nil {
		rec.Logger.Error("Failed to aggregate book stats", zap.Error(err))
		return nil, err
	}
	return rank(stats, rankOptions{n: n, minRatings: minRatings, exclude: exclude}), nil
}

// TopGlobal returns the n most popular books across the whole catalog.
func (rec *Recommender) TopGlobal(ctx context.Context, n, minRatings int) ([]ScoredBook, error) {
	stats, err := rec.bookStats(ctx)
	if err != nil {
		rec.Logger.Error("Failed to aggregate book stats", zap.Error(err))
		return nil, err
	}
	return rank(stats, rankOptions{n: n, minRatings: minRatings}), nil
}

// TopByLanguage restricts the global ranking to a single language_code.
func (rec *Recommender) TopByLanguage(ctx context.Context, language string, n, minRatings int) ([]ScoredBook, error) {
	stats, err := rec.bookStats(ctx)
	if err != nil {
		rec.Logger.Error("Failed to aggregate book stats", zap.Error(err))
		return nil, err
	}
	return rank(stats, rankOptions{n: n, minRatings: minRatings, language: language}), nil
}

// cohortRating is one rating row joined with book info and the rater's
// birth date, the input for the age-cohort re-aggregation.
type cohortRating struct {
	BookID       int
	Title        string
	Authors      string
	LanguageCode string
	Rating       int
	BirthDate    *time.Time
}

// TopByAgeRange ranks books by their popularity among users whose age falls
// inside [ageMin, ageMax], with age computed as referenceYear minus birth
// year (referenceYear <= 0 means the current year). Counts and means are
// re-aggregated over that cohort only; users without a birth date are left
// out entirely rather than defaulted.
func (rec *Recommender) TopByAgeRange(ctx context.Context, ageMin, ageMax, n, minRatings, referenceYear int) ([]ScoredBook, error) {
	if referenceYear <= 0 {
		referenceYear = time.Now().Year()
	}

	var rows []cohortRating
	err := rec.DB.WithContext(ctx).
		Table("ratings r").
		Select("b.book_id, b.title, b.authors, b.language_code, r.rating, u.birth_date").
		Joins("JOIN copies c ON c.copy_id = r.copy_id").
		Joins("JOIN books b ON b.book_id = c.book_id").
		Joins("JOIN users u ON u.user_id = r.user_id").
		Where("u.birth_date IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		rec.Logger.Error("Failed to fetch cohort ratings", zap.Error(err))
		return nil, err
	}

	// Re-aggregate per book over the cohort. Done in-process so the same
	// query works on both sqlite and postgres.
	type agg struct {
		stats BookStats
		sum   int
	}
	byBook := make(map[int]*agg)
	for _, row := range rows {
		if row.BirthDate == nil {
			continue
		}
		age := referenceYear - row.BirthDate.Year()
		if age < ageMin || age > ageMax {
			continue
		}
		a, ok := byBook[row.BookID]
		if !ok {
			a = &agg{stats: BookStats{
				BookID:       row.BookID,
				Title:        row.Title,
				Authors:      row.Authors,
				LanguageCode: row.LanguageCode,
			}}
			byBook[row.BookID] = a
		}
		a.stats.NumRatings++
		a.sum += row.Rating
	}

	stats := make([]BookStats, 0, len(byBook))
	for _, a := range byBook {
		a.stats.MeanRating = float64(a.sum) / float64(a.stats.NumRatings)
		stats = append(stats, a.stats)
	}
	return rank(stats, rankOptions{n: n, minRatings: minRatings}), nil
}
