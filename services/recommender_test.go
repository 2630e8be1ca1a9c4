package services

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// seedCatalog builds a small catalog with known aggregates:
//
//	book 1 "Dune" (eng):      4 ratings (5,5,5,4) over two copies, mean 4.75
//	book 2 "Emma" (eng):      3 ratings (4,4,4), mean 4.0
//	book 3 "Rayuela" (spa):   1 rating (5), mean 5.0
//	book 4 "Ulysses" (eng):   no copies rated
func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	seedBook(t, db, 1, "Dune", "eng")
	seedBook(t, db, 2, "Emma", "eng")
	seedBook(t, db, 3, "Rayuela", "spa")
	seedBook(t, db, 4, "Ulysses", "eng")

	seedCopy(t, db, 11, 1)
	seedCopy(t, db, 12, 1)
	seedCopy(t, db, 21, 2)
	seedCopy(t, db, 31, 3)
	seedCopy(t, db, 41, 4)

	for id := 101; id <= 106; id++ {
		seedUser(t, db, id, 0)
	}
	seedRating(t, db, 101, 11, 5)
	seedRating(t, db, 102, 11, 5)
	seedRating(t, db, 103, 12, 5)
	seedRating(t, db, 104, 12, 4)
	seedRating(t, db, 101, 21, 4)
	seedRating(t, db, 105, 21, 4)
	seedRating(t, db, 106, 21, 4)
	seedRating(t, db, 106, 31, 5)
}

func newTestRecommender(t *testing.T) (*Recommender, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewRecommender(db, zap.NewNop()), db
}

func bookIDs(books []ScoredBook) []int {
	ids := make([]int, len(books))
	for i, b := range books {
		ids[i] = b.BookID
	}
	return ids
}

func TestScore(t *testing.T) {
	if got := Score(4.5, 0); got != 0 {
		t.Fatalf("Score(4.5, 0) = %v, want 0", got)
	}
	want := 4.0 * math.Log1p(100)
	if got := Score(4.0, 100); math.Abs(got-want) > 1e-12 {
		t.Fatalf("Score(4.0, 100) = %v, want %v", got, want)
	}
}

func TestScoreMonotonicity(t *testing.T) {
	// Non-decreasing in volume for fixed mean.
	prev := Score(4.0, 0)
	for n := 1; n <= 1000; n *= 10 {
		cur := Score(4.0, n)
		if cur < prev {
			t.Fatalf("Score(4.0, %d) = %v dropped below %v", n, cur, prev)
		}
		prev = cur
	}
	// Non-decreasing in mean for fixed volume.
	if Score(3.0, 50) > Score(4.0, 50) {
		t.Fatal("score decreased as mean rating increased")
	}
	// A single 5-star rating must not outrank a heavily rated 4.5.
	if Score(5.0, 1) >= Score(4.5, 1000) {
		t.Fatal("single rating outranked a corroborated book")
	}
}

func TestTopGlobalOrdering(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	top, err := rec.TopGlobal(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("TopGlobal: %v", err)
	}
	// 4.75*ln(5) > 4*ln(4) > 5*ln(2); book 4 has no ratings at all.
	want := []int{1, 2, 3}
	got := bookIDs(top)
	if len(got) != len(want) {
		t.Fatalf("TopGlobal ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("TopGlobal ids = %v, want %v", got, want)
		}
	}
	for i := 1; i < len(top); i++ {
		if top[i-1].Score < top[i].Score {
			t.Fatalf("scores out of order at %d: %v < %v", i, top[i-1].Score, top[i].Score)
		}
	}
	if top[0].NumRatings != 4 || math.Abs(top[0].MeanRating-4.75) > 1e-9 {
		t.Fatalf("book 1 aggregate = (%d, %v), want (4, 4.75)", top[0].NumRatings, top[0].MeanRating)
	}
}

func TestTopGlobalThreshold(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	top, err := rec.TopGlobal(context.Background(), 10, 3)
	if err != nil {
		t.Fatalf("TopGlobal: %v", err)
	}
	for _, b := range top {
		if b.NumRatings < 3 {
			t.Fatalf("book %d has %d ratings, below threshold", b.BookID, b.NumRatings)
		}
	}
	if len(top) != 2 {
		t.Fatalf("got %d books, want 2", len(top))
	}

	// Threshold above every book's count: a valid empty result.
	empty, err := rec.TopGlobal(context.Background(), 10, 100)
	if err != nil {
		t.Fatalf("TopGlobal: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("got %d books, want none", len(empty))
	}
}

func TestTopGlobalTruncation(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	top, err := rec.TopGlobal(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("TopGlobal: %v", err)
	}
	if len(top) != 1 || top[0].BookID != 1 {
		t.Fatalf("TopGlobal(1) = %v, want just book 1", bookIDs(top))
	}
}

func TestTieBreakByBookID(t *testing.T) {
	rec, db := newTestRecommender(t)
	// Two books with identical (count, mean) tie on score exactly.
	seedBook(t, db, 7, "Zeta", "eng")
	seedBook(t, db, 5, "Alpha", "eng")
	seedCopy(t, db, 71, 7)
	seedCopy(t, db, 51, 5)
	seedUser(t, db, 100, 0)
	seedRating(t, db, 100, 71, 3)
	seedRating(t, db, 100, 51, 3)

	top, err := rec.TopGlobal(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("TopGlobal: %v", err)
	}
	got := bookIDs(top)
	if len(got) != 2 || got[0] != 5 || got[1] != 7 {
		t.Fatalf("tie order = %v, want [5 7]", got)
	}
}

func TestRecommendExcludesRatedBooks(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	// User 101 rated copies 11 (book 1) and 21 (book 2).
	recs, err := rec.RecommendForUser(context.Background(), 101, 10, 1)
	if err != nil {
		t.Fatalf("RecommendForUser: %v", err)
	}
	for _, b := range recs {
		if b.BookID == 1 || b.BookID == 2 {
			t.Fatalf("recommended already-rated book %d", b.BookID)
		}
	}
	got := bookIDs(recs)
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("recommendations = %v, want [3]", got)
	}
}

func TestRecommendExclusionSpansCopies(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	// User 103 rated copy 12; book 1 must be excluded even though most of
	// its ratings came in through copy 11.
	recs, err := rec.RecommendForUser(context.Background(), 103, 10, 1)
	if err != nil {
		t.Fatalf("RecommendForUser: %v", err)
	}
	for _, b := range recs {
		if b.BookID == 1 {
			t.Fatal("book rated through a sibling copy was recommended")
		}
	}
}

func TestRecommendUnknownUserGetsGlobalList(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	recs, err := rec.RecommendForUser(context.Background(), 999999, 10, 1)
	if err != nil {
		t.Fatalf("RecommendForUser: %v", err)
	}
	global, err := rec.TopGlobal(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("TopGlobal: %v", err)
	}
	if len(recs) != len(global) {
		t.Fatalf("unknown user got %d books, global list has %d", len(recs), len(global))
	}
	for i := range recs {
		if recs[i].BookID != global[i].BookID {
			t.Fatalf("position %d: got book %d, global has %d", i, recs[i].BookID, global[i].BookID)
		}
	}
}

func TestRecommendThresholdAboveAllCounts(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	recs, err := rec.RecommendForUser(context.Background(), 101, 10, 1000)
	if err != nil {
		t.Fatalf("RecommendForUser: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d recommendations, want none", len(recs))
	}
}

func TestTopByLanguage(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	top, err := rec.TopByLanguage(context.Background(), "spa", 10, 1)
	if err != nil {
		t.Fatalf("TopByLanguage: %v", err)
	}
	if len(top) != 1 || top[0].BookID != 3 {
		t.Fatalf("spa top = %v, want [3]", bookIDs(top))
	}

	none, err := rec.TopByLanguage(context.Background(), "fra", 10, 1)
	if err != nil {
		t.Fatalf("TopByLanguage: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("fra top = %v, want empty", bookIDs(none))
	}
}

func TestTopByAgeRange(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedBook(t, db, 1, "Dune", "eng")
	seedBook(t, db, 2, "Emma", "eng")
	seedCopy(t, db, 11, 1)
	seedCopy(t, db, 21, 2)

	seedUser(t, db, 201, 2000) // 25 in 2025
	seedUser(t, db, 202, 1950) // 75 in 2025
	seedUser(t, db, 203, 0)    // no birth date, excluded from cohorts

	seedRating(t, db, 201, 11, 5)
	seedRating(t, db, 202, 11, 1)
	seedRating(t, db, 203, 11, 3)
	seedRating(t, db, 201, 21, 2)

	top, err := rec.TopByAgeRange(context.Background(), 20, 30, 10, 1, 2025)
	if err != nil {
		t.Fatalf("TopByAgeRange: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("cohort top = %v, want 2 books", bookIDs(top))
	}
	// Book 1's cohort aggregate must only see user 201's rating: the
	// 75-year-old and the user without a birth date are out.
	if top[0].BookID != 1 || top[0].NumRatings != 1 || top[0].MeanRating != 5 {
		t.Fatalf("book 1 cohort aggregate = %+v, want 1 rating of 5", top[0])
	}

	empty, err := rec.TopByAgeRange(context.Background(), 90, 100, 10, 1, 2025)
	if err != nil {
		t.Fatalf("TopByAgeRange: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("90-100 cohort = %v, want empty", bookIDs(empty))
	}
}

func TestBookStatsSkipsUnratedBooks(t *testing.T) {
	rec, db := newTestRecommender(t)
	seedCatalog(t, db)

	stats, err := rec.bookStats(context.Background())
	if err != nil {
		t.Fatalf("bookStats: %v", err)
	}
	for _, s := range stats {
		if s.BookID == 4 {
			t.Fatal("book without ratings appeared in the aggregate")
		}
		if s.NumRatings == 0 {
			t.Fatalf("book %d aggregated with zero ratings", s.BookID)
		}
	}
}
