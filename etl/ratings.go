package etl

import (
	"strconv"

	"bookworm/models"
)

// CleanRatings parses the ratings extract. Rows need integer user_id,
// copy_id and a rating in 1..5; duplicates per (user_id, copy_id) keep the
// first occurrence, matching the upsert semantics of the live writer path.
func CleanRatings(path string) ([]models.Rating, TableStats, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, TableStats{}, err
	}

	stats := TableStats{Table: "ratings", InputRows: len(rows)}
	type pair struct{ user, copy int }
	seen := make(map[pair]struct{}, len(rows))
	ratings := make([]models.Rating, 0, len(rows))

	for _, row := range rows {
		rawUser, ok := cell(row, header, "user_id")
		if !ok {
			continue
		}
		userID, err := strconv.Atoi(rawUser)
		if err != nil {
			continue
		}
		rawCopy, ok := cell(row, header, "copy_id")
		if !ok {
			continue
		}
		copyID, err := strconv.Atoi(rawCopy)
		if err != nil {
			continue
		}
		rawRating, ok := cell(row, header, "rating")
		if !ok {
			continue
		}
		value, err := strconv.Atoi(rawRating)
		if err != nil || value < 1 || value > 5 {
			continue
		}
		key := pair{userID, copyID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ratings = append(ratings, models.Rating{UserID: userID, CopyID: copyID, Rating: value})
	}

	stats.OutputRows = len(ratings)
	stats.DroppedRows = stats.InputRows - stats.OutputRows
	return ratings, stats, nil
}
