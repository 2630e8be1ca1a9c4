package etl

import (
	"strconv"

	"bookworm/models"
)

// CleanCopies parses the copies extract. Rows need integer copy_id and
// book_id; duplicate copy_ids keep their first occurrence. Whether the
// referenced book exists is checked later, against the cleaned book set.
func CleanCopies(path string) ([]models.Copy, TableStats, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, TableStats{}, err
	}

	stats := TableStats{Table: "copies", InputRows: len(rows)}
	seen := make(map[int]struct{}, len(rows))
	copies := make([]models.Copy, 0, len(rows))

	for _, row := range rows {
		rawCopy, ok := cell(row, header, "copy_id")
		if !ok {
			continue
		}
		copyID, err := strconv.Atoi(rawCopy)
		if err != nil {
			continue
		}
		rawBook, ok := cell(row, header, "book_id")
		if !ok {
			continue
		}
		bookID, err := strconv.Atoi(rawBook)
		if err != nil {
			continue
		}
		if _, dup := seen[copyID]; dup {
			continue
		}
		seen[copyID] = struct{}{}
		copies = append(copies, models.Copy{CopyID: copyID, BookID: bookID})
	}

	stats.OutputRows = len(copies)
	stats.DroppedRows = stats.InputRows - stats.OutputRows
	return copies, stats, nil
}
