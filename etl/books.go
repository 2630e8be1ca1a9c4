package etl

import (
	"strconv"

	"bookworm/models"
)

// CleanBooks parses the books extract: rows without a usable integer
// book_id are dropped, duplicate book_ids keep their first occurrence, and
// the publication year becomes NULL when it is not a number.
func CleanBooks(path string) ([]models.Book, TableStats, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, TableStats{}, err
	}

	stats := TableStats{Table: "books", InputRows: len(rows)}
	seen := make(map[int]struct{}, len(rows))
	books := make([]models.Book, 0, len(rows))

	for _, row := range rows {
		raw, ok := cell(row, header, "book_id")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		book := models.Book{BookID: id}
		book.ISBN, _ = cell(row, header, "isbn")
		book.Title, _ = cell(row, header, "title")
		book.OriginalTitle, _ = cell(row, header, "original_title")
		book.Authors, _ = cell(row, header, "authors")
		book.LanguageCode, _ = cell(row, header, "language_code")
		book.ImageURL, _ = cell(row, header, "image_url")
		if raw, ok := cell(row, header, "original_publication_year"); ok && raw != "" {
			// Years arrive as floats in some extracts ("2004.0").
			if year, err := strconv.ParseFloat(raw, 64); err == nil {
				y := int(year)
				book.OriginalPublicationYear = &y
			}
		}
		books = append(books, book)
	}

	stats.OutputRows = len(books)
	stats.DroppedRows = stats.InputRows - stats.OutputRows
	return books, stats, nil
}
