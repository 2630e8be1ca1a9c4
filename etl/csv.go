package etl

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// TableStats is the row accounting a cleaner reports for one extract.
type TableStats struct {
	Table       string `json:"table"`
	InputRows   int    `json:"input_rows"`
	OutputRows  int    `json:"output_rows"`
	DroppedRows int    `json:"dropped_rows"`
}

// readCSV loads an extract into memory and maps header names to column
// indexes. Variable-width rows are tolerated; the cleaners skip rows that
// are missing required cells.
func readCSV(path string) (map[string]int, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("parse %s: missing header row", path)
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return header, records[1:], nil
}

// cell fetches a trimmed value by column name, trying each alias in order.
// The legacy extracts use Spanish headers (sexo, comentario,
// fecha_nacimiento), so most lookups carry two names.
func cell(row []string, header map[string]int, names ...string) (string, bool) {
	for _, name := range names {
		i, ok := header[name]
		if !ok || i >= len(row) {
			continue
		}
		return strings.TrimSpace(row[i]), true
	}
	return "", false
}
