package etl

import (
	"strconv"
	"time"
)

// UserInfo is one row of the demographics extract. The USER table itself is
// derived later from the ratings; this file only enriches it.
type UserInfo struct {
	UserID    int
	BirthDate *time.Time
	Sex       string
	Comment   string
}

// birthDateLayout matches the legacy extract (DD/MM/YYYY).
const birthDateLayout = "02/01/2006"

// CleanUsers parses the demographics extract. Duplicate user_ids keep the
// first occurrence; unparsable birth dates become NULL rather than dropping
// the row, since the other demographic fields may still be usable.
func CleanUsers(path string) ([]UserInfo, TableStats, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, TableStats{}, err
	}

	stats := TableStats{Table: "users_info", InputRows: len(rows)}
	seen := make(map[int]struct{}, len(rows))
	users := make([]UserInfo, 0, len(rows))

	for _, row := range rows {
		raw, ok := cell(row, header, "user_id")
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

		info := UserInfo{UserID: id}
		info.Sex, _ = cell(row, header, "sex", "sexo")
		info.Comment, _ = cell(row, header, "comment", "comentario")
		if raw, ok := cell(row, header, "birth_date", "fecha_nacimiento"); ok && raw != "" {
			if date, err := time.Parse(birthDateLayout, raw); err == nil {
				info.BirthDate = &date
			}
		}
		users = append(users, info)
	}

	stats.OutputRows = len(users)
	stats.DroppedRows = stats.InputRows - stats.OutputRows
	return users, stats, nil
}
