package pagination

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// ApplyKeyset orders stmt by (created_at desc, id desc), skips past the
// cursor in PageToken and fetches Limit()+1 rows so the caller can tell
// whether another page exists.
func ApplyKeyset(stmt *gorm.DB, page Pagination) (*gorm.DB, error) {
	cursor, err := DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, ErrInvalidPageToken
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, ErrInvalidPageToken
		}
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))", createdAt, createdAt, id)
	}
	return stmt.Order("created_at desc, id desc").Limit(page.Limit() + 1), nil
}

func CursorAt(id string, createdAt time.Time) Cursor {
	return Cursor{ID: id, CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)}
}
