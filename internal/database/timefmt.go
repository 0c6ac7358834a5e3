package database

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is fixed width UTC so stored values sort lexically in both
// backends.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Now returns the current UTC time truncated to the stored precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatNullTime maps a nil pointer to SQL NULL.
func FormatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func ParseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
