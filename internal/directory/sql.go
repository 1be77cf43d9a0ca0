package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultLookupTimeout = 3 * time.Second

// SQL reads staff records from the personnel database.
type SQL struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQL wraps a read-only connection to the personnel database.
// Every lookup is bounded by timeout; zero selects the default.
func NewSQL(db *sql.DB, timeout time.Duration) *SQL {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &SQL{db: db, timeout: timeout}
}

func (d *SQL) Lookup(ctx context.Context, subject string) (StaffRecord, error) {
	subject = Normalize(subject)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx,
		`select staff_id, name, dept_code, level, ext from staff where staff_id=$1`, subject)

	var (
		rec StaffRecord
		ext sql.NullString
	)
	if err := row.Scan(&rec.Subject, &rec.Name, &rec.Department, &rec.Level, &ext); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StaffRecord{}, ErrNotFound
		}
		return StaffRecord{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec.Extension = ext.String
	return rec, nil
}
