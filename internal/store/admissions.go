package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// dayFormat keys admission rows by calendar day.
const dayFormat = "2006-01-02"

// RecordAdmissions upserts the admission count for one location-day. This
// is the external collaborator's write path, kept for seeding and tests;
// the synthesis pipeline only reads.
func (s *Store) RecordAdmissions(ctx context.Context, location string, day time.Time, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admissions (location, day, count) VALUES (?, ?, ?)
		ON CONFLICT(location, day) DO UPDATE SET count = excluded.count`,
		location, day.UTC().Format(dayFormat), count,
	)
	if err != nil {
		return fmt.Errorf("record admissions: %w", err)
	}
	return nil
}

// AdmissionAverage returns the mean daily admission count for the location
// over days at or after since. ok is false when no history exists.
func (s *Store) AdmissionAverage(ctx context.Context, location string, since time.Time) (avg float64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT AVG(count) FROM admissions
		WHERE location = ? AND day >= ?`,
		location, since.UTC().Format(dayFormat),
	)
	var v sql.NullFloat64
	if err := row.Scan(&v); err != nil {
		return 0, false, fmt.Errorf("admission average: %w", err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return v.Float64, true, nil
}
