package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/surge-forecast/internal/domain"
)

// InsertReading appends a new reading. Readings are never updated in
// place; the assigned ID is returned on the stored copy.
func (s *Store) InsertReading(ctx context.Context, r domain.Reading) (domain.Reading, error) {
	r.ID = s.newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (
			id, location, signal, captured_at,
			aqi, pm25, pm10, no2, o3,
			temperature_c, humidity_pct, precip_mm, wind_speed_ms, pressure_hpa,
			source, raw_payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Location, string(r.Signal), r.CapturedAt.UTC().UnixNano(),
		r.AQI, r.PM25, r.PM10, r.NO2, r.O3,
		r.TemperatureC, r.HumidityPct, r.PrecipMM, r.WindSpeedMS, r.PressureHPa,
		r.Source, r.RawPayload,
	)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	return r, nil
}

// LatestReading returns the maximum-timestamp reading for (location,
// signal), or domain.ErrNotFound.
func (s *Store) LatestReading(ctx context.Context, location string, signal domain.SignalType) (domain.Reading, error) {
	row := s.db.QueryRowContext(ctx, readingColumns+`
		WHERE location = ? AND signal = ?
		ORDER BY captured_at DESC
		LIMIT 1`,
		location, string(signal),
	)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reading{}, fmt.Errorf("%w: no %s reading for %s", domain.ErrNotFound, signal, location)
	}
	return r, err
}

// ReadingHistory returns readings captured at or after since, ascending by
// capture timestamp. The result may be empty.
func (s *Store) ReadingHistory(ctx context.Context, location string, signal domain.SignalType, since time.Time) ([]domain.Reading, error) {
	rows, err := s.db.QueryContext(ctx, readingColumns+`
		WHERE location = ? AND signal = ? AND captured_at >= ?
		ORDER BY captured_at ASC`,
		location, string(signal), since.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const readingColumns = `
	SELECT id, location, signal, captured_at,
	       aqi, pm25, pm10, no2, o3,
	       temperature_c, humidity_pct, precip_mm, wind_speed_ms, pressure_hpa,
	       source, raw_payload
	FROM readings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (domain.Reading, error) {
	var (
		r          domain.Reading
		signal     string
		capturedAt int64
	)
	err := row.Scan(
		&r.ID, &r.Location, &signal, &capturedAt,
		&r.AQI, &r.PM25, &r.PM10, &r.NO2, &r.O3,
		&r.TemperatureC, &r.HumidityPct, &r.PrecipMM, &r.WindSpeedMS, &r.PressureHPa,
		&r.Source, &r.RawPayload,
	)
	if err != nil {
		return domain.Reading{}, err
	}
	r.Signal = domain.SignalType(signal)
	r.CapturedAt = time.Unix(0, capturedAt).UTC()
	return r, nil
}
