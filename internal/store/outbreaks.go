package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/surge-forecast/internal/domain"
)

// UpsertOutbreak records an outbreak observation. If a record for the same
// (location, disease) exists within dedupWindow of the observation it is
// merged (counts max, lists union) instead of duplicated. Returns the
// stored record and whether a merge happened.
func (s *Store) UpsertOutbreak(ctx context.Context, rec domain.OutbreakRecord, dedupWindow time.Duration) (domain.OutbreakRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.OutbreakRecord{}, false, fmt.Errorf("begin upsert outbreak: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	windowStart := rec.ObservedAt.Add(-dedupWindow).UTC().UnixNano()
	row := tx.QueryRowContext(ctx, outbreakColumns+`
		WHERE location = ? AND disease = ? AND observed_at >= ?
		ORDER BY observed_at DESC
		LIMIT 1`,
		rec.Location, rec.Disease, windowStart,
	)

	existing, err := scanOutbreak(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec.ID = s.newID()
		if err := insertOutbreak(ctx, tx, rec); err != nil {
			return domain.OutbreakRecord{}, false, err
		}
		if err := tx.Commit(); err != nil {
			return domain.OutbreakRecord{}, false, fmt.Errorf("commit outbreak insert: %w", err)
		}
		return rec, false, nil

	case err != nil:
		return domain.OutbreakRecord{}, false, fmt.Errorf("lookup outbreak: %w", err)
	}

	merged := existing.Merge(rec)
	if err := updateOutbreak(ctx, tx, merged); err != nil {
		return domain.OutbreakRecord{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OutbreakRecord{}, false, fmt.Errorf("commit outbreak merge: %w", err)
	}
	return merged, true, nil
}

// ActiveOutbreaks returns the current record per disease for the location,
// considering observations at or after since. When multiple rows for one
// disease fall inside the window the most recent wins.
func (s *Store) ActiveOutbreaks(ctx context.Context, location string, since time.Time) ([]domain.OutbreakRecord, error) {
	rows, err := s.db.QueryContext(ctx, outbreakColumns+`
		WHERE location = ? AND observed_at >= ?
		ORDER BY observed_at DESC`,
		location, since.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("active outbreaks: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var out []domain.OutbreakRecord
	for rows.Next() {
		rec, err := scanOutbreak(rows)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[rec.Disease]; ok {
			continue
		}
		seen[rec.Disease] = struct{}{}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeStaleFallbackOutbreaks deletes fallback-sourced records for the
// location observed before the horizon. Authoritative (reasoning-sourced)
// records are never purged here.
func (s *Store) PurgeStaleFallbackOutbreaks(ctx context.Context, location string, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM outbreaks
		WHERE location = ? AND source = ? AND observed_at < ?`,
		location, domain.OutbreakSourceFallback, before.UTC().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge fallback outbreaks: %w", err)
	}
	return res.RowsAffected()
}

const outbreakColumns = `
	SELECT id, location, disease, observed_at,
	       active_cases, new_cases, recovered, deaths,
	       severity, transmission_rate, affected_groups, medicines, rationale, source
	FROM outbreaks`

func insertOutbreak(ctx context.Context, tx *sql.Tx, rec domain.OutbreakRecord) error {
	groups, meds, err := marshalLists(rec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbreaks (
			id, location, disease, observed_at,
			active_cases, new_cases, recovered, deaths,
			severity, transmission_rate, affected_groups, medicines, rationale, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Location, rec.Disease, rec.ObservedAt.UTC().UnixNano(),
		rec.ActiveCases, rec.NewCases, rec.Recovered, rec.Deaths,
		string(rec.Severity), rec.TransmissionRate, groups, meds, rec.Rationale, rec.Source,
	)
	if err != nil {
		return fmt.Errorf("insert outbreak: %w", err)
	}
	return nil
}

func updateOutbreak(ctx context.Context, tx *sql.Tx, rec domain.OutbreakRecord) error {
	groups, meds, err := marshalLists(rec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE outbreaks SET
			observed_at = ?,
			active_cases = ?, new_cases = ?, recovered = ?, deaths = ?,
			severity = ?, transmission_rate = ?,
			affected_groups = ?, medicines = ?, rationale = ?, source = ?
		WHERE id = ?`,
		rec.ObservedAt.UTC().UnixNano(),
		rec.ActiveCases, rec.NewCases, rec.Recovered, rec.Deaths,
		string(rec.Severity), rec.TransmissionRate,
		groups, meds, rec.Rationale, rec.Source,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update outbreak: %w", err)
	}
	return nil
}

func marshalLists(rec domain.OutbreakRecord) (groups, meds string, err error) {
	g, err := json.Marshal(rec.AffectedGroups)
	if err != nil {
		return "", "", fmt.Errorf("marshal affected groups: %w", err)
	}
	m, err := json.Marshal(rec.Medicines)
	if err != nil {
		return "", "", fmt.Errorf("marshal medicines: %w", err)
	}
	return string(g), string(m), nil
}

func scanOutbreak(row rowScanner) (domain.OutbreakRecord, error) {
	var (
		rec          domain.OutbreakRecord
		observedAt   int64
		severity     string
		groups, meds sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.Location, &rec.Disease, &observedAt,
		&rec.ActiveCases, &rec.NewCases, &rec.Recovered, &rec.Deaths,
		&severity, &rec.TransmissionRate, &groups, &meds, &rec.Rationale, &rec.Source,
	)
	if err != nil {
		return domain.OutbreakRecord{}, err
	}
	rec.ObservedAt = time.Unix(0, observedAt).UTC()
	rec.Severity = domain.Severity(severity)
	if groups.Valid && groups.String != "" {
		if err := json.Unmarshal([]byte(groups.String), &rec.AffectedGroups); err != nil {
			return domain.OutbreakRecord{}, fmt.Errorf("unmarshal affected groups: %w", err)
		}
	}
	if meds.Valid && meds.String != "" {
		if err := json.Unmarshal([]byte(meds.String), &rec.Medicines); err != nil {
			return domain.OutbreakRecord{}, fmt.Errorf("unmarshal medicines: %w", err)
		}
	}
	return rec, nil
}
