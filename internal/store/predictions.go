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

// InsertPrediction appends a new prediction. Predictions are immutable;
// the assigned ID is returned on the stored copy.
func (s *Store) InsertPrediction(ctx context.Context, p domain.Prediction) (domain.Prediction, error) {
	p.ID = s.newID()
	payload, err := json.Marshal(p)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("marshal prediction: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions (id, location, generated_at, risk_score, estimated_affected, engine_version, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Location, p.GeneratedAt.UTC().UnixNano(),
		p.RiskScore, p.EstimatedAffected, p.EngineVersion, string(payload),
	)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("insert prediction: %w", err)
	}
	return p, nil
}

// LatestPrediction returns the most recently generated prediction for the
// location, or domain.ErrNotFound.
func (s *Store) LatestPrediction(ctx context.Context, location string) (domain.Prediction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM predictions
		WHERE location = ?
		ORDER BY generated_at DESC
		LIMIT 1`,
		location,
	)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Prediction{}, fmt.Errorf("%w: no prediction for %s", domain.ErrNotFound, location)
		}
		return domain.Prediction{}, fmt.Errorf("latest prediction: %w", err)
	}
	return unmarshalPrediction(payload)
}

// PredictionHistory returns predictions generated at or after since,
// ascending by generation timestamp. The result may be empty.
func (s *Store) PredictionHistory(ctx context.Context, location string, since time.Time) ([]domain.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM predictions
		WHERE location = ? AND generated_at >= ?
		ORDER BY generated_at ASC`,
		location, since.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("prediction history: %w", err)
	}
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		p, err := unmarshalPrediction(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func unmarshalPrediction(payload string) (domain.Prediction, error) {
	var p domain.Prediction
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.Prediction{}, fmt.Errorf("unmarshal prediction: %w", err)
	}
	return p, nil
}
