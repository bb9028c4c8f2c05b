package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ValueSentinel/internal/model"
)

const valuationColumns = `id, user_id, asset_id, date, pb, price, book_value_per_share, source, fetched_at`

func scanValuation(row interface{ Scan(...any) error }) (*model.Valuation, error) {
	var (
		v               model.Valuation
		date            string
		pb, price, bvps sql.NullFloat64
		fetched         int64
	)
	if err := row.Scan(&v.ID, &v.UserID, &v.AssetID, &date, &pb, &price, &bvps, &v.Source, &fetched); err != nil {
		return nil, err
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse valuation date %q: %w", date, err)
	}
	v.Date = d
	v.PB = floatPtr(pb)
	v.Price = floatPtr(price)
	v.BookValuePerShare = floatPtr(bvps)
	v.FetchedAt = fromUnix(fetched)
	return &v, nil
}

// UpsertValuation inserts or replaces the observation keyed by (asset, date).
func (q *Queries) UpsertValuation(ctx context.Context, v *model.Valuation) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO valuations
		(user_id, asset_id, date, pb, price, book_value_per_share, source, fetched_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(asset_id, date) DO UPDATE SET
			pb = excluded.pb, price = excluded.price,
			book_value_per_share = excluded.book_value_per_share,
			source = excluded.source, fetched_at = excluded.fetched_at`,
		v.UserID, v.AssetID, dateString(v.Date), nullFloat(v.PB), nullFloat(v.Price),
		nullFloat(v.BookValuePerShare), v.Source, unix(v.FetchedAt))
	if err != nil {
		return fmt.Errorf("upsert valuation: %w", err)
	}
	return nil
}

// LatestValuation returns the observation with the maximum date.
func (q *Queries) LatestValuation(ctx context.Context, userID, assetID int64) (*model.Valuation, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+valuationColumns+` FROM valuations
		WHERE asset_id = ? AND user_id = ? ORDER BY date DESC LIMIT 1`, assetID, userID)
	v, err := scanValuation(row)
	if err != nil {
		return nil, fmt.Errorf("latest valuation: %w", mapErr(err))
	}
	return v, nil
}

// ListValuations returns observations in ascending date order. A zero since means all history.
func (q *Queries) ListValuations(ctx context.Context, userID, assetID int64, since time.Time) ([]model.Valuation, error) {
	query := `SELECT ` + valuationColumns + ` FROM valuations WHERE asset_id = ? AND user_id = ?`
	args := []any{assetID, userID}
	if !since.IsZero() {
		query += ` AND date >= ?`
		args = append(args, dateString(since))
	}
	rows, err := q.db.QueryContext(ctx, query+` ORDER BY date ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query valuations: %w", err)
	}
	defer rows.Close()

	out := make([]model.Valuation, 0)
	for rows.Next() {
		v, err := scanValuation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan valuation: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate valuations: %w", err)
	}
	return out, nil
}

// PBSeries returns the non-null PB values observed on or after since.
func (q *Queries) PBSeries(ctx context.Context, userID, assetID int64, since time.Time) ([]float64, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT pb FROM valuations
		WHERE asset_id = ? AND user_id = ? AND date >= ? AND pb IS NOT NULL
		ORDER BY date ASC`, assetID, userID, dateString(since))
	if err != nil {
		return nil, fmt.Errorf("query pb series: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var pb float64
		if err := rows.Scan(&pb); err != nil {
			return nil, fmt.Errorf("scan pb: %w", err)
		}
		values = append(values, pb)
	}
	return values, rows.Err()
}
