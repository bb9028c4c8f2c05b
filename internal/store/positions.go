package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ValueSentinel/internal/model"
)

// GetPosition returns model.ErrNotFound when the asset was never held.
func (q *Queries) GetPosition(ctx context.Context, userID, assetID int64) (*model.Position, error) {
	var (
		p       model.Position
		avgCost sql.NullFloat64
		updated int64
	)
	err := q.db.QueryRowContext(ctx, `SELECT id, user_id, asset_id, position_pct, shares, avg_cost, updated_at
		FROM positions WHERE asset_id = ? AND user_id = ?`, assetID, userID).
		Scan(&p.ID, &p.UserID, &p.AssetID, &p.PositionPct, &p.Shares, &avgCost, &updated)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", mapErr(err))
	}
	p.AvgCost = floatPtr(avgCost)
	p.UpdatedAt = fromUnix(updated)
	return &p, nil
}

// UpsertPosition writes the full position row for p.AssetID.
func (q *Queries) UpsertPosition(ctx context.Context, p *model.Position, now time.Time) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO positions (user_id, asset_id, position_pct, shares, avg_cost, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(asset_id) DO UPDATE SET
			position_pct = excluded.position_pct, shares = excluded.shares,
			avg_cost = excluded.avg_cost, updated_at = excluded.updated_at`,
		p.UserID, p.AssetID, p.PositionPct, p.Shares, nullFloat(p.AvgCost), unix(now))
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	p.UpdatedAt = fromUnix(unix(now))
	return nil
}

// TotalPosition sums position_pct over every holding of the user.
func (q *Queries) TotalPosition(ctx context.Context, userID int64) (float64, error) {
	var total float64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(position_pct), 0) FROM positions
		WHERE user_id = ? AND position_pct > 0`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum positions: %w", err)
	}
	return total, nil
}

// IndustryPosition sums position_pct over holdings tagged with industry, excluding one asset.
func (q *Queries) IndustryPosition(ctx context.Context, userID int64, industry string, excludeAssetID int64) (float64, error) {
	var total float64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(p.position_pct), 0)
		FROM positions p JOIN assets a ON a.id = p.asset_id
		WHERE p.user_id = ? AND a.industry = ? AND p.asset_id <> ? AND p.position_pct > 0`,
		userID, industry, excludeAssetID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum industry positions: %w", err)
	}
	return total, nil
}

// PositionLines lists open holdings joined with their asset metadata, largest first.
func (q *Queries) PositionLines(ctx context.Context, userID int64) ([]model.PositionLine, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT p.asset_id, a.code, a.name, a.industry, p.position_pct, p.avg_cost
		FROM positions p JOIN assets a ON a.id = p.asset_id
		WHERE p.user_id = ? AND p.position_pct > 0
		ORDER BY p.position_pct DESC, a.code ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query position lines: %w", err)
	}
	defer rows.Close()

	lines := make([]model.PositionLine, 0)
	for rows.Next() {
		var (
			l       model.PositionLine
			avgCost sql.NullFloat64
		)
		if err := rows.Scan(&l.AssetID, &l.Code, &l.Name, &l.Industry, &l.PositionPct, &avgCost); err != nil {
			return nil, fmt.Errorf("scan position line: %w", err)
		}
		l.AvgCost = floatPtr(avgCost)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position lines: %w", err)
	}
	return lines, nil
}

// GetPortfolio returns model.ErrNotFound when the user never configured a cash account.
func (q *Queries) GetPortfolio(ctx context.Context, userID int64) (*model.Portfolio, error) {
	var (
		p       model.Portfolio
		updated int64
	)
	err := q.db.QueryRowContext(ctx, `SELECT user_id, total_asset, cash, updated_at FROM portfolios WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.TotalAsset, &p.Cash, &updated)
	if err != nil {
		return nil, fmt.Errorf("get portfolio: %w", mapErr(err))
	}
	p.UpdatedAt = fromUnix(updated)
	return &p, nil
}

// UpsertPortfolio writes the cash account.
func (q *Queries) UpsertPortfolio(ctx context.Context, p *model.Portfolio, now time.Time) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO portfolios (user_id, total_asset, cash, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_asset = excluded.total_asset, cash = excluded.cash, updated_at = excluded.updated_at`,
		p.UserID, p.TotalAsset, p.Cash, unix(now))
	if err != nil {
		return fmt.Errorf("upsert portfolio: %w", err)
	}
	p.UpdatedAt = fromUnix(unix(now))
	return nil
}
