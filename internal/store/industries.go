package store

import (
	"context"
	"database/sql"
	"fmt"

	"ValueSentinel/internal/model"
)

func scanIndustry(row interface{ Scan(...any) error }) (*model.IndustryConfig, error) {
	var (
		c                   model.IndustryConfig
		addPB, sellPB, maxP sql.NullFloat64
		cyclical            int
	)
	if err := row.Scan(&c.UserID, &c.Industry, &c.DefaultBuyPB, &addPB, &sellPB, &maxP, &cyclical); err != nil {
		return nil, err
	}
	c.DefaultAddPB = floatPtr(addPB)
	c.DefaultSellPB = floatPtr(sellPB)
	c.RecommendedMaxPosition = floatPtr(maxP)
	c.Cyclical = cyclical != 0
	return &c, nil
}

// UpsertIndustry creates or replaces an industry config.
func (q *Queries) UpsertIndustry(ctx context.Context, c *model.IndustryConfig) error {
	cyclical := 0
	if c.Cyclical {
		cyclical = 1
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO industry_configs
		(user_id, industry, default_buy_pb, default_add_pb, default_sell_pb, recommended_max_position, cyclical)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(user_id, industry) DO UPDATE SET
			default_buy_pb = excluded.default_buy_pb, default_add_pb = excluded.default_add_pb,
			default_sell_pb = excluded.default_sell_pb,
			recommended_max_position = excluded.recommended_max_position, cyclical = excluded.cyclical`,
		c.UserID, c.Industry, c.DefaultBuyPB, nullFloat(c.DefaultAddPB), nullFloat(c.DefaultSellPB),
		nullFloat(c.RecommendedMaxPosition), cyclical)
	if err != nil {
		return fmt.Errorf("upsert industry %s: %w", c.Industry, err)
	}
	return nil
}

// GetIndustry returns model.ErrNotFound when the industry has no config.
func (q *Queries) GetIndustry(ctx context.Context, userID int64, industry string) (*model.IndustryConfig, error) {
	row := q.db.QueryRowContext(ctx, `SELECT user_id, industry, default_buy_pb, default_add_pb, default_sell_pb,
		recommended_max_position, cyclical FROM industry_configs WHERE user_id = ? AND industry = ?`, userID, industry)
	c, err := scanIndustry(row)
	if err != nil {
		return nil, fmt.Errorf("get industry %s: %w", industry, mapErr(err))
	}
	return c, nil
}

// ListIndustries returns every industry config of the user, by name.
func (q *Queries) ListIndustries(ctx context.Context, userID int64) ([]model.IndustryConfig, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT user_id, industry, default_buy_pb, default_add_pb, default_sell_pb,
		recommended_max_position, cyclical FROM industry_configs WHERE user_id = ? ORDER BY industry`, userID)
	if err != nil {
		return nil, fmt.Errorf("query industries: %w", err)
	}
	defer rows.Close()

	out := make([]model.IndustryConfig, 0)
	for rows.Next() {
		c, err := scanIndustry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan industry: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteIndustry removes an industry config.
func (q *Queries) DeleteIndustry(ctx context.Context, userID int64, industry string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM industry_configs WHERE user_id = ? AND industry = ?`, userID, industry)
	if err != nil {
		return fmt.Errorf("delete industry: %w", err)
	}
	return expectOne(res, "delete industry")
}
