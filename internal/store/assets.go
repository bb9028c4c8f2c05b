package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ValueSentinel/internal/model"
)

const assetColumns = `id, user_id, code, name, market, industry, tags, competence_score,
	ai_score, ai_summary, notes, created_at, updated_at`

// AssetFilter narrows ListAssets. Zero values mean "no filter".
type AssetFilter struct {
	Market        model.Market
	MinCompetence int
	Keyword       string
	Industry      string
	MonitoredOnly bool // only assets that have a threshold
}

func scanAsset(row interface{ Scan(...any) error }) (*model.Asset, error) {
	var (
		a                model.Asset
		aiScore          sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Code, &a.Name, &a.Market, &a.Industry, &a.Tags,
		&a.CompetenceScore, &aiScore, &a.AISummary, &a.Notes, &created, &updated); err != nil {
		return nil, err
	}
	if aiScore.Valid {
		v := int(aiScore.Int64)
		a.AIScore = &v
	}
	a.CreatedAt = fromUnix(created)
	a.UpdatedAt = fromUnix(updated)
	return &a, nil
}

// CreateAsset inserts a and fills in its ID. Codes are unique per user.
func (q *Queries) CreateAsset(ctx context.Context, a *model.Asset, now time.Time) error {
	a.Code = strings.ToUpper(strings.TrimSpace(a.Code))
	var aiScore sql.NullInt64
	if a.AIScore != nil {
		aiScore = sql.NullInt64{Int64: int64(*a.AIScore), Valid: true}
	}
	res, err := q.db.ExecContext(ctx, `INSERT INTO assets
		(user_id, code, name, market, industry, tags, competence_score, ai_score, ai_summary, notes, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.UserID, a.Code, a.Name, a.Market, a.Industry, a.Tags, a.CompetenceScore,
		aiScore, a.AISummary, a.Notes, unix(now), unix(now))
	if err != nil {
		return fmt.Errorf("insert asset %s: %w", a.Code, mapErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("asset last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt, a.UpdatedAt = fromUnix(unix(now)), fromUnix(unix(now))
	return nil
}

// UpdateAsset rewrites the user-editable fields of a.
func (q *Queries) UpdateAsset(ctx context.Context, a *model.Asset, now time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE assets
		SET name = ?, market = ?, industry = ?, tags = ?, competence_score = ?, notes = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		a.Name, a.Market, a.Industry, a.Tags, a.CompetenceScore, a.Notes, unix(now), a.ID, a.UserID)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return expectOne(res, "update asset")
}

// SetAIAnnotation stores the opaque AI score and summary on an asset.
func (q *Queries) SetAIAnnotation(ctx context.Context, userID, assetID int64, score int, summary string, now time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE assets SET ai_score = ?, ai_summary = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`, score, summary, unix(now), assetID, userID)
	if err != nil {
		return fmt.Errorf("set ai annotation: %w", err)
	}
	return expectOne(res, "set ai annotation")
}

// DeleteAsset removes an asset; owned rows go with it through ON DELETE CASCADE.
func (q *Queries) DeleteAsset(ctx context.Context, userID, assetID int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ? AND user_id = ?`, assetID, userID)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return expectOne(res, "delete asset")
}

// GetAsset loads one asset by id.
func (q *Queries) GetAsset(ctx context.Context, userID, assetID int64) (*model.Asset, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ? AND user_id = ?`, assetID, userID)
	a, err := scanAsset(row)
	if err != nil {
		return nil, fmt.Errorf("get asset %d: %w", assetID, mapErr(err))
	}
	return a, nil
}

// GetAssetByCode loads one asset by its code.
func (q *Queries) GetAssetByCode(ctx context.Context, userID int64, code string) (*model.Asset, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	row := q.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE code = ? AND user_id = ?`, code, userID)
	a, err := scanAsset(row)
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", code, mapErr(err))
	}
	return a, nil
}

// ListAssets returns the user's assets, newest first.
func (q *Queries) ListAssets(ctx context.Context, userID int64, f AssetFilter) ([]model.Asset, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Market != "" {
		where = append(where, "market = ?")
		args = append(args, f.Market)
	}
	if f.MinCompetence > 0 {
		where = append(where, "competence_score >= ?")
		args = append(args, f.MinCompetence)
	}
	if f.Industry != "" {
		where = append(where, "industry = ?")
		args = append(args, f.Industry)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		where = append(where, "(code LIKE ? OR name LIKE ?)")
		args = append(args, "%"+strings.ToUpper(kw)+"%", "%"+kw+"%")
	}
	if f.MonitoredOnly {
		where = append(where, "id IN (SELECT asset_id FROM thresholds WHERE user_id = ?)")
		args = append(args, userID)
	}

	rows, err := q.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets
		WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	assets := make([]model.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

// ListUserIDs returns every user that owns at least one asset.
func (q *Queries) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM assets ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertThreshold creates or replaces the threshold of t.AssetID.
func (q *Queries) UpsertThreshold(ctx context.Context, t *model.Threshold, now time.Time) error {
	res, err := q.db.ExecContext(ctx, `INSERT INTO thresholds (user_id, asset_id, buy_pb, add_pb, sell_pb, updated_at)
		SELECT ?, id, ?, ?, ?, ? FROM assets WHERE id = ? AND user_id = ?
		ON CONFLICT(asset_id) DO UPDATE SET
			buy_pb = excluded.buy_pb, add_pb = excluded.add_pb,
			sell_pb = excluded.sell_pb, updated_at = excluded.updated_at`,
		t.UserID, t.BuyPB, nullFloat(t.AddPB), nullFloat(t.SellPB), unix(now), t.AssetID, t.UserID)
	if err != nil {
		return fmt.Errorf("upsert threshold: %w", err)
	}
	if err := expectOne(res, "upsert threshold"); err != nil {
		return err
	}
	t.UpdatedAt = fromUnix(unix(now))
	return nil
}

// GetThreshold returns model.ErrNotFound when the asset is not monitored.
func (q *Queries) GetThreshold(ctx context.Context, userID, assetID int64) (*model.Threshold, error) {
	var (
		t           model.Threshold
		addPB, sell sql.NullFloat64
		updated     int64
	)
	err := q.db.QueryRowContext(ctx, `SELECT id, user_id, asset_id, buy_pb, add_pb, sell_pb, updated_at
		FROM thresholds WHERE asset_id = ? AND user_id = ?`, assetID, userID).
		Scan(&t.ID, &t.UserID, &t.AssetID, &t.BuyPB, &addPB, &sell, &updated)
	if err != nil {
		return nil, fmt.Errorf("get threshold: %w", mapErr(err))
	}
	t.AddPB = floatPtr(addPB)
	t.SellPB = floatPtr(sell)
	t.UpdatedAt = fromUnix(updated)
	return &t, nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return nil
}
