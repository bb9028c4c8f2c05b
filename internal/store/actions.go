package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ValueSentinel/internal/model"
)

const actionColumns = `id, user_id, asset_id, signal_id, action_date, action_type, planned_position_pct,
	executed_position_pct, executed_amount, shares, price, reason, emotion, rule_compliance,
	compliance_note, created_at`

// ActionFilter narrows ListActions. Zero values mean "no filter".
type ActionFilter struct {
	AssetID     int64
	Type        model.ActionType
	Since       time.Time
	ExcludeHold bool
	Limit       int
}

func scanAction(row interface{ Scan(...any) error }) (*model.Action, error) {
	var (
		a         model.Action
		signalID  sql.NullInt64
		shares    sql.NullInt64
		price     sql.NullFloat64
		date      string
		compliant int
		created   int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.AssetID, &signalID, &date, &a.Type, &a.PlannedPositionPct,
		&a.ExecutedPositionPct, &a.ExecutedAmount, &shares, &price, &a.Reason, &a.Emotion, &compliant,
		&a.ComplianceNote, &created); err != nil {
		return nil, err
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse action date %q: %w", date, err)
	}
	a.ActionDate = d
	a.SignalID = intPtr(signalID)
	a.Shares = intPtr(shares)
	a.Price = floatPtr(price)
	a.RuleCompliance = compliant != 0
	a.CreatedAt = fromUnix(created)
	return &a, nil
}

// CreateAction appends an action and its cost lines. Actions are never updated afterwards.
func (q *Queries) CreateAction(ctx context.Context, a *model.Action, now time.Time) error {
	compliant := 0
	if a.RuleCompliance {
		compliant = 1
	}
	res, err := q.db.ExecContext(ctx, `INSERT INTO actions
		(user_id, asset_id, signal_id, action_date, action_type, planned_position_pct, executed_position_pct,
		 executed_amount, shares, price, reason, emotion, rule_compliance, compliance_note, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.UserID, a.AssetID, nullInt(a.SignalID), dateString(a.ActionDate), a.Type, a.PlannedPositionPct,
		a.ExecutedPositionPct, a.ExecutedAmount, nullInt(a.Shares), nullFloat(a.Price), a.Reason, a.Emotion,
		compliant, a.ComplianceNote, unix(now))
	if err != nil {
		return fmt.Errorf("insert action: %w", mapErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("action last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt = fromUnix(unix(now))

	for i := range a.Costs {
		c := &a.Costs[i]
		c.ActionID = id
		res, err := q.db.ExecContext(ctx, `INSERT INTO costs (action_id, fee, tax, slippage) VALUES (?,?,?,?)`,
			id, c.Fee, c.Tax, c.Slippage)
		if err != nil {
			return fmt.Errorf("insert cost: %w", err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("cost last insert id: %w", err)
		}
	}
	return nil
}

// ListActions returns actions newest first, with their cost lines attached.
func (q *Queries) ListActions(ctx context.Context, userID int64, f ActionFilter) ([]model.Action, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.AssetID > 0 {
		where = append(where, "asset_id = ?")
		args = append(args, f.AssetID)
	}
	if f.Type != "" {
		where = append(where, "action_type = ?")
		args = append(args, f.Type)
	}
	if f.ExcludeHold {
		where = append(where, "action_type <> ?")
		args = append(args, model.ActionHold)
	}
	if !f.Since.IsZero() {
		where = append(where, "action_date >= ?")
		args = append(args, dateString(f.Since))
	}
	query := `SELECT ` + actionColumns + ` FROM actions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY action_date DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	out := make([]model.Action, 0)
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	rows.Close()

	// costs are loaded after the cursor is closed; a transaction holds a single connection
	for i := range out {
		costs, err := q.actionCosts(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Costs = costs
	}
	return out, nil
}

func (q *Queries) actionCosts(ctx context.Context, actionID int64) ([]model.Cost, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, action_id, fee, tax, slippage FROM costs
		WHERE action_id = ? ORDER BY id`, actionID)
	if err != nil {
		return nil, fmt.Errorf("query costs: %w", err)
	}
	defer rows.Close()

	var costs []model.Cost
	for rows.Next() {
		var c model.Cost
		if err := rows.Scan(&c.ID, &c.ActionID, &c.Fee, &c.Tax, &c.Slippage); err != nil {
			return nil, fmt.Errorf("scan cost: %w", err)
		}
		costs = append(costs, c)
	}
	return costs, rows.Err()
}

// TurnoverOn sums executed_amount of the non-HOLD actions dated on day.
func (q *Queries) TurnoverOn(ctx context.Context, userID int64, day time.Time) (float64, error) {
	var total float64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(executed_amount), 0) FROM actions
		WHERE user_id = ? AND action_date = ? AND action_type <> ?`,
		userID, dateString(day), model.ActionHold).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum turnover: %w", err)
	}
	return total, nil
}
