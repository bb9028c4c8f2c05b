package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ValueSentinel/internal/model"
)

const signalColumns = `id, user_id, asset_id, date, signal_type, pb, triggered_threshold, explanation, status, created_at`

// SignalFilter narrows ListSignals. Zero values mean "no filter".
type SignalFilter struct {
	AssetID int64
	Status  model.SignalStatus
	On      time.Time // exact date
	Since   time.Time // date >= Since
	Limit   int
}

func scanSignal(row interface{ Scan(...any) error }) (*model.Signal, error) {
	var (
		s       model.Signal
		date    string
		created int64
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.AssetID, &date, &s.Type, &s.PB,
		&s.TriggeredThreshold, &s.Explanation, &s.Status, &created); err != nil {
		return nil, err
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse signal date %q: %w", date, err)
	}
	s.Date = d
	s.CreatedAt = fromUnix(created)
	return &s, nil
}

// CreateSignal inserts s. A second OPEN signal for the same asset and day fails with ErrConflict.
func (q *Queries) CreateSignal(ctx context.Context, s *model.Signal, now time.Time) error {
	if s.Status == "" {
		s.Status = model.SignalOpen
	}
	res, err := q.db.ExecContext(ctx, `INSERT INTO signals
		(user_id, asset_id, date, signal_type, pb, triggered_threshold, explanation, status, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		s.UserID, s.AssetID, dateString(s.Date), s.Type, s.PB, s.TriggeredThreshold,
		s.Explanation, s.Status, unix(now))
	if err != nil {
		return fmt.Errorf("insert signal: %w", mapErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("signal last insert id: %w", err)
	}
	s.ID = id
	s.CreatedAt = fromUnix(unix(now))
	return nil
}

// GetSignal loads one signal by id.
func (q *Queries) GetSignal(ctx context.Context, userID, signalID int64) (*model.Signal, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ? AND user_id = ?`, signalID, userID)
	s, err := scanSignal(row)
	if err != nil {
		return nil, fmt.Errorf("get signal %d: %w", signalID, mapErr(err))
	}
	return s, nil
}

// OpenSignalOn returns the OPEN signal of an asset on date, or model.ErrNotFound.
func (q *Queries) OpenSignalOn(ctx context.Context, userID, assetID int64, date time.Time) (*model.Signal, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE user_id = ? AND asset_id = ? AND date = ? AND status = ?`,
		userID, assetID, dateString(date), model.SignalOpen)
	s, err := scanSignal(row)
	if err != nil {
		return nil, fmt.Errorf("open signal: %w", mapErr(err))
	}
	return s, nil
}

// LatestSignalOfType returns the most recent signal of one type for an asset, in any status.
func (q *Queries) LatestSignalOfType(ctx context.Context, userID, assetID int64, typ model.SignalType) (*model.Signal, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE user_id = ? AND asset_id = ? AND signal_type = ?
		ORDER BY date DESC, id DESC LIMIT 1`, userID, assetID, typ)
	s, err := scanSignal(row)
	if err != nil {
		return nil, fmt.Errorf("latest %s signal: %w", typ, mapErr(err))
	}
	return s, nil
}

// CloseSignal moves an OPEN signal to a terminal status.
// It returns model.ErrNotFound if the signal is missing or no longer OPEN.
func (q *Queries) CloseSignal(ctx context.Context, userID, signalID int64, status model.SignalStatus) error {
	res, err := q.db.ExecContext(ctx, `UPDATE signals SET status = ?
		WHERE id = ? AND user_id = ? AND status = ?`, status, signalID, userID, model.SignalOpen)
	if err != nil {
		return fmt.Errorf("close signal: %w", err)
	}
	return expectOne(res, "close signal")
}

// ListSignals returns signals newest first.
func (q *Queries) ListSignals(ctx context.Context, userID int64, f SignalFilter) ([]model.Signal, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.AssetID > 0 {
		where = append(where, "asset_id = ?")
		args = append(args, f.AssetID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.On.IsZero() {
		where = append(where, "date = ?")
		args = append(args, dateString(f.On))
	}
	if !f.Since.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, dateString(f.Since))
	}
	query := `SELECT ` + signalColumns + ` FROM signals WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := make([]model.Signal, 0)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}
