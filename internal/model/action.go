package model

import (
	"fmt"
	"strings"
	"time"
)

// ActionType is the trade decision recorded by the user.
type ActionType string

const (
	ActionBuy  ActionType = "BUY"
	ActionAdd  ActionType = "ADD"
	ActionHold ActionType = "HOLD"
	ActionSell ActionType = "SELL"
)

// ParseActionType validates a user supplied action type.
func ParseActionType(s string) (ActionType, error) {
	switch at := ActionType(strings.ToUpper(strings.TrimSpace(s))); at {
	case ActionBuy, ActionAdd, ActionHold, ActionSell:
		return at, nil
	}
	return "", fmt.Errorf("unknown action type %q", s)
}

// IsBuySide reports whether the action increases the position.
func (a ActionType) IsBuySide() bool {
	return a == ActionBuy || a == ActionAdd
}

// Action is the immutable audit record of one trade decision.
type Action struct {
	ID                  int64      `json:"id"`
	UserID              int64      `json:"user_id"`
	AssetID             int64      `json:"asset_id"`
	SignalID            *int64     `json:"signal_id,omitempty"`
	ActionDate          time.Time  `json:"action_date"`
	Type                ActionType `json:"action_type"`
	PlannedPositionPct  float64    `json:"planned_position_pct"`
	ExecutedPositionPct float64    `json:"executed_position_pct"`
	ExecutedAmount      float64    `json:"executed_amount"`
	Shares              *int64     `json:"shares,omitempty"`
	Price               *float64   `json:"price,omitempty"`
	Reason              string     `json:"reason"`
	Emotion             string     `json:"emotion,omitempty"`
	RuleCompliance      bool       `json:"rule_compliance"`
	ComplianceNote      string     `json:"compliance_note,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	Costs               []Cost     `json:"costs,omitempty"`
}

// Cost is a fee/tax/slippage line attached to an action.
type Cost struct {
	ID       int64   `json:"id"`
	ActionID int64   `json:"action_id"`
	Fee      float64 `json:"fee"`
	Tax      float64 `json:"tax"`
	Slippage float64 `json:"slippage"`
}

// Total returns the sum of all cost components.
func (c Cost) Total() float64 { return c.Fee + c.Tax + c.Slippage }

// IsZero reports whether the cost line carries nothing worth persisting.
func (c Cost) IsZero() bool { return c.Fee <= 0 && c.Tax <= 0 && c.Slippage <= 0 }

// ComplianceViolation is one forced action in a compliance report.
type ComplianceViolation struct {
	ActionID int64      `json:"action_id"`
	AssetID  int64      `json:"asset_id"`
	Date     time.Time  `json:"date"`
	Type     ActionType `json:"type"`
	Note     string     `json:"note"`
}

// ComplianceStats summarizes rule compliance of non-HOLD actions.
type ComplianceStats struct {
	TotalActions     int                   `json:"total_actions"`
	CompliantActions int                   `json:"compliant_actions"`
	ComplianceRate   float64               `json:"compliance_rate"`
	Violations       []ComplianceViolation `json:"violations"`
}
