package model

import (
	"fmt"
	"strings"
	"time"
)

// SignalType indicates which threshold fired.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalAdd  SignalType = "ADD"
	SignalSell SignalType = "SELL"
)

// SignalStatus is the lifecycle state of a signal. DONE and IGNORED are terminal.
type SignalStatus string

const (
	SignalOpen    SignalStatus = "OPEN"
	SignalDone    SignalStatus = "DONE"
	SignalIgnored SignalStatus = "IGNORED"
)

// ParseSignalStatus validates a persisted or user supplied status.
func ParseSignalStatus(s string) (SignalStatus, error) {
	switch st := SignalStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case SignalOpen, SignalDone, SignalIgnored:
		return st, nil
	}
	return "", fmt.Errorf("unknown signal status %q", s)
}

// Signal is raised when an asset's PB crosses one of its thresholds.
type Signal struct {
	ID                 int64        `json:"id"`
	UserID             int64        `json:"user_id"`
	AssetID            int64        `json:"asset_id"`
	Date               time.Time    `json:"date"`
	Type               SignalType   `json:"signal_type"`
	PB                 float64      `json:"pb"`
	TriggeredThreshold float64      `json:"triggered_threshold"`
	Explanation        string       `json:"explanation"`
	Status             SignalStatus `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
}
