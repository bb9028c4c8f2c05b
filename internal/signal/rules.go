package signal

import (
	"fmt"
	"strings"

	"ValueSentinel/internal/model"
)

// Trigger is the outcome of comparing a PB against a threshold.
type Trigger struct {
	Type  model.SignalType
	Level float64 // the threshold value that fired
}

// Decide applies the trigger rules in priority order SELL, ADD, BUY. SELL and ADD
// need an open position; BUY fires whether or not the asset is held.
func Decide(t *model.Threshold, pb float64, held bool) (Trigger, bool) {
	if held && t.SellPB != nil && pb >= *t.SellPB {
		return Trigger{Type: model.SignalSell, Level: *t.SellPB}, true
	}
	if held && t.AddPB != nil && pb <= *t.AddPB {
		return Trigger{Type: model.SignalAdd, Level: *t.AddPB}, true
	}
	if pb <= t.BuyPB {
		return Trigger{Type: model.SignalBuy, Level: t.BuyPB}, true
	}
	return Trigger{}, false
}

var levelNames = map[model.SignalType]string{
	model.SignalBuy:  "buy level",
	model.SignalAdd:  "add level",
	model.SignalSell: "exit level",
}

// Explain renders the human-readable reason of a signal. percentile may be nil.
func Explain(tr Trigger, pb float64, percentile *float64, years int) string {
	op := "<="
	if tr.Type == model.SignalSell {
		op = ">="
	}
	parts := []string{
		fmt.Sprintf("PB %.2f %s %s %.2f, %s triggered", pb, op, levelNames[tr.Type], tr.Level, tr.Type),
	}
	if percentile != nil {
		parts = append(parts, fmt.Sprintf("%dy percentile %.1f%%", years, *percentile))
		if tag := percentileTag(*percentile); tag != "" {
			parts = append(parts, tag)
		}
	}
	return strings.Join(parts, "; ") + "."
}

func percentileTag(p float64) string {
	switch {
	case p <= 15:
		return "historically scarce undervaluation"
	case p <= 30:
		return "relatively undervalued"
	case p >= 85:
		return "historically overvalued"
	}
	return ""
}
