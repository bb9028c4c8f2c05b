package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ValueSentinel/internal/model"
)

func f(v float64) *float64 { return &v }

func TestDecide(t *testing.T) {
	th := &model.Threshold{BuyPB: 2.0, AddPB: f(1.5), SellPB: f(5.0)}

	tests := []struct {
		name  string
		pb    float64
		held  bool
		want  model.SignalType
		level float64
		fires bool
	}{
		{"sell while holding", 5.2, true, model.SignalSell, 5.0, true},
		{"sell ignored when flat", 5.2, false, "", 0, false},
		{"add while holding", 1.4, true, model.SignalAdd, 1.5, true},
		{"add falls back to buy when flat", 1.4, false, model.SignalBuy, 2.0, true},
		{"buy while holding", 1.8, true, model.SignalBuy, 2.0, true},
		{"buy at the level", 2.0, false, model.SignalBuy, 2.0, true},
		{"dead zone", 3.0, true, "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := Decide(th, tt.pb, tt.held)
			assert.Equal(t, tt.fires, ok)
			assert.Equal(t, tt.want, tr.Type)
			assert.Equal(t, tt.level, tr.Level)
		})
	}
}

func TestDecide_SellBeatsBuyWhenBothHold(t *testing.T) {
	// unvalidated levels where one pb satisfies both conditions
	th := &model.Threshold{BuyPB: 3.0, SellPB: f(2.5)}
	tr, ok := Decide(th, 2.8, true)
	assert.True(t, ok)
	assert.Equal(t, model.SignalSell, tr.Type)

	tr, ok = Decide(th, 2.8, false)
	assert.True(t, ok)
	assert.Equal(t, model.SignalBuy, tr.Type)
}

func TestExplain(t *testing.T) {
	buy := Trigger{Type: model.SignalBuy, Level: 1.5}

	assert.Equal(t, "PB 1.40 <= buy level 1.50, BUY triggered.", Explain(buy, 1.4, nil, 5))
	assert.Equal(t,
		"PB 1.40 <= buy level 1.50, BUY triggered; 5y percentile 12.0%; historically scarce undervaluation.",
		Explain(buy, 1.4, f(12), 5))
	assert.Contains(t, Explain(buy, 1.4, f(30), 5), "relatively undervalued")
	assert.Equal(t, "PB 1.40 <= buy level 1.50, BUY triggered; 5y percentile 50.0%.", Explain(buy, 1.4, f(50), 5))

	sell := Trigger{Type: model.SignalSell, Level: 5}
	got := Explain(sell, 5.2, f(90), 5)
	assert.Contains(t, got, "PB 5.20 >= exit level 5.00")
	assert.Contains(t, got, "historically overvalued")
}
