package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"ValueSentinel/internal/model"
)

var signalIcon = map[model.SignalType]string{
	model.SignalBuy:  "🟢",
	model.SignalAdd:  "🔵",
	model.SignalSell: "🔴",
}

func assetLabel(assets map[int64]model.Asset, id int64) string {
	if a, ok := assets[id]; ok {
		return fmt.Sprintf("%s (%s)", html.EscapeString(a.Name), html.EscapeString(a.Code))
	}
	return fmt.Sprintf("asset #%d", id)
}

func writeSignal(b *strings.Builder, s model.Signal, assets map[int64]model.Asset) {
	fmt.Fprintf(b, "%s <b>%s</b> %s\n", signalIcon[s.Type], s.Type, assetLabel(assets, s.AssetID))
	fmt.Fprintf(b, "   PB %.2f | level %.2f | #%d\n", s.PB, s.TriggeredThreshold, s.ID)
	if s.Explanation != "" {
		fmt.Fprintf(b, "   %s\n", html.EscapeString(s.Explanation))
	}
}

// FormatScanReport formats the signals a scheduled scan created.
func FormatScanReport(day time.Time, signals []model.Signal, assets map[int64]model.Asset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>ValueSentinel scan</b> | %s\n\n", day.Format(model.DateLayout))
	if len(signals) == 0 {
		b.WriteString("No new signals today.")
		return b.String()
	}
	fmt.Fprintf(&b, "%d new signal(s):\n\n", len(signals))
	for _, s := range signals {
		writeSignal(&b, s, assets)
	}
	b.WriteString("\nRecord a decision with a written reason before trading.")
	return b.String()
}

// FormatOpenSignals formats the signals still awaiting a decision.
func FormatOpenSignals(signals []model.Signal, assets map[int64]model.Asset) string {
	var b strings.Builder
	b.WriteString("📋 <b>Open signals</b>\n\n")
	if len(signals) == 0 {
		b.WriteString("Nothing pending.")
		return b.String()
	}
	for _, s := range signals {
		fmt.Fprintf(&b, "%s ", s.Date.Format(model.DateLayout))
		writeSignal(&b, s, assets)
	}
	return b.String()
}

// FormatPositionSummary formats the allocation view for display.
func FormatPositionSummary(sum *model.PositionSummary) string {
	var b strings.Builder
	b.WriteString("📦 <b>Positions</b>\n\n")
	fmt.Fprintf(&b, "Invested: %.1f%% (cap %.1f%%)\n", sum.TotalPositionPct, sum.MaxTotalPosition)
	fmt.Fprintf(&b, "Cash: %.1f%%\n", sum.CashPositionPct)
	fmt.Fprintf(&b, "Holdings: %d (single cap %.1f%%)\n", sum.StockCount, sum.MaxSinglePosition)
	if len(sum.Positions) > 0 {
		b.WriteString("\n")
	}
	for _, p := range sum.Positions {
		fmt.Fprintf(&b, "  %s (%s): %.1f%%", html.EscapeString(p.Name), html.EscapeString(p.Code), p.PositionPct)
		if p.Industry != "" {
			fmt.Fprintf(&b, " [%s]", html.EscapeString(p.Industry))
		}
		if p.AvgCost != nil {
			fmt.Fprintf(&b, " @ %.2f", *p.AvgCost)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatIngestFailure reports assets whose quotes could not be fetched.
func FormatIngestFailure(failed []string, err error) string {
	var b strings.Builder
	b.WriteString("❌ <b>Data collection failed</b>\n\n")
	if len(failed) > 0 {
		fmt.Fprintf(&b, "Assets: %s\n", html.EscapeString(strings.Join(failed, ", ")))
	}
	if err != nil {
		fmt.Fprintf(&b, "Error: %s\n", html.EscapeString(err.Error()))
	}
	return b.String()
}

// FormatHelp lists the chat commands.
func FormatHelp() string {
	return "Available commands:\n• /signals: open signals\n• /positions: position summary\n• /scan: collect and scan now"
}
