package report

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a summary as a Markdown string.
func RenderMarkdown(s *Summary) string {
	var sb strings.Builder

	sb.WriteString("# Trade Performance Summary\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Period: %s to %s\n\n",
		s.PeriodStart.Format("2006-01-02"), s.PeriodEnd.Format("2006-01-02")))

	sb.WriteString("## Overall\n\n")
	writeStatsTable(&sb, s.Overall)

	sb.WriteString("## By Setup\n\n")
	writeGroupTable(&sb, "Setup", s.BySetup)

	sb.WriteString("## By Instrument\n\n")
	writeGroupTable(&sb, "Instrument", s.ByInstrument)

	sb.WriteString("## Open Positions\n\n")
	if s.OpenTrades > 0 {
		sb.WriteString(fmt.Sprintf("%d open, unrealized PnL %.2f\n", s.OpenTrades, s.OpenUnrealizedPnL))
	} else {
		sb.WriteString("No open positions.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func writeStatsTable(sb *strings.Builder, st Stats) {
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Trades | %d |\n", st.Trades))
	sb.WriteString(fmt.Sprintf("| Wins | %d |\n", st.Wins))
	sb.WriteString(fmt.Sprintf("| Losses | %d |\n", st.Losses))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", st.WinRate*100))
	sb.WriteString(fmt.Sprintf("| Total PnL | %.2f |\n", st.TotalPnL))
	sb.WriteString(fmt.Sprintf("| Avg Win | %.2f |\n", st.AvgWin))
	sb.WriteString(fmt.Sprintf("| Avg Loss | %.2f |\n", st.AvgLoss))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %.2f |\n", st.ProfitFactor))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", st.MaxConsecutiveLosses))
	sb.WriteString("\n")
}

func writeGroupTable(sb *strings.Builder, label string, groups []GroupStats) {
	if len(groups) == 0 {
		sb.WriteString("No closed trades.\n\n")
		return
	}

	sb.WriteString(fmt.Sprintf("| %s | Trades | WinRate | PnL | AvgWin | AvgLoss | PF |\n", label))
	sb.WriteString("|------|--------|---------|-----|--------|---------|----|\n")
	for _, g := range groups {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.2f%% | %.2f | %.2f | %.2f | %.2f |\n",
			g.Key, g.Trades, g.WinRate*100, g.TotalPnL, g.AvgWin, g.AvgLoss, g.ProfitFactor))
	}
	sb.WriteString("\n")
}
