package report

import (
	"fmt"
	"strings"
)

// RenderCSV renders the per-group rows as a CSV string, overall first.
func RenderCSV(s *Summary) string {
	var sb strings.Builder

	sb.WriteString("group,key,trades,wins,losses,win_rate,total_pnl,avg_win,avg_loss,profit_factor,max_consecutive_losses\n")

	writeCSVRow(&sb, "overall", "", s.Overall)
	for _, g := range s.BySetup {
		writeCSVRow(&sb, "setup", g.Key, g.Stats)
	}
	for _, g := range s.ByInstrument {
		writeCSVRow(&sb, "instrument", g.Key, g.Stats)
	}

	return sb.String()
}

func writeCSVRow(sb *strings.Builder, group, key string, st Stats) {
	sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n",
		group, key,
		st.Trades, st.Wins, st.Losses, st.WinRate,
		st.TotalPnL, st.AvgWin, st.AvgLoss, st.ProfitFactor,
		st.MaxConsecutiveLosses,
	))
}
