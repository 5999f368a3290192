package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/simulator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2E7D32")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#96CEB4"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func renderLeaderboard(board []blackjack.Standing) string {
	if len(board) == 0 {
		return mutedStyle.Render("No accounts yet.")
	}
	t := newTable("#", "Player", "Balance", "Wins", "Games", "Highest win")
	for i, row := range board {
		t.Row(
			strconv.Itoa(i+1),
			row.Username,
			strconv.FormatInt(row.Balance, 10),
			strconv.FormatInt(row.Wins, 10),
			strconv.FormatInt(row.GamesPlayed, 10),
			strconv.FormatInt(row.HighestWin, 10),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Leaderboard"), t.Render())
}

var outcomeOrder = []blackjack.Outcome{
	blackjack.OutcomePlayerWin,
	blackjack.OutcomePush,
	blackjack.OutcomeDealerWin,
	blackjack.OutcomePlayerBust,
	blackjack.OutcomeSurrendered,
}

func renderReport(r *simulator.Report) string {
	s := r.Stats
	var b strings.Builder

	title := fmt.Sprintf("Simulation: %s policy, seed %d", r.Policy, r.Seed)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	outcomes := newTable("Outcome", "Rounds", "Share", "Net")
	for _, o := range outcomeOrder {
		net := int64(0)
		if os, ok := s.Outcomes[o]; ok {
			net = os.Net
		}
		outcomes.Row(
			string(o),
			strconv.Itoa(s.Count(o)),
			fmt.Sprintf("%.2f%%", s.Rate(o)*100),
			strconv.FormatInt(net, 10),
		)
	}
	b.WriteString(outcomes.Render())
	b.WriteString("\n")

	low, high := s.ConfidenceInterval95()
	summary := newTable("Metric", "Value")
	summary.Rows(
		[]string{"Rounds", strconv.Itoa(s.Rounds)},
		[]string{"Skipped", strconv.Itoa(r.Skipped)},
		[]string{"Staked", strconv.FormatInt(s.Staked, 10)},
		[]string{"Paid", strconv.FormatInt(s.Paid, 10)},
		[]string{"Return to player", fmt.Sprintf("%.4f", s.ReturnToPlayer())},
		[]string{"Mean net / round", fmt.Sprintf("%.4f", s.Mean())},
		[]string{"Std dev", fmt.Sprintf("%.4f", s.StdDev())},
		[]string{"95% CI", fmt.Sprintf("[%.4f, %.4f]", low, high)},
		[]string{"Naturals", strconv.Itoa(s.Naturals)},
		[]string{"Dealer busts", strconv.Itoa(s.DealerBusts)},
		[]string{"Elapsed", r.Elapsed.Round(time.Millisecond).String()},
	)
	b.WriteString(summary.Render())
	return b.String()
}
