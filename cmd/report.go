package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Vovarama1992/widget-chat-bridge/internal/analytics"
)

const formatTable = "table"

var (
	reportBot    string
	reportPeriod string
	reportStart  string
	reportEnd    string
	reportFormat string
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the analytics report for a bot",
	Example: `  widget-bridge report --bot support --period month
  widget-bridge report --bot support --period custom --start 2026-03-01 --end 2026-03-31 --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(reportFormat)
		switch format {
		case analytics.FormatJSON, analytics.FormatCSV, formatTable:
		default:
			return fmt.Errorf("unsupported format %q (json, csv, table)", reportFormat)
		}

		window, err := analytics.ResolveWindow(analytics.Period(reportPeriod), reportStart, reportEnd, time.Now())
		if err != nil {
			return err
		}

		repo, err := openRepo()
		if err != nil {
			return err
		}
		defer repo.Close()

		report, err := analytics.NewEngine(repo, logger).Aggregate(cmd.Context(), reportBot, window)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), report, format)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportBot, "bot", "", "bot id")
	reportCmd.Flags().StringVar(&reportPeriod, "period", string(analytics.PeriodWeek), "day, week, month or custom")
	reportCmd.Flags().StringVar(&reportStart, "start", "", "custom period start (YYYY-MM-DD or RFC3339)")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "custom period end (YYYY-MM-DD or RFC3339)")
	reportCmd.Flags().StringVar(&reportFormat, "format", formatTable, "json, csv or table")
	_ = reportCmd.MarkFlagRequired("bot")
}

func writeReport(w io.Writer, report analytics.Report, format string) error {
	switch format {
	case analytics.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case analytics.FormatCSV:
		return analytics.WriteCSV(w, report.Daily)
	default:
		return writeReportTable(w, report)
	}
}

func writeReportTable(w io.Writer, report analytics.Report) error {
	perf := report.Performance
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📊 %s  %s → %s",
		report.BotID, report.Window.Start.Format(time.DateOnly), report.Window.End.Format(time.DateOnly))))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	summary := [][2]string{
		{"Conversations", strconv.Itoa(perf.TotalConversations)},
		{"Active conversations", strconv.Itoa(perf.ActiveConversations)},
		{"Interactions", strconv.Itoa(perf.TotalInteractions)},
		{"Unique users", strconv.Itoa(perf.UniqueUsers)},
		{"Returning / new users", fmt.Sprintf("%d / %d", report.Engagement.ReturningUsers, report.Engagement.NewUsers)},
		{"Resolution rate", fmt.Sprintf("%.1f%%", perf.ResolutionRate)},
		{"Handover rate", fmt.Sprintf("%.1f%%", perf.HandoverRate)},
		{"Avg response", fmt.Sprintf("%.2fs (p50 %.2fs, p90 %.2fs, p95 %.2fs)",
			perf.AvgResponseTime, perf.ResponseTimeP50, perf.ResponseTimeP90, perf.ResponseTimeP95)},
		{"Avg messages / conversation", fmt.Sprintf("%.2f", perf.AvgMessagesPerConversation)},
	}
	for _, row := range summary {
		fmt.Fprintf(tw, "%s\t%s\n", dimStyle.Render(row[0]), countStyle.Render(row[1]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, titleStyle.Render("Date")+"\t"+titleStyle.Render("Conversations")+"\t"+
		titleStyle.Render("Resolved")+"\t"+titleStyle.Render("Handovers")+"\t"+titleStyle.Render("Avg Messages")+"\t")
	for _, d := range report.Daily {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.2f\t\n", d.Date, d.Conversations, d.Resolved, d.Handovers, d.AvgMessages)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.TopQuestions) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Top questions"))
	tw = tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for i, q := range report.TopQuestions {
		fmt.Fprintf(tw, "%d.\t%s\t%s\t%s\n", i+1, truncateRunes(q.Question, 50),
			countStyle.Render(strconv.Itoa(q.Count)),
			dimStyle.Render(fmt.Sprintf("%.1f%%  %.2fs", q.Percentage, q.AvgResponseTime)))
	}
	return tw.Flush()
}

// truncateRunes shortens s to max runes, the last three being "...".
func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
