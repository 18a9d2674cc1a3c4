package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pytest-insight/internal/analysis"
	"pytest-insight/internal/insights"
	"pytest-insight/internal/models"
)

var reportFlags struct {
	sut   string
	days  int
	limit int
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Derived reports: summary, flakiest, slowest",
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Suite digest: counts, outcomes, health, worst offenders",
	RunE:  runReportSummary,
}

var reportFlakiestCmd = &cobra.Command{
	Use:   "flakiest",
	Short: "Unreliable tests ranked by flaky rate",
	RunE:  runReportFlakiest,
}

var reportSlowestCmd = &cobra.Command{
	Use:   "slowest",
	Short: "Slowest tests ranked by mean duration",
	RunE:  runReportSlowest,
}

func init() {
	for _, cmd := range []*cobra.Command{reportSummaryCmd, reportFlakiestCmd, reportSlowestCmd} {
		cmd.Flags().StringVar(&reportFlags.sut, "sut", "", "restrict the report to one system under test")
		cmd.Flags().IntVar(&reportFlags.days, "days", 0, "restrict the report to the last N days")
		cmd.Flags().IntVar(&reportFlags.limit, "limit", insights.DefaultLimit, "cap the number of tests shown")
		reportCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(reportCmd)
}

func reportScope(cmd *cobra.Command, app *appContext) ([]*models.TestSession, error) {
	q := app.api.Query()
	if reportFlags.sut != "" {
		q = q.ForSUT(reportFlags.sut)
	}
	if reportFlags.days > 0 {
		q = q.InLastDays(reportFlags.days)
	}
	sessions, err := q.Execute(cmd.Context())
	if err != nil {
		return nil, NewUsageError("report query failed", err)
	}
	return sessions, nil
}

func runReportSummary(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := reportScope(cmd, app)
	if err != nil {
		return err
	}

	report := app.api.Insights(sessions).SummaryReport()
	if app.out.JSON() {
		return app.out.Output(report)
	}

	if report.Status == analysis.StatusNoData {
		app.out.Line("no session data to report on")
		return nil
	}

	app.out.Line("Sessions: %d   Tests: %d   SUTs: %v", report.SessionCount, report.TestCount, report.SUTs)
	if report.Health.Score != nil {
		app.out.Line("Health:   %.1f / 100 (trend %s)", *report.Health.Score, report.TrendDirection)
	}
	app.out.Line("\nOutcomes:")
	for _, slice := range report.Distribution.Outcomes {
		app.out.Line("  %-8s %5d  (%.1f%%)", slice.Outcome, slice.Count, slice.Rate*100)
	}
	if len(report.Unreliable) > 0 {
		app.out.Line("\nMost unreliable:")
		for _, t := range report.Unreliable {
			app.out.Line("  %s (%.0f%% failing)", t.NodeID, t.FlakyRate*100)
		}
	}
	if len(report.Slowest) > 0 {
		app.out.Line("\nSlowest:")
		for _, t := range report.Slowest {
			app.out.Line("  %s (mean %.2fs)", t.NodeID, t.MeanSeconds)
		}
	}
	return nil
}

func runReportFlakiest(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := reportScope(cmd, app)
	if err != nil {
		return err
	}

	report := app.api.Insights(sessions).UnreliableTests(reportFlags.limit)
	if app.out.JSON() {
		return app.out.Output(report)
	}

	if report.Status == analysis.StatusNoData || len(report.Tests) == 0 {
		app.out.Line("no unreliable tests found")
		return nil
	}
	rows := make([][]string, 0, len(report.Tests))
	for _, t := range report.Tests {
		rows = append(rows, []string{
			t.NodeID,
			fmt.Sprintf("%d", t.TotalRuns),
			fmt.Sprintf("%d", t.PassCount),
			fmt.Sprintf("%d", t.FailCount),
			fmt.Sprintf("%.0f%%", t.FlakyRate*100),
		})
	}
	return app.out.Table([]string{"Node ID", "Runs", "Passes", "Failures", "Fail Rate"}, rows)
}

func runReportSlowest(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := reportScope(cmd, app)
	if err != nil {
		return err
	}

	report := app.api.Insights(sessions).SlowestTests(reportFlags.limit)
	if app.out.JSON() {
		return app.out.Output(report)
	}

	if report.Status == analysis.StatusNoData {
		app.out.Line("no test results to rank")
		return nil
	}
	rows := make([][]string, 0, len(report.Tests))
	for _, t := range report.Tests {
		rows = append(rows, []string{
			t.NodeID,
			fmt.Sprintf("%d", t.Runs),
			fmt.Sprintf("%.2fs", t.MeanSeconds),
			fmt.Sprintf("%.2fs", t.P50Seconds),
			fmt.Sprintf("%.2fs", t.P90Seconds),
		})
	}
	return app.out.Table([]string{"Node ID", "Runs", "Mean", "P50", "P90"}, rows)
}
