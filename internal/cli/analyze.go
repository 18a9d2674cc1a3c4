package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pytest-insight/internal/analysis"
	"pytest-insight/internal/models"
)

var analyzeFlags struct {
	sut    string
	days   int
	window int
	limit  int
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze stored sessions: health, flakiness, trends, outliers",
}

var analyzeHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Composite suite health score (0-100)",
	RunE:  runAnalyzeHealth,
}

var analyzeFlakyCmd = &cobra.Command{
	Use:   "flaky",
	Short: "Flakiness classification per test",
	RunE:  runAnalyzeFlaky,
}

var analyzeTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Duration trend over daily rolling averages",
	RunE:  runAnalyzeTrends,
}

var analyzeOutliersCmd = &cobra.Command{
	Use:   "outliers",
	Short: "IQR outliers over per-test mean durations",
	RunE:  runAnalyzeOutliers,
}

func init() {
	for _, cmd := range []*cobra.Command{analyzeHealthCmd, analyzeFlakyCmd, analyzeTrendsCmd, analyzeOutliersCmd} {
		cmd.Flags().StringVar(&analyzeFlags.sut, "sut", "", "restrict analysis to one system under test")
		cmd.Flags().IntVar(&analyzeFlags.days, "days", 0, "restrict analysis to the last N days")
		analyzeCmd.AddCommand(cmd)
	}
	analyzeTrendsCmd.Flags().IntVar(&analyzeFlags.window, "window", analysis.DefaultTrendWindow, "rolling window size in days")
	analyzeFlakyCmd.Flags().IntVar(&analyzeFlags.limit, "limit", 0, "cap the number of tests shown")
	rootCmd.AddCommand(analyzeCmd)
}

func analysisScope(cmd *cobra.Command, app *appContext) ([]*models.TestSession, error) {
	q := app.api.Query()
	if analyzeFlags.sut != "" {
		q = q.ForSUT(analyzeFlags.sut)
	}
	if analyzeFlags.days > 0 {
		q = q.InLastDays(analyzeFlags.days)
	}
	sessions, err := q.Execute(cmd.Context())
	if err != nil {
		return nil, NewUsageError("analysis query failed", err)
	}
	return sessions, nil
}

func runAnalyzeHealth(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := analysisScope(cmd, app)
	if err != nil {
		return err
	}

	report := app.api.Analyzer().HealthScore(sessions)
	if app.out.JSON() {
		return app.out.Output(report)
	}

	if report.Status == analysis.StatusNoData {
		app.out.Line("no session data to score")
		return nil
	}
	app.out.Line("Health score:  %.1f / 100", *report.Score)
	app.out.Line("Pass rate:     %.1f%%", report.PassRate*100)
	app.out.Line("Flaky rate:    %.1f%%", report.FlakyRate*100)
	app.out.Line("Trend:         %s", report.TrendDirection)
	app.out.Line("Sessions:      %d (%d test results)", report.SessionCount, report.TestCount)
	return nil
}

func runAnalyzeFlaky(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := analysisScope(cmd, app)
	if err != nil {
		return err
	}

	report := app.api.Analyzer().Flakiness(sessions)
	if app.out.JSON() {
		return app.out.Output(report)
	}

	if report.Status == analysis.StatusNoData {
		app.out.Line("no test results to classify")
		return nil
	}

	rows := make([][]string, 0, len(report.Tests))
	for _, t := range report.Tests {
		if !t.Flaky {
			continue
		}
		rows = append(rows, []string{
			t.NodeID,
			fmt.Sprintf("%d", t.PassCount),
			fmt.Sprintf("%d", t.FailCount),
			fmt.Sprintf("%.0f%%", t.FlakyRate*100),
		})
	}
	if analyzeFlags.limit > 0 && len(rows) > analyzeFlags.limit {
		rows = rows[:analyzeFlags.limit]
	}

	app.out.Line("%d flaky, %d unstable of %d tests", len(report.FlakyTests), len(report.UnstableTests), report.TotalTests)
	return app.out.Table([]string{"Node ID", "Passes", "Failures", "Flaky Rate"}, rows)
}

func runAnalyzeTrends(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := analysisScope(cmd, app)
	if err != nil {
		return err
	}

	report := app.api.Analyzer(analysis.WithTrendWindow(analyzeFlags.window)).DurationTrend(sessions)
	if app.out.JSON() {
		return app.out.Output(report)
	}

	app.out.Line("Trend: %s (window %d days, change %.1f%%)", report.Direction, report.WindowSize, report.ChangeRate*100)
	rows := make([][]string, 0, len(report.Daily))
	for i, p := range report.Daily {
		rows = append(rows, []string{
			p.Date,
			fmt.Sprintf("%.2fs", p.MeanSeconds),
			fmt.Sprintf("%.2fs", report.Rolling[i]),
			fmt.Sprintf("%d", p.TestCount),
		})
	}
	return app.out.Table([]string{"Date", "Mean Duration", "Rolling Mean", "Tests"}, rows)
}

func runAnalyzeOutliers(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := analysisScope(cmd, app)
	if err != nil {
		return err
	}

	report := app.api.Analyzer().DurationOutliers(sessions)
	if app.out.JSON() {
		return app.out.Output(report)
	}

	if len(report.Outliers) == 0 {
		app.out.Line("no duration outliers detected")
		return nil
	}
	app.out.Line("%d outlier(s) outside [%.2fs, %.2fs]", len(report.Outliers), report.LowerBound, report.UpperBound)
	rows := make([][]string, 0, len(report.Outliers))
	for _, o := range report.Outliers {
		rows = append(rows, []string{o.Label, fmt.Sprintf("%.2fs", o.Value)})
	}
	return app.out.Table([]string{"Node ID", "Mean Duration"}, rows)
}
