package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pytest-insight/internal/models"
	"pytest-insight/internal/query"
)

var queryFlags struct {
	sut          string
	days         int
	outcome      string
	pattern      string
	sessionTag   string
	sessionGlob  string
	withReruns   bool
	withWarnings bool
	minDuration  float64
	maxDuration  float64
	limit        int
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query stored test sessions",
	Long: `Query stored sessions with session-level filters (SUT, time window, tags,
session-id glob) and test-level filters (outcome, duration, nodeid pattern).
Test-level filters narrow visibility into sessions without discarding session
identity: a surviving session keeps its id, SUT and timestamps and carries
only the matching test results.`,
}

var querySessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions matching the filters",
	RunE:  runQuerySessions,
}

var queryTestsCmd = &cobra.Command{
	Use:   "tests",
	Short: "List individual test results matching the filters",
	RunE:  runQueryTests,
}

func init() {
	for _, cmd := range []*cobra.Command{querySessionsCmd, queryTestsCmd} {
		cmd.Flags().StringVar(&queryFlags.sut, "sut", "", "filter by system under test")
		cmd.Flags().IntVar(&queryFlags.days, "days", 0, "only sessions started in the last N days")
		cmd.Flags().StringVar(&queryFlags.outcome, "outcome", "", "filter tests by outcome (passed, failed, ...)")
		cmd.Flags().StringVar(&queryFlags.pattern, "pattern", "", "filter tests by nodeid substring")
		cmd.Flags().StringVar(&queryFlags.sessionTag, "session-tag", "", "filter by session tag, as key=value")
		cmd.Flags().StringVar(&queryFlags.sessionGlob, "session-id-glob", "", "filter by session id glob, e.g. 'base-*'")
		cmd.Flags().BoolVar(&queryFlags.withReruns, "with-reruns", false, "only sessions containing rerun groups")
		cmd.Flags().BoolVar(&queryFlags.withWarnings, "with-warnings", false, "only tests that raised warnings")
		cmd.Flags().Float64Var(&queryFlags.minDuration, "min-duration", 0, "minimum test duration in seconds")
		cmd.Flags().Float64Var(&queryFlags.maxDuration, "max-duration", -1, "maximum test duration in seconds")
		cmd.Flags().IntVar(&queryFlags.limit, "limit", 0, "cap the number of rows shown")
		queryCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(queryCmd)
}

// buildQueryFromFlags translates the shared query flags into a builder.
func buildQueryFromFlags(app *appContext) (*query.Query, error) {
	q := app.api.Query()
	if queryFlags.sut != "" {
		q = q.ForSUT(queryFlags.sut)
	}
	if queryFlags.days > 0 {
		q = q.InLastDays(queryFlags.days)
	}
	if queryFlags.sessionGlob != "" {
		q = q.WithSessionIDPattern(queryFlags.sessionGlob)
	}
	if queryFlags.sessionTag != "" {
		key, value, found := strings.Cut(queryFlags.sessionTag, "=")
		if !found {
			return nil, NewUsageError(fmt.Sprintf("--session-tag must be key=value, got %q", queryFlags.sessionTag), nil)
		}
		q = q.WithSessionTag(key, value)
	}
	if queryFlags.withReruns {
		q = q.WithReruns(true)
	}

	needsTestScope := queryFlags.outcome != "" || queryFlags.pattern != "" ||
		queryFlags.withWarnings || queryFlags.minDuration > 0 || queryFlags.maxDuration >= 0
	if !needsTestScope {
		return q, nil
	}

	tf := q.FilterByTest()
	if queryFlags.outcome != "" {
		outcome, err := models.ParseOutcome(queryFlags.outcome)
		if err != nil {
			return nil, NewUsageError("invalid --outcome value", err)
		}
		tf = tf.WithOutcome(outcome)
	}
	if queryFlags.pattern != "" {
		tf = tf.WithNodeIDContaining(queryFlags.pattern)
	}
	if queryFlags.withWarnings {
		tf = tf.WithWarning()
	}
	if queryFlags.minDuration > 0 || queryFlags.maxDuration >= 0 {
		max := queryFlags.maxDuration
		if max < 0 {
			max = 24 * 3600
		}
		tf = tf.WithDurationBetween(queryFlags.minDuration, max)
	}
	return tf.Apply(), nil
}

func executeQueryFlags(cmd *cobra.Command, app *appContext) ([]*models.TestSession, error) {
	q, err := buildQueryFromFlags(app)
	if err != nil {
		return nil, err
	}
	sessions, err := q.Execute(cmd.Context())
	if err != nil {
		return nil, NewUsageError("query failed", err)
	}
	return sessions, nil
}

func runQuerySessions(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := executeQueryFlags(cmd, app)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		failures := 0
		for _, r := range s.TestResults {
			if r.Outcome.IsFailure() {
				failures++
			}
		}
		rows = append(rows, []string{
			s.SessionID,
			s.SUTName,
			s.SessionStartTime.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", len(s.TestResults)),
			fmt.Sprintf("%d", failures),
			fmt.Sprintf("%.1fs", s.SessionDuration.Seconds()),
		})
	}
	if queryFlags.limit > 0 && len(rows) > queryFlags.limit {
		rows = rows[:queryFlags.limit]
	}

	app.out.Line("%d session(s) matched", len(sessions))
	return app.out.Table([]string{"Session ID", "SUT", "Started", "Tests", "Failures", "Duration"}, rows)
}

func runQueryTests(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	sessions, err := executeQueryFlags(cmd, app)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, s := range sessions {
		for _, r := range s.TestResults {
			rows = append(rows, []string{
				r.NodeID,
				string(r.Outcome),
				s.SUTName,
				r.StartTime.Format("2006-01-02 15:04:05"),
				fmt.Sprintf("%.2fs", r.Duration.Seconds()),
				s.SessionID,
			})
		}
	}
	if queryFlags.limit > 0 && len(rows) > queryFlags.limit {
		rows = rows[:queryFlags.limit]
	}

	app.out.Line("%d test result(s) matched", len(rows))
	return app.out.Table([]string{"Node ID", "Outcome", "SUT", "Started", "Duration", "Session"}, rows)
}
