package cli

import (
	"github.com/spf13/cobra"
)

var compareFlags struct {
	baseSUT   string
	targetSUT string
	days      int
	pattern   string
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two SUTs' test results",
	Long: `Compare the latest outcome of every test between a base SUT and a target
SUT: new failures, fixed tests, persistent failures, slower/faster tests and
the pass-rate delta.`,
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareFlags.baseSUT, "base-sut", "", "base system under test (required)")
	compareCmd.Flags().StringVar(&compareFlags.targetSUT, "target-sut", "", "target system under test (required)")
	compareCmd.Flags().IntVar(&compareFlags.days, "days", 0, "restrict both sides to the last N days")
	compareCmd.Flags().StringVar(&compareFlags.pattern, "pattern", "", "restrict both sides to nodeids containing this substring")
	_ = compareCmd.MarkFlagRequired("base-sut")
	_ = compareCmd.MarkFlagRequired("target-sut")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	comp := app.api.Compare().BetweenSUTs(compareFlags.baseSUT, compareFlags.targetSUT)
	if compareFlags.days > 0 {
		comp = comp.InLastDays(compareFlags.days)
	}
	if compareFlags.pattern != "" {
		comp = comp.WithTestPattern(compareFlags.pattern)
	}

	result, err := comp.Execute(cmd.Context())
	if err != nil {
		return NewUsageError("comparison failed", err)
	}

	if app.out.JSON() {
		return app.out.Output(result)
	}

	app.out.Line("Comparing %s (base, %d sessions) against %s (target, %d sessions)",
		compareFlags.baseSUT, result.BaseSessionCount, compareFlags.targetSUT, result.TargetSessionCount)
	app.out.Line("Pass rate: %.1f%% -> %.1f%% (%+.1f%%)",
		result.BasePassRate*100, result.TargetPassRate*100, result.PassRateDelta*100)

	sections := []struct {
		title string
		items []string
	}{
		{"New failures", result.NewFailures},
		{"Fixed tests", result.FixedTests},
		{"Persistent failures", result.PersistentFailures},
		{"Slower tests", result.SlowerTests},
		{"Faster tests", result.FasterTests},
		{"Missing in target", result.MissingTests},
		{"New in target", result.NewTests},
	}
	for _, section := range sections {
		if len(section.items) == 0 {
			continue
		}
		app.out.Line("\n%s (%d):", section.title, len(section.items))
		for _, nodeid := range section.items {
			app.out.Line("  %s", nodeid)
		}
	}
	if !result.HasChanges {
		app.out.Line("no differences detected")
	}
	return nil
}
