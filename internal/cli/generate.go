package cli

import (
	"github.com/spf13/cobra"

	"pytest-insight/internal/generator"
)

var generateFlags struct {
	days           int
	sessionsPerDay int
	sut            string
	seed           int64
	categories     []string
	passRate       float64
	flakyRate      float64
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate practice data into the selected profile",
	Long: `Generate realistic practice sessions: SUT variations, categorized tests,
flaky tests with rerun chains and paired base/target session ids so compare
works out of the box. A fixed --seed makes the data reproducible.`,
	RunE: runGenerate,
}

func init() {
	defaults := generator.DefaultOptions()
	generateCmd.Flags().IntVar(&generateFlags.days, "days", defaults.Days, "days of history to generate")
	generateCmd.Flags().IntVar(&generateFlags.sessionsPerDay, "sessions-per-day", defaults.SessionsPerDay, "session slots per day")
	generateCmd.Flags().StringVar(&generateFlags.sut, "sut", "", "restrict generation to SUTs containing this substring")
	generateCmd.Flags().Int64Var(&generateFlags.seed, "seed", 0, "random seed (0 = time-based)")
	generateCmd.Flags().StringSliceVar(&generateFlags.categories, "categories", nil, "test categories to include (api, integration, performance, flaky, data)")
	generateCmd.Flags().Float64Var(&generateFlags.passRate, "pass-rate", defaults.PassRate, "probability a non-flaky test passes")
	generateCmd.Flags().Float64Var(&generateFlags.flakyRate, "flaky-rate", defaults.FlakyRate, "base probability of rerun chains for flaky tests")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	opts := generator.DefaultOptions()
	opts.Days = generateFlags.days
	opts.SessionsPerDay = generateFlags.sessionsPerDay
	opts.SUTFilter = generateFlags.sut
	opts.Categories = generateFlags.categories
	opts.PassRate = generateFlags.passRate
	opts.FlakyRate = generateFlags.flakyRate
	if generateFlags.seed != 0 {
		opts.Seed = generateFlags.seed
	}

	gen, err := generator.New(opts, app.log)
	if err != nil {
		return NewUsageError("invalid generator options", err)
	}

	sessions := gen.Generate()
	if err := app.api.Storage().SaveMany(cmd.Context(), sessions); err != nil {
		return NewStorageError("could not save the generated sessions", err)
	}

	if app.out.JSON() {
		return app.out.Output(map[string]interface{}{"generated": len(sessions)})
	}
	app.out.Line("generated %d session(s) over %d day(s)", len(sessions), opts.Days)
	return nil
}
