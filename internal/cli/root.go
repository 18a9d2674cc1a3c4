package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pytest-insight/internal/config"
	"pytest-insight/internal/insight"
	"pytest-insight/internal/logging"
	"pytest-insight/internal/storage"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pytest-insight",
	Short: "pytest-insight - query, compare and analyze pytest execution history",
	Long: `pytest-insight ingests pytest session history, stores it in profile-addressed
stores and answers questions about it: which tests are flaky, how durations
trend over time, how two SUTs or time windows differ, and how healthy a suite
is overall.

Features:
- Two-level session/test filtering with a fluent query surface
- Flakiness, trend, outlier and health-score analysis
- Base/target comparison between SUTs or time windows
- Storage profiles for independent session histories
- REST API server for dashboards and automation`,
	// Don't show usage when there's an error
	SilenceUsage: true,
	// Don't show errors (we'll handle them ourselves)
	SilenceErrors: true,
}

var (
	flagProfile  string
	flagConfig   string
	flagLogLevel string
	flagJSON     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "storage profile to operate on (default: active profile)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log verbosity (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON output")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. The caller owns process exit.
func Execute() error {
	return rootCmd.Execute()
}

// appContext bundles the explicitly constructed collaborators every command
// needs. Nothing here is cached at package level; each invocation builds its
// own context from flags and config.
type appContext struct {
	cfg      *config.Config
	log      *logrus.Logger
	profiles *storage.ProfileManager
	api      *insight.API
	out      *OutputManager
}

func newAppContext() (*appContext, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, NewConfigError("could not load configuration", err)
	}

	level := cfg.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logger, err := logging.New(os.Stderr, level)
	if err != nil {
		return nil, NewConfigError("could not configure logging", err)
	}

	profilesPath, err := cfg.ResolveProfilesPath()
	if err != nil {
		return nil, NewStorageError("could not locate the profile registry", err)
	}
	profiles := storage.NewProfileManager(profilesPath, logger)

	profileName := cfg.Storage.Profile
	if flagProfile != "" {
		profileName = flagProfile
	}
	api, err := insight.FromProfile(profiles, profileName, logger)
	if err != nil {
		return nil, NewProfileError(profileName, err)
	}

	return &appContext{
		cfg:      cfg,
		log:      logger,
		profiles: profiles,
		api:      api,
		out:      NewOutputManager(flagJSON),
	}, nil
}
