package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const unknownValue = "unknown"

// Build-time values injected via ldflags, e.g.
// go build -ldflags "-X 'pytest-insight/internal/cli.Version=v1.0.0'"
var (
	Version   = "0.0.1"
	GitCommit = unknownValue
	BuildTime = unknownValue
)

type VersionInfo struct {
	Version      string `json:"version"`
	GitCommit    string `json:"git_commit"`
	BuildTime    string `json:"build_time"`
	GoVersion    string `json:"go_version"`
	Platform     string `json:"platform"`
	Architecture string `json:"architecture"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(_ *cobra.Command, _ []string) error {
	info := VersionInfo{
		Version:      Version,
		GitCommit:    GitCommit,
		BuildTime:    BuildTime,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
	}

	if flagJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version information: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("pytest-insight %s\n", info.Version)
	if info.GitCommit != unknownValue {
		fmt.Printf("  commit:     %s\n", info.GitCommit)
	}
	if info.BuildTime != unknownValue {
		fmt.Printf("  built:      %s\n", info.BuildTime)
	}
	fmt.Printf("  go version: %s\n", info.GoVersion)
	fmt.Printf("  platform:   %s/%s\n", info.Platform, info.Architecture)
	return nil
}
