package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pytest-insight/internal/storage"
)

var profileCreateFlags struct {
	storageType string
	filePath    string
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage storage profiles",
	Long: `Profiles name independent session histories. Each profile points at its
own storage backend; commands operate on the active profile unless --profile
overrides it.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	RunE:  runProfileList,
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileCreate,
}

var profileSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Make a profile the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileSwitch,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile (its data file is left on disk)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show one profile (default: the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfileShow,
}

func init() {
	profileCreateCmd.Flags().StringVar(&profileCreateFlags.storageType, "storage-type", storage.TypeJSON, "storage backend: json or memory")
	profileCreateCmd.Flags().StringVar(&profileCreateFlags.filePath, "file-path", "", "session file location (json profiles; defaults under the registry directory)")

	profileCmd.AddCommand(profileListCmd, profileCreateCmd, profileSwitchCmd, profileDeleteCmd, profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileList(_ *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	profiles, err := app.profiles.List()
	if err != nil {
		return NewStorageError("could not read the profile registry", err)
	}
	active, err := app.profiles.Active()
	if err != nil {
		return NewStorageError("could not resolve the active profile", err)
	}

	if app.out.JSON() {
		return app.out.Output(map[string]interface{}{
			"active":   active.Name,
			"profiles": profiles,
		})
	}

	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		marker := ""
		if p.Name == active.Name {
			marker = "*"
		}
		rows = append(rows, []string{marker, p.Name, p.StorageType, p.FilePath, p.Created.Format("2006-01-02")})
	}
	return app.out.Table([]string{"", "Name", "Storage", "Path", "Created"}, rows)
}

func runProfileCreate(_ *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	p, err := app.profiles.Create(args[0], profileCreateFlags.storageType, profileCreateFlags.filePath)
	if err != nil {
		return NewProfileError(args[0], err)
	}

	if app.out.JSON() {
		return app.out.Output(p)
	}
	app.out.Line("created profile %q (%s)", p.Name, p.StorageType)
	return nil
}

func runProfileSwitch(_ *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	p, err := app.profiles.Switch(args[0])
	if err != nil {
		return NewProfileError(args[0], err)
	}

	if app.out.JSON() {
		return app.out.Output(p)
	}
	app.out.Line("switched active profile to %q", p.Name)
	return nil
}

func runProfileDelete(_ *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	if err := app.profiles.Delete(args[0]); err != nil {
		return NewProfileError(args[0], err)
	}
	app.out.Line("deleted profile %q", args[0])
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	var p *storage.Profile
	if len(args) == 1 {
		p, err = app.profiles.Get(args[0])
	} else {
		p, err = app.profiles.Active()
	}
	if err != nil {
		return NewProfileError("", err)
	}

	store, err := app.profiles.StorageFor(p.Name)
	if err != nil {
		return NewProfileError(p.Name, err)
	}
	sessions, err := store.LoadAll(cmd.Context())
	if err != nil {
		return NewStorageError(fmt.Sprintf("could not load sessions for profile %q", p.Name), err)
	}

	if app.out.JSON() {
		return app.out.Output(map[string]interface{}{
			"profile":       p,
			"session_count": len(sessions),
		})
	}
	app.out.Line("Name:     %s", p.Name)
	app.out.Line("Storage:  %s", p.StorageType)
	if p.FilePath != "" {
		app.out.Line("Path:     %s", p.FilePath)
	}
	app.out.Line("Created:  %s", p.Created.Format("2006-01-02 15:04:05"))
	app.out.Line("Sessions: %d", len(sessions))
	return nil
}
