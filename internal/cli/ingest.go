package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"pytest-insight/internal/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json>",
	Short: "Ingest a session file produced by the pytest plugin",
	Long: `Read a {"sessions": [...]} JSON file, validate every session and append
the batch to the selected profile's store. Validation aggregates all
violations; nothing is saved unless the whole batch is valid. Sessions
without an id are assigned one.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

type sessionsEnvelope struct {
	Sessions []*models.TestSession `json:"sessions"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return NewStorageError(fmt.Sprintf("could not read %s", args[0]), err)
	}

	var envelope sessionsEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return NewValidationError(fmt.Sprintf("could not parse %s", args[0]), err)
	}
	if len(envelope.Sessions) == 0 {
		return NewValidationError(fmt.Sprintf("%s contains no sessions", args[0]), nil)
	}

	var errs *multierror.Error
	for _, session := range envelope.Sessions {
		if session.SessionID == "" {
			session.SessionID = uuid.NewString()
		}
		if err := session.Validate(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return NewValidationError(fmt.Sprintf("%s failed validation, nothing was saved", args[0]), err)
	}

	if err := app.api.Storage().SaveMany(cmd.Context(), envelope.Sessions); err != nil {
		return NewStorageError("could not save the ingested sessions", err)
	}

	if app.out.JSON() {
		return app.out.Output(map[string]interface{}{"ingested": len(envelope.Sessions)})
	}
	app.out.Line("ingested %d session(s) from %s", len(envelope.Sessions), args[0])
	return nil
}
