package cli

import (
	"fmt"
	"strings"
)

type ErrorType int

const (
	ErrorTypeConfig ErrorType = iota
	ErrorTypeStorage
	ErrorTypeProfile
	ErrorTypeUsage
	ErrorTypeServer
	ErrorTypeValidation
	ErrorTypeGeneral
)

// CLIError carries a classified message plus actionable follow-ups, so a
// failed command tells the user what to try next instead of just what broke.
type CLIError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
	RelatedCmds []string
}

func (e *CLIError) Error() string {
	if e == nil {
		return "❌ Error: unknown error (nil CLIError)"
	}

	var parts []string

	switch e.Type {
	case ErrorTypeConfig:
		parts = append(parts, "⚙️  Configuration Error:")
	case ErrorTypeStorage:
		parts = append(parts, "💾 Storage Error:")
	case ErrorTypeProfile:
		parts = append(parts, "📇 Profile Error:")
	case ErrorTypeUsage:
		parts = append(parts, "❓ Usage Error:")
	case ErrorTypeServer:
		parts = append(parts, "🖥️  Server Error:")
	case ErrorTypeValidation:
		parts = append(parts, "✅ Validation Error:")
	default:
		parts = append(parts, "❌ Error:")
	}

	message := e.Message
	if message == "" {
		message = "unknown error"
	}
	parts = append(parts, message)

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("\n   Cause: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		parts = append(parts, "\n\n💡 Try these solutions:")
		for i, suggestion := range e.Suggestions {
			parts = append(parts, fmt.Sprintf("   %d. %s", i+1, suggestion))
		}
	}

	if len(e.RelatedCmds) > 0 {
		parts = append(parts, "\n\n🔗 Related commands:")
		for _, cmd := range e.RelatedCmds {
			parts = append(parts, fmt.Sprintf("   pytest-insight %s", cmd))
		}
	}

	return strings.Join(parts, " ")
}

func (e *CLIError) Unwrap() error { return e.Cause }

func NewConfigError(message string, cause error) *CLIError {
	return &CLIError{
		Type:    ErrorTypeConfig,
		Message: message,
		Cause:   cause,
		Suggestions: []string{
			"Check the config file with: cat pytest-insight.yaml",
			"Pass an explicit config path with: --config path/to/config.yaml",
			"Remove the config file to fall back to defaults",
		},
		RelatedCmds: []string{"version"},
	}
}

func NewStorageError(message string, cause error) *CLIError {
	return &CLIError{
		Type:    ErrorTypeStorage,
		Message: message,
		Cause:   cause,
		Suggestions: []string{
			"Check that ~/.pytest_insight exists and is writable",
			"List available profiles with: pytest-insight profile list",
			"Point at a different registry via storage.profiles_path in the config",
		},
		RelatedCmds: []string{"profile list", "profile create"},
	}
}

func NewProfileError(name string, cause error) *CLIError {
	message := "could not resolve storage profile"
	if name != "" {
		message = fmt.Sprintf("could not resolve storage profile %q", name)
	}
	return &CLIError{
		Type:    ErrorTypeProfile,
		Message: message,
		Cause:   cause,
		Suggestions: []string{
			"List available profiles with: pytest-insight profile list",
			"Create the profile with: pytest-insight profile create <name>",
			"Switch the active profile with: pytest-insight profile switch <name>",
		},
		RelatedCmds: []string{"profile list", "profile create", "profile switch"},
	}
}

func NewUsageError(message string, cause error) *CLIError {
	return &CLIError{
		Type:    ErrorTypeUsage,
		Message: message,
		Cause:   cause,
		Suggestions: []string{
			"Check the flag values passed to the command",
			"See command help with: pytest-insight <command> --help",
		},
	}
}

func NewValidationError(message string, cause error) *CLIError {
	return &CLIError{
		Type:    ErrorTypeValidation,
		Message: message,
		Cause:   cause,
		Suggestions: []string{
			"Check the input file against the expected session format",
			"Generate a valid example with: pytest-insight generate --days 1",
		},
		RelatedCmds: []string{"generate"},
	}
}

func NewServerError(message string, cause error) *CLIError {
	return &CLIError{
		Type:    ErrorTypeServer,
		Message: message,
		Cause:   cause,
		Suggestions: []string{
			"Check whether the port is already in use",
			"Pick a different port with: pytest-insight serve --port <port>",
		},
		RelatedCmds: []string{"serve"},
	}
}
