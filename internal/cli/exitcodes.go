package cli

import (
	"errors"

	"github.com/mrlokans/kobo-notion-sync/internal/config"
	"github.com/mrlokans/kobo-notion-sync/internal/secrets"
)

// Exit codes reported by the binary.
const (
	ExitOK          = 0
	ExitSyncFailure = 1 // lock contention, API errors, sync failures
	ExitConfig      = 2 // missing or invalid configuration/credentials
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) ||
		errors.Is(err, config.ErrNotFound) ||
		errors.Is(err, secrets.ErrNoToken) {
		return ExitConfig
	}
	return ExitSyncFailure
}
