// README: zerolog logger construction shared by the API binary and tests.
package infra

import (
	"os"

	"github.com/rs/zerolog"
)

func NewLogger(service string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
