// Package obs provides structured logging for the engine's subsystems.
package obs

import (
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

func init() {
	// Marshal github.com/pkg/errors stack traces when present; attach one
	// otherwise so every logged error carries a frame list.
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); ok {
			return err
		}
		return pkgerrors.WithStack(err)
	}
}

// New returns a logger scoped to a named subsystem, e.g. "join", "upsert",
// "render", "trace". Call sites pass errors via .Err(err).Stack() to render
// pkg/errors stack traces.
func New(subsystem string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().
		Str("subsystem", subsystem).
		Timestamp().
		Logger()
}
