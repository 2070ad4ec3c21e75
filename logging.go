package precognition

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewConsoleLogger returns a human readable logger tagged with app, ready
// to be passed to FormOpts, ServerOpts or HTTPTransportOpts. A nil writer
// means stderr.
func NewConsoleLogger(app string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("app", app).Logger()
}
