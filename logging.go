package mockproxy

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the console logger used for connection and proxy
// errors. verbose lowers the level to debug; otherwise only warnings and
// above are printed, keeping a quiet default for test runs.
func NewLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
