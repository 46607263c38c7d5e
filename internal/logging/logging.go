// Package logging builds the zap logger shared by every command.
package logging

import (
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conn-castle/bundlebuilder/internal/terminal"
)

var newRunID = uuid.NewString

// New returns a console logger writing to w, tagged with a fresh run id.
// Info is the minimum level unless verbose is set. Levels are colored when w is a terminal.
func New(w io.Writer, verbose bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if terminal.IsTerminal(w) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core).With(zap.String("run", newRunID()))
}
