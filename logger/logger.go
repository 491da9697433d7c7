// Package logger builds the per-subsystem loggers the node and miner
// processes use, following the teacher's slog + logrotate pairing: one
// rotating file writer shared by several tagged subsystem loggers.
package logger

import (
	"io"
	"os"

	"github.com/decred/slog"
	"github.com/jrick/logrotate"
)

// Subsystem tags, mirroring the teacher's convention of short uppercase
// subsystem codes in log lines.
const (
	SubsystemNode  = "NODE"
	SubsystemMiner = "MINR"
	SubsystemChain = "CHAN"
	SubsystemStore = "STOR"
)

// output is the single writer every subsystem logger writes through, so
// InitRotating can redirect loggers that were created before it ran.
type output struct{ w io.Writer }

func (o *output) Write(p []byte) (int, error) { return o.w.Write(p) }

var (
	out     = &output{w: os.Stdout}
	backend = slog.NewBackend(out)
)

// New returns a Logger tagged with subsystem, logging to stdout only. Use
// InitRotating to additionally fan out to a rotating log file.
func New(subsystem string) slog.Logger {
	l := backend.Logger(subsystem)
	l.SetLevel(slog.LevelInfo)
	return l
}

// InitRotating redirects all loggers, including ones already created, to
// also write to a rotating file at logPath, keeping maxRolls old rolls
// around.
func InitRotating(logPath string, maxRolls int) error {
	rotator, err := logrotate.NewRotator(logPath, maxRolls)
	if err != nil {
		return err
	}
	out.w = io.MultiWriter(os.Stdout, rotator)
	return nil
}
