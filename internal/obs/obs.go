// Package obs provides structured, leveled logging shared by every
// component. It wraps a single charmbracelet/log logger with
// component-scoped children so every line carries a component field.
package obs

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var root = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// For returns a child logger tagged with the given component name, e.g.
// obs.For("radio"), obs.For("scanner").
func For(component string) *log.Logger {
	return root.With("component", component)
}

// SetLevel adjusts the verbosity of every logger returned by For.
func SetLevel(level log.Level) {
	root.SetLevel(level)
}

// SetOutput redirects all logging, primarily for tests.
func SetOutput(w io.Writer) {
	root.SetOutput(w)
}
