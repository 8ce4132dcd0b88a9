// Package logger defines the logging interface used across the module and
// lets hosts plug in whichever logging library they already carry. Adapters
// for log/slog and zerolog live in subpackages.
package logger

// Logger accepts a message and alternating key/value pairs, in the log/slog
// argument convention.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
