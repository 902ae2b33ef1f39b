// Package diag is the core's one diagnostic outlet: a plain Sink callback
// the caller installs, mirroring core.DebugWriter, rather than a
// formatting or leveling policy of its own.
package diag

import "fmt"

// Sink receives a single diagnostic line. The zero Sink is nil; callers
// not interested in diagnostics leave it unset.
type Sink func(string)

// Writer wraps an installable Sink plus an enable flag, the same shape
// core.SetDebugWriter/SetDebugEnabled give the firmware side.
type Writer struct {
	sink    Sink
	enabled bool
}

// NewWriter returns a Writer with diagnostics enabled and no sink
// installed; calls to Printf are silently dropped until Set is called.
func NewWriter() *Writer {
	return &Writer{enabled: true}
}

// Set installs the sink that receives formatted diagnostic lines.
func (w *Writer) Set(sink Sink) {
	w.sink = sink
}

// SetEnabled toggles whether Printf reaches the sink at all.
func (w *Writer) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// Printf formats and writes one diagnostic line, following fmt.Sprintf
// conventions. A nil sink or disabled Writer drops the line.
func (w *Writer) Printf(format string, args ...any) {
	if !w.enabled || w.sink == nil {
		return
	}
	w.sink(fmt.Sprintf(format, args...))
}
