// Package mcode is the M-code dispatch table: a registry mapping an
// M-code number to a handler, the way core.CommandRegistry maps a
// Klipper command ID to a handler. Unlike CommandRegistry this is not
// a package-level singleton — each control.Controller builds and owns
// its own Table, since a shared global would leak state across
// independent machines in the same process (notably in tests).
package mcode

import "fmt"

// Machine is everything an M-code handler needs to act: the subset of
// control.Controller's behaviour the dispatch table reaches into.
// Handlers depend on this interface rather than control.Controller
// directly to keep mcode free of a control import cycle.
type Machine interface {
	EStop(assert bool)
	SetSpindle(on, reverse bool, rpm float64)
	SetMist(on bool)
	SetFlood(on bool)
	SetVacuum(on bool)
	SetMotorsEnabled(on bool)
	SetAuxBit(pin uint, on bool, immediate bool)
	SetMachinePower(on bool)
	TemperatureReport() string
	PositionReport() string
	FirmwareBanner() string
	Echo(message string)
	EndstopReport() string
	SetSpeedFactor(f float64) error
}

// Handler processes one M-code's argument words (already parsed by
// Words) plus the unparsed tail of the line, and returns a reply line
// to hand back to the caller (empty if none).
type Handler func(m Machine, words map[byte]float64, rest string) (string, error)

// Table is a registry of M-code handlers.
type Table struct {
	handlers map[int]Handler
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{handlers: make(map[int]Handler)}
}

// Register installs a handler for an M-code number, overwriting any
// previous registration for the same code.
func (t *Table) Register(code int, h Handler) {
	t.handlers[code] = h
}

// Dispatch parses rest into words and runs the handler registered for
// code against m. An unrecognised code is not an error here: the
// caller is expected to log the diagnostic and discard the block
// itself, matching the "log, discard remainder of block" disposition.
func (t *Table) Dispatch(m Machine, code int, rest string) (string, bool, error) {
	h, ok := t.handlers[code]
	if !ok {
		return "", false, nil
	}
	reply, err := h(m, Words(rest), rest)
	return reply, true, err
}

func requireWord(words map[byte]float64, letter byte) (float64, error) {
	v, ok := words[letter]
	if !ok {
		return 0, fmt.Errorf("mcode: missing required %c word", letter)
	}
	return v, nil
}
