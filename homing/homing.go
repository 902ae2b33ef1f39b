// Package homing drives axes toward their endstops using small
// bespoke segments that bypass the planning buffer's lookahead
// entirely, and implements the homing state machine.
//
// Ported from the homing/probing walk in
// GCodeMachineControl::Impl::home_axis (and the surrounding
// GCodeMachineControlImpl state enum) in BeagleG's
// gcode-machine-control.cc (github.com/hzeller/beagleg). Homing segments
// are built and enqueued directly here rather than through
// target/segment: homing moves are never subject to lookahead blending.
package homing

import (
	"fmt"
	"math"

	"stepcore/axis"
	"stepcore/config"
	"stepcore/gpio"
	"stepcore/motorfanout"
	"stepcore/planbuf"
)

// State is the homing confidence the machine currently has.
type State int

const (
	NeverHomed State = iota
	HomedButMotorsUnpowered
	Homed
)

func (s State) String() string {
	switch s {
	case NeverHomed:
		return "NEVER_HOMED"
	case HomedButMotorsUnpowered:
		return "HOMED_BUT_MOTORS_UNPOWERED"
	case Homed:
		return "HOMED"
	default:
		return "UNKNOWN"
	}
}

// Bitmap selects a set of axes for GoHome, one bit per axis.Axis index.
type Bitmap uint32

// With returns b with a added to the set.
func (b Bitmap) With(a axis.Axis) Bitmap { return b | 1<<uint(a) }

// Has reports whether a is in the set.
func (b Bitmap) Has(a axis.Axis) bool { return b&(1<<uint(a)) != 0 }

// backoffFraction is the step rate used during the back-off phase,
// expressed as a fraction of the axis's max speed. The source shows no
// explicit back-off speed; a slow fixed fraction keeps the back-off
// segments from themselves needing a ramp.
const backoffFraction = 0.1

// Homer owns the homing/probing state machine and the endstop hardware
// it drives through.
type Homer struct {
	Cfg    *config.Config
	FanOut *motorfanout.FanOut
	Queue  motorfanout.Queue
	GPIO   gpio.Driver
	Buf    *planbuf.Buffer

	// BringToHalt flushes whatever the planning buffer and Segmenter
	// currently hold to a dead stop before homing's own micro-segments
	// take over the queue. Supplied by the caller that owns the
	// Builder/Buffer/Segmenter triple (control.Controller).
	BringToHalt func()

	state State
}

// NewHomer returns a Homer in the NEVER_HOMED state.
func NewHomer(cfg *config.Config, fo *motorfanout.FanOut, q motorfanout.Queue, gp gpio.Driver, buf *planbuf.Buffer, bringToHalt func()) *Homer {
	return &Homer{Cfg: cfg, FanOut: fo, Queue: q, GPIO: gp, Buf: buf, BringToHalt: bringToHalt, state: NeverHomed}
}

// State reports the current homing confidence.
func (h *Homer) State() State { return h.state }

// MotorsDisabled downgrades HOMED to HOMED_BUT_MOTORS_UNPOWERED; a noop
// from any other state.
func (h *Homer) MotorsDisabled() {
	if h.state == Homed {
		h.state = HomedButMotorsUnpowered
	}
}

// endstopPin maps a physical endstop connector number (1..NumEndstops)
// to a GPIO pin. Endstop wiring assignment is outside this module's
// scope (GPIO drivers are external collaborators); this 1:1 convention
// just needs to be consistent between here and whatever gpio.Driver the
// caller supplies.
func endstopPin(number int) gpio.Pin {
	return gpio.Pin(number)
}

func (h *Homer) triggered(e config.EndstopConfig) bool {
	return h.GPIO.Read(endstopPin(e.EndstopNumber)) == e.TriggerValue
}

// homeEndstop returns the endstop flagged for homing on a, and the
// direction of approach: -1 for a min-endstop, +1 for a max-endstop.
// ok is false if neither side is flagged for homing.
func (h *Homer) homeEndstop(a axis.Axis) (es config.EndstopConfig, dir int64, ok bool) {
	if minE := h.Cfg.MinEndstop[a]; minE.Mapped() && minE.HomingUse {
		return minE, -1, true
	}
	if maxE := h.Cfg.MaxEndstop[a]; maxE.Mapped() && maxE.HomingUse {
		return maxE, 1, true
	}
	return config.EndstopConfig{}, 0, false
}

// probeEndstop returns the non-homing endstop on a (the one G38 probing
// uses), and its direction of approach.
func (h *Homer) probeEndstop(a axis.Axis) (es config.EndstopConfig, dir int64, ok bool) {
	if minE := h.Cfg.MinEndstop[a]; minE.Mapped() && !minE.HomingUse {
		return minE, -1, true
	}
	if maxE := h.Cfg.MaxEndstop[a]; maxE.Mapped() && !maxE.HomingUse {
		return maxE, 1, true
	}
	return config.EndstopConfig{}, 0, false
}

// emit builds one micro-segment of deltaSteps along a (v0 to v1) and
// pushes it straight onto the motor queue, draining after so the
// endstop read that follows sees settled hardware.
func (h *Homer) emit(a axis.Axis, deltaSteps int64, v0, v1 float64) {
	var byAxis [axis.Count]int64
	byAxis[a] = deltaSteps
	mm := motorfanout.MotorMovement{
		Steps: h.FanOut.Assign(byAxis),
		V0:    v0,
		V1:    v1,
	}
	h.Queue.Enqueue(mm)
	h.Queue.Drain()
}

// approach drives a toward es until it triggers, ramping the step rate
// up to peakSpeed over 0.5mm segments, and returns the signed total
// step count travelled.
func (h *Homer) approach(a axis.Axis, es config.EndstopConfig, dir int64, peakSpeed float64) int64 {
	stepsPerMM := math.Abs(h.Cfg.Axes[a].StepsPerMM)
	sApp := int64(math.Round(0.5 * stepsPerMM))
	if sApp == 0 {
		sApp = 1
	}
	accel := h.Cfg.MaxAxisAccel[a]

	var traveled int64
	v0 := 0.0
	for !h.triggered(es) {
		v1 := math.Min(math.Sqrt(v0*v0+2*accel*float64(sApp)), peakSpeed)
		h.emit(a, dir*sApp, v0, v1)
		traveled += dir * sApp
		v0 = v1
	}
	return traveled
}

// backOff reverses away from es at a slow constant rate until it
// de-asserts, and returns the signed total step count travelled.
func (h *Homer) backOff(a axis.Axis, es config.EndstopConfig, dir int64) int64 {
	stepsPerMM := math.Abs(h.Cfg.Axes[a].StepsPerMM)
	sBack := int64(math.Round(0.1 * stepsPerMM))
	if sBack == 0 {
		sBack = 1
	}
	speed := backoffFraction * h.Cfg.MaxAxisSpeed[a]

	var traveled int64
	for h.triggered(es) {
		h.emit(a, -dir*sBack, speed, speed)
		traveled += -dir * sBack
	}
	return traveled
}

// HomeAxis homes a single axis: flush, approach its home endstop,
// back off, and snap its absolute position to the known home value. A
// no-op, not an error, if neither endstop on a is flagged for homing.
func (h *Homer) HomeAxis(a axis.Axis) {
	h.BringToHalt()

	es, dir, ok := h.homeEndstop(a)
	if !ok {
		return
	}

	h.approach(a, es, dir, h.Cfg.MaxAxisSpeed[a])
	h.backOff(a, es, dir)

	homePosMM := 0.0
	if dir > 0 {
		homePosMM = h.Cfg.Axes[a].MoveRangeMM
	}
	h.Buf.Back().PositionSteps[a] = int64(math.Round(homePosMM * math.Abs(h.Cfg.Axes[a].StepsPerMM)))
}

// GoHome homes every axis in bitmap, walking HomeOrder first (so the
// configured order is honoured) and then any remaining requested axes
// in ascending axis order. Sets state to HOMED on completion.
func (h *Homer) GoHome(bitmap Bitmap) {
	done := [axis.Count]bool{}
	for i := 0; i < len(h.Cfg.HomeOrder); i++ {
		a, ok := axis.FromLetter(h.Cfg.HomeOrder[i])
		if !ok || !bitmap.Has(a) || done[a] {
			continue
		}
		h.HomeAxis(a)
		done[a] = true
	}
	for a := axis.Axis(0); a < axis.Count; a++ {
		if bitmap.Has(a) && !done[a] {
			h.HomeAxis(a)
		}
	}
	h.state = Homed
}

// ProbeAxis drives a toward its probe endstop (the one not flagged for
// homing) at feedMMPerSec, with no back-off, and returns the resulting
// absolute position in millimetres. An error if a has no probe endstop
// configured.
func (h *Homer) ProbeAxis(feedMMPerSec float64, a axis.Axis) (float64, error) {
	h.BringToHalt()

	es, dir, ok := h.probeEndstop(a)
	if !ok {
		return 0, fmt.Errorf("homing: axis %c has no probe endstop configured", axis.Letter(a))
	}

	stepsPerMM := math.Abs(h.Cfg.Axes[a].StepsPerMM)
	peak := math.Min(feedMMPerSec*stepsPerMM, h.Cfg.MaxAxisSpeed[a])
	traveled := h.approach(a, es, dir, peak)

	h.Buf.Back().PositionSteps[a] += traveled
	return float64(h.Buf.Back().PositionSteps[a]) / stepsPerMM, nil
}
