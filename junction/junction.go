// Package junction computes the allowable hand-off speed between two
// consecutive Targets: the Junction Solver.
//
// Ported from GCodeMachineControl::Impl::determine_joining_speed in
// BeagleG's gcode-machine-control.cc (github.com/hzeller/beagleg). The
// cross-axis consistency check keeps the same tight ~1e-5 relative
// tolerance as BeagleG; see DESIGN.md for why it is kept rather than
// relaxed.
package junction

import (
	"math"

	"stepcore/axis"
	"stepcore/target"
)

// tolerance bounds how far a later axis's computed goal speed may
// disagree with the running minimum before the junction is treated as
// inconsistent and the boundary speed collapses to zero.
const tolerance = 1e-5

// DetermineJoiningSpeed returns the non-negative step frequency that from
// may carry into to without exceeding to's axis speed limits or reversing
// any axis direction. The corner angle is the absolute difference between
// from's and to's own headings; a halt sentinel's angle is always its
// predecessor's heading plus 180, so a move handing off into a halt is
// never mistaken for a gentle corner. A gentle corner keeps from.Speed
// unless some axis reverses direction, which always yields 0.
func DetermineJoiningSpeed(from, to *target.Target, thresholdAngleDeg float64) float64 {
	cornerAngleDeg := math.Abs(from.AngleDeg - to.AngleDeg)
	if cornerAngleDeg < thresholdAngleDeg {
		for k := axis.Axis(0); k < axis.Count; k++ {
			fd, td := from.DeltaSteps[k], to.DeltaSteps[k]
			if fd != 0 && td != 0 && (fd < 0) != (td < 0) {
				return 0
			}
		}
		return from.Speed
	}

	fromDefiningSpeed := from.Speed
	isFirst := true

	for k := axis.Axis(0); k < axis.Count; k++ {
		fd := from.DeltaSteps[k]
		td := to.DeltaSteps[k]

		if fd == 0 && td == 0 {
			continue
		}
		if fd == 0 || td == 0 {
			return 0
		}
		if (fd < 0) != (td < 0) {
			return 0
		}

		toDefiningDelta := to.DeltaSteps[to.DefiningAxis]
		sK := to.Speed * float64(td) / float64(toDefiningDelta)

		fromDefiningDelta := from.DeltaSteps[from.DefiningAxis]
		goal := sK * float64(fromDefiningDelta) / float64(fd)
		if goal < 0 {
			return 0
		}

		if isFirst || withinTolerance(goal, fromDefiningSpeed) {
			if goal < fromDefiningSpeed {
				fromDefiningSpeed = goal
			}
			isFirst = false
		} else {
			return 0
		}
	}

	return fromDefiningSpeed
}

// withinTolerance reports whether goal lies within the ~1e-5 relative
// band around the running minimum oldVal, mirroring BeagleG's
// within_acceptable_range.
func withinTolerance(goal, oldVal float64) bool {
	maxDiff := tolerance * oldVal
	if goal < oldVal-maxDiff {
		return false
	}
	if goal > oldVal+maxDiff {
		return false
	}
	return true
}
