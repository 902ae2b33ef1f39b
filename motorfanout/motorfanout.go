// Package motorfanout maps per-axis step counts to per-driver signed step
// counts through the configured mirror map and direction flips, and
// defines the outbound interface to the external step-pulse generator.
//
// Ported from GCodeMachineControl::Impl::assign_steps_to_motors in
// BeagleG's gcode-machine-control.cc (github.com/hzeller/beagleg), treating
// the downstream hardware as a narrow interface rather than a concrete type.
package motorfanout

import (
	"stepcore/auxout"
	"stepcore/axis"
	"stepcore/config"
)

// MotorMovement is what the Motor Fan-out emits: one physical segment
// spanning every driver, with start/end step frequencies along the
// parent Target's defining axis.
type MotorMovement struct {
	Steps [config.MaxDrivers]int64
	V0    float64
	V1    float64
	AuxBits auxout.Mask
}

// HasMotion reports whether any driver moves in this segment.
func (m MotorMovement) HasMotion() bool {
	for _, s := range m.Steps {
		if s != 0 {
			return true
		}
	}
	return false
}

// Queue is the outbound interface to the step-pulse generator: a bounded
// command queue living on separate hardware, with a blocking drain.
type Queue interface {
	Enqueue(MotorMovement)
	Drain()
	MotorEnable(on bool)
}

// FanOut converts axis-indexed step counts into driver-indexed step
// counts using a fixed Config's mirror map and sign flips.
type FanOut struct {
	Cfg *config.Config
}

// Assign routes stepsByAxis through axis_to_driver, axis_flip, and
// driver_flip. Drivers not covered by any axis receive zero.
func (f *FanOut) Assign(stepsByAxis [axis.Count]int64) [config.MaxDrivers]int64 {
	var out [config.MaxDrivers]int64
	for k := axis.Axis(0); k < axis.Count; k++ {
		s := stepsByAxis[k]
		if s == 0 {
			continue
		}
		mask := f.Cfg.AxisToDriver[k]
		if mask == 0 {
			continue
		}
		flip := int64(f.Cfg.AxisFlip[k])
		for m := 0; m < f.Cfg.NumDrivers; m++ {
			if mask&(1<<uint(m)) == 0 {
				continue
			}
			out[m] += flip * int64(f.Cfg.DriverFlip[m]) * s
		}
	}
	return out
}
