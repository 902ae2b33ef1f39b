// Package config carries the machine's configuration surface and derives
// the per-axis step/speed/accel tables, axis-to-driver fan-out map, and
// endstop tables that the rest of the planner consumes.
//
// Validation follows GCodeMachineControl::Create in BeagleG's
// gcode-machine-control.cc (github.com/hzeller/beagleg): negative
// feedrate/accel, an illegal axis-mapping character, a max-endstop with no
// configured range, and two homing endstops on one axis are all fatal
// construction errors.
package config

import (
	"fmt"

	"stepcore/axis"
)

// NumEndstops is the number of physical endstop connectors the machine
// exposes (BeagleG's NUM_ENDSTOPS).
const NumEndstops = 6

// MaxDrivers bounds the number of physical stepper-driver connectors an
// axis-mapping string can address: a fixed, compile-time bound rather
// than growable storage.
const MaxDrivers = 16

// AxisConfig is the raw, user-supplied configuration for a single axis.
type AxisConfig struct {
	// StepsPerMM may be given negative; the sign is extracted into
	// AxisFlip at construction and StepsPerMM is normalised to positive.
	StepsPerMM            float64
	MaxFeedrateMMPerSec   float64
	AccelerationMMPerSec2 float64
	// MoveRangeMM <= 0 means "unbounded".
	MoveRangeMM float64
}

// EndstopConfig is a resolved endstop assignment for one axis (either the
// min- or max-side endstop).
type EndstopConfig struct {
	// EndstopNumber is 1..NumEndstops, or 0 if this axis has no endstop on
	// this side.
	EndstopNumber int
	TriggerValue  bool // GPIO level that indicates "triggered"
	HomingUse     bool // true: used for G28 homing; false: probe-only
}

func (e EndstopConfig) Mapped() bool { return e.EndstopNumber != 0 }

// MachineConfig is the user-supplied configuration surface.
type MachineConfig struct {
	Axes [axis.Count]AxisConfig

	// AxisMapping assigns logical axes to physical driver connectors,
	// left to right (e.g. "XYZEA"); '_' skips a connector; a lowercase
	// letter flips that driver's direction signal.
	AxisMapping string

	// EndswitchPolarity gives, per physical switch connector, which GPIO
	// level means "triggered": '_'/'0'/'-'/'L' for low, '1'/'+'/'H' for
	// high.
	EndswitchPolarity string

	// MinEndswitch / MaxEndswitch assign physical switch connectors to
	// axes, one character per connector; '_' skips a connector. An
	// uppercase letter marks that endstop as the one used for homing
	// (G28); lowercase marks it probe-only (G38).
	MinEndswitch string
	MaxEndswitch string

	// HomeOrder lists axis letters in the order G28 should home them.
	HomeOrder string

	RequireHoming bool
	RangeCheck    bool
	Synchronous   bool

	// ThresholdAngleDeg is the corner angle (degrees) below which the
	// Junction Solver treats a corner as gentle enough to skip entirely.
	ThresholdAngleDeg float64

	// SpeedFactor is a fixed global multiplier applied to every feedrate
	// (distinct from the runtime M220 program speed factor).
	SpeedFactor float64

	DebugPrint bool
}

// DefaultMachineConfig mirrors BeagleG's kMaxFeedrate/kDefaultAccel/
// kStepsPerMM/kAxisMapping/kHomeOrder defaults for a 5-axis XYZEA machine.
func DefaultMachineConfig() MachineConfig {
	mc := MachineConfig{
		AxisMapping:       "XYZEA",
		HomeOrder:         "ZXY",
		RangeCheck:        true,
		ThresholdAngleDeg: 10,
		SpeedFactor:       1,
	}
	defaults := [axis.Count]AxisConfig{
		axis.X: {StepsPerMM: 160, MaxFeedrateMMPerSec: 200, AccelerationMMPerSec2: 4000},
		axis.Y: {StepsPerMM: 160, MaxFeedrateMMPerSec: 200, AccelerationMMPerSec2: 4000},
		axis.Z: {StepsPerMM: 160, MaxFeedrateMMPerSec: 90, AccelerationMMPerSec2: 1000},
		axis.E: {StepsPerMM: 40, MaxFeedrateMMPerSec: 10, AccelerationMMPerSec2: 10000},
		axis.A: {StepsPerMM: 1, MaxFeedrateMMPerSec: 1, AccelerationMMPerSec2: 1},
	}
	mc.Axes = defaults
	return mc
}

// Config is a validated MachineConfig plus every value derived from it:
// sign-extracted axis flips, per-axis speed/accel ceilings in steps/s and
// steps/s^2, the axis-to-driver fan-out map, and the resolved endstop
// tables.
type Config struct {
	MachineConfig

	AxisFlip     [axis.Count]int8
	MaxAxisSpeed [axis.Count]float64 // steps/s
	MaxAxisAccel [axis.Count]float64 // steps/s^2
	HighestAccel float64

	AxisToDriver [axis.Count]uint32 // bitmask over driver connectors
	DriverFlip   [MaxDrivers]int8
	NumDrivers   int

	MinEndstop [axis.Count]EndstopConfig
	MaxEndstop [axis.Count]EndstopConfig

	// G0FeedrateMMPerSec is the highest max-feedrate across all axes,
	// used by rapid_move when no feed override is given.
	G0FeedrateMMPerSec float64
	// DefaultFeedrateMMPerSec seeds current_feedrate before any F word is
	// seen (BeagleG: max_feedrate[X]/10).
	DefaultFeedrateMMPerSec float64
}

// IsAxisMapped reports whether any physical driver tracks this axis.
func (c *Config) IsAxisMapped(a axis.Axis) bool {
	return c.AxisToDriver[a] != 0
}

// ConstructionDiagnostics formats one summary line per mapped axis, the
// per-axis configuration echo BeagleG prints at startup when debug_print
// is set. New itself stays side-effect-free; a caller that wants this
// printed (control.NewController, when DebugPrint is set) passes the
// lines to its own diagnostic sink.
func (c *Config) ConstructionDiagnostics() []string {
	var lines []string
	for i := axis.Axis(0); i < axis.Count; i++ {
		if !c.IsAxisMapped(i) {
			continue
		}
		ac := c.Axes[i]
		lines = append(lines, fmt.Sprintf("config: axis %c steps_per_mm=%.3f max_feedrate=%.3f accel=%.3f range=%.3f",
			axis.Letter(i), ac.StepsPerMM, ac.MaxFeedrateMMPerSec, ac.AccelerationMMPerSec2, ac.MoveRangeMM))
	}
	return lines
}

// New validates mc and derives a Config from it, or returns the first
// construction error encountered. Construction is fatal: on error the
// caller gets no usable Config.
func New(mc MachineConfig) (*Config, error) {
	if mc.AxisMapping == "" {
		mc.AxisMapping = "XYZEA"
	}
	if mc.HomeOrder == "" {
		mc.HomeOrder = "ZXY"
	}
	if mc.ThresholdAngleDeg == 0 {
		mc.ThresholdAngleDeg = 10
	}
	if mc.SpeedFactor == 0 {
		mc.SpeedFactor = 1
	}

	c := &Config{MachineConfig: mc}

	for i := axis.Axis(0); i < axis.Count; i++ {
		ac := mc.Axes[i]
		if ac.StepsPerMM < 0 {
			c.AxisFlip[i] = -1
		} else {
			c.AxisFlip[i] = 1
		}
		stepsPerMM := absf(ac.StepsPerMM)
		if ac.MaxFeedrateMMPerSec < 0 {
			return nil, fmt.Errorf("config: invalid negative feedrate %.1f for axis %c", ac.MaxFeedrateMMPerSec, axis.Letter(i))
		}
		if ac.AccelerationMMPerSec2 < 0 {
			return nil, fmt.Errorf("config: invalid negative acceleration %.1f for axis %c", ac.AccelerationMMPerSec2, axis.Letter(i))
		}

		if ac.MaxFeedrateMMPerSec > c.G0FeedrateMMPerSec {
			c.G0FeedrateMMPerSec = ac.MaxFeedrateMMPerSec
		}
		c.MaxAxisSpeed[i] = ac.MaxFeedrateMMPerSec * stepsPerMM
		accel := ac.AccelerationMMPerSec2 * stepsPerMM
		c.MaxAxisAccel[i] = accel
		if accel > c.HighestAccel {
			c.HighestAccel = accel
		}
	}
	c.DefaultFeedrateMMPerSec = mc.Axes[axis.X].MaxFeedrateMMPerSec / 10

	if err := c.mapAxisMapping(mc.AxisMapping); err != nil {
		return nil, err
	}

	triggerHigh, err := parseEndswitchPolarity(mc.EndswitchPolarity)
	if err != nil {
		return nil, err
	}

	if err := c.mapMinEndswitch(mc.MinEndswitch, triggerHigh); err != nil {
		return nil, err
	}
	if err := c.mapMaxEndswitch(mc.MaxEndswitch, triggerHigh); err != nil {
		return nil, err
	}

	for i := axis.Axis(0); i < axis.Count; i++ {
		if c.MinEndstop[i].Mapped() && c.MaxEndstop[i].Mapped() &&
			c.MinEndstop[i].HomingUse && c.MaxEndstop[i].HomingUse {
			return nil, fmt.Errorf("config: axis %c has both min and max endstop flagged for homing", axis.Letter(i))
		}
	}

	for i := axis.Axis(0); i < axis.Count; i++ {
		if !c.IsAxisMapped(i) {
			continue
		}
		if mc.Axes[i].StepsPerMM == 0 || mc.Axes[i].MaxFeedrateMMPerSec <= 0 {
			return nil, fmt.Errorf("config: axis %c is mapped to a driver but has invalid steps/mm or feedrate", axis.Letter(i))
		}
	}

	return c, nil
}

func (c *Config) mapAxisMapping(mapping string) error {
	for pos, ch := range []byte(mapping) {
		if pos >= MaxDrivers {
			return fmt.Errorf("config: axis mapping %q has more elements than the available %d connectors", mapping, MaxDrivers)
		}
		if pos+1 > c.NumDrivers {
			c.NumDrivers = pos + 1
		}
		if ch == '_' {
			continue
		}
		ax, ok := axis.FromLetter(ch)
		if !ok {
			return fmt.Errorf("config: illegal axis mapping character %q in %q", ch, mapping)
		}
		if isLower(ch) {
			c.DriverFlip[pos] = -1
		} else {
			c.DriverFlip[pos] = 1
		}
		c.AxisToDriver[ax] |= 1 << uint(pos)
	}
	return nil
}

func parseEndswitchPolarity(polarity string) ([NumEndstops]bool, error) {
	var trigger [NumEndstops]bool
	for i, ch := range []byte(polarity) {
		if i >= NumEndstops {
			break
		}
		switch ch {
		case '_', '0', '-', 'L':
			trigger[i] = false
		case '1', '+', 'H':
			trigger[i] = true
		default:
			return trigger, fmt.Errorf("config: illegal endswitch polarity character %q in %q", ch, polarity)
		}
	}
	return trigger, nil
}

func (c *Config) mapMinEndswitch(mapping string, trigger [NumEndstops]bool) error {
	for pos, ch := range []byte(mapping) {
		if ch == '_' {
			continue
		}
		ax, ok := axis.FromLetter(ch)
		if !ok {
			return fmt.Errorf("config: illegal axis->min-endswitch mapping character %q in %q", ch, mapping)
		}
		trig := false
		if pos < NumEndstops {
			trig = trigger[pos]
		}
		c.MinEndstop[ax] = EndstopConfig{
			EndstopNumber: pos + 1,
			HomingUse:     !isLower(ch),
			TriggerValue:  trig,
		}
	}
	return nil
}

func (c *Config) mapMaxEndswitch(mapping string, trigger [NumEndstops]bool) error {
	for pos, ch := range []byte(mapping) {
		if ch == '_' {
			continue
		}
		ax, ok := axis.FromLetter(ch)
		if !ok {
			return fmt.Errorf("config: illegal axis->max-endswitch mapping character %q in %q", ch, mapping)
		}
		forHoming := !isLower(ch)
		if c.MachineConfig.Axes[ax].MoveRangeMM <= 0 {
			return fmt.Errorf("config: endstop for axis %c defined at max-endswitch implies a known home position, but no move range was given", axis.Letter(ax))
		}
		trig := false
		if pos < NumEndstops {
			trig = trigger[pos]
		}
		c.MaxEndstop[ax] = EndstopConfig{
			EndstopNumber: pos + 1,
			HomingUse:     forHoming,
			TriggerValue:  trig,
		}
	}
	return nil
}

func isLower(b byte) bool { return b >= 'a' && b <= 'z' }

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
