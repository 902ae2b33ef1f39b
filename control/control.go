// Package control wires every motion-planning component into a single
// event receiver: the façade a toolpath parser drives.
//
// One struct holds every collaborator, following GCodeMachineControlImpl's
// event semantics in BeagleG's gcode-machine-control.cc
// (github.com/hzeller/beagleg): unhomed rejection, range checking, M114's
// position report, the derived default feedrates.
package control

import (
	"fmt"
	"time"

	"stepcore/auxout"
	"stepcore/axis"
	"stepcore/config"
	"stepcore/diag"
	"stepcore/gpio"
	"stepcore/homing"
	"stepcore/mcode"
	"stepcore/motorfanout"
	"stepcore/planbuf"
	"stepcore/segment"
	"stepcore/target"
)

// speedFactorFloor is the lowest M220 program speed factor that is
// honoured; anything below is logged and ignored (§7).
const speedFactorFloor = 0.005

// eStopPin and powerPin are the two reserved, fixed GPIO lines this
// package drives directly, distinct from the per-endstop pins homing
// owns and the per-general-pin convention auxPin below uses. A real
// deployment's gpio.Driver implementation is free to remap these to
// whatever physical lines it likes; the numbers are only a private
// convention between Controller and whatever Driver it's given.
const (
	eStopPin gpio.Pin = 0
	powerPin gpio.Pin = config.NumEndstops + 1
)

// auxPinBase offsets general-purpose aux pin numbers (M42/M62-M65's P
// word) away from eStopPin/powerPin and from homing's endstop pin
// range, so the same gpio.Driver can serve all three without collision.
const auxPinBase = 1000

func auxPin(p uint) gpio.Pin { return gpio.Pin(auxPinBase + p) }

// Controller is the single entry point a parser drives: it implements
// every §6.1 event and mcode.Machine, and owns every other package's
// collaborators.
type Controller struct {
	Cfg  *config.Config
	Diag *diag.Writer

	// FirmwareName/FirmwareURL feed M115's banner.
	FirmwareName string
	FirmwareURL  string

	// SetFanSpeed is an optional callback for set_fanspeed; nil means no
	// PWM/fan driver is wired (§1 puts PWM drivers out of scope as an
	// implementation; this keeps the dependency injected rather than
	// giving Controller an opinion about fan hardware).
	SetFanSpeed func(pwm int)

	builder target.Builder
	buf     *planbuf.Buffer
	seg     *segment.Segmenter
	fanOut  *motorfanout.FanOut
	queue   motorfanout.Queue
	gpioDrv gpio.Driver
	homer   *homing.Homer
	mcode   *mcode.Table

	auxMask             auxout.Mask
	currentFeedMMPerSec float64
	speedFactor         float64
	originOffsetMM      [axis.Count]float64
	machinePowered      bool
	eStopped            bool
	lastMessage         string
}

// NewController builds a Controller with every collaborator wired:
// the planning buffer seeded with boot pose, the Target Builder and
// Segmenter bound to cfg, the Motor Fan-out, the homing state machine
// (with its BringToHalt callback pointed at this Controller's own
// halt-and-drain), and the default M-code table.
func NewController(cfg *config.Config, queue motorfanout.Queue, gpioDrv gpio.Driver) *Controller {
	c := &Controller{
		Cfg:                 cfg,
		Diag:                diag.NewWriter(),
		FirmwareName:        "stepcore",
		FirmwareURL:         "https://example.invalid/stepcore",
		buf:                 planbuf.New(target.Boot()),
		builder:             target.Builder{Cfg: cfg},
		queue:               queue,
		gpioDrv:             gpioDrv,
		mcode:               mcode.DefaultTable(),
		currentFeedMMPerSec: cfg.DefaultFeedrateMMPerSec,
		speedFactor:         1,
		machinePowered:      true,
	}
	c.fanOut = &motorfanout.FanOut{Cfg: cfg}
	c.seg = &segment.Segmenter{Cfg: cfg, FanOut: c.fanOut, Queue: queue}
	c.homer = homing.NewHomer(cfg, c.fanOut, queue, gpioDrv, c.buf, c.BringToHalt)

	if cfg.DebugPrint {
		for _, line := range cfg.ConstructionDiagnostics() {
			c.Diag.Printf("%s", line)
		}
	}
	return c
}

func (c *Controller) issueIfPossible() {
	if c.buf.Size() >= 3 {
		c.seg.Move(c.buf.Peek(0), c.buf.Peek(1), c.buf.Peek(2))
		c.buf.PopFront()
	}
}

func (c *Controller) appendTarget(nt target.Target) {
	*c.buf.Append() = nt
	c.issueIfPossible()
}

// BringToHalt appends a halt sentinel and drains the motor queue,
// implementing §4.7. Exported for homing.Homer's injected callback;
// the event-interface name for the same operation as seen by a parser
// is InputIdle/GCodeFinished below.
func (c *Controller) BringToHalt() {
	c.appendTarget(target.Halt(c.buf.Back()))
	c.queue.Drain()
}

// GCodeStart is a no-op in the core; the parser owns program framing.
func (c *Controller) GCodeStart() {}

// GCodeFinished halts at end of stream.
func (c *Controller) GCodeFinished() { c.BringToHalt() }

// InputIdle halts because the parser has nothing more queued right now.
func (c *Controller) InputIdle() { c.BringToHalt() }

// InformOriginOffset records the parser's current workspace origin for
// diagnostic display only (M114, and the range-check wording below).
func (c *Controller) InformOriginOffset(origin [axis.Count]float64) {
	c.originOffsetMM = origin
}

// effectiveFeedrate applies the runtime M220 speed factor and the
// config-level global speed_factor multiplier to a requested feed.
// set_speed_factor's doc says "multiply all subsequent feedrates by f";
// that reading is taken literally here and applied to rapids as well
// as coordinated feeds, not just the latter.
func (c *Controller) effectiveFeedrate(requested float64) float64 {
	return requested * c.speedFactor * c.Cfg.SpeedFactor
}

func (c *Controller) hasOriginOffset() bool {
	for k := axis.Axis(0); k < axis.Count; k++ {
		if c.originOffsetMM[k] != 0 {
			return true
		}
	}
	return false
}

// withinLimits implements §7's range check, and the supplemented
// diagnostic wording split: when a workspace origin offset is active
// the reported limit is expressed in the current (origin-relative)
// coordinate system; otherwise the raw machine limit is reported.
// Ported from BeagleG's test_within_machine_limits.
func (c *Controller) withinLimits(targetMM [axis.Count]float64) (ok bool, axisLetter byte, msg string) {
	offsetActive := c.hasOriginOffset()
	for k := axis.Axis(0); k < axis.Count; k++ {
		limit := c.Cfg.Axes[k].MoveRangeMM
		if limit <= 0 {
			continue
		}
		if targetMM[k] >= 0 && targetMM[k] <= limit {
			continue
		}
		if offsetActive {
			relLimit := limit - c.originOffsetMM[k]
			return false, axis.Letter(k), fmt.Sprintf("axis %c target %.3f is outside the current-coordinate-system range [%.3f, %.3f]", axis.Letter(k), targetMM[k]-c.originOffsetMM[k], -c.originOffsetMM[k], relLimit)
		}
		return false, axis.Letter(k), fmt.Sprintf("axis %c target %.3f is outside the machine range [0, %.3f]", axis.Letter(k), targetMM[k], limit)
	}
	return true, 0, ""
}

func (c *Controller) requireHomed() (ok bool) {
	if !c.Cfg.RequireHoming {
		return true
	}
	return c.homer.State() != homing.NeverHomed
}

// move is shared by CoordinatedMove and RapidMove: validate, build,
// append, issue. It never touches currentFeedMMPerSec itself — only
// CoordinatedMove remembers a commanded feed, and only when nonzero.
func (c *Controller) move(feedMMPerSec float64, targetMM [axis.Count]float64, defaultFeed float64) bool {
	if !c.requireHomed() {
		c.Diag.Printf("control: refusing move, please home first")
		return false
	}
	if c.Cfg.RangeCheck {
		if ok, _, msg := c.withinLimits(targetMM); !ok {
			c.Diag.Printf("control: %s", msg)
			return false
		}
	}

	feed := feedMMPerSec
	if feed == 0 {
		feed = defaultFeed
	}

	prev := c.buf.Back()
	nt := c.builder.Build(prev, c.effectiveFeedrate(feed), targetMM, c.auxMask)
	c.appendTarget(nt)
	return true
}

// CoordinatedMove is a normal feed move; a zero feed reuses the last
// commanded feedrate. Only a nonzero feed here updates the remembered
// feedrate — a rapid never does (see RapidMove).
func (c *Controller) CoordinatedMove(feedMMPerSec float64, targetMM [axis.Count]float64) bool {
	ok := c.move(feedMMPerSec, targetMM, c.currentFeedMMPerSec)
	if ok && feedMMPerSec != 0 {
		c.currentFeedMMPerSec = feedMMPerSec
	}
	return ok
}

// RapidMove uses the highest configured per-axis feedrate when no feed
// override is given (BeagleG's g0_feedrate). It never updates the
// remembered programmed feedrate (see CoordinatedMove).
func (c *Controller) RapidMove(feedMMPerSec float64, targetMM [axis.Count]float64) bool {
	return c.move(feedMMPerSec, targetMM, c.Cfg.G0FeedrateMMPerSec)
}

// Dwell halts, drains, and sleeps for ms milliseconds.
func (c *Controller) Dwell(ms int) {
	c.BringToHalt()
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// GoHome homes the requested axes.
func (c *Controller) GoHome(bitmap homing.Bitmap) { c.homer.GoHome(bitmap) }

// ProbeAxis drives toward a's probe endstop and returns the resulting
// position in millimetres.
func (c *Controller) ProbeAxis(feedMMPerSec float64, a axis.Axis) (float64, error) {
	return c.homer.ProbeAxis(feedMMPerSec, a)
}

// SetMotorsEnabled halts, then toggles motor power; disabling downgrades
// HOMED to HOMED_BUT_MOTORS_UNPOWERED. Also satisfies mcode.Machine.
func (c *Controller) SetMotorsEnabled(on bool) {
	c.BringToHalt()
	c.queue.MotorEnable(on)
	if !on {
		c.homer.MotorsDisabled()
	}
}

// WaitForStart blocks, blinking ledPin, while startPin reads high —
// the only busy-wait this package performs outside homing/probing,
// matching §5's enumerated suspension points.
func (c *Controller) WaitForStart(startPin, ledPin gpio.Pin) {
	blink := false
	for c.gpioDrv.Read(startPin) {
		blink = !blink
		c.gpioDrv.Set(ledPin, blink)
		time.Sleep(200 * time.Millisecond)
	}
}

// Unprocessed dispatches a parser token the event interface has no
// dedicated callback for — in practice, M-code blocks — to the M-code
// table. A non-M letter, or an unrecognised code, is logged and the
// block is discarded (§7).
func (c *Controller) Unprocessed(letter byte, value float64, rest string) (string, bool) {
	if letter != 'M' && letter != 'm' {
		c.Diag.Printf("control: unprocessed %c%v %q discarded", letter, value, rest)
		return "", false
	}
	code := int(value)
	reply, handled, err := c.mcode.Dispatch(c, code, rest)
	if err != nil {
		c.Diag.Printf("control: M%d: %v", code, err)
		return "", false
	}
	if !handled {
		c.Diag.Printf("control: unknown M-code M%d, discarding remainder of block %q", code, rest)
		return "", false
	}
	return reply, true
}

// SetTemperature and WaitTemperature are stubs (§1: temperature control
// out of scope beyond acknowledging the command).
func (c *Controller) SetTemperature(heater int, tempC float64) {
	c.Diag.Printf("control: set_temperature heater=%d target=%.1fC (stub)", heater, tempC)
}

func (c *Controller) WaitTemperature(heater int, tempC float64) {
	c.Diag.Printf("control: wait_temperature heater=%d target=%.1fC (stub, returns immediately)", heater, tempC)
}

// --- mcode.Machine ---

// EStop asserts or clears the e-stop GPIO line.
func (c *Controller) EStop(assert bool) {
	c.eStopped = assert
	if c.gpioDrv != nil {
		c.gpioDrv.Set(eStopPin, assert)
	}
}

// SetSpindle sets the spindle-on and spindle-direction aux bits.
func (c *Controller) SetSpindle(on, reverse bool, rpm float64) {
	c.auxMask = c.auxMask.Set(auxout.Spindle, on).Set(auxout.SpindleDir, reverse)
	_ = rpm // rpm has no closed-loop readback in this module; accepted and discarded per §1's open-loop scope
}

func (c *Controller) SetMist(on bool)   { c.auxMask = c.auxMask.Set(auxout.Mist, on) }
func (c *Controller) SetFlood(on bool)  { c.auxMask = c.auxMask.Set(auxout.Flood, on) }
func (c *Controller) SetVacuum(on bool) { c.auxMask = c.auxMask.Set(auxout.Vacuum, on) }

// SetAuxBit sets a general-purpose aux bit. Buffered writes (M42/M62/
// M63) only touch the logical mask, which the next built Target
// snapshots; immediate writes (M64/M65) additionally latch the GPIO
// line right now, with no motion synchronisation.
func (c *Controller) SetAuxBit(pin uint, on bool, immediate bool) {
	c.auxMask = c.auxMask.Set(auxout.GeneralBit(pin), on)
	if immediate && c.gpioDrv != nil {
		c.gpioDrv.Set(auxPin(pin), on)
	}
}

// SetMachinePower toggles the machine's main power relay.
func (c *Controller) SetMachinePower(on bool) {
	c.machinePowered = on
	if c.gpioDrv != nil {
		c.gpioDrv.Set(powerPin, on)
	}
}

// TemperatureReport is a fixed stub reading (§1: temperature control
// out of scope).
func (c *Controller) TemperatureReport() string { return "T-300" }

// PositionReport formats M114's position line: origin-relative X/Y/Z/E,
// the bracketed absolute-machine-coordinate cube, and a homing
// confidence suffix. X/Y/Z/E only, regardless of how many axes this
// configuration maps, matching BeagleG's M114 output unchanged.
func (c *Controller) PositionReport() string {
	mm := func(a axis.Axis) float64 {
		stepsPerMM := c.Cfg.Axes[a].StepsPerMM
		if stepsPerMM == 0 {
			return 0
		}
		return float64(c.buf.Back().PositionSteps[a]) / stepsPerMM
	}
	x, y, z, e := mm(axis.X), mm(axis.Y), mm(axis.Z), mm(axis.E)
	relX := x - c.originOffsetMM[axis.X]
	relY := y - c.originOffsetMM[axis.Y]
	relZ := z - c.originOffsetMM[axis.Z]
	relE := e - c.originOffsetMM[axis.E]

	return fmt.Sprintf("X:%.3f Y:%.3f Z:%.3f E:%.3f [ABS. MACHINE CUBE X:%.3f Y:%.3f Z:%.3f] %s",
		relX, relY, relZ, relE, x, y, z, c.homer.State())
}

// FirmwareBanner answers M115.
func (c *Controller) FirmwareBanner() string {
	return fmt.Sprintf("PROTOCOL_VERSION:0.1 FIRMWARE_NAME:%s FIRMWARE_URL:%s", c.FirmwareName, c.FirmwareURL)
}

// Echo handles M117: display a message, consuming the rest of the line.
func (c *Controller) Echo(message string) {
	c.lastMessage = message
	c.Diag.Printf("M117: %s", message)
}

// EndstopReport answers M119: a single line with one space-separated
// entry per configured endstop.
func (c *Controller) EndstopReport() string {
	line := func(a axis.Axis, es config.EndstopConfig, suffix string) string {
		state := "open"
		if c.gpioDrv != nil && c.gpioDrv.Read(gpio.Pin(es.EndstopNumber)) == es.TriggerValue {
			state = "TRIGGERED"
		}
		return fmt.Sprintf("%c_%s:%s", axis.Letter(a), suffix, state)
	}
	out := ""
	for a := axis.Axis(0); a < axis.Count; a++ {
		if es := c.Cfg.MinEndstop[a]; es.Mapped() {
			out += line(a, es, "min") + " "
		}
		if es := c.Cfg.MaxEndstop[a]; es.Mapped() {
			out += line(a, es, "max") + " "
		}
	}
	return trimTrailingSpace(out)
}

// SetSpeedFactor implements M220: negative f means 1+f, and a result
// below speedFactorFloor is rejected (logged, ignored — §7).
func (c *Controller) SetSpeedFactor(f float64) error {
	if f < 0 {
		f = 1 + f
	}
	if f < speedFactorFloor {
		c.Diag.Printf("control: M220 speed factor %.4f below floor %.4f, ignored", f, speedFactorFloor)
		return fmt.Errorf("control: speed factor %.4f below floor %.4f", f, speedFactorFloor)
	}
	c.speedFactor = f
	return nil
}

// FanSpeed passes an M106/fan-PWM request (0..255) through to whatever
// fan driver SetFanSpeed was wired to; a no-op if none was.
func (c *Controller) FanSpeed(pwm int) {
	if c.SetFanSpeed != nil {
		c.SetFanSpeed(pwm)
	}
}

func trimTrailingSpace(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}
