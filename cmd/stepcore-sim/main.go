// Command stepcore-sim drives a control.Controller from a tiny,
// line-oriented stand-in for a toolpath language: one command per line,
// a leading G/M letter-number pair, and trailing letter-value words in
// the same style M-codes use. It is not a G-code parser — no modal
// state, no relative mode, no expressions — just enough surface to
// exercise every control.Controller operation from a terminal, a file,
// or a serial device.
//
// Grounded on host/cmd/gopper-host/main.go's flag-plus-bufio.Scanner
// interactive loop, and on host/serial's Port/Config abstraction for
// the -device flag.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"stepcore/axis"
	"stepcore/config"
	"stepcore/control"
	"stepcore/gpio"
	"stepcore/homing"
	"stepcore/host/serial"
	"stepcore/mcode"
	"stepcore/motorfanout"
)

var (
	device        = flag.String("device", "", "Serial device path (e.g. /dev/ttyACM0); empty reads -file or stdin instead")
	baud          = flag.Int("baud", 250000, "Baud rate for -device")
	file          = flag.String("file", "", "Read commands from this file instead of stdin")
	requireHoming = flag.Bool("require-homing", false, "Refuse coordinated/rapid moves until G28 has run")
	verbose       = flag.Bool("verbose", false, "Echo every motor movement the queue receives")
)

func main() {
	flag.Parse()

	mc := config.DefaultMachineConfig()
	mc.MinEndswitch = "XYZ"
	mc.EndswitchPolarity = "111"
	mc.HomeOrder = "ZXY"
	mc.RequireHoming = *requireHoming
	cfg, err := config.New(mc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stepcore-sim: config: %v\n", err)
		os.Exit(1)
	}

	q := &memQueue{verbose: *verbose}
	gp := newMemGPIO()
	ctrl := control.NewController(cfg, q, gp)
	ctrl.Diag.Set(func(s string) { fmt.Println("!", s) })

	in, closeIn := openInput()
	defer closeIn()

	fmt.Println("stepcore-sim — type HELP for the command surface, QUIT to exit")
	scanner := bufio.NewScanner(in)
	sim := &session{ctrl: ctrl, cfg: cfg, gp: gp}
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return
		}
		if reply := sim.execute(line); reply != "" {
			fmt.Println(reply)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "stepcore-sim: read: %v\n", err)
		os.Exit(1)
	}
}

func openInput() (io.Reader, func()) {
	switch {
	case *device != "":
		cfg := serial.DefaultConfig(*device)
		cfg.Baud = *baud
		port, err := serial.Open(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stepcore-sim: open %s: %v\n", *device, err)
			os.Exit(1)
		}
		return port, func() { port.Close() }
	case *file != "":
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stepcore-sim: open %s: %v\n", *file, err)
			os.Exit(1)
		}
		return f, func() { f.Close() }
	default:
		return os.Stdin, func() {}
	}
}

// session holds the sim-local command state that a real toolpath parser
// would own: the last commanded target, so a line naming only some
// axes can carry the rest forward.
type session struct {
	ctrl   *control.Controller
	cfg    *config.Config
	gp     *memGPIO
	target [axis.Count]float64
	origin [axis.Count]float64
}

// execute runs one command line and returns text to print, if any.
func (s *session) execute(line string) string {
	if i := strings.IndexAny(line, ";("); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return ""
	}

	fields := strings.Fields(line)
	cmd := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(line, cmd))

	switch {
	case strings.EqualFold(cmd, "help") || cmd == "?":
		return helpText

	case strings.EqualFold(cmd, "status"):
		return s.ctrl.PositionReport()

	case strings.EqualFold(cmd, "pin"):
		return s.setPin(rest)

	case len(cmd) >= 2 && (cmd[0] == 'G' || cmd[0] == 'g'):
		return s.runG(cmd[1:], rest)

	case len(cmd) >= 2 && (cmd[0] == 'M' || cmd[0] == 'm'):
		code, err := strconv.ParseFloat(cmd[1:], 64)
		if err != nil {
			return fmt.Sprintf("? bad M-code %q", cmd)
		}
		reply, handled := s.ctrl.Unprocessed('M', code, rest)
		if !handled {
			return fmt.Sprintf("? M%v not recognised", code)
		}
		return reply

	default:
		return fmt.Sprintf("? unrecognised command %q", cmd)
	}
}

func (s *session) runG(codeText, rest string) string {
	code, err := strconv.ParseFloat(codeText, 64)
	if err != nil {
		return fmt.Sprintf("? bad G-code %q", codeText)
	}
	words := mcode.Words(rest)

	switch {
	case code == 0 || code == 1:
		pos := s.target
		for a := axis.Axis(0); a < axis.Count; a++ {
			if v, ok := words[axis.Letter(a)]; ok {
				pos[a] = v
			}
		}
		var ok bool
		if code == 0 {
			ok = s.ctrl.RapidMove(words['F'], pos)
		} else {
			ok = s.ctrl.CoordinatedMove(words['F'], pos)
		}
		if !ok {
			return "? move refused"
		}
		s.target = pos
		return ""

	case code == 4:
		s.ctrl.Dwell(int(words['P']))
		return ""

	case code == 28:
		bitmap, named := axesFromLetters(rest)
		if !named {
			for a := axis.Axis(0); a < axis.Count; a++ {
				if s.cfg.IsAxisMapped(a) {
					bitmap = bitmap.With(a)
				}
			}
		}
		s.ctrl.GoHome(bitmap)
		for a := axis.Axis(0); a < axis.Count; a++ {
			if bitmap.Has(a) {
				s.target[a] = 0
			}
		}
		return ""

	case code == 38 || code == 38.2 || code == 38.3:
		a, ok := firstAxisWord(words)
		if !ok {
			return "? G38 needs an axis letter"
		}
		feed := words['F']
		mm, err := s.ctrl.ProbeAxis(feed, a)
		if err != nil {
			return fmt.Sprintf("? %v", err)
		}
		s.target[a] = mm
		return fmt.Sprintf("probed %c:%.3f", axis.Letter(a), mm)

	case code == 92:
		for a := axis.Axis(0); a < axis.Count; a++ {
			if v, ok := words[axis.Letter(a)]; ok {
				s.origin[a] = v
			}
		}
		s.ctrl.InformOriginOffset(s.origin)
		return ""

	default:
		return fmt.Sprintf("? G%v not recognised", code)
	}
}

func firstAxisWord(words map[byte]float64) (axis.Axis, bool) {
	for a := axis.Axis(0); a < axis.Count; a++ {
		if _, ok := words[axis.Letter(a)]; ok {
			return a, true
		}
	}
	return 0, false
}

// axesFromLetters scans rest for bare axis letters (no following
// number required, unlike mcode.Words) — "G28 X Y" rather than
// "G28 X0 Y0".
func axesFromLetters(rest string) (bitmap homing.Bitmap, any bool) {
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c == ' ' || c == '\t' {
			continue
		}
		if a, ok := axis.FromLetter(c); ok {
			bitmap = bitmap.With(a)
			any = true
		}
		for i+1 < len(rest) && rest[i+1] != ' ' && rest[i+1] != '\t' {
			i++
		}
	}
	return bitmap, any
}

// setPin implements the sim-only "PIN <number> <0|1>" command, for
// driving endstops and the e-stop/power lines by hand from the console.
func (s *session) setPin(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return "? usage: PIN <number> <0|1>"
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return "? bad pin number"
	}
	high := fields[1] == "1"
	s.gp.Set(gpio.Pin(n), high)
	return ""
}

const helpText = `commands:
  G0/G1 <AXIS letter-value...> [F<feed>]   rapid / coordinated move
  G4 P<ms>                                  dwell
  G28 [axis letters]                        home (all mapped axes if none given)
  G38.2 <AXIS> [F<feed>]                    probe toward the axis's probe endstop
  G92 <AXIS value...>                       set workspace origin offset (reports only)
  M<code> [words...]                        dispatch an M-code
  PIN <number> <0|1>                        drive a GPIO pin by hand (endstops, e-stop)
  STATUS                                     print the current position report
  QUIT                                       exit`

// memQueue is an in-memory stand-in for the step-pulse generator this
// module hands motor movements to; it just counts and optionally prints
// them, matching segment_test.go's fakeQueue.moves recorder.
type memQueue struct {
	moves   []motorfanout.MotorMovement
	drains  int
	enabled bool
	verbose bool
}

func (q *memQueue) Enqueue(m motorfanout.MotorMovement) {
	q.moves = append(q.moves, m)
	if q.verbose {
		fmt.Printf("  > steps=%v v0=%.1f v1=%.1f\n", m.Steps, m.V0, m.V1)
	}
}

func (q *memQueue) Drain()              { q.drains++ }
func (q *memQueue) MotorEnable(on bool) { q.enabled = on }

// memGPIO is an in-memory gpio.Driver: every pin starts low, and PIN
// from the console (or another command source) is the only thing that
// ever changes a level — there is no real hardware underneath.
type memGPIO struct {
	level map[gpio.Pin]bool
}

func newMemGPIO() *memGPIO { return &memGPIO{level: map[gpio.Pin]bool{}} }

func (g *memGPIO) ConfigureOutput(p gpio.Pin)             {}
func (g *memGPIO) ConfigureInput(p gpio.Pin, pullUp bool) {}
func (g *memGPIO) Set(p gpio.Pin, high bool)              { g.level[p] = high }
func (g *memGPIO) Read(p gpio.Pin) bool                   { return g.level[p] }
