package main

import (
	"strings"
	"testing"

	"stepcore/config"
	"stepcore/control"
	"stepcore/gpio"
)

// fakeHomingGPIO reads low until triggerAfter reads have happened, then
// high until releaseAfter reads have happened, then low again — enough
// for G28's approach-then-back-off cycle to terminate deterministically,
// without the data race a background write to memGPIO's level map would
// introduce. Mirrors control_test.go's fakeGPIO.
type fakeHomingGPIO struct {
	reads        map[gpio.Pin]int
	triggerAfter map[gpio.Pin]int
	releaseAfter map[gpio.Pin]int
}

func newFakeHomingGPIO() *fakeHomingGPIO {
	return &fakeHomingGPIO{
		reads:        map[gpio.Pin]int{},
		triggerAfter: map[gpio.Pin]int{},
		releaseAfter: map[gpio.Pin]int{},
	}
}

func (g *fakeHomingGPIO) ConfigureOutput(p gpio.Pin)             {}
func (g *fakeHomingGPIO) ConfigureInput(p gpio.Pin, pullUp bool) {}
func (g *fakeHomingGPIO) Set(p gpio.Pin, high bool)              {}
func (g *fakeHomingGPIO) Read(p gpio.Pin) bool {
	g.reads[p]++
	ta, hasTrigger := g.triggerAfter[p]
	if !hasTrigger || g.reads[p] < ta {
		return false
	}
	if ra, hasRelease := g.releaseAfter[p]; hasRelease && g.reads[p] >= ra {
		return false
	}
	return true
}

func newSession(t *testing.T) *session {
	mc := config.DefaultMachineConfig()
	mc.MinEndswitch = "XYZ"
	mc.EndswitchPolarity = "111"
	mc.HomeOrder = "ZXY"
	cfg, err := config.New(mc)
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	q := &memQueue{}
	gp := newMemGPIO()
	return &session{ctrl: control.NewController(cfg, q, gp), cfg: cfg, gp: gp}
}

func TestG1MovesAndCarriesUnspecifiedAxesForward(t *testing.T) {
	s := newSession(t)
	if reply := s.execute("G1 X10 Y5 F100"); reply != "" {
		t.Fatalf("G1 X10 Y5 F100: %q", reply)
	}
	if s.target[0] != 10 || s.target[1] != 5 {
		t.Fatalf("target = %v, want X=10 Y=5", s.target)
	}
	if reply := s.execute("G1 Z2"); reply != "" {
		t.Fatalf("G1 Z2: %q", reply)
	}
	if s.target[0] != 10 || s.target[1] != 5 || s.target[2] != 2 {
		t.Fatalf("target = %v, want X=10 Y=5 Z=2 (X/Y carried forward)", s.target)
	}
}

func TestCommentIsStripped(t *testing.T) {
	s := newSession(t)
	if reply := s.execute("G1 X1 ; comment text"); reply != "" {
		t.Fatalf("G1 X1 ; comment: %q", reply)
	}
	if s.target[0] != 1 {
		t.Fatalf("target[X] = %v, want 1", s.target[0])
	}
}

func TestMoveWithoutHomingIsRefusedWhenRequired(t *testing.T) {
	mc := config.DefaultMachineConfig()
	mc.RequireHoming = true
	cfg, err := config.New(mc)
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	gp := newMemGPIO()
	s := &session{ctrl: control.NewController(cfg, &memQueue{}, gp), cfg: cfg, gp: gp}

	reply := s.execute("G1 X10")
	if !strings.HasPrefix(reply, "?") {
		t.Errorf("G1 X10 without homing = %q, want a refusal", reply)
	}
}

func TestG28HomesThenMoveIsAllowed(t *testing.T) {
	mc := config.DefaultMachineConfig()
	mc.MinEndswitch = "X"
	mc.EndswitchPolarity = "1"
	mc.HomeOrder = "X"
	mc.RequireHoming = true
	cfg, err := config.New(mc)
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	gp := newFakeHomingGPIO()
	gp.triggerAfter[gpio.Pin(1)] = 2
	gp.releaseAfter[gpio.Pin(1)] = 4
	s := &session{ctrl: control.NewController(cfg, &memQueue{}, gp), cfg: cfg}

	if reply := s.execute("G28 X"); reply != "" {
		t.Fatalf("G28 X: %q", reply)
	}

	if reply := s.execute("G1 X10"); strings.HasPrefix(reply, "?") {
		t.Errorf("G1 X10 after G28 X = %q, want success", reply)
	}
}

func TestUnknownCommandReportsError(t *testing.T) {
	s := newSession(t)
	if reply := s.execute("Q1"); !strings.HasPrefix(reply, "?") {
		t.Errorf("Q1 = %q, want an error reply", reply)
	}
}

func TestHelpAndStatus(t *testing.T) {
	s := newSession(t)
	if reply := s.execute("HELP"); reply == "" {
		t.Error("HELP returned empty text")
	}
	if reply := s.execute("STATUS"); reply == "" {
		t.Error("STATUS returned empty text")
	}
}

func TestMCodeDispatchThroughExecute(t *testing.T) {
	s := newSession(t)
	if reply := s.execute("M115"); !strings.Contains(reply, "FIRMWARE_NAME") {
		t.Errorf("M115 = %q, want a firmware banner", reply)
	}
	if reply := s.execute("M9999"); !strings.HasPrefix(reply, "?") {
		t.Errorf("M9999 = %q, want an unrecognised-code reply", reply)
	}
}
