package mcode

import "testing"

type fakeMachine struct {
	estop        bool
	spindleOn    bool
	spindleRev   bool
	spindleRPM   float64
	mist, flood  bool
	vacuum       bool
	motorsOn     bool
	power        bool
	auxPin       uint
	auxOn        bool
	auxImmediate bool
	echoed       string
	speedFactor  float64
	speedErr     error
}

func (f *fakeMachine) EStop(assert bool) { f.estop = assert }
func (f *fakeMachine) SetSpindle(on, reverse bool, rpm float64) {
	f.spindleOn, f.spindleRev, f.spindleRPM = on, reverse, rpm
}
func (f *fakeMachine) SetMist(on bool)            { f.mist = on }
func (f *fakeMachine) SetFlood(on bool)           { f.flood = on }
func (f *fakeMachine) SetVacuum(on bool)          { f.vacuum = on }
func (f *fakeMachine) SetMotorsEnabled(on bool)   { f.motorsOn = on }
func (f *fakeMachine) SetMachinePower(on bool)    { f.power = on }
func (f *fakeMachine) TemperatureReport() string  { return "T-300" }
func (f *fakeMachine) PositionReport() string     { return "X:0 Y:0 Z:0 E:0" }
func (f *fakeMachine) FirmwareBanner() string     { return "PROTOCOL_VERSION:0.1" }
func (f *fakeMachine) Echo(message string)        { f.echoed = message }
func (f *fakeMachine) EndstopReport() string      { return "x_min:open" }
func (f *fakeMachine) SetAuxBit(pin uint, on bool, immediate bool) {
	f.auxPin, f.auxOn, f.auxImmediate = pin, on, immediate
}
func (f *fakeMachine) SetSpeedFactor(v float64) error {
	f.speedFactor = v
	return f.speedErr
}

func TestDispatchUnknownCodeReturnsFalse(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	_, handled, err := table.Dispatch(m, 7777, "")
	if handled || err != nil {
		t.Errorf("Dispatch(7777) = handled=%v err=%v, want handled=false err=nil", handled, err)
	}
}

func TestM0AssertsEStop(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	if _, handled, err := table.Dispatch(m, 0, ""); !handled || err != nil {
		t.Fatalf("Dispatch(M0) = handled=%v err=%v", handled, err)
	}
	if !m.estop {
		t.Error("M0 did not assert e-stop")
	}
}

func TestM999ClearsEStop(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{estop: true}
	table.Dispatch(m, 999, "")
	if m.estop {
		t.Error("M999 did not clear e-stop")
	}
}

func TestM3SetsSpindleForward(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	table.Dispatch(m, 3, "S1200")
	if !m.spindleOn || m.spindleRev || m.spindleRPM != 1200 {
		t.Errorf("M3 S1200 -> on=%v rev=%v rpm=%v, want on=true rev=false rpm=1200", m.spindleOn, m.spindleRev, m.spindleRPM)
	}
}

func TestM4SetsSpindleReverse(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	table.Dispatch(m, 4, "S800")
	if !m.spindleOn || !m.spindleRev || m.spindleRPM != 800 {
		t.Errorf("M4 S800 -> on=%v rev=%v rpm=%v, want on=true rev=true rpm=800", m.spindleOn, m.spindleRev, m.spindleRPM)
	}
}

func TestM5StopsSpindle(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{spindleOn: true, spindleRPM: 1000}
	table.Dispatch(m, 5, "")
	if m.spindleOn {
		t.Error("M5 did not stop the spindle")
	}
}

func TestM42RequiresPWord(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	_, _, err := table.Dispatch(m, 42, "S1")
	if err == nil {
		t.Error("M42 without a P word should error")
	}
}

func TestM42BufferedSetsAuxBit(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	_, _, err := table.Dispatch(m, 42, "P5 S1")
	if err != nil {
		t.Fatalf("M42 P5 S1: %v", err)
	}
	if m.auxPin != 5 || !m.auxOn || m.auxImmediate {
		t.Errorf("M42 P5 S1 -> pin=%d on=%v immediate=%v, want pin=5 on=true immediate=false", m.auxPin, m.auxOn, m.auxImmediate)
	}
}

func TestM64IsImmediate(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	table.Dispatch(m, 64, "P3")
	if m.auxPin != 3 || !m.auxOn || !m.auxImmediate {
		t.Errorf("M64 P3 -> pin=%d on=%v immediate=%v, want pin=3 on=true immediate=true", m.auxPin, m.auxOn, m.auxImmediate)
	}
}

func TestM65IsImmediateOff(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	table.Dispatch(m, 65, "P3")
	if m.auxPin != 3 || m.auxOn || !m.auxImmediate {
		t.Errorf("M65 P3 -> pin=%d on=%v immediate=%v, want pin=3 on=false immediate=true", m.auxPin, m.auxOn, m.auxImmediate)
	}
}

func TestM117EchoesRestOfLine(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	table.Dispatch(m, 117, "Tool change complete")
	if m.echoed != "Tool change complete" {
		t.Errorf("M117 echoed %q, want %q", m.echoed, "Tool change complete")
	}
}

func TestM220RequiresSWord(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	if _, _, err := table.Dispatch(m, 220, ""); err == nil {
		t.Error("M220 without an S word should error")
	}
}

func TestM220PassesFactorThrough(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	if _, _, err := table.Dispatch(m, 220, "S0.5"); err != nil {
		t.Fatalf("M220 S0.5: %v", err)
	}
	if m.speedFactor != 0.5 {
		t.Errorf("speedFactor = %v, want 0.5", m.speedFactor)
	}
}

func TestM105And114And115And119ReturnReplies(t *testing.T) {
	table := DefaultTable()
	m := &fakeMachine{}
	for _, code := range []int{105, 114, 115, 119} {
		reply, handled, err := table.Dispatch(m, code, "")
		if !handled || err != nil || reply == "" {
			t.Errorf("Dispatch(M%d) = reply=%q handled=%v err=%v", code, reply, handled, err)
		}
	}
}
