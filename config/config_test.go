package config

import (
	"testing"

	"stepcore/axis"
)

func baseMachineConfig() MachineConfig {
	mc := DefaultMachineConfig()
	mc.Axes[axis.Z].MoveRangeMM = 200
	mc.MinEndswitch = "XY"
	mc.MaxEndswitch = "_z"
	return mc
}

func TestNewDerivesAxisTables(t *testing.T) {
	c, err := New(baseMachineConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wantSpeed := c.Axes[axis.X].MaxFeedrateMMPerSec * c.Axes[axis.X].StepsPerMM
	if c.MaxAxisSpeed[axis.X] != wantSpeed {
		t.Errorf("MaxAxisSpeed[X] = %v, want %v", c.MaxAxisSpeed[axis.X], wantSpeed)
	}
	if c.DefaultFeedrateMMPerSec != c.Axes[axis.X].MaxFeedrateMMPerSec/10 {
		t.Errorf("DefaultFeedrateMMPerSec = %v, want %v", c.DefaultFeedrateMMPerSec, c.Axes[axis.X].MaxFeedrateMMPerSec/10)
	}
}

func TestNewNegativeFeedrateRejected(t *testing.T) {
	mc := baseMachineConfig()
	mc.Axes[axis.X].MaxFeedrateMMPerSec = -1
	if _, err := New(mc); err == nil {
		t.Fatal("New: want error for negative feedrate, got nil")
	}
}

func TestNewAxisMappingFlip(t *testing.T) {
	mc := baseMachineConfig()
	mc.AxisMapping = "Xy_e"
	c, err := New(mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.DriverFlip[0] != 1 {
		t.Errorf("driver 0 (X) flip = %d, want 1", c.DriverFlip[0])
	}
	if c.DriverFlip[1] != -1 {
		t.Errorf("driver 1 (y) flip = %d, want -1", c.DriverFlip[1])
	}
	if c.AxisToDriver[axis.Y]&(1<<1) == 0 {
		t.Error("Y axis not mapped to driver 1")
	}
	if c.AxisToDriver[axis.E]&(1<<3) == 0 {
		t.Error("E axis not mapped to driver 3")
	}
	if c.DriverFlip[2] != 0 {
		t.Errorf("driver 2 skipped by '_' should have no flip set, got %d", c.DriverFlip[2])
	}
}

func TestNewIllegalAxisMappingCharacter(t *testing.T) {
	mc := baseMachineConfig()
	mc.AxisMapping = "XQZ"
	if _, err := New(mc); err == nil {
		t.Fatal("New: want error for illegal axis mapping character, got nil")
	}
}

func TestNewMaxEndstopRequiresRange(t *testing.T) {
	mc := baseMachineConfig()
	mc.Axes[axis.Y].MoveRangeMM = 0
	mc.MaxEndswitch = "_Y"
	if _, err := New(mc); err == nil {
		t.Fatal("New: want error for max endstop without configured range, got nil")
	}
}

func TestNewBothEndsHomingConflict(t *testing.T) {
	mc := baseMachineConfig()
	mc.Axes[axis.Z].MoveRangeMM = 200
	mc.MinEndswitch = "Z"
	mc.MaxEndswitch = "Z"
	if _, err := New(mc); err == nil {
		t.Fatal("New: want error when both endstops of an axis are flagged for homing, got nil")
	}
}

func TestConstructionDiagnosticsOneLinePerMappedAxis(t *testing.T) {
	c, err := New(baseMachineConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lines := c.ConstructionDiagnostics()
	mapped := 0
	for a := axis.Axis(0); a < axis.Count; a++ {
		if c.IsAxisMapped(a) {
			mapped++
		}
	}
	if len(lines) != mapped {
		t.Errorf("got %d diagnostic lines, want %d (one per mapped axis)", len(lines), mapped)
	}
	for _, line := range lines {
		if line == "" {
			t.Error("empty construction diagnostic line")
		}
	}
}

func TestNewEndswitchPolarity(t *testing.T) {
	mc := baseMachineConfig()
	mc.EndswitchPolarity = "H_L"
	mc.MinEndswitch = "XYZ"
	c, err := New(mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.MinEndstop[axis.X].TriggerValue {
		t.Error("X min endstop should trigger high")
	}
	if c.MinEndstop[axis.Z].TriggerValue {
		t.Error("Z min endstop should trigger low")
	}
}
