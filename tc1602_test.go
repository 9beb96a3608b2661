// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tc1602

import (
	"errors"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/display/displaytest"
	"periph.io/x/devices/v3/tc1602/lcdtest"
)

func getLCD(t *testing.T) (*Dev, *lcdtest.LCD) {
	t.Helper()
	sim := lcdtest.New(nil)
	dev, err := New(Pins{RS: sim.RS, EN: sim.EN, D4: sim.D4, D5: sim.D5, D6: sim.D6, D7: sim.D7},
		&Opts{Timebase: sim})
	if err != nil {
		t.Fatal(err)
	}
	return dev, sim
}

// checkContract fails the test if the emulated controller saw any timing or
// line stability violation.
func checkContract(t *testing.T, sim *lcdtest.LCD) {
	t.Helper()
	if sim.BusyViolations != 0 {
		t.Errorf("controller latched %d transmissions while busy", sim.BusyViolations)
	}
	if sim.ShortPulses != 0 {
		t.Errorf("%d enable pulses below the minimum width", sim.ShortPulses)
	}
	if sim.StabilityViolations != 0 {
		t.Errorf("%d line edits while the enable strobe was high", sim.StabilityViolations)
	}
}

func nibbles(ops []lcdtest.Op) []byte {
	out := make([]byte, len(ops))
	for i, op := range ops {
		out[i] = op.Nibble
	}
	return out
}

func TestInitSequence(t *testing.T) {
	_, sim := getLCD(t)

	// Three forced resets as raw nibbles, the 4 bit mode switch, then the
	// full two-nibble commands.
	want := []byte{0x3, 0x3, 0x3, 0x2, 0x2, 0x8, 0x0, 0x8, 0x0, 0x1, 0x0, 0x6, 0x0, 0xC}
	got := nibbles(sim.Ops)
	if len(got) != len(want) {
		t.Fatalf("init emitted %d nibbles %#v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("init nibble %d = %#x, want %#x", i, got[i], want[i])
		}
		if sim.Ops[i].Data {
			t.Errorf("init nibble %d latched with register select = data", i)
		}
	}

	wantExecs := []byte{0x30, 0x30, 0x30, 0x20, 0x28, 0x08, 0x01, 0x06, 0x0C}
	if len(sim.Execs) != len(wantExecs) {
		t.Fatalf("init executed %d instructions, want %d", len(sim.Execs), len(wantExecs))
	}
	for i, e := range sim.Execs {
		if e.Byte != wantExecs[i] || e.Data {
			t.Errorf("init instruction %d = {%#x data=%v}, want {%#x data=false}", i, e.Byte, e.Data, wantExecs[i])
		}
	}

	if len(sim.Delays) == 0 || sim.Delays[0] < 50*time.Millisecond {
		t.Error("init must wait at least 50ms for power-on stabilization before the first transmission")
	}
	if !sim.FourBit() {
		t.Error("controller still in 8 bit mode after init")
	}
	if !sim.On() {
		t.Error("display off after init")
	}
	if visible, blink := sim.Cursor(); visible || blink {
		t.Errorf("cursor visible=%v blink=%v after init, want hidden", visible, blink)
	}
	checkContract(t, sim)
}

func TestSendCommandEncoding(t *testing.T) {
	dev, sim := getLCD(t)
	for _, cmd := range []byte{0x80, 0xA7, 0xFF, 0x12} {
		sim.Reset()
		if err := dev.SendCommand(cmd); err != nil {
			t.Fatal(err)
		}
		got := nibbles(sim.Ops)
		if len(got) != 2 || got[0] != (cmd>>4)&0xF || got[1] != cmd&0xF {
			t.Errorf("SendCommand(%#x) emitted nibbles %#v, want [%#x %#x]", cmd, got, (cmd>>4)&0xF, cmd&0xF)
		}
		for i, op := range sim.Ops {
			if op.Data {
				t.Errorf("SendCommand(%#x) nibble %d with register select = data", cmd, i)
			}
		}
		checkContract(t, sim)
	}
}

func TestSendDataEncoding(t *testing.T) {
	dev, sim := getLCD(t)
	for _, b := range []byte{'A', 0x00, 0xF0, 0x5A} {
		sim.Reset()
		if err := dev.SendData(b); err != nil {
			t.Fatal(err)
		}
		got := nibbles(sim.Ops)
		if len(got) != 2 || got[0] != (b>>4)&0xF || got[1] != b&0xF {
			t.Errorf("SendData(%#x) emitted nibbles %#v, want [%#x %#x]", b, got, (b>>4)&0xF, b&0xF)
		}
		for i, op := range sim.Ops {
			if !op.Data {
				t.Errorf("SendData(%#x) nibble %d with register select = instruction", b, i)
			}
		}
		checkContract(t, sim)
	}
}

func TestSetCursor(t *testing.T) {
	dev, sim := getLCD(t)
	for col := 0; col < 16; col++ {
		for row := 0; row < 2; row++ {
			sim.Reset()
			if err := dev.SetCursor(row, col); err != nil {
				t.Fatal(err)
			}
			want := byte(0x80 | col)
			if row == 1 {
				want = byte(0xC0 | col)
			}
			if len(sim.Execs) != 1 || sim.Execs[0].Byte != want || sim.Execs[0].Data {
				t.Errorf("SetCursor(%d,%d) executed %+v, want command %#x", row, col, sim.Execs, want)
			}
		}
	}
	checkContract(t, sim)
}

// Rows outside 0 and 1 fall through the address computation and send the
// bare column byte, without the DDRAM address bit. Longstanding behavior;
// callers own the row range.
func TestSetCursorRowFallthrough(t *testing.T) {
	dev, sim := getLCD(t)
	for _, row := range []int{-1, 2, 7} {
		sim.Reset()
		if err := dev.SetCursor(row, 0x05); err != nil {
			t.Fatal(err)
		}
		if len(sim.Execs) != 1 || sim.Execs[0].Byte != 0x05 || sim.Execs[0].Data {
			t.Errorf("SetCursor(%d, 5) executed %+v, want bare command 0x05", row, sim.Execs)
		}
	}
}

func TestClear(t *testing.T) {
	dev, sim := getLCD(t)
	if _, err := dev.WriteString("leftover"); err != nil {
		t.Fatal(err)
	}
	sim.Reset()
	if err := dev.Clear(); err != nil {
		t.Fatal(err)
	}
	if len(sim.Execs) != 1 || sim.Execs[0].Byte != 0x01 {
		t.Fatalf("Clear() executed %+v, want command 0x01", sim.Execs)
	}
	if last := sim.Delays[len(sim.Delays)-1]; last < 2*time.Millisecond {
		t.Errorf("Clear() waited %v after the command, want at least 2ms", last)
	}
	if got := sim.Text()[0]; got != strings.Repeat(" ", 16) {
		t.Errorf("row 0 after Clear() = %q, want blanks", got)
	}
	// The clear execution window is 1.52ms; a follow-up command right after
	// proves the driver waited it out.
	if err := dev.SendCommand(0x80); err != nil {
		t.Fatal(err)
	}
	checkContract(t, sim)
}

func TestHome(t *testing.T) {
	dev, sim := getLCD(t)
	if err := dev.SetCursor(1, 7); err != nil {
		t.Fatal(err)
	}
	sim.Reset()
	if err := dev.Home(); err != nil {
		t.Fatal(err)
	}
	if len(sim.Execs) != 1 || sim.Execs[0].Byte != 0x02 {
		t.Fatalf("Home() executed %+v, want command 0x02", sim.Execs)
	}
	if got := sim.Addr(); got != 0 {
		t.Errorf("address counter after Home() = %#x, want 0", got)
	}
	if err := dev.SendCommand(0x80); err != nil {
		t.Fatal(err)
	}
	checkContract(t, sim)
}

func TestWriteString(t *testing.T) {
	dev, sim := getLCD(t)
	sim.Reset()
	n, err := dev.WriteString("HI")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("WriteString(\"HI\") = %d, want 2", n)
	}
	// Two nibble transmissions per character, high then low, register
	// select = data throughout.
	want := []byte{0x4, 0x8, 0x4, 0x9}
	got := nibbles(sim.Ops)
	if len(got) != len(want) {
		t.Fatalf("WriteString(\"HI\") emitted %d nibbles %#v, want 4", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] || !sim.Ops[i].Data {
			t.Errorf("nibble %d = {%#x data=%v}, want {%#x data=true}", i, got[i], sim.Ops[i].Data, want[i])
		}
	}
	if row := sim.Text()[0]; row != "HI"+strings.Repeat(" ", 14) {
		t.Errorf("row 0 = %q, want %q", row, "HI              ")
	}
	checkContract(t, sim)
}

func TestWriteStringStopsAtNul(t *testing.T) {
	dev, sim := getLCD(t)
	n, err := dev.WriteString("OK\x00IGNORED")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("WriteString with embedded NUL wrote %d characters, want 2", n)
	}
	if row := sim.Text()[0]; !strings.HasPrefix(row, "OK ") {
		t.Errorf("row 0 = %q, want to start with %q", row, "OK ")
	}
}

func TestTwoRows(t *testing.T) {
	dev, sim := getLCD(t)
	if _, err := dev.WriteString("Hello"); err != nil {
		t.Fatal(err)
	}
	if err := dev.MoveTo(2, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.WriteString("World"); err != nil {
		t.Fatal(err)
	}
	rows := sim.Text()
	if rows[0] != "Hello           " {
		t.Errorf("row 0 = %q", rows[0])
	}
	if rows[1] != "World           " {
		t.Errorf("row 1 = %q", rows[1])
	}
	checkContract(t, sim)
}

func TestMoveTo(t *testing.T) {
	dev, sim := getLCD(t)
	for _, tc := range []struct {
		row, col int
		wantErr  bool
		wantCmd  byte
	}{
		{1, 1, false, 0x80},
		{1, 16, false, 0x8F},
		{2, 1, false, 0xC0},
		{2, 16, false, 0xCF},
		{0, 1, true, 0},
		{3, 1, true, 0},
		{1, 0, true, 0},
		{1, 17, true, 0},
	} {
		sim.Reset()
		err := dev.MoveTo(tc.row, tc.col)
		if tc.wantErr {
			if err == nil {
				t.Errorf("MoveTo(%d,%d) expected an error", tc.row, tc.col)
			}
			if len(sim.Ops) != 0 {
				t.Errorf("MoveTo(%d,%d) transmitted despite the range error", tc.row, tc.col)
			}
			continue
		}
		if err != nil {
			t.Errorf("MoveTo(%d,%d): %v", tc.row, tc.col, err)
			continue
		}
		if len(sim.Execs) != 1 || sim.Execs[0].Byte != tc.wantCmd {
			t.Errorf("MoveTo(%d,%d) executed %+v, want command %#x", tc.row, tc.col, sim.Execs, tc.wantCmd)
		}
	}
}

func TestMove(t *testing.T) {
	dev, sim := getLCD(t)
	sim.Reset()
	if err := dev.Move(display.Forward); err != nil {
		t.Fatal(err)
	}
	if err := dev.Move(display.Backward); err != nil {
		t.Fatal(err)
	}
	if len(sim.Execs) != 2 || sim.Execs[0].Byte != 0x14 || sim.Execs[1].Byte != 0x10 {
		t.Errorf("Move emitted %+v, want commands 0x14, 0x10", sim.Execs)
	}
	if err := dev.Move(display.Up); !errors.Is(err, display.ErrNotImplemented) {
		t.Errorf("Move(Up) = %v, want ErrNotImplemented", err)
	}
	checkContract(t, sim)
}

func TestCursorModes(t *testing.T) {
	dev, sim := getLCD(t)
	for _, tc := range []struct {
		mode    display.CursorMode
		wantCmd byte
	}{
		{display.CursorUnderline, 0x0E},
		{display.CursorBlink, 0x0D},
		{display.CursorOff, 0x0C},
	} {
		sim.Reset()
		if err := dev.Cursor(tc.mode); err != nil {
			t.Fatal(err)
		}
		if len(sim.Execs) != 1 || sim.Execs[0].Byte != tc.wantCmd {
			t.Errorf("Cursor(%d) executed %+v, want command %#x", tc.mode, sim.Execs, tc.wantCmd)
		}
	}
	if err := dev.Cursor(display.CursorMode(42)); err == nil {
		t.Error("Cursor(42) expected an error")
	}
	checkContract(t, sim)
}

func TestDisplayOnOff(t *testing.T) {
	dev, sim := getLCD(t)
	if err := dev.Display(false); err != nil {
		t.Fatal(err)
	}
	if sim.On() {
		t.Error("display still on after Display(false)")
	}
	if err := dev.Display(true); err != nil {
		t.Fatal(err)
	}
	if !sim.On() {
		t.Error("display off after Display(true)")
	}
	checkContract(t, sim)
}

func TestAutoScroll(t *testing.T) {
	dev, _ := getLCD(t)
	if err := dev.AutoScroll(true); !errors.Is(err, display.ErrNotImplemented) {
		t.Errorf("AutoScroll = %v, want ErrNotImplemented", err)
	}
}

func TestHalt(t *testing.T) {
	dev, sim := getLCD(t)
	if _, err := dev.WriteString("bye"); err != nil {
		t.Fatal(err)
	}
	sim.Reset()
	if err := dev.Halt(); err != nil {
		t.Fatal(err)
	}
	if sim.On() {
		t.Error("display still on after Halt()")
	}
	if got := sim.Text()[0]; got != strings.Repeat(" ", 16) {
		t.Errorf("row 0 after Halt() = %q, want blanks", got)
	}
	checkContract(t, sim)
}

func TestNewValidation(t *testing.T) {
	sim := lcdtest.New(nil)
	if _, err := New(Pins{RS: sim.RS, EN: sim.EN}, nil); err == nil {
		t.Error("New with missing data pins expected an error")
	}
	pins := Pins{RS: sim.RS, EN: sim.EN, D4: sim.D4, D5: sim.D5, D6: sim.D6, D7: sim.D7}
	if _, err := New(pins, &Opts{Rows: 3, Timebase: sim}); err == nil {
		t.Error("New with 3 rows expected an error")
	}
	if _, err := New(pins, &Opts{Cols: 240, Timebase: sim}); err == nil {
		t.Error("New with 240 columns expected an error")
	}
}

func TestGeometry(t *testing.T) {
	dev, _ := getLCD(t)
	if dev.Rows() != 2 || dev.Cols() != 16 {
		t.Errorf("geometry %dx%d, want 16x2", dev.Cols(), dev.Rows())
	}
	if dev.MinRow() != 1 || dev.MinCol() != 1 {
		t.Error("MoveTo coordinates are 1-based")
	}
}

func TestStringer(t *testing.T) {
	dev, _ := getLCD(t)
	if got := dev.String(); got != "tc1602.Dev{16x2}" {
		t.Errorf("String() = %q", got)
	}
}

func TestTextDisplayInterface(t *testing.T) {
	dev, sim := getLCD(t)
	errs := displaytest.TestTextDisplay(dev, false)
	for _, err := range errs {
		if !errors.Is(err, display.ErrNotImplemented) {
			t.Error(err)
		}
	}
	checkContract(t, sim)
}
