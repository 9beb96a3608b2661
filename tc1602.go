// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tc1602

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
)

const packageName = "tc1602"

// ErrNotImplemented is returned for display.TextDisplay features the 4 bit
// parallel wiring cannot provide.
var ErrNotImplemented = fmt.Errorf("%s: %w", packageName, display.ErrNotImplemented)

// Instruction set, datasheet p11. Each instruction is identified by its
// highest set bit; the low bits are the instruction's flags.
const (
	cmdClear       byte = 0x01
	cmdHome        byte = 0x02
	cmdEntryMode   byte = 0x04
	cmdDisplayCtrl byte = 0x08
	cmdShift       byte = 0x10
	cmdFunctionSet byte = 0x20
	cmdSetDDRAM    byte = 0x80

	entryIncrement byte = 0x02
	displayOn      byte = 0x04
	cursorOn       byte = 0x02
	blinkOn        byte = 0x01
	shiftRight     byte = 0x04
	twoLines       byte = 0x08

	// DDRAM address commands for the two rows of a 2x16 module.
	row0 byte = 0x80
	row1 byte = 0xC0
)

// Timing floors, datasheet p7 and p13. The enable pulse width is held after
// both edges of the strobe: once for the pulse itself and once more so the
// controller finishes its internal latch-and-execute cycle before the next
// transmission. Clear and home belong to the long instruction class.
const (
	defaultEnablePulse = 20 * time.Microsecond
	powerOnSettle      = 50 * time.Millisecond
	resetSettle1       = 5 * time.Millisecond
	resetSettle2       = 1 * time.Millisecond
	modeSettle         = 10 * time.Millisecond
	commandSettle      = 1 * time.Millisecond
	clearSettle        = 2 * time.Millisecond
)

// Timebase supplies the delays that pace the bus. Delay returns only after at
// least d has elapsed; there is no upper bound on the overshoot and no
// cancellation. The zero configuration uses a busy wait on the monotonic
// clock so the pulse widths stay accurate at microsecond scale.
type Timebase interface {
	Delay(d time.Duration)
}

// spin busy-waits: reset a stopwatch, then poll it until the requested
// duration has elapsed. It never yields.
type spin struct{}

func (spin) Delay(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}

// Pins names the six output lines driving the display bus. All of them are
// required. D4 carries the least significant bit of each nibble, D7 the most
// significant one.
type Pins struct {
	RS gpio.PinOut // register select: low = instruction, high = display data
	EN gpio.PinOut // enable strobe, latches the data lines into the controller
	D4 gpio.PinOut
	D5 gpio.PinOut
	D6 gpio.PinOut
	D7 gpio.PinOut
}

func (p *Pins) validate() error {
	if p.RS == nil || p.EN == nil || p.D4 == nil || p.D5 == nil || p.D6 == nil || p.D7 == nil {
		return errors.New(packageName + ": all bus pins (RS, EN, D4..D7) must be wired")
	}
	return nil
}

// Opts is the configuration for the display.
type Opts struct {
	Rows int // default 2
	Cols int // default 16

	// EnablePulse is the minimum enable strobe width. The default of 20µs is
	// comfortably above the controller's floor and doubles as the
	// inter-transmission spacing.
	EnablePulse time.Duration

	// Timebase overrides the busy-wait delay source. Mostly useful for
	// testing against an emulated controller.
	Timebase Timebase
}

// Dev is a handle to an initialized display.
//
// Implements periph.io/x/conn/v3/display.TextDisplay.
//
// The bus is write-only: the controller never acknowledges anything, so a
// transmission cannot fail beyond the GPIO writes themselves. The driver
// keeps no mirror of the controller's state except the display/cursor/blink
// bits it needs to recompose the display control instruction.
type Dev struct {
	pins  Pins
	tb    Timebase
	pulse time.Duration
	rows  int
	cols  int

	// mu serializes whole instructions: a byte and its two nibbles must never
	// interleave with another caller's transmission.
	mu     sync.Mutex
	on     bool
	cursor bool
	blink  bool
}

func wrap(err error) error {
	if err == nil || strings.HasPrefix(err.Error(), packageName) {
		return err
	}
	return fmt.Errorf("%s: %w", packageName, err)
}

// New initializes the display behind the given pins and returns a device
// ready for 4 bit, two line operation: display on, cursor off, cursor
// auto-increment.
//
// opts can be nil to use the defaults (2x16, 20µs enable pulse, busy-wait
// delays).
func New(pins Pins, opts *Opts) (*Dev, error) {
	if err := pins.validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Opts{}
	}
	d := &Dev{
		pins:  pins,
		tb:    opts.Timebase,
		pulse: opts.EnablePulse,
		rows:  opts.Rows,
		cols:  opts.Cols,
	}
	if d.tb == nil {
		d.tb = spin{}
	}
	if d.pulse <= 0 {
		d.pulse = defaultEnablePulse
	}
	if d.rows == 0 {
		d.rows = 2
	}
	if d.cols == 0 {
		d.cols = 16
	}
	if d.rows < 1 || d.rows > 2 || d.cols < 1 || d.cols > 40 {
		return nil, fmt.Errorf("%s: unsupported geometry %dx%d", packageName, d.cols, d.rows)
	}
	if err := d.init(); err != nil {
		return nil, wrap(err)
	}
	return d, nil
}

// init brings the controller from its unknown power-on state into 4 bit, two
// line operation, datasheet p13. The first four writes are single raw
// nibbles: the controller is still in 8 bit (or undefined) mode and cannot
// parse a two nibble sequence yet. Nothing is read back; if a delay is cut
// short the resulting state is undefined and undetectable.
func (d *Dev) init() error {
	if err := d.pins.EN.Out(gpio.Low); err != nil {
		return err
	}
	d.tb.Delay(powerOnSettle)
	reset := []struct {
		nibble byte
		settle time.Duration
	}{
		{0x03, resetSettle1}, // force 8 bit mode, attempt 1
		{0x03, resetSettle2}, // attempt 2
		{0x03, modeSettle},   // attempt 3
		{0x02, modeSettle},   // switch to the 4 bit interface
	}
	for _, s := range reset {
		if err := d.transmit(s.nibble, false); err != nil {
			return err
		}
		d.tb.Delay(s.settle)
	}
	lineMode := cmdFunctionSet
	if d.rows > 1 {
		lineMode |= twoLines
	}
	for _, s := range []struct {
		cmd    byte
		settle time.Duration
	}{
		{lineMode, commandSettle},                      // 0x28: function set, 4 bit
		{cmdDisplayCtrl, commandSettle},                // 0x08: display off
		{cmdClear, clearSettle},                        // 0x01: long instruction
		{cmdEntryMode | entryIncrement, commandSettle}, // 0x06: auto-increment
		{cmdDisplayCtrl | displayOn, 0},                // 0x0C: display on, cursor off
	} {
		if err := d.sendCommand(s.cmd); err != nil {
			return err
		}
		d.tb.Delay(s.settle)
	}
	d.on = true
	d.cursor = false
	d.blink = false
	return nil
}

// transmit latches one nibble into the controller. The register select and
// data lines must hold their values from before the enable strobe rises
// until after it has returned low; the controller samples them inside that
// window, so the ordering below is load-bearing.
func (d *Dev) transmit(nibble byte, data bool) error {
	if err := d.pins.RS.Out(gpio.Level(data)); err != nil {
		return err
	}
	// Most significant bit first, one line per bit.
	if err := d.pins.D7.Out(gpio.Level(nibble&0x08 != 0)); err != nil {
		return err
	}
	if err := d.pins.D6.Out(gpio.Level(nibble&0x04 != 0)); err != nil {
		return err
	}
	if err := d.pins.D5.Out(gpio.Level(nibble&0x02 != 0)); err != nil {
		return err
	}
	if err := d.pins.D4.Out(gpio.Level(nibble&0x01 != 0)); err != nil {
		return err
	}
	if err := d.pins.EN.Out(gpio.High); err != nil {
		return err
	}
	d.tb.Delay(d.pulse)
	if err := d.pins.EN.Out(gpio.Low); err != nil {
		return err
	}
	d.tb.Delay(d.pulse)
	return nil
}

// sendCommand transmits one instruction byte, high nibble first. The 4 bit
// interface mandates this order; reversed nibbles parse as garbage commands.
func (d *Dev) sendCommand(cmd byte) error {
	if err := d.transmit((cmd>>4)&0x0f, false); err != nil {
		return err
	}
	return d.transmit(cmd&0x0f, false)
}

// sendData transmits one display data byte, high nibble first.
func (d *Dev) sendData(b byte) error {
	if err := d.transmit((b>>4)&0x0f, true); err != nil {
		return err
	}
	return d.transmit(b&0x0f, true)
}

// SendCommand writes a raw instruction byte to the controller. No validation
// is performed; the caller owns the instruction encoding.
func (d *Dev) SendCommand(cmd byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.sendCommand(cmd))
}

// SendData writes a raw display data byte at the current cursor position.
func (d *Dev) SendData(b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.sendData(b))
}

// Clear clears the display and moves the cursor to the first position.
// Clearing is a long instruction; the controller needs 2ms before it accepts
// the next transmission.
func (d *Dev) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sendCommand(cmdClear); err != nil {
		return wrap(err)
	}
	d.tb.Delay(clearSettle)
	return nil
}

// Home moves the cursor home without clearing. Same long instruction class
// as Clear.
func (d *Dev) Home() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sendCommand(cmdHome); err != nil {
		return wrap(err)
	}
	d.tb.Delay(clearSettle)
	return nil
}

// SetCursor moves the DDRAM write pointer to the 0-based row and column:
// row 0 maps to 0x80|col, row 1 to 0xC0|col. Any other row sends the bare
// column value as an instruction, without the DDRAM address bit; the column
// is not range checked either. Use MoveTo for a validated variant.
func (d *Dev) SetCursor(row, col int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.setCursor(row, col))
}

func (d *Dev) setCursor(row, col int) error {
	addr := byte(col)
	switch row {
	case 0:
		addr |= row0
	case 1:
		addr |= row1
	}
	return d.sendCommand(addr)
}

// MoveTo moves the cursor to the 1-based row and column, range checked
// against the display geometry.
func (d *Dev) MoveTo(row, col int) error {
	if row < d.MinRow() || row > d.rows || col < d.MinCol() || col > d.cols {
		return fmt.Errorf("%s: MoveTo(%d,%d) value out of range", packageName, row, col)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.setCursor(row-1, col-1))
}

// Move shifts the cursor one position forward or backward.
func (d *Dev) Move(dir display.CursorDirection) error {
	val := cmdShift
	switch dir {
	case display.Backward:
	case display.Forward:
		val |= shiftRight
	case display.Down, display.Up:
		fallthrough
	default:
		return ErrNotImplemented
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.sendCommand(val))
}

// Cursor sets the cursor mode. You can pass multiple arguments.
// Cursor(CursorOff, CursorUnderline)
func (d *Dev) Cursor(modes ...display.CursorMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	val := cmdDisplayCtrl
	if d.on {
		val |= displayOn
	}
	cursor, blink := d.cursor, d.blink
	for _, mode := range modes {
		switch mode {
		case display.CursorOff:
			cursor = false
			blink = false
		case display.CursorUnderline:
			cursor = true
			val |= cursorOn
		case display.CursorBlink, display.CursorBlock:
			cursor = true
			blink = true
			val |= blinkOn
		default:
			return fmt.Errorf("%s: unexpected cursor mode: %d", packageName, mode)
		}
	}
	if err := d.sendCommand(val); err != nil {
		return wrap(err)
	}
	d.cursor = cursor
	d.blink = blink
	return nil
}

// Display turns the display on or off without touching its contents.
func (d *Dev) Display(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	val := cmdDisplayCtrl
	if on {
		val |= displayOn
	}
	if d.cursor {
		val |= cursorOn
	}
	if d.blink {
		val |= blinkOn
	}
	if err := d.sendCommand(val); err != nil {
		return wrap(err)
	}
	d.on = on
	return nil
}

// AutoScroll is not supported by this device. Returns
// display.ErrNotImplemented.
func (d *Dev) AutoScroll(enabled bool) error {
	return ErrNotImplemented
}

// Write writes display data bytes at the current cursor position, advancing
// it by one per byte. Writing past the end of a row is left to the
// controller's own wrap behavior.
func (d *Dev) Write(p []byte) (n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range p {
		if err = d.sendData(b); err != nil {
			err = wrap(err)
			return
		}
		n++
	}
	return
}

// WriteString writes the string at the current cursor position. The write
// stops at the first NUL byte, if any.
func (d *Dev) WriteString(text string) (int, error) {
	if i := strings.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	return d.Write([]byte(text))
}

// Rows returns the number of rows the display supports.
func (d *Dev) Rows() int {
	return d.rows
}

// Cols returns the number of columns the display supports.
func (d *Dev) Cols() int {
	return d.cols
}

// MinRow returns the min row position for MoveTo.
func (d *Dev) MinRow() int {
	return 1
}

// MinCol returns the min column position for MoveTo.
func (d *Dev) MinCol() int {
	return 1
}

// Halt clears the display and turns it off.
func (d *Dev) Halt() error {
	if err := d.Clear(); err != nil {
		return err
	}
	return d.Display(false)
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s.Dev{%dx%d}", packageName, d.cols, d.rows)
}

var _ conn.Resource = &Dev{}
var _ display.TextDisplay = &Dev{}
