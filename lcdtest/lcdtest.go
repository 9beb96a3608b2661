// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcdtest emulates the controller end of an HD44780-compatible
// character LCD bus, so drivers can be exercised without hardware.
//
// LCD exposes fake GPIO pins for the six bus lines and a simulated Timebase.
// It latches the data lines on the falling edge of the enable strobe exactly
// like the real chip: it powers up in 8 bit mode, so single-nibble writes
// execute as instructions with the low four bits unconnected, until a
// function set instruction switches it to 4 bit mode and nibbles start
// pairing up, high nibble first.
//
// Beyond decoding the instruction set into a DDRAM model, it checks the
// electrical contract and counts violations: transmissions latched while a
// previous instruction is still executing, enable pulses shorter than the
// minimum width, and data or register-select edits while the strobe is high.
package lcdtest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Instruction execution times. Clear and return-home are the long
// instruction class; the very first instruction after power-on needs the
// datasheet's 4.1ms reset wait, and nothing may be latched during the
// power-on stabilization window.
const (
	execShort    = 37 * time.Microsecond
	execLong     = 1520 * time.Microsecond
	execReset    = 4100 * time.Microsecond
	powerOnBusy  = 15 * time.Millisecond
	defaultPulse = 450 * time.Nanosecond
)

// Op is one latched nibble transmission.
type Op struct {
	Data   bool // register select at the latch edge
	Nibble byte
}

// Exec is one executed instruction or data byte. While the emulated
// controller is in 8 bit mode every latch executes immediately, with the
// four unconnected low data lines reading as zero.
type Exec struct {
	Data bool
	Byte byte
}

// Opts is the configuration for the emulated module.
type Opts struct {
	Rows int // default 2
	Cols int // default 16

	// MinPulse is the enforced minimum enable pulse width. Defaults to the
	// datasheet floor of 450ns.
	MinPulse time.Duration
}

// LCD is an emulated HD44780-compatible module behind a 4 bit bus.
//
// The exported pin fields implement gpio.PinOut and are safe for concurrent
// use. Delay implements the driver's Timebase on a virtual clock: simulated
// time only advances through it, so recorded timings are deterministic.
type LCD struct {
	RS gpio.PinOut
	EN gpio.PinOut
	D4 gpio.PinOut
	D5 gpio.PinOut
	D6 gpio.PinOut
	D7 gpio.PinOut

	// Recordings and contract violation counters. Read them after the
	// driving code has finished; Reset clears them.
	Ops                 []Op
	Execs               []Exec
	Delays              []time.Duration
	BusyViolations      int
	ShortPulses         int
	StabilityViolations int

	mu       sync.Mutex
	rows     int
	cols     int
	minPulse time.Duration

	// bus line state
	rs   gpio.Level
	en   gpio.Level
	data [4]gpio.Level // index 0 = D4 (LSB)

	// virtual time
	now       time.Duration
	busyUntil time.Duration
	enRose    time.Duration
	sawFirst  bool

	// interface state
	fourBit  bool
	haveHigh bool
	high     byte

	// controller state
	ddram        [128]byte
	cgram        [64]byte
	inCGRAM      bool
	ac           byte
	cgramAC      byte
	increment    bool
	shiftOnWrite bool
	shift        int
	on           bool
	cursor       bool
	blink        bool
	twoLine      bool
}

const (
	lineRS = iota
	lineEN
	lineD4
	lineD5
	lineD6
	lineD7
)

// New returns an emulated module in its power-on state: 8 bit interface,
// one line, display off, DDRAM blank, busy for the power-on stabilization
// window.
func New(opts *Opts) *LCD {
	if opts == nil {
		opts = &Opts{}
	}
	l := &LCD{
		rows:      opts.Rows,
		cols:      opts.Cols,
		minPulse:  opts.MinPulse,
		busyUntil: powerOnBusy,
		increment: true,
	}
	if l.rows == 0 {
		l.rows = 2
	}
	if l.cols == 0 {
		l.cols = 16
	}
	if l.minPulse <= 0 {
		l.minPulse = defaultPulse
	}
	for i := range l.ddram {
		l.ddram[i] = ' '
	}
	l.RS = &pin{lcd: l, name: "RS", num: 0, line: lineRS}
	l.EN = &pin{lcd: l, name: "EN", num: 1, line: lineEN}
	l.D4 = &pin{lcd: l, name: "D4", num: 2, line: lineD4}
	l.D5 = &pin{lcd: l, name: "D5", num: 3, line: lineD5}
	l.D6 = &pin{lcd: l, name: "D6", num: 4, line: lineD6}
	l.D7 = &pin{lcd: l, name: "D7", num: 5, line: lineD7}
	return l
}

// Delay advances the virtual clock. It satisfies the driver's Timebase and
// never sleeps.
func (l *LCD) Delay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Delays = append(l.Delays, d)
	l.now += d
}

// Reset clears the recordings and violation counters. The controller state
// is left alone.
func (l *LCD) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Ops = nil
	l.Execs = nil
	l.Delays = nil
	l.BusyViolations = 0
	l.ShortPulses = 0
	l.StabilityViolations = 0
}

// Text returns the visible window, one string per row, accounting for the
// current display shift. Non-printable character codes render as blanks.
func (l *LCD) Text() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows := make([]string, l.rows)
	for r := range rows {
		var sb strings.Builder
		for c := 0; c < l.cols; c++ {
			ch := l.ddram[l.cellAddr(r, c)]
			if ch < 0x20 || ch > 0x7e {
				ch = ' '
			}
			sb.WriteByte(ch)
		}
		rows[r] = sb.String()
	}
	return rows
}

// On reports whether the display is switched on.
func (l *LCD) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Cursor reports the cursor visibility and blink flags.
func (l *LCD) Cursor() (visible, blink bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor, l.blink
}

// Addr returns the DDRAM address counter.
func (l *LCD) Addr() byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ac
}

// FourBit reports whether the function set handshake has switched the
// interface to 4 bit mode.
func (l *LCD) FourBit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fourBit
}

// Rows returns the number of rows of the emulated module.
func (l *LCD) Rows() int {
	return l.rows
}

// Cols returns the number of columns of the emulated module.
func (l *LCD) Cols() int {
	return l.cols
}

// CursorCell returns the visible cell the address counter points at. ok is
// false when the counter sits outside the visible window.
func (l *LCD) CursorCell() (row, col int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bases := [2]byte{0x00, 0x40}
	for r := 0; r < l.rows; r++ {
		base := bases[r]
		if l.ac >= base && l.ac < base+40 {
			c := (int(l.ac-base) - l.shift + 40) % 40
			if c < l.cols {
				return r, c, true
			}
			return 0, 0, false
		}
	}
	return 0, 0, false
}

// Now returns the current virtual time.
func (l *LCD) Now() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

func (l *LCD) String() string {
	return fmt.Sprintf("lcdtest.LCD{%dx%d}", l.cols, l.rows)
}

// cellAddr maps a visible cell to its DDRAM address. Each row is a 40 byte
// circular window; row 1 starts at 0x40.
func (l *LCD) cellAddr(row, col int) byte {
	base := 0
	if row == 1 {
		base = 0x40
	}
	return byte(base + (col+l.shift)%40)
}

// write is the single entry point for all pin writes.
func (l *LCD) write(line int, lv gpio.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if line == lineEN {
		switch {
		case bool(lv && !l.en):
			l.enRose = l.now
		case bool(!lv && l.en):
			if l.now-l.enRose < l.minPulse {
				l.ShortPulses++
			}
			l.latch()
		}
		l.en = lv
		return
	}
	var old *gpio.Level
	switch line {
	case lineRS:
		old = &l.rs
	default:
		old = &l.data[line-lineD4]
	}
	if *old != lv && l.en {
		// The controller samples while the strobe is high; edits in that
		// window corrupt the transfer.
		l.StabilityViolations++
	}
	*old = lv
}

// latch happens on the falling edge of the enable strobe.
func (l *LCD) latch() {
	nib := l.busNibble()
	l.Ops = append(l.Ops, Op{Data: bool(l.rs), Nibble: nib})
	if l.now < l.busyUntil {
		l.BusyViolations++
	}
	if !l.fourBit {
		// 8 bit mode with only the high four data lines wired: the low four
		// read as zero.
		l.exec(nib<<4, bool(l.rs))
		return
	}
	if !l.haveHigh {
		l.high = nib
		l.haveHigh = true
		return
	}
	l.haveHigh = false
	l.exec(l.high<<4|nib, bool(l.rs))
}

func (l *LCD) busNibble() byte {
	var n byte
	if l.data[3] {
		n |= 0x08
	}
	if l.data[2] {
		n |= 0x04
	}
	if l.data[1] {
		n |= 0x02
	}
	if l.data[0] {
		n |= 0x01
	}
	return n
}

// exec runs one assembled byte, datasheet p11 instruction set.
func (l *LCD) exec(b byte, data bool) {
	l.Execs = append(l.Execs, Exec{Data: data, Byte: b})
	busy := execShort
	switch {
	case data:
		l.writeRAM(b)
	case b&0x80 != 0: // set DDRAM address
		l.inCGRAM = false
		l.ac = b & 0x7f
	case b&0x40 != 0: // set CGRAM address
		l.inCGRAM = true
		l.cgramAC = b & 0x3f
	case b&0x20 != 0: // function set
		l.fourBit = b&0x10 == 0
		l.haveHigh = false
		l.twoLine = b&0x08 != 0
		if !l.sawFirst {
			busy = execReset
		}
	case b&0x10 != 0: // cursor or display shift
		right := b&0x04 != 0
		if b&0x08 != 0 {
			l.shiftDisplay(right)
		} else {
			l.moveAC(right)
		}
	case b&0x08 != 0: // display control
		l.on = b&0x04 != 0
		l.cursor = b&0x02 != 0
		l.blink = b&0x01 != 0
	case b&0x04 != 0: // entry mode set
		l.increment = b&0x02 != 0
		l.shiftOnWrite = b&0x01 != 0
	case b&0x02 != 0: // return home
		l.ac = 0
		l.inCGRAM = false
		l.shift = 0
		busy = execLong
	case b&0x01 != 0: // clear display
		for i := range l.ddram {
			l.ddram[i] = ' '
		}
		l.ac = 0
		l.inCGRAM = false
		l.shift = 0
		l.increment = true
		busy = execLong
	}
	l.sawFirst = true
	l.busyUntil = l.now + busy
}

func (l *LCD) writeRAM(b byte) {
	if l.inCGRAM {
		l.cgram[l.cgramAC&0x3f] = b
		if l.increment {
			l.cgramAC = (l.cgramAC + 1) & 0x3f
		} else {
			l.cgramAC = (l.cgramAC - 1) & 0x3f
		}
		return
	}
	l.ddram[l.ac&0x7f] = b
	l.moveAC(l.increment)
	if l.shiftOnWrite {
		l.shiftDisplay(!l.increment)
	}
}

func (l *LCD) shiftDisplay(right bool) {
	if right {
		l.shift = (l.shift + 39) % 40
	} else {
		l.shift = (l.shift + 1) % 40
	}
}

// moveAC advances or retreats the address counter with the two line DDRAM
// wrap: 0x00-0x27 for row 0, 0x40-0x67 for row 1.
func (l *LCD) moveAC(forward bool) {
	if l.twoLine {
		switch {
		case forward && l.ac == 0x27:
			l.ac = 0x40
		case forward && l.ac == 0x67:
			l.ac = 0x00
		case !forward && l.ac == 0x40:
			l.ac = 0x27
		case !forward && l.ac == 0x00:
			l.ac = 0x67
		case forward:
			l.ac++
		default:
			l.ac--
		}
		return
	}
	if forward {
		l.ac = (l.ac + 1) % 80
	} else {
		l.ac = (l.ac + 79) % 80
	}
}

// pin is one emulated bus line.
type pin struct {
	lcd  *LCD
	name string
	num  int
	line int
}

func (p *pin) String() string {
	return fmt.Sprintf("%s(%d)", p.name, p.num)
}

func (p *pin) Halt() error {
	return nil
}

func (p *pin) Name() string {
	return p.name
}

func (p *pin) Number() int {
	return p.num
}

func (p *pin) Function() string {
	return "Out"
}

func (p *pin) Out(l gpio.Level) error {
	p.lcd.write(p.line, l)
	return nil
}

func (p *pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.New("lcdtest: PWM is not supported")
}

var _ gpio.PinOut = &pin{}
