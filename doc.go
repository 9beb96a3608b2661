// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tc1602 controls a TC1602 character LCD module (HD44780-compatible
// controller, 2 rows by 16 columns) wired over the 4 bit parallel interface.
//
// The driver owns six GPIO output lines: register select, the enable strobe,
// and the four data lines D4-D7. Every byte is split into two nibbles, high
// nibble first, and latched into the controller by pulsing the enable line.
// The bus is write-only; the R/W pin is assumed tied low and the busy flag is
// never read, so all pacing is done with minimum-delay busy waits.
//
// # Hardware Connection
//
//	Display Pin → System Pin
//	VSS         → GND
//	VDD         → 5V
//	RS          → GPIO (any output)
//	RW          → GND (write only)
//	E           → GPIO (any output)
//	DB4..DB7    → GPIO (any outputs)
//	DB0..DB3    → unconnected
//
// # Basic Usage
//
//	if _, err := host.Init(); err != nil {
//		log.Fatal(err)
//	}
//	lcd, err := tc1602.New(tc1602.Pins{
//		RS: gpioreg.ByName("GPIO26"),
//		EN: gpioreg.ByName("GPIO19"),
//		D4: gpioreg.ByName("GPIO13"),
//		D5: gpioreg.ByName("GPIO6"),
//		D6: gpioreg.ByName("GPIO5"),
//		D7: gpioreg.ByName("GPIO11"),
//	}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	_, _ = lcd.WriteString("Hello")
//	_ = lcd.SetCursor(1, 0)
//	_, _ = lcd.WriteString("World")
//
// The delays that pace the bus come from a Timebase. The default busy-waits
// on the monotonic clock; tests substitute a simulated one (see the lcdtest
// subpackage, which emulates the controller end of the bus).
//
// Implements periph.io/x/conn/v3/display.TextDisplay.
//
// # Datasheet
//
// https://cdn-shop.adafruit.com/datasheets/TC1602A-01T.pdf
package tc1602
