// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdtest

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"golang.org/x/image/font/gofont/gomono"
)

// Backlight tints used by the terminal and image renderers.
var (
	litBezel  = color.NRGBA{R: 0x52, G: 0xc2, B: 0x34, A: 255}
	darkBezel = color.NRGBA{R: 0x20, G: 0x30, B: 0x1c, A: 255}
)

// Render writes an ANSI rendering of the module to w: the visible window
// framed by blocks tinted like the backlight. A switched off display renders
// as a dark frame around blanks.
func (l *LCD) Render(w io.Writer) error {
	rows := l.Text()
	on := l.On()
	bezel := litBezel
	if !on {
		bezel = darkBezel
	}
	block := ansi256.Default.Block(bezel) + "\033[0m"
	border := strings.Repeat(block, l.cols+2)

	// Built in one buffer so a partial write cannot tear the frame.
	var buf bytes.Buffer
	buf.WriteString("\033[0m")
	buf.WriteString(border)
	buf.WriteString("\n")
	for _, row := range rows {
		if !on {
			row = strings.Repeat(" ", l.cols)
		}
		buf.WriteString(block)
		buf.WriteString(row)
		buf.WriteString(block)
		buf.WriteString("\n")
	}
	buf.WriteString(border)
	buf.WriteString("\n")
	_, err := buf.WriteTo(w)
	return err
}

// Print renders the module to stdout, with ANSI translation on platforms
// that need it.
func (l *LCD) Print() error {
	return l.Render(colorable.NewColorableStdout())
}

// Image draws the module into an image: a bezel, one pad per character cell,
// the visible text, and an underline at the cursor cell when the cursor is
// shown. Useful for snapshotting what a test wrote.
func (l *LCD) Image() (image.Image, error) {
	const (
		cellW  = 14
		cellH  = 22
		margin = 12
	)
	rows := l.Text()
	on := l.On()
	cursor, _ := l.Cursor()

	f, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(f, &truetype.Options{Size: 15})

	dc := gg.NewContext(margin*2+cellW*l.cols, margin*2+cellH*l.rows)
	dc.SetRGB(0.07, 0.09, 0.07)
	dc.Clear()
	dc.SetFontFace(face)
	for r := 0; r < l.rows; r++ {
		for c := 0; c < l.cols; c++ {
			x := float64(margin + c*cellW)
			y := float64(margin + r*cellH)
			if on {
				dc.SetRGB(0.36, 0.78, 0.22)
			} else {
				dc.SetRGB(0.14, 0.20, 0.12)
			}
			dc.DrawRectangle(x+1, y+1, cellW-2, cellH-2)
			dc.Fill()
			if on {
				dc.SetRGB(0.04, 0.10, 0.04)
				dc.DrawStringAnchored(string(rows[r][c]), x+cellW/2, y+cellH/2, 0.5, 0.5)
			}
		}
	}
	if on && cursor {
		if r, c, ok := l.CursorCell(); ok {
			x := float64(margin + c*cellW)
			y := float64(margin + r*cellH)
			dc.SetRGB(0.04, 0.10, 0.04)
			dc.DrawRectangle(x+2, y+cellH-5, cellW-4, 3)
			dc.Fill()
		}
	}
	return dc.Image(), nil
}
