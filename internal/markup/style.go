/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package markup

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"

	"talkbox/internal/errs"
)

// Style is the packed appearance of a span. The low word holds flags and the
// size class; the high word holds the colour as 0xRRGGBBAA.
type Style uint64

const (
	Bold   Style = 1 << 0
	Italic Style = 1 << 1
	Shake  Style = 1 << 4

	sizeShift  = 2
	sizeMask   = Style(3) << sizeShift
	colorShift = 32
	colorMask  = Style(0xffffffff) << colorShift
)

type Size int

const (
	SizeNormal Size = iota
	SizeBig
	SizeSmall
)

// DefaultColor applies to runs that no colour region covers.
var DefaultColor = color.RGBA{A: 0xff}

func sizeStyle(s Size) Style { return Style(s) << sizeShift }

func colorStyle(c color.RGBA) Style {
	v := uint64(c.R)<<24 | uint64(c.G)<<16 | uint64(c.B)<<8 | uint64(c.A)
	return Style(v) << colorShift
}

func (s Style) Bold() bool   { return s&Bold != 0 }
func (s Style) Italic() bool { return s&Italic != 0 }
func (s Style) Shake() bool  { return s&Shake != 0 }
func (s Style) Size() Size   { return Size((s & sizeMask) >> sizeShift) }

func (s Style) Color() color.RGBA {
	v := uint32(uint64(s&colorMask) >> colorShift)
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}

func (s Style) String() string {
	var parts []string
	if s.Bold() {
		parts = append(parts, "bold")
	}
	if s.Italic() {
		parts = append(parts, "italic")
	}
	if s.Shake() {
		parts = append(parts, "shake")
	}
	switch s.Size() {
	case SizeBig:
		parts = append(parts, "big")
	case SizeSmall:
		parts = append(parts, "small")
	}
	c := s.Color()
	parts = append(parts, fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A))
	return strings.Join(parts, "|")
}

// markupStyle resolves the contents of an opening bracket.
func markupStyle(name, value string, hasValue bool) (Style, error) {
	switch name {
	case "bold":
		return flagOnly(name, Bold, hasValue)
	case "italic":
		return flagOnly(name, Italic, hasValue)
	case "shake":
		return flagOnly(name, Shake, hasValue)
	case "size":
		switch strings.ToLower(value) {
		case "big":
			return sizeStyle(SizeBig), nil
		case "small":
			return sizeStyle(SizeSmall), nil
		}
		return 0, fmt.Errorf("%w: unknown size %q", errs.ErrParse, value)
	case "color":
		c, err := ParseColor(value)
		if err != nil {
			return 0, err
		}
		return colorStyle(c), nil
	}
	return 0, fmt.Errorf("%w: unknown markup %q", errs.ErrParse, name)
}

func flagOnly(name string, s Style, hasValue bool) (Style, error) {
	if hasValue {
		return 0, fmt.Errorf("%w: markup %q takes no value", errs.ErrParse, name)
	}
	return s, nil
}

// ParseColor accepts a CSS colour name or 2, 4, 6 or 8 hex digits meaning
// grey, grey with alpha, RGB and RGBA. A leading '#' or "0x" is optional.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := colornames.Map[s]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(s, "#"), "0x")
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || hex == "" {
		return color.RGBA{}, fmt.Errorf("%w: unknown colour %q", errs.ErrParse, s)
	}
	switch len(hex) {
	case 2:
		g := uint8(n)
		return color.RGBA{R: g, G: g, B: g, A: 0xff}, nil
	case 4:
		g := uint8(n >> 8)
		return color.RGBA{R: g, G: g, B: g, A: uint8(n)}, nil
	case 6:
		return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
	case 8:
		return color.RGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
	}
	return color.RGBA{}, fmt.Errorf("%w: colour %q needs 2, 4, 6 or 8 hex digits", errs.ErrParse, s)
}
