/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package tag packs the #tag directives of a dialogue line into a bit set.
//
// The registry is fixed. Each Field owns a range of bits; each Entry writes a
// value into one Field. Entries of an exclusive field share the range and at
// most one of them may be present. Statement entries keep their expression
// text on the Tag for evaluation at run time.
package tag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"talkbox/internal/errs"
)

// ErrConflict is returned when two tags claim the same field.
var ErrConflict = errors.New("tag conflict")

// Requirement is what payload an Entry expects after its ':'.
type Requirement int

const (
	None Requirement = iota
	WantsNumber
	WantsStatement
)

type Field struct {
	Name      string
	shift     uint
	width     uint
	Exclusive bool
}

func (f *Field) mask() uint32 { return (1<<f.width - 1) << f.shift }

// Max is the largest number the field can hold.
func (f *Field) Max() uint32 { return 1<<f.width - 1 }

type Entry struct {
	Name    string
	Field   *Field
	Value   uint32
	Require Requirement
	Default bool
	slot    int
}

var (
	LastField  = &Field{Name: "last", shift: 0, width: 1}
	HideField  = &Field{Name: "hide", shift: 1, width: 1}
	LockField  = &Field{Name: "lock", shift: 2, width: 1}
	SpeedField = &Field{Name: "speed", shift: 3, width: 2, Exclusive: true}
	ImageField = &Field{Name: "image", shift: 12, width: 4}
)

var (
	Last  = &Entry{Name: "last", Field: LastField, Value: 1}
	Hide  = &Entry{Name: "hide", Field: HideField, Value: 1, Require: WantsStatement, slot: 0}
	Lock  = &Entry{Name: "lock", Field: LockField, Value: 1, Require: WantsStatement, slot: 1}
	Slow  = &Entry{Name: "slow", Field: SpeedField, Value: 1}
	Norm  = &Entry{Name: "norm", Field: SpeedField, Value: 2, Default: true}
	Fast  = &Entry{Name: "fast", Field: SpeedField, Value: 3}
	Image = &Entry{Name: "image", Field: ImageField, Require: WantsNumber}
)

const statementSlots = 2

var registry = map[string]*Entry{}

// Entries lists the registry in declaration order.
var Entries = []*Entry{Last, Hide, Lock, Slow, Norm, Fast, Image}

func init() {
	for _, e := range Entries {
		registry[e.Name] = e
	}
}

// Lookup finds an entry by case-insensitive name.
func Lookup(name string) (*Entry, bool) {
	e, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// Tag is an immutable packed tag set. Tags compare with ==.
type Tag struct {
	bits uint32
	stmt [statementSlots]string
}

// Bits exposes the packed value.
func (t Tag) Bits() uint32 { return t.bits }

// Build packs a list of "name" or "name:value" strings. Defaults are applied
// after the explicit entries to every field left untouched.
func Build(list []string) (Tag, error) {
	var (
		t    Tag
		seen uint32
	)
	for _, raw := range list {
		name, payload, hasPayload := strings.Cut(strings.TrimSpace(raw), ":")
		e, ok := Lookup(name)
		if !ok {
			return Tag{}, fmt.Errorf("%w: unknown tag %q", errs.ErrParse, name)
		}
		m := e.Field.mask()
		if seen&m != 0 {
			return Tag{}, fmt.Errorf("%w: %w: %q collides with an earlier %s tag", errs.ErrParse, ErrConflict, raw, e.Field.Name)
		}
		v := e.Value
		switch e.Require {
		case None:
			if hasPayload {
				return Tag{}, fmt.Errorf("%w: tag %q takes no value", errs.ErrParse, e.Name)
			}
		case WantsNumber:
			n, err := strconv.ParseUint(strings.TrimSpace(payload), 10, 32)
			if !hasPayload || err != nil {
				return Tag{}, fmt.Errorf("%w: tag %q wants a number, got %q", errs.ErrParse, e.Name, payload)
			}
			if n > uint64(e.Field.Max()) {
				return Tag{}, fmt.Errorf("%w: tag %q value %d exceeds %d", errs.ErrParse, e.Name, n, e.Field.Max())
			}
			v = uint32(n)
		case WantsStatement:
			s := strings.TrimSpace(payload)
			if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
				s = strings.TrimSpace(s[1 : len(s)-1])
			}
			if !hasPayload || s == "" {
				return Tag{}, fmt.Errorf("%w: tag %q wants a statement", errs.ErrParse, e.Name)
			}
			t.stmt[e.slot] = s
		}
		seen |= m
		t.bits |= v << e.Field.shift
	}
	for _, e := range Entries {
		if e.Default && seen&e.Field.mask() == 0 {
			t.bits |= e.Value << e.Field.shift
			seen |= e.Field.mask()
		}
	}
	return t, nil
}

// MustBuild is Build for literals known to be valid.
func MustBuild(list ...string) Tag {
	t, err := Build(list)
	if err != nil {
		panic(err)
	}
	return t
}

// Value returns the number held by f.
func (t Tag) Value(f *Field) uint32 { return (t.bits & f.mask()) >> f.shift }

// Has reports whether e is present. Number entries are present when nonzero.
func (t Tag) Has(e *Entry) bool {
	if e.Require == WantsNumber {
		return t.Value(e.Field) != 0
	}
	return t.Value(e.Field) == e.Value
}

// Statement returns the expression attached to a statement entry.
func (t Tag) Statement(e *Entry) string {
	if e.Require != WantsStatement || !t.Has(e) {
		return ""
	}
	return t.stmt[e.slot]
}

// AutoAdvance reports whether the line continues without waiting.
func (t Tag) AutoAdvance() bool { return t.Has(Last) }

type Speed int

const (
	SpeedUnset Speed = iota
	SpeedSlow
	SpeedNorm
	SpeedFast
)

func (s Speed) String() string {
	switch s {
	case SpeedSlow:
		return "slow"
	case SpeedNorm:
		return "norm"
	case SpeedFast:
		return "fast"
	}
	return "unset"
}

func (t Tag) Speed() Speed { return Speed(t.Value(SpeedField)) }

func (t Tag) Image() int { return int(t.Value(ImageField)) }

// String renders the tag back in source form, defaults included.
func (t Tag) String() string {
	var parts []string
	for _, e := range Entries {
		if !t.Has(e) {
			continue
		}
		switch e.Require {
		case WantsNumber:
			parts = append(parts, fmt.Sprintf("#%s:%d", e.Name, t.Value(e.Field)))
		case WantsStatement:
			parts = append(parts, fmt.Sprintf("#%s:{%s}", e.Name, t.Statement(e)))
		default:
			parts = append(parts, "#"+e.Name)
		}
	}
	return strings.Join(parts, " ")
}
