/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package vars implements the typed variable store shared by dialogue runners.
// A variable is bound to Number, Bool or String when it is declared and keeps
// that type for its lifetime.
package vars

import (
	"fmt"
	"strconv"
	"strings"

	"talkbox/internal/errs"
)

// Type is the type of a Value.
type Type int

const (
	Number Type = iota
	Bool
	String
)

func (t Type) String() string {
	switch t {
	case Number:
		return "number"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseType maps a declaration type name (case-insensitive) to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number":
		return Number, nil
	case "bool":
		return Bool, nil
	case "string":
		return String, nil
	}
	return 0, fmt.Errorf("%w: unknown type %q", errs.ErrParse, s)
}

// Value is an immutable typed value. The zero Value is the number 0.
type Value struct {
	typ Type
	num float64
	b   bool
	str string
}

func NumberValue(f float64) Value { return Value{typ: Number, num: f} }
func BoolValue(b bool) Value      { return Value{typ: Bool, b: b} }
func StringValue(s string) Value  { return Value{typ: String, str: s} }

func (v Value) Type() Type { return v.typ }

// Number returns the float of a Number value and 0 for any other type.
func (v Value) Number() float64 { return v.num }

// Bool returns the truth of a Bool value and false for any other type.
func (v Value) Bool() bool { return v.b }

// String renders any value as text. Numbers use the shortest decimal form.
func (v Value) String() string {
	switch v.typ {
	case Bool:
		return strconv.FormatBool(v.b)
	case String:
		return v.str
	default:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
}

// Equal reports whether v and o have the same type and value.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Bool:
		return v.b == o.b
	case String:
		return v.str == o.str
	default:
		return v.num == o.num
	}
}

// Coerce converts v to t. Anything coerces to String; otherwise the types must match.
func Coerce(v Value, t Type) (Value, error) {
	if v.typ == t {
		return v, nil
	}
	if t == String {
		return StringValue(v.String()), nil
	}
	return Value{}, fmt.Errorf("%w: cannot use %s %q as %s", errs.ErrType, v.typ, v.String(), t)
}

// ParseLiteral converts literal source text to a value of type t.
// Strings may be bare or double-quoted; quoted strings honour \" and \\.
func ParseLiteral(s string, t Type) (Value, bool) {
	s = strings.TrimSpace(s)
	switch t {
	case Number:
		if !numeric(s) {
			return Value{}, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, false
		}
		return NumberValue(f), true
	case Bool:
		switch strings.ToLower(s) {
		case "true":
			return BoolValue(true), true
		case "false":
			return BoolValue(false), true
		}
		return Value{}, false
	case String:
		if s == "" {
			return Value{}, false
		}
		if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
			return StringValue(unquote(s[1 : len(s)-1])), true
		}
		return StringValue(s), true
	}
	return Value{}, false
}

// numeric accepts plain decimal literals only, so "inf", "nan" and hex floats stay strings.
func numeric(s string) bool {
	if s == "" {
		return false
	}
	digits, dot := 0, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		case (c == '-' || c == '+') && i == 0:
		default:
			return false
		}
	}
	return digits > 0
}

func unquote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
