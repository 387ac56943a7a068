/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package expr

import (
	"errors"
	"strings"
	"testing"

	"talkbox/internal/errs"
	"talkbox/internal/vars"
)

func newEval(t *testing.T) *Evaluator {
	t.Helper()
	s := vars.NewStore()
	for name, v := range map[string]vars.Value{
		"gold": vars.NumberValue(5),
		"rich": vars.BoolValue(false),
		"name": vars.StringValue("Ann"),
	} {
		if err := s.Define(name, v); err != nil {
			t.Fatalf("define %s: %v", name, err)
		}
	}
	return New(s)
}

func TestCalculateNumbers(t *testing.T) {
	e := newEval(t)
	cases := map[string]float64{
		"1 + 2 * 3":     7,
		"10 / 4 - 1":    1.5,
		"$gold * 2":     10,
		"-3 + $gold":    2,
		"2 - -2":        4,
		"8 / 2 / 2":     2,
		"1 - 2 - 3":     -4,
		"2 * 3 + 4 * 5": 26,
	}
	for in, want := range cases {
		v, err := e.Calculate(in)
		if err != nil {
			t.Fatalf("Calculate(%q): %v", in, err)
		}
		if v.Type() != vars.Number || v.Number() != want {
			t.Fatalf("Calculate(%q) = %v, want %v", in, v, want)
		}
	}
}

func TestCalculateStrings(t *testing.T) {
	e := newEval(t)
	v, err := e.Calculate(`"Hi, " + $name + " you have " + $gold`)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if v.Type() != vars.String || v.String() != "Hi, Ann you have 5" {
		t.Fatalf("got %q", v.String())
	}
	if _, err := e.Calculate(`$name * 2`); !errors.Is(err, errs.ErrType) {
		t.Fatalf("want type error, got %v", err)
	}
	v, err = e.Calculate(`"a + b"`)
	if err != nil || v.String() != "a + b" {
		t.Fatalf("quoted operator split: %v %v", v, err)
	}
}

func TestCalculateBoolRejectsOperators(t *testing.T) {
	e := newEval(t)
	for _, in := range []string{"true + 1", "$rich * 2", "true - false"} {
		if _, err := e.Calculate(in); !errors.Is(err, errs.ErrType) {
			t.Fatalf("Calculate(%q): want type error, got %v", in, err)
		}
	}
	v, err := e.Calculate("$rich")
	if err != nil || v.Type() != vars.Bool {
		t.Fatalf("bare bool: %v %v", v, err)
	}
}

func TestCalculateErrors(t *testing.T) {
	e := newEval(t)
	if _, err := e.Calculate("$missing + 1"); !errors.Is(err, errs.ErrLookup) {
		t.Fatalf("want lookup error, got %v", err)
	}
	if _, err := e.Calculate("1 +"); !errors.Is(err, errs.ErrParse) {
		t.Fatalf("want parse error, got %v", err)
	}
	if _, err := e.Calculate(`"open`); !errors.Is(err, errs.ErrParse) {
		t.Fatalf("want parse error, got %v", err)
	}
}

func TestCalculateMissingOperator(t *testing.T) {
	e := newEval(t)
	for _, in := range []string{"$gold 2", "$gold >= 10", "1 + $name $gold"} {
		_, err := e.Calculate(in)
		if !errors.Is(err, errs.ErrParse) {
			t.Fatalf("Calculate(%q): want parse error, got %v", in, err)
		}
		if msg := err.Error(); !strings.Contains(msg, "missing operator") || !strings.Contains(msg, in) {
			t.Fatalf("Calculate(%q): error %q does not name the expression", in, msg)
		}
	}
}

func TestEvaluate(t *testing.T) {
	e := newEval(t)
	cases := map[string]bool{
		"$gold >= 10":                false,
		"$gold < 10":                 true,
		"$gold == 5 && $name == Ann": true,
		"$rich || $gold != 5":        false,
		"$rich || $gold == 5":        true,
		"!$rich":                     true,
		"!($gold > 1 && $rich)":      true,
		"$gold + 5 == 10":            true,
		`$name == "Ann"`:             true,
		"true && false || true":      true,
		"(true || false) && false":   false,
	}
	for in, want := range cases {
		got, err := e.Evaluate(in)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Evaluate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEvaluateShortCircuit(t *testing.T) {
	e := newEval(t)
	if got, err := e.Evaluate("$rich && $undefined > 1"); err != nil || got {
		t.Fatalf("and short-circuit: %v %v", got, err)
	}
	if got, err := e.Evaluate("true || $undefined > 1"); err != nil || !got {
		t.Fatalf("or short-circuit: %v %v", got, err)
	}
	if _, err := e.Evaluate("false || $undefined > 1"); !errors.Is(err, errs.ErrLookup) {
		t.Fatalf("want lookup error, got %v", err)
	}
}

func TestEvaluateTypeErrors(t *testing.T) {
	e := newEval(t)
	for _, in := range []string{"$gold == true", "$name < 3", "$name > Bob", "$gold"} {
		if _, err := e.Evaluate(in); !errors.Is(err, errs.ErrType) {
			t.Fatalf("Evaluate(%q): want type error, got %v", in, err)
		}
	}
	if _, err := e.Evaluate("($gold > 1"); !errors.Is(err, errs.ErrParse) {
		t.Fatalf("want parse error, got %v", err)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	e := newEval(t)
	first, err := e.Evaluate("$gold * 2 > 9 && $name == Ann")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Evaluate("$gold * 2 > 9 && $name == Ann")
		if err != nil || again != first {
			t.Fatalf("run %d: %v %v", i, again, err)
		}
	}
}

func TestCombine(t *testing.T) {
	v, err := Combine(vars.NumberValue(10), '-', vars.NumberValue(4))
	if err != nil || v.Number() != 6 {
		t.Fatalf("number: %v %v", v, err)
	}
	v, err = Combine(vars.StringValue("ab"), '+', vars.NumberValue(1))
	if err != nil || v.String() != "ab1" {
		t.Fatalf("string: %v %v", v, err)
	}
	if _, err := Combine(vars.StringValue("ab"), '*', vars.NumberValue(2)); !errors.Is(err, errs.ErrType) {
		t.Fatalf("want type error, got %v", err)
	}
	if _, err := Combine(vars.BoolValue(true), '+', vars.BoolValue(true)); !errors.Is(err, errs.ErrType) {
		t.Fatalf("want type error, got %v", err)
	}
	if _, err := Combine(vars.NumberValue(1), '+', vars.StringValue("x")); !errors.Is(err, errs.ErrType) {
		t.Fatalf("want type error, got %v", err)
	}
}
