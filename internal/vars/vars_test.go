/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vars

import (
	"errors"
	"testing"

	"talkbox/internal/errs"
)

func TestParseLiteral(t *testing.T) {
	cases := []struct {
		in   string
		typ  Type
		want string
		ok   bool
	}{
		{"5", Number, "5", true},
		{"-2.5", Number, "-2.5", true},
		{"inf", Number, "", false},
		{"abc", Number, "", false},
		{"TRUE", Bool, "true", true},
		{"1", Bool, "", false},
		{"word", String, "word", true},
		{`"say \"hi\""`, String, `say "hi"`, true},
	}
	for _, c := range cases {
		v, ok := ParseLiteral(c.in, c.typ)
		if ok != c.ok {
			t.Fatalf("ParseLiteral(%q,%s) ok=%v want %v", c.in, c.typ, ok, c.ok)
		}
		if ok && v.String() != c.want {
			t.Fatalf("ParseLiteral(%q,%s)=%q want %q", c.in, c.typ, v.String(), c.want)
		}
	}
}

func TestNumberFormatting(t *testing.T) {
	if got := NumberValue(10).String(); got != "10" {
		t.Fatalf("got %q", got)
	}
	if got := NumberValue(0.5).String(); got != "0.5" {
		t.Fatalf("got %q", got)
	}
}

func TestStoreDefineSet(t *testing.T) {
	s := NewStore()
	if err := s.Define("$gold", NumberValue(5)); err != nil {
		t.Fatalf("define: %v", err)
	}
	if err := s.Set("gold", NumberValue(7)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get("$gold")
	if err != nil || v.Number() != 7 {
		t.Fatalf("get: %v %v", v, err)
	}
	if err := s.Set("$gold", StringValue("x")); !errors.Is(err, errs.ErrType) {
		t.Fatalf("want type error, got %v", err)
	}
	if err := s.Define("$gold", BoolValue(true)); !errors.Is(err, errs.ErrType) {
		t.Fatalf("want type error on redeclare, got %v", err)
	}
	if err := s.Set("$nope", NumberValue(1)); !errors.Is(err, errs.ErrLookup) {
		t.Fatalf("want lookup error, got %v", err)
	}
}

func TestStoreSetStringCoerces(t *testing.T) {
	s := NewStore()
	_ = s.Define("name", StringValue("a"))
	if err := s.Set("name", NumberValue(3)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, _ := s.Get("name")
	if v.Type() != String || v.String() != "3" {
		t.Fatalf("got %v", v)
	}
}

func TestNameValidation(t *testing.T) {
	if _, err := Name("$"); !errors.Is(err, errs.ErrParse) {
		t.Fatalf("want parse error, got %v", err)
	}
	if _, err := Name("$a-b"); err == nil {
		t.Fatal("want error for dash")
	}
	if n, err := Name("$hero_1"); err != nil || n != "hero_1" {
		t.Fatalf("got %q %v", n, err)
	}
}

func TestSnapshotAndClear(t *testing.T) {
	s := NewStore()
	_ = s.Define("b", BoolValue(true))
	_ = s.Define("a", NumberValue(1))
	if got := s.Names(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("names: %v", got)
	}
	snap := s.Snapshot()
	s.Clear()
	if s.Has("a") || !snap["a"].Equal(NumberValue(1)) {
		t.Fatalf("clear/snapshot mismatch")
	}
}
