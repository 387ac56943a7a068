/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package tag

import (
	"errors"
	"testing"

	"talkbox/internal/errs"
)

func TestBuildDefaults(t *testing.T) {
	tg, err := Build(nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tg.Speed() != SpeedNorm {
		t.Fatalf("speed = %v, want norm", tg.Speed())
	}
	if tg.AutoAdvance() {
		t.Fatal("empty tag must not auto-advance")
	}
}

func TestExplicitSpeedSuppressesDefault(t *testing.T) {
	tg, err := Build([]string{"FAST", "last"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tg.Speed() != SpeedFast || tg.Has(Norm) {
		t.Fatalf("speed = %v, norm present = %v", tg.Speed(), tg.Has(Norm))
	}
	if !tg.AutoAdvance() {
		t.Fatal("want auto-advance")
	}
}

func TestConflicts(t *testing.T) {
	cases := [][]string{
		{"slow", "fast"},
		{"norm", "slow"},
		{"last", "last"},
		{"image:0", "image:3"},
		{"lock:{$a}", "lock:{$b}"},
	}
	for _, c := range cases {
		_, err := Build(c)
		if !errors.Is(err, ErrConflict) || !errors.Is(err, errs.ErrParse) {
			t.Fatalf("Build(%v): want conflict, got %v", c, err)
		}
	}
}

func TestPayloads(t *testing.T) {
	tg, err := Build([]string{"image:12", "lock:{$gold < 10}", "hide: $seen "})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tg.Image() != 12 || !tg.Has(Image) {
		t.Fatalf("image = %d", tg.Image())
	}
	if got := tg.Statement(Lock); got != "$gold < 10" {
		t.Fatalf("lock statement = %q", got)
	}
	if got := tg.Statement(Hide); got != "$seen" {
		t.Fatalf("hide statement = %q", got)
	}
	if tg.Statement(Last) != "" {
		t.Fatal("last carries no statement")
	}
}

func TestBadPayloads(t *testing.T) {
	cases := [][]string{
		{"image:16"},
		{"image"},
		{"image:x"},
		{"lock"},
		{"lock:{}"},
		{"last:1"},
		{"bogus"},
	}
	for _, c := range cases {
		if _, err := Build(c); !errors.Is(err, errs.ErrParse) {
			t.Fatalf("Build(%v): want parse error, got %v", c, err)
		}
	}
}

func TestEquality(t *testing.T) {
	a := MustBuild("last", "lock:$x")
	b := MustBuild("lock:{$x}", "LAST")
	if a != b {
		t.Fatalf("%v != %v", a, b)
	}
	if a == MustBuild("last", "lock:$y") {
		t.Fatal("different statements must differ")
	}
}

func TestString(t *testing.T) {
	got := MustBuild("image:3", "last").String()
	if got != "#last #norm #image:3" {
		t.Fatalf("got %q", got)
	}
}
