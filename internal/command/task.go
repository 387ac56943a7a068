/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is what a task reports after one step.
type Status int

const (
	// Running keeps the runner waiting.
	Running Status = iota
	// Released lets the runner continue while the task keeps stepping.
	Released
	// Done finishes the task.
	Done
)

func (s Status) String() string {
	return [...]string{"running", "released", "done"}[s]
}

// Tick is one host update.
type Tick struct {
	Frame uint64
	Delta time.Duration
}

// Task is a command in progress, stepped once per tick.
type Task interface {
	Step(Tick) Status
}

// TaskFunc adapts a function to Task.
type TaskFunc func(Tick) Status

func (f TaskFunc) Step(t Tick) Status { return f(t) }

// Timing selects how command durations are measured.
type Timing int

const (
	// TimingTicks converts a duration to a fixed tick count at TickRate, so a
	// command takes the same number of updates whatever the frame time.
	TimingTicks Timing = iota
	// TimingWall accumulates the delta of each tick.
	TimingWall
)

func (t Timing) String() string {
	if t == TimingWall {
		return "wall"
	}
	return "ticks"
}

func ParseTiming(s string) (Timing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ticks", "frames":
		return TimingTicks, nil
	case "wall", "time":
		return TimingWall, nil
	}
	return 0, fmt.Errorf("unknown timing %q (want ticks or wall)", s)
}

// DefaultTickRate is ticks per second for TimingTicks.
const DefaultTickRate = 60

// Clock creates timers with one duration semantics.
type Clock struct {
	Timing   Timing
	TickRate float64
}

func (c Clock) rate() float64 {
	if c.TickRate <= 0 {
		return DefaultTickRate
	}
	return c.TickRate
}

// Timer starts a timer of the given length in seconds.
func (c Clock) Timer(seconds float64) *Timer {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if c.Timing == TimingWall {
		return &Timer{timing: TimingWall, total: seconds}
	}
	return &Timer{timing: TimingTicks, total: math.Round(seconds * c.rate())}
}

// Timer tracks progress towards a duration, in ticks or seconds.
type Timer struct {
	timing  Timing
	total   float64
	elapsed float64
}

// Advance accounts for one tick and reports whether the timer has run out.
func (t *Timer) Advance(tk Tick) bool {
	if t.timing == TimingWall {
		t.elapsed += tk.Delta.Seconds()
	} else {
		t.elapsed++
	}
	return t.Done()
}

func (t *Timer) Done() bool { return t.elapsed >= t.total }

// Fraction is the remaining share of the duration, from 1 down to 0.
func (t *Timer) Fraction() float64 {
	if t.total <= 0 || t.elapsed >= t.total {
		return 0
	}
	return 1 - t.elapsed/t.total
}
