/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"log/slog"
	"time"

	tlog "talkbox/internal/log"
)

type entry struct {
	id       uint64
	call     Call
	task     Task
	done     func()
	released bool
	dropped  bool
}

// Scheduler steps pending tasks once per host tick in the order they were
// added. It is driven from the host's update loop and is not goroutine-safe.
type Scheduler struct {
	entries []*entry
	next    uint64
	frame   uint64
	log     *slog.Logger
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = tlog.L()
	}
	return &Scheduler{log: logger.With(slog.String("component", "scheduler"))}
}

// Add queues task. done runs once, when the task is released or done,
// unless the task is abandoned first.
func (s *Scheduler) Add(call Call, task Task, done func()) uint64 {
	s.next++
	s.entries = append(s.entries, &entry{id: s.next, call: call, task: task, done: done})
	s.log.Debug("task queued", slog.Uint64("id", s.next), slog.String("command", call.Name))
	return s.next
}

// Abandon drops a task without running its completion.
func (s *Scheduler) Abandon(id uint64) bool {
	for _, e := range s.entries {
		if e.id == id && !e.dropped {
			e.dropped = true
			s.log.Debug("task abandoned", slog.Uint64("id", id), slog.String("command", e.call.Name))
			return true
		}
	}
	return false
}

// Tick steps every queued task once. Tasks added by completions during the
// tick are first stepped on the next one.
func (s *Scheduler) Tick(dt time.Duration) {
	s.frame++
	tk := Tick{Frame: s.frame, Delta: dt}
	batch := append([]*entry(nil), s.entries...)
	for _, e := range batch {
		if e.dropped {
			continue
		}
		switch e.task.Step(tk) {
		case Released:
			if !e.released {
				e.released = true
				s.complete(e)
			}
		case Done:
			e.dropped = true
			if !e.released {
				s.complete(e)
			}
			s.log.Debug("task done", slog.Uint64("id", e.id), slog.String("command", e.call.Name), slog.Uint64("frame", s.frame))
		}
	}
	live := s.entries[:0]
	for _, e := range s.entries {
		if !e.dropped {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = live
}

func (s *Scheduler) complete(e *entry) {
	if e.done != nil {
		e.done()
	}
}

// Len is the number of live tasks, released ones included.
func (s *Scheduler) Len() int {
	n := 0
	for _, e := range s.entries {
		if !e.dropped {
			n++
		}
	}
	return n
}

// Frame is the number of ticks run so far.
func (s *Scheduler) Frame() uint64 { return s.frame }
