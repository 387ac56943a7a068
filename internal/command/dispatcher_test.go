/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command_test

import (
	"context"
	"testing"
	"time"

	"talkbox/internal/command"
	"talkbox/internal/dialogue"
	tlog "talkbox/internal/log"
	"talkbox/internal/script"
)

type lines struct {
	dialogue.NopSink
	got []string
}

func (l *lines) DisplayLine(ln *dialogue.Line) {
	txt, _ := ln.Text()
	l.got = append(l.got, txt)
}

func setup(t *testing.T, src string) (*dialogue.Runner, *command.Scheduler, *lines) {
	t.Helper()
	s, err := script.Parse("it", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	reg := command.NewRegistry()
	if err := (command.Builtins{Clock: command.Clock{TickRate: 10}, Logger: tlog.Discard()}).Register(reg); err != nil {
		t.Fatalf("builtins: %v", err)
	}
	sched := command.NewScheduler(tlog.Discard())
	sink := &lines{}
	r, err := dialogue.New(s, dialogue.Options{
		Executor: command.NewDispatcher(reg, sched, tlog.Discard()),
		Sink:     sink,
		Logger:   tlog.Discard(),
	})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	return r, sched, sink
}

func TestRunnerWaitsForScheduledCommand(t *testing.T) {
	r, sched, sink := setup(t, "title: Start\n---\n<<wait 0.2>>\nafter wait\n")
	ctx := context.Background()
	if err := r.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.Waiting() {
		t.Fatalf("state = %v", r.State())
	}
	sched.Tick(16 * time.Millisecond)
	if !r.Waiting() || len(sink.got) != 0 {
		t.Fatal("wait finished early")
	}
	sched.Tick(16 * time.Millisecond)
	if r.State() != dialogue.AwaitingAdvance || len(sink.got) != 1 || sink.got[0] != "after wait" {
		t.Fatalf("state = %v lines = %v", r.State(), sink.got)
	}
}

func TestReleasedCommandLetsRunnerContinue(t *testing.T) {
	r, sched, sink := setup(t, "title: Start\n---\n<<fade @screen 1>>\nwhile fading\n")
	if err := r.Start(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	sched.Tick(0)
	if len(sink.got) != 1 || sched.Len() != 1 {
		t.Fatalf("lines = %v tasks = %d", sink.got, sched.Len())
	}
}

func TestJumpDropsScheduledTask(t *testing.T) {
	r, sched, sink := setup(t, "title: Start\n---\n<<wait 5>>\nnever\n===\ntitle: Other\n---\nother first\n")
	ctx := context.Background()
	if err := r.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Jump(ctx, "Other"); err != nil {
		t.Fatalf("jump: %v", err)
	}
	sched.Tick(0)
	if sched.Len() != 0 {
		t.Fatalf("tasks = %d", sched.Len())
	}
	if len(sink.got) != 1 || sink.got[0] != "other first" {
		t.Fatalf("lines = %v", sink.got)
	}
}
