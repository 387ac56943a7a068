/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"talkbox/internal/errs"
	tlog "talkbox/internal/log"
)

// Builtins are the host commands every player gets: wait, print and fade.
type Builtins struct {
	Clock Clock
	Out   io.Writer
	// Fade receives the remaining fraction of a running fade, ending at 0.
	Fade   func(target string, remaining float64)
	Logger *slog.Logger
}

// Register adds the built-in commands to r.
func (b Builtins) Register(r *Registry) error {
	if b.Out == nil {
		b.Out = io.Discard
	}
	if b.Logger == nil {
		b.Logger = tlog.L()
	}
	for _, d := range []Def{
		{Name: "wait", MinArgs: 1, MaxArgs: 1, Target: TargetForbidden, Description: "pause the dialogue for <seconds>", Handler: b.wait},
		{Name: "print", MinArgs: 0, MaxArgs: -1, Target: TargetOptional, Description: "write the arguments to the host console", Handler: b.print},
		{Name: "fade", MinArgs: 1, MaxArgs: 1, Target: TargetOptional, Description: "fade @target over <seconds> while the dialogue continues", Handler: b.fade},
	} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (b Builtins) seconds(call Call) (float64, error) {
	s, err := call.Number(0)
	if err != nil {
		return 0, err
	}
	if s < 0 {
		return 0, fmt.Errorf("%w: %s: negative duration %v", errs.ErrType, call.Name, s)
	}
	return s, nil
}

func (b Builtins) wait(_ context.Context, call Call) (Task, error) {
	s, err := b.seconds(call)
	if err != nil {
		return nil, err
	}
	t := b.Clock.Timer(s)
	return TaskFunc(func(tk Tick) Status {
		if t.Advance(tk) {
			return Done
		}
		return Running
	}), nil
}

func (b Builtins) print(_ context.Context, call Call) (Task, error) {
	parts := make([]string, len(call.Args))
	for i, a := range call.Args {
		parts[i] = a.String()
	}
	line := strings.Join(parts, " ")
	if call.Target != "" {
		line = "[" + call.Target + "] " + line
	}
	_, err := fmt.Fprintln(b.Out, line)
	return nil, err
}

// fade releases the runner on its first step and keeps reporting progress
// until the timer runs out.
func (b Builtins) fade(_ context.Context, call Call) (Task, error) {
	s, err := b.seconds(call)
	if err != nil {
		return nil, err
	}
	t := b.Clock.Timer(s)
	log := b.Logger.With(slog.String("component", "fade"), slog.String("target", call.Target))
	started := false
	return TaskFunc(func(tk Tick) Status {
		finished := t.Advance(tk)
		if b.Fade != nil {
			b.Fade(call.Target, t.Fraction())
		}
		if finished {
			log.Debug("fade finished", slog.Uint64("frame", tk.Frame))
			return Done
		}
		if !started {
			started = true
			return Released
		}
		return Running
	}), nil
}
