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
	"log/slog"

	"talkbox/internal/errs"
	tlog "talkbox/internal/log"
)

// Dispatcher runs calls through a Registry and parks their tasks on a
// Scheduler. It satisfies the runner's executor interface.
type Dispatcher struct {
	reg   *Registry
	sched *Scheduler
	log   *slog.Logger
}

func NewDispatcher(reg *Registry, sched *Scheduler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = tlog.L()
	}
	return &Dispatcher{reg: reg, sched: sched, log: logger.With(slog.String("component", "commands"))}
}

func (d *Dispatcher) Scheduler() *Scheduler { return d.sched }

// Run starts call. Commands whose handler returns no task finish at once;
// the rest stay pending until the scheduler steps them to Released or Done.
func (d *Dispatcher) Run(ctx context.Context, call Call, done func()) (Result, error) {
	def, ok := d.reg.Get(call.Name)
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown command %q", errs.ErrLookup, call.Name)
	}
	if err := def.Check(len(call.Args), call.Target); err != nil {
		return Result{}, err
	}
	task, err := def.Handler(ctx, call)
	if err != nil {
		return Result{}, fmt.Errorf("command %s: %w", call.Name, err)
	}
	if task == nil {
		d.log.Debug("command done", slog.String("command", call.String()), slog.String("node", call.Node), slog.Int("line", call.Line))
		return Immediate, nil
	}
	id := d.sched.Add(call, task, done)
	d.log.Debug("command pending", slog.String("command", call.String()), slog.Uint64("task", id))
	return Result{Pending: true, Cancel: func() { d.sched.Abandon(id) }}, nil
}
