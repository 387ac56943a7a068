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
	"sort"
	"strings"

	"talkbox/internal/errs"
)

// Handler starts a command. Returning a nil Task means the command is
// already finished.
type Handler func(ctx context.Context, call Call) (Task, error)

// TargetRule says whether a command accepts an @target.
type TargetRule string

const (
	TargetOptional  TargetRule = "optional"
	TargetRequired  TargetRule = "required"
	TargetForbidden TargetRule = "forbidden"
)

// Def describes one host command. MaxArgs < 0 means unbounded.
type Def struct {
	Name        string
	MinArgs     int
	MaxArgs     int
	Target      TargetRule
	Description string
	Handler     Handler
}

// Check validates the shape of a call against the definition.
func (d *Def) Check(argc int, target string) error {
	if argc < d.MinArgs || (d.MaxArgs >= 0 && argc > d.MaxArgs) {
		return fmt.Errorf("%w: %s takes %s, got %d", errs.ErrParse, d.Name, d.arity(), argc)
	}
	switch {
	case d.Target == TargetRequired && target == "":
		return fmt.Errorf("%w: %s needs an @target", errs.ErrParse, d.Name)
	case d.Target == TargetForbidden && target != "":
		return fmt.Errorf("%w: %s takes no @target", errs.ErrParse, d.Name)
	}
	return nil
}

func (d *Def) arity() string {
	switch {
	case d.MaxArgs < 0:
		return fmt.Sprintf("at least %d arguments", d.MinArgs)
	case d.MinArgs == d.MaxArgs:
		return fmt.Sprintf("%d arguments", d.MinArgs)
	}
	return fmt.Sprintf("%d to %d arguments", d.MinArgs, d.MaxArgs)
}

// reserved names are executed by the runner and cannot be registered.
var reserved = map[string]bool{"jump": true, "stop": true, "declare": true, "set": true, "if": true, "elseif": true, "else": true, "endif": true}

// Registry maps command names to their definitions. It is filled at startup.
type Registry struct {
	defs map[string]*Def
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds a command. Names are case-insensitive.
func (r *Registry) Register(d Def) error {
	d.Name = strings.ToLower(strings.TrimSpace(d.Name))
	switch {
	case d.Name == "":
		return fmt.Errorf("register command: empty name")
	case reserved[d.Name]:
		return fmt.Errorf("register command: %q is reserved", d.Name)
	case r.defs[d.Name] != nil:
		return fmt.Errorf("register command: %q already registered", d.Name)
	case d.Handler == nil:
		return fmt.Errorf("register command %q: nil handler", d.Name)
	}
	if d.Target == "" {
		d.Target = TargetOptional
	}
	r.defs[d.Name] = &d
	return nil
}

// Get retrieves a command by name.
func (r *Registry) Get(name string) (*Def, bool) {
	d, ok := r.defs[strings.ToLower(name)]
	return d, ok
}

// Names lists registered commands in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
