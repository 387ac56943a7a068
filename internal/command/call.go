/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package command dispatches dialogue commands to host handlers and advances
// long-running ones once per host tick.
package command

import (
	"fmt"
	"strings"

	"talkbox/internal/errs"
	"talkbox/internal/vars"
)

// Call is one command invocation with its arguments already evaluated.
type Call struct {
	Name   string
	Target string
	Args   []vars.Value
	Node   string
	Line   int // source line
}

func (c Call) String() string {
	parts := make([]string, 0, len(c.Args)+2)
	parts = append(parts, c.Name)
	if c.Target != "" {
		parts = append(parts, "@"+c.Target)
	}
	for _, a := range c.Args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

// Arg returns argument i or an error naming the command.
func (c Call) Arg(i int) (vars.Value, error) {
	if i < 0 || i >= len(c.Args) {
		return vars.Value{}, fmt.Errorf("%w: %s: missing argument %d", errs.ErrParse, c.Name, i+1)
	}
	return c.Args[i], nil
}

// Number returns argument i as a number.
func (c Call) Number(i int) (float64, error) {
	v, err := c.Arg(i)
	if err != nil {
		return 0, err
	}
	if v.Type() != vars.Number {
		return 0, fmt.Errorf("%w: %s: argument %d must be a number, got %s", errs.ErrType, c.Name, i+1, v.Type())
	}
	return v.Number(), nil
}

// Result is what an executor reports for a call. A pending result keeps the
// runner waiting until the executor calls done. Cancel, when set, drops the
// pending work without running its completion.
type Result struct {
	Pending bool
	Cancel  func()
}

// Immediate reports a command that finished inside Run.
var Immediate = Result{}
