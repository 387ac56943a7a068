/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"context"
	"fmt"

	"talkbox/internal/command"
	"talkbox/internal/expr"
	"talkbox/internal/markup"
	"talkbox/internal/script"
	"talkbox/internal/tag"
)

// Sink receives the runner's host-visible events.
type Sink interface {
	Start()
	DisplayLine(*Line)
	DisplayOptions([]Option)
	OptionSelected()
	End()
}

// NopSink ignores every event.
type NopSink struct{}

func (NopSink) Start()                  {}
func (NopSink) DisplayLine(*Line)       {}
func (NopSink) DisplayOptions([]Option) {}
func (NopSink) OptionSelected()         {}
func (NopSink) End()                    {}

// Executor runs host commands. A pending result must be followed by exactly
// one call to done, or by the runner invoking Result.Cancel.
type Executor interface {
	Run(ctx context.Context, call command.Call, done func()) (command.Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, call command.Call, done func()) (command.Result, error)

func (f ExecutorFunc) Run(ctx context.Context, call command.Call, done func()) (command.Result, error) {
	return f(ctx, call, done)
}

// Option is one displayed choice. Index is its position in the displayed list.
type Option struct {
	Index      int
	Line       *Line
	Selectable bool
}

// Line is a dialogue or option line as handed to the host. Its spans are
// rendered on first use against the variables current at that moment.
type Line struct {
	src   *script.TextLine
	node  string
	eval  *expr.Evaluator
	spans *markup.Spans
	err   error
	done  bool
}

func newLine(src *script.TextLine, node string, eval *expr.Evaluator) *Line {
	return &Line{src: src, node: node, eval: eval}
}

func (l *Line) Source() *script.TextLine { return l.src }
func (l *Line) Node() string             { return l.node }
func (l *Line) Speaker() string          { return l.src.Speaker }
func (l *Line) Raw() string              { return l.src.Text }
func (l *Line) Tag() tag.Tag             { return l.src.Tag }
func (l *Line) IsOption() bool           { return l.src.Option }

// Spans parses the line's markup once and caches the result.
func (l *Line) Spans() (*markup.Spans, error) {
	if !l.done {
		l.done = true
		l.spans, l.err = markup.Parse(l.src.Text, markup.SubstituterFunc(l.substitute))
		if l.err != nil {
			l.err = fmt.Errorf("node %s line %d: %w", l.node, l.src.SourceLine(), l.err)
		}
	}
	return l.spans, l.err
}

// Text is the rendered text without markup.
func (l *Line) Text() (string, error) {
	sp, err := l.Spans()
	if err != nil {
		return "", err
	}
	return sp.Text(), nil
}

func (l *Line) substitute(e string) (string, error) {
	v, err := l.eval.Calculate(e)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
