/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package dialogue runs parsed scripts one host-visible event at a time.
//
// The runner walks a node's lines keeping one scope per indentation level.
// Each scope has a Mode saying what the walk is doing at that level: running
// lines, skipping the rest of an option block, skipping to the endif of a
// taken branch, or searching for the branch to take. The runner never blocks;
// it stops in one of the Awaiting states and resumes when the host calls
// Advance, PickOption or CommandFinished.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"talkbox/internal/command"
	"talkbox/internal/errs"
	"talkbox/internal/expr"
	tlog "talkbox/internal/log"
	"talkbox/internal/script"
	"talkbox/internal/tag"
	"talkbox/internal/vars"
)

type State int

const (
	Idle State = iota
	Running
	AwaitingAdvance
	AwaitingOption
	AwaitingCommand
	Ended
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case AwaitingAdvance:
		return "awaiting-advance"
	case AwaitingOption:
		return "awaiting-option"
	case AwaitingCommand:
		return "awaiting-command"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Mode is the traversal intent of one scope.
type Mode int

const (
	Text Mode = iota
	OptionBlock
	TrueBranch
	FalseBranch
)

func (m Mode) String() string {
	return [...]string{"text", "option", "true", "false"}[m]
}

// DefaultStartNode is used when Start is given an empty node name.
const DefaultStartNode = "Start"

// DefaultMaxSteps bounds the lines run between two host-visible events.
const DefaultMaxSteps = 100000

type Options struct {
	Store    *vars.Store
	Executor Executor
	Sink     Sink
	Logger   *slog.Logger
	MaxSteps int
}

// Runner executes one conversation. It is not safe for concurrent use.
type Runner struct {
	script *script.Script
	eval   *expr.Evaluator
	exec   Executor
	sink   Sink
	log    *slog.Logger
	max    int

	state   State
	err     error
	getting bool

	node    *script.Node
	line    int
	level   int
	scopes  []Mode
	options []Option

	gen    uint64
	cancel func()
}

func New(s *script.Script, opts Options) (*Runner, error) {
	if s == nil {
		return nil, errors.New("dialogue: nil script")
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = tlog.L()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Runner{
		script: s,
		eval:   expr.New(opts.Store),
		exec:   opts.Executor,
		sink:   opts.Sink,
		log:    opts.Logger.With(slog.String("component", "runner"), slog.String("script", s.Name)),
		max:    opts.MaxSteps,
	}, nil
}

func (r *Runner) State() State { return r.state }

// Waiting reports whether a command is pending. Host input that would advance
// the dialogue is ignored while it is set.
func (r *Runner) Waiting() bool { return r.state == AwaitingCommand }

// Err returns the error that moved the runner to Failed.
func (r *Runner) Err() error { return r.err }

// Store exposes the variables the runner evaluates against.
func (r *Runner) Store() *vars.Store { return r.eval.Store() }

// Node is the title of the node being run.
func (r *Runner) Node() string {
	if r.node == nil {
		return ""
	}
	return r.node.Title
}

// Options returns the choices on display while AwaitingOption.
func (r *Runner) Options() []Option { return r.options }

// Start notifies the sink and runs node until the first host-visible event.
func (r *Runner) Start(ctx context.Context, node string) error {
	if r.state != Idle {
		return r.misuse("start")
	}
	if node == "" {
		node = DefaultStartNode
	}
	if _, ok := r.script.Node(node); !ok {
		return fmt.Errorf("%w: node %q not found in %s", errs.ErrLookup, node, r.script.Name)
	}
	r.log.Info("dialogue start", slog.String("node", node))
	r.sink.Start()
	if err := r.jumpTo(node); err != nil {
		return r.fail(err)
	}
	r.state = Running
	return r.run(ctx)
}

// Advance continues past a displayed line. It does nothing while a command is
// pending or while the runner is already fetching the next line.
func (r *Runner) Advance(ctx context.Context) error {
	if r.getting || r.state == AwaitingCommand {
		return nil
	}
	if r.state != AwaitingAdvance {
		return r.misuse("advance")
	}
	r.state = Running
	return r.run(ctx)
}

// PickOption selects displayed option i. Out of range and locked picks are
// rejected and the options stay on display.
func (r *Runner) PickOption(ctx context.Context, i int) error {
	if r.state != AwaitingOption {
		return r.misuse("pick option")
	}
	if i < 0 || i >= len(r.options) {
		return fmt.Errorf("%w: option %d out of range [0,%d)", errs.ErrState, i, len(r.options))
	}
	chosen := r.options[i]
	if !chosen.Selectable {
		return fmt.Errorf("%w: option %d is locked", errs.ErrState, i)
	}
	r.options = nil
	r.scopes[r.level] = OptionBlock
	r.descend()
	r.line = chosen.Line.Source().Index() + 1
	r.state = Running
	r.log.Debug("option picked", slog.String("node", r.node.Title), slog.Int("option", i))
	r.sink.OptionSelected()
	return r.run(ctx)
}

// CommandFinished resumes after a pending command.
func (r *Runner) CommandFinished(ctx context.Context) error {
	if r.state != AwaitingCommand {
		return r.misuse("finish command")
	}
	return r.complete(ctx, r.gen)
}

// Jump moves to the start of node. A pending command is abandoned and its
// completion never runs.
func (r *Runner) Jump(ctx context.Context, node string) error {
	switch {
	case r.getting:
		return fmt.Errorf("%w: jump while a line is being fetched", errs.ErrState)
	case r.state == Idle, r.state == Failed:
		return r.misuse("jump")
	}
	if _, ok := r.script.Node(node); !ok {
		return fmt.Errorf("%w: node %q not found in %s", errs.ErrLookup, node, r.script.Name)
	}
	if r.state == AwaitingCommand {
		r.abandon()
	}
	r.options = nil
	if err := r.jumpTo(node); err != nil {
		return r.fail(err)
	}
	r.state = Running
	return r.run(ctx)
}

func (r *Runner) misuse(op string) error {
	if r.state == Failed {
		return fmt.Errorf("%w: cannot %s: runner failed: %w", errs.ErrState, op, r.err)
	}
	return fmt.Errorf("%w: cannot %s while %s", errs.ErrState, op, r.state)
}

// run steps until the runner leaves Running. Nested calls from sink or
// executor callbacks return at once; the outer loop picks up their effect.
func (r *Runner) run(ctx context.Context) error {
	if r.getting {
		return nil
	}
	r.getting = true
	defer func() { r.getting = false }()
	for steps := 0; r.state == Running; steps++ {
		if steps >= r.max {
			return r.fail(fmt.Errorf("%w: node %s ran %d lines without a host event", errs.ErrState, r.node.Title, steps))
		}
		if err := ctx.Err(); err != nil {
			return r.fail(err)
		}
		if err := r.step(ctx); err != nil {
			return r.fail(err)
		}
	}
	return nil
}

func (r *Runner) fail(err error) error {
	r.err = err
	r.state = Failed
	r.options = nil
	r.log.Error("dialogue failed", slog.String("node", r.Node()), slog.Int("line", r.line), slog.Any("err", err))
	return err
}

func (r *Runner) finish() {
	r.state = Ended
	r.log.Info("dialogue end", slog.String("node", r.Node()))
	r.sink.End()
}

func (r *Runner) jumpTo(title string) error {
	n, ok := r.script.Node(title)
	if !ok {
		return fmt.Errorf("%w: jump to unknown node %q", errs.ErrLookup, title)
	}
	r.log.Debug("jump", slog.String("from", r.Node()), slog.String("to", title))
	r.node = n
	r.line = 0
	r.level = 0
	r.scopes = []Mode{Text}
	return nil
}

// descend opens a Text scope one level deeper.
func (r *Runner) descend() {
	r.scopes = append(r.scopes, Text)
	r.level++
}

// step handles the line under the cursor.
func (r *Runner) step(ctx context.Context) error {
	lines := r.node.Lines
	if r.line >= len(lines) {
		r.finish()
		return nil
	}
	if lines[r.line].Level() < r.level {
		if err := r.goDown(); err != nil {
			return err
		}
		if r.line >= len(lines) {
			r.finish()
			return nil
		}
	}
	switch l := lines[r.line].(type) {
	case *script.TextLine:
		if l.Option {
			return r.offerOptions()
		}
		r.line++
		if !l.Tag.AutoAdvance() {
			r.state = AwaitingAdvance
		}
		r.sink.DisplayLine(newLine(l, r.node.Title, r.eval))
		return nil
	case *script.ConditionalLine:
		return r.branch(l)
	case *script.CommandLine:
		return r.command(ctx, l)
	}
	return fmt.Errorf("%w: unknown line type %T", errs.ErrState, lines[r.line])
}

func (r *Runner) branch(l *script.ConditionalLine) error {
	if l.Cond != script.If {
		return fmt.Errorf("%w: node %s line %d: <<%s>> reached outside its <<if>>", errs.ErrState, r.node.Title, l.SourceLine(), l.Cond)
	}
	ok, err := r.eval.Evaluate(l.Expr)
	if err != nil {
		return r.at(l, err)
	}
	if ok {
		r.scopes[r.level] = TrueBranch
		r.descend()
		r.line++
		return nil
	}
	r.scopes[r.level] = FalseBranch
	r.line++
	if err := r.falseBranch(); err != nil {
		return err
	}
	r.line++
	return nil
}

func (r *Runner) command(ctx context.Context, l *script.CommandLine) error {
	switch l.Name {
	case script.CmdJump:
		return r.jumpTo(l.Target)
	case script.CmdStop:
		r.finish()
		return nil
	case script.CmdDeclare, script.CmdSet:
		r.line++
		return r.at(l, r.assign(l.Assign))
	}
	call := command.Call{Name: l.Name, Target: l.Target, Node: r.node.Title, Line: l.SourceLine()}
	for _, a := range l.Args {
		v, err := r.eval.Calculate(a)
		if err != nil {
			return r.at(l, err)
		}
		call.Args = append(call.Args, v)
	}
	if r.exec == nil {
		return fmt.Errorf("%w: node %s line %d: no executor for command %q", errs.ErrLookup, r.node.Title, l.SourceLine(), l.Name)
	}
	r.line++
	r.gen++
	gen := r.gen
	r.state = AwaitingCommand
	res, err := r.exec.Run(ctx, call, func() { _ = r.complete(ctx, gen) })
	if err != nil {
		return r.at(l, err)
	}
	if gen != r.gen || r.state != AwaitingCommand {
		// completed or abandoned from inside Run
		return nil
	}
	if !res.Pending {
		r.state = Running
		return nil
	}
	r.cancel = res.Cancel
	r.log.Debug("command pending", slog.String("command", call.Name), slog.String("node", call.Node))
	return nil
}

// complete resumes after command gen. Stale generations are ignored.
func (r *Runner) complete(ctx context.Context, gen uint64) error {
	if gen != r.gen || r.state != AwaitingCommand {
		return nil
	}
	r.cancel = nil
	r.state = Running
	return r.run(ctx)
}

func (r *Runner) abandon() {
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.log.Debug("command abandoned", slog.String("node", r.Node()))
}

func (r *Runner) assign(a *script.Assignment) error {
	store := r.eval.Store()
	if r.boolTarget(a) {
		if op := a.Op.Operator(); op != 0 {
			return fmt.Errorf("set $%s: %w: operator %c= is not defined for bool", a.Var, errs.ErrType, op)
		}
		ok, err := r.eval.Evaluate(a.Expr)
		if err != nil {
			return err
		}
		if a.Declare {
			return store.Define(a.Var, vars.BoolValue(ok))
		}
		return store.Set(a.Var, vars.BoolValue(ok))
	}
	v, err := r.eval.Calculate(a.Expr)
	if err != nil {
		return err
	}
	if a.Declare {
		cv, err := vars.Coerce(v, a.Type)
		if err != nil {
			return fmt.Errorf("declare $%s: %w", a.Var, err)
		}
		return store.Define(a.Var, cv)
	}
	if op := a.Op.Operator(); op != 0 {
		cur, err := store.Get(a.Var)
		if err != nil {
			return err
		}
		if v, err = expr.Combine(cur, op, v); err != nil {
			return fmt.Errorf("set $%s: %w", a.Var, err)
		}
	}
	return store.Set(a.Var, v)
}

// boolTarget reports whether the assigned variable is bool, either by its
// declared type or by the value already bound to it. The right-hand side of
// a bool assignment is a statement.
func (r *Runner) boolTarget(a *script.Assignment) bool {
	if a.Declare {
		return a.Type == vars.Bool
	}
	cur, err := r.eval.Store().Get(a.Var)
	return err == nil && cur.Type() == vars.Bool
}

func (r *Runner) at(l script.Line, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("node %s line %d: %w", r.node.Title, l.SourceLine(), err)
}

// offerOptions collects the option block starting at the cursor. Options at
// deeper levels belong to earlier choices; a lower level or a non-option at
// this level ends the block.
func (r *Runner) offerOptions() error {
	var opts []Option
	for _, l := range r.node.Lines[r.line:] {
		if l.Level() < r.level {
			break
		}
		if l.Level() > r.level {
			continue
		}
		tl, ok := l.(*script.TextLine)
		if !ok || !tl.Option {
			break
		}
		if s := tl.Tag.Statement(tag.Hide); s != "" {
			shown, err := r.eval.Evaluate(s)
			if err != nil {
				return r.at(tl, err)
			}
			if !shown {
				continue
			}
		}
		selectable := true
		if s := tl.Tag.Statement(tag.Lock); s != "" {
			locked, err := r.eval.Evaluate(s)
			if err != nil {
				return r.at(tl, err)
			}
			selectable = !locked
		}
		opts = append(opts, Option{Index: len(opts), Line: newLine(tl, r.node.Title, r.eval), Selectable: selectable})
	}
	if len(opts) == 0 {
		r.log.Debug("no options to offer", slog.String("node", r.node.Title), slog.Int("line", r.line))
		r.finish()
		return nil
	}
	r.options = opts
	r.state = AwaitingOption
	r.sink.DisplayOptions(opts)
	return nil
}

// goDown pops the scopes the cursor has left, letting each finish its scan.
func (r *Runner) goDown() error {
	lines := r.node.Lines
	for r.level > lines[r.line].Level() {
		r.scopes = r.scopes[:r.level]
		r.level--
		switch m := r.scopes[r.level]; m {
		case OptionBlock:
			r.skipOptions()
		case TrueBranch:
			if err := r.trueBranch(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: node %s: %s scope closed at level %d", errs.ErrState, r.node.Title, m, r.level)
		}
		if r.line >= len(lines) {
			return nil
		}
	}
	if m := r.scopes[r.level]; m != Text {
		return fmt.Errorf("%w: node %s: expected text scope at level %d, have %s", errs.ErrState, r.node.Title, r.level, m)
	}
	return nil
}

// skipOptions moves past the rest of an option block.
func (r *Runner) skipOptions() {
	lines := r.node.Lines
	for ; r.line < len(lines); r.line++ {
		l := lines[r.line]
		if l.Level() < r.level {
			return
		}
		if tl, ok := l.(*script.TextLine); l.Level() == r.level && (!ok || !tl.Option) {
			r.scopes[r.level] = Text
			return
		}
	}
}

// trueBranch moves past the endif of a taken branch.
func (r *Runner) trueBranch() error {
	lines := r.node.Lines
	for ; r.line < len(lines); r.line++ {
		if c, ok := lines[r.line].(*script.ConditionalLine); ok && c.Level() == r.level && c.Cond == script.EndIf {
			r.scopes[r.level] = Text
			r.line++
			return nil
		}
	}
	return fmt.Errorf("%w: node %s ended inside a taken branch", errs.ErrState, r.node.Title)
}

// falseBranch searches for the branch to take. It stops on that branch's
// elseif or else, or on the endif when none applies.
func (r *Runner) falseBranch() error {
	lines := r.node.Lines
	for ; r.line < len(lines); r.line++ {
		c, ok := lines[r.line].(*script.ConditionalLine)
		if !ok || c.Level() != r.level {
			continue
		}
		switch c.Cond {
		case script.EndIf:
			r.scopes[r.level] = Text
			return nil
		case script.If:
			return fmt.Errorf("%w: node %s line %d: nested <<if>> at the level of an untaken branch", errs.ErrState, r.node.Title, c.SourceLine())
		case script.Else:
			r.scopes[r.level] = TrueBranch
			r.descend()
			return nil
		case script.ElseIf:
			ok, err := r.eval.Evaluate(c.Expr)
			if err != nil {
				return r.at(c, err)
			}
			if ok {
				r.scopes[r.level] = TrueBranch
				r.descend()
				return nil
			}
		}
	}
	return fmt.Errorf("%w: node %s ended inside an untaken branch", errs.ErrState, r.node.Title)
}
