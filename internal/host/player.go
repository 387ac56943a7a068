/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package host plays a script on a console: it renders lines and options to a
// writer, reads advances and choices from a reader, ticks the command
// scheduler while commands are pending, and can record the session into a
// transcript store.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"talkbox/internal/command"
	"talkbox/internal/dialogue"
	"talkbox/internal/errs"
	tlog "talkbox/internal/log"
	"talkbox/internal/script"
	"talkbox/internal/vars"
)

// ErrQuit is returned by Play when the player quits or input ends.
var ErrQuit = errors.New("quit")

// DefaultMaxTicks bounds the ticks spent on one wait.
const DefaultMaxTicks = 1 << 20

// Config assembles a Player.
type Config struct {
	Script *script.Script
	In     io.Reader
	Out    io.Writer
	ANSI   bool
	// Typewriter prints lines rune by rune at their speed tag. Needs Sleep.
	Typewriter bool
	Clock      command.Clock
	Store      *vars.Store
	// Registry replaces the built-in commands when set.
	Registry *command.Registry
	// Transcript, when set, records each Play as a session.
	Transcript Transcript
	// Sleep paces ticks in real time. Nil ticks as fast as possible.
	Sleep func(time.Duration)
	// Now measures the time spent at a prompt. Nil uses time.Now.
	Now      func() time.Time
	MaxTicks int
	Logger   *slog.Logger
}

// Player runs a script interactively.
type Player struct {
	cfg     Config
	console *Console
	in      *bufio.Scanner
	reg     *command.Registry
	sched   *command.Scheduler
	runner  *dialogue.Runner
	rec     *Recorder
	frame   time.Duration
	log     *slog.Logger
}

// New validates cfg and registers the built-in commands unless a registry is given.
func New(cfg Config) (*Player, error) {
	if cfg.Script == nil {
		return nil, errors.New("host: nil script")
	}
	if cfg.In == nil || cfg.Out == nil {
		return nil, errors.New("host: input and output are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = tlog.WithComponent("host")
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = DefaultMaxTicks
	}
	if cfg.Clock.TickRate <= 0 {
		cfg.Clock.TickRate = command.DefaultTickRate
	}
	if cfg.Store == nil {
		cfg.Store = vars.NewStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &Player{
		cfg: cfg,
		console: &Console{
			Out:        cfg.Out,
			ANSI:       cfg.ANSI,
			Typewriter: cfg.Typewriter,
			Sleep:      cfg.Sleep,
			Logger:     cfg.Logger,
		},
		in:    bufio.NewScanner(cfg.In),
		frame: time.Duration(float64(time.Second) / cfg.Clock.TickRate),
		log:   cfg.Logger.With(slog.String("script", cfg.Script.Name)),
	}
	p.reg = cfg.Registry
	if p.reg == nil {
		p.reg = command.NewRegistry()
		b := command.Builtins{Clock: cfg.Clock, Out: cfg.Out, Fade: p.console.Fade, Logger: cfg.Logger}
		if err := b.Register(p.reg); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Runner is the runner of the current or last Play, or nil.
func (p *Player) Runner() *dialogue.Runner { return p.runner }

// Session is the transcript session of the current or last Play, or 0.
func (p *Player) Session() int64 {
	if p.rec == nil {
		return 0
	}
	return p.rec.Session()
}

// Play runs the conversation from node until it ends, fails, or the player quits.
func (p *Player) Play(ctx context.Context, node string) (err error) {
	if node == "" {
		node = dialogue.DefaultStartNode
	}
	p.sched = command.NewScheduler(p.log)
	var exec dialogue.Executor = command.NewDispatcher(p.reg, p.sched, p.log)
	var sink dialogue.Sink = p.console
	p.rec = nil
	if p.cfg.Transcript != nil {
		rec, rerr := NewRecorder(ctx, p.cfg.Transcript, p.cfg.Script.Name, node, p.currentNode, p.log)
		if rerr != nil {
			return fmt.Errorf("begin transcript: %w", rerr)
		}
		p.rec = rec
		sink = Tee{p.console, rec}
		exec = rec.Executor(exec)
		defer func() { p.closeTranscript(err) }()
	}
	p.runner, err = dialogue.New(p.cfg.Script, dialogue.Options{
		Store:    p.cfg.Store,
		Executor: exec,
		Sink:     sink,
		Logger:   p.log,
	})
	if err != nil {
		return err
	}
	p.log.Info("play started", slog.String("node", node))
	if err := p.runner.Start(ctx, node); err != nil {
		return err
	}
	return p.loop(ctx)
}

// Jump moves the running conversation to node.
func (p *Player) Jump(ctx context.Context, node string) error {
	if p.runner == nil {
		return fmt.Errorf("%w: jump before play", errs.ErrState)
	}
	if p.rec != nil {
		p.rec.Jump(node)
	}
	return p.runner.Jump(ctx, node)
}

func (p *Player) currentNode() string {
	if p.runner == nil {
		return ""
	}
	return p.runner.Node()
}

func (p *Player) closeTranscript(err error) {
	outcome := "end"
	switch {
	case errors.Is(err, ErrQuit):
		outcome = "quit"
	case err != nil:
		outcome = "error"
		p.rec.add(storageError(err))
	}
	if cerr := p.rec.Close(outcome); cerr != nil {
		p.log.Warn("end transcript failed", slog.Any("err", cerr))
	}
}

func (p *Player) loop(ctx context.Context) error {
	waited := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		state := p.runner.State()
		switch state {
		case dialogue.Ended:
			p.drain()
			p.log.Info("play ended", slog.Uint64("frames", p.sched.Frame()))
			return nil
		case dialogue.Failed:
			return p.runner.Err()
		case dialogue.AwaitingCommand:
			if p.sched.Len() == 0 {
				return fmt.Errorf("%w: waiting on a command that nothing will finish", errs.ErrState)
			}
			if waited++; waited > p.cfg.MaxTicks {
				return fmt.Errorf("%w: command still pending after %d ticks", errs.ErrState, p.cfg.MaxTicks)
			}
			p.tick()
			continue
		case dialogue.AwaitingAdvance, dialogue.AwaitingOption:
		default:
			return fmt.Errorf("%w: unexpected runner state %s", errs.ErrState, state)
		}
		waited = 0
		p.console.Prompt(state)
		shown := p.cfg.Now()
		if !p.in.Scan() {
			if err := p.in.Err(); err != nil {
				return err
			}
			return ErrQuit
		}
		p.catchUp(p.cfg.Now().Sub(shown))
		input := strings.TrimSpace(p.in.Text())
		if input == "q" || input == "quit" {
			return ErrQuit
		}
		if err := p.apply(ctx, state, input); err != nil {
			return err
		}
	}
}

func (p *Player) apply(ctx context.Context, state dialogue.State, input string) error {
	if state == dialogue.AwaitingAdvance {
		return p.runner.Advance(ctx)
	}
	opts := p.runner.Options()
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(opts) {
		p.console.Notice(fmt.Sprintf("choose 1-%d", len(opts)))
		return nil
	}
	chosen := opts[n-1]
	if !chosen.Selectable {
		p.console.Notice("that option is locked")
		return nil
	}
	if p.rec != nil {
		p.rec.Choice(chosen)
	}
	return p.runner.PickOption(ctx, n-1)
}

func (p *Player) tick() {
	p.sched.Tick(p.frame)
	if p.cfg.Sleep != nil {
		p.cfg.Sleep(p.frame)
	}
}

// catchUp steps released commands, such as a fade, by the frames that passed
// while the player sat at a prompt, and at least one. The time has already
// elapsed, so these ticks do not sleep.
func (p *Player) catchUp(d time.Duration) {
	n := max(int(d/p.frame), 1)
	for i := 0; p.sched.Len() > 0 && i < n && i < p.cfg.MaxTicks; i++ {
		p.sched.Tick(p.frame)
	}
}

// drain steps released commands to completion once the conversation is over.
func (p *Player) drain() {
	for i := 0; p.sched.Len() > 0 && i < p.cfg.MaxTicks; i++ {
		p.tick()
	}
}
