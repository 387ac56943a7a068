/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package host

import (
	"context"
	"log/slog"
	"strings"

	"talkbox/internal/command"
	"talkbox/internal/dialogue"
	"talkbox/internal/storage"
)

// Transcript is the part of storage.Store the recorder writes to.
type Transcript interface {
	BeginSession(ctx context.Context, script, node string) (int64, error)
	Append(ctx context.Context, id int64, ev storage.Event) (storage.Event, error)
	EndSession(ctx context.Context, id int64, outcome string) error
}

// Recorder tees runner events into a transcript session. It is a
// dialogue.Sink; recording failures are logged and never stop play.
type Recorder struct {
	ctx     context.Context
	store   Transcript
	session int64
	log     *slog.Logger
	node    func() string
}

// NewRecorder opens a session in store. node reports the runner's current
// node for events that carry no line.
func NewRecorder(ctx context.Context, store Transcript, script, start string, node func() string, logger *slog.Logger) (*Recorder, error) {
	id, err := store.BeginSession(ctx, script, start)
	if err != nil {
		return nil, err
	}
	return &Recorder{ctx: ctx, store: store, session: id, log: logger.With(slog.Int64("session", id)), node: node}, nil
}

// Session is the recorded session's id.
func (r *Recorder) Session() int64 { return r.session }

func (r *Recorder) add(ev storage.Event) {
	if ev.Node == "" && r.node != nil {
		ev.Node = r.node()
	}
	if _, err := r.store.Append(r.ctx, r.session, ev); err != nil {
		r.log.Warn("record event failed", slog.String("kind", string(ev.Kind)), slog.Any("err", err))
	}
}

func (r *Recorder) Start() {}

func (r *Recorder) DisplayLine(l *dialogue.Line) {
	text, err := l.Text()
	if err != nil {
		r.add(storage.Event{Kind: storage.EventError, Node: l.Node(), Text: err.Error()})
		return
	}
	r.add(storage.Event{Kind: storage.EventLine, Node: l.Node(), Speaker: l.Speaker(), Text: text})
}

func (r *Recorder) DisplayOptions(opts []dialogue.Option) {
	texts := make([]string, 0, len(opts))
	node := ""
	for _, o := range opts {
		text, _ := o.Line.Text()
		if !o.Selectable {
			text += " (locked)"
		}
		texts = append(texts, text)
		node = o.Line.Node()
	}
	r.add(storage.Event{Kind: storage.EventOptions, Node: node, Text: strings.Join(texts, "\n")})
}

func (r *Recorder) OptionSelected() {}

func (r *Recorder) End() {}

// Choice records the text of the picked option.
func (r *Recorder) Choice(o dialogue.Option) {
	text, _ := o.Line.Text()
	r.add(storage.Event{Kind: storage.EventChoice, Node: o.Line.Node(), Text: text})
}

// Jump records a host-initiated jump.
func (r *Recorder) Jump(node string) {
	r.add(storage.Event{Kind: storage.EventJump, Text: node})
}

// Close records the end event and ends the session with outcome.
func (r *Recorder) Close(outcome string) error {
	r.add(storage.Event{Kind: storage.EventEnd, Text: outcome})
	return r.store.EndSession(r.ctx, r.session, outcome)
}

// Executor wraps next so every command call is recorded before it runs.
func (r *Recorder) Executor(next dialogue.Executor) dialogue.Executor {
	return dialogue.ExecutorFunc(func(ctx context.Context, call command.Call, done func()) (command.Result, error) {
		r.add(storage.Event{Kind: storage.EventCommand, Node: call.Node, Text: call.String()})
		return next.Run(ctx, call, done)
	})
}

func storageError(err error) storage.Event {
	return storage.Event{Kind: storage.EventError, Text: err.Error()}
}

// Tee fans sink events out to every sink in order.
type Tee []dialogue.Sink

func (t Tee) Start() {
	for _, s := range t {
		s.Start()
	}
}

func (t Tee) DisplayLine(l *dialogue.Line) {
	for _, s := range t {
		s.DisplayLine(l)
	}
}

func (t Tee) DisplayOptions(opts []dialogue.Option) {
	for _, s := range t {
		s.DisplayOptions(opts)
	}
}

func (t Tee) OptionSelected() {
	for _, s := range t {
		s.OptionSelected()
	}
}

func (t Tee) End() {
	for _, s := range t {
		s.End()
	}
}
