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
	"errors"
	"reflect"
	"strings"
	"testing"

	"talkbox/internal/command"
	"talkbox/internal/errs"
	tlog "talkbox/internal/log"
	"talkbox/internal/script"
	"talkbox/internal/vars"
)

type recorder struct {
	events    []string
	last      *Line
	onLine    func(*Line)
	onOptions func([]Option)
}

func (r *recorder) Start() { r.events = append(r.events, "start") }

func (r *recorder) DisplayLine(l *Line) {
	txt, err := l.Text()
	if err != nil {
		txt = "ERR " + err.Error()
	}
	if l.Speaker() != "" {
		txt = l.Speaker() + ": " + txt
	}
	r.events = append(r.events, txt)
	r.last = l
	if r.onLine != nil {
		r.onLine(l)
	}
}

func (r *recorder) DisplayOptions(opts []Option) {
	parts := make([]string, len(opts))
	for i, o := range opts {
		parts[i] = o.Line.Raw()
		if !o.Selectable {
			parts[i] += "(locked)"
		}
	}
	r.events = append(r.events, "options["+strings.Join(parts, "|")+"]")
	if r.onOptions != nil {
		r.onOptions(opts)
	}
}

func (r *recorder) OptionSelected() { r.events = append(r.events, "selected") }
func (r *recorder) End()            { r.events = append(r.events, "end") }

func (r *recorder) take() []string {
	ev := r.events
	r.events = nil
	return ev
}

func newRunner(t *testing.T, src string, exec Executor) (*Runner, *recorder) {
	t.Helper()
	s, err := script.Parse("test", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rec := &recorder{}
	r, err := New(s, Options{Store: vars.NewStore(), Executor: exec, Sink: rec, Logger: tlog.Discard()})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r, rec
}

func expect(t *testing.T, rec *recorder, want ...string) {
	t.Helper()
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %q\nwant     %q", got, want)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

var ctx = context.Background()

func TestLinesAndAdvance(t *testing.T) {
	r, rec := newRunner(t, "title: Start\n---\nAnn: Hello\nBob: Hi\n", nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "Ann: Hello")
	if r.State() != AwaitingAdvance {
		t.Fatalf("state = %v", r.State())
	}
	must(t, r.Advance(ctx))
	expect(t, rec, "Bob: Hi")
	must(t, r.Advance(ctx))
	expect(t, rec, "end")
	if r.State() != Ended {
		t.Fatalf("state = %v", r.State())
	}
	if err := r.Advance(ctx); !errors.Is(err, errs.ErrState) {
		t.Fatalf("advance after end: %v", err)
	}
}

func TestLastAutoAdvances(t *testing.T) {
	r, rec := newRunner(t, "title: Start\n---\nOne #last\nTwo\n", nil)
	must(t, r.Start(ctx, "Start"))
	expect(t, rec, "start", "One", "Two")
	if r.State() != AwaitingAdvance {
		t.Fatalf("state = %v", r.State())
	}
}

const shopScript = `title: Start
---
<<declare $gold = 5 as number>>
-> Buy #lock:{$gold < 10}
    <<set $gold -= 10>>
    You bought it.
-> Leave
Done with {$gold} gold.
`

func TestLockedOptionRejected(t *testing.T) {
	r, rec := newRunner(t, shopScript, nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "options[Buy(locked)|Leave]")
	if err := r.PickOption(ctx, 0); !errors.Is(err, errs.ErrState) {
		t.Fatalf("pick locked: %v", err)
	}
	if r.State() != AwaitingOption {
		t.Fatalf("state after rejected pick = %v", r.State())
	}
	if err := r.PickOption(ctx, 5); !errors.Is(err, errs.ErrState) {
		t.Fatalf("pick out of range: %v", err)
	}
	must(t, r.PickOption(ctx, 1))
	expect(t, rec, "selected", "Done with 5 gold.")
}

func TestUnlockedOptionAdvancesPastBlock(t *testing.T) {
	r, rec := newRunner(t, strings.Replace(shopScript, "= 5 as", "= 15 as", 1), nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "options[Buy|Leave]")
	must(t, r.PickOption(ctx, 0))
	expect(t, rec, "selected", "You bought it.")
	must(t, r.Advance(ctx))
	expect(t, rec, "Done with 5 gold.")
	must(t, r.Advance(ctx))
	expect(t, rec, "end")
}

func TestOptionInsideBranch(t *testing.T) {
	src := `title: Start
---
<<declare $gold = 15 as number>>
<<if $gold >= 10>>
    -> Buy #lock:{$gold < 10}
        Sold.
<<endif>>
After.
`
	r, rec := newRunner(t, src, nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "options[Buy]")
	must(t, r.PickOption(ctx, 0))
	expect(t, rec, "selected", "Sold.")
	must(t, r.Advance(ctx))
	expect(t, rec, "After.")

	r, rec = newRunner(t, strings.Replace(src, "= 15 as", "= 5 as", 1), nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "After.")
}

func TestHiddenOptions(t *testing.T) {
	src := `title: Start
---
<<declare $met = false as bool>>
-> Who are you?
-> Nice to see you again #hide:{$met}
`
	r, rec := newRunner(t, src, nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "options[Who are you?]")
	_ = r.Store().Set("met", vars.BoolValue(true))
	must(t, r.PickOption(ctx, 0))
	expect(t, rec, "selected", "end")
}

func TestNoDisplayableOptionsEnds(t *testing.T) {
	src := `title: Start
---
-> A #hide:{false}
-> B #hide:{1 > 2}
Never shown.
`
	r, rec := newRunner(t, src, nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "end")
	if r.State() != Ended {
		t.Fatalf("state = %v", r.State())
	}
}

func TestBranches(t *testing.T) {
	src := `title: Start
---
<<declare $n = 2 as number>>
<<if $n == 1>>
    one
<<elseif $n == 2>>
    two
    <<if $n > 1>>
        nested
    <<endif>>
<<else>>
    other
<<endif>>
<<if false>>
    skipped
<<else>>
    fallback
<<endif>>
<<if false>>
    nothing
<<endif>>
tail
`
	r, rec := newRunner(t, src, nil)
	must(t, r.Start(ctx, ""))
	var got []string
	for r.State() == AwaitingAdvance {
		got = append(got, rec.take()...)
		must(t, r.Advance(ctx))
	}
	got = append(got, rec.take()...)
	want := []string{"start", "two", "nested", "fallback", "tail", "end"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNestedOptions(t *testing.T) {
	src := `title: Start
---
-> Ask
    -> About the town
        It is old.
    -> About you
        I am old.
    Anything else?
-> Leave
    Bye.
End of chat.
`
	r, rec := newRunner(t, src, nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "options[Ask|Leave]")
	must(t, r.PickOption(ctx, 0))
	expect(t, rec, "selected", "options[About the town|About you]")
	must(t, r.PickOption(ctx, 1))
	expect(t, rec, "selected", "I am old.")
	must(t, r.Advance(ctx))
	expect(t, rec, "Anything else?")
	must(t, r.Advance(ctx))
	expect(t, rec, "End of chat.")
}

func TestSubstitutionAndAssignment(t *testing.T) {
	src := `title: Start
---
<<declare $name = Ann as string>>
<<declare $gold = 1 as number>>
<<set $gold += 2>>
<<set $gold *= 3>>
<<set $name = $name + "!">>
[bold]{$name}[/bold] has {$gold} gold.
`
	r, rec := newRunner(t, src, nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "Ann! has 9 gold.")
	sp, err := rec.last.Spans()
	must(t, err)
	spans := sp.Collect()
	if len(spans) != 2 || !spans[0].Style.Bold() || spans[0].Text != "Ann!" {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestBoolAssignmentFromStatement(t *testing.T) {
	src := `title: Start
---
<<declare $gold = 15 as number>>
<<declare $rich = $gold >= 10 as bool>>
<<declare $a = true as bool>>
<<declare $b = false as bool>>
<<set $a = $a && $b>>
<<set $b = !$a || $gold < 5>>
rich={$rich} a={$a} b={$b}
`
	r, rec := newRunner(t, src, nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "rich=true a=false b=true")
	got, err := r.Store().Get("rich")
	must(t, err)
	if got.Type() != vars.Bool || !got.Bool() {
		t.Fatalf("$rich = %v", got)
	}
}

func TestScriptJump(t *testing.T) {
	src := "title: Start\n---\nhere\n<<jump Other>>\nnever\n===\ntitle: Other\n---\nthere\n"
	r, rec := newRunner(t, src, nil)
	must(t, r.Start(ctx, ""))
	must(t, r.Advance(ctx))
	expect(t, rec, "start", "here", "there")
	if r.Node() != "Other" {
		t.Fatalf("node = %q", r.Node())
	}
	must(t, r.Advance(ctx))
	expect(t, rec, "end")
}

func TestStop(t *testing.T) {
	r, rec := newRunner(t, "title: Start\n---\n<<stop>>\nnever\n", nil)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "end")
}

// pending records calls and defers their completion to the test.
type pending struct {
	calls     []command.Call
	done      []func()
	cancelled int
}

func (p *pending) Run(_ context.Context, call command.Call, done func()) (command.Result, error) {
	p.calls = append(p.calls, call)
	if call.Name == "now" {
		return command.Immediate, nil
	}
	if call.Name == "unknown" {
		return command.Result{}, errs.ErrLookup
	}
	p.done = append(p.done, done)
	return command.Result{Pending: true, Cancel: func() { p.cancelled++ }}, nil
}

func TestImmediateCommand(t *testing.T) {
	p := &pending{}
	r, rec := newRunner(t, "title: Start\n---\n<<now @door 1 + 2 \"x\">>\nafter\n", p)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "after")
	c := p.calls[0]
	if c.Name != "now" || c.Target != "door" || len(c.Args) != 2 || c.Args[0].Number() != 3 || c.Args[1].String() != "x" {
		t.Fatalf("call = %+v", c)
	}
	if c.Node != "Start" || c.Line != 3 {
		t.Fatalf("call position = %s:%d", c.Node, c.Line)
	}
}

func TestPendingCommand(t *testing.T) {
	p := &pending{}
	r, rec := newRunner(t, "title: Start\n---\n<<wait 1>>\nafter\n", p)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start")
	if !r.Waiting() {
		t.Fatalf("state = %v, want waiting", r.State())
	}
	must(t, r.Advance(ctx))
	expect(t, rec)
	p.done[0]()
	expect(t, rec, "after")
	if r.Waiting() {
		t.Fatal("still waiting")
	}
}

func TestCommandFinishedByHost(t *testing.T) {
	p := &pending{}
	r, rec := newRunner(t, "title: Start\n---\n<<wait 1>>\nafter\n", p)
	must(t, r.Start(ctx, ""))
	must(t, r.CommandFinished(ctx))
	expect(t, rec, "start", "after")
	if err := r.CommandFinished(ctx); !errors.Is(err, errs.ErrState) {
		t.Fatalf("second finish: %v", err)
	}
	p.done[0]()
	expect(t, rec)
}

func TestJumpAbandonsPendingCommand(t *testing.T) {
	p := &pending{}
	src := "title: Start\n---\n<<wait 5>>\nnot reached\n===\ntitle: Other\n---\nfirst of other\nsecond of other\n"
	r, rec := newRunner(t, src, p)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start")
	must(t, r.Jump(ctx, "Other"))
	expect(t, rec, "first of other")
	if p.cancelled != 1 {
		t.Fatalf("cancelled = %d", p.cancelled)
	}
	p.done[0]()
	expect(t, rec)
	must(t, r.Advance(ctx))
	expect(t, rec, "second of other")
}

func TestSynchronousCompletionInsideRun(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, _ command.Call, done func()) (command.Result, error) {
		done()
		return command.Result{Pending: true}, nil
	})
	r, rec := newRunner(t, "title: Start\n---\n<<fx>>\nafter\n", exec)
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "after")
}

func TestReentrantAdvanceIsNoop(t *testing.T) {
	r, rec := newRunner(t, "title: Start\n---\none\ntwo\n", nil)
	rec.onLine = func(*Line) { must(t, r.Advance(ctx)) }
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "one")
}

func TestPickInsideDisplayOptions(t *testing.T) {
	r, rec := newRunner(t, "title: Start\n---\n-> a\n    chose a\n-> b\n", nil)
	rec.onOptions = func([]Option) { must(t, r.PickOption(ctx, 0)) }
	must(t, r.Start(ctx, ""))
	expect(t, rec, "start", "options[a|b]", "selected", "chose a")
}

func TestMisuse(t *testing.T) {
	r, _ := newRunner(t, "title: Start\n---\n-> a\n", nil)
	if err := r.Advance(ctx); !errors.Is(err, errs.ErrState) {
		t.Fatalf("advance before start: %v", err)
	}
	if err := r.Start(ctx, "Nope"); !errors.Is(err, errs.ErrLookup) {
		t.Fatalf("start unknown: %v", err)
	}
	must(t, r.Start(ctx, ""))
	if err := r.Start(ctx, ""); !errors.Is(err, errs.ErrState) {
		t.Fatalf("start twice: %v", err)
	}
	if err := r.Advance(ctx); !errors.Is(err, errs.ErrState) {
		t.Fatalf("advance during options: %v", err)
	}
	if err := r.Jump(ctx, "Nope"); !errors.Is(err, errs.ErrLookup) {
		t.Fatalf("jump unknown: %v", err)
	}
}

func TestRuntimeErrorsFail(t *testing.T) {
	cases := map[string]error{
		"title: Start\n---\n<<if $nope>>\n    x\n<<endif>>\n":                    errs.ErrLookup,
		"title: Start\n---\n<<set $nope = 1>>\n":                                 errs.ErrLookup,
		"title: Start\n---\n<<declare $n = x as number>>\n":                      errs.ErrType,
		"title: Start\n---\n<<jump Missing>>\n":                                  errs.ErrLookup,
		"title: Start\n---\n<<unknown>>\n":                                       errs.ErrLookup,
		"title: Start\n---\n<<declare $s = a as string>>\n<<set $s -= 1>>\n":     errs.ErrType,
		"title: Start\n---\n<<jump Start>>\n":                                    errs.ErrState,
		"title: Start\n---\n<<declare $a = true as bool>>\n<<set $a += true>>\n": errs.ErrType,
		"title: Start\n---\n<<declare $a = 1 + 2 as bool>>\n":                    errs.ErrType,
	}
	for src, want := range cases {
		r, _ := newRunner(t, src, &pending{})
		err := r.Start(ctx, "")
		if !errors.Is(err, want) {
			t.Fatalf("%q: got %v, want %v", src, err, want)
		}
		if r.State() != Failed || !errors.Is(r.Err(), want) {
			t.Fatalf("%q: state = %v err = %v", src, r.State(), r.Err())
		}
		if err := r.Advance(ctx); !errors.Is(err, errs.ErrState) {
			t.Fatalf("%q: advance after failure: %v", src, err)
		}
	}
}

func TestSpanErrorsSurfaceOnLine(t *testing.T) {
	r, rec := newRunner(t, "title: Start\n---\nHi {$nope}\n", nil)
	must(t, r.Start(ctx, ""))
	if _, err := rec.last.Spans(); !errors.Is(err, errs.ErrLookup) {
		t.Fatalf("spans error = %v", err)
	}
}

func TestNoExecutor(t *testing.T) {
	r, _ := newRunner(t, "title: Start\n---\n<<wait 1>>\n", nil)
	if err := r.Start(ctx, ""); !errors.Is(err, errs.ErrLookup) {
		t.Fatalf("got %v", err)
	}
}

func TestSharedStoreAcrossRunners(t *testing.T) {
	s, err := script.Parse("test", "title: A\n---\n<<declare $x = 1 as number>>\n===\ntitle: B\n---\nx is {$x}\n")
	must(t, err)
	store := vars.NewStore()
	a, _ := New(s, Options{Store: store, Logger: tlog.Discard()})
	must(t, a.Start(ctx, "A"))
	rec := &recorder{}
	b, _ := New(s, Options{Store: store, Sink: rec, Logger: tlog.Discard()})
	must(t, b.Start(ctx, "B"))
	expect(t, rec, "start", "x is 1")
}
