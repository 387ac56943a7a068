/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package host

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"talkbox/internal/dialogue"
	"talkbox/internal/tag"
)

// Console is a dialogue.Sink that prints to a terminal-like writer.
type Console struct {
	Out  io.Writer
	ANSI bool
	// Typewriter delays each rune by the line's speed when Sleep is set.
	Typewriter bool
	Sleep      func(time.Duration)
	Logger     *slog.Logger

	options []dialogue.Option
}

// Per-rune delays for the speed tags.
var runeDelay = map[tag.Speed]time.Duration{
	tag.SpeedSlow: 60 * time.Millisecond,
	tag.SpeedNorm: 25 * time.Millisecond,
	tag.SpeedFast: 8 * time.Millisecond,
}

func (c *Console) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(c.Out, format, args...); err != nil && c.Logger != nil {
		c.Logger.Warn("console write failed", slog.Any("err", err))
	}
}

func (c *Console) Start() {}

func (c *Console) DisplayLine(l *dialogue.Line) {
	sp, err := l.Spans()
	if err != nil {
		c.printf("%s\n", faint("[markup error: "+err.Error()+"]", c.ANSI))
		return
	}
	if l.Speaker() != "" {
		c.printf("%s: ", bold(l.Speaker(), c.ANSI))
	}
	if c.Typewriter && c.Sleep != nil {
		d := runeDelay[l.Tag().Speed()]
		for s := range sp.All() {
			for _, r := range s.Text {
				c.printf("%s", sgr(s.Style, string(r)))
				c.Sleep(d)
			}
		}
	} else if err := WriteSpans(c.Out, sp, c.ANSI); err != nil && c.Logger != nil {
		c.Logger.Warn("console write failed", slog.Any("err", err))
	}
	c.printf("\n")
}

func (c *Console) DisplayOptions(opts []dialogue.Option) {
	c.options = opts
	for _, o := range opts {
		text, err := o.Line.Text()
		if err != nil {
			text = "[markup error: " + err.Error() + "]"
		}
		entry := fmt.Sprintf("  %d) %s", o.Index+1, text)
		if !o.Selectable {
			entry = faint(entry+" (locked)", c.ANSI)
		}
		c.printf("%s\n", entry)
	}
}

func (c *Console) OptionSelected() { c.options = nil }

func (c *Console) End() { c.printf("%s\n", faint("-- end --", c.ANSI)) }

// Fade reports a finished fade. It is wired as the fade command's callback.
func (c *Console) Fade(target string, remaining float64) {
	if remaining > 0 {
		return
	}
	if target == "" {
		target = "screen"
	}
	c.printf("%s\n", faint("("+target+" faded)", c.ANSI))
}

// Prompt prints the input hint for the current state.
func (c *Console) Prompt(s dialogue.State) {
	switch s {
	case dialogue.AwaitingAdvance:
		c.printf("%s", faint("[enter] ", c.ANSI))
	case dialogue.AwaitingOption:
		c.printf("%s", faint(fmt.Sprintf("[1-%d] ", len(c.options)), c.ANSI))
	}
}

// Notice prints a host message such as a rejected choice.
func (c *Console) Notice(msg string) {
	c.printf("%s\n", faint(strings.TrimSpace(msg), c.ANSI))
}
