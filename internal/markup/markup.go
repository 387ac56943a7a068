/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package markup turns the bracketed markup of a dialogue line into styled
// spans.
//
//	[bold]Hi[/bold] {$name}, [color=#ff0000]run[/]!
//
// Escapes and {expression} substitution happen in the same pass; substituted
// text is never scanned for markup.
package markup

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"talkbox/internal/errs"
)

// Substituter renders the value of an inline {expression}.
type Substituter interface {
	Substitute(expr string) (string, error)
}

// SubstituterFunc adapts a function to Substituter.
type SubstituterFunc func(expr string) (string, error)

func (f SubstituterFunc) Substitute(expr string) (string, error) { return f(expr) }

type Span struct {
	Text  string
	Style Style
}

type region struct {
	name       string
	style      Style
	start, end int
	color      bool
}

// Spans is the result of a parse. Runs are computed when enumerated.
type Spans struct {
	text    string
	regions []region
}

// Text is the plain text with markup removed.
func (s *Spans) Text() string { return s.text }

// All yields the runs in order. Each run boundary is a point where a region
// opens or closes.
func (s *Spans) All() iter.Seq[Span] {
	return func(yield func(Span) bool) {
		cuts := map[int]struct{}{0: {}, len(s.text): {}}
		for _, r := range s.regions {
			cuts[r.start] = struct{}{}
			cuts[r.end] = struct{}{}
		}
		bounds := make([]int, 0, len(cuts))
		for c := range cuts {
			bounds = append(bounds, c)
		}
		sort.Ints(bounds)
		for i := 0; i+1 < len(bounds); i++ {
			a, b := bounds[i], bounds[i+1]
			var st Style
			colored := false
			for _, r := range s.regions {
				if r.start <= a && r.end >= b {
					st |= r.style
					colored = colored || r.color
				}
			}
			if !colored {
				st |= colorStyle(DefaultColor)
			}
			if !yield(Span{Text: s.text[a:b], Style: st}) {
				return
			}
		}
	}
}

// Collect returns All as a slice.
func (s *Spans) Collect() []Span {
	var out []Span
	for sp := range s.All() {
		out = append(out, sp)
	}
	return out
}

// Parse scans text once. sub may be nil when the text has no {expression}.
func Parse(text string, sub Substituter) (*Spans, error) {
	var (
		b      strings.Builder
		open   []region
		closed []region
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '\\':
			if i+1 >= len(text) {
				return nil, fmt.Errorf("%w: trailing backslash", errs.ErrParse)
			}
			i++
			switch n := text[i]; n {
			case 'n':
				b.WriteByte('\n')
			case '[', ']', '{', '}', '\\', ':', '#':
				b.WriteByte(n)
			default:
				return nil, fmt.Errorf("%w: unknown escape \\%c", errs.ErrParse, n)
			}
		case '{':
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at %d", errs.ErrParse, i)
			}
			if sub == nil {
				return nil, fmt.Errorf("%w: no substituter for {%s}", errs.ErrParse, text[i+1:i+end])
			}
			v, err := sub.Substitute(strings.TrimSpace(text[i+1 : i+end]))
			if err != nil {
				return nil, fmt.Errorf("substitute {%s}: %w", text[i+1:i+end], err)
			}
			b.WriteString(v)
			i += end
		case '[':
			end := strings.IndexByte(text[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '[' at %d", errs.ErrParse, i)
			}
			body := strings.TrimSpace(text[i+1 : i+end])
			i += end
			if strings.HasPrefix(body, "/") {
				r, rest, err := closeRegion(open, strings.ToLower(strings.TrimSpace(body[1:])))
				if err != nil {
					return nil, err
				}
				r.end = b.Len()
				closed = append(closed, r)
				open = rest
				continue
			}
			name, value, hasValue := strings.Cut(body, "=")
			name = canonical(strings.ToLower(strings.TrimSpace(name)))
			for _, r := range open {
				if r.name == name {
					return nil, fmt.Errorf("%w: [%s] is already open", errs.ErrParse, name)
				}
			}
			st, err := markupStyle(name, strings.TrimSpace(value), hasValue)
			if err != nil {
				return nil, err
			}
			open = append(open, region{name: name, style: st, start: b.Len(), color: name == "color"})
		case ']', '}':
			return nil, fmt.Errorf("%w: unmatched '%c' at %d", errs.ErrParse, c, i)
		default:
			b.WriteByte(c)
		}
	}
	if len(open) > 0 {
		names := make([]string, len(open))
		for i, r := range open {
			names[i] = r.name
		}
		return nil, fmt.Errorf("%w: unclosed markup %s", errs.ErrParse, strings.Join(names, ", "))
	}
	return &Spans{text: b.String(), regions: closed}, nil
}

func canonical(name string) string {
	switch name {
	case "b":
		return "bold"
	case "i":
		return "italic"
	case "colour":
		return "color"
	}
	return name
}

// closeRegion removes the named region, or the most recent one for [/].
func closeRegion(open []region, name string) (region, []region, error) {
	if len(open) == 0 {
		return region{}, nil, fmt.Errorf("%w: [/%s] closes nothing", errs.ErrParse, name)
	}
	if name == "" {
		return open[len(open)-1], open[:len(open)-1], nil
	}
	name = canonical(name)
	for i := len(open) - 1; i >= 0; i-- {
		if open[i].name == name {
			rest := append(append([]region(nil), open[:i]...), open[i+1:]...)
			return open[i], rest, nil
		}
	}
	return region{}, nil, fmt.Errorf("%w: [/%s] has no matching open markup", errs.ErrParse, name)
}
