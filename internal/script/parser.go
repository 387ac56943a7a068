/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"talkbox/internal/errs"
	"talkbox/internal/tag"
	"talkbox/internal/vars"
)

// Patterns
var (
	reTitle   = regexp.MustCompile(`^title:\s*(.*?)\s*$`)
	reNodeRef = regexp.MustCompile(`^\w+$`)
	reMeta    = regexp.MustCompile(`^([\w\-]+)\s*:\s*(.*?)\s*$`)
	reCond    = regexp.MustCompile(`(?i)^<<\s*(if|elseif|else|endif)\b\s*(.*?)\s*>>$`)
	reCommand = regexp.MustCompile(`^<<\s*([A-Za-z_]\w*)\b\s*(.*?)\s*>>$`)
	reOption  = regexp.MustCompile(`^->\s*(.*?)\s*$`)
	reDeclare = regexp.MustCompile(`^\$(\w+)\s*(?:to\b|=)\s*(.+?)\s+as\s+(\w+)$`)
	reSet     = regexp.MustCompile(`^\$(\w+)\s*(to\b|[-+*/]?=)\s*(.+)$`)
)

const indentWidth = 4

type section int

const (
	outside section = iota
	header
	body
)

type openIf struct {
	level   int
	line    int
	sawElse bool
}

type parser struct {
	script *Script
	node   *Node
	lineNo int
	col    int
	ifs    []openIf
	prev   Line
}

// ParseFile reads and parses a script file. The script is named after the
// file without its extension.
func ParseFile(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(name, string(b))
}

// Parse compiles script text into its node table.
//
// A node is a "title: Name" line, optional "key: value" header lines, a "---"
// separator and body lines up to "===", the next title or end of input.
// Body lines are indented four spaces (or one tab) per level.
//
// The first error aborts parsing and is returned as *Error.
func Parse(name, input string) (*Script, error) {
	p := &parser{script: &Script{Name: name, Nodes: map[string]*Node{}}}
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	state := outside
	for scanner.Scan() {
		p.lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")
		trim := strings.TrimSpace(raw)
		p.col = 1
		switch state {
		case outside:
			if trim == "" {
				continue
			}
			m := reTitle.FindStringSubmatch(trim)
			if m == nil {
				return nil, p.errorf("expected 'title:' but found %q", trim)
			}
			if err := p.open(m[1]); err != nil {
				return nil, err
			}
			state = header
		case header:
			switch {
			case trim == "":
			case trim == "---":
				state = body
			case reTitle.MatchString(trim):
				return nil, p.errorf("missing '---' before the next title")
			default:
				m := reMeta.FindStringSubmatch(trim)
				if m == nil {
					return nil, p.errorf("bad header line %q (missing '---'?)", trim)
				}
				p.node.Metadata[strings.ToLower(m[1])] = m[2]
			}
		case body:
			width := leadingWidth(raw)
			switch {
			case trim == "===":
				if err := p.close(); err != nil {
					return nil, err
				}
				state = outside
			case width == 0 && reTitle.MatchString(trim):
				if err := p.close(); err != nil {
					return nil, err
				}
				if err := p.open(reTitle.FindStringSubmatch(trim)[1]); err != nil {
					return nil, err
				}
				state = header
			case trim == "":
			default:
				p.col = width + 1
				if err := p.line(width/indentWidth, trim); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Script: name, Line: p.lineNo, Message: err.Error(), Err: err}
	}
	switch state {
	case header:
		return nil, p.errorf("missing '---' separator")
	case body:
		if err := p.close(); err != nil {
			return nil, err
		}
	}
	if len(p.script.Order) == 0 {
		return nil, &Error{Script: name, Message: "script has no nodes"}
	}
	return p.script, nil
}

func (p *parser) open(title string) error {
	p.node = nil
	if !reNodeRef.MatchString(title) {
		return p.errorf("invalid node title %q", title)
	}
	if _, dup := p.script.Nodes[title]; dup {
		return p.errorf("duplicate node title %q", title)
	}
	p.node = &Node{Title: title, Metadata: map[string]string{}, SourceLine: p.lineNo}
	p.script.Nodes[title] = p.node
	p.script.Order = append(p.script.Order, title)
	p.ifs = nil
	p.prev = nil
	return nil
}

func (p *parser) close() error {
	if n := len(p.ifs); n > 0 {
		p.lineNo = p.ifs[n-1].line
		return p.errorf("<<if>> has no matching <<endif>>")
	}
	return nil
}

func (p *parser) line(level int, trim string) error {
	pp := pos{level: level, index: len(p.node.Lines), src: p.lineNo}
	var (
		l   Line
		err error
	)
	if m := reCond.FindStringSubmatch(trim); m != nil {
		l, err = p.conditional(pp, strings.ToLower(m[1]), m[2])
	} else if m := reCommand.FindStringSubmatch(trim); m != nil {
		l, err = p.command(pp, strings.ToLower(m[1]), m[2])
	} else if strings.HasPrefix(trim, "<<") {
		err = p.errorf("malformed command %q", trim)
	} else {
		l, err = p.text(pp, trim)
	}
	if err != nil {
		return err
	}
	if err := p.check(l); err != nil {
		return err
	}
	p.node.Lines = append(p.node.Lines, l)
	p.prev = l
	return nil
}

// check enforces block structure: indentation rises by one level only below
// an option or a branch, and every if is closed by an endif at its level.
func (p *parser) check(l Line) error {
	lvl := l.Level()
	switch {
	case p.prev == nil:
		if lvl != 0 {
			return p.errorf("first line of a node must not be indented")
		}
	case lvl > p.prev.Level():
		if lvl != p.prev.Level()+1 {
			return p.errorf("indentation jumps from level %d to %d", p.prev.Level(), lvl)
		}
		if !opensBlock(p.prev) {
			return p.errorf("unexpected indentation; only options and branches open a block")
		}
	}
	if n := len(p.ifs); n > 0 && lvl < p.ifs[n-1].level {
		p.lineNo = p.ifs[n-1].line
		return p.errorf("<<if>> has no matching <<endif>>")
	}
	var top *openIf
	if n := len(p.ifs); n > 0 && p.ifs[n-1].level == lvl {
		top = &p.ifs[n-1]
	}
	c, isCond := l.(*ConditionalLine)
	switch {
	case isCond && c.Cond == If:
		p.ifs = append(p.ifs, openIf{level: lvl, line: p.lineNo})
	case isCond && top == nil:
		return p.errorf("<<%s>> without an open <<if>> at this level", c.Cond)
	case isCond && c.Cond == EndIf:
		p.ifs = p.ifs[:len(p.ifs)-1]
	case isCond && top.sawElse:
		return p.errorf("<<%s>> after <<else>>", c.Cond)
	case isCond:
		top.sawElse = c.Cond == Else
	case top != nil:
		return p.errorf("only elseif, else or endif may appear at the level of an open <<if>>")
	}
	return nil
}

func opensBlock(l Line) bool {
	switch v := l.(type) {
	case *TextLine:
		return v.Option
	case *ConditionalLine:
		return v.Cond != EndIf
	}
	return false
}

func (p *parser) conditional(pp pos, kw, expr string) (Line, error) {
	c := map[string]Cond{"if": If, "elseif": ElseIf, "else": Else, "endif": EndIf}[kw]
	switch c {
	case If, ElseIf:
		if expr == "" {
			return nil, p.errorf("<<%s>> needs an expression", c)
		}
	default:
		if expr != "" {
			return nil, p.errorf("<<%s>> takes no expression, got %q", c, expr)
		}
	}
	return &ConditionalLine{pos: pp, Cond: c, Expr: expr}, nil
}

func (p *parser) command(pp pos, name, args string) (Line, error) {
	cl := &CommandLine{pos: pp, Name: name}
	switch name {
	case CmdDeclare:
		m := reDeclare.FindStringSubmatch(args)
		if m == nil {
			return nil, p.errorf("malformed declare %q, want <<declare $name = value as type>>", args)
		}
		typ, err := vars.ParseType(m[3])
		if err != nil {
			return nil, p.wrap(err)
		}
		cl.Assign = &Assignment{Declare: true, Var: m[1], Op: Assign, Expr: m[2], Type: typ}
	case CmdSet:
		m := reSet.FindStringSubmatch(args)
		if m == nil {
			return nil, p.errorf("malformed set %q, want <<set $name = value>>", args)
		}
		op := map[string]AssignOp{"to": Assign, "=": Assign, "+=": AddAssign, "-=": SubAssign, "*=": MulAssign, "/=": DivAssign}[m[2]]
		cl.Assign = &Assignment{Var: m[1], Op: op, Expr: m[3]}
	case CmdStop:
		if args != "" {
			return nil, p.errorf("<<stop>> takes no arguments")
		}
	case CmdJump:
		words, err := splitArgs(args)
		if err != nil {
			return nil, p.wrap(err)
		}
		if len(words) != 1 || !reNodeRef.MatchString(words[0]) {
			return nil, p.errorf("<<jump>> takes exactly one node name, got %q", args)
		}
		cl.Target = words[0]
	default:
		words, err := splitArgs(args)
		if err != nil {
			return nil, p.wrap(err)
		}
		if len(words) > 0 && strings.HasPrefix(words[0], "@") {
			cl.Target = words[0][1:]
			if cl.Target == "" {
				return nil, p.errorf("empty command target")
			}
			words = words[1:]
		}
		cl.Args = words
	}
	return cl, nil
}

func (p *parser) text(pp pos, trim string) (Line, error) {
	text, tags, at, err := splitTags(trim)
	if err != nil {
		p.col += at
		return nil, p.wrap(err)
	}
	tg, err := tag.Build(tags)
	if err != nil {
		p.col += at
		return nil, p.wrap(err)
	}
	tl := &TextLine{pos: pp, Tag: tg}
	if m := reOption.FindStringSubmatch(text); m != nil {
		tl.Option = true
		text = m[1]
	}
	if i := indexUnescaped(text, ':', 1); i > 0 {
		speaker, err := Unescape(strings.TrimSpace(text[:i]))
		if err != nil {
			return nil, p.wrap(err)
		}
		tl.Speaker = speaker
		text = strings.TrimSpace(text[i+1:])
	}
	if err := checkEscapes(text); err != nil {
		return nil, p.wrap(err)
	}
	if tl.Option && text == "" {
		return nil, p.errorf("empty option")
	}
	tl.Text = text
	return tl, nil
}

func (p *parser) errorf(format string, args ...any) *Error {
	e := &Error{Script: p.script.Name, Line: p.lineNo, Column: p.col, Message: fmt.Sprintf(format, args...)}
	if p.node != nil {
		e.Node = p.node.Title
	}
	return e
}

func (p *parser) wrap(err error) *Error {
	e := p.errorf("%s", strings.TrimPrefix(err.Error(), errs.ErrParse.Error()+": "))
	e.Err = err
	return e
}

func leadingWidth(raw string) int {
	w := 0
	for _, r := range raw {
		switch r {
		case ' ':
			w++
		case '\t':
			w += indentWidth
		default:
			return w
		}
	}
	return w
}
