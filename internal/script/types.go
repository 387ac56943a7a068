/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"fmt"

	"talkbox/internal/errs"
	"talkbox/internal/tag"
	"talkbox/internal/vars"
)

// Script is a parsed dialogue file: a table of named nodes.
// A Script is immutable once parsed and may be shared by many runners.
type Script struct {
	Name  string
	Nodes map[string]*Node
	Order []string // node titles in source order
}

// Node returns the node with the given title.
func (s *Script) Node(title string) (*Node, bool) {
	n, ok := s.Nodes[title]
	return n, ok
}

// Node is one titled section. Metadata holds the header lines between the
// title and the '---' separator.
type Node struct {
	Title      string
	Metadata   map[string]string
	Lines      []Line
	SourceLine int
}

// Kind indicates the variant of a Line.
type Kind int

const (
	KindText Kind = iota
	KindConditional
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindConditional:
		return "conditional"
	case KindCommand:
		return "command"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Line is one executable unit of a node.
// Level is the indentation depth and Index the position within Node.Lines.
type Line interface {
	Level() int
	Index() int
	SourceLine() int
	Kind() Kind
}

type pos struct {
	level, index, src int
}

func (p pos) Level() int      { return p.level }
func (p pos) Index() int      { return p.index }
func (p pos) SourceLine() int { return p.src }

// TextLine is a dialogue line or, with Option set, a selectable option.
// Text keeps its escapes and markup for the span pass; Speaker is unescaped.
type TextLine struct {
	pos
	Text    string
	Speaker string
	Option  bool
	Tag     tag.Tag
}

func (*TextLine) Kind() Kind { return KindText }

type Cond int

const (
	If Cond = iota
	ElseIf
	Else
	EndIf
)

func (c Cond) String() string {
	switch c {
	case If:
		return "if"
	case ElseIf:
		return "elseif"
	case Else:
		return "else"
	case EndIf:
		return "endif"
	}
	return fmt.Sprintf("Cond(%d)", int(c))
}

// ConditionalLine is one of <<if>>, <<elseif>>, <<else>> or <<endif>>.
type ConditionalLine struct {
	pos
	Cond Cond
	Expr string
}

func (*ConditionalLine) Kind() Kind { return KindConditional }

// Reserved command names handled by the runner itself.
const (
	CmdJump    = "jump"
	CmdStop    = "stop"
	CmdDeclare = "declare"
	CmdSet     = "set"
)

// CommandLine is a <<name args...>> line. Args are raw expressions evaluated
// when the command runs. Assign is set for declare and set.
type CommandLine struct {
	pos
	Name   string
	Target string
	Args   []string
	Assign *Assignment
}

func (*CommandLine) Kind() Kind { return KindCommand }

// Reserved reports whether the runner executes this command without the host.
func (c *CommandLine) Reserved() bool {
	switch c.Name {
	case CmdJump, CmdStop, CmdDeclare, CmdSet:
		return true
	}
	return false
}

type AssignOp int

const (
	Assign AssignOp = iota
	AddAssign
	SubAssign
	MulAssign
	DivAssign
)

// Operator is the arithmetic operator folded into the assignment, or 0.
func (o AssignOp) Operator() byte {
	return [...]byte{0, '+', '-', '*', '/'}[o]
}

// Assignment is a parsed declare or set.
type Assignment struct {
	Declare bool
	Var     string // without '$'
	Op      AssignOp
	Expr    string
	Type    vars.Type // declare only
}

// Error is a parse error with position context.
type Error struct {
	Script  string
	Node    string
	Line    int
	Column  int
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	where := e.Script
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d:%d", where, e.Line, e.Column)
	}
	if e.Node != "" {
		return fmt.Sprintf("%s: node %s: %s", where, e.Node, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{errs.ErrParse, e.Err}
	}
	return []error{errs.ErrParse}
}
