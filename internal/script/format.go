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
	"io"
	"sort"
	"strings"
)

// Format writes s back in source form. Parsing the output yields the same
// nodes, levels and lines.
func Format(w io.Writer, s *Script) error {
	for i, title := range s.Order {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := formatNode(w, s.Nodes[title]); err != nil {
			return err
		}
	}
	return nil
}

func formatNode(w io.Writer, n *Node) error {
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\n", n.Title)
	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, n.Metadata[k])
	}
	b.WriteString("---\n")
	for _, l := range n.Lines {
		b.WriteString(strings.Repeat(" ", indentWidth*l.Level()))
		b.WriteString(FormatLine(l))
		b.WriteByte('\n')
	}
	b.WriteString("===\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatLine renders one line without indentation.
func FormatLine(l Line) string {
	switch v := l.(type) {
	case *TextLine:
		var b strings.Builder
		if v.Option {
			b.WriteString("-> ")
		}
		if v.Speaker != "" {
			b.WriteString(Escape(v.Speaker))
			b.WriteString(": ")
		}
		b.WriteString(v.Text)
		if t := v.Tag.String(); t != "" {
			b.WriteByte(' ')
			b.WriteString(t)
		}
		return b.String()
	case *ConditionalLine:
		if v.Expr == "" {
			return "<<" + v.Cond.String() + ">>"
		}
		return "<<" + v.Cond.String() + " " + v.Expr + ">>"
	case *CommandLine:
		return "<<" + formatCommand(v) + ">>"
	}
	return ""
}

func formatCommand(c *CommandLine) string {
	if a := c.Assign; a != nil {
		if a.Declare {
			return fmt.Sprintf("declare $%s = %s as %s", a.Var, a.Expr, a.Type)
		}
		op := "="
		if o := a.Op.Operator(); o != 0 {
			op = string(o) + "="
		}
		return fmt.Sprintf("set $%s %s %s", a.Var, op, a.Expr)
	}
	parts := []string{c.Name}
	switch {
	case c.Name == CmdJump:
		parts = append(parts, c.Target)
	case c.Target != "":
		parts = append(parts, "@"+c.Target)
	}
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}
