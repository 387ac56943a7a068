/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package expr

import (
	"fmt"
	"strings"

	"talkbox/internal/errs"
	"talkbox/internal/vars"
)

var comparisons = []string{"==", "!=", "<=", ">=", "<", ">"}

// Evaluate evaluates a boolean statement. Clauses are evaluated left to right
// and evaluation stops once the result is decided.
func (e *Evaluator) Evaluate(stmt string) (bool, error) {
	if strings.TrimSpace(stmt) == "" {
		return false, fmt.Errorf("%w: empty statement", errs.ErrParse)
	}
	groups, err := splitTop(stmt, "||")
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		ok, err := e.all(g)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) all(group string) (bool, error) {
	clauses, err := splitTop(group, "&&")
	if err != nil {
		return false, err
	}
	for _, c := range clauses {
		ok, err := e.clause(c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) clause(c string) (bool, error) {
	c = strings.TrimSpace(c)
	if c == "" {
		return false, fmt.Errorf("%w: empty clause", errs.ErrParse)
	}
	if strings.HasPrefix(c, "!") && !strings.HasPrefix(c, "!=") {
		ok, err := e.clause(c[1:])
		return !ok, err
	}
	if inner, ok := unwrap(c); ok {
		return e.Evaluate(inner)
	}
	at, op := findComparison(c)
	if at < 0 {
		v, err := e.Calculate(c)
		if err != nil {
			return false, err
		}
		if v.Type() != vars.Bool {
			return false, fmt.Errorf("%w: %q is %s, not bool", errs.ErrType, c, v.Type())
		}
		return v.Bool(), nil
	}
	l, err := e.Calculate(c[:at])
	if err != nil {
		return false, err
	}
	r, err := e.Calculate(c[at+len(op):])
	if err != nil {
		return false, err
	}
	return compare(l, r, op)
}

func compare(l, r vars.Value, op string) (bool, error) {
	if l.Type() != r.Type() {
		return false, fmt.Errorf("%w: cannot compare %s with %s", errs.ErrType, l.Type(), r.Type())
	}
	switch op {
	case "==":
		return l.Equal(r), nil
	case "!=":
		return !l.Equal(r), nil
	}
	if l.Type() != vars.Number {
		return false, fmt.Errorf("%w: operator %s needs numbers, got %s", errs.ErrType, op, l.Type())
	}
	a, b := l.Number(), r.Number()
	switch op {
	case "<":
		return a < b, nil
	case "<=":
		return a <= b, nil
	case ">":
		return a > b, nil
	default:
		return a >= b, nil
	}
}

// findComparison locates the first comparison operator outside quotes and parens.
func findComparison(s string) (int, string) {
	depth, inQuote := 0, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			if c == '\\' {
				i++
			} else if c == '"' {
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
			continue
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth > 0 {
			continue
		}
		for _, op := range comparisons {
			if strings.HasPrefix(s[i:], op) {
				return i, op
			}
		}
	}
	return -1, ""
}

// unwrap strips one pair of parens when they enclose the whole clause.
func unwrap(s string) (string, bool) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", false
	}
	depth, inQuote := 0, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			if c == '\\' {
				i++
			} else if c == '"' {
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return "", false
			}
		}
	}
	return s[1 : len(s)-1], true
}

// splitTop splits s on sep outside quotes and parens.
func splitTop(s, sep string) ([]string, error) {
	var out []string
	depth, inQuote, start := 0, false, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			if c == '\\' {
				i++
			} else if c == '"' {
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced ')' in %q", errs.ErrParse, s)
			}
		default:
			if depth == 0 && strings.HasPrefix(s[i:], sep) {
				out = append(out, s[start:i])
				i += len(sep) - 1
				start = i + 1
			}
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated string in %q", errs.ErrParse, s)
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced '(' in %q", errs.ErrParse, s)
	}
	return append(out, s[start:]), nil
}
