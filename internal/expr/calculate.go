/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package expr evaluates value expressions and boolean statements over a
// vars.Store.
//
// A value expression is a chain of tokens joined by + - * /. A token is a
// $variable or a literal, tried as Number, then Bool, then String. If any token
// is a String the whole chain is concatenated and only + is legal. A Bool may
// not take part in arithmetic. Numbers honour * and / before + and -.
//
// A statement is a chain of clauses joined by && and ||, where || binds looser.
// Each clause is a comparison, a Bool expression, a negation with ! or a
// parenthesised statement.
package expr

import (
	"fmt"
	"strings"

	"talkbox/internal/errs"
	"talkbox/internal/vars"
)

// Evaluator resolves variables against one store.
type Evaluator struct {
	store *vars.Store
}

func New(store *vars.Store) *Evaluator {
	if store == nil {
		store = vars.NewStore()
	}
	return &Evaluator{store: store}
}

func (e *Evaluator) Store() *vars.Store { return e.store }

// Calculate evaluates a value expression.
func (e *Evaluator) Calculate(expr string) (vars.Value, error) {
	toks, ops, err := split(expr)
	if err != nil {
		return vars.Value{}, err
	}
	vals := make([]vars.Value, len(toks))
	hasString, hasBool := false, false
	for i, t := range toks {
		v, err := e.operand(t, expr)
		if err != nil {
			return vars.Value{}, err
		}
		switch v.Type() {
		case vars.String:
			hasString = true
		case vars.Bool:
			hasBool = true
		}
		vals[i] = v
	}
	switch {
	case hasString:
		var b strings.Builder
		for i, v := range vals {
			if i > 0 && ops[i-1] != '+' {
				return vars.Value{}, fmt.Errorf("%w: operator %q is not defined for strings in %q", errs.ErrType, ops[i-1], expr)
			}
			b.WriteString(v.String())
		}
		return vars.StringValue(b.String()), nil
	case hasBool:
		if len(vals) > 1 {
			return vars.Value{}, fmt.Errorf("%w: arithmetic on bool in %q", errs.ErrType, expr)
		}
		return vals[0], nil
	}
	return vars.NumberValue(arith(vals, ops)), nil
}

// operand resolves one token of expr with an optional leading sign.
func (e *Evaluator) operand(t token, expr string) (vars.Value, error) {
	if t.text == "" {
		return vars.Value{}, fmt.Errorf("%w: missing operand in %q", errs.ErrParse, expr)
	}
	var v vars.Value
	if strings.HasPrefix(t.text, "$") {
		if f := strings.Fields(t.text); len(f) > 1 {
			return vars.Value{}, fmt.Errorf("%w: malformed expression %q: missing operator after %q", errs.ErrParse, expr, f[0])
		}
		got, err := e.store.Get(t.text)
		if err != nil {
			return vars.Value{}, err
		}
		v = got
	} else if n, ok := vars.ParseLiteral(t.text, vars.Number); ok {
		v = n
	} else if b, ok := vars.ParseLiteral(t.text, vars.Bool); ok {
		v = b
	} else if s, ok := vars.ParseLiteral(t.text, vars.String); ok {
		v = s
	} else {
		return vars.Value{}, fmt.Errorf("%w: bad operand %q", errs.ErrParse, t.text)
	}
	if t.neg {
		if v.Type() != vars.Number {
			return vars.Value{}, fmt.Errorf("%w: unary minus on %s %q", errs.ErrType, v.Type(), t.text)
		}
		v = vars.NumberValue(-v.Number())
	}
	return v, nil
}

// arith folds * and / into terms, then sums the terms left to right.
func arith(vals []vars.Value, ops []byte) float64 {
	sum := 0.0
	term := vals[0].Number()
	sign := 1.0
	for i, op := range ops {
		n := vals[i+1].Number()
		switch op {
		case '*':
			term *= n
		case '/':
			term /= n
		case '+', '-':
			sum += sign * term
			sign = 1
			if op == '-' {
				sign = -1
			}
			term = n
		}
	}
	return sum + sign*term
}

type token struct {
	text string
	neg  bool
}

// split cuts expr at arithmetic operators outside quotes. A sign directly
// before an operand belongs to it.
func split(expr string) ([]token, []byte, error) {
	var (
		toks    []token
		ops     []byte
		cur     strings.Builder
		neg     bool
		inQuote bool
	)
	flush := func() {
		toks = append(toks, token{text: strings.TrimSpace(cur.String()), neg: neg})
		cur.Reset()
		neg = false
	}
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if inQuote {
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(expr) {
				i++
				cur.WriteByte(expr[i])
			} else if c == '"' {
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
			cur.WriteByte(c)
		case '+', '-', '*', '/':
			if strings.TrimSpace(cur.String()) == "" && (c == '-' || c == '+') {
				// sign of the next operand
				if c == '-' {
					neg = !neg
				}
				continue
			}
			flush()
			ops = append(ops, c)
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, nil, fmt.Errorf("%w: unterminated string in %q", errs.ErrParse, expr)
	}
	flush()
	return toks, ops, nil
}

// Combine applies a compound assignment operator: cur op v. Numbers take all
// four operators; strings only concatenate.
func Combine(cur vars.Value, op byte, v vars.Value) (vars.Value, error) {
	switch cur.Type() {
	case vars.Number:
		if v.Type() != vars.Number {
			return vars.Value{}, fmt.Errorf("%w: cannot apply %c= with %s to number", errs.ErrType, op, v.Type())
		}
		a, b := cur.Number(), v.Number()
		switch op {
		case '+':
			return vars.NumberValue(a + b), nil
		case '-':
			return vars.NumberValue(a - b), nil
		case '*':
			return vars.NumberValue(a * b), nil
		case '/':
			return vars.NumberValue(a / b), nil
		}
	case vars.String:
		if op == '+' {
			return vars.StringValue(cur.String() + v.String()), nil
		}
	}
	return vars.Value{}, fmt.Errorf("%w: operator %c= is not defined for %s", errs.ErrType, op, cur.Type())
}
