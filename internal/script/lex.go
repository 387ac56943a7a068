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
	"strings"

	"talkbox/internal/errs"
)

const escapable = `[]{}\:#n`

// Unescape resolves backslash escapes: \n becomes a newline and a backslash
// before one of []{}\:# yields that character.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("%w: trailing backslash", errs.ErrParse)
		}
		i++
		switch c := s[i]; {
		case c == 'n':
			b.WriteByte('\n')
		case strings.IndexByte(escapable, c) >= 0:
			b.WriteByte(c)
		default:
			return "", fmt.Errorf("%w: unknown escape \\%c", errs.ErrParse, c)
		}
	}
	return b.String(), nil
}

// Escape is the inverse of Unescape for the characters parsing treats as delimiters.
func Escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			b.WriteString(`\n`)
		case '[', ']', '{', '}', '\\', ':', '#':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func checkEscapes(s string) error {
	_, err := Unescape(s)
	return err
}

// indexUnescaped finds the first c at or after from that is not escaped and
// not inside [markup] or {expression}.
func indexUnescaped(s string, c byte, from int) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
			continue
		case '[', '{':
			depth++
			continue
		case ']', '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 && i >= from && s[i] == c {
			return i
		}
	}
	return -1
}

// splitTags cuts a trailing "#a #b:value" block from s. at is the offset of
// the block within s.
func splitTags(s string) (text string, tags []string, at int, err error) {
	at = indexUnescaped(s, '#', 1)
	if at < 0 {
		return s, nil, 0, nil
	}
	text = strings.TrimSpace(s[:at])
	block := s[at+1:]
	var (
		cur     strings.Builder
		inQuote bool
		depth   int
	)
	flush := func() error {
		t := strings.TrimSpace(cur.String())
		cur.Reset()
		if t == "" {
			return fmt.Errorf("%w: empty tag", errs.ErrParse)
		}
		tags = append(tags, t)
		return nil
	}
	for i := 0; i < len(block); i++ {
		c := block[i]
		switch {
		case c == '\\':
			if i+1 >= len(block) {
				return "", nil, at, fmt.Errorf("%w: trailing backslash in tags", errs.ErrParse)
			}
			if n := block[i+1]; !inQuote && n != 'n' && strings.IndexByte(escapable, n) < 0 {
				return "", nil, at, fmt.Errorf("%w: unknown escape \\%c in tags", errs.ErrParse, n)
			}
			cur.WriteByte(c)
			i++
			cur.WriteByte(block[i])
			continue
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '{':
			depth++
		case c == '}' && depth > 0:
			depth--
		case c == '#' && depth == 0:
			if err := flush(); err != nil {
				return "", nil, at, err
			}
			continue
		}
		cur.WriteByte(c)
	}
	if inQuote {
		return "", nil, at, fmt.Errorf("%w: unterminated quote in tags", errs.ErrParse)
	}
	if err := flush(); err != nil {
		return "", nil, at, err
	}
	return text, tags, at, nil
}

// splitArgs splits command arguments on whitespace. Quoted strings stay whole
// and words joined by an arithmetic operator form one argument.
func splitArgs(s string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			} else if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			if cur.Len() > 0 {
				words = append(words, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote in %q", errs.ErrParse, s)
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	var out []string
	for _, w := range words {
		if n := len(out); n > 0 && (isOperator(out[n-1][len(out[n-1])-1]) || isOperator(w[0])) {
			out[n-1] += " " + w
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func isOperator(c byte) bool {
	return c == '+' || c == '-' || c == '*' || c == '/'
}
