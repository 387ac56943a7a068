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
	"strings"

	"talkbox/internal/markup"
)

// WriteSpans writes the styled runs of sp to w. With ansi set, styles become
// SGR escape sequences; otherwise only the text is written.
func WriteSpans(w io.Writer, sp *markup.Spans, ansi bool) error {
	if !ansi {
		_, err := io.WriteString(w, sp.Text())
		return err
	}
	for s := range sp.All() {
		if _, err := io.WriteString(w, sgr(s.Style, s.Text)); err != nil {
			return err
		}
	}
	return nil
}

func sgr(st markup.Style, text string) string {
	var codes []string
	if st.Bold() || st.Size() == markup.SizeBig {
		codes = append(codes, "1")
	}
	if st.Size() == markup.SizeSmall {
		codes = append(codes, "2")
	}
	if st.Italic() {
		codes = append(codes, "3")
	}
	if st.Shake() {
		codes = append(codes, "5")
	}
	if c := st.Color(); c != markup.DefaultColor {
		codes = append(codes, fmt.Sprintf("38;2;%d;%d;%d", c.R, c.G, c.B))
	}
	if len(codes) == 0 {
		return text
	}
	return "\x1b[" + strings.Join(codes, ";") + "m" + text + "\x1b[0m"
}

func bold(s string, ansi bool) string {
	if !ansi {
		return s
	}
	return "\x1b[1m" + s + "\x1b[0m"
}

func faint(s string, ansi bool) string {
	if !ansi {
		return s
	}
	return "\x1b[2m" + s + "\x1b[0m"
}
