/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package errs holds the error kinds shared by the dialogue engine.
// Packages wrap one of the sentinels with fmt.Errorf("%w: ...") and callers
// classify failures with errors.Is.
package errs

import "errors"

var (
	// ErrParse marks malformed script text, tags or markup. Fatal at load time.
	ErrParse = errors.New("parse error")
	// ErrType marks a variable or comparison type mismatch.
	ErrType = errors.New("type error")
	// ErrState marks host-usage errors: picking a locked option, resuming a finished runner and so on.
	ErrState = errors.New("state error")
	// ErrLookup marks undefined variables, nodes or commands.
	ErrLookup = errors.New("lookup error")
)

// Kind returns the sentinel err wraps, or nil when it is none of them.
func Kind(err error) error {
	for _, k := range []error{ErrParse, ErrType, ErrState, ErrLookup} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
