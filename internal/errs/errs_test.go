/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindClassifiesWrappedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{fmt.Errorf("%w: bad tag", ErrParse), ErrParse},
		{fmt.Errorf("outer: %w", fmt.Errorf("%w: $x", ErrLookup)), ErrLookup},
		{fmt.Errorf("%w: number vs string", ErrType), ErrType},
		{ErrState, ErrState},
		{errors.New("io"), nil},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Fatalf("Kind(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
