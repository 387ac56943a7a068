/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vars

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"talkbox/internal/errs"
)

// Store holds named variables. Names are kept without the leading '$'.
// A Store may be shared by several runners; access is serialized.
type Store struct {
	mu   sync.RWMutex
	vars map[string]Value
}

func NewStore() *Store { return &Store{vars: make(map[string]Value)} }

// Name strips the '$' sigil and validates the remaining identifier.
func Name(s string) (string, error) {
	n := strings.TrimPrefix(strings.TrimSpace(s), "$")
	if n == "" {
		return "", fmt.Errorf("%w: empty variable name", errs.ErrParse)
	}
	for _, r := range n {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", fmt.Errorf("%w: invalid variable name %q", errs.ErrParse, s)
		}
	}
	return n, nil
}

// Define binds name to v. Redeclaring an existing variable resets its value but
// must keep its type.
func (s *Store) Define(name string, v Value) error {
	n, err := Name(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.vars[n]; ok && old.typ != v.typ {
		return fmt.Errorf("%w: $%s is declared as %s, cannot redeclare as %s", errs.ErrType, n, old.typ, v.typ)
	}
	s.vars[n] = v
	return nil
}

// Set assigns v to an existing variable, coercing it to the bound type.
func (s *Store) Set(name string, v Value) error {
	n, err := Name(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.vars[n]
	if !ok {
		return fmt.Errorf("%w: variable $%s is not declared", errs.ErrLookup, n)
	}
	cv, err := Coerce(v, old.typ)
	if err != nil {
		return fmt.Errorf("set $%s: %w", n, err)
	}
	s.vars[n] = cv
	return nil
}

// Get returns the value of a declared variable.
func (s *Store) Get(name string) (Value, error) {
	n, err := Name(name)
	if err != nil {
		return Value{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[n]
	if !ok {
		return Value{}, fmt.Errorf("%w: variable $%s is not declared", errs.ErrLookup, n)
	}
	return v, nil
}

// Has reports whether name is declared.
func (s *Store) Has(name string) bool {
	_, err := s.Get(name)
	return err == nil
}

// Names lists declared variable names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.vars))
	for k := range s.vars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot copies the current bindings.
func (s *Store) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Clear removes every variable.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars = make(map[string]Value)
}
