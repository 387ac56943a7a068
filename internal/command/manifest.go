/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"talkbox/internal/errs"
	"talkbox/internal/script"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// Manifest declares the commands a host understands, so scripts can be
// checked without running them.
type Manifest struct {
	Version  int           `json:"version"`
	Commands []ManifestDef `json:"commands"`
}

type ManifestDef struct {
	Name        string     `json:"name"`
	MinArgs     int        `json:"minArgs"`
	MaxArgs     *int       `json:"maxArgs,omitempty"`
	Target      TargetRule `json:"target,omitempty"`
	Description string     `json:"description,omitempty"`
}

// ParseManifest validates data against the manifest schema and decodes it.
func ParseManifest(data []byte) (*Manifest, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(manifestSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", errs.ErrParse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: manifest does not conform to schema: %s", errs.ErrParse, strings.Join(msgs, "; "))
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", errs.ErrParse, err)
	}
	seen := map[string]bool{}
	for _, d := range m.Commands {
		n := strings.ToLower(d.Name)
		if seen[n] {
			return nil, fmt.Errorf("%w: manifest declares %q twice", errs.ErrParse, d.Name)
		}
		if reserved[n] {
			return nil, fmt.Errorf("%w: manifest declares reserved command %q", errs.ErrParse, d.Name)
		}
		if d.MaxArgs != nil && *d.MaxArgs >= 0 && *d.MaxArgs < d.MinArgs {
			return nil, fmt.Errorf("%w: manifest command %q has maxArgs below minArgs", errs.ErrParse, d.Name)
		}
		seen[n] = true
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(b)
}

// ManifestOf describes the commands in a registry.
func ManifestOf(r *Registry) *Manifest {
	m := &Manifest{Version: 1}
	for _, n := range r.Names() {
		d, _ := r.Get(n)
		maxArgs := d.MaxArgs
		m.Commands = append(m.Commands, ManifestDef{Name: d.Name, MinArgs: d.MinArgs, MaxArgs: &maxArgs, Target: d.Target, Description: d.Description})
	}
	return m
}

// Defs converts the manifest entries to definitions without handlers.
func (m *Manifest) Defs() map[string]*Def {
	out := make(map[string]*Def, len(m.Commands))
	for _, md := range m.Commands {
		d := &Def{Name: strings.ToLower(md.Name), MinArgs: md.MinArgs, MaxArgs: -1, Target: md.Target, Description: md.Description}
		if md.MaxArgs != nil {
			d.MaxArgs = *md.MaxArgs
		}
		if d.Target == "" {
			d.Target = TargetOptional
		}
		out[d.Name] = d
	}
	return out
}

// Problem is one lint finding.
type Problem struct {
	Node    string
	Line    int
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s:%d: %s", p.Node, p.Line, p.Message)
}

// Lint checks every command line in s against the manifest and every jump
// against the node table.
func Lint(s *script.Script, m *Manifest) []Problem {
	defs := m.Defs()
	var out []Problem
	for _, title := range s.Order {
		for _, l := range s.Nodes[title].Lines {
			c, ok := l.(*script.CommandLine)
			if !ok {
				continue
			}
			if c.Name == script.CmdJump {
				if _, ok := s.Node(c.Target); !ok {
					out = append(out, Problem{Node: title, Line: c.SourceLine(), Message: fmt.Sprintf("jump to unknown node %q", c.Target)})
				}
				continue
			}
			if c.Reserved() {
				continue
			}
			d, ok := defs[c.Name]
			if !ok {
				out = append(out, Problem{Node: title, Line: c.SourceLine(), Message: fmt.Sprintf("unknown command %q", c.Name)})
				continue
			}
			if err := d.Check(len(c.Args), c.Target); err != nil {
				out = append(out, Problem{Node: title, Line: c.SourceLine(), Message: strings.TrimPrefix(err.Error(), errs.ErrParse.Error()+": ")})
			}
		}
	}
	return out
}
