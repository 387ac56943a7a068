/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"talkbox/internal/command"
	"talkbox/internal/config"
	"talkbox/internal/crash"
	"talkbox/internal/export"
	"talkbox/internal/host"
	tlog "talkbox/internal/log"
	"talkbox/internal/script"
	"talkbox/internal/storage"
	"talkbox/internal/version"
)

// errUsage marks bad command lines; main exits 2 for them.
var errUsage = errors.New("usage")

func usage() {
	fmt.Println("TalkBox dialogue engine")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  talkbox version|-v|--version               Show version")
	fmt.Println("  talkbox nodes <script>                     List the nodes of a script")
	fmt.Println("  talkbox check <script> [manifest]          Parse a script and lint its commands")
	fmt.Println("  talkbox fmt <script>                       Print a script in canonical form")
	fmt.Println("  talkbox manifest                           Print the built-in command manifest")
	fmt.Println("  talkbox play <script> [node]               Play a script on the console")
	fmt.Println("  talkbox transcripts [dsn]                  List recorded sessions")
	fmt.Println("  talkbox export <dsn> <session> <out>       Export a session as .pdf or .txt")
}

func main() {
	cfg, cfgErr := config.Load()
	// initialize structured logging from the merged config
	tlog.Init(cfg.Logging.LogOptions())
	defer func() { _ = tlog.Close() }()
	l := tlog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", cfgErr))
	}
	rep := &crash.Report{}
	defer crash.Recover(rep)

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("TalkBox dialogue engine")
		fmt.Println(version.String())
		return
	case "nodes":
		err = withScript(args, 3, cmdNodes)
	case "check":
		err = withScript(args, 4, func(s *script.Script, rest []string) error { return cmdCheck(cfg, s, rest) })
	case "fmt":
		err = withScript(args, 3, func(s *script.Script, _ []string) error { return script.Format(os.Stdout, s) })
	case "manifest":
		err = cmdManifest(cfg)
	case "play":
		err = withScript(args, 4, func(s *script.Script, rest []string) error { return cmdPlay(ctx, cfg, rep, s, rest) })
	case "transcripts":
		err = cmdTranscripts(ctx, cfg, args[2:])
	case "export":
		err = cmdExport(ctx, args[2:])
	default:
		usage()
		os.Exit(2)
	}
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Println(err)
		usage()
		os.Exit(2)
	default:
		l.Error("command failed", slog.String("cmd", args[1]), slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

// withScript parses args[2] and hands the rest of args, up to maxArgs in total, to fn.
func withScript(args []string, maxArgs int, fn func(*script.Script, []string) error) error {
	if len(args) < 3 || len(args) > maxArgs {
		return fmt.Errorf("%w: %s requires <script>", errUsage, args[1])
	}
	s, err := script.ParseFile(args[2])
	if err != nil {
		return err
	}
	return fn(s, args[3:])
}

func cmdNodes(s *script.Script, _ []string) error {
	for _, title := range s.Order {
		n, _ := s.Node(title)
		line := fmt.Sprintf("%-20s %3d lines  (line %d)", n.Title, len(n.Lines), n.SourceLine)
		if tags := n.Metadata["tags"]; tags != "" {
			line += "  tags: " + tags
		}
		fmt.Println(line)
	}
	return nil
}

func builtinRegistry(cfg config.AppConfig) (*command.Registry, error) {
	clock, err := cfg.Runner.Clock()
	if err != nil {
		return nil, err
	}
	reg := command.NewRegistry()
	if err := (command.Builtins{Clock: clock}).Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func cmdCheck(cfg config.AppConfig, s *script.Script, rest []string) error {
	path := cfg.Commands.Manifest
	if len(rest) > 0 {
		path = rest[0]
	}
	var m *command.Manifest
	if path != "" {
		var err error
		if m, err = command.LoadManifest(path); err != nil {
			return err
		}
	} else {
		reg, err := builtinRegistry(cfg)
		if err != nil {
			return err
		}
		m = command.ManifestOf(reg)
	}
	problems := command.Lint(s, m)
	for _, p := range problems {
		fmt.Printf("%s: %s\n", s.Name, p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d problem(s) in %s", len(problems), s.Name)
	}
	fmt.Printf("%s: %d nodes ok\n", s.Name, len(s.Order))
	return nil
}

func cmdManifest(cfg config.AppConfig) error {
	reg, err := builtinRegistry(cfg)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(command.ManifestOf(reg), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdPlay(ctx context.Context, cfg config.AppConfig, rep *crash.Report, s *script.Script, rest []string) error {
	clock, err := cfg.Runner.Clock()
	if err != nil {
		return err
	}
	node := cfg.Runner.StartNode
	if len(rest) > 0 {
		node = rest[0]
	}
	hc := host.Config{
		Script:     s,
		In:         os.Stdin,
		Out:        os.Stdout,
		ANSI:       ansiTerminal(),
		Typewriter: ansiTerminal(),
		Clock:      clock,
		Sleep:      time.Sleep,
	}
	var store *storage.Store
	if dsn := cfg.Transcript.DSN; dsn != "" {
		if store, err = storage.Open(ctx, dsn); err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		hc.Transcript = store
	}
	p, err := host.New(hc)
	if err != nil {
		return err
	}
	rep.Script = s.Name
	rep.Node = func() string {
		if r := p.Runner(); r != nil {
			return r.Node()
		}
		return ""
	}
	err = p.Play(ctx, node)
	if store != nil && cfg.Transcript.KeepLast > 0 {
		if _, perr := store.Prune(ctx, cfg.Transcript.KeepLast); perr != nil {
			tlog.WithComponent("cli").Warn("prune transcripts failed", slog.Any("err", perr))
		}
	}
	if errors.Is(err, host.ErrQuit) {
		return nil
	}
	return err
}

// ansiTerminal reports whether stdout is a character device and NO_COLOR is unset.
func ansiTerminal() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func cmdTranscripts(ctx context.Context, cfg config.AppConfig, rest []string) error {
	dsn := cfg.Transcript.DSN
	if len(rest) > 0 {
		dsn = rest[0]
	}
	if dsn == "" {
		return fmt.Errorf("%w: transcripts requires <dsn> or %s", errUsage, config.EnvTranscriptDSN)
	}
	store, err := storage.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	list, err := store.Sessions(ctx, 0)
	if err != nil {
		return err
	}
	for _, ss := range list {
		outcome := ss.Outcome
		if ss.Open() {
			outcome = "open"
		}
		fmt.Printf("%6d  %s  %-20s %-12s %4d events  %s\n", ss.ID, ss.StartedAt.Local().Format("2006-01-02 15:04"), ss.Script, ss.StartNode, ss.Events, outcome)
	}
	return nil
}

func cmdExport(ctx context.Context, rest []string) error {
	if len(rest) != 3 {
		return fmt.Errorf("%w: export requires <dsn> <session> <out>", errUsage)
	}
	id, err := strconv.ParseInt(rest[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: session must be a number: %q", errUsage, rest[1])
	}
	out := rest[2]
	store, err := storage.Open(ctx, rest[0])
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	ss, err := store.Session(ctx, id)
	if err != nil {
		return err
	}
	evs, err := store.Events(ctx, id)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".txt":
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := export.WriteTranscriptText(f, ss, evs); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	default:
		if err := export.TranscriptPDF(ss, evs, out, export.PDFOptions{}); err != nil {
			return err
		}
	}
	fmt.Printf("Exported session %d (%d events) to %s\n", id, len(evs), out)
	return nil
}
