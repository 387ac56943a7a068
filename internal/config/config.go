/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the talkbox user configuration: a YAML file merged over
// defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"talkbox/internal/command"
	tlog "talkbox/internal/log"

	"gopkg.in/yaml.v3"
)

// RunnerConfig controls how scripts are played.
type RunnerConfig struct {
	StartNode string `yaml:"start_node"`
	Timing    string `yaml:"timing"` // "ticks" | "wall"
	TickRate  int    `yaml:"tick_rate"`
}

// TranscriptConfig points at the transcript store.
type TranscriptConfig struct {
	DSN      string `yaml:"dsn"`       // file path, file: URI or postgres:// URL; empty disables recording
	KeepLast int    `yaml:"keep_last"` // sessions kept by prune; 0 keeps all
}

// CommandsConfig names the command manifest used by check.
type CommandsConfig struct {
	Manifest string `yaml:"manifest"`
}

// LoggingConfig mirrors log.Options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the root configuration persisted to disk.
// Unknown fields are ignored on unmarshal.
type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	Runner        RunnerConfig     `yaml:"runner"`
	Transcript    TranscriptConfig `yaml:"transcript"`
	Commands      CommandsConfig   `yaml:"commands"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Runner: RunnerConfig{
			StartNode: "Start",
			Timing:    "ticks",
			TickRate:  command.DefaultTickRate,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Environment variable names.
const (
	EnvConfig        = "TBX_CONFIG"
	EnvStartNode     = "TBX_START_NODE"
	EnvTiming        = "TBX_TIMING"
	EnvTickRate      = "TBX_TICK_RATE"
	EnvTranscriptDSN = "TBX_TRANSCRIPT_DSN"
	EnvKeepLast      = "TBX_KEEP_LAST"
	EnvManifest      = "TBX_MANIFEST"
	EnvLogLevel      = "TBX_LOG_LEVEL"
	EnvLogFormat     = "TBX_LOG_FORMAT"
	EnvLogSource     = "TBX_LOG_SOURCE"
	EnvLogFile       = "TBX_LOG_FILE"
)

// ConfigPath returns the per-user config file path. TBX_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfig)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "TalkBox")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "TalkBox")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "talkbox")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path. A missing file yields defaults;
// a malformed one is an error.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Clock returns the command clock described by the runner section.
func (r RunnerConfig) Clock() (command.Clock, error) {
	t, err := command.ParseTiming(r.Timing)
	if err != nil {
		return command.Clock{}, err
	}
	rate := r.TickRate
	if rate <= 0 {
		rate = command.DefaultTickRate
	}
	return command.Clock{Timing: t, TickRate: float64(rate)}, nil
}

// LogOptions converts the logging section for log.Init.
func (l LoggingConfig) LogOptions() tlog.Options {
	return tlog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.Runner.StartNode); v != "" {
		dst.Runner.StartNode = v
	}
	if v := strings.TrimSpace(src.Runner.Timing); v != "" {
		dst.Runner.Timing = strings.ToLower(v)
	}
	if src.Runner.TickRate > 0 {
		dst.Runner.TickRate = src.Runner.TickRate
	}
	if v := strings.TrimSpace(src.Transcript.DSN); v != "" {
		dst.Transcript.DSN = v
	}
	if src.Transcript.KeepLast > 0 {
		dst.Transcript.KeepLast = src.Transcript.KeepLast
	}
	if v := strings.TrimSpace(src.Commands.Manifest); v != "" {
		dst.Commands.Manifest = v
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvStartNode)); v != "" {
		cfg.Runner.StartNode = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTiming)); v != "" {
		cfg.Runner.Timing = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTickRate)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Runner.TickRate = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTranscriptDSN)); v != "" {
		cfg.Transcript.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvKeepLast)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Transcript.KeepLast = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvManifest)); v != "" {
		cfg.Commands.Manifest = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"runner.start_node":    EnvStartNode,
	"runner.timing":        EnvTiming,
	"runner.tick_rate":     EnvTickRate,
	"transcript.dsn":       EnvTranscriptDSN,
	"transcript.keep_last": EnvKeepLast,
	"commands.manifest":    EnvManifest,
	"logging.level":        EnvLogLevel,
	"logging.format":       EnvLogFormat,
	"logging.source":       EnvLogSource,
	"logging.file":         EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}
