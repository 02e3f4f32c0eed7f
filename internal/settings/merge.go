// Package settings merges the telemetry environment that points Claude Code
// at the cc-sentinel receiver into ~/.claude/settings.json.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/nixlim/cc-sentinel/internal/storage"
)

// Result describes what Merge did.
type Result int

const (
	Updated Result = iota
	Unchanged
	Conflicting
)

func (r Result) String() string {
	switch r {
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Conflicting:
		return "conflicting"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Options control a merge.
type Options struct {
	// Path defaults to ~/.claude/settings.json.
	Path     string
	GRPCPort int
	// Force overwrites keys that are set to a different value.
	Force bool
}

// Conflict is a key already set to something other than the wanted value.
type Conflict struct {
	Key  string
	Have string
	Want string
}

// Report lists the changes made, or the conflicts that blocked them.
type Report struct {
	Result    Result
	Path      string
	Added     []string
	Replaced  []string
	Conflicts []Conflict
}

// RequiredEnv returns the environment Claude Code needs to export its log
// events to the receiver on grpcPort.
func RequiredEnv(grpcPort int) map[string]string {
	return map[string]string{
		"CLAUDE_CODE_ENABLE_TELEMETRY": "1",
		"OTEL_LOGS_EXPORTER":           "otlp",
		"OTEL_EXPORTER_OTLP_PROTOCOL":  "grpc",
		"OTEL_EXPORTER_OTLP_ENDPOINT":  fmt.Sprintf("http://localhost:%d", grpcPort),
		"OTEL_LOG_USER_PROMPTS":        "1",
	}
}

// DefaultPath returns ~/.claude/settings.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "settings.json"), nil
}

// Merge adds the required keys to the "env" object, keeping every other
// setting. A missing file is created. Invalid JSON is copied to a .bak file
// and reported as an error without touching the original. Keys set to a
// different value are reported as conflicts and nothing is written unless
// Force is set.
func Merge(opts Options) (Report, error) {
	path := opts.Path
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Report{}, err
		}
		path = p
	}
	port := opts.GRPCPort
	if port == 0 {
		port = 4317
	}
	rep := Report{Path: path}

	doc := map[string]any{}
	indent := "  "
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		indent = detectIndent(data)
		if err := json.Unmarshal(data, &doc); err != nil {
			bak := path + ".bak"
			if werr := os.WriteFile(bak, data, 0o644); werr != nil {
				return rep, fmt.Errorf("%s contains invalid JSON and the backup failed: %w", path, werr)
			}
			return rep, fmt.Errorf("%s contains invalid JSON (backup saved to %s)", path, bak)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, fs.ErrPermission):
		return rep, fmt.Errorf("permission denied reading %s", path)
	default:
		return rep, fmt.Errorf("reading settings file: %w", err)
	}

	env, ok := doc["env"].(map[string]any)
	if !ok {
		env = map[string]any{}
		doc["env"] = env
	}

	required := RequiredEnv(port)
	for _, key := range slices.Sorted(maps.Keys(required)) {
		want := required[key]
		cur, exists := env[key]
		if !exists {
			env[key] = want
			rep.Added = append(rep.Added, key)
			continue
		}
		have := fmt.Sprint(cur)
		if have == want {
			continue
		}
		if opts.Force {
			env[key] = want
			rep.Replaced = append(rep.Replaced, key)
		} else {
			rep.Conflicts = append(rep.Conflicts, Conflict{Key: key, Have: have, Want: want})
		}
	}

	switch {
	case len(rep.Conflicts) > 0:
		rep.Result = Conflicting
		return rep, nil
	case len(rep.Added) == 0 && len(rep.Replaced) == 0:
		rep.Result = Unchanged
		return rep, nil
	}

	out, err := json.MarshalIndent(doc, "", indent)
	if err != nil {
		return rep, fmt.Errorf("marshaling settings: %w", err)
	}
	if err := storage.WriteFileAtomic(path, append(out, '\n'), 0o644); err != nil {
		return rep, fmt.Errorf("writing settings file: %w", err)
	}
	rep.Result = Updated
	return rep, nil
}

// Env returns the string values of the "env" object in the settings file
// at path. A missing file yields an empty map.
func Env(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	var doc struct {
		Env map[string]any `json:"env"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s contains invalid JSON: %w", path, err)
	}
	out := make(map[string]string, len(doc.Env))
	for k, v := range doc.Env {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
