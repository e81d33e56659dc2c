// Package paths derives the agent's well-known directories and config
// files. Derivation is table-driven and pure: the same binary location,
// environment and settings snapshot always yield the same paths.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/tracing"
)

// Errors for path resolution.
var (
	// ErrUnsupportedValue means an unknown directory or config file
	// identifier was requested.
	ErrUnsupportedValue = errors.New("unsupported well-known value")

	// ErrConfigurationMissing means a settings-dependent path was
	// requested before the agent was configured.
	ErrConfigurationMissing = errors.New("agent settings not available")
)

// Environment overrides consulted during derivation.
const (
	// EnvDiagDirectory overrides the diagnostics directory.
	EnvDiagDirectory = "AGENT_DIAGLOGPATH"

	// EnvToolsDirectory overrides the tool cache directory.
	EnvToolsDirectory = "AGENT_TOOLSDIRECTORY"

	// EnvToolsDirectoryLegacy is the older tool cache override, consulted
	// after EnvToolsDirectory.
	EnvToolsDirectoryLegacy = "VSTS_AGENT_TOOLSDIRECTORY"
)

// SettingsProvider supplies the configured settings a derivation may
// depend on. Implemented by the host's config store.
type SettingsProvider interface {
	// WorkFolder returns the configured work folder name and whether the
	// agent has been configured at all.
	WorkFolder() (string, bool)
}

// rule describes how one directory derives from another. Env overrides
// win over the derived path; the first non-empty variable is used.
type rule struct {
	parent       Directory
	rel          string
	env          []string
	fromSettings bool
}

// directoryRules is the derivation table for every directory other than
// Bin and Root, which anchor the recursion.
var directoryRules = map[Directory]rule{
	Diag:      {parent: Root, rel: "_diag", env: []string{EnvDiagDirectory}},
	Externals: {parent: Root, rel: "externals"},
	Work:      {parent: Root, fromSettings: true},
	Temp:      {parent: Work, rel: "_temp"},
	Tools:     {parent: Work, rel: "_tool", env: []string{EnvToolsDirectory, EnvToolsDirectoryLegacy}},
	Tasks:     {parent: Work, rel: "_tasks"},
	Update:    {parent: Work, rel: "_update"},
}

// Resolver derives well-known paths for one agent installation.
type Resolver struct {
	binDir   string
	settings SettingsProvider
	trace    *tracing.Channel
}

// NewResolver creates a resolver rooted at binDir. An empty binDir is
// resolved from the running executable. settings and trace may be nil;
// settings-dependent paths then fail with ErrConfigurationMissing.
func NewResolver(binDir string, settings SettingsProvider, trace *tracing.Channel) (*Resolver, error) {
	if binDir == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}
		binDir = filepath.Dir(exe)
	}
	return &Resolver{
		binDir:   filepath.Clean(binDir),
		settings: settings,
		trace:    trace,
	}, nil
}

// Resolve returns the path for d.
func (r *Resolver) Resolve(d Directory) (string, error) {
	path, err := r.resolve(d)
	if err != nil {
		return "", err
	}
	if r.trace != nil {
		r.trace.Verbose("resolved directory",
			zap.Stringer("directory", d), zap.String("path", path))
	}
	return path, nil
}

func (r *Resolver) resolve(d Directory) (string, error) {
	switch d {
	case Bin:
		return r.binDir, nil
	case Root:
		return filepath.Dir(r.binDir), nil
	}

	rl, ok := directoryRules[d]
	if !ok {
		return "", fmt.Errorf("%w: directory %d", ErrUnsupportedValue, int(d))
	}

	for _, name := range rl.env {
		if v := os.Getenv(name); v != "" {
			return filepath.Clean(v), nil
		}
	}

	parent, err := r.resolve(rl.parent)
	if err != nil {
		return "", err
	}

	rel := rl.rel
	if rl.fromSettings {
		if r.settings == nil {
			return "", fmt.Errorf("%w: resolving %s", ErrConfigurationMissing, d)
		}
		folder, ok := r.settings.WorkFolder()
		if !ok || folder == "" {
			return "", fmt.Errorf("%w: work folder not configured", ErrConfigurationMissing)
		}
		rel = folder
	}
	return filepath.Join(parent, rel), nil
}

// ResolveConfigFile returns the path for f under the agent root.
func (r *Resolver) ResolveConfigFile(f ConfigFile) (string, error) {
	name, ok := configFileNames[f]
	if !ok {
		return "", fmt.Errorf("%w: config file %d", ErrUnsupportedValue, int(f))
	}
	if f == CredentialStore && runtime.GOOS == "darwin" {
		name += ".keychain"
	}

	root, err := r.resolve(Root)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, name)

	if r.trace != nil {
		r.trace.Verbose("resolved config file",
			zap.Stringer("file", f), zap.String("path", path))
	}
	return path, nil
}
