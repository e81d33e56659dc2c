// Package config loads and watches the agent's settings file.
//
// Settings live in the dotted .agent file under the installation root and
// can be overridden through AGENT_* environment variables. The store hands
// out immutable snapshots; path resolution depends on it through the
// narrow SettingsProvider contract in the paths package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/tracing"
)

// DefaultWorkFolder is used when the settings file exists but does not
// name a work folder.
const DefaultWorkFolder = "_work"

// Settings is one immutable snapshot of the configured agent.
type Settings struct {
	// Name is the registered agent name.
	Name string `koanf:"name"`

	// WorkFolder is the work folder name under the installation root.
	WorkFolder string `koanf:"work_folder"`

	// ServerURL is the orchestration server the agent is registered with.
	ServerURL string `koanf:"server_url"`
}

// Store owns the current settings snapshot. Safe for concurrent use.
type Store struct {
	path  string
	trace *tracing.Channel

	mu       sync.RWMutex
	settings *Settings

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a store reading from path. trace may be nil.
func NewStore(path string, trace *tracing.Channel) *Store {
	return &Store{path: path, trace: trace}
}

// Load reads the settings file and applies AGENT_* environment overrides.
// A missing file with no overrides leaves the store unconfigured; that is
// not an error, it is the state of a fresh installation.
func (s *Store) Load() error {
	k := koanf.New(".")

	fileLoaded := false
	content, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return fmt.Errorf("parsing settings file %s: %w", s.path, err)
		}
		fileLoaded = true
	case os.IsNotExist(err):
		// fresh installation
	default:
		return fmt.Errorf("reading settings file %s: %w", s.path, err)
	}

	// AGENT_WORK_FOLDER -> work_folder, AGENT_SERVER_URL -> server_url
	if err := k.Load(env.Provider("AGENT_", ".", func(name string) string {
		return strings.ToLower(strings.TrimPrefix(name, "AGENT_"))
	}), nil); err != nil {
		return fmt.Errorf("loading environment overrides: %w", err)
	}

	if !fileLoaded && !k.Exists("work_folder") {
		s.mu.Lock()
		s.settings = nil
		s.mu.Unlock()
		return nil
	}

	var settings Settings
	if err := k.Unmarshal("", &settings); err != nil {
		return fmt.Errorf("unmarshaling settings: %w", err)
	}
	if settings.WorkFolder == "" {
		settings.WorkFolder = DefaultWorkFolder
	}

	s.mu.Lock()
	s.settings = &settings
	s.mu.Unlock()

	if s.trace != nil {
		s.trace.Info("settings loaded",
			zap.String("path", s.path),
			zap.String("work_folder", settings.WorkFolder))
	}
	return nil
}

// Settings returns the current snapshot and whether the agent is
// configured.
func (s *Store) Settings() (Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return Settings{}, false
	}
	return *s.settings, true
}

// WorkFolder implements paths.SettingsProvider.
func (s *Store) WorkFolder() (string, bool) {
	settings, ok := s.Settings()
	if !ok {
		return "", false
	}
	return settings.WorkFolder, true
}

// Watch reloads the snapshot when the settings file changes. The watch
// covers the containing directory so a file created after startup is
// picked up too.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if err := s.Load(); err != nil && s.trace != nil {
					s.trace.Warning("settings reload failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if s.trace != nil {
					s.trace.Warning("settings watcher error", zap.Error(err))
				}
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher. Idempotent; a store that never watched closes
// cleanly.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.done != nil {
			close(s.done)
		}
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
