package watch

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

const stateFileName = "watch_state.yaml"

// SiteState is the outcome of the last scheduled run of a site
type SiteState struct {
	LastRunTime    time.Time      `yaml:"last_run_time"`
	LastRunSuccess bool           `yaml:"last_run_success"`
	Profile        models.Profile `yaml:"profile,omitempty"`
	PagesSaved     int            `yaml:"pages_saved"`
	DocumentPath   string         `yaml:"document_path,omitempty"`
	ErrorMessage   string         `yaml:"error_message,omitempty"`
}

// State is the persisted scheduler state
type State struct {
	Sites     map[string]SiteState `yaml:"sites"`
	UpdatedAt time.Time            `yaml:"updated_at"`
}

// StateManager loads and saves State under the state directory
type StateManager struct {
	stateDir  string
	statePath string
	now       func() time.Time

	mu    sync.RWMutex
	state State
}

// NewStateManager creates a state manager for stateDir
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		now:       time.Now,
		state:     State{Sites: make(map[string]SiteState)},
	}
}

// Path returns the state file location
func (m *StateManager) Path() string {
	return m.statePath
}

// Load reads the state file. A missing file is a fresh start.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, os.ErrNotExist) {
		m.state = State{Sites: make(map[string]SiteState)}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read watch state: %w", utils.ErrFilesystem, err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: parse watch state: %w", utils.ErrParsing, err)
	}
	if st.Sites == nil {
		st.Sites = make(map[string]SiteState)
	}
	m.state = st
	return nil
}

// Save writes the state file through a temp file and rename
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = m.now()
	data, err := yaml.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("%w: marshal watch state: %w", utils.ErrParsing, err)
	}
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: create state directory: %w", utils.ErrFilesystem, err)
	}
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: write watch state: %w", utils.ErrFilesystem, err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return fmt.Errorf("%w: replace watch state: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// SiteState returns the recorded state of a site
func (m *StateManager) SiteState(siteKey string) (SiteState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Sites[siteKey]
	return st, ok
}

// Record stores the outcome of a run
func (m *StateManager) Record(siteKey string, st SiteState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.LastRunTime.IsZero() {
		st.LastRunTime = m.now()
	}
	m.state.Sites[siteKey] = st
}

// ShouldRun reports whether interval has passed since the site's last run
func (m *StateManager) ShouldRun(siteKey string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Sites[siteKey]
	if !ok {
		return true
	}
	return m.now().Sub(st.LastRunTime) >= interval
}

// NextRunTime returns when a site is next due
func (m *StateManager) NextRunTime(siteKey string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Sites[siteKey]
	if !ok {
		return m.now()
	}
	return st.LastRunTime.Add(interval)
}

// Sites returns a copy of every recorded site state
func (m *StateManager) Sites() map[string]SiteState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.state.Sites)
}
