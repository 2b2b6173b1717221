package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"portal-harvester/pkg/models"
	"portal-harvester/pkg/utils"
)

const stateFileName = "watch_state.yaml"

// PortalState is the outcome of the last harvest of one portal
type PortalState struct {
	LastRunTime    time.Time `yaml:"last_run_time"`
	LastRunID      string    `yaml:"last_run_id,omitempty"`
	LastRunSuccess bool      `yaml:"last_run_success"`
	PagesFetched   int       `yaml:"pages_fetched"`
	Documents      int       `yaml:"documents"`
	OutputDir      string    `yaml:"output_dir,omitempty"`
	ErrorMessage   string    `yaml:"error_message,omitempty"`
	Runs           int       `yaml:"runs"`
}

// WatchState is the persistent state of the watch scheduler
type WatchState struct {
	Portals   map[string]PortalState `yaml:"portals"`
	UpdatedAt time.Time              `yaml:"updated_at"`
}

// StateManager persists WatchState as YAML under a state directory
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state:     WatchState{Portals: make(map[string]PortalState)},
	}
}

// Path returns the state file location
func (m *StateManager) Path() string { return m.statePath }

// Load reads the state file. A missing file starts fresh.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.state = WatchState{Portals: make(map[string]PortalState)}
			return nil
		}
		return fmt.Errorf("%w: reading watch state: %w", utils.ErrFilesystem, err)
	}
	if err := yaml.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("%w: watch state '%s': %w", utils.ErrParsing, m.statePath, err)
	}
	if m.state.Portals == nil {
		m.state.Portals = make(map[string]PortalState)
	}
	return nil
}

// Save writes the state file
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now().UTC()
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: creating state directory: %w", utils.ErrFilesystem, err)
	}
	data, err := yaml.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("marshalling watch state: %w", err)
	}
	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("%w: writing watch state: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// Get returns the state of one portal
func (m *StateManager) Get(portal string) (PortalState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Portals[portal]
	return st, ok
}

// Record stores the outcome of a run. summary may be nil when the run failed before producing one.
func (m *StateManager) Record(portal string, summary *models.RunSummary, outputDir string, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state.Portals[portal]
	st.LastRunTime = time.Now().UTC()
	st.LastRunSuccess = runErr == nil
	st.OutputDir = outputDir
	st.ErrorMessage = ""
	st.PagesFetched, st.Documents, st.LastRunID = 0, 0, ""
	if runErr != nil {
		st.ErrorMessage = runErr.Error()
	}
	if summary != nil {
		st.LastRunID = summary.RunID
		st.PagesFetched = summary.PagesFetched
		st.Documents = summary.Documents
	}
	st.Runs++
	m.state.Portals[portal] = st
}

// ShouldRun reports whether interval has elapsed since the portal's last run
func (m *StateManager) ShouldRun(portal string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Portals[portal]
	if !ok {
		return true
	}
	return time.Since(st.LastRunTime) >= interval
}

// NextRunTime returns when the portal is next due
func (m *StateManager) NextRunTime(portal string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Portals[portal]
	if !ok {
		return time.Now()
	}
	return st.LastRunTime.Add(interval)
}

// All returns a copy of every portal's state
func (m *StateManager) All() map[string]PortalState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]PortalState, len(m.state.Portals))
	for k, v := range m.state.Portals {
		out[k] = v
	}
	return out
}
