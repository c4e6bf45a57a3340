package storage

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	settingsFile          = "config.yaml"
	currentSettingsFormat = 1
)

// Settings is the workspace-level config.yaml.
type Settings struct {
	Version           int      `yaml:"version"`
	DefaultWorkflowID string   `yaml:"default_workflow_id,omitempty"`
	Actor             string   `yaml:"actor,omitempty"`
	SystemKinds       []string `yaml:"system_kinds,omitempty"`
}

// DefaultSettings returns the settings written by Init.
func DefaultSettings() Settings {
	return Settings{Version: currentSettingsFormat}
}

func (ws *Workspace) settingsPath() string { return ws.path(settingsFile) }

// Settings returns the parsed config.yaml. A missing file yields defaults.
func (ws *Workspace) Settings() (Settings, error) {
	ws.settingsMu.Lock()
	defer ws.settingsMu.Unlock()
	if ws.settings != nil {
		return *ws.settings, nil
	}
	data, err := readFile(ws.settingsPath())
	if errors.Is(err, ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("storage: read settings: %w", err)
	}
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("storage: decode %s: %w", settingsFile, err)
	}
	for i, k := range s.SystemKinds {
		s.SystemKinds[i] = strings.TrimSpace(k)
	}
	ws.settings = &s
	return s, nil
}

// SaveSettings atomically rewrites config.yaml.
func (ws *Workspace) SaveSettings(s Settings) error {
	if s.Version == 0 {
		s.Version = currentSettingsFormat
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("storage: encode settings: %w", err)
	}
	ws.settingsMu.Lock()
	defer ws.settingsMu.Unlock()
	if err := writeFileAtomic(ws.settingsPath(), data); err != nil {
		return fmt.Errorf("storage: write settings: %w", err)
	}
	ws.settings = &s
	return nil
}
