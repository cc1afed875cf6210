package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "freeathome"
	configFile = "config.yaml"

	// PasswordEnv supplies the SysAP password when no flag is given
	PasswordEnv = "FAH_PASSWORD"

	// MQTTPasswordEnv supplies the MQTT broker password
	MQTTPasswordEnv = "FAH_MQTT_PASSWORD"

	// InfluxTokenEnv supplies the InfluxDB API token
	InfluxTokenEnv = "FAH_INFLUX_TOKEN"

	currentVersion = 1
)

var (
	loadOnce  sync.Once
	loaded    *Registry
	loadErr   error
	saveMutex sync.Mutex
)

// GetConfigDir returns the per-user directory holding config.yaml:
// %LOCALAPPDATA%\freeathome on Windows, $XDG_CONFIG_HOME/freeathome when
// set, and ~/.config/freeathome otherwise.
func GetConfigDir() (string, error) {
	base, err := userConfigBase()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

func userConfigBase() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, "AppData", "Local"), nil
		}
		return "", errors.New("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
	}
	if runtime.GOOS != "darwin" {
		if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config"), nil
}

// GetConfigPath returns the location of config.yaml.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// LoadRegistry reads the registry from the default location once per
// process and hands every caller the same instance.
func LoadRegistry() (*Registry, error) {
	loadOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			loadErr = fmt.Errorf("failed to get config path: %w", err)
			return
		}
		loaded, loadErr = LoadFile(path)
	})
	return loaded, loadErr
}

// LoadFile reads a registry from path. A missing file yields a default
// registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewRegistry(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	reg := &Registry{}
	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if reg.Version != currentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", reg.Version, currentVersion)
	}
	reg.fillDefaults()
	return reg, nil
}

// fillDefaults replaces sections the file left out.
func (r *Registry) fillDefaults() {
	if r.Hubs == nil {
		r.Hubs = make(map[string]*Hub)
	}
	if r.MQTT == nil {
		r.MQTT = defaultMQTT()
	}
	if r.Preferences == nil {
		r.Preferences = defaultPreferences()
	}
}

// Save writes the registry to the default location.
func (r *Registry) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return r.SaveFile(path)
}

func fileHeader(path string) string {
	return fmt.Sprintf(`# free@home client configuration
#
# Secrets are never written here. The SysAP password comes from --password
# or %s, the MQTT password from %s and the InfluxDB
# token from %s.
#
# Location: %s

`, PasswordEnv, MQTTPasswordEnv, InfluxTokenEnv, path)
}

// SaveFile replaces path with the registry. The new content goes to a
// sibling temp file first so readers never see a partial write.
func (r *Registry) SaveFile(path string) error {
	saveMutex.Lock()
	defer saveMutex.Unlock()

	body, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append([]byte(fileHeader(path)), body...), 0o600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// ResolvePassword prefers the flag over PasswordEnv.
func ResolvePassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(PasswordEnv)
}

// CreateDefaultConfig writes an example registry with one hub to path, or
// to the default location when path is empty, and returns where it went.
func CreateDefaultConfig(path string) (string, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return "", err
		}
		path = p
	}

	reg := NewRegistry()
	reg.Hubs["home"] = &Hub{
		Host:     "192.168.1.10",
		Port:     5280,
		Username: "installer",
		Nickname: "Example SysAP",
	}
	reg.Preferences.DefaultHub = "home"
	return path, reg.SaveFile(path)
}
