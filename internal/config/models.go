package config

import (
	"sort"
	"time"
)

// Registry represents the entire user configuration file.
// It stores known SysAPs, the MQTT bridge settings and preferences.
type Registry struct {
	Version     int             `yaml:"version"`
	Hubs        map[string]*Hub `yaml:"hubs,omitempty"` // Keyed by a user-chosen hub name
	MQTT        *MQTT           `yaml:"mqtt,omitempty"`
	InfluxDB    *InfluxDB       `yaml:"influxdb,omitempty"`
	Preferences *Preferences    `yaml:"preferences,omitempty"`
}

// Hub represents one SysAP the user connects to.
type Hub struct {
	Host     string    `yaml:"host"`                // IP or hostname
	Port     int       `yaml:"port,omitempty"`      // XMPP-over-WebSocket port (default 5280)
	Username string    `yaml:"username,omitempty"`  // SysAP user name as shown in the app
	Serial   string    `yaml:"serial,omitempty"`    // SysAP serial number, if known
	Nickname string    `yaml:"nickname,omitempty"`  // User-friendly name
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last successful connection
	// Password is NEVER stored; see ResolvePassword
}

// MQTT configures the state bridge.
type MQTT struct {
	Broker      string `yaml:"broker"`                 // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id,omitempty"`    // default: freeathome-<hostname>
	Username    string `yaml:"username,omitempty"`     // broker user; password from FAH_MQTT_PASSWORD
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // default: freeathome
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// InfluxDB configures the state history recorder.
type InfluxDB struct {
	URL           string `yaml:"url"`                      // e.g. http://localhost:8086
	Org           string `yaml:"org"`                      // organisation name
	Bucket        string `yaml:"bucket"`                   // target bucket
	Measurement   string `yaml:"measurement,omitempty"`    // default: freeathome_state
	FlushInterval int    `yaml:"flush_interval,omitempty"` // seconds between batch writes
	// Token comes from FAH_INFLUX_TOKEN
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	AutoDiscover    bool   `yaml:"auto_discover"`         // Scan with mDNS when no hub is configured
	DiscoverTimeout int    `yaml:"discover_timeout"`      // mDNS discovery timeout in seconds
	Language        string `yaml:"language,omitempty"`    // Configuration language requested from the SysAP
	DefaultHub      string `yaml:"default_hub,omitempty"` // Hub used when --hub is not given
}

// Defaults
const (
	DefaultTopicPrefix     = "freeathome"
	DefaultDiscoverTimeout = 5
	DefaultLanguage        = "de"
)

func defaultPreferences() *Preferences {
	return &Preferences{
		AutoDiscover:    true,
		DiscoverTimeout: DefaultDiscoverTimeout,
		Language:        DefaultLanguage,
	}
}

func defaultMQTT() *MQTT {
	return &MQTT{
		Broker:      "tcp://localhost:1883",
		TopicPrefix: DefaultTopicPrefix,
		QoS:         1,
		Retain:      true,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Hubs:        make(map[string]*Hub),
		MQTT:        defaultMQTT(),
		Preferences: defaultPreferences(),
	}
}

// GetHub retrieves a hub by name.
// Returns nil if the hub doesn't exist in the registry.
func (r *Registry) GetHub(name string) *Hub {
	return r.Hubs[name]
}

// EnsureHub ensures a hub entry exists in the registry and returns it.
func (r *Registry) EnsureHub(name string) *Hub {
	if r.Hubs == nil {
		r.Hubs = make(map[string]*Hub)
	}

	if hub, exists := r.Hubs[name]; exists {
		return hub
	}

	hub := &Hub{}
	r.Hubs[name] = hub
	return hub
}

// UpdateHubLastSeen records a successful connection to a hub.
func (r *Registry) UpdateHubLastSeen(name, host string) {
	hub := r.EnsureHub(name)
	hub.LastSeen = time.Now()
	if host != "" {
		hub.Host = host
	}
}

// SetHubNickname sets a user-friendly nickname for a hub.
func (r *Registry) SetHubNickname(name, nickname string) {
	r.EnsureHub(name).Nickname = nickname
}

// HubNames returns the configured hub names in sorted order.
func (r *Registry) HubNames() []string {
	names := make([]string, 0, len(r.Hubs))
	for name := range r.Hubs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SelectHub picks the hub to use: the named one, else the default hub,
// else the only configured hub. It returns "" and nil when no choice can
// be made.
func (r *Registry) SelectHub(name string) (string, *Hub) {
	if name != "" {
		return name, r.Hubs[name]
	}
	if r.Preferences != nil && r.Preferences.DefaultHub != "" {
		if hub, ok := r.Hubs[r.Preferences.DefaultHub]; ok {
			return r.Preferences.DefaultHub, hub
		}
	}
	if len(r.Hubs) == 1 {
		for name, hub := range r.Hubs {
			return name, hub
		}
	}
	return "", nil
}

// TopicPrefixOrDefault returns the configured MQTT topic prefix or the
// default.
func (m *MQTT) TopicPrefixOrDefault() string {
	if m == nil || m.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return m.TopicPrefix
}
