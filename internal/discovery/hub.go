package discovery

import (
	"fmt"
	"time"

	"github.com/muurk/freeathome/internal/sysap"
)

// Hub is a SysAP found on the local network
type Hub struct {
	// Name is the mDNS instance name (e.g., "SysAP Home")
	Name string

	// Serial is the SysAP serial number when advertised (e.g., "ABB28EBC3651")
	Serial string

	// Hostname is the mDNS hostname (e.g., "sysap-28ebc3651.local.")
	Hostname string

	// IP is the address to connect to; IPv4 is preferred
	IP string

	// Port is the advertised HTTP port (typically 80)
	Port int

	// Metadata holds the TXT record key/value pairs
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable description of the hub
func (h *Hub) String() string {
	name := h.Name
	if name == "" {
		name = h.Hostname
	}
	return fmt.Sprintf("SysAP %s (%s) at %s:%d", name, h.Hostname, h.IP, h.Port)
}

// BaseURL returns the HTTP base URL of the hub
func (h *Hub) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", h.IP, h.Port)
}

// WebsocketURL returns the XMPP-over-WebSocket endpoint of the hub
func (h *Hub) WebsocketURL() string {
	return sysap.WebsocketURL(h.IP)
}

// GetMetadata returns a TXT record value, or "" when absent
func (h *Hub) GetMetadata(key string) string {
	if h.Metadata == nil {
		return ""
	}
	return h.Metadata[key]
}
