package discovery

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/logging"
)

const (
	// ServiceType is what the SysAP web interface announces.
	ServiceType   = "_http._tcp"
	ServiceDomain = "local."

	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is assumed when an answer carries no SRV port.
	DefaultPort = 80
)

// hostnamePattern matches "sysap.local." and "SysAP-28EBC3651.local". Some
// firmware appends the serial, minus its "ABB" prefix, to the hostname.
var hostnamePattern = regexp.MustCompile(`(?i)^sysap(?:[-_]([0-9a-f]+))?\.local\.?$`)

// Scanner browses mDNS for SysAPs.
type Scanner struct {
	Timeout time.Duration
}

func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// browse feeds every SysAP answer to visit until the timeout, the context
// ends, or visit returns false.
func (s *Scanner) browse(ctx context.Context, visit func(*Hub) bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if hub := hubFromEntry(entry); hub != nil && !visit(hub) {
					cancel()
					return
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	<-ctx.Done()
	<-done
	return nil
}

// Scan collects every SysAP that answers before the timeout. Repeated
// answers from one address are reported once.
func (s *Scanner) Scan(ctx context.Context) ([]*Hub, error) {
	var hubs []*Hub
	seen := make(map[string]struct{})
	err := s.browse(ctx, func(h *Hub) bool {
		key := net.JoinHostPort(h.IP, strconv.Itoa(h.Port))
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			hubs = append(hubs, h)
			logging.Debug("Found SysAP", zap.String("hub", h.String()))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return hubs, nil
}

// WaitForHub stops at the first SysAP announcing serial.
func (s *Scanner) WaitForHub(ctx context.Context, serial string) (*Hub, error) {
	var found *Hub
	err := s.browse(ctx, func(h *Hub) bool {
		if strings.EqualFold(h.Serial, serial) {
			found = h
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("SysAP with serial %s not found within %s", serial, s.Timeout)
	}
	return found, nil
}

// hubFromEntry returns nil for answers that are not from a SysAP or carry
// no address.
func hubFromEntry(entry *zeroconf.ServiceEntry) *Hub {
	if entry == nil || entry.HostName == "" {
		return nil
	}
	m := hostnamePattern.FindStringSubmatch(entry.HostName)
	if m == nil && !isSysAPInstance(entry.Instance) {
		return nil
	}
	ip := firstAddress(entry.AddrIPv4, entry.AddrIPv6)
	if ip == "" {
		return nil
	}

	txt := txtRecords(entry.Text)
	serial := txt["serial"]
	if serial == "" && len(m) > 1 && m[1] != "" {
		serial = "ABB" + strings.ToUpper(m[1])
	}
	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	return &Hub{
		Name:         entry.Instance,
		Serial:       serial,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     txt,
		DiscoveredAt: time.Now(),
	}
}

// txtRecords splits "key=value" strings. A bare key maps to "".
func txtRecords(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, kv := range text {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out
}

func isSysAPInstance(instance string) bool {
	lower := strings.ToLower(instance)
	return strings.Contains(lower, "free@home") || strings.Contains(lower, "sysap")
}

func firstAddress(v4, v6 []net.IP) string {
	for _, set := range [][]net.IP{v4, v6} {
		if len(set) > 0 {
			return set[0].String()
		}
	}
	return ""
}

// Scan runs a one-off scan; a zero timeout means DefaultScanTimeout.
func Scan(ctx context.Context, timeout time.Duration) ([]*Hub, error) {
	s := NewScanner()
	if timeout > 0 {
		s.Timeout = timeout
	}
	return s.Scan(ctx)
}
