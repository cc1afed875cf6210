package discovery

import (
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/logging"
)

// Advertisement publishes a SysAP-like service over mDNS so that Scan finds
// it. The simulator uses it.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers instance name and serial on port. Call Shutdown to
// withdraw the record.
func Advertise(name, serial string, port int) (*Advertisement, error) {
	instance := advertisedInstance(name)
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, advertisedText(serial), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising via mDNS",
		zap.String("instance", instance),
		zap.String("serial", serial),
		zap.Int("port", port),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// advertisedInstance makes sure the instance name is recognised as a SysAP
func advertisedInstance(name string) string {
	if isSysAPInstance(name) {
		return name
	}
	return strings.TrimSpace("free@home SysAP " + name)
}

func advertisedText(serial string) []string {
	if serial == "" {
		return nil
	}
	return []string{"serial=" + serial}
}
