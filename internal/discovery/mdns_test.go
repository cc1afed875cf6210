package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(instance, host string, port int, ips ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance},
		HostName:      host,
		Port:          port,
	}
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

func TestHubFromEntry(t *testing.T) {
	withTXT := answer("", "sysap-28ebc3651.local", 80, "10.0.0.5")
	withTXT.Text = []string{"serial=ABB999999999"}

	cases := map[string]struct {
		entry  *zeroconf.ServiceEntry
		serial string
		ip     string
		port   int
	}{
		"bare hostname":             {answer("SysAP", "sysap.local.", 80, "192.168.1.10"), "", "192.168.1.10", 80},
		"serial in hostname":        {answer("", "SysAP-28ebc3651.local", 80, "10.0.0.5"), "ABB28EBC3651", "10.0.0.5", 80},
		"TXT serial beats hostname": {withTXT, "ABB999999999", "10.0.0.5", 80},
		"instance name":             {answer("Busch-Jaeger free@home", "abb-gateway.local.", 8080, "192.168.1.100"), "", "192.168.1.100", 8080},
		"missing port":              {answer("", "sysap.local", 0, "172.16.0.1"), "", "172.16.0.1", DefaultPort},
		"IPv6 only":                 {answer("", "sysap.local", 80, "fe80::1"), "", "fe80::1", 80},
		"IPv4 first":                {answer("", "sysap.local", 80, "fe80::2", "192.168.1.50"), "", "192.168.1.50", 80},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			hub := hubFromEntry(tc.entry)
			require.NotNil(t, hub)
			assert.Equal(t, tc.serial, hub.Serial)
			assert.Equal(t, tc.ip, hub.IP)
			assert.Equal(t, tc.port, hub.Port)
			assert.Equal(t, tc.entry.HostName, hub.Hostname)
			assert.WithinDuration(t, time.Now(), hub.DiscoveredAt, time.Second)
		})
	}
}

func TestHubFromEntry_Rejected(t *testing.T) {
	for name, entry := range map[string]*zeroconf.ServiceEntry{
		"nil":            nil,
		"other service":  answer("Printer", "printer.local.", 80, "192.168.1.1"),
		"no hostname":    answer("SysAP", "", 80, "192.168.1.1"),
		"no address":     answer("", "sysap.local", 80),
		"lookalike host": answer("", "mysysap.local", 80, "192.168.1.2"),
		"non-hex suffix": answer("", "sysap-xyz.local", 80, "192.168.1.3"),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, hubFromEntry(entry))
		})
	}
}

func TestTXTRecords(t *testing.T) {
	got := txtRecords([]string{"path=/", "version=2.6.0", "flag", "eq=a=b"})
	assert.Equal(t, map[string]string{"path": "/", "version": "2.6.0", "flag": "", "eq": "a=b"}, got)
}

func TestHostnamePattern(t *testing.T) {
	suffix := map[string]string{
		"sysap.local":           "",
		"sysap.local.":          "",
		"SysAP.local":           "",
		"sysap-28ebc3651.local": "28ebc3651",
		"SYSAP_ABCDEF.local.":   "ABCDEF",
	}
	for host, want := range suffix {
		m := hostnamePattern.FindStringSubmatch(host)
		if assert.NotNil(t, m, host) {
			assert.Equal(t, want, m[1], host)
		}
	}
	for _, host := range []string{"sysap-xyz.local", "mysysap.local", "sysap", ""} {
		assert.Nil(t, hostnamePattern.FindStringSubmatch(host), host)
	}
}

func TestNewScanner(t *testing.T) {
	assert.Equal(t, DefaultScanTimeout, NewScanner().Timeout)
}

func TestAdvertisement_IsDiscoverable(t *testing.T) {
	assert.Equal(t, "SysAP Lab", advertisedInstance("SysAP Lab"))
	assert.Nil(t, advertisedText(""))

	entry := answer(advertisedInstance("Lab"), "lab-box.local.", 5280, "127.0.0.1")
	entry.Text = advertisedText("ABB700000001")

	hub := hubFromEntry(entry)
	require.NotNil(t, hub, "advertised entry should look like a SysAP")
	assert.Equal(t, "ABB700000001", hub.Serial)
	assert.Equal(t, 5280, hub.Port)
}
