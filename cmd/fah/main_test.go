package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/muurk/freeathome/internal/config"
	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/discovery"
	"github.com/muurk/freeathome/internal/sysap"
)

// resetFlags restores the package-level flag variables after a test
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		hubName, hostFlag, userFlag, passFlag, configPath = "", "", "", "", ""
		portFlag = 0
		brokerFlag, prefixFlag, clientIDFlag, mqttUserFlag = "", "", "", ""
		influxURLFlag, influxOrgFlag, influxBucketFlag = "", "", ""
	})
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    devices.Category
		wantErr bool
	}{
		{"", "", false},
		{"switch", devices.CategorySwitch, false},
		{"Cover", devices.CategoryCover, false},
		{"binary_sensor", devices.CategoryBinarySensor, false},
		{"light", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCategory(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseCategory(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCoverCommand(t *testing.T) {
	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{[]string{"open", "k"}, "open", false},
		{[]string{"STOP", "k"}, "stop", false},
		{[]string{"position", "k", "40"}, "40", false},
		{[]string{"position", "k"}, "", true},
		{[]string{"position", "k", "101"}, "", true},
		{[]string{"position", "k", "half"}, "", true},
		{[]string{"close", "k", "10"}, "", true},
		{[]string{"tilt", "k"}, "", true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			got, err := coverCommand(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("coverCommand(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("coverCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	if got, want := endpoint("192.168.1.10", 0), "ws://192.168.1.10:5280/xmpp-websocket"; got != want {
		t.Errorf("endpoint() = %q, want %q", got, want)
	}
	if got, want := endpoint("sysap.local", 8080), "ws://sysap.local:8080/xmpp-websocket"; got != want {
		t.Errorf("endpoint() = %q, want %q", got, want)
	}
}

func TestSettingsHost(t *testing.T) {
	if got, want := settingsHost("127.0.0.1", 0), "127.0.0.1:5280"; got != want {
		t.Errorf("settingsHost() = %q, want %q", got, want)
	}
	if got, want := settingsHost("::1", 9000), "[::1]:9000"; got != want {
		t.Errorf("settingsHost() = %q, want %q", got, want)
	}
}

func TestResolveUsername(t *testing.T) {
	settings := &sysap.Settings{Users: []sysap.User{
		{Name: "installer", JID: "6f1a2b3c-installer@busch-jaeger.de"},
	}}

	if got := resolveUsername(settings, "Installer"); got != "6f1a2b3c-installer" {
		t.Errorf("resolveUsername() = %q", got)
	}
	if got := resolveUsername(settings, "6f1a2b3c-installer"); got != "6f1a2b3c-installer" {
		t.Errorf("unlisted names should pass through, got %q", got)
	}
	if got := resolveUsername(nil, "installer"); got != "installer" {
		t.Errorf("resolveUsername(nil) = %q", got)
	}
}

func testRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.Preferences.AutoDiscover = false
	reg.Hubs["home"] = &config.Hub{Host: "192.168.1.10", Username: "installer"}
	reg.Hubs["cabin"] = &config.Hub{Host: "10.0.0.2", Port: 8080, Username: "guest"}
	reg.Preferences.DefaultHub = "home"
	return reg
}

func TestResolveTarget(t *testing.T) {
	ctx := context.Background()

	t.Run("default hub", func(t *testing.T) {
		resetFlags(t)
		got, err := resolveTarget(ctx, testRegistry())
		if err != nil {
			t.Fatal(err)
		}
		if got.name != "home" || got.host != "192.168.1.10" || got.username != "installer" {
			t.Errorf("resolveTarget() = %+v", got)
		}
	})

	t.Run("named hub with user override", func(t *testing.T) {
		resetFlags(t)
		hubName, userFlag = "cabin", "owner"
		got, err := resolveTarget(ctx, testRegistry())
		if err != nil {
			t.Fatal(err)
		}
		if got.host != "10.0.0.2" || got.port != 8080 || got.username != "owner" {
			t.Errorf("resolveTarget() = %+v", got)
		}
	})

	t.Run("host flag is ad hoc", func(t *testing.T) {
		resetFlags(t)
		hostFlag = "192.168.1.99"
		got, err := resolveTarget(ctx, testRegistry())
		if err != nil {
			t.Fatal(err)
		}
		if got.name != "" || got.host != "192.168.1.99" {
			t.Errorf("resolveTarget() = %+v", got)
		}
	})

	t.Run("unknown hub", func(t *testing.T) {
		resetFlags(t)
		hubName = "office"
		if _, err := resolveTarget(ctx, testRegistry()); err == nil {
			t.Error("expected an error for an unknown hub")
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		resetFlags(t)
		reg := config.NewRegistry()
		reg.Preferences.AutoDiscover = false
		if _, err := resolveTarget(ctx, reg); err == nil {
			t.Error("expected an error without any host")
		}
	})

	t.Run("missing user", func(t *testing.T) {
		resetFlags(t)
		reg := config.NewRegistry()
		reg.Preferences.AutoDiscover = false
		hostFlag = "192.168.1.10"
		if _, err := resolveTarget(ctx, reg); err == nil {
			t.Error("expected an error without a user name")
		}
	})
}

func TestMQTTSettings(t *testing.T) {
	resetFlags(t)

	reg := config.NewRegistry()
	reg.MQTT.TopicPrefix = ""
	m := mqttSettings(reg)
	if m.Broker != "tcp://localhost:1883" || m.TopicPrefix != config.DefaultTopicPrefix {
		t.Errorf("mqttSettings() = %+v", m)
	}
	if !strings.HasPrefix(m.ClientID, "freeathome-") {
		t.Errorf("generated client id = %q", m.ClientID)
	}

	brokerFlag, prefixFlag, clientIDFlag = "ssl://broker:8883", "home/fah", "fah-test"
	m = mqttSettings(reg)
	if m.Broker != "ssl://broker:8883" || m.TopicPrefix != "home/fah" || m.ClientID != "fah-test" {
		t.Errorf("flags not applied: %+v", m)
	}
}

func TestInfluxSettings(t *testing.T) {
	resetFlags(t)
	t.Setenv(config.InfluxTokenEnv, "token")

	reg := config.NewRegistry()
	if cfg := influxSettings(reg); cfg.URL != "" || cfg.Token != "token" {
		t.Errorf("influxSettings() without section = %+v", cfg)
	}

	reg.InfluxDB = &config.InfluxDB{URL: "http://influx:8086", Org: "home", Bucket: "fah", FlushInterval: 5}
	cfg := influxSettings(reg)
	if cfg.URL != "http://influx:8086" || cfg.Org != "home" || cfg.Bucket != "fah" || cfg.FlushInterval != 5*time.Second {
		t.Errorf("influxSettings() = %+v", cfg)
	}

	influxURLFlag, influxBucketFlag = "http://other:8086", "test"
	cfg = influxSettings(reg)
	if cfg.URL != "http://other:8086" || cfg.Org != "home" || cfg.Bucket != "test" {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestHubKey(t *testing.T) {
	if got := hubKey(&discovery.Hub{Serial: "ABB28EBC3651", IP: "192.168.1.10"}); got != "abb28ebc3651" {
		t.Errorf("hubKey() = %q", got)
	}
	if got := hubKey(&discovery.Hub{IP: "192.168.1.10"}); got != "192-168-1-10" {
		t.Errorf("hubKey() = %q", got)
	}
}

func TestStoreHub(t *testing.T) {
	reg := config.NewRegistry()
	hub := reg.EnsureHub("abb28ebc3651")
	hub.Username = "installer"
	hub.Port = 5280

	name := storeHub(reg, &discovery.Hub{Name: "Kitchen SysAP", Serial: "ABB28EBC3651", IP: "192.168.1.20", Port: 80})
	if name != "abb28ebc3651" {
		t.Fatalf("storeHub() = %q", name)
	}
	got := reg.GetHub(name)
	if got.Host != "192.168.1.20" || got.Serial != "ABB28EBC3651" || got.Nickname != "Kitchen SysAP" {
		t.Errorf("stored hub = %+v", got)
	}
	if got.Username != "installer" || got.Port != 5280 {
		t.Errorf("existing settings were overwritten: %+v", got)
	}

	manual := storeHub(reg, &discovery.Hub{IP: "10.0.0.5"})
	if manual != "10-0-0-5" || reg.GetHub(manual).Host != "10.0.0.5" {
		t.Errorf("manual hub = %q %+v", manual, reg.GetHub(manual))
	}
}
