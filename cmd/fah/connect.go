package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/config"
	"github.com/muurk/freeathome/internal/discovery"
	"github.com/muurk/freeathome/internal/engine"
	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/session"
	"github.com/muurk/freeathome/internal/sysap"
)

const connectTimeout = 30 * time.Second

// target is the SysAP a command talks to
type target struct {
	name     string // registry hub name, empty for ad hoc hosts
	host     string
	port     int
	username string
}

func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.LoadRegistry()
}

func saveRegistry(reg *config.Registry) error {
	if configPath != "" {
		return reg.SaveFile(configPath)
	}
	return reg.Save()
}

// resolveTarget merges the configured hub with command line overrides and
// falls back to mDNS discovery when nothing names a host.
func resolveTarget(ctx context.Context, reg *config.Registry) (*target, error) {
	name, hub := reg.SelectHub(hubName)
	if hubName != "" && hub == nil {
		return nil, fmt.Errorf("hub %q is not configured (known: %s)", hubName, strings.Join(reg.HubNames(), ", "))
	}

	t := &target{name: name}
	if hub != nil {
		t.host, t.port, t.username = hub.Host, hub.Port, hub.Username
	}
	if hostFlag != "" {
		t.host = hostFlag
		if hubName == "" {
			t.name = ""
		}
	}
	if portFlag > 0 {
		t.port = portFlag
	}
	if userFlag != "" {
		t.username = userFlag
	}

	if t.host == "" && reg.Preferences.AutoDiscover {
		timeout := time.Duration(reg.Preferences.DiscoverTimeout) * time.Second
		var (
			host string
			err  error
		)
		if hub != nil && hub.Serial != "" {
			host, err = locateHub(ctx, hub.Serial, timeout)
		} else {
			host, err = discoverHost(ctx, timeout)
		}
		if err != nil {
			return nil, err
		}
		t.host = host
	}

	if t.host == "" {
		return nil, errors.New("no SysAP configured: pass --host or run 'fah config init'")
	}
	if t.username == "" {
		return nil, errors.New("no user name: pass --user or set username in the hub configuration")
	}
	return t, nil
}

func discoverHost(ctx context.Context, timeout time.Duration) (string, error) {
	hubs, err := discovery.Scan(ctx, timeout)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	switch len(hubs) {
	case 0:
		return "", errors.New("no SysAP found on the network: pass --host")
	case 1:
		logging.Info("Using discovered SysAP", zap.String("hub", hubs[0].String()))
		return hubs[0].IP, nil
	default:
		names := make([]string, 0, len(hubs))
		for _, h := range hubs {
			names = append(names, h.IP)
		}
		return "", fmt.Errorf("found %d SysAPs (%s): pass --host", len(hubs), strings.Join(names, ", "))
	}
}

// locateHub finds a configured SysAP by serial number when its address is
// not stored.
func locateHub(ctx context.Context, serial string, timeout time.Duration) (string, error) {
	scanner := discovery.NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	hub, err := scanner.WaitForHub(ctx, serial)
	if err != nil {
		return "", fmt.Errorf("SysAP %s not found on the network: %w", serial, err)
	}
	logging.Info("Located SysAP", zap.String("serial", serial), zap.String("hub", hub.String()))
	return hub.IP, nil
}

// endpoint builds the websocket URL for a host and optional port
func endpoint(host string, port int) string {
	if port <= 0 || port == sysap.DefaultPort {
		return sysap.WebsocketURL(host)
	}
	return fmt.Sprintf("ws://%s:%d%s", host, port, sysap.DefaultPath)
}

// settingsHost is host:port of the XMPP endpoint
func settingsHost(host string, port int) string {
	if port <= 0 {
		port = sysap.DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// resolveUsername maps the user name shown in the app to the JID localpart
// used for SASL. Names that are not listed pass through unchanged.
func resolveUsername(settings *sysap.Settings, username string) string {
	if settings == nil {
		return username
	}
	jid, err := settings.LookupJID(username)
	if err != nil {
		return username
	}
	return sysap.Localpart(jid)
}

func sysapConfig(ctx context.Context, t *target, reg *config.Registry) (sysap.Config, error) {
	password := config.ResolvePassword(passFlag)
	if password == "" {
		return sysap.Config{}, fmt.Errorf("no password: pass --password or set %s", config.PasswordEnv)
	}

	settings, err := sysap.FetchSettings(ctx, nil, t.host)
	if err != nil {
		// fah-sim serves settings.json next to the WebSocket endpoint
		settings, err = sysap.FetchSettings(ctx, nil, settingsHost(t.host, t.port))
	}
	if err != nil {
		logging.Warn("Could not read SysAP settings, using user name as given", zap.Error(err))
	}

	return sysap.Config{
		URL:      endpoint(t.host, t.port),
		Username: resolveUsername(settings, t.username),
		Password: password,
		Language: reg.Preferences.Language,
	}, nil
}

func rememberHub(reg *config.Registry, t *target) {
	if t.name == "" {
		return
	}
	reg.UpdateHubLastSeen(t.name, t.host)
	if err := saveRegistry(reg); err != nil {
		logging.Warn("Failed to update configuration", zap.Error(err))
	}
}

// oneShot is a single SysAP connection with a loaded device model
type oneShot struct {
	client *sysap.Client
	engine *engine.Engine
	target *target
}

func (o *oneShot) Close() {
	_ = o.client.Close()
}

// connectOnce dials the SysAP, loads the configuration and builds the
// device set.
func connectOnce(ctx context.Context) (*oneShot, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	t, err := resolveTarget(ctx, reg)
	if err != nil {
		return nil, err
	}
	cfg, err := sysapConfig(ctx, t, reg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := sysap.Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.host, err)
	}
	e := engine.New(engine.Options{Fetcher: client, Setter: client})
	if err := e.FindDevices(ctx, true); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}

	rememberHub(reg, t)
	return &oneShot{client: client, engine: e, target: t}, nil
}

// newSession prepares a reconnecting session for long-running commands
func newSession(ctx context.Context, onState func(from, to session.State)) (*session.Session, *target, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, nil, err
	}
	t, err := resolveTarget(ctx, reg)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := sysapConfig(ctx, t, reg)
	if err != nil {
		return nil, nil, err
	}

	s := session.New(session.Options{
		Dial: session.Dialer(cfg),
		OnStateChange: func(from, to session.State) {
			if to == session.StateConnected {
				rememberHub(reg, t)
			}
			if onState != nil {
				onState(from, to)
			}
		},
	})
	return s, t, nil
}
