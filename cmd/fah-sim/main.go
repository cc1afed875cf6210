// Fah-sim runs a stand-in free@home System Access Point.
//
// It serves a configuration document over the SysAP's XMPP-over-WebSocket
// interface, accepts datapoint writes and pushes the resulting updates to
// every connected client. Use it to try 'fah' or the MQTT bridge without a
// real installation.
//
// Usage:
//
//	fah-sim serve --document project.xml [flags]
//
// See 'fah-sim serve --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/muurk/freeathome/internal/config"
	"github.com/muurk/freeathome/internal/discovery"
	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/simulator"
	"github.com/muurk/freeathome/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fah-sim",
	Short: "free@home SysAP simulator",
	Long: `A stand-in System Access Point for development and testing.

The simulator loads a configuration document (as returned by
RemoteInterface.getAll) and serves it over XMPP-over-WebSocket together with
/settings.json. Datapoint writes are mirrored onto the paired outputs the way
real actuators report back.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command and flags
var (
	documentPath string
	host         string
	port         int
	userName     string
	password     string
	serial       string
	sysapName    string
	travelTime   time.Duration
	pingInterval time.Duration
	captureDir   string
	advertise    bool
	logLevel     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the simulator",
	Long: `Start the simulator and accept client connections.

The user name is what clients pass as --user; the simulator publishes it in
settings.json with a stable JID derived from the name. The password defaults
to $` + config.PasswordEnv + `.

To capture every stanza for protocol analysis, use --capture-dir to name a
directory where JSON Lines capture files will be written.`,
	Example: `  # Serve a saved configuration on the standard port
  fah-sim serve --document project.xml --password secret

  # Slow cover travel and debug logging
  fah-sim serve --document project.xml --travel-time 5s --log-level debug

  # Advertise over mDNS so 'fah scan' finds the simulator
  fah-sim serve --document project.xml --advertise

  # Capture the stanza exchange
  fah-sim serve --document project.xml --capture-dir ./captures`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&documentPath, "document", "d", "", "Configuration document (getAll XML) to serve")
	f.StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	f.IntVar(&port, "port", simulator.DefaultPort, "Listen port")
	f.StringVarP(&userName, "user", "u", "installer", "User name clients log in with")
	f.StringVarP(&password, "password", "p", "", "Password for the user (default: $"+config.PasswordEnv+")")
	f.StringVar(&serial, "serial", simulator.DefaultSerial, "SysAP serial number reported in settings.json")
	f.StringVar(&sysapName, "name", "SysAP", "SysAP name reported in settings.json and mDNS")
	f.DurationVar(&travelTime, "travel-time", 2*time.Second, "Delay before a moving cover reports its end position")
	f.DurationVar(&pingInterval, "ping-interval", 30*time.Second, "XMPP ping interval (0 disables)")
	f.StringVar(&captureDir, "capture-dir", "", "Directory to write stanza captures (disabled if not specified)")
	f.BoolVar(&advertise, "advertise", false, "Advertise the simulator via mDNS")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	_ = serveCmd.MarkFlagRequired("document")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	doc, err := os.ReadFile(documentPath)
	if err != nil {
		return fmt.Errorf("failed to read configuration document: %w", err)
	}

	pw := config.ResolvePassword(password)
	if pw == "" {
		return fmt.Errorf("no password given: use --password or set %s", config.PasswordEnv)
	}

	// Validate capture directory if specified
	if captureDir != "" {
		info, err := os.Stat(captureDir)
		if os.IsNotExist(err) {
			return fmt.Errorf("capture directory does not exist: %s", captureDir)
		}
		if err != nil {
			return fmt.Errorf("cannot access capture directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("capture path is not a directory: %s", captureDir)
		}
	}

	localpart := userLocalpart(userName)
	srv, err := simulator.New(&simulator.Config{
		Host:         host,
		Port:         port,
		Document:     doc,
		Users:        map[string]string{localpart: pw},
		Names:        map[string]string{localpart: userName},
		Serial:       serial,
		Name:         sysapName,
		TravelTime:   travelTime,
		PingInterval: pingInterval,
		CaptureDir:   captureDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}

	if advertise {
		ad, err := discovery.Advertise(sysapName, serial, port)
		if err != nil {
			return err
		}
		defer ad.Shutdown()
	}

	return srv.ListenAndServe(cmd.Context())
}

// userLocalpart derives a stable JID localpart from a user name. A real
// SysAP assigns random UUIDs; deriving them keeps restarts compatible.
func userLocalpart(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("freeathome-sim:"+name)).String()
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fah-sim %s\n", version.Full())
	},
}
