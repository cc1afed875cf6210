// Fah is a command line client for the free@home System Access Point.
//
// It discovers SysAPs on the LAN, lists the device objects built from the
// SysAP configuration, follows live state changes, sends commands to
// switches, covers and scenes, and bridges the device model to MQTT.
//
// Usage:
//
//	fah [command] [flags]
//
// See 'fah --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/freeathome/internal/logging"
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

// Connection flags shared by all commands talking to a SysAP
var (
	hubName    string
	hostFlag   string
	portFlag   int
	userFlag   string
	passFlag   string
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "fah",
	Short: "free@home SysAP client",
	Long: `A command line client for the Busch-Jaeger / ABB free@home System Access Point.

Connects to the SysAP over XMPP, builds typed device objects from its
configuration and keeps them in sync with live updates.

Connection details come from the configuration file (see 'fah config init')
and can be overridden with --host, --user and --password. The password is
never stored; set FAH_PASSWORD to avoid passing it on the command line.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&hubName, "hub", "", "Configured hub to use (default: preferences.default_hub)")
	pf.StringVar(&hostFlag, "host", "", "SysAP IP address or hostname (overrides the configured hub)")
	pf.IntVar(&portFlag, "port", 0, "SysAP XMPP-over-WebSocket port (default 5280)")
	pf.StringVarP(&userFlag, "user", "u", "", "SysAP user name as shown in the app")
	pf.StringVarP(&passFlag, "password", "p", "", "SysAP password (default: $FAH_PASSWORD)")
	pf.StringVar(&configPath, "config", "", "Configuration file (default: ~/.config/freeathome/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent by default")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fah %s\n", version.Full())
	},
}
