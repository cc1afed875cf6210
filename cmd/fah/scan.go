package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/freeathome/internal/config"
	"github.com/muurk/freeathome/internal/discovery"
	"github.com/muurk/freeathome/internal/ui"
)

var (
	scanTimeout int
	scanSave    bool
	scanPick    bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", int(discovery.DefaultScanTimeout/time.Second), "Scan timeout in seconds")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Add found SysAPs to the configuration")
	scanCmd.Flags().BoolVar(&scanPick, "pick", false, "Choose a SysAP interactively and make it the default")
	scanCmd.MarkFlagsMutuallyExclusive("save", "pick")
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find SysAPs on the network",
	Long: `Browse mDNS for free@home System Access Points and list them.

With --save every SysAP found is added to the configuration file, keyed by
its serial number. With --pick an interactive list lets you choose one SysAP
(or type an address), which is saved and becomes the default hub.`,
	Example: `  fah scan
  fah scan --timeout 10 --save
  fah scan --pick`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

// hubKey is the registry name for a discovered SysAP
func hubKey(h *discovery.Hub) string {
	if h.Serial != "" {
		return strings.ToLower(h.Serial)
	}
	return strings.ReplaceAll(h.IP, ".", "-")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanPick {
		return runPick(cmd)
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "Scanning for SysAPs (timeout: %ds)...\n\n", scanTimeout)

	hubs, err := discovery.Scan(cmd.Context(), time.Duration(scanTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(hubs) == 0 {
		p.Warning("No SysAP found")
		p.Println("Troubleshooting:")
		p.Println("  - Make sure this machine is on the same network as the SysAP")
		p.Println("  - mDNS does not cross VLANs or most VPNs")
		p.Println("  - Try a longer --timeout, or pass --host to other commands")
		return nil
	}

	for i, h := range hubs {
		params := []ui.Param{
			{Key: "Address", Value: fmt.Sprintf("%s:%d", h.IP, h.Port)},
			{Key: "Hostname", Value: h.Hostname},
		}
		if h.Serial != "" {
			params = append(params, ui.Param{Key: "Serial", Value: h.Serial})
		}
		title := h.Name
		if title == "" {
			title = h.Hostname
		}
		p.Header(fmt.Sprintf("%d. %s", i+1, title), h.WebsocketURL(), params...)
	}

	if !scanSave {
		p.Newline()
		p.Println("Use 'fah scan --save' to add these to the configuration")
		return nil
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	for _, h := range hubs {
		storeHub(reg, h)
	}
	if err := saveRegistry(reg); err != nil {
		return err
	}
	p.Success(fmt.Sprintf("Saved %d SysAP(s)", len(hubs)))
	return nil
}

// storeHub records a discovered SysAP in the registry and returns its name.
// The mDNS port is the web interface, not the websocket, so it is not kept.
func storeHub(reg *config.Registry, h *discovery.Hub) string {
	name := hubKey(h)
	hub := reg.EnsureHub(name)
	hub.Host = h.IP
	if h.Serial != "" {
		hub.Serial = h.Serial
	}
	if hub.Nickname == "" {
		hub.Nickname = h.Name
	}
	return name
}

func runPick(cmd *cobra.Command) error {
	timeout := time.Duration(scanTimeout) * time.Second
	scan := func(ctx context.Context) ([]*discovery.Hub, error) {
		return discovery.Scan(ctx, timeout)
	}

	chosen, err := ui.PickHub(cmd.Context(), scan, timeout)
	if err != nil {
		return err
	}
	if chosen == nil {
		return nil
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	name := storeHub(reg, chosen)
	reg.Preferences.DefaultHub = name
	if err := saveRegistry(reg); err != nil {
		return err
	}

	ui.NewPrinter(cmd.OutOrStdout()).Success(fmt.Sprintf("Default hub is now %q (%s)", name, chosen.IP))
	return nil
}
