package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/mqttbridge"
	"github.com/muurk/freeathome/internal/ui"
)

var (
	categoryFlag string
	jsonOutput   bool
)

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().StringVarP(&categoryFlag, "category", "c", "", "Only list one category ("+categoryNames()+")")
	devicesCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of a table")
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List device objects",
	Long: `Connect to the SysAP, load its configuration and list the device objects
built from it: sensors, binary sensors, switches, covers and scenes.`,
	Example: `  # All devices of the default hub
  fah devices

  # Only covers, as JSON
  fah devices --category cover --json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func categoryNames() string {
	names := make([]string, 0, len(devices.Categories))
	for _, c := range devices.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

// parseCategory validates a --category value; empty means all
func parseCategory(s string) (devices.Category, error) {
	if s == "" {
		return "", nil
	}
	for _, c := range devices.Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (want one of: %s)", s, categoryNames())
}

// deviceJSON is the --json representation of a device object
type deviceJSON struct {
	mqttbridge.Attributes
	State string `json:"state"`
}

func runDevices(cmd *cobra.Command, args []string) error {
	category, err := parseCategory(categoryFlag)
	if err != nil {
		return err
	}

	conn, err := connectOnce(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	list := conn.engine.Devices()
	if category != "" {
		list = conn.engine.GetDevices(category)
	}

	if jsonOutput {
		out := make([]deviceJSON, 0, len(list))
		for _, d := range ui.SortDevices(list) {
			out = append(out, deviceJSON{Attributes: mqttbridge.AttributesOf(d), State: d.State()})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	filter := "all"
	if category != "" {
		filter = string(category)
	}
	p.Header("Devices", cmd.CommandPath(),
		ui.Param{Key: "SysAP", Value: conn.target.host},
		ui.Param{Key: "Category", Value: filter},
		ui.Param{Key: "Count", Value: fmt.Sprint(len(list))},
	)
	p.Devices(list)
	return nil
}
