package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/ui"
)

func init() {
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(coverCmd)
	rootCmd.AddCommand(sceneCmd)
}

var switchCmd = &cobra.Command{
	Use:       "switch <on|off> <lookup-key>",
	Short:     "Turn a switch actuator on or off",
	Example:   `  fah switch on ABB700C12345/ch0003`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := strings.ToLower(args[0])
		if action != "on" && action != "off" {
			return fmt.Errorf("unknown switch action %q (want on or off)", args[0])
		}
		return runCommand(cmd, args[1], devices.CategorySwitch, action)
	},
}

var coverCmd = &cobra.Command{
	Use:   "cover <open|close|stop|position> <lookup-key> [percent]",
	Short: "Move a shutter, blind or awning",
	Long: `Move a cover. Positions are the closed percentage reported by the
SysAP: 0 is fully open, 100 fully closed.`,
	Example: `  fah cover close ABB200000002/ch0000
  fah cover position ABB200000002/ch0000 40`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := coverCommand(args)
		if err != nil {
			return err
		}
		return runCommand(cmd, args[1], devices.CategoryCover, command)
	},
}

// coverCommand turns cover arguments into a devices.Execute command
func coverCommand(args []string) (string, error) {
	action := strings.ToLower(args[0])
	switch action {
	case "open", "close", "stop":
		if len(args) != 2 {
			return "", fmt.Errorf("cover %s takes no percentage", action)
		}
		return action, nil
	case "position":
		if len(args) != 3 {
			return "", fmt.Errorf("cover position needs a percentage")
		}
		pos, err := strconv.Atoi(args[2])
		if err != nil || pos < 0 || pos > 100 {
			return "", fmt.Errorf("invalid percentage %q (want 0-100)", args[2])
		}
		return strconv.Itoa(pos), nil
	default:
		return "", fmt.Errorf("unknown cover action %q (want open, close, stop or position)", args[0])
	}
}

var sceneCmd = &cobra.Command{
	Use:     "scene <lookup-key>",
	Short:   "Activate a scene",
	Example: `  fah scene FFFF48010001/ch0000`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, args[0], devices.CategoryScene, "activate")
	},
}

func runCommand(cmd *cobra.Command, lookupKey string, category devices.Category, command string) error {
	ctx := cmd.Context()

	conn, err := connectOnce(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	d, ok := conn.engine.Device(lookupKey)
	if !ok {
		return fmt.Errorf("no device object %q (see 'fah devices')", lookupKey)
	}
	if d.Category() != category {
		return fmt.Errorf("%s is a %s, not a %s", lookupKey, d.Category(), category)
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	if err := devices.Execute(ctx, d, command); err != nil {
		p.Failure("Command failed", err,
			"Check that the user may operate this device in the free@home app",
			"Run with --log-level debug to see the XMPP exchange",
		)
		return err
	}

	p.Success(fmt.Sprintf("%s %s", strings.ToUpper(command), d.Name()),
		ui.Param{Key: "Device", Value: lookupKey},
		ui.Param{Key: "SysAP", Value: conn.target.host},
	)
	return nil
}
