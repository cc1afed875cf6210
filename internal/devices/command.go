package devices

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedCommand is returned by Execute for commands a device
// object does not understand.
var ErrUnsupportedCommand = errors.New("devices: unsupported command")

// Commands lists the textual commands a device object accepts. Sensors
// accept none.
func Commands(d Device) []string {
	switch d.(type) {
	case *Switch:
		return []string{"ON", "OFF"}
	case *Cover:
		return []string{"OPEN", "CLOSE", "STOP", "0-100"}
	case *Scene:
		return []string{"ACTIVATE"}
	default:
		return nil
	}
}

// Execute runs a textual command against a device object. Switches take
// ON/OFF (or 1/0, true/false), covers OPEN/CLOSE/STOP or a closed
// percentage, scenes ACTIVATE (or ON/1). Matching is case-insensitive.
func Execute(ctx context.Context, d Device, command string) error {
	cmd := strings.ToUpper(strings.TrimSpace(command))

	switch dev := d.(type) {
	case *Switch:
		switch cmd {
		case "ON", "1", "TRUE":
			return dev.TurnOn(ctx)
		case "OFF", "0", "FALSE":
			return dev.TurnOff(ctx)
		}

	case *Cover:
		switch cmd {
		case "OPEN", "UP":
			return dev.Open(ctx)
		case "CLOSE", "DOWN":
			return dev.Close(ctx)
		case "STOP":
			return dev.Stop(ctx)
		}
		if pos, err := strconv.Atoi(cmd); err == nil {
			return dev.SetPosition(ctx, pos)
		}

	case *Scene:
		switch cmd {
		case "ACTIVATE", "ON", "1":
			return dev.Activate(ctx)
		}
	}

	return fmt.Errorf("%w %q for %s %s", ErrUnsupportedCommand, command, d.Kind(), d.LookupKey())
}
