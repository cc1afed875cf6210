package ui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muurk/freeathome/internal/devices"
)

// DeviceColumns are the columns of the device table
var DeviceColumns = []string{"Lookup key", "Name", "Category", "Type", "State"}

// FormatState renders a device object's state for humans
func FormatState(d devices.Device) string {
	raw := d.State()
	if raw == "" {
		return "unknown"
	}

	switch dev := d.(type) {
	case *devices.Switch:
		return onOff(dev.IsOn())
	case *devices.BinarySensor:
		return onOff(dev.IsOn())
	case *devices.Cover:
		pos, err := dev.Position()
		if err != nil {
			return raw
		}
		s := fmt.Sprintf("%d%% closed", pos)
		switch {
		case dev.IsOpening():
			s += ", opening"
		case dev.IsClosing():
			s += ", closing"
		}
		return s
	case *devices.Scene:
		return "-"
	default:
		return raw
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// StyledState is FormatState with color
func StyledState(d devices.Device) string {
	s := FormatState(d)
	switch dev := d.(type) {
	case *devices.Switch:
		if dev.IsOn() {
			return StateOnStyle.Render(s)
		}
		return StateOffStyle.Render(s)
	case *devices.BinarySensor:
		if dev.IsOn() {
			return StateOnStyle.Render(s)
		}
		return StateOffStyle.Render(s)
	case *devices.Cover:
		if dev.IsOpening() || dev.IsClosing() {
			return StateMovingStyle.Render(s)
		}
	}
	return s
}

// DeviceRow returns the plain table cells for a device object
func DeviceRow(d devices.Device) []string {
	return []string{d.LookupKey(), d.Name(), string(d.Category()), d.Type(), FormatState(d)}
}

// SortDevices orders device objects by category, then lookup key
func SortDevices(list []devices.Device) []devices.Device {
	sorted := append([]devices.Device(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Category() != sorted[j].Category() {
			return sorted[i].Category() < sorted[j].Category()
		}
		return sorted[i].LookupKey() < sorted[j].LookupKey()
	})
	return sorted
}

// RenderDeviceTable renders device objects as a bordered table
func RenderDeviceTable(list []devices.Device, width int) string {
	if len(list) == 0 {
		return TableMutedCellStyle.Render("No devices")
	}

	sorted := SortDevices(list)
	rows := make([][]string, 0, len(sorted))
	for _, d := range sorted {
		rows = append(rows, DeviceRow(d))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers(DeviceColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			switch col {
			case 2:
				return TableCellStyle.Foreground(CategoryColor(sorted[row].Category()))
			case 4:
				return stateCellStyle(sorted[row])
			case 3:
				return TableMutedCellStyle
			}
			return TableCellStyle
		})
	if width > 0 {
		t = t.Width(clampWidth(width))
	}
	return t.String()
}

func stateCellStyle(d devices.Device) lipgloss.Style {
	switch dev := d.(type) {
	case *devices.Switch:
		if dev.IsOn() {
			return TableCellStyle.Foreground(SuccessColor).Bold(true)
		}
	case *devices.BinarySensor:
		if dev.IsOn() {
			return TableCellStyle.Foreground(SuccessColor).Bold(true)
		}
	case *devices.Cover:
		if dev.IsOpening() || dev.IsClosing() {
			return TableCellStyle.Foreground(WarningColor)
		}
	}
	return TableCellStyle
}
