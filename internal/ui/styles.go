package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/muurk/freeathome/internal/devices"
)

// Palette. Switches use the success green, covers the warning orange and
// scenes the primary purple.
var (
	PrimaryColor = lipgloss.Color("#7D56F4")
	SuccessColor = lipgloss.Color("#43BF6D")
	ErrorColor   = lipgloss.Color("#FF5555")
	WarningColor = lipgloss.Color("#FFA500")
	MutedColor   = lipgloss.Color("#626262")
	TextColor    = lipgloss.Color("#FFFFFF")
)

// Render widths are clamped to this range.
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 120

	fallbackHeight = 24
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	HeaderTitleStyle      = fg(TextColor).Bold(true).PaddingLeft(2)
	HeaderCommandStyle    = fg(MutedColor).PaddingLeft(2)
	HeaderParamKeyStyle   = fg(MutedColor).PaddingLeft(2)
	HeaderParamValueStyle = fg(TextColor)

	SuccessTitleStyle = fg(SuccessColor).Bold(true)
	ErrorTitleStyle   = fg(ErrorColor).Bold(true)
	WarningTitleStyle = fg(WarningColor).Bold(true)
	ErrorMessageStyle = fg(ErrorColor)
	ResultKeyStyle    = fg(MutedColor).Width(15)
	ResultValueStyle  = fg(TextColor)

	TroubleshootingTitleStyle = fg(MutedColor).Bold(true)
	TroubleshootingItemStyle  = fg(MutedColor)

	TableHeaderStyle    = fg(PrimaryColor).Bold(true).Padding(0, 1)
	TableCellStyle      = fg(TextColor).Padding(0, 1)
	TableMutedCellStyle = fg(MutedColor).Padding(0, 1)

	// Device state cells
	StateOnStyle     = fg(SuccessColor).Bold(true)
	StateOffStyle    = fg(MutedColor)
	StateMovingStyle = fg(WarningColor)

	StatusBarStyle      = fg(MutedColor).PaddingLeft(2)
	PickerSelectedStyle = fg(PrimaryColor).Bold(true)
)

const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	WarningMarker = "⚠"
)

// GetTerminalWidth is the clamped width of stdout.
func GetTerminalWidth() int {
	w, _ := GetTerminalSize()
	return w
}

// GetTerminalSize reports stdout's clamped width and its height, falling
// back to the minimum width and 24 rows when stdout is not a terminal.
func GetTerminalSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth, fallbackHeight
	}
	return clampWidth(w), h
}

func clampWidth(w int) int {
	return min(max(w, MinTerminalWidth), MaxContentWidth)
}

// IsTerminal reports whether stdout is interactive.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// CategoryColor picks the accent for a device category.
func CategoryColor(c devices.Category) lipgloss.Color {
	switch c {
	case devices.CategorySwitch:
		return SuccessColor
	case devices.CategoryCover:
		return WarningColor
	case devices.CategoryScene:
		return PrimaryColor
	}
	return MutedColor
}
