package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Param is one key/value line of a Header. Params render in order.
type Param struct {
	Key   string
	Value string
}

// Header is the banner printed above command output: the upper-cased
// title, the command line that produced it, then a rule and the params.
type Header struct {
	Title   string
	Command string
	Params  []Param
	Width   int
}

func NewHeader(title, command string, params ...Param) *Header {
	return &Header{Title: title, Command: command, Params: params, Width: GetTerminalWidth()}
}

// SetWidth overrides the terminal width.
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

func (h *Header) Render() string {
	width := max(h.Width, MinTerminalWidth)

	rows := []string{
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command),
	}
	if len(h.Params) > 0 {
		rows = append(rows, fg(PrimaryColor).Render(strings.Repeat("─", width-6)))
		for _, p := range h.Params {
			rows = append(rows, HeaderParamKeyStyle.Render(p.Key+":")+" "+HeaderParamValueStyle.Render(p.Value))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (h *Header) String() string {
	return h.Render()
}
