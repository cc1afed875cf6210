package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType selects the banner of a Result.
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

type banner struct {
	label  string
	marker string
	title  lipgloss.Style
	border lipgloss.Color
}

var banners = map[ResultType]banner{
	ResultSuccess: {"SUCCESS", SuccessMarker, SuccessTitleStyle, SuccessColor},
	ResultFailure: {"FAILED", FailureMarker, ErrorTitleStyle, ErrorColor},
	ResultWarning: {"WARNING", WarningMarker, WarningTitleStyle, WarningColor},
}

// Result is the boxed outcome printed after a one-shot command such as
// "fah set" or "fah scan --save".
type Result struct {
	Type            ResultType
	Title           string
	Details         []Param
	Error           error
	Troubleshooting []string
	Width           int
}

func newResult(t ResultType, title string) *Result {
	return &Result{Type: t, Title: title, Width: GetTerminalWidth()}
}

func NewSuccessResult(title string, details ...Param) *Result {
	r := newResult(ResultSuccess, title)
	r.Details = details
	return r
}

func NewFailureResult(title string, err error, troubleshooting ...string) *Result {
	r := newResult(ResultFailure, title)
	r.Error = err
	r.Troubleshooting = troubleshooting
	return r
}

func NewWarningResult(title string, details ...Param) *Result {
	r := newResult(ResultWarning, title)
	r.Details = details
	return r
}

// SetWidth overrides the terminal width.
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// Render draws the result in a double border coloured by its type.
func (r *Result) Render() string {
	width := max(r.Width, MinTerminalWidth)
	b, ok := banners[r.Type]
	if !ok {
		b = banners[ResultSuccess]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\n\n", b.title.Render(fmt.Sprintf("   %s  %s  ─  %s", b.marker, b.label, r.Title)))
	for _, d := range r.Details {
		sb.WriteString(ResultKeyStyle.Render("   "+d.Key+":") + " " + ResultValueStyle.Render(d.Value) + "\n")
	}
	if r.Error != nil {
		sb.WriteString(ErrorMessageStyle.Render("   Error: "+r.Error.Error()) + "\n\n")
	}
	if len(r.Troubleshooting) > 0 {
		sb.WriteString(tipsBox(r.Troubleshooting, width) + "\n\n")
	}
	if len(r.Details) > 0 {
		sb.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(b.border).
		Width(width-2).
		Padding(0, 2).
		Render(strings.TrimSuffix(sb.String(), "\n"))
}

// tipsBox lists troubleshooting hints in a muted rounded box.
func tipsBox(tips []string, width int) string {
	lines := make([]string, 0, len(tips)+2)
	lines = append(lines, TroubleshootingTitleStyle.Render("Troubleshooting:"), "")
	for _, tip := range tips {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(max(width-12, 40)).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

func (r *Result) String() string {
	return r.Render()
}
