package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/freeathome/internal/discovery"
)

// ScanFunc looks for SysAPs on the network
type ScanFunc func(ctx context.Context) ([]*discovery.Hub, error)

type scanDoneMsg struct {
	hubs []*discovery.Hub
	err  error
}

// pickerKeyMap defines key bindings for the hub list
type pickerKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Rescan key.Binding
	Manual key.Binding
	Quit   key.Binding
}

func (k pickerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Rescan, k.Manual, k.Quit}
}

func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.Select}, {k.Rescan, k.Manual, k.Quit}}
}

// manualKeyMap defines key bindings for manual address entry
type manualKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

func (k manualKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Cancel}
}

func (k manualKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Confirm, k.Cancel}}
}

// hubItem wraps a Hub for bubbles/list
type hubItem struct {
	hub    *discovery.Hub
	manual bool
}

func (h hubItem) FilterValue() string {
	return h.hub.Serial + " " + h.hub.IP + " " + h.hub.Hostname
}

func (h hubItem) Title() string {
	if h.manual {
		return "Manual: " + h.hub.IP
	}
	if h.hub.Name != "" {
		return h.hub.Name
	}
	return h.hub.Hostname
}

func (h hubItem) Description() string {
	parts := []string{fmt.Sprintf("%s:%d", h.hub.IP, h.hub.Port)}
	if h.hub.Serial != "" {
		parts = append(parts, h.hub.Serial)
	}
	if h.hub.Hostname != "" && !h.manual {
		parts = append(parts, h.hub.Hostname)
	}
	return strings.Join(parts, " • ")
}

// hubDelegate renders a hub as a two-line entry
type hubDelegate struct{}

func (hubDelegate) Height() int                               { return 2 }
func (hubDelegate) Spacing() int                              { return 1 }
func (hubDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (hubDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	h, ok := item.(hubItem)
	if !ok {
		return
	}
	title := "  " + h.Title()
	if index == m.Index() {
		title = PickerSelectedStyle.Render("→ " + h.Title())
	}
	fmt.Fprintf(w, "%s\n    %s", title, TableMutedCellStyle.Render(h.Description()))
}

// PickerModel lets the user choose a SysAP from an mDNS scan or enter an
// address by hand.
type PickerModel struct {
	ctx     context.Context
	scan    ScanFunc
	timeout time.Duration

	scanning  bool
	scanStart time.Time
	hubs      list.Model
	err       error

	manual bool
	input  textinput.Model

	spinner    spinner.Model
	progress   progress.Model
	help       help.Model
	keys       pickerKeyMap
	manualKeys manualKeyMap

	chosen *discovery.Hub
	width  int
	height int
}

// NewPickerModel creates a picker that scans with scan. timeout only
// drives the progress bar; scan enforces its own deadline.
func NewPickerModel(ctx context.Context, scan ScanFunc, timeout time.Duration) PickerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	input := textinput.New()
	input.Placeholder = "192.168.1.10"
	input.CharLimit = 253
	input.Width = 30

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	hubs := list.New(nil, hubDelegate{}, MinTerminalWidth, 14)
	hubs.Title = "System Access Points"
	hubs.SetShowStatusBar(false)
	hubs.SetFilteringEnabled(false)
	hubs.SetShowHelp(false)
	hubs.Styles.Title = HeaderTitleStyle

	if timeout <= 0 {
		timeout = discovery.DefaultScanTimeout
	}

	return PickerModel{
		ctx:       ctx,
		scan:      scan,
		timeout:   timeout,
		scanning:  true,
		scanStart: time.Now(),
		hubs:      hubs,
		input:     input,
		spinner:   s,
		progress:  bar,
		help:      help.New(),
		keys: pickerKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
			Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
			Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
			Manual: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "enter address")),
			Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		manualKeys: manualKeyMap{
			Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
			Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		},
	}
}

// Init starts the first scan
func (m PickerModel) Init() tea.Cmd {
	return tea.Batch(m.scanCmd(), m.spinner.Tick)
}

func (m PickerModel) scanCmd() tea.Cmd {
	ctx, scan := m.ctx, m.scan
	return func() tea.Msg {
		hubs, err := scan(ctx)
		return scanDoneMsg{hubs: hubs, err: err}
	}
}

func (m *PickerModel) startScan() tea.Cmd {
	m.scanning = true
	m.scanStart = time.Now()
	m.err = nil
	return m.scanCmd()
}

// Update handles messages and updates the model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.hubs.SetSize(clampWidth(msg.Width)-4, max(msg.Height-8, 4))
		return m, nil

	case scanDoneMsg:
		m.scanning = false
		m.err = msg.err
		items := make([]list.Item, 0, len(msg.hubs))
		for _, h := range msg.hubs {
			items = append(items, hubItem{hub: h})
		}
		cmd := m.hubs.SetItems(items)
		return m, cmd

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.manual {
			return m.updateManual(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m PickerModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Select):
		if item, ok := m.hubs.SelectedItem().(hubItem); ok {
			m.chosen = item.hub
			return m, tea.Quit
		}
		return m, nil

	case key.Matches(msg, m.keys.Rescan):
		if m.scanning {
			return m, nil
		}
		m.hubs.SetItems(nil)
		cmd := tea.Batch(m.startScan(), m.spinner.Tick)
		return m, cmd

	case key.Matches(msg, m.keys.Manual):
		m.manual = true
		m.input.SetValue("")
		cmd := m.input.Focus()
		return m, cmd
	}

	var cmd tea.Cmd
	m.hubs, cmd = m.hubs.Update(msg)
	return m, cmd
}

func (m PickerModel) updateManual(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.manualKeys.Cancel), msg.String() == "ctrl+c":
		m.manual = false
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.manualKeys.Confirm):
		host := strings.TrimSpace(m.input.Value())
		if host == "" {
			return m, nil
		}
		hub := &discovery.Hub{IP: host, Hostname: host, Port: discovery.DefaultPort, DiscoveredAt: time.Now()}
		items := append([]list.Item{hubItem{hub: hub, manual: true}}, m.hubs.Items()...)
		cmd := m.hubs.SetItems(items)
		m.hubs.Select(0)
		m.manual = false
		m.input.Blur()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Chosen returns the selected hub, or nil if the user quit
func (m PickerModel) Chosen() *discovery.Hub {
	return m.chosen
}

// View renders the picker
func (m PickerModel) View() string {
	var b strings.Builder
	b.WriteString("\n")

	var helpView string
	switch {
	case m.manual:
		b.WriteString(HeaderTitleStyle.Render("Enter SysAP address"))
		b.WriteString("\n\n  Address: ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		helpView = m.help.View(m.manualKeys)

	case m.scanning:
		elapsed := time.Since(m.scanStart)
		ratio := float64(elapsed) / float64(m.timeout)
		if ratio > 1 {
			ratio = 1
		}
		b.WriteString(HeaderTitleStyle.Render(m.spinner.View() + " Searching for SysAPs"))
		b.WriteString("\n\n  ")
		b.WriteString(m.progress.ViewAs(ratio))
		b.WriteString("\n")
		helpView = m.help.View(m.keys)

	case m.err != nil:
		b.WriteString(ErrorTitleStyle.Render(fmt.Sprintf("  %s Scan failed: %v", FailureMarker, m.err)))
		b.WriteString("\n")
		b.WriteString(scanTroubleshooting())
		helpView = m.help.View(m.keys)

	case len(m.hubs.Items()) == 0:
		b.WriteString(WarningTitleStyle.Render("  " + WarningMarker + " No SysAP found"))
		b.WriteString("\n")
		b.WriteString(scanTroubleshooting())
		helpView = m.help.View(m.keys)

	default:
		b.WriteString(m.hubs.View())
		helpView = m.help.View(m.keys)
	}

	b.WriteString("\n\n")
	b.WriteString(StatusBarStyle.Render(helpView))
	return b.String()
}

func scanTroubleshooting() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(TroubleshootingTitleStyle.Render("  Troubleshooting:"))
	b.WriteString("\n")
	for _, tip := range []string{
		"Make sure this machine is on the same network as the SysAP",
		"mDNS does not cross VLANs or most VPNs",
		"Press 'm' to enter the address by hand",
	} {
		b.WriteString(TroubleshootingItemStyle.Render("    • " + tip))
		b.WriteString("\n")
	}
	return b.String()
}

// PickHub runs the picker full screen and returns the chosen hub, or nil
// if the user quit without choosing.
func PickHub(ctx context.Context, scan ScanFunc, timeout time.Duration) (*discovery.Hub, error) {
	model := NewPickerModel(ctx, scan, timeout)
	final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, fmt.Errorf("hub picker failed: %w", err)
	}
	pm, ok := final.(PickerModel)
	if !ok {
		return nil, nil
	}
	return pm.Chosen(), nil
}
