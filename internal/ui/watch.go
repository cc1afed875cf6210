package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/engine"
)

const (
	watchCommandTimeout = 10 * time.Second
	watchEventBuffer    = 256
)

// DeviceSource is the part of the engine the watch view reads from
type DeviceSource interface {
	Devices() []devices.Device
	Device(lookupKey string) (devices.Device, bool)
	Subscribe(l engine.Listener) (unsubscribe func())
}

// StatusFunc reports the connection status line and whether the SysAP
// session is up.
type StatusFunc func() (label string, ready bool)

// WatchOptions configures the live view
type WatchOptions struct {
	Source DeviceSource
	Status StatusFunc
	Title  string
}

type watchKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Open   key.Binding
	Close  key.Binding
	Stop   key.Binding
	Filter key.Binding
	Quit   key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Open, k.Close, k.Stop, k.Filter, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Filter},
		{k.Toggle, k.Open, k.Close, k.Stop},
		{k.Quit},
	}
}

func newWatchKeyMap() watchKeyMap {
	return watchKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "toggle/activate")),
		Open:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open")),
		Close:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "close")),
		Stop:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Filter: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "category")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// engineEventMsg carries an engine event into the update loop
type engineEventMsg engine.Event

// commandResultMsg reports the outcome of a device command
type commandResultMsg struct {
	lookupKey string
	command   string
	err       error
}

// WatchModel is the live device dashboard
type WatchModel struct {
	opts   WatchOptions
	events <-chan engine.Event

	table   table.Model
	spinner spinner.Model
	help    help.Model
	keys    watchKeyMap

	// category filter; empty shows everything
	filter     devices.Category
	keysInView []string

	lastEvent  string
	lastChange map[string]time.Time
	message    string
	width      int
	height     int
}

// NewWatchModel creates the dashboard. events is fed by the engine; see
// Subscribe.
func NewWatchModel(opts WatchOptions, events <-chan engine.Event) WatchModel {
	width, height := GetTerminalSize()

	t := table.New(
		table.WithColumns(watchColumns(width)),
		table.WithFocused(true),
		table.WithHeight(tableHeight(height)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(PrimaryColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(TextColor).
		Background(PrimaryColor).
		Bold(false)
	t.SetStyles(styles)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	if opts.Title == "" {
		opts.Title = "free@home"
	}

	m := WatchModel{
		opts:       opts,
		events:     events,
		table:      t,
		spinner:    s,
		help:       help.New(),
		keys:       newWatchKeyMap(),
		lastChange: make(map[string]time.Time),
		width:      width,
		height:     height,
	}
	m.refreshRows()
	return m
}

// Subscribe connects an engine to a buffered event channel for the
// dashboard. Events are dropped when the dashboard falls behind.
func Subscribe(src DeviceSource) (<-chan engine.Event, func()) {
	ch := make(chan engine.Event, watchEventBuffer)
	unsubscribe := src.Subscribe(func(ev engine.Event) {
		select {
		case ch <- ev:
		default:
		}
	})
	return ch, unsubscribe
}

// Watch runs the dashboard until the user quits or ctx is cancelled
func Watch(ctx context.Context, opts WatchOptions) error {
	events, unsubscribe := Subscribe(opts.Source)
	defer unsubscribe()

	p := tea.NewProgram(NewWatchModel(opts, events), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func watchColumns(width int) []table.Column {
	name := width - 22 - 14 - 18 - 10
	if name < 12 {
		name = 12
	}
	return []table.Column{
		{Title: "Lookup key", Width: 22},
		{Title: "Name", Width: name},
		{Title: "Category", Width: 14},
		{Title: "State", Width: 18},
	}
}

func tableHeight(height int) int {
	h := height - 8
	if h < 5 {
		return 5
	}
	return h
}

func waitForEvent(events <-chan engine.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return engineEventMsg(ev)
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = clampWidth(msg.Width), msg.Height
		m.table.SetColumns(watchColumns(m.width))
		m.table.SetHeight(tableHeight(m.height))
		m.help.Width = m.width
		return m, nil

	case engineEventMsg:
		m.applyEvent(engine.Event(msg))
		return m, waitForEvent(m.events)

	case commandResultMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("%s %s failed: %v", msg.lookupKey, msg.command, msg.err)
		} else {
			m.message = fmt.Sprintf("%s %s sent", msg.lookupKey, msg.command)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Filter):
			m.filter = nextCategory(m.filter)
			m.refreshRows()
			m.table.SetCursor(0)
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			cmd := m.commandSelected(toggleCommand)
			return m, cmd
		case key.Matches(msg, m.keys.Open):
			cmd := m.commandSelected(fixedCommand("OPEN"))
			return m, cmd
		case key.Matches(msg, m.keys.Close):
			cmd := m.commandSelected(fixedCommand("CLOSE"))
			return m, cmd
		case key.Matches(msg, m.keys.Stop):
			cmd := m.commandSelected(fixedCommand("STOP"))
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *WatchModel) applyEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventStateChanged:
		if ev.Device != nil {
			m.lastChange[ev.Device.LookupKey()] = time.Now()
			m.lastEvent = fmt.Sprintf("%s %s: %s → %s", ev.Device.LookupKey(), ev.Datapoint, ev.Old, ev.New)
		}
	case engine.EventRebuilt:
		m.lastChange = make(map[string]time.Time)
		m.lastEvent = "device set rebuilt"
	}
	m.refreshRows()
}

func (m *WatchModel) refreshRows() {
	var list []devices.Device
	for _, d := range SortDevices(m.opts.Source.Devices()) {
		if m.filter == "" || d.Category() == m.filter {
			list = append(list, d)
		}
	}

	rows := make([]table.Row, 0, len(list))
	keys := make([]string, 0, len(list))
	for _, d := range list {
		state := FormatState(d)
		if _, ok := m.lastChange[d.LookupKey()]; ok {
			state += " *"
		}
		rows = append(rows, table.Row{d.LookupKey(), d.Name(), string(d.Category()), state})
		keys = append(keys, d.LookupKey())
	}
	m.keysInView = keys
	m.table.SetRows(rows)
}

// Selected returns the device object under the cursor
func (m WatchModel) Selected() (devices.Device, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.keysInView) {
		return nil, false
	}
	return m.opts.Source.Device(m.keysInView[i])
}

func toggleCommand(d devices.Device) string {
	switch dev := d.(type) {
	case *devices.Switch:
		if dev.IsOn() {
			return "OFF"
		}
		return "ON"
	case *devices.Scene:
		return "ACTIVATE"
	}
	return ""
}

func fixedCommand(command string) func(devices.Device) string {
	return func(devices.Device) string { return command }
}

func (m *WatchModel) commandSelected(pick func(devices.Device) string) tea.Cmd {
	d, ok := m.Selected()
	if !ok {
		return nil
	}
	command := pick(d)
	if command == "" {
		m.message = fmt.Sprintf("%s accepts no toggle", d.LookupKey())
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), watchCommandTimeout)
		defer cancel()
		return commandResultMsg{
			lookupKey: d.LookupKey(),
			command:   command,
			err:       devices.Execute(ctx, d, command),
		}
	}
}

func nextCategory(c devices.Category) devices.Category {
	if c == "" {
		return devices.Categories[0]
	}
	for i, cat := range devices.Categories {
		if cat == c && i+1 < len(devices.Categories) {
			return devices.Categories[i+1]
		}
	}
	return ""
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	title := HeaderTitleStyle.Render(strings.ToUpper(m.opts.Title))
	filter := "all"
	if m.filter != "" {
		filter = string(m.filter)
	}
	b.WriteString(title + HeaderCommandStyle.Render("showing "+filter))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if d, ok := m.Selected(); ok {
		b.WriteString(StatusBarStyle.Render(d.Name()+" ("+d.Type()+"): ") + StyledState(d))
		b.WriteString("\n")
	}
	if m.lastEvent != "" {
		b.WriteString(StatusBarStyle.Render("last: " + m.lastEvent))
		b.WriteString("\n")
	}
	if m.message != "" {
		b.WriteString(StatusBarStyle.Render(m.message))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m WatchModel) statusLine() string {
	if m.opts.Status == nil {
		return ""
	}
	label, ready := m.opts.Status()
	if ready {
		return StatusBarStyle.Render(lipgloss.NewStyle().Foreground(SuccessColor).Render("●") + " " + label)
	}
	return StatusBarStyle.Render(m.spinner.View() + " " + label)
}
