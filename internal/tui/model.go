package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"modbus_console/internal/control"
	"modbus_console/internal/models"
	"modbus_console/internal/presentation"
	"modbus_console/internal/view"
)

// Controller carries operator input back to the console core.
type Controller interface {
	Activate(ctx context.Context, id string) error
	Control(ctx context.Context, a control.Action) error
}

// callTimeout bounds how long a key press waits for the core.
const callTimeout = 2 * time.Second

// Limits bounds writable registers.
type Limits interface {
	Control(deviceID string, k models.RegisterKey) (presentation.ControlSpec, bool)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	tabStyle     = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))
	activeTab    = tabStyle.
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("12"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// Model is the bubbletea model. It keeps a private view.Model fed by Bridge messages.
type Model struct {
	state  *view.Model
	ctl    Controller
	limits Limits

	cursor   int
	width    int
	status   string
	quitting bool
}

func NewModel(labels view.Labeler, limits Limits, ctl Controller) *Model {
	return &Model{
		state:  view.NewModel(labels),
		ctl:    ctl,
		limits: limits,
		width:  80,
	}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case deviceCreatedMsg:
		m.state.CreateDevice(msg.info, msg.before)
	case activeMsg:
		if msg.id != m.state.Active() {
			m.cursor = 0
		}
		m.state.SetActive(msg.id)
	case commitMsg:
		m.state.Commit(msg.device, msg.changes)
	case pendingMsg:
		m.state.SetPending(msg.device, msg.key, msg.pending)
	case channelMsg:
		m.state.SetChannelState(msg.channel, msg.state)
	case systemMsg:
		m.state.SetSystemStatus(msg.status)
	case errMsg:
		m.status = msg.err.Error()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "left", "h":
		return m, m.switchTab(-1)
	case "right", "l", "tab":
		return m, m.switchTab(1)
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if dev, ok := m.activeDevice(); ok && m.cursor < len(dev.Registers)-1 {
			m.cursor++
		}
	case " ", "enter":
		return m, m.toggle()
	case "+", "=":
		return m, m.step(1)
	case "-", "_":
		return m, m.step(-1)
	}
	return m, nil
}

func (m *Model) activeDevice() (view.DeviceView, bool) {
	return m.state.Device(m.state.Active())
}

func (m *Model) selected() (view.DeviceView, view.RegisterView, bool) {
	dev, ok := m.activeDevice()
	if !ok || m.cursor >= len(dev.Registers) {
		return dev, view.RegisterView{}, false
	}
	return dev, dev.Registers[m.cursor], true
}

func (m *Model) switchTab(delta int) tea.Cmd {
	order := m.state.Order()
	if len(order) == 0 || m.ctl == nil {
		return nil
	}
	pos := 0
	for i, id := range order {
		if id == m.state.Active() {
			pos = i
		}
	}
	next := order[(pos+delta+len(order))%len(order)]
	return m.call(func(ctx context.Context) error { return m.ctl.Activate(ctx, next) })
}

func (m *Model) toggle() tea.Cmd {
	dev, reg, ok := m.selected()
	if !ok || reg.Key.Kind != models.Coil || m.ctl == nil {
		return nil
	}
	a := control.Action{DeviceID: dev.ID, Kind: reg.Key.Kind, Address: reg.Key.Address, Value: float64(1 - reg.Raw)}
	return m.call(func(ctx context.Context) error { return m.ctl.Control(ctx, a) })
}

func (m *Model) step(dir int64) tea.Cmd {
	dev, reg, ok := m.selected()
	if !ok || reg.Key.Kind != models.HoldingRegister || m.ctl == nil || m.limits == nil {
		return nil
	}
	spec, ok := m.limits.Control(dev.ID, reg.Key)
	if !ok {
		return nil
	}
	target := spec.Clamp(reg.Raw + dir*spec.Step)
	if target == reg.Raw {
		return nil
	}
	a := control.Action{DeviceID: dev.ID, Kind: reg.Key.Kind, Address: reg.Key.Address, Value: float64(target)}
	return m.call(func(ctx context.Context) error { return m.ctl.Control(ctx, a) })
}

// call runs fn off the update goroutine; a failure lands in the status line.
func (m *Model) call(fn func(ctx context.Context) error) tea.Cmd {
	m.status = ""
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m *Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	snap := m.state.Snapshot()

	var s strings.Builder
	s.WriteString(titleStyle.Render("MODBUS CONSOLE"))
	s.WriteString(" ")
	s.WriteString(m.renderChannels(snap.Channels))
	s.WriteString("\n")
	s.WriteString(renderSystem(snap.System))
	s.WriteString("\n\n")

	if len(snap.Devices) == 0 {
		s.WriteString(warningStyle.Render("Waiting for devices..."))
		s.WriteString("\n")
	} else {
		s.WriteString(renderTabs(snap))
		s.WriteString("\n")
		for _, dev := range snap.Devices {
			if dev.Active {
				s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(m.renderDevice(dev)))
				s.WriteString("\n")
			}
		}
	}

	if m.status != "" {
		s.WriteString(errorStyle.Render(m.status))
		s.WriteString("\n")
	}
	s.WriteString(headerStyle.Render("←/→ device  ↑/↓ select  space toggle  +/- adjust  q quit"))
	return s.String()
}

func (m *Model) renderChannels(channels map[string]string) string {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		state := channels[name]
		style := warningStyle
		if state == "open" {
			style = valueStyle
		} else if state == "circuit_open" || state == "disconnected" {
			style = errorStyle
		}
		parts = append(parts, fmt.Sprintf("%s %s", headerStyle.Render(name+":"), style.Render(state)))
	}
	return strings.Join(parts, headerStyle.Render(" | "))
}

func renderSystem(st models.SystemStatus) string {
	modbus := errorStyle.Render(presentation.LabelOff)
	if st.ModbusRunning {
		modbus = valueStyle.Render(presentation.LabelOn)
	}
	web := errorStyle.Render(presentation.LabelOff)
	if st.WebRunning {
		web = valueStyle.Render(presentation.LabelOn)
	}
	line := fmt.Sprintf("%s %s  %s %s", labelStyle.Render("Modbus:"), modbus, labelStyle.Render("Web:"), web)
	if st.Error != "" {
		line += "  " + errorStyle.Render(st.Error)
	}
	return line
}

func renderTabs(snap view.Snapshot) string {
	tabs := make([]string, 0, len(snap.Devices))
	for _, dev := range snap.Devices {
		title := strings.TrimSpace(dev.Icon + " " + dev.Name)
		if dev.Active {
			tabs = append(tabs, activeTab.Render(title))
		} else {
			tabs = append(tabs, tabStyle.Render(title))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderDevice(dev view.DeviceView) string {
	if len(dev.Registers) == 0 {
		return headerStyle.Render("No registers yet")
	}
	var s strings.Builder
	for i, r := range dev.Registers {
		cursor := "  "
		if i == m.cursor {
			cursor = labelStyle.Render("› ")
		}
		value := strings.TrimSpace(r.Display + " " + r.Unit)
		line := fmt.Sprintf("%s%-2s %-28s %s", cursor, r.Icon, r.Label, valueStyle.Render(value))
		if r.Key.Kind.Writable() {
			line += headerStyle.Render("  [" + r.Key.String() + "]")
		}
		if r.Pending {
			line += warningStyle.Render("  …")
		}
		s.WriteString(line)
		if i < len(dev.Registers)-1 {
			s.WriteString("\n")
		}
	}
	return s.String()
}

// Run starts the program and the bridge pump. It returns when the operator quits or ctx ends.
func Run(ctx context.Context, model *Model, bridge *Bridge, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)...)
	go func() { _ = bridge.Run(ctx, p) }()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
