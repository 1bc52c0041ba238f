// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
	"github.com/Thermoquad/dimmerswitch/pkg/radiolink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	controlTickInterval = 100 * time.Millisecond
	maxLogEntries       = 100
	visibleLogEntries   = 10
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// remoteControl is the part of *dimmer.Remote the TUI drives
type remoteControl interface {
	Press(id dimmer.ButtonID)
	Release(id dimmer.ButtonID)
	SetJoined(joined bool)
	Snapshot() dimmer.Snapshot
}

// linkControl is the part of the link manager the TUI shows
type linkControl interface {
	Stats() (radiolink.Statistics, bool)
	Ping() error
}

// Key bindings
type controlKeyMap struct {
	Buttons [dimmer.NumButtons]key.Binding
	Release key.Binding
	Join    key.Binding
	Ping    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k controlKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Buttons[0], k.Buttons[1], k.Buttons[2], k.Buttons[3], k.Help, k.Quit}
}

func (k controlKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Buttons[0], k.Buttons[1], k.Buttons[2], k.Buttons[3]},
		{k.Release, k.Join, k.Ping},
		{k.Help, k.Quit},
	}
}

func defaultControlKeys() controlKeyMap {
	return controlKeyMap{
		Buttons: [dimmer.NumButtons]key.Binding{
			key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "on")),
			key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "off")),
			key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "level up")),
			key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "level down")),
		},
		Release: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "release all")),
		Join:    key.NewBinding(key.WithKeys("j"), key.WithHelp("j", "join/leave")),
		Ping:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "ping radio")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	remote   remoteControl
	link     linkControl // nil in loopback mode
	connInfo string

	keys controlKeyMap
	help help.Model

	// What the user is holding. The remote may be ignoring it.
	held   [dimmer.NumButtons]bool
	heldAt [dimmer.NumButtons]time.Time
	joined bool

	snapshot dimmer.Snapshot
	now      time.Time

	// Counters
	sent      uint64
	dropped   uint64
	ignored   uint64
	failed    uint64
	sessions  uint64
	lastEvent *remoteEventMsg

	eventLog []logEntry

	linkStats    radiolink.Statistics
	hasLinkStats bool

	width          int
	height         int
	quitting       bool
	connectionLost bool
	fatal          error
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type remoteEventKind int

const (
	eventSent remoteEventKind = iota
	eventDropped
	edgeIgnored
	transmitCompleted
	sessionFinished
)

// remoteEventMsg is one observer notification
type remoteEventMsg struct {
	kind    remoteEventKind
	at      time.Time
	event   dimmer.Event       // sent, dropped
	payload dimmer.WirePayload // sent
	edge    dimmer.Edge        // ignored
	reason  dimmer.IgnoreReason
	err     error           // completed
	button  dimmer.ButtonID // finished
}

type controlBatchMsg struct {
	events []remoteEventMsg
}

type remoteStoppedMsg struct {
	err error
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(remote remoteControl, connInfo string, link linkControl) controlModel {
	return controlModel{
		remote:   remote,
		link:     link,
		connInfo: connInfo,
		keys:     defaultControlKeys(),
		help:     help.New(),
		snapshot: remote.Snapshot(),
		now:      time.Now(),
		eventLog: make([]logEntry, 0),
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(controlTickInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case controlTickMsg:
		m.now = time.Time(msg)
		m.refresh()
		return m, controlTickCmd()

	case controlBatchMsg:
		for _, ev := range msg.events {
			m.processRemoteEvent(ev)
		}
		m.refresh()

	case remoteStoppedMsg:
		m.fatal = msg.err
		m.addLogEntry(fmt.Sprintf("Remote stopped: %v", msg.err), true)

	case connectionLostMsg:
		m.connectionLost = true
		m.joined = false
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Release):
		for i := range m.held {
			if m.held[i] {
				m.toggleButton(dimmer.ButtonID(i))
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Join):
		m.joined = !m.joined
		m.remote.SetJoined(m.joined)
		if m.joined {
			m.addLogEntry("Network joined", false)
		} else {
			m.addLogEntry("Network left", false)
		}
		return m, nil

	case key.Matches(msg, m.keys.Ping):
		if m.link == nil {
			m.addLogEntry("No radio link in loopback mode", true)
			return m, nil
		}
		if err := m.link.Ping(); err != nil {
			m.addLogEntry(fmt.Sprintf("Ping failed: %v", err), true)
		} else {
			m.addLogEntry("Ping sent", false)
		}
		return m, nil
	}

	for i, b := range m.keys.Buttons {
		if key.Matches(msg, b) {
			m.toggleButton(dimmer.ButtonID(i))
			return m, nil
		}
	}
	return m, nil
}

// toggleButton presses id when it is up and releases it when it is held
func (m *controlModel) toggleButton(id dimmer.ButtonID) {
	if m.fatal != nil {
		m.addLogEntry("Remote stopped, input ignored", true)
		return
	}

	if m.held[id] {
		m.held[id] = false
		m.remote.Release(id)
		return
	}
	m.held[id] = true
	m.heldAt[id] = m.now
	m.remote.Press(id)
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	activeButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	heldButtonStyle := buttonStyle.
		Background(lipgloss.Color("11"))

	// Header
	s.WriteString(titleStyle.Render("DIMMERSWITCH CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s", connStatus)))
	s.WriteString("\n\n")

	if m.fatal != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("REMOTE STOPPED: %v", m.fatal)))
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderButtons(buttonStyle, activeButtonStyle, heldButtonStyle))
	s.WriteString("\n\n")
	s.WriteString(m.renderSession(statsLabelStyle, statsValueStyle, warningStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	if m.link != nil {
		s.WriteString(m.renderLinkBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
		s.WriteString("\n")
	}
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderButtons(buttonStyle, activeButtonStyle, heldButtonStyle lipgloss.Style) string {
	labels := [dimmer.NumButtons]string{"1 ON", "2 OFF", "3 UP", "4 DOWN"}

	rendered := make([]string, 0, dimmer.NumButtons*2)
	for i, label := range labels {
		id := dimmer.ButtonID(i)
		style := buttonStyle
		switch {
		case m.snapshot.Active && m.snapshot.Button == id:
			style = activeButtonStyle
		case m.held[i]:
			// held but ignored by the remote
			style = heldButtonStyle
		}
		rendered = append(rendered, style.Render(label), " ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m controlModel) renderSession(statsLabelStyle, statsValueStyle, warningStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Session:"), statsValueStyle.Render(m.snapshot.String())))
	if m.snapshot.Active && m.held[m.snapshot.Button] {
		held := m.now.Sub(m.heldAt[m.snapshot.Button])
		content.WriteString(fmt.Sprintf("  %s %s", statsLabelStyle.Render("Held:"),
			statsValueStyle.Render(fmt.Sprintf("%.1fs", held.Seconds()))))
	}
	content.WriteString("\n")

	buffer := statsValueStyle.Render("free")
	if m.snapshot.Busy {
		buffer = warningStyle.Render("in flight")
	}
	network := warningStyle.Render("not joined")
	if m.snapshot.Joined {
		network = statsValueStyle.Render("joined")
	}
	content.WriteString(fmt.Sprintf("%s %s  %s %s",
		statsLabelStyle.Render("Buffer:"), buffer,
		statsLabelStyle.Render("Network:"), network))

	if m.lastEvent != nil {
		content.WriteString(fmt.Sprintf("\n%s %s  %s",
			statsLabelStyle.Render("Last:"),
			statsValueStyle.Render(m.lastEvent.event.String()),
			m.lastEvent.payload))
	}

	return boxStyle.Width(m.boxWidth()).Render(content.String())
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	dropped := statsValueStyle.Render(fmt.Sprintf("%d", m.dropped))
	if m.dropped > 0 {
		dropped = errorStyle.Render(fmt.Sprintf("%d", m.dropped))
	}
	failed := statsValueStyle.Render(fmt.Sprintf("%d", m.failed))
	if m.failed > 0 {
		failed = errorStyle.Render(fmt.Sprintf("%d", m.failed))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", m.sent)),
		statsLabelStyle.Render("Dropped:"), dropped,
		statsLabelStyle.Render("Ignored:"), statsValueStyle.Render(fmt.Sprintf("%d", m.ignored)),
		statsLabelStyle.Render("Failed:"), failed,
		statsLabelStyle.Render("Sessions:"), statsValueStyle.Render(fmt.Sprintf("%d", m.sessions)),
	)

	return boxStyle.Width(m.boxWidth()).Render(content)
}

func (m controlModel) renderLinkBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	if !m.hasLinkStats {
		return boxStyle.Width(m.boxWidth()).Render(statsLabelStyle.Render("LINK") + " | not connected")
	}

	st := m.linkStats
	errs := statsValueStyle.Render("0")
	if st.Errors() > 0 {
		errs = errorStyle.Render(fmt.Sprintf("%d", st.Errors()))
	}

	content := fmt.Sprintf("%s | %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("LINK"),
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("TX Done:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TxDone)),
		statsLabelStyle.Render("Errors:"), errs,
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
	)

	return boxStyle.Width(m.boxWidth()).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
		return boxStyle.Width(m.boxWidth()).Render(s.String())
	}

	startIdx := len(m.eventLog) - visibleLogEntries
	if startIdx < 0 {
		startIdx = 0
	}
	for i := startIdx; i < len(m.eventLog); i++ {
		entry := m.eventLog[i]
		icon := "i"
		style := warningStyle
		if entry.isError {
			icon = "x"
			style = errorStyleLocal
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(m.boxWidth()).Render(s.String())
}

func (m controlModel) boxWidth() int {
	if m.width < 20 {
		return 16
	}
	return m.width - 4
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processRemoteEvent(ev remoteEventMsg) {
	switch ev.kind {
	case eventSent:
		m.sent++
		last := ev
		m.lastEvent = &last
		m.addLogEntryAt(ev.at, fmt.Sprintf("Sent %s  %s", ev.event, ev.payload), false)

	case eventDropped:
		m.dropped++
		m.addLogEntryAt(ev.at, fmt.Sprintf("Dropped %s (buffer busy)", ev.event), true)

	case edgeIgnored:
		m.ignored++
		m.addLogEntryAt(ev.at, fmt.Sprintf("Ignored %s: %s", ev.edge, ev.reason), false)

	case transmitCompleted:
		if ev.err != nil {
			m.failed++
			m.addLogEntryAt(ev.at, fmt.Sprintf("Transmission failed: %v", ev.err), true)
		}

	case sessionFinished:
		m.sessions++
		m.addLogEntryAt(ev.at, fmt.Sprintf("%s session finished", ev.button), false)
	}
}

// refresh pulls the state owned by the remote and the link
func (m *controlModel) refresh() {
	m.snapshot = m.remote.Snapshot()
	if m.link != nil {
		m.linkStats, m.hasLinkStats = m.link.Stats()
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.addLogEntryAt(time.Now(), message, isError)
}

func (m *controlModel) addLogEntryAt(at time.Time, message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: at,
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}
