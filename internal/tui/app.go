// internal/tui/app.go
//
// Dashboard for the development loop. It uses bubbletea, which follows
// The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The dashboard consumes loop transitions from a channel and shows the
// per-task status alongside a rolling event log.

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Beg-in/gulp-begin/internal/devloop"
)

// maxLogLines caps the rolling event log.
const maxLogLines = 12

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))
	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
	logBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

// taskItem implements list.Item for one registered task.
type taskItem struct {
	name   string
	status string
}

func (i taskItem) Title() string       { return i.name }
func (i taskItem) Description() string { return i.status }
func (i taskItem) FilterValue() string { return i.name }

type eventMsg devloop.Event

type channelClosedMsg struct{}

// Model is the dashboard's bubbletea model.
type Model struct {
	tasks  list.Model
	events <-chan devloop.Event

	state    devloop.State
	log      []string
	width    int
	height   int
	quitting bool
}

// New builds a dashboard over the given task names, fed by events.
func New(taskNames []string, events <-chan devloop.Event) *Model {
	items := make([]list.Item, len(taskNames))
	for i, name := range taskNames {
		items[i] = taskItem{name: name, status: "idle"}
	}
	tasks := list.New(items, list.NewDefaultDelegate(), 0, 0)
	tasks.Title = "⬡ gulp-begin dev"
	tasks.SetShowStatusBar(false)
	tasks.SetFilteringEnabled(false)
	return &Model{
		tasks:  tasks,
		events: events,
		state:  devloop.StateIdle,
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, open := <-m.events
		if !open {
			return channelClosedMsg{}
		}
		return eventMsg(event)
	}
}

// Init is called once when the program starts.
func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

// Update is called when a message is received.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tasks.SetSize(max(0, msg.Width-6), max(0, msg.Height-maxLogLines-8))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case eventMsg:
		m.apply(devloop.Event(msg))
		if m.state == devloop.StateExited {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.waitForEvent()

	case channelClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.tasks, cmd = m.tasks.Update(msg)
	return m, cmd
}

func (m *Model) apply(event devloop.Event) {
	m.state = event.State
	if event.Task != "" {
		m.setTaskStatus(event.Task, statusFor(event))
	}
	if line := renderEvent(event); line != "" {
		m.log = append(m.log, line)
		if len(m.log) > maxLogLines {
			m.log = m.log[len(m.log)-maxLogLines:]
		}
	}
}

func statusFor(event devloop.Event) string {
	switch {
	case event.Err != nil:
		return "failed"
	case event.State == devloop.StateBuilding:
		return "building"
	default:
		return "ok"
	}
}

func (m *Model) setTaskStatus(name, status string) {
	for idx, item := range m.tasks.Items() {
		task, ok := item.(taskItem)
		if !ok || task.name != name {
			continue
		}
		task.status = status
		m.tasks.SetItem(idx, task)
		return
	}
}

func renderEvent(event devloop.Event) string {
	stamp := time.Now().Format("15:04:05")
	switch {
	case event.Err != nil:
		return stamp + " " + errStyle.Render(fmt.Sprintf("%s failed: %v", event.Task, event.Err))
	case event.State == devloop.StateBuilding && event.Path != "":
		return fmt.Sprintf("%s %s changed → %s", stamp, event.Path, event.Task)
	case event.State == devloop.StateBuilding:
		return fmt.Sprintf("%s building %s", stamp, event.Task)
	case event.State == devloop.StateRestarting:
		return fmt.Sprintf("%s %s changed, restarting server", stamp, event.Path)
	case event.State == devloop.StateExited:
		return fmt.Sprintf("%s loop ended", stamp)
	default:
		return ""
	}
}

// View renders the dashboard.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	header := headerStyle.Render("gulp-begin") + "  " +
		stateStyle.Render(m.state.String())

	logLines := m.log
	if len(logLines) == 0 {
		logLines = []string{stateStyle.Render("waiting for changes…")}
	}
	logBox := logBoxStyle.Width(max(20, m.width-4)).
		Render(strings.Join(logLines, "\n"))

	footer := footerStyle.Render("q: quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.tasks.View(),
		logBox,
		footer,
	)
}

// State exposes the last observed loop state, for tests.
func (m *Model) State() devloop.State {
	return m.state
}

// Log exposes the rolling event log, for tests.
func (m *Model) Log() []string {
	return append([]string{}, m.log...)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run drives the dashboard until the loop exits or the user quits.
func Run(taskNames []string, events <-chan devloop.Event) error {
	program := tea.NewProgram(New(taskNames, events), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
