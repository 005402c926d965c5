package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/engine"
	"github.com/five82/tally/internal/prefs"
	"github.com/five82/tally/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewData View = iota
	ViewLogs
)

const (
	defaultRenderTick = 250 * time.Millisecond
	actionTimeout     = 15 * time.Second
)

var errAdminOnly = errors.New("only the session admin can do that")

// Session is the engine surface the UI drives.
type Session interface {
	Code() string
	IsAdmin() bool
	Mode() classapi.Mode
	Status() engine.Status

	Enqueue(group int, values ...float64) error
	EnqueuePairs(points ...classapi.Point) error
	Refresh()

	SetEnabled(ctx context.Context, enabled, adminInitiated bool) error
	Renew(ctx context.Context) error
	Extend(ctx context.Context) (time.Time, error)

	DeletePoint(ctx context.Context, group int, value float64) error
	DeletePair(ctx context.Context, p classapi.Point) error
	DeleteGroupData(ctx context.Context, group int) error
	DeleteAll(ctx context.Context) error
	RenameVariable(ctx context.Context, index int, name string) error
	RenameGroup(ctx context.Context, index int, name string) error
	AddGroup(ctx context.Context, name string) error
	DeleteGroup(ctx context.Context, index int) error
}

var _ Session = (*engine.Session)(nil)

// Options configures the UI.
type Options struct {
	Context    context.Context
	Session    Session
	Store      *state.Store
	ThemeName  string
	PrefsPath  string
	LogPath    string
	RenderTick time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx        context.Context
	session    Session
	store      *state.Store
	prefsPath  string
	logPath    string
	renderTick time.Duration
	now        func() time.Time

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	// Data state
	snapshot      state.Snapshot
	status        engine.Status
	selectedGroup int // 0-based

	// Prompt state
	input     textinput.Model
	inputMode inputMode
	notice    string
	noticeErr bool

	// Log state
	logViewport viewport.Model
	logLines    []string
	logFollow   bool
	logLevel    string
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	renderTick := opts.RenderTick
	if renderTick <= 0 {
		renderTick = defaultRenderTick
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 512

	return Model{
		ctx:         ctx,
		session:     opts.Session,
		store:       opts.Store,
		prefsPath:   prefsPath,
		logPath:     opts.LogPath,
		renderTick:  renderTick,
		now:         time.Now,
		theme:       GetTheme(opts.ThemeName),
		currentView: ViewData,
		input:       input,
		logFollow:   true,
		logLevel:    logLevels[0],
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.renderTick)}
	if m.store != nil {
		cmds = append(cmds, m.fetchSnapshotCmd())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.logViewport = viewport.New(msg.Width, m.logViewportHeight())
		}
		m.ready = true
		m.resizeLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = msg.view
		m.status = msg.status
		m.clampSelection()
		return m, nil

	case actionMsg:
		m.setNotice(msg.label, msg.err)
		if m.store == nil {
			return m, nil
		}
		return m, m.fetchSnapshotCmd()

	case logsMsg:
		m.handleLogs(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	if m.inputMode != inputNone {
		return m.handleInputKey(msg)
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, keys.CycleTheme):
		m.cycleTheme()
		return m, nil
	case key.Matches(msg, keys.Tab):
		if m.currentView == ViewLogs {
			m.currentView = ViewData
			return m, nil
		}
		m.currentView = ViewLogs
		return m, m.refreshLogs()
	case key.Matches(msg, keys.Escape):
		m.currentView = ViewData
		m.notice = ""
		return m, nil
	}

	switch m.currentView {
	case ViewLogs:
		return m.handleLogsKey(msg)
	default:
		return m.handleDataKey(msg)
	}
}

func (m Model) handleDataKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.session == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Logs):
		m.currentView = ViewLogs
		return m, m.refreshLogs()
	case key.Matches(msg, keys.Add):
		return m.startInput(inputValues)
	case key.Matches(msg, keys.Command):
		return m.startInput(inputCommand)
	case key.Matches(msg, keys.PrevGroup):
		if m.selectedGroup > 0 {
			m.selectedGroup--
		}
		return m, nil
	case key.Matches(msg, keys.NextGroup):
		if m.selectedGroup < m.groupCount()-1 {
			m.selectedGroup++
		}
		return m, nil
	case key.Matches(msg, keys.Refresh):
		cmd := m.runCommand(command{Name: "refresh"})
		return m, cmd
	case key.Matches(msg, keys.ToggleOpen):
		name := "open"
		if m.status.Enabled {
			name = "close"
		}
		cmd := m.runCommand(command{Name: name})
		return m, cmd
	case key.Matches(msg, keys.Renew):
		cmd := m.runCommand(command{Name: "renew"})
		return m, cmd
	case key.Matches(msg, keys.Extend):
		cmd := m.runCommand(command{Name: "extend"})
		return m, cmd
	}
	return m, nil
}

func (m Model) startInput(mode inputMode) (tea.Model, tea.Cmd) {
	m.inputMode = mode
	m.notice = ""
	m.input.SetValue("")
	switch mode {
	case inputCommand:
		m.input.Prompt = ": "
		m.input.Placeholder = "command (see help)"
	default:
		m.input.Prompt = "> "
		if m.session.Mode() == classapi.ModePaired {
			m.input.Placeholder = "x y; x y ..."
		} else {
			m.input.Placeholder = fmt.Sprintf("values for %s", m.groupName(m.selectedGroup))
		}
	}
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.CancelInput):
		m.stopInput()
		return m, nil
	case key.Matches(msg, keys.Confirm):
		line := m.input.Value()
		mode := m.inputMode
		m.stopInput()
		return m.submit(mode, line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) stopInput() {
	m.inputMode = inputNone
	m.input.Blur()
	m.input.SetValue("")
}

func (m Model) submit(mode inputMode, line string) (tea.Model, tea.Cmd) {
	paired := m.session.Mode() == classapi.ModePaired

	if mode == inputCommand {
		cmd, err := parseCommand(line, paired)
		if err != nil {
			m.setNotice("", err)
			return m, nil
		}
		run := m.runCommand(cmd)
		return m, run
	}

	if paired {
		points, err := parsePairs(line)
		if err != nil {
			m.setNotice("", err)
			return m, nil
		}
		run := m.enqueuePairs(points)
		return m, run
	}
	values, err := parseValues(line)
	if err != nil {
		m.setNotice("", err)
		return m, nil
	}
	run := m.enqueue(m.selectedGroup+1, values)
	return m, run
}

func adminCommand(name string) bool {
	switch name {
	case "delete", "refresh":
		return false
	default:
		return true
	}
}

// runCommand turns a parsed command into a session call. Admin-only
// commands are refused locally for non-admins.
func (m *Model) runCommand(c command) tea.Cmd {
	s := m.session
	if adminCommand(c.Name) && !s.IsAdmin() {
		m.setNotice("", errAdminOnly)
		return nil
	}

	switch c.Name {
	case "refresh":
		return m.do("refreshed", func(context.Context) error {
			s.Refresh()
			return nil
		})
	case "delete":
		if s.Mode() == classapi.ModePaired {
			return m.do(fmt.Sprintf("deleted (%s, %s)", formatValue(c.Point.X), formatValue(c.Point.Y)), func(ctx context.Context) error {
				return s.DeletePair(ctx, c.Point)
			})
		}
		group := m.selectedGroup + 1
		return m.do(fmt.Sprintf("deleted %s from %s", formatValue(c.Value), m.groupName(m.selectedGroup)), func(ctx context.Context) error {
			return s.DeletePoint(ctx, group, c.Value)
		})
	case "rename-var":
		return m.do(fmt.Sprintf("variable %d renamed to %s", c.Index, c.Text), func(ctx context.Context) error {
			return s.RenameVariable(ctx, c.Index, c.Text)
		})
	case "rename-group":
		return m.do(fmt.Sprintf("group %d renamed to %s", c.Index, c.Text), func(ctx context.Context) error {
			return s.RenameGroup(ctx, c.Index, c.Text)
		})
	case "add-group":
		return m.do("added group "+c.Text, func(ctx context.Context) error {
			return s.AddGroup(ctx, c.Text)
		})
	case "delete-group":
		return m.do(fmt.Sprintf("deleted group %d", c.Index), func(ctx context.Context) error {
			return s.DeleteGroup(ctx, c.Index)
		})
	case "clear-group":
		return m.do(fmt.Sprintf("cleared group %d", c.Index), func(ctx context.Context) error {
			return s.DeleteGroupData(ctx, c.Index)
		})
	case "clear-all":
		return m.do("cleared all data", s.DeleteAll)
	case "open":
		return m.do("collection opened", func(ctx context.Context) error {
			return s.SetEnabled(ctx, true, true)
		})
	case "close":
		return m.do("collection closed", func(ctx context.Context) error {
			return s.SetEnabled(ctx, false, true)
		})
	case "renew":
		return m.do("collection window renewed", s.Renew)
	case "extend":
		return m.extend()
	}
	return nil
}

func (m *Model) enqueue(group int, values []float64) tea.Cmd {
	s := m.session
	label := fmt.Sprintf("queued %d value(s) for %s", len(values), m.groupName(group-1))
	return m.do(label, func(context.Context) error {
		return s.Enqueue(group, values...)
	})
}

func (m *Model) enqueuePairs(points []classapi.Point) tea.Cmd {
	s := m.session
	return m.do(fmt.Sprintf("queued %d point(s)", len(points)), func(context.Context) error {
		return s.EnqueuePairs(points...)
	})
}

func (m *Model) extend() tea.Cmd {
	s := m.session
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		expires, err := s.Extend(ctx)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{label: "session extended until " + expires.Local().Format("Jan 2 15:04")}
	}
}

// do runs fn off the update loop; session calls may block on the network.
func (m *Model) do(label string, fn func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		return actionMsg{label: label, err: fn(ctx)}
	}
}

func (m *Model) setNotice(label string, err error) {
	if err != nil {
		m.notice = err.Error()
		m.noticeErr = true
		return
	}
	m.notice = label
	m.noticeErr = false
}

func (m *Model) cycleTheme() {
	m.theme = GetTheme(NextTheme(m.theme.Name))
	if m.prefsPath == "" {
		return
	}
	p, _ := prefs.Load(m.prefsPath)
	p.Theme = m.theme.Name
	_ = prefs.Save(m.prefsPath, p)
}

// handleTick processes the render tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, m.fetchSnapshotCmd())
	}
	if m.currentView == ViewLogs && m.logFollow {
		if cmd := m.refreshLogs(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	cmds = append(cmds, tickCmd(m.renderTick))
	return m, tea.Batch(cmds...)
}

func (m Model) groupCount() int {
	if m.snapshot.Mode == classapi.ModePaired {
		return 0
	}
	return max(1, len(m.snapshot.Groups))
}

func (m *Model) clampSelection() {
	if n := m.groupCount(); m.selectedGroup >= n {
		m.selectedGroup = max(0, n-1)
	}
}

// groupName returns the display name of a 0-based group.
func (m Model) groupName(i int) string {
	if i >= 0 && i < len(m.snapshot.Groups) && m.snapshot.Groups[i] != "" {
		return m.snapshot.Groups[i]
	}
	if len(m.snapshot.Groups) == 0 {
		return "the class"
	}
	return fmt.Sprintf("group %d", i+1)
}

// Messages

type tickMsg time.Time

type snapshotMsg struct {
	view   state.Snapshot
	status engine.Status
}

// actionMsg reports the outcome of a session call.
type actionMsg struct {
	label string
	err   error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchSnapshotCmd() tea.Cmd {
	store, session := m.store, m.session
	return func() tea.Msg {
		msg := snapshotMsg{view: store.Snapshot()}
		if session != nil {
			msg.status = session.Status()
		}
		return msg
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or ctx
// is cancelled.
func Run(opts Options) error {
	if opts.Store == nil {
		return errors.New("ui requires a data store")
	}
	if opts.Session == nil {
		return errors.New("ui requires a session")
	}
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
