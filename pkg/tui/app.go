package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/surveyd/pkg/wizard"
)

// --- Tea messages ---

// startedMsg is sent after the controller has loaded or resumed the survey.
type startedMsg struct{ err error }

// submittedMsg is sent after a page submission completes.
type submittedMsg struct{ err error }

// backMsg is sent after a back navigation completes.
type backMsg struct{ err error }

// evaluatedMsg carries the server's evaluation.
type evaluatedMsg struct {
	result map[string]any
	err    error
}

// Config controls a TUI run.
type Config struct {
	Controller *wizard.Controller
	SurveyID   string
	AltScreen  bool
}

// Model is the top-level Bubble Tea model for the wizard.
type Model struct {
	ctl      *wizard.Controller
	surveyID string
	ctx      context.Context

	spinner spinner.Model
	fields  []field
	focus   int
	step    int // page index the fields were built for

	busy       bool
	started    bool
	err        error
	evaluation map[string]any

	width  int
	height int
}

// NewModel returns a model bound to ctl. Init starts the survey.
func NewModel(ctx context.Context, ctl *wizard.Controller, surveyID string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		ctl:      ctl,
		surveyID: surveyID,
		ctx:      ctx,
		spinner:  sp,
		step:     -1,
		busy:     true,
		width:    80,
	}
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Controller == nil {
		return errors.New("tui: no controller")
	}
	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	opts = append(opts, tea.WithContext(ctx))
	p := tea.NewProgram(NewModel(ctx, cfg.Controller, cfg.SurveyID), opts...)
	_, err := p.Run()
	return err
}

// Init returns the initial commands: start spinner and the survey.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

func (m Model) start() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.ctl.Start(m.ctx, m.surveyID)}
	}
}

func (m Model) submit(values map[string]string) tea.Cmd {
	return func() tea.Msg {
		return submittedMsg{err: m.ctl.Submit(m.ctx, values)}
	}
}

func (m Model) back() tea.Cmd {
	return func() tea.Msg {
		return backMsg{err: m.ctl.Back(m.ctx)}
	}
}

func (m Model) evaluate() tea.Cmd {
	return func() tea.Msg {
		res, err := m.ctl.Evaluate(m.ctx)
		return evaluatedMsg{result: res, err: err}
	}
}

// Values collects the answers currently entered on the page.
func (m Model) Values() map[string]string {
	out := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		out[f.q.ID] = f.Value()
	}
	return out
}

// sync rebuilds the fields when the controller moved to another page.
func (m *Model) sync() tea.Cmd {
	page, ok := m.ctl.Page()
	if !ok {
		m.fields = nil
		m.step = -1
		return nil
	}
	if page.Index == m.step && len(m.fields) == len(page.Snapshot.Questions) {
		return nil
	}
	m.step = page.Index
	m.fields = make([]field, 0, len(page.Snapshot.Questions))
	for _, q := range page.Snapshot.Questions {
		m.fields = append(m.fields, newField(q, page.Snapshot.Values[q.ID]))
	}
	m.focus = 0
	return m.refocus()
}

func (m *Model) refocus() tea.Cmd {
	var cmd tea.Cmd
	for i := range m.fields {
		if i == m.focus {
			cmd = m.fields[i].focus()
		} else {
			m.fields[i].blur()
		}
	}
	return cmd
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startedMsg:
		m.busy, m.started, m.err = false, true, msg.err
		cmd := m.sync()
		return m, cmd

	case submittedMsg:
		m.busy, m.err = false, msg.err
		cmd := m.sync()
		return m, cmd

	case backMsg:
		m.busy, m.err = false, msg.err
		m.step = -1
		cmd := m.sync()
		return m, cmd

	case evaluatedMsg:
		m.busy, m.err = false, msg.err
		if msg.err == nil {
			m.evaluation = msg.result
			if m.evaluation == nil {
				m.evaluation = map[string]any{}
			}
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if matchKey(msg, keys.Quit) {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}
	if m.evaluation != nil {
		if msg.String() == "q" || matchKey(msg, keys.Submit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.ctl.State() == wizard.Completed {
		if matchKey(msg, keys.Submit) {
			m.busy = true
			return m, m.evaluate()
		}
		return m, nil
	}

	switch {
	case matchKey(msg, keys.Submit):
		values := m.Values()
		if err := m.ctl.CheckPage(values); err != nil {
			m.err = err
			return m, nil
		}
		m.busy, m.err = true, nil
		return m, m.submit(values)
	case matchKey(msg, keys.Back):
		m.busy, m.err = true, nil
		return m, m.back()
	case matchKey(msg, keys.Next):
		if len(m.fields) > 0 {
			m.focus = (m.focus + 1) % len(m.fields)
		}
		cmd := m.refocus()
		return m, cmd
	case matchKey(msg, keys.Prev):
		if len(m.fields) > 0 {
			m.focus = (m.focus - 1 + len(m.fields)) % len(m.fields)
		}
		cmd := m.refocus()
		return m, cmd
	}

	if m.focus >= len(m.fields) {
		return m, nil
	}
	f := &m.fields[m.focus]
	if !f.hasText() {
		switch {
		case matchKey(msg, keys.Left):
			f.move(-1)
		case matchKey(msg, keys.Right):
			f.move(1)
		case matchKey(msg, keys.Toggle):
			f.toggle()
		}
		return m, nil
	}
	return m, f.update(msg)
}

// View renders the complete TUI.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader() + "\n\n")

	switch {
	case !m.started:
		b.WriteString(m.spinner.View() + " loading survey...\n")
	case m.evaluation != nil:
		b.WriteString(m.renderEvaluation())
	case m.ctl.State() == wizard.Completed:
		b.WriteString(bannerStyle.Render("Survey complete") + "\n\n")
		b.WriteString(valueStyle.Render("Press enter to see your results.") + "\n")
	default:
		var body strings.Builder
		for i, f := range m.fields {
			if i > 0 {
				body.WriteString("\n")
			}
			body.WriteString(f.view(i == m.focus, m.width-6))
		}
		b.WriteString(panelBorder.Width(max(m.width-4, 20)).Render(strings.TrimRight(body.String(), "\n")) + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + m.renderError() + "\n")
	}
	completed := m.started && m.ctl.State() == wizard.Completed
	b.WriteString("\n" + keyBarStyle.Render(keyBarText(completed, m.evaluation != nil)))
	return b.String()
}

func (m Model) renderHeader() string {
	left := headerStyle.Render("surveyd") + " " + valueStyle.Render(m.surveyID)
	var right string
	switch {
	case m.busy && m.started:
		right = m.spinner.View() + " working"
	case m.started:
		right = stepBadgeStyle.Render(fmt.Sprintf("page %d", m.ctl.StepPointer()+1))
	}
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}

func (m Model) renderError() string {
	var ve *wizard.ValidationError
	if errors.As(m.err, &ve) {
		lines := make([]string, 0, len(ve.Fields))
		for _, fe := range ve.Fields {
			lines = append(lines, errorStyle.Render(fe.QuestionID+": "+fe.Err.Error()))
		}
		return strings.Join(lines, "\n")
	}
	if errors.Is(m.err, wizard.ErrUnresolvedBranch) {
		return errorStyle.Render("The survey could not find where to go next. Press esc to go back.")
	}
	return errorStyle.Render("Error: " + m.err.Error())
}

func (m Model) renderEvaluation() string {
	var b strings.Builder
	title := "Results"
	if v, ok := m.evaluation["verdict"].(string); ok && v != "" {
		title = "Results: " + v
	}
	b.WriteString(bannerStyle.Render(title) + "\n\n")

	if scores, ok := m.evaluation["scores"].(map[string]any); ok && len(scores) > 0 {
		names := make([]string, 0, len(scores))
		for k := range scores {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			b.WriteString(labelStyle.Render(k+":") + " " + valueStyle.Render(fmt.Sprint(scores[k])) + "\n")
		}
	} else if len(m.evaluation) == 0 {
		b.WriteString(valueStyle.Render("No evaluation is available for this survey.") + "\n")
	}
	if n, ok := m.evaluation["answered"]; ok {
		b.WriteString(labelStyle.Render("answered:") + " " + valueStyle.Render(fmt.Sprint(n)) + "\n")
	}
	return b.String()
}
