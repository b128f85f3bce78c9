// Package console implements a line-mode player for surveys. Each question
// of the current page is asked in turn; the page is submitted once every
// question has an answer.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/surveyd/pkg/survey"
	"github.com/ormasoftchile/surveyd/pkg/wizard"
)

// Console drives a wizard.Controller from a readline prompt.
type Console struct {
	ctl      *wizard.Controller
	surveyID string
	output   io.Writer

	page   []survey.Question
	cursor int
	values map[string]string
	held   bool // page fully answered but waiting for enter
	result map[string]any
}

// New creates a console player for surveyID.
func New(ctl *wizard.Controller, surveyID string, output io.Writer) *Console {
	if output == nil {
		output = os.Stdout
	}
	return &Console{ctl: ctl, surveyID: surveyID, output: output}
}

var commands = []string{"/back", "/page", "/results", "/help", "/quit"}

// Run starts the survey and the prompt loop. A nil input reads the terminal.
func (c *Console) Run(ctx context.Context, input io.ReadCloser) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	cfg := &readline.Config{
		Prompt:          c.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		Stdout:          c.output,
	}
	if input != nil {
		cfg.Stdin = input
		cfg.FuncIsTerminal = func() bool { return false }
		cfg.FuncMakeRaw = func() error { return nil }
		cfg.FuncExitRaw = func() error { return nil }
		cfg.FuncGetWidth = func() int { return 80 }
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	if err := c.Start(ctx); err != nil {
		return err
	}

	for {
		rl.SetPrompt(c.prompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if c.HandleLine(ctx, line) {
			return nil
		}
	}
}

// Start loads or resumes the survey and prints the first question.
func (c *Console) Start(ctx context.Context) error {
	if err := c.ctl.Start(ctx, c.surveyID); err != nil {
		return fmt.Errorf("start survey %q: %w", c.surveyID, err)
	}
	fmt.Fprintf(c.output, "surveyd: %s\n", c.surveyID)
	fmt.Fprintf(c.output, "Type an answer and press enter. '/help' lists commands.\n\n")
	c.loadPage(ctx, false)
	return nil
}

// HandleLine processes one line of input and reports whether to exit.
func (c *Console) HandleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "/") {
		return c.handleCommand(ctx, strings.Fields(line))
	}

	switch c.ctl.State() {
	case wizard.Completed:
		fmt.Fprintf(c.output, "The survey is complete. Type '/results' to see your results.\n")
		return false
	case wizard.Failed:
		fmt.Fprintf(c.output, "The survey cannot continue from here. Type '/back' to change your answer.\n")
		return false
	}
	if c.cursor >= len(c.page) {
		if c.held {
			c.held = false
			c.advance(ctx)
		}
		return false
	}

	q := c.page[c.cursor]
	if err := survey.ValidateAnswer(q, line); err != nil {
		fmt.Fprintf(c.output, "  ✗ %v\n", err)
		c.ask()
		return false
	}
	c.values[q.ID] = line
	c.cursor++
	c.advance(ctx)
	return false
}

func (c *Console) handleCommand(ctx context.Context, parts []string) bool {
	switch parts[0] {
	case "/back", "/b":
		if err := c.ctl.Back(ctx); err != nil {
			fmt.Fprintf(c.output, "Error: %v\n", err)
			return false
		}
		c.loadPage(ctx, true)
	case "/page", "/p":
		c.showPage()
	case "/results", "/r":
		c.handleResults(ctx)
	case "/help", "/?":
		c.handleHelp()
	case "/quit", "/q":
		fmt.Fprintf(c.output, "Progress saved. Bye.\n")
		return true
	default:
		fmt.Fprintf(c.output, "Unknown command: %q. Type '/help' for available commands.\n", parts[0])
	}
	return false
}

// loadPage resets the question cursor to the controller's current page. A
// restored page is not submitted until the user presses enter.
func (c *Console) loadPage(ctx context.Context, restored bool) {
	c.page, c.cursor = nil, 0
	c.values = map[string]string{}
	c.held = restored
	if c.ctl.State() == wizard.Completed {
		fmt.Fprintf(c.output, "✓ Survey complete. Type '/results' to see your results.\n")
		return
	}
	page, ok := c.ctl.Page()
	if !ok {
		return
	}
	c.page = page.Snapshot.Questions
	for id, v := range page.Snapshot.Values {
		c.values[id] = v
	}
	c.advance(ctx)
}

// advance skips questions that need no answer, submitting the page once every
// question is answered.
func (c *Console) advance(ctx context.Context) {
	for c.cursor < len(c.page) && !survey.NeedsAnswer(c.page[c.cursor]) {
		q := c.page[c.cursor]
		fmt.Fprintf(c.output, "%s\n", survey.Render(q))
		c.values[q.ID] = ""
		c.cursor++
	}
	if c.cursor < len(c.page) {
		c.held = false
		c.ask()
		return
	}
	if len(c.page) == 0 {
		return
	}
	if c.held {
		fmt.Fprintf(c.output, "Press enter to continue, or type '/back' to go further back.\n")
		return
	}

	err := c.ctl.Submit(ctx, c.values)
	var ve *wizard.ValidationError
	switch {
	case err == nil:
		c.loadPage(ctx, false)
	case errors.As(err, &ve):
		for _, fe := range ve.Fields {
			fmt.Fprintf(c.output, "  ✗ %s: %v\n", fe.QuestionID, fe.Err)
		}
		c.cursor = 0
		c.ask()
	case errors.Is(err, wizard.ErrUnresolvedBranch):
		fmt.Fprintf(c.output, "  ✗ The survey could not find where to go next. Type '/back' to change your answer.\n")
	default:
		fmt.Fprintf(c.output, "Error: %v\n", err)
		c.cursor = 0
		c.ask()
	}
}

func (c *Console) ask() {
	q := c.page[c.cursor]
	fmt.Fprintf(c.output, "%s\n", survey.Render(q))
	if prev, ok := c.values[q.ID]; ok && prev != "" {
		fmt.Fprintf(c.output, "  (previous answer: %s)\n", prev)
	}
}

func (c *Console) showPage() {
	if len(c.page) == 0 {
		fmt.Fprintf(c.output, "No open page.\n")
		return
	}
	fmt.Fprintf(c.output, "Page %d:\n", c.ctl.StepPointer()+1)
	for i, q := range c.page {
		marker := " "
		if i == c.cursor {
			marker = "▸"
		}
		fmt.Fprintf(c.output, "  %s %s", marker, q.ID)
		if v, ok := c.values[q.ID]; ok && i < c.cursor {
			fmt.Fprintf(c.output, " = %q", v)
		}
		fmt.Fprintf(c.output, "\n")
	}
}

func (c *Console) handleResults(ctx context.Context) {
	if c.result == nil {
		res, err := c.ctl.Evaluate(ctx)
		if err != nil {
			fmt.Fprintf(c.output, "Error: %v\n", err)
			return
		}
		c.result = res
	}
	if len(c.result) == 0 {
		fmt.Fprintf(c.output, "No evaluation is available for this survey.\n")
		return
	}
	if v, ok := c.result["verdict"]; ok {
		fmt.Fprintf(c.output, "Verdict: %v\n", v)
	}
	if scores, ok := c.result["scores"].(map[string]any); ok {
		for _, k := range sortedKeys(scores) {
			fmt.Fprintf(c.output, "  %s = %v\n", k, scores[k])
		}
	}
}

func (c *Console) handleHelp() {
	fmt.Fprintf(c.output, `Commands:
  <answer>         Answer the current question
  /back, /b        Return to the previous page
  /page, /p        Show the questions on this page
  /results, /r     Show the evaluation once the survey is complete
  /help, /?        Show this help
  /quit, /q        Exit (progress is kept)
`)
}

func (c *Console) prompt() string {
	if c.ctl == nil || c.ctl.State() == wizard.Completed {
		return "surveyd[done]> "
	}
	if c.cursor < len(c.page) {
		return fmt.Sprintf("surveyd[%d | %s]> ", c.ctl.StepPointer()+1, c.page[c.cursor].ID)
	}
	return "surveyd> "
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
