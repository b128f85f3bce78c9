package wizard

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ormasoftchile/surveyd/pkg/engine"
	"github.com/ormasoftchile/surveyd/pkg/logging"
	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// State is the controller's position in its lifecycle.
type State int

const (
	Initializing State = iota
	AwaitingAnswer
	Submitting
	NavigatingBack
	Completed
	Failed
)

var stateNames = [...]string{"initializing", "awaiting_answer", "submitting", "navigating_back", "completed", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrBusy is returned when a round-trip is already in flight.
	ErrBusy = errors.New("wizard busy")
	// ErrCompleted is returned for navigation after the survey completed.
	ErrCompleted = errors.New("survey completed")
	// ErrNotReady is returned when the operation does not fit the current state.
	ErrNotReady = errors.New("wizard not ready")
	// ErrUnresolvedBranch marks the failure state: the server could not
	// place an answer. Progress stays blocked until the user goes back.
	ErrUnresolvedBranch = errors.New("unresolved branch")
)

// FieldError is one rejected value.
type FieldError struct {
	QuestionID string
	Err        error
}

// ValidationError lists the questions on the page whose values were
// rejected. Nothing was sent to the server.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Err.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the field errors to errors.Is.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, len(e.Fields))
	for i, f := range e.Fields {
		errs[i] = f.Err
	}
	return errs
}

// Controller drives one survey run. All navigation goes through a
// single-flight guard: a second Submit or Back while one is in flight fails
// with ErrBusy instead of interleaving with the step stack.
type Controller struct {
	transport Transport
	store     Store
	log       *zap.Logger
	guard     *semaphore.Weighted
	onChange  func(State)

	mu        sync.Mutex
	state     State
	surveyID  string
	sessionID string
	history   History
	lastErr   error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = logging.OrNop(l) }
}

// WithStateHook registers fn to be called after every state change. fn runs
// on the goroutine that made the change and must not call back into the
// controller.
func WithStateHook(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// New returns a controller. A nil store keeps state in memory only.
func New(t Transport, store Store, opts ...Option) *Controller {
	if store == nil {
		store = &MemoryStore{}
	}
	c := &Controller{
		transport: t,
		store:     store,
		log:       zap.NewNop(),
		guard:     semaphore.NewWeighted(1),
		state:     Initializing,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── Accessors ──────────────────────────────────────────────────────────

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SurveyID returns the survey being run.
func (c *Controller) SurveyID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surveyID
}

// SessionID returns the server token.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// StepPointer returns the index of the active step, -1 before the first page.
func (c *Controller) StepPointer() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Pointer()
}

// Page returns a copy of the active step.
func (c *Controller) Page() (Step, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Top()
}

// History returns copies of every step, oldest first.
func (c *Controller) History() []Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Steps()
}

// Err returns the error that put the controller in Failed, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// setState must be called with mu held.
func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("wizard state", zap.String("from", c.state.String()), zap.String("to", s.String()))
	c.state = s
	if c.onChange != nil {
		c.onChange(s)
	}
}

func (c *Controller) acquire() error {
	if !c.guard.TryAcquire(1) {
		return ErrBusy
	}
	return nil
}

func (c *Controller) release() { c.guard.Release(1) }

// persist saves the blob. It must be called with mu held. Failures are
// logged, not returned: the server remains authoritative.
func (c *Controller) persist(ctx context.Context) {
	p := &Persisted{
		SurveyID:    c.surveyID,
		SessionID:   c.sessionID,
		History:     c.history.Steps(),
		StepPointer: c.history.Pointer(),
		Completed:   c.state == Completed,
	}
	if err := c.store.Save(ctx, p); err != nil {
		c.log.Warn("persist wizard state", zap.Error(err))
	}
}

// ─── Startup ────────────────────────────────────────────────────────────

// Start resumes a persisted run of surveyID when one exists, or opens a new
// session and loads the first page. A stale or completed blob is discarded.
func (c *Controller) Start(ctx context.Context, surveyID string) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	c.setState(Initializing)
	c.surveyID = surveyID
	c.lastErr = nil
	c.mu.Unlock()

	p, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn("load wizard state", zap.Error(err))
		p = nil
	}
	if p.Resumable(surveyID) {
		return c.resume(ctx, p)
	}
	if p != nil {
		c.log.Info("discarding stale wizard state", zap.String("survey_id", p.SurveyID))
	}
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("clear wizard state", zap.Error(err))
	}
	return c.fresh(ctx, surveyID)
}

func (c *Controller) resume(ctx context.Context, p *Persisted) error {
	steps := p.History
	if p.StepPointer >= 0 && p.StepPointer+1 < len(steps) {
		steps = steps[:p.StepPointer+1]
	}
	c.mu.Lock()
	c.sessionID = p.SessionID
	c.history = historyOf(steps)
	c.mu.Unlock()

	if len(steps) == 0 {
		// The session exists but no page was recorded: ask for it.
		return c.loadFirstPage(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(AwaitingAnswer)
	c.log.Info("wizard resumed", zap.String("session", c.sessionID), zap.Int("step", c.history.Pointer()))
	return nil
}

func (c *Controller) fresh(ctx context.Context, surveyID string) error {
	token, err := c.transport.NewSession(ctx, surveyID)
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	c.mu.Lock()
	c.sessionID = token
	c.history.Reset()
	c.mu.Unlock()
	return c.loadFirstPage(ctx)
}

func (c *Controller) loadFirstPage(ctx context.Context) error {
	c.mu.Lock()
	token := c.sessionID
	c.mu.Unlock()

	qs, err := c.transport.NextQuestion(ctx, token)
	if err != nil {
		return fmt.Errorf("first page: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(qs) == 0 {
		c.setState(Completed)
	} else {
		c.history.Push(newStep(0, qs))
		c.setState(AwaitingAnswer)
	}
	c.persist(ctx)
	return nil
}

// ─── Forward ────────────────────────────────────────────────────────────

// Submit validates values for the active page and sends one answer per
// question, in display order. The reply to the last answer decides the next
// page.
func (c *Controller) Submit(ctx context.Context, values map[string]string) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.submit(ctx, values)
}

// SubmitAsync is Submit without waiting. The guard is taken before it
// returns, so a trigger racing an in-flight call gets ErrBusy at once.
func (c *Controller) SubmitAsync(ctx context.Context, values map[string]string) <-chan error {
	return c.async(func() error { return c.submit(ctx, values) })
}

func (c *Controller) async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	if err := c.acquire(); err != nil {
		ch <- err
		close(ch)
		return ch
	}
	go func() {
		defer close(ch)
		err := fn()
		c.release()
		ch <- err
	}()
	return ch
}

// CheckPage validates values against the active page without sending.
func (c *Controller) CheckPage(values map[string]string) error {
	c.mu.Lock()
	top, ok := c.history.Top()
	c.mu.Unlock()
	if !ok {
		return ErrNotReady
	}
	return validatePage(top.Snapshot.Questions, values)
}

func validatePage(qs []survey.Question, values map[string]string) error {
	var fields []FieldError
	for _, q := range qs {
		if err := survey.ValidateAnswer(q, values[q.ID]); err != nil {
			fields = append(fields, FieldError{QuestionID: q.ID, Err: err})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (c *Controller) submit(ctx context.Context, values map[string]string) error {
	c.mu.Lock()
	switch c.state {
	case AwaitingAnswer:
	case Completed:
		c.mu.Unlock()
		return ErrCompleted
	default:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: submit in %s", ErrNotReady, st)
	}
	top, _ := c.history.Top()
	if err := validatePage(top.Snapshot.Questions, values); err != nil {
		c.mu.Unlock()
		return err
	}
	token := c.sessionID
	c.setState(Submitting)
	c.mu.Unlock()

	var reply []survey.Question
	for _, q := range top.Snapshot.Questions {
		qs, err := c.transport.UpdateAnswer(ctx, token, Answer{QuestionID: q.ID, Value: values[q.ID]})
		if err != nil {
			return c.submitFailed(err)
		}
		reply = qs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.ReplaceTop(top.withValues(values))

	fresh := c.unseen(reply)
	if len(fresh) == 0 {
		c.setState(Completed)
	} else {
		c.history.Push(newStep(c.history.Len(), fresh))
		c.setState(AwaitingAnswer)
	}
	c.persist(ctx)
	return nil
}

// unseen drops questions already present anywhere in history, and repeats
// within qs. It must be called with mu held.
func (c *Controller) unseen(qs []survey.Question) []survey.Question {
	seen := make(map[string]bool, len(qs))
	var out []survey.Question
	for _, q := range qs {
		if seen[q.ID] || c.history.Contains(q.ID) {
			continue
		}
		seen[q.ID] = true
		out = append(out, q)
	}
	return out
}

func (c *Controller) submitFailed(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var se *StatusError
	if errors.As(err, &se) && se.Code == engine.StatusUnresolvedBranch {
		c.lastErr = fmt.Errorf("%w: %v", ErrUnresolvedBranch, err)
		c.setState(Failed)
		c.log.Warn("wizard failed", zap.String("session", c.sessionID), zap.Error(err))
		return c.lastErr
	}
	c.setState(AwaitingAnswer)
	return fmt.Errorf("submit: %w", err)
}

// ─── Backward ───────────────────────────────────────────────────────────

// Back undoes the most recent step: one delete per question it holds, in
// recorded order, then the previous frame becomes the active page again.
// Back on the first step is a no-op.
func (c *Controller) Back(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.back(ctx)
}

// BackAsync is Back without waiting. See SubmitAsync.
func (c *Controller) BackAsync(ctx context.Context) <-chan error {
	return c.async(func() error { return c.back(ctx) })
}

func (c *Controller) back(ctx context.Context) error {
	c.mu.Lock()
	prior := c.state
	switch prior {
	case AwaitingAnswer, Failed:
	case Completed:
		c.mu.Unlock()
		return ErrCompleted
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: back in %s", ErrNotReady, prior)
	}
	if c.history.Len() <= 1 {
		// Nothing to undo. A failure on the first page is cleared locally.
		if prior == Failed {
			c.lastErr = nil
			c.setState(AwaitingAnswer)
		}
		c.mu.Unlock()
		return nil
	}
	top, _ := c.history.Top()
	token := c.sessionID
	c.setState(NavigatingBack)
	c.mu.Unlock()

	for _, id := range top.QuestionIDs {
		if _, err := c.transport.DeleteAnswer(ctx, token, id); err != nil {
			c.mu.Lock()
			c.setState(prior)
			c.mu.Unlock()
			return fmt.Errorf("back: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.Pop()
	c.lastErr = nil
	c.setState(AwaitingAnswer)
	c.persist(ctx)
	return nil
}

// ─── Completion ─────────────────────────────────────────────────────────

// Evaluate is the terminal request. It is allowed only once Completed and
// clears the persisted blob on success.
func (c *Controller) Evaluate(ctx context.Context) (map[string]any, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	c.mu.Lock()
	if c.state != Completed {
		st := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: evaluate in %s", ErrNotReady, st)
	}
	token := c.sessionID
	c.mu.Unlock()

	out, err := c.transport.Analyse(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("clear wizard state", zap.Error(err))
	}
	return maps.Clone(out), nil
}
