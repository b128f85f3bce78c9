package wizard

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ormasoftchile/surveyd/pkg/engine"
	"github.com/ormasoftchile/surveyd/pkg/eval"
	"github.com/ormasoftchile/surveyd/pkg/serve"
	"github.com/ormasoftchile/surveyd/pkg/service"
	"github.com/ormasoftchile/surveyd/pkg/session"
	"github.com/ormasoftchile/surveyd/pkg/survey"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fixtureService() *service.Service {
	root := filepath.Join("..", "..", "testdata")
	eng := engine.New(
		survey.DirSource{Dir: filepath.Join(root, "surveys")},
		eval.ExprEvaluator{Dir: filepath.Join(root, "evaluations")},
	)
	return service.New(eng, session.NewRegistry(session.NewMemoryStore()))
}

// walkWellbeing answers every page of the wellbeing fixture and returns the
// evaluation.
func walkWellbeing(t *testing.T, c *Controller) map[string]any {
	t.Helper()
	ctx := context.Background()
	if err := c.Start(ctx, "wellbeing"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	answers := map[string]string{"mood": "4", "sleep": ">7", "exercise": "true", "notes": "fine"}
	var order []string
	for c.State() == AwaitingAnswer {
		ids := pageIDs(t, c)
		order = append(order, ids...)
		values := map[string]string{}
		for _, id := range ids {
			values[id] = answers[id]
		}
		if err := c.Submit(ctx, values); err != nil {
			t.Fatalf("Submit %v: %v", ids, err)
		}
	}
	if c.State() != Completed {
		t.Fatalf("state = %s, want completed", c.State())
	}
	if want := []string{"mood", "sleep", "exercise", "notes"}; !reflect.DeepEqual(order, want) {
		t.Errorf("visited %v, want %v", order, want)
	}
	out, err := c.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return out
}

func TestLocalTransport_FullRun(t *testing.T) {
	out := walkWellbeing(t, New(LocalTransport{Service: fixtureService()}, nil))
	if out["verdict"] != "thriving" {
		t.Errorf("verdict = %v, want thriving", out["verdict"])
	}
}

func TestHTTPTransport_FullRunWithResume(t *testing.T) {
	svc := fixtureService()
	srv := httptest.NewServer(serve.New(svc, serve.Options{}).Handler())
	defer srv.Close()

	ctx := context.Background()
	statePath := filepath.Join(t.TempDir(), "state", "wizard.json")
	store := FileStore{Path: statePath}

	first := New(NewHTTPTransport(srv.URL), store)
	if err := first.Start(ctx, "wellbeing"); err != nil {
		t.Fatal(err)
	}
	if err := first.Submit(ctx, map[string]string{"mood": "2"}); err != nil {
		t.Fatal(err)
	}

	// A second controller over the same file continues the same session.
	second := New(NewHTTPTransport(srv.URL), store)
	if err := second.Start(ctx, "wellbeing"); err != nil {
		t.Fatal(err)
	}
	if second.SessionID() != first.SessionID() {
		t.Errorf("resumed session %q, want %q", second.SessionID(), first.SessionID())
	}
	if got := pageIDs(t, second); !reflect.DeepEqual(got, []string{"sleep"}) {
		t.Errorf("resumed page = %v, want [sleep]", got)
	}

	// Back on the server side as well: sleep is undone, mood is shown again.
	if err := second.Back(ctx); err != nil {
		t.Fatal(err)
	}
	sess, err := svc.Session(ctx, second.SessionID())
	if err != nil {
		t.Fatal(err)
	}
	if sess.Position != 0 {
		t.Errorf("server position after back = %d, want 0", sess.Position)
	}

	out := walkWellbeing(t, second)
	if out["verdict"] != "thriving" {
		t.Errorf("verdict = %v", out)
	}
	if _, err := os.Stat(statePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("state file survives evaluation: %v", err)
	}
}

func TestHTTPTransport_Errors(t *testing.T) {
	srv := httptest.NewServer(serve.New(fixtureService(), serve.Options{}).Handler())
	defer srv.Close()
	ctx := context.Background()
	tr := NewHTTPTransport(srv.URL)

	_, err := tr.NewSession(ctx, "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 404 {
		t.Errorf("NewSession(missing) = %v, want 404 StatusError", err)
	}

	token, err := tr.NewSession(ctx, "linear")
	if err != nil {
		t.Fatal(err)
	}
	tr.NextQuestion(ctx, token)
	_, err = tr.UpdateAnswer(ctx, token, Answer{QuestionID: "ghost", Value: "1"})
	if !errors.As(err, &se) || se.Code != 500 || se.Position != 0 {
		t.Errorf("UpdateAnswer(ghost) = %v, want 500 at 0", err)
	}
}

// flakyStore fails every Update while down is set.
type flakyStore struct {
	*session.MemoryStore
	down atomic.Bool
}

func (s *flakyStore) Update(ctx context.Context, token string, fn func(*session.Session) error) (*session.Session, error) {
	if s.down.Load() {
		return nil, errors.New("redis: connection refused")
	}
	return s.MemoryStore.Update(ctx, token, fn)
}

func TestLocalTransport_StoreOutageIsRecoverable(t *testing.T) {
	store := &flakyStore{MemoryStore: session.NewMemoryStore()}
	eng := engine.New(survey.DirSource{Dir: filepath.Join("..", "..", "testdata", "surveys")}, nil)
	c := New(LocalTransport{Service: service.New(eng, session.NewRegistry(store))}, nil)
	ctx := context.Background()
	if err := c.Start(ctx, "wellbeing"); err != nil {
		t.Fatal(err)
	}

	store.down.Store(true)
	err := c.Submit(ctx, map[string]string{"mood": "2"})
	if err == nil || errors.Is(err, ErrUnresolvedBranch) {
		t.Fatalf("Submit = %v, want a recoverable error", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != engine.StatusUnavailable {
		t.Errorf("Submit = %v, want 503 StatusError", err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		t.Errorf("backend detail reached the client: %v", err)
	}
	if c.State() != AwaitingAnswer {
		t.Errorf("state = %s, want awaiting_answer", c.State())
	}

	store.down.Store(false)
	if err := c.Submit(ctx, map[string]string{"mood": "2"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := pageIDs(t, c); !reflect.DeepEqual(got, []string{"sleep"}) {
		t.Errorf("page = %v, want [sleep]", got)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := FileStore{Path: filepath.Join(dir, "w.json")}

	if p, err := fs.Load(ctx); p != nil || err != nil {
		t.Errorf("empty Load = %+v, %v", p, err)
	}
	in := &Persisted{SurveyID: "s", SessionID: "s|1", History: []Step{newStep(0, qs(q("a", "title", "A")))}}
	if err := fs.Save(ctx, in); err != nil {
		t.Fatal(err)
	}
	out, err := fs.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out.SessionID != "s|1" || out.History[0].Snapshot.Questions[0].Title() != "A" {
		t.Errorf("Load = %+v", out)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Errorf("second Clear = %v", err)
	}
}
