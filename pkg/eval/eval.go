// Package eval scores completed surveys. Rules live next to the survey
// definitions as <dir>/<surveyID>.yaml and are expr-lang expressions over
// the recorded answers.
package eval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"
)

// ErrUnavailable is returned when no usable rule set exists for a survey.
// Callers degrade it to an empty evaluation.
var ErrUnavailable = errors.New("evaluation unavailable")

// Evaluator computes the evaluation payload for a completed survey.
type Evaluator interface {
	Evaluate(ctx context.Context, surveyID string, answers map[string]string) (map[string]any, error)
}

// Rules is the on-disk rule file.
type Rules struct {
	Scores   map[string]string `yaml:"scores"`
	Verdicts []Verdict         `yaml:"verdicts"`
}

// Verdict assigns Label when the boolean expression When holds.
type Verdict struct {
	When  string `yaml:"when"`
	Label string `yaml:"label"`
}

// ExprEvaluator reads rules from Dir on every call.
type ExprEvaluator struct {
	Dir string
}

// LoadRules reads the rule file for surveyID.
func (e ExprEvaluator) LoadRules(surveyID string) (*Rules, error) {
	if e.Dir == "" || surveyID == "" || strings.ContainsAny(surveyID, `/\`) || strings.Contains(surveyID, "..") {
		return nil, ErrUnavailable
	}
	data, err := os.ReadFile(filepath.Join(e.Dir, surveyID+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("%w: parse rules: %v", ErrUnavailable, err)
	}
	return &rules, nil
}

// Evaluate implements Evaluator.
func (e ExprEvaluator) Evaluate(ctx context.Context, surveyID string, answers map[string]string) (map[string]any, error) {
	rules, err := e.LoadRules(surveyID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rules.Apply(surveyID, answers)
}

// Apply runs the score expressions, then the verdicts in order. The first
// verdict whose condition holds wins.
func (r *Rules) Apply(surveyID string, answers map[string]string) (map[string]any, error) {
	env := buildEnv(answers)

	names := make([]string, 0, len(r.Scores))
	for name := range r.Scores {
		names = append(names, name)
	}
	sort.Strings(names)

	scores := make(map[string]any, len(names))
	for _, name := range names {
		program, err := expr.Compile(r.Scores[name], expr.Env(env))
		if err != nil {
			return nil, fmt.Errorf("%w: compile score %q: %v", ErrUnavailable, name, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("eval score %q: %w", name, err)
		}
		scores[name] = out
	}
	env["scores"] = scores

	verdict := ""
	for i, v := range r.Verdicts {
		program, err := expr.Compile(v.When, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("%w: compile verdict %d: %v", ErrUnavailable, i, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("eval verdict %d: %w", i, err)
		}
		if hit, _ := out.(bool); hit {
			verdict = v.Label
			break
		}
	}

	return map[string]any{
		"survey_id": surveyID,
		"scores":    scores,
		"verdict":   verdict,
		"answered":  len(answers),
	}, nil
}

func buildEnv(answers map[string]string) map[string]any {
	am := make(map[string]any, len(answers))
	for k, v := range answers {
		am[k] = v
	}
	return map[string]any{
		"answers":  am,
		"answered": len(answers),
		"num":      num,
	}
}

// num parses v as a float, returning 0 for anything unparsable.
func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
