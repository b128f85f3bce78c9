package survey

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation finding with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // e.g. "[2].next_questions[0].id"
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any finding has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile runs the validation pipeline on a definition file.
func ValidateFile(path string) (*Survey, []*ValidationError) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, []*ValidationError{structuralError(err)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*ValidationError{structuralError(err)}
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Validate(id, data, format)
}

// Validate runs the three phases over a definition:
// structural (decode), semantic (JSON Schema), domain (Go rules).
func Validate(id string, data []byte, format Format) (*Survey, []*ValidationError) {
	jsonData, err := ToJSON(data, format)
	if err != nil {
		return nil, []*ValidationError{structuralError(err)}
	}
	s, err := Decode(id, jsonData, FormatJSON)
	if err != nil {
		return nil, []*ValidationError{structuralError(err)}
	}

	var all []*ValidationError
	all = append(all, validateSemantic(jsonData)...)
	all = append(all, ValidateDomain(s)...)
	if len(all) > 0 {
		return s, all
	}
	return s, nil
}

func structuralError(err error) *ValidationError {
	return &ValidationError{Phase: "structural", Message: err.Error(), Severity: "error"}
}

var (
	compiledOnce   sync.Once
	compiledSchema *sjsonschema.Schema
	compileErr     error
)

func surveySchema() (*sjsonschema.Schema, error) {
	compiledOnce.Do(func() {
		data, err := GenerateJSONSchema()
		if err != nil {
			compileErr = fmt.Errorf("generate schema: %w", err)
			return
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource("survey-v0.json", doc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("survey-v0.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

func validateSemantic(jsonData []byte) []*ValidationError {
	sch, err := surveySchema()
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: err.Error(), Severity: "error"}}
	}
	var doc any
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("unmarshal document: %v", err), Severity: "error"}}
	}
	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{{Phase: "semantic", Message: err.Error(), Severity: "error"}}
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain checks rules the schema cannot express.
func ValidateDomain(s *Survey) []*ValidationError {
	var errs []*ValidationError
	add := func(path, severity, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: severity,
		})
	}

	seen := make(map[string]int)
	for i, q := range s.Questions {
		path := fmt.Sprintf("[%d]", i)
		switch {
		case q.ID == "":
			add(path+".id", "error", "question id must not be empty")
		case strings.ContainsAny(q.ID, ":|"):
			add(path+".id", "error", "question id %q must not contain ':' or '|'", q.ID)
		}
		if prev, dup := seen[q.ID]; dup && q.ID != "" {
			add(path+".id", "error", "duplicate question id %q (first at [%d])", q.ID, prev)
		} else {
			seen[q.ID] = i
		}
		if !q.Kind.Known() {
			add(path+".type", "error", "unknown question type %q", q.Type)
		}
	}

	for i, q := range s.Questions {
		for j, b := range q.NextQuestions {
			path := fmt.Sprintf("[%d].next_questions[%d].id", i, j)
			if b.ID == "" {
				add(path, "error", "branch target must not be empty")
				continue
			}
			if _, ok := seen[b.ID]; !ok {
				add(path, "warning", "branch target %q matches no question", b.ID)
			}
		}
	}
	return errs
}
