package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/surveyd/pkg/engine"
	"github.com/ormasoftchile/surveyd/pkg/service"
	"github.com/ormasoftchile/surveyd/pkg/survey"
	"github.com/ormasoftchile/surveyd/pkg/wizard"
)

// Handlers binds the session tools to a service.
type Handlers struct {
	Service *service.Service
}

// HandleNewSession implements the survey/newsession tool.
func (h *Handlers) HandleNewSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	surveyID, ok := stringArg(req, "surveyid")
	if !ok {
		return errorResult("surveyid argument is required"), nil
	}
	return engineResult(h.Service.NewSession(ctx, surveyID)), nil
}

// HandleNext implements the survey/next tool.
func (h *Handlers) HandleNext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, ok := stringArg(req, "sessionid")
	if !ok {
		return errorResult("sessionid argument is required"), nil
	}
	return engineResult(h.Service.Next(ctx, token)), nil
}

// HandleAnswer implements the survey/answer tool.
func (h *Handlers) HandleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, ok := stringArg(req, "sessionid")
	if !ok {
		return errorResult("sessionid argument is required"), nil
	}
	question, ok := stringArg(req, "question")
	if !ok {
		return errorResult("question argument is required"), nil
	}
	value := req.GetArguments()["value"]
	raw := wizard.Answer{QuestionID: question, Value: scalar(value)}.String()
	return engineResult(h.Service.Answer(ctx, token, raw)), nil
}

// HandleDelete implements the survey/delete tool.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, ok := stringArg(req, "sessionid")
	if !ok {
		return errorResult("sessionid argument is required"), nil
	}
	question, ok := stringArg(req, "question")
	if !ok {
		return errorResult("question argument is required"), nil
	}
	return engineResult(h.Service.Delete(ctx, token, question)), nil
}

// HandleAnalyse implements the survey/analyse tool.
func (h *Handlers) HandleAnalyse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, ok := stringArg(req, "sessionid")
	if !ok {
		return errorResult("sessionid argument is required"), nil
	}
	return engineResult(h.Service.Analyse(ctx, token)), nil
}

// HandleValidate implements the survey/validate tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, ok := stringArg(req, "path")
	if !ok {
		return errorResult("path argument is required"), nil
	}
	s, errs := survey.ValidateFile(path)
	if survey.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	msg := fmt.Sprintf("✓ %s is valid (%d questions)", s.ID, s.Len())
	if len(errs) > 0 {
		msg += "\n" + formatErrors(errs)
	}
	return textResult(msg), nil
}

// HandleSchema implements the survey/schema tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := survey.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func stringArg(req mcp.CallToolRequest, name string) (string, bool) {
	s, _ := req.GetArguments()[name].(string)
	return s, s != ""
}

// scalar renders a tool argument the way the HTTP surface would receive it.
func scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// engineResult reports a result as JSON; any non-200 status is a tool error.
func engineResult(res engine.Result) *mcp.CallToolResult {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !res.OK(),
	}
}

func formatErrors(errs []*survey.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("[%s] %s %s: %s", e.Severity, e.Phase, e.Path, e.Message))
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
