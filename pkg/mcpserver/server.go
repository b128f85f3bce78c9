// Package mcpserver exposes survey sessions as MCP tools, so an agent can
// take a survey over the Model Context Protocol.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/surveyd/pkg/service"
)

// NewServer creates an MCP server with the survey tools registered.
func NewServer(version string, svc *service.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"surveyd",
		version,
		server.WithToolCapabilities(true),
	)
	h := &Handlers{Service: svc}

	s.AddTool(
		mcp.NewTool("survey/newsession",
			mcp.WithDescription("Start a session on a survey and return its session token"),
			mcp.WithString("surveyid", mcp.Required(), mcp.Description("Survey identifier")),
		),
		h.HandleNewSession,
	)

	s.AddTool(
		mcp.NewTool("survey/next",
			mcp.WithDescription("Fetch the next question of a session"),
			mcp.WithString("sessionid", mcp.Required(), mcp.Description("Session token")),
		),
		h.HandleNext,
	)

	s.AddTool(
		mcp.NewTool("survey/answer",
			mcp.WithDescription("Answer a question and advance along its branch"),
			mcp.WithString("sessionid", mcp.Required(), mcp.Description("Session token")),
			mcp.WithString("question", mcp.Required(), mcp.Description("Question id")),
			mcp.WithString("value", mcp.Description("Answer value")),
		),
		h.HandleAnswer,
	)

	s.AddTool(
		mcp.NewTool("survey/delete",
			mcp.WithDescription("Withdraw an answer and step back one question"),
			mcp.WithString("sessionid", mcp.Required(), mcp.Description("Session token")),
			mcp.WithString("question", mcp.Required(), mcp.Description("Question id")),
		),
		h.HandleDelete,
	)

	s.AddTool(
		mcp.NewTool("survey/analyse",
			mcp.WithDescription("Evaluate the recorded answers and reset the session"),
			mcp.WithString("sessionid", mcp.Required(), mcp.Description("Session token")),
		),
		h.HandleAnalyse,
	)

	s.AddTool(
		mcp.NewTool("survey/validate",
			mcp.WithDescription("Validate a survey definition file (.json, .yaml, .yml)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the survey definition")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("survey/schema",
			mcp.WithDescription("Export the JSON Schema of a survey question record"),
		),
		HandleSchema,
	)

	return s
}

// ServeStdio serves s over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
