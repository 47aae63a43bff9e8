// Package mcp implements the Model Context Protocol server for the responder.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/omalmisr/omal-responder/internal/admission"
	"github.com/omalmisr/omal-responder/internal/classifier"
	"github.com/omalmisr/omal-responder/internal/knowledge"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/responder"
	"github.com/omalmisr/omal-responder/internal/services"
)

const (
	// defaultSearchLimit is the default number of knowledge results.
	defaultSearchLimit = 5

	// maxSearchLimit caps search_knowledge results.
	maxSearchLimit = 50
)

// Deps are the engine components exposed as tools. Any of them may be
// nil; the matching tool then returns an error result.
type Deps struct {
	Responder  *responder.Responder
	Matcher    *knowledge.Matcher
	Detector   *services.Detector
	Classifier classifier.Classifier
	Filter     *admission.Filter
	Logger     *slog.Logger
}

// Server wraps an MCPServer with responder dependencies.
type Server struct {
	mcp        *mcpserver.MCPServer
	responder  *responder.Responder
	matcher    *knowledge.Matcher
	detector   *services.Detector
	classifier classifier.Classifier
	filter     *admission.Filter
	logger     *slog.Logger
}

// NewServer creates a new MCP server.
func NewServer(d Deps, version string) *Server {
	s := &Server{
		responder:  d.Responder,
		matcher:    d.Matcher,
		detector:   d.Detector,
		classifier: d.Classifier,
		filter:     d.Filter,
		logger:     d.Logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"omal-responder",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildReplyTool(), s.handleReply)
	mcpSrv.AddTool(buildSearchKnowledgeTool(), s.handleSearchKnowledge)
	mcpSrv.AddTool(buildDetectServiceTool(), s.handleDetectService)
	mcpSrv.AddTool(buildClassifyTool(), s.handleClassify)
	mcpSrv.AddTool(buildShouldRespondTool(), s.handleShouldRespond)
	mcpSrv.AddTool(buildClearSessionTool(), s.handleClearSession)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleReply is the exported handler for the "reply" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleReply(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleReply(ctx, req)
}

// HandleSearchKnowledge is the exported handler for the "search_knowledge" tool.
func (s *Server) HandleSearchKnowledge(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearchKnowledge(ctx, req)
}

// HandleDetectService is the exported handler for the "detect_service" tool.
func (s *Server) HandleDetectService(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleDetectService(ctx, req)
}

// HandleClassify is the exported handler for the "classify" tool.
func (s *Server) HandleClassify(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleClassify(ctx, req)
}

// HandleShouldRespond is the exported handler for the "should_respond" tool.
func (s *Server) HandleShouldRespond(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleShouldRespond(ctx, req)
}

// HandleClearSession is the exported handler for the "clear_session" tool.
func (s *Server) HandleClearSession(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleClearSession(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

func requiredText(req mcpgo.CallToolRequest, name string) (string, *mcpgo.CallToolResult) {
	v := req.GetString(name, "")
	if strings.TrimSpace(v) == "" {
		return "", mcpgo.NewToolResultErrorf("%s is required and must not be empty", name)
	}
	return v, nil
}

func channelArg(req mcpgo.CallToolRequest) (models.Channel, *mcpgo.CallToolResult) {
	ch := models.Channel(req.GetString("channel", string(models.ChannelPrivate)))
	if !ch.IsValid() {
		return "", mcpgo.NewToolResultErrorf("invalid channel %q: must be private or public", ch)
	}
	return ch, nil
}

// --- tool definitions ---

func buildReplyTool() mcpgo.Tool {
	return mcpgo.NewTool("reply",
		mcpgo.WithDescription("Run a full conversational turn and return the reply the sender would receive."),
		mcpgo.WithString("sender_id",
			mcpgo.Required(),
			mcpgo.Description("Sender id for private messages, comment id for public comments"),
		),
		mcpgo.WithString("message",
			mcpgo.Required(),
			mcpgo.Description("The inbound message text"),
		),
		mcpgo.WithString("channel",
			mcpgo.Description("private (default) or public"),
		),
	)
}

func buildSearchKnowledgeTool() mcpgo.Tool {
	return mcpgo.NewTool("search_knowledge",
		mcpgo.WithDescription("Rank knowledge-base entries by word overlap with a query."),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The question to search for"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: 5)"),
		),
	)
}

func buildDetectServiceTool() mcpgo.Tool {
	return mcpgo.NewTool("detect_service",
		mcpgo.WithDescription("Find the service link that a message asks about, if any."),
		mcpgo.WithString("message",
			mcpgo.Required(),
			mcpgo.Description("The inbound message text"),
		),
	)
}

func buildClassifyTool() mcpgo.Tool {
	return mcpgo.NewTool("classify",
		mcpgo.WithDescription("Classify a message as job_seeker, investor, media, company or none."),
		mcpgo.WithString("message",
			mcpgo.Required(),
			mcpgo.Description("The inbound message text"),
		),
	)
}

func buildShouldRespondTool() mcpgo.Tool {
	return mcpgo.NewTool("should_respond",
		mcpgo.WithDescription("Decide whether a public comment deserves a reply, with the reason."),
		mcpgo.WithString("message",
			mcpgo.Required(),
			mcpgo.Description("The comment text"),
		),
	)
}

func buildClearSessionTool() mcpgo.Tool {
	return mcpgo.NewTool("clear_session",
		mcpgo.WithDescription("Forget the dialogue state of a sender."),
		mcpgo.WithString("sender_id",
			mcpgo.Required(),
			mcpgo.Description("The sender whose session is cleared"),
		),
		mcpgo.WithString("channel",
			mcpgo.Description("private (default) or public"),
		),
	)
}

// --- tool handlers ---

// handleReply runs a full turn through the responder.
func (s *Server) handleReply(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.responder == nil {
		return mcpgo.NewToolResultError("responder is unavailable"), nil
	}
	sender, errRes := requiredText(req, "sender_id")
	if errRes != nil {
		return errRes, nil
	}
	message, errRes := requiredText(req, "message")
	if errRes != nil {
		return errRes, nil
	}
	ch, errRes := channelArg(req)
	if errRes != nil {
		return errRes, nil
	}

	var out *responder.TurnOutcome
	var err error
	if ch == models.ChannelPublic {
		out, err = s.responder.HandleComment(ctx, sender, message)
	} else {
		out, err = s.responder.HandleMessage(ctx, sender, message)
	}
	if err != nil && (out == nil || out.Reply == "") {
		return mcpgo.NewToolResultErrorf("turn failed: %s", err.Error()), nil
	}
	s.logger.Info("mcp: reply", "sender", sender, "channel", ch, "source", out.Source)
	return toolResultJSON(out)
}

// handleSearchKnowledge ranks knowledge entries.
func (s *Server) handleSearchKnowledge(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.matcher == nil {
		return mcpgo.NewToolResultError("knowledge base is unavailable"), nil
	}
	query, errRes := requiredText(req, "query")
	if errRes != nil {
		return errRes, nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results := s.matcher.Top(query, limit)
	if results == nil {
		results = []knowledge.Scored{}
	}
	return toolResultJSON(map[string]any{
		"results": results,
		"best":    s.matcher.Search(query),
	})
}

// handleDetectService reports the matched service, or null.
func (s *Server) handleDetectService(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.detector == nil {
		return mcpgo.NewToolResultError("service detector is unavailable"), nil
	}
	message, errRes := requiredText(req, "message")
	if errRes != nil {
		return errRes, nil
	}
	return toolResultJSON(map[string]any{"service": s.detector.Detect(message)})
}

// handleClassify reports the message category.
func (s *Server) handleClassify(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.classifier == nil {
		return mcpgo.NewToolResultError("classifier is unavailable"), nil
	}
	message, errRes := requiredText(req, "message")
	if errRes != nil {
		return errRes, nil
	}
	cat := s.classifier.Classify(message)
	return toolResultJSON(map[string]any{"category": cat, "label": cat.Label()})
}

// handleShouldRespond runs the comment admission filter.
func (s *Server) handleShouldRespond(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.filter == nil {
		return mcpgo.NewToolResultError("comment filter is unavailable"), nil
	}
	message := req.GetString("message", "")
	return toolResultJSON(s.filter.Evaluate(message))
}

// handleClearSession forgets a sender's dialogue state.
func (s *Server) handleClearSession(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.responder == nil {
		return mcpgo.NewToolResultError("responder is unavailable"), nil
	}
	sender, errRes := requiredText(req, "sender_id")
	if errRes != nil {
		return errRes, nil
	}
	ch, errRes := channelArg(req)
	if errRes != nil {
		return errRes, nil
	}
	if err := s.responder.ClearSession(sender, ch); err != nil {
		if responder.IsSessionNotFound(err) {
			return mcpgo.NewToolResultErrorf("no session for %q", sender), nil
		}
		return mcpgo.NewToolResultErrorf("clear failed: %s", err.Error()), nil
	}
	s.logger.Info("mcp: session cleared", "sender", sender, "channel", ch)
	return toolResultJSON(map[string]any{"sender_id": sender, "cleared": true})
}
