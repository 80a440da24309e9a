package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/chenhan1218/autopilot/internal/await"
	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/overlay"
	"github.com/chenhan1218/autopilot/internal/proxy"
	"github.com/chenhan1218/autopilot/internal/query"
	"github.com/chenhan1218/autopilot/internal/transport"
	"github.com/chenhan1218/autopilot/internal/version"
)

// mcpServer exposes the bus operations as MCP tools. Each tool call
// opens its own session; MCP agents interleave calls against multiple
// sources, so no connection is held across calls.
type mcpServer struct {
	busAddr string
	mcp     *mcpserver.MCPServer
}

// newMCPServer creates and configures an MCP server with all autopilot tools.
func newMCPServer(cfg MCPConfig) *mcpServer {
	s := &mcpServer{busAddr: cfg.BusAddr}
	s.mcp = mcpserver.NewMCPServer(
		"autopilot",
		version.Version,
	)
	s.registerTools()
	return s
}

func (s *mcpServer) registerTools() {
	// sources
	s.mcp.AddTool(
		mcp.NewTool("sources",
			mcp.WithDescription("List applications exposing an introspection endpoint on the bus"),
			mcp.WithNumber("pid", mcp.Description("Filter by process ID")),
		),
		s.handleSources,
	)

	// tree
	s.mcp.AddTool(
		mcp.NewTool("tree",
			mcp.WithDescription("List an application's introspection tree in depth-first order, optionally filtered by a case-insensitive text search over type names and string attributes"),
			mcp.WithString("source", mcp.Description("Source id (default: the only source on the bus)")),
			mcp.WithString("search", mcp.Description("Filter to nodes matching this text")),
		),
		s.handleTree,
	)

	// query
	s.mcp.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription("Search a UI tree for nodes matching a type name and attribute equalities. Conditions combine with AND."),
			mcp.WithString("source", mcp.Description("Source id (default: the only source on the bus)")),
			mcp.WithString("type", mcp.Description("Match nodes with this type name")),
			mcp.WithArray("attrs", mcp.Description("Attribute equalities as 'name=value' strings")),
			mcp.WithBoolean("single", mcp.Description("Require exactly one match; fail on zero or many")),
			mcp.WithBoolean("prune", mcp.Description("Skip the subtree below each match")),
		),
		s.handleQuery,
	)

	// wait
	s.mcp.AddTool(
		mcp.NewTool("wait",
			mcp.WithDescription("Poll a UI tree until a node matching the query appears (or, with gone, disappears) or the timeout elapses"),
			mcp.WithString("source", mcp.Description("Source id (default: the only source on the bus)")),
			mcp.WithString("type", mcp.Description("Wait for a node with this type name")),
			mcp.WithArray("attrs", mcp.Description("Attribute equalities as 'name=value' strings")),
			mcp.WithBoolean("gone", mcp.Description("Invert: wait until NO node matches")),
			mcp.WithNumber("timeout", mcp.Description("Max seconds to wait (default: 30)")),
			mcp.WithNumber("interval", mcp.Description("Initial polling interval in ms (default: 100, doubles up to 1s)")),
		),
		s.handleWait,
	)

	// rect
	s.mcp.AddTool(
		mcp.NewTool("rect",
			mcp.WithDescription("Return the on-screen rectangle of a node, recomputed from current state. Non-visual nodes report visual: false."),
			mcp.WithString("source", mcp.Description("Source id (default: the only source on the bus)")),
			mcp.WithNumber("id", mcp.Description("Node ID"), mcp.Required()),
		),
		s.handleRect,
	)
}

// toText serializes a result to YAML for an MCP response.
func toText(v interface{}) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}

// session opens a session to the named source for one tool call.
func (s *mcpServer) session(ctx context.Context, sourceID string) (*proxy.Session, error) {
	bus := transport.NewWireBus(s.busAddr)
	return connectSource(ctx, bus, sourceID)
}

func (s *mcpServer) handleSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	pid := IntParam(params, "pid", 0)

	bus := transport.NewWireBus(s.busAddr)
	sources, err := bus.ListSources(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if pid != 0 {
		var filtered []introspection.SourceInfo
		for _, src := range sources {
			if src.PID == pid {
				filtered = append(filtered, src)
			}
		}
		sources = filtered
	}
	return mcp.NewToolResultText(toText(sources)), nil
}

func (s *mcpServer) handleTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	sourceID := StringParam(params, "source", "")
	search := StringParam(params, "search", "")

	sess, err := s.session(ctx, sourceID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer sess.Close()

	root, err := sess.Root(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := query.Any()
	if search != "" {
		q = q.WithFunc(query.TextMatch(search))
	}
	matches, err := query.Select(ctx, root, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(toText(nodeInfos(matches))), nil
}

func (s *mcpServer) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	sourceID := StringParam(params, "source", "")
	typeName := StringParam(params, "type", "")
	attrs := StringSliceParam(params, "attrs")
	single := BoolParam(params, "single", false)
	prune := BoolParam(params, "prune", false)

	q, err := buildQuery(typeName, attrs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if prune {
		q = q.MatchesAndStop()
	}

	sess, err := s.session(ctx, sourceID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer sess.Close()

	root, err := sess.Root(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if single {
		p, err := query.SelectSingle(ctx, root, q)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(toText([]nodeInfo{nodeInfoFrom(p)})), nil
	}

	matches, err := query.Select(ctx, root, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(toText(nodeInfos(matches))), nil
}

func (s *mcpServer) handleWait(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	sourceID := StringParam(params, "source", "")
	typeName := StringParam(params, "type", "")
	attrs := StringSliceParam(params, "attrs")
	gone := BoolParam(params, "gone", false)
	timeoutSec := IntParam(params, "timeout", 0)
	intervalMs := IntParam(params, "interval", 0)

	q, err := buildQuery(typeName, attrs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	timeout := defaultWaitTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}
	opts := await.Options{}
	if intervalMs > 0 {
		opts.Interval = time.Duration(intervalMs) * time.Millisecond
	}

	sess, err := s.session(ctx, sourceID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer sess.Close()

	if gone {
		if err := await.UntilGone(ctx, sess, q, timeout, opts); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(toText(map[string]interface{}{
			"ok":    true,
			"query": q.String() + " (gone)",
		})), nil
	}

	p, err := await.For(ctx, sess, q, timeout, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(toText(nodeInfoFrom(p))), nil
}

func (s *mcpServer) handleRect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	sourceID := StringParam(params, "source", "")
	id := IntParam(params, "id", 0)
	if id == 0 {
		return mcp.NewToolResultError("id is required"), nil
	}

	sess, err := s.session(ctx, sourceID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer sess.Close()

	p, err := sess.Proxy(ctx, introspection.NodeID(id))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rect, visual, err := overlay.RectangleOf(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := map[string]interface{}{"id": id, "visual": visual}
	if visual {
		result["rect"] = rect
	}
	return mcp.NewToolResultText(toText(result)), nil
}
