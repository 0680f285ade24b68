// Package mcp exposes the memory chain to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sandevgo/memchain/internal/chain"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
)

// Appender writes new records after the agent's head.
type Appender interface {
	AppendNext(ctx context.Context, payload json.RawMessage, opts ...chain.AppendOption) (chain.AppendResult, error)
	Agent() string
}

type PointerReader interface {
	GetPointer(ctx context.Context, agent string) (string, error)
}

// Verifier walks a chain back to genesis.
type Verifier interface {
	ReplayFromHead(ctx context.Context, agent string) ([]chain.Link, error)
	Replay(ctx context.Context, head, agent string) ([]chain.Link, error)
}

type Deps struct {
	// Appender is nil for read-only servers.
	Appender Appender
	Pointers PointerReader
	Verifier Verifier
	Store    core.ContentStore
	// DefaultAgent is used when a tool call names no agent.
	DefaultAgent string
}

type Server struct {
	mcp  *server.MCPServer
	deps Deps
}

func New(deps Deps) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			core.AppName,
			core.AppVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		deps: deps,
	}
	s.mcp.AddTools(s.tools()...)
	return s
}

const instructions = `memchain keeps an agent's memory as a signed, hash-linked chain of JSON records.
Use memory_append to add a record, memory_pointer to read the current head,
memory_get to fetch one record and memory_verify to check the whole chain.`

func (s *Server) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{
			Tool: mcp.NewTool("memory_pointer",
				mcp.WithDescription("Return the CID of the latest anchored memory record of an agent."),
				mcp.WithString("agent", mcp.Description("0x address; defaults to the configured agent")),
			),
			Handler: s.handlePointer,
		},
		{
			Tool: mcp.NewTool("memory_get",
				mcp.WithDescription("Fetch and decode one memory record by CID."),
				mcp.WithString("cid", mcp.Required(), mcp.Description("record CID")),
			),
			Handler: s.handleGet,
		},
		{
			Tool: mcp.NewTool("memory_verify",
				mcp.WithDescription("Walk an agent's memory chain back to genesis, checking every signature and link."),
				mcp.WithString("agent", mcp.Description("0x address; defaults to the configured agent")),
				mcp.WithString("head", mcp.Description("start from this CID instead of the anchored pointer")),
			),
			Handler: s.handleVerify,
		},
	}
	if s.deps.Appender != nil {
		tools = append(tools, server.ServerTool{
			Tool: mcp.NewTool("memory_append",
				mcp.WithDescription("Sign a JSON object, store it as the next memory record and anchor it on chain."),
				mcp.WithString("payload", mcp.Required(), mcp.Description("JSON object to remember")),
			),
			Handler: s.handleAppend,
		})
	}
	return tools
}

// Serve speaks MCP over in/out until ctx ends or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(errorWriter{ctx: ctx}, "", 0))
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// errorWriter forwards the stdio server's error log into zerolog.
type errorWriter struct {
	ctx context.Context
}

func (w errorWriter) Write(p []byte) (int, error) {
	log.FromCtx(w.ctx).Error().Str("component", "mcp").Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

func (s *Server) agent(req mcp.CallToolRequest) string {
	if a := strings.TrimSpace(req.GetString("agent", "")); a != "" {
		return a
	}
	return s.deps.DefaultAgent
}
