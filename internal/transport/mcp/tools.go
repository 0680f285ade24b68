package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/memchain/internal/chain"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
)

type appendResult struct {
	CID         string `json:"cid"`
	PreviousCID string `json:"previousCid,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Anchored    bool   `json:"anchored"`
}

type linkView struct {
	CID         string          `json:"cid"`
	PreviousCID string          `json:"previousCid,omitempty"`
	Timestamp   string          `json:"timestamp"`
	Data        json.RawMessage `json:"data,omitempty"`
}

type verifyResult struct {
	Agent  string     `json:"agent"`
	Length int        `json:"length"`
	Links  []linkView `json:"links"`
}

func (s *Server) handleAppend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := req.RequireString("payload")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.deps.Appender.AppendNext(ctx, json.RawMessage(payload))
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("cid", res.CID).Msg("mcp append failed")
		// A stored but unanchored record is still worth reporting.
		if errors.Is(err, core.ErrAnchor) && res.CID != "" {
			return jsonResult(appendResult{CID: res.CID, PreviousCID: res.Record.PreviousCID}, err.Error())
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(appendResult{
		CID:         res.CID,
		PreviousCID: res.Record.PreviousCID,
		TxHash:      res.Receipt.TxHash,
		Anchored:    true,
	}, "")
}

func (s *Server) handlePointer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent := s.agent(req)
	if agent == "" {
		return mcp.NewToolResultError("agent is required"), nil
	}

	cid, err := s.deps.Pointers.GetPointer(ctx, agent)
	if errors.Is(err, core.ErrNotFound) {
		return mcp.NewToolResultText("agent " + agent + " has no memory yet"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(cid), nil
}

func (s *Server) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cid, err := req.RequireString("cid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := s.deps.Store.Get(ctx, cid)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := chain.DecodeRecord(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(newLinkView(chain.Link{CID: cid, Record: rec}, true), "")
}

func (s *Server) handleVerify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent := s.agent(req)
	if agent == "" {
		return mcp.NewToolResultError("agent is required"), nil
	}

	var (
		links []chain.Link
		err   error
	)
	if head := req.GetString("head", ""); head != "" {
		links, err = s.deps.Verifier.Replay(ctx, head, agent)
	} else {
		links, err = s.deps.Verifier.ReplayFromHead(ctx, agent)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := verifyResult{Agent: agent, Length: len(links), Links: make([]linkView, 0, len(links))}
	for _, l := range links {
		out.Links = append(out.Links, newLinkView(l, false))
	}
	return jsonResult(out, "")
}

func newLinkView(l chain.Link, withData bool) linkView {
	v := linkView{
		CID:         l.CID,
		PreviousCID: l.Record.PreviousCID,
		Timestamp:   l.Record.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if withData {
		v.Data = l.Record.Payload
	}
	return v
}

// jsonResult renders v as the tool output. A non-empty errMsg marks the
// result as an error while still carrying v.
func jsonResult(v any, errMsg string) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	if errMsg != "" {
		res := mcp.NewToolResultError(errMsg + "\n" + string(b))
		return res, nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
