package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/csearch/internal/search"
	"github.com/standardbeagle/csearch/internal/searchtypes"
)

// SearchParams are the arguments of the search tool.
type SearchParams struct {
	Pattern          string `json:"pattern"`
	Workspace        string `json:"workspace,omitempty"`
	Max              int    `json:"max,omitempty"`
	Filter           string `json:"filter,omitempty"`
	CaseInsensitive  bool   `json:"case_insensitive,omitempty"`
	MaxTokens        int    `json:"max_tokens,omitempty"`
	Mode             string `json:"mode,omitempty"`
	PreserveOverflow *bool  `json:"preserve_overflow,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Manual deserialization for better error messages than schema
	// validation gives.
	var params SearchParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("search", fmt.Errorf("invalid parameters: %w", err))
	}
	if strings.TrimSpace(params.Pattern) == "" {
		return createErrorResponse("search", fmt.Errorf("'pattern' is required and must be non-empty"))
	}

	workspace := params.Workspace
	if workspace == "" {
		workspace = s.defaultWorkspace
	}
	if workspace == "" {
		return createErrorResponse("search", fmt.Errorf("'workspace' is required when the server has no default workspace"))
	}

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.defaultMaxTokens
	}
	preserve := s.preserveDefault
	if params.PreserveOverflow != nil {
		preserve = *params.PreserveOverflow
	}

	resp, err := s.coord.Search(ctx, search.Request{
		Workspace: workspace,
		Query: searchtypes.Query{
			Pattern:         params.Pattern,
			MaxResults:      params.Max,
			CaseInsensitive: params.CaseInsensitive,
			FilePattern:     params.Filter,
		},
		Budget: searchtypes.Budget{
			MaxTokens: maxTokens,
			Mode:      searchtypes.ResponseMode(params.Mode),
		},
		PreserveOverflow: preserve,
		ResourceTTL:      s.resourceTTL,
	})
	if err != nil {
		return createErrorResponse("search", err)
	}
	return createJSONResponse(resp)
}

// ResourceParams are the arguments of the get_resource tool.
type ResourceParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleGetResource(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ResourceParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("get_resource", fmt.Errorf("invalid parameters: %w", err))
	}
	if params.URI == "" {
		return createErrorResponse("get_resource", fmt.Errorf("'uri' is required"))
	}

	payload, err := s.coord.GetResource(ctx, params.URI)
	if err != nil {
		return createErrorResponse("get_resource", err)
	}

	// The payload is already the serialized overflow document; return it
	// verbatim rather than re-encoding.
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(payload)},
		},
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createJSONResponse(s.coord.Status())
}

// EvictParams are the arguments of the evict_workspace tool.
type EvictParams struct {
	Workspace string `json:"workspace"`
	Rebuild   bool   `json:"rebuild,omitempty"`
}

func (s *Server) handleEvict(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params EvictParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("evict_workspace", fmt.Errorf("invalid parameters: %w", err))
	}
	if params.Workspace == "" {
		return createErrorResponse("evict_workspace", fmt.Errorf("'workspace' is required"))
	}

	if err := s.coord.EvictWorkspace(params.Workspace, params.Rebuild); err != nil {
		return createErrorResponse("evict_workspace", err)
	}
	return createJSONResponse(map[string]interface{}{
		"success":   true,
		"workspace": params.Workspace,
		"rebuild":   params.Rebuild,
	})
}
