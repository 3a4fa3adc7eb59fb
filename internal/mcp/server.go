// Package mcp exposes the search service over the Model Context Protocol.
package mcp

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/search"
	"github.com/standardbeagle/csearch/internal/version"
)

// Server wires the search coordinator to an MCP stdio server.
type Server struct {
	server *mcp.Server
	coord  *search.Coordinator

	// defaultWorkspace is used when a tool call omits the workspace.
	defaultWorkspace string
	defaultMaxTokens int
	preserveDefault  bool
	resourceTTL      time.Duration
}

// Options configure the MCP surface.
type Options struct {
	DefaultWorkspace string
	DefaultMaxTokens int

	// PreserveOverflow is the default for search calls that do not set
	// preserve_overflow themselves.
	PreserveOverflow bool

	// ResourceTTL bounds the lifetime of preserved overflow payloads.
	// Zero means the store default.
	ResourceTTL time.Duration
}

// NewServer creates the MCP server and registers all tools.
func NewServer(coord *search.Coordinator, opts Options) *Server {
	s := &Server{
		coord:            coord,
		defaultWorkspace: opts.DefaultWorkspace,
		defaultMaxTokens: opts.DefaultMaxTokens,
		preserveDefault:  opts.PreserveOverflow,
		resourceTTL:      opts.ResourceTTL,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "csearch",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until ctx ends. Nothing else may write to
// stdout while this runs.
func (s *Server) Run(ctx context.Context) error {
	debug.LogMCP("serving over stdio\n")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Token-budgeted code search across a workspace. Responses are shaped to fit max_tokens; overflow is preserved behind a resource URI fetchable with get_resource.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pattern": {
					Type:        "string",
					Description: "Search pattern. Supports * and ? wildcards.",
				},
				"workspace": {
					Type:        "string",
					Description: "Workspace root directory. Defaults to the directory the server was started in.",
				},
				"max": {
					Type:        "integer",
					Description: "Maximum raw results pulled from the index",
				},
				"filter": {
					Type:        "string",
					Description: "File glob, e.g. \"**/*.go\"",
				},
				"case_insensitive": {
					Type:        "boolean",
					Description: "Case-insensitive matching",
				},
				"max_tokens": {
					Type:        "integer",
					Description: "Response token budget",
				},
				"mode": {
					Type:        "string",
					Description: "Reduction mode: default (index order), priority (highest scores), diverse (spread across directories)",
				},
				"preserve_overflow": {
					Type:        "boolean",
					Description: "Store results cut by the budget behind a resource URI (defaults to the server's configured preserve_overflow)",
				},
			},
			Required: []string{"pattern"},
		},
	}, s.handleSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_resource",
		Description: "Fetch the full result set preserved by an earlier truncated search, by its csearch://resource/ URI.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"uri": {
					Type:        "string",
					Description: "Resource URI from a search response's meta.resource_uri",
				},
			},
			Required: []string{"uri"},
		},
	}, s.handleGetResource)

	s.server.AddTool(&mcp.Tool{
		Name:        "workspace_status",
		Description: "Report handle pool occupancy, response cache effectiveness and overflow store health.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleStatus)

	s.server.AddTool(&mcp.Tool{
		Name:        "evict_workspace",
		Description: "Retire a workspace's index handle so the next search reopens it. With rebuild, the persisted index is deleted and built from scratch.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"workspace": {
					Type:        "string",
					Description: "Workspace root directory",
				},
				"rebuild": {
					Type:        "boolean",
					Description: "Also delete the persisted index",
				},
			},
			Required: []string{"workspace"},
		},
	}, s.handleEvict)
}
