// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes codewiki tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/index"
	"github.com/starford/codewiki/internal/pageservice"
)

const formatURI = "codewiki://page-format"

// Server wraps the MCP server with codewiki tools.
type Server struct {
	mcp *server.MCPServer
	svc *pageservice.Service
}

// New creates a new MCP server with all codewiki tools registered.
func New(svc *pageservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"codewiki",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Rank documentation pages against a query. Title matches weigh most, then category, tags and body occurrences."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read a documentation page with its metadata and backlinks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the page (e.g. concepts/auth.md)")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List indexed pages, optionally filtered by category or tag."),
		mcp.WithString("category", mcp.Description("Optional category filter")),
		mcp.WithString("tag", mcp.Description("Optional tag filter")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("table_of_contents",
		mcp.WithDescription("Headings of a page with their levels and anchors."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the page")),
	), s.tableOfContents)

	s.mcp.AddTool(mcp.NewTool("related_pages",
		mcp.WithDescription("Pages related to a page: scored matches plus the grouped relations and the rendered see-also section."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the page")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of scored matches (default 10)")),
	), s.relatedPages)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all pages that link to the specified page."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the page to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("corpus_health",
		mcp.WithDescription("Graph health report: orphans, dead links, most and least linked pages, per-category counts."),
	), s.corpusHealth)

	s.mcp.AddTool(mcp.NewTool("link_corpus",
		mcp.WithDescription("Rewrite plain title mentions into Markdown links across the corpus. Safe to repeat."),
		mcp.WithBoolean("dry_run", mcp.Description("Report the changes without writing any page")),
	), s.linkCorpus)

	s.mcp.AddTool(mcp.NewTool("get_page_format",
		mcp.WithDescription("Returns the documentation page format. Call this before editing pages."),
	), s.getPageFormat)

	// Resource: page format.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Page Format",
			mcp.WithResourceDescription("Markdown page format understood by codewiki."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(path string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.GetPage(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(page)
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, _, err := s.svc.ListPages(ctx, index.ListQuery{
		Limit:    1000,
		Category: req.GetString("category", ""),
		Tag:      req.GetString("tag", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	paths := make([]string, 0, len(rows))
	for _, r := range rows {
		paths = append(paths, r.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) tableOfContents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.svc.TableOfContents(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(entries)
}

func (s *Server) relatedPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scored, err := s.svc.Related(ctx, path, req.GetInt("limit", 0))
	if err != nil {
		return toolError(path, err), nil
	}
	view, err := s.svc.Relations(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(map[string]any{
		"path":      path,
		"related":   scored,
		"relations": view.Relations,
		"see_also":  view.SeeAlso,
	})
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) corpusHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.Health(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) linkCorpus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.Link(ctx, pageservice.LinkOptions{DryRun: req.GetBool("dry_run", false)})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) getPageFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PageFormat), nil
}

func (s *Server) readPageFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PageFormat,
		},
	}, nil
}
