package api

import (
	"github.com/starford/codewiki/internal/health"
	"github.com/starford/codewiki/internal/index"
	"github.com/starford/codewiki/internal/linker"
	"github.com/starford/codewiki/internal/pageservice"
	"github.com/starford/codewiki/internal/search"
)

// PageDetail is the full page response type (aliased from the domain layer).
type PageDetail = pageservice.PageDetail

// PageListResponse wraps paginated page listings.
type PageListResponse struct {
	Pages []index.PageRow `json:"pages" validate:"required"`
	Total int             `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps ranked search results.
type SearchResponse struct {
	Results []search.Result `json:"results" validate:"required"`
}

// TOCResponse wraps the table of contents of a page.
type TOCResponse struct {
	Path    string            `json:"path" example:"concepts/auth.md" validate:"required"`
	Entries []search.TOCEntry `json:"entries" validate:"required"`
}

// RelatedResponse wraps scored related pages.
type RelatedResponse struct {
	Path    string               `json:"path" example:"concepts/auth.md" validate:"required"`
	Related []search.RelatedPage `json:"related" validate:"required"`
}

// RelationsResponse is the grouped relations of a page (aliased from the domain layer).
type RelationsResponse = pageservice.RelationsView

// ReportResponse is the graph health report (aliased from the domain layer).
type ReportResponse = health.Report

// GraphResponse wraps the link graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []index.GraphLink `json:"links" validate:"required"`
}

// LinkResponse is the summary of a link pass (aliased from the domain layer).
type LinkResponse = linker.BatchReport
