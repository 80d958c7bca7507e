package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/index"
	"github.com/starford/codewiki/internal/pageservice"
	"github.com/starford/codewiki/internal/sse"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *pageservice.Service
	events *sse.Broker
}

// NewHandler creates a new Handler.
func NewHandler(svc *pageservice.Service) *Handler {
	return &Handler{svc: svc}
}

// pagePath extracts the page path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. concepts%2Fauth.md).
func pagePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps domain errors to HTTP responses.
func writeError(w http.ResponseWriter, op string, err error, attrs ...slog.Attr) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody("a link pass is already running"))
	default:
		args := []any{slog.String("error", err.Error())}
		for _, a := range attrs {
			args = append(args, a)
		}
		slog.Error(op+" failed", args...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListPages handles GET /api/pages.
//
//	@Summary		List indexed pages with optional pagination and filtering
//	@Tags			pages
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			category	query		string	false	"Filter by category"
//	@Param			tag			query		string	false	"Filter by tag"
//	@Param			sort		query		string	false	"Sort field"	Enums(path, title, updated)
//	@Success		200			{object}	PageListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.svc.ListPages(r.Context(), index.ListQuery{
		Limit:    limit,
		Offset:   offset,
		Category: q.Get("category"),
		Tag:      q.Get("tag"),
		Sort:     q.Get("sort"),
	})
	if err != nil {
		writeError(w, "list pages", err)
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: rows, Total: total})
}

// GetPage handles GET /api/pages/*.
//
//	@Summary		Get a single page with its backlinks
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Page path"
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	page, err := h.svc.GetPage(r.Context(), path)
	if err != nil {
		writeError(w, "get page", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Search handles GET /api/search.
//
//	@Summary		Rank pages against a query
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// TableOfContents handles GET /api/toc/*.
//
//	@Summary		Table of contents of a page
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Page path"
//	@Success		200		{object}	TOCResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/toc/{path} [get]
func (h *Handler) TableOfContents(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	entries, err := h.svc.TableOfContents(r.Context(), path)
	if err != nil {
		writeError(w, "toc", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, TOCResponse{Path: path, Entries: entries})
}

// Related handles GET /api/related/*.
//
//	@Summary		Pages related to a page, best first
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Page path"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	RelatedResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/related/{path} [get]
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	related, err := h.svc.Related(r.Context(), path, limit)
	if err != nil {
		writeError(w, "related", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, RelatedResponse{Path: path, Related: related})
}

// Relations handles GET /api/relations/*.
//
//	@Summary		Explicit, implicit and structural relations of a page
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Page path"
//	@Success		200		{object}	RelationsResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/relations/{path} [get]
func (h *Handler) Relations(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	view, err := h.svc.Relations(r.Context(), path)
	if err != nil {
		writeError(w, "relations", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Report handles GET /api/report.
//
//	@Summary		Graph health report of the corpus
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	ReportResponse
//	@Security		BearerAuth
//	@Router			/report [get]
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Health(r.Context())
	if err != nil {
		writeError(w, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the link graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}

// Link handles POST /api/link.
//
//	@Summary		Rewrite title mentions into links across the corpus
//	@Tags			link
//	@Produce		json
//	@Param			dry_run	query		bool	false	"Report changes without writing"
//	@Success		200		{object}	LinkResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/link [post]
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	opts := pageservice.LinkOptions{DryRun: dryRun}
	if h.events != nil {
		opts.Progress = h.events.PublishLinkProgress
	}
	report, err := h.svc.Link(r.Context(), opts)
	if err != nil {
		writeError(w, "link", err)
		return
	}
	if h.events != nil {
		h.events.Publish(sse.Event{Type: sse.EventLinkFinished, Data: map[string]any{
			"run_id":      report.RunID,
			"dry_run":     report.DryRun,
			"changed":     len(report.Changed),
			"failed":      len(report.Failed),
			"links_added": report.LinksAdded,
		}})
	}
	writeJSON(w, http.StatusOK, report)
}
