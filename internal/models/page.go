// Package models defines the domain types for codewiki.
package models

import "time"

// Category classifies a documentation page.
type Category string

// Known page categories.
const (
	CategoryConcept   Category = "concept"
	CategoryComponent Category = "component"
	CategoryGuide     Category = "guide"
	CategoryMeta      Category = "meta"
	CategoryHistory   Category = "history"
	CategoryOther     Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryConcept, CategoryComponent, CategoryGuide, CategoryMeta, CategoryHistory, CategoryOther:
		return true
	}
	return false
}

// Page is a parsed documentation page in the corpus.
type Page struct {
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Category Category `json:"category"`
	Tags     []string `json:"tags"`
	// Related holds the declared relations (corpus paths) from the header.
	Related []string `json:"related"`
	Body    string   `json:"body"`
	Updated string   `json:"updated,omitempty"`
	// Header is the raw metadata block, kept so unchanged headers are
	// written back byte for byte.
	Header string `json:"-"`
	// Checksum is the digest of the bytes the page was parsed from; empty
	// for pages that were not read from storage.
	Checksum string `json:"-"`
}

// Clone returns a deep copy of p.
func (p *Page) Clone() *Page {
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	cp.Related = append([]string(nil), p.Related...)
	return &cp
}

// PageMetadata is a lightweight representation returned by list operations.
type PageMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SurfaceForm records how a mention appeared in the body.
type SurfaceForm string

const (
	SurfaceEmphasized SurfaceForm = "emphasized"
	SurfacePlain      SurfaceForm = "plain"
)

// Mention is a candidate occurrence of one page's title in another page's body.
// Offset and Length are byte positions in the source body.
type Mention struct {
	Source   string      `json:"source"`
	Target   string      `json:"target"`
	Offset   int         `json:"offset"`
	Length   int         `json:"length"`
	Text     string      `json:"text"`
	Surface  SurfaceForm `json:"surface"`
	Priority int         `json:"priority"`
}

// End returns the offset just past the mention span.
func (m Mention) End() int {
	return m.Offset + m.Length
}

// RelationKind classifies a relation edge.
type RelationKind string

const (
	RelationExplicit   RelationKind = "explicit"
	RelationImplicit   RelationKind = "implicit"
	RelationStructural RelationKind = "structural"
)

// RelationEdge represents a directed, typed edge between two pages.
type RelationEdge struct {
	Source string       `json:"source"`
	Target string       `json:"target"`
	Kind   RelationKind `json:"kind"`
	Weight float64      `json:"weight"`
}

// Link represents a directed edge between two pages as stored in the index.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "inline" or "related"
	// TitleKey is the lowercased page title a wikilink names. When Target
	// is not a page, the link points at the first page with that title.
	TitleKey string `json:"-"`
}
