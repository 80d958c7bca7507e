// Package pagefile reads and writes documentation pages: a YAML metadata
// header between leading --- delimiters followed by a Markdown body.
package pagefile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/codewiki/internal/models"
)

const delim = "---"

// stringList accepts both YAML sequences and a comma-separated scalar.
type stringList []string

func (l *stringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		*l = cleanList(items)
	case yaml.ScalarNode:
		*l = cleanList(strings.Split(n.Value, ","))
	default:
		return fmt.Errorf("pagefile: line %d: expected list", n.Line)
	}
	return nil
}

type header struct {
	Title    string     `yaml:"title"`
	Category string     `yaml:"category"`
	Tags     stringList `yaml:"tags"`
	Related  stringList `yaml:"related"`
	Updated  string     `yaml:"updated"`
}

// Parse builds a Page from raw file bytes. A missing or malformed header
// yields empty metadata; it never fails.
func Parse(pagePath string, data []byte) *models.Page {
	raw, inner, body, _ := splitHeader(string(data))
	h := decodeHeader(inner)

	p := &models.Page{
		Path:    pagePath,
		Title:   strings.TrimSpace(h.Title),
		Tags:    nonNil([]string(h.Tags)),
		Related: nonNil([]string(h.Related)),
		Body:    body,
		Updated: strings.TrimSpace(h.Updated),
		Header:  raw,

		Checksum: Checksum(data),
	}
	if p.Title == "" {
		p.Title = firstHeading(body)
	}
	p.Category = models.Category(strings.ToLower(strings.TrimSpace(h.Category)))
	if !p.Category.Valid() {
		p.Category = InferCategory(pagePath)
	}
	return p
}

// Encode renders p back to file bytes. The original header is reused
// verbatim unless the declared relations changed, in which case the header
// is re-encoded and p.Header updated.
func Encode(p *models.Page) ([]byte, error) {
	_, inner, _, _ := splitHeader(p.Header)
	current := decodeHeader(inner)
	if slices.Equal([]string(current.Related), p.Related) {
		return []byte(p.Header + p.Body), nil
	}

	raw, err := encodeHeader(inner, p.Related)
	if err != nil {
		return nil, err
	}
	p.Header = raw
	return []byte(raw + p.Body), nil
}

// splitHeader separates the header (between leading --- delimiters) from
// the body. raw is the full header block including delimiters and the
// trailing newline, inner is the YAML between the delimiters.
func splitHeader(data string) (raw, inner, body string, ok bool) {
	trimmed := strings.TrimLeft(data, "\n\r")
	if !strings.HasPrefix(trimmed, delim) {
		return "", "", data, false
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		// No closing delimiter: treat everything as body.
		return "", "", data, false
	}
	inner = strings.TrimLeft(rest[:idx], "\r\n")

	end := idx + 1 + len(delim)
	if nl := strings.IndexByte(rest[end:], '\n'); nl >= 0 {
		end += nl + 1
	} else {
		end = len(rest)
	}
	n := len(data) - len(trimmed) + len(delim) + end
	return data[:n], inner, data[n:], true
}

func decodeHeader(inner string) header {
	var h header
	if strings.TrimSpace(inner) == "" {
		return h
	}
	if err := yaml.Unmarshal([]byte(inner), &h); err != nil {
		// Malformed header: empty metadata.
		return header{}
	}
	return h
}

// encodeHeader rewrites the related field of the YAML mapping in inner.
func encodeHeader(inner string, related []string) (string, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode}
	if strings.TrimSpace(inner) != "" {
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(inner), &doc); err != nil {
			return "", fmt.Errorf("pagefile: decode header: %w", err)
		}
		if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
			return "", fmt.Errorf("pagefile: header is not a mapping")
		}
		mapping = doc.Content[0]
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for _, r := range related {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r})
	}

	replaced := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "related" {
			mapping.Content[i+1] = seq
			replaced = true
			break
		}
	}
	if !replaced {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "related"}
		mapping.Content = append(mapping.Content, key, seq)
	}

	out, err := yaml.Marshal(mapping)
	if err != nil {
		return "", fmt.Errorf("pagefile: encode header: %w", err)
	}
	return delim + "\n" + string(out) + delim + "\n", nil
}

// InferCategory derives a category from the first directory of the path.
func InferCategory(pagePath string) models.Category {
	dir := path.Dir(strings.ReplaceAll(pagePath, "\\", "/"))
	if dir == "." || dir == "/" {
		return models.CategoryOther
	}
	first := strings.ToLower(strings.SplitN(strings.TrimPrefix(dir, "/"), "/", 2)[0])
	switch first {
	case "concept", "concepts":
		return models.CategoryConcept
	case "component", "components":
		return models.CategoryComponent
	case "guide", "guides":
		return models.CategoryGuide
	case "meta":
		return models.CategoryMeta
	case "history":
		return models.CategoryHistory
	}
	return models.CategoryOther
}

// firstHeading returns the text of the first H1 heading, or "".
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func cleanList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Checksum returns the hex SHA-256 digest of raw page bytes.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
