package health

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Reference kinds.
const (
	RefMarkdown = "markdown"
	RefWiki     = "wiki"
	RefAutolink = "autolink"
	RefURL      = "url"
)

// Reference is one outbound reference found in a page body.
type Reference struct {
	Kind string `json:"kind"`
	Raw  string `json:"raw"`
	// Target is the normalized corpus path, empty for external references.
	Target string `json:"target,omitempty"`
}

var (
	mdLinkRe   = regexp.MustCompile(`(!?)\[([^\]]*)\]\(\s*<?([^)\s>]*)>?(?:\s+"[^"]*")?\s*\)`)
	wikiLinkRe = regexp.MustCompile(`\[\[([^\]|#]*)(?:#[^\]|]*)?(?:\|([^\]]*))?\]\]`)
	autoLinkRe = regexp.MustCompile(`<((?:https?|ftp|mailto):[^>\s]+)>`)
	bareURLRe  = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)
	schemeRe   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)
)

// References extracts outbound references from body, ignoring fenced code.
// Images are not references. Internal targets are normalized against source.
func References(source, body, prefix string) []Reference {
	refs, _ := extract(source, body, prefix)
	return refs
}

// extract returns the references of body and the body text with link
// syntax reduced to display text and fenced code removed.
func extract(source, body, prefix string) ([]Reference, string) {
	text := stripFences(body)
	var refs []Reference

	text = mdLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := mdLinkRe.FindStringSubmatch(m)
		if sub[1] == "!" {
			return " "
		}
		ref := Reference{Kind: RefMarkdown, Raw: sub[3]}
		if target, ok := NormalizeTarget(source, sub[3], prefix); ok {
			ref.Target = target
		}
		if sub[3] != "" {
			refs = append(refs, ref)
		}
		return " " + sub[2] + " "
	})
	text = wikiLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := wikiLinkRe.FindStringSubmatch(m)
		name := strings.TrimSpace(sub[1])
		if name == "" {
			return " "
		}
		ref := Reference{Kind: RefWiki, Raw: name}
		if target, ok := NormalizeTarget(source, "/"+name, prefix); ok {
			ref.Target = target
		}
		refs = append(refs, ref)
		if sub[2] != "" {
			return " " + sub[2] + " "
		}
		return " " + name + " "
	})
	text = autoLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		refs = append(refs, Reference{Kind: RefAutolink, Raw: m[1 : len(m)-1]})
		return " "
	})
	for _, u := range bareURLRe.FindAllString(text, -1) {
		refs = append(refs, Reference{Kind: RefURL, Raw: strings.TrimRight(u, ".,;:!?")})
	}
	return refs, bareURLRe.ReplaceAllString(text, " ")
}

// NormalizeTarget turns a raw link target into a corpus path. It reports
// false for external targets and same-page anchors. Rooted targets (leading
// "/" or the site URL prefix) resolve from the corpus root; others resolve
// against the source page's directory. Extensionless targets get ".md".
func NormalizeTarget(source, raw, prefix string) (string, bool) {
	t := strings.TrimSpace(raw)
	if i := strings.IndexAny(t, "#?"); i >= 0 {
		t = t[:i]
	}
	if t == "" || strings.HasPrefix(t, "//") || schemeRe.MatchString(t) {
		return "", false
	}
	if u, err := url.PathUnescape(t); err == nil {
		t = u
	}

	rooted := strings.HasPrefix(t, "/")
	t = strings.TrimLeft(t, "/")
	if p := strings.Trim(prefix, "/"); p != "" {
		if t == p {
			t = ""
			rooted = true
		} else if strings.HasPrefix(t, p+"/") {
			t = t[len(p)+1:]
			rooted = true
		}
	}
	if rooted {
		t = path.Clean("/" + t)[1:]
	} else {
		t = path.Join(path.Dir(source), t)
	}
	if t == "" || t == "." {
		return "", false
	}
	if path.Ext(t) == "" {
		t += ".md"
	}
	return t, true
}

// stripFences removes fenced code blocks, fence lines included.
func stripFences(body string) string {
	var b strings.Builder
	inFence := false
	for _, line := range strings.SplitAfter(body, "\n") {
		if isFence(line) {
			inFence = !inFence
			b.WriteString("\n")
			continue
		}
		if inFence {
			b.WriteString("\n")
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

func isFence(line string) bool {
	t := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}
