package linker

import "github.com/starford/codewiki/internal/models"

// Candidates returns the mentions in body that survive the markup filter,
// before overlap resolution.
func Candidates(body, source string, idx *TitleIndex) []models.Mention {
	return Filter(body, Scan(body, source, idx))
}

// LinkBody runs scan, filter, resolve and synthesize over one page body.
// It returns the rewritten body and the mentions that became links. Running
// it again on its own output adds nothing.
func LinkBody(body, source string, idx *TitleIndex) (string, []models.Mention) {
	resolved := Resolve(Candidates(body, source, idx))
	if len(resolved) == 0 {
		return body, nil
	}
	return Synthesize(body, resolved), resolved
}
