package linker

import "strings"

// SkipOffset reports whether a candidate starting at offset sits in a
// markup context that must not be rewritten: an existing link (display text
// or target), open emphasis, a code span or fenced block, or a heading line.
func SkipOffset(body string, offset int) bool {
	if offset < 0 || offset > len(body) {
		return true
	}
	lineStart := strings.LastIndexByte(body[:offset], '\n') + 1
	lineEnd := len(body)
	if nl := strings.IndexByte(body[offset:], '\n'); nl >= 0 {
		lineEnd = offset + nl
	}
	before := body[lineStart:offset]
	after := body[offset:lineEnd]
	line := body[lineStart:lineEnd]

	return inLink(before, after) ||
		inEmphasis(body, offset) ||
		inCode(body, lineStart, before, line) ||
		isHeading(line)
}

// inLink detects [display](target), the target portion of such a link, and
// [[wikilinks]] on the current line.
func inLink(before, after string) bool {
	if open := strings.LastIndexByte(before, '['); open >= 0 && !strings.ContainsRune(before[open:], ']') {
		if strings.Contains(after, "](") {
			return true
		}
		if open > 0 && before[open-1] == '[' && strings.Contains(after, "]]") {
			return true
		}
	}
	return inTarget(before, after)
}

// inTarget detects the (target) portion of [display](target).
func inTarget(before, after string) bool {
	open := strings.LastIndex(before, "](")
	return open >= 0 && !strings.ContainsRune(before[open:], ')') && strings.ContainsRune(after, ')')
}

// InLinkTarget reports whether offset falls inside the target of a
// markdown link on its line.
func InLinkTarget(body string, offset int) bool {
	if offset < 0 || offset > len(body) {
		return false
	}
	lineStart := strings.LastIndexByte(body[:offset], '\n') + 1
	lineEnd := len(body)
	if nl := strings.IndexByte(body[offset:], '\n'); nl >= 0 {
		lineEnd = offset + nl
	}
	return inTarget(body[lineStart:offset], body[offset:lineEnd])
}

// inEmphasis reports an odd number of ** delimiters between the start of
// the current paragraph and offset. Paragraphs break on a blank line with
// LF or CRLF endings.
func inEmphasis(body string, offset int) bool {
	head := body[:offset]
	paraStart := max(strings.LastIndex(head, "\n\n"), strings.LastIndex(head, "\n\r\n"), 0)
	return strings.Count(body[paraStart:offset], "**")%2 == 1
}

// inCode reports a position inside a fenced block, on a fence line, or after
// an odd number of backticks on the current line.
func inCode(body string, lineStart int, before, line string) bool {
	if isFence(line) {
		return true
	}
	fences := 0
	for _, l := range strings.Split(body[:lineStart], "\n") {
		if isFence(l) {
			fences++
		}
	}
	if fences%2 == 1 {
		return true
	}
	return strings.Count(before, "`")%2 == 1
}

func isFence(line string) bool {
	t := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

// isHeading matches ATX headings: 1-6 '#' followed by a space or end of line.
func isHeading(line string) bool {
	t := strings.TrimLeft(line, " ")
	n := 0
	for n < len(t) && t[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return false
	}
	return n == len(t) || t[n] == ' ' || t[n] == '\t'
}
