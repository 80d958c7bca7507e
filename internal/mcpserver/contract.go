package mcpserver

// PageFormat describes the documentation page layout codewiki reads and
// the rewrites a link pass performs.
const PageFormat = `# codewiki Page Format

Every page is a UTF-8 Markdown file ending in ` + "`" + `.md` + "`" + `, addressed by its
slash-separated path relative to the corpus root.

## Structure

` + "```" + `markdown
---
title: Session Manager              # display name; falls back to the first "# " heading
category: component                 # concept | component | guide | meta | history | other
tags: [auth, session]               # list or comma-separated scalar
related: [concepts/auth.md]         # declared relations, corpus paths
updated: 2024-05-01                 # ISO date, used by the update histogram
---

# Session Manager

Body text in standard Markdown.
` + "```" + `

## Rules

1. **The header is optional.** Without it the title comes from the first H1 and
   the category from the first directory (` + "`" + `concepts/` + "`" + `, ` + "`" + `components/` + "`" + `, ` + "`" + `guides/` + "`" + `, ...).
2. **Titles are link targets.** A title of four or more characters mentioned in another
   page's body is rewritten by ` + "`" + `link_corpus` + "`" + ` into a relative Markdown link.
   ` + "`" + `**Title**` + "`" + ` becomes ` + "`" + `**[Title](../dir/page.md)**` + "`" + `.
3. **Protected text is never rewritten:** headings, fenced and inline code, existing
   links and wikilinks, and text inside bold emphasis that is not the exact title.
4. **Links** may be relative (` + "`" + `../guides/setup.md` + "`" + `), rooted (` + "`" + `/guides/setup.md` + "`" + `)
   or wikilinks (` + "`" + `[[Setup Guide]]` + "`" + `). Targets without an extension resolve to ` + "`" + `.md` + "`" + `.
5. **The header is preserved byte for byte** unless ` + "`" + `related` + "`" + ` is rewritten.
`
