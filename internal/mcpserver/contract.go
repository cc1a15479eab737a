package mcpserver

// LinkSyntaxGuide describes how wikilinks are written and how the engine
// resolves them. LLM consumers should read it before creating notes that
// are meant to show up in the graph.
const LinkSyntaxGuide = `# Lattice Link Syntax

Notes are Markdown files (` + "`" + `.md` + "`" + `) in the vault. Links between notes are
written as wikilinks and resolved by the link engine into a graph.

## Forms

` + "```" + `markdown
[[Target]]                 link by title, file name or path
[[folder/Target]]          link by vault path (".md" optional)
[[Target|display text]]    link with an alias
[[Target#Heading]]         link to a heading; resolution ignores the anchor
[[Target#^block-id]]       link to a block
![[Target]]                embed; counts as a link for Markdown targets
` + "```" + `

## Resolution

1. A target equal to a note path (case-insensitive, ".md" optional) links to that note.
2. Otherwise a note whose frontmatter ` + "`" + `title` + "`" + ` or file name matches wins.
3. Matching ignores case and surrounding whitespace.
4. When several notes match, the shortest path wins, then the alphabetically first.
5. A target that matches no note becomes a **concept**: a shared placeholder node
   (` + "`" + `concept:<name>` + "`" + `) that every note linking the same name points to.
   Creating a note with that title later turns those links into direct links.

## Ignored

- Links inside fenced code blocks and ` + "`" + `inline code` + "`" + `.
- Empty targets such as ` + "`" + `[[]]` + "`" + ` or ` + "`" + `[[#Heading]]` + "`" + `.
- Embeds of attachments such as ` + "`" + `![[diagram.png]]` + "`" + `.

## Tags

Tags come from the frontmatter ` + "`" + `tags` + "`" + ` list and inline ` + "`" + `#tags` + "`" + `.
Nested tags (` + "`" + `#project/alpha` + "`" + `) also match their parent when filtering the graph.

## Example

` + "```" + `markdown
---
title: Weekly standup
tags:
  - meeting-notes
---

- [[alice]] to review the [[Design Doc#Risks|design risks]]
- follow up on [[Quarterly Planning]]
` + "```" + `
`
