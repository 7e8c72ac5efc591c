package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/search"
)

const snippetLimit = 300

// FormatSearchResults renders hits as markdown.
func FormatSearchResults(query string, hits []search.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(hits))
	if len(hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, h := range hits {
		formatHit(&sb, i+1, h)
	}
	return sb.String()
}

func formatHit(sb *strings.Builder, num int, h search.Hit) {
	title := h.DocID
	if h.Title != nil {
		title = fmt.Sprintf("%s (%s)", *h.Title, h.DocID)
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.4f)\n", num, title, h.Score)
	fmt.Fprintf(sb, "Source: %s", h.Source)
	if h.Path != nil {
		fmt.Fprintf(sb, " | Path: `%s`", *h.Path)
	}
	sb.WriteString("\n")
	if h.Snippet != nil {
		fmt.Fprintf(sb, "\n> %s\n", truncate(strings.TrimSpace(*h.Snippet), snippetLimit))
	}
	sb.WriteString("\n")
}

// FormatStats renders index statistics as markdown.
func FormatStats(st search.Stats) string {
	var sb strings.Builder
	sb.WriteString("## Index Stats\n\n")
	fmt.Fprintf(&sb, "- BM25 documents: %d\n", st.BM25Docs)
	fmt.Fprintf(&sb, "- Dense documents: %d\n", st.FaissDocs)
	fmt.Fprintf(&sb, "- Last build: %s\n", orNone(st.LastBuild))
	fmt.Fprintf(&sb, "- Model: %s\n", orNone(st.ModelName))
	return sb.String()
}

func orNone(s *string) string {
	if s == nil {
		return "none"
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
