// Package output formats retrieval results and status lines for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/state"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

const snippetWidth = 160

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Color is used only on a terminal that has not
// opted out through NO_COLOR.
func New(out io.Writer) *Writer {
	return NewWithColor(out, ui.IsTTY(out) && !ui.DetectNoColor())
}

// NewWithColor creates a Writer with an explicit color preference.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(!color)}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✅"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("⚠️ "), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("❌"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON followed by a newline.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Hits prints ranked results, one block per hit.
func (w *Writer) Hits(query string, hits []search.Hit) {
	if len(hits) == 0 {
		w.Warningf("No results for %q", query)
		return
	}
	for i, h := range hits {
		head := h.DocID
		if h.Title != nil {
			head = fmt.Sprintf("%s  %s", h.DocID, *h.Title)
		}
		_, _ = fmt.Fprintf(w.out, "%2d. %s %s\n", i+1,
			w.styles.Header.Render(head),
			w.styles.Label.Render(fmt.Sprintf("[%.4f]", h.Score)))
		if h.Path != nil {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(*h.Path))
		}
		if h.Snippet != nil {
			_, _ = fmt.Fprintf(w.out, "    %s\n", clip(*h.Snippet, snippetWidth))
		}
	}
}

// Stats prints index statistics as aligned label/value rows.
func (w *Writer) Stats(st search.Stats) {
	rows := [][2]string{
		{"BM25 docs", fmt.Sprint(st.BM25Docs)},
		{"Dense docs", fmt.Sprint(st.FaissDocs)},
		{"Last build", orDash(st.LastBuild)},
		{"Model", orDash(st.ModelName)},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render(fmt.Sprintf("%-11s", r[0]+":")), r[1])
	}
}

// SavedQueries prints saved queries sorted by name.
func (w *Writer) SavedQueries(qs map[string]state.Payload) {
	if len(qs) == 0 {
		w.Status("", "No saved queries")
		return
	}
	for _, name := range sortedKeys(qs) {
		raw, err := json.Marshal(qs[name])
		if err != nil {
			raw = []byte("{}")
		}
		_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Header.Render(name), string(raw))
	}
}

// Watchlists prints watchlists sorted by name.
func (w *Writer) Watchlists(ws map[string][]string) {
	if len(ws) == 0 {
		w.Status("", "No watchlists")
		return
	}
	for _, name := range sortedKeys(ws) {
		ids := ws[name]
		_, _ = fmt.Fprintf(w.out, "%s %s %s\n",
			w.styles.Header.Render(name),
			w.styles.Label.Render(fmt.Sprintf("(%d)", len(ids))),
			strings.Join(ids, ", "))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// clip collapses whitespace and cuts s to n runes.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
