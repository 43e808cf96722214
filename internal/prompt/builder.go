// Package prompt turns an index sample into the chaos-plan request sent to
// the model.
package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// MaxSampleDocuments caps how many documents are rendered into a prompt.
const MaxSampleDocuments = 1000

// Placeholder is rendered for a field none of whose candidates are present.
const Placeholder = "N/A"

//go:embed templates/chaos_instructions.txt
var instructions string

// Field candidates in priority order.
var (
	messageFields   = []string{"message", "log"}
	timestampFields = []string{"@timestamp", "timestamp"}
	levelFields     = []string{"level", "severity"}
	serviceFields   = []string{"service", "app"}
)

// Options tunes prompt assembly.
type Options struct {
	// MaxMessageBytes truncates each normalized message on a rune boundary.
	// Zero leaves messages untouched.
	MaxMessageBytes int
}

// Builder assembles prompts. The zero value is ready to use.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// Normalize projects the first MaxSampleDocuments documents, in order, onto
// the uniform entry shape. Doc numbers are 1-based positions in the result.
func (b *Builder) Normalize(docs []map[string]any) []models.NormalizedLogEntry {
	if len(docs) > MaxSampleDocuments {
		docs = docs[:MaxSampleDocuments]
	}

	entries := make([]models.NormalizedLogEntry, 0, len(docs))
	for i, doc := range docs {
		msg, ok := firstPresent(doc, messageFields)
		if !ok {
			msg = render(doc)
		}
		if b.opts.MaxMessageBytes > 0 {
			msg = Truncate(msg, b.opts.MaxMessageBytes)
		}

		entries = append(entries, models.NormalizedLogEntry{
			Doc:       i + 1,
			Timestamp: firstOr(doc, timestampFields),
			Message:   msg,
			Level:     firstOr(doc, levelFields),
			Service:   firstOr(doc, serviceFields),
		})
	}
	return entries
}

// Build renders the complete prompt for an index sample.
func (b *Builder) Build(index string, result models.IndexFetchResult, opts models.AnalysisOptions) (string, error) {
	entries := b.Normalize(result.Documents)

	sample, err := marshalIndent(entries)
	if err != nil {
		return "", fmt.Errorf("encoding sample: %w", err)
	}

	focus := opts.Focus
	if focus == "" {
		focus = "All"
	}

	var sb strings.Builder
	sb.Grow(len(sample) + len(instructions) + 512)

	sb.WriteString("\n# CHAOS ENGINEERING PLAN GENERATION\n\n")
	sb.WriteString("## INDEX INFORMATION:\n")
	fmt.Fprintf(&sb, "- **Index Name:** %s\n", index)
	fmt.Fprintf(&sb, "- **Total Documents:** %s\n", formatThousands(result.TotalHits))
	fmt.Fprintf(&sb, "- **Query Time:** %d ms\n\n", result.TookMs)
	fmt.Fprintf(&sb, "## SAMPLE LOG DOCUMENTS (%d out of %d fetched):\n", len(entries), len(result.Documents))
	sb.WriteString("```json\n")
	sb.Write(sample)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Focus Area: %s\n\n", focus)
	fmt.Fprintf(&sb, "Include Security: %s\n\n", titleBool(opts.IncludeSecurity))
	fmt.Fprintf(&sb, "Include External Dependencies: %s\n", titleBool(opts.IncludeExternalDependencies))
	sb.WriteString(instructions)

	return sb.String(), nil
}

// firstPresent returns the rendering of the first candidate that exists, is
// not null, and renders to a non-empty string.
// titleBool renders b as "True" or "False", the form the instructions were
// written against.
func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func firstPresent(doc map[string]any, fields []string) (string, bool) {
	for _, f := range fields {
		v, ok := doc[f]
		if !ok || v == nil {
			continue
		}
		if s := render(v); s != "" {
			return s, true
		}
	}
	return "", false
}

func firstOr(doc map[string]any, fields []string) string {
	if s, ok := firstPresent(doc, fields); ok {
		return s
	}
	return Placeholder
}

// render returns strings verbatim and everything else as compact JSON.
func render(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// formatThousands renders n with comma group separators.
func formatThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 && !(neg && sb.Len() == 1) {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

// Truncate cuts s to at most maxBytes without splitting a UTF-8 rune.
func Truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
