package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/harora-WM/chaos-engineering-api/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docs(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"@timestamp": fmt.Sprintf("2024-02-17T10:%02d:00Z", i%60),
			"message":    fmt.Sprintf("line %d", i),
			"level":      "INFO",
			"service":    "checkout",
		}
	}
	return out
}

func TestNormalize_PrimaryFields(t *testing.T) {
	b := NewBuilder(Options{})
	entries := b.Normalize([]map[string]any{{
		"@timestamp": "2024-02-17T10:00:00Z",
		"message":    "connection refused",
		"level":      "ERROR",
		"service":    "payments",
		"log":        "ignored",
		"severity":   "ignored",
	}})

	require.Len(t, entries, 1)
	assert.Equal(t, models.NormalizedLogEntry{
		Doc:       1,
		Timestamp: "2024-02-17T10:00:00Z",
		Message:   "connection refused",
		Level:     "ERROR",
		Service:   "payments",
	}, entries[0])
}

func TestNormalize_SecondaryFields(t *testing.T) {
	b := NewBuilder(Options{})
	entries := b.Normalize([]map[string]any{{
		"timestamp": "1708164000",
		"log":       "OOMKilled",
		"severity":  "CRITICAL",
		"app":       "cart",
	}})

	require.Len(t, entries, 1)
	assert.Equal(t, "1708164000", entries[0].Timestamp)
	assert.Equal(t, "OOMKilled", entries[0].Message)
	assert.Equal(t, "CRITICAL", entries[0].Level)
	assert.Equal(t, "cart", entries[0].Service)
}

func TestNormalize_FallbackExhaustion(t *testing.T) {
	b := NewBuilder(Options{})
	entries := b.Normalize([]map[string]any{{"x": float64(1)}})

	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Doc)
	assert.Equal(t, "N/A", entries[0].Timestamp)
	assert.Equal(t, "N/A", entries[0].Level)
	assert.Equal(t, "N/A", entries[0].Service)
	assert.Equal(t, `{"x":1}`, entries[0].Message)
}

func TestNormalize_NullAndEmptyCandidatesSkipped(t *testing.T) {
	b := NewBuilder(Options{})
	entries := b.Normalize([]map[string]any{{
		"message":    "",
		"log":        "from log",
		"@timestamp": nil,
		"timestamp":  "t2",
		"level":      nil,
		"service":    "",
	}})

	require.Len(t, entries, 1)
	assert.Equal(t, "from log", entries[0].Message)
	assert.Equal(t, "t2", entries[0].Timestamp)
	assert.Equal(t, "N/A", entries[0].Level)
	assert.Equal(t, "N/A", entries[0].Service)
}

func TestNormalize_NonStringValuesRenderAsJSON(t *testing.T) {
	b := NewBuilder(Options{})
	entries := b.Normalize([]map[string]any{{
		"message":    map[string]any{"msg": "<b>tagged</b>", "code": 503},
		"@timestamp": json.Number("1708164000123"),
		"level":      float64(3),
		"service":    true,
	}})

	require.Len(t, entries, 1)
	assert.Equal(t, `{"code":503,"msg":"<b>tagged</b>"}`, entries[0].Message)
	assert.Equal(t, "1708164000123", entries[0].Timestamp)
	assert.Equal(t, "3", entries[0].Level)
	assert.Equal(t, "true", entries[0].Service)
}

func TestNormalize_EmptyRecord(t *testing.T) {
	b := NewBuilder(Options{})
	entries := b.Normalize([]map[string]any{{}})

	require.Len(t, entries, 1)
	assert.Equal(t, "{}", entries[0].Message)
}

func TestNormalize_CapAndOrder(t *testing.T) {
	b := NewBuilder(Options{})
	entries := b.Normalize(docs(1500))

	require.Len(t, entries, MaxSampleDocuments)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Doc)
		assert.Equal(t, fmt.Sprintf("line %d", i), e.Message)
	}
}

func TestNormalize_Empty(t *testing.T) {
	b := NewBuilder(Options{})
	entries := b.Normalize(nil)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestNormalize_MessageCap(t *testing.T) {
	b := NewBuilder(Options{MaxMessageBytes: 5})
	entries := b.Normalize([]map[string]any{
		{"message": "abcdefgh"},
		{"message": "héllo wörld"},
	})

	assert.Equal(t, "abcde", entries[0].Message)
	// "h" + 2-byte "é" + "ll" is 5 bytes.
	assert.Equal(t, "héll", entries[1].Message)
}

func TestBuild_Header(t *testing.T) {
	b := NewBuilder(Options{})
	res := models.IndexFetchResult{
		Success:    true,
		Documents:  docs(2),
		SampleSize: 2,
		TotalHits:  50000,
		TookMs:     17,
	}

	p, err := b.Build("app-logs-2024", res, models.AnalysisOptions{
		Focus:                       "Network",
		IncludeSecurity:             true,
		IncludeExternalDependencies: false,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p, "\n# CHAOS ENGINEERING PLAN GENERATION\n\n## INDEX INFORMATION:\n"))
	assert.Contains(t, p, "- **Index Name:** app-logs-2024\n")
	assert.Contains(t, p, "- **Total Documents:** 50,000\n")
	assert.Contains(t, p, "- **Query Time:** 17 ms\n")
	assert.Contains(t, p, "## SAMPLE LOG DOCUMENTS (2 out of 2 fetched):\n```json\n[\n  {\n    \"doc\": 1,\n")
	assert.Contains(t, p, "Focus Area: Network\n\nInclude Security: True\n\nInclude External Dependencies: False\n")
	assert.True(t, strings.HasSuffix(p, instructions))
}

func TestBuild_SampleIsValidJSON(t *testing.T) {
	b := NewBuilder(Options{})
	res := models.IndexFetchResult{Success: true, Documents: []map[string]any{{"message": "a < b && c > d"}}}

	p, err := b.Build("idx", res, models.DefaultAnalysisOptions())
	require.NoError(t, err)

	start := strings.Index(p, "```json\n") + len("```json\n")
	end := strings.Index(p, "\n\nFocus Area:")
	require.Greater(t, end, start)

	var entries []models.NormalizedLogEntry
	require.NoError(t, json.Unmarshal([]byte(p[start:end]), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "a < b && c > d", entries[0].Message)
	assert.Contains(t, p, "a < b && c > d", "HTML characters must not be escaped")
}

func TestBuild_EmptySample(t *testing.T) {
	b := NewBuilder(Options{})
	p, err := b.Build("empty", models.IndexFetchResult{Success: true}, models.AnalysisOptions{})
	require.NoError(t, err)

	assert.Contains(t, p, "(0 out of 0 fetched):\n```json\n[]\n")
	assert.Contains(t, p, "Focus Area: All\n")
}

func TestBuild_CapReflectedInHeader(t *testing.T) {
	b := NewBuilder(Options{})
	res := models.IndexFetchResult{Success: true, Documents: docs(10000), SampleSize: 10000, TotalHits: 50000}

	p, err := b.Build("app-logs-2024", res, models.DefaultAnalysisOptions())
	require.NoError(t, err)
	assert.Contains(t, p, "(1000 out of 10000 fetched)")
	assert.Contains(t, p, `"doc": 1000,`)
	assert.NotContains(t, p, `"doc": 1001,`)
}

func TestInstructionsEmbedded(t *testing.T) {
	assert.True(t, strings.HasPrefix(instructions, "You are a Chaos Engineering SRE expert"))
	assert.Contains(t, instructions, "Step 1")
}

func TestFormatThousands(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{50000, "50,000"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
		{-123456, "-123,456"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatThousands(tt.in), "input %d", tt.in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "a", Truncate("aé", 2))
	assert.Equal(t, "", Truncate("é", 1))
}
