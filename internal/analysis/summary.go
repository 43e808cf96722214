// Package analysis aggregates a normalized log sample so callers can see what
// the model will be shown before paying for a generation.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/harora-WM/chaos-engineering-api/internal/prompt"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// DefaultTopPatterns is how many message patterns Summarize reports.
const DefaultTopPatterns = 10

const (
	maxPatternBytes = 500
	maxSampleBytes  = 300
	unknownLevel    = "N/A"
)

// Normalization regexes compiled once at package init.
var (
	reDatetime   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?\s*`)
	reHexAddr    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reUUID       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reIPv4       = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d+)?\b`)
	reBracketNum = regexp.MustCompile(`\[\d+\]`)
	reParenNum   = regexp.MustCompile(`\(\d+\)`)
	reDuration   = regexp.MustCompile(`\b\d+(\.\d+)?(ms|s|us|ns)\b`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Summarize counts entries per level and per service and groups messages by
// normalized shape. Patterns are ordered by count, then severity, then text.
func Summarize(entries []models.NormalizedLogEntry, topN int) models.SampleSummary {
	summary := models.SampleSummary{
		Entries:     len(entries),
		ByLevel:     map[string]int{},
		ByService:   map[string]int{},
		TopPatterns: []models.MessagePattern{},
	}
	if len(entries) == 0 {
		return summary
	}
	if topN <= 0 {
		topN = DefaultTopPatterns
	}

	groups := make(map[string]*models.MessagePattern)
	for _, e := range entries {
		summary.ByLevel[canonicalLevel(e.Level)]++
		summary.ByService[e.Service]++

		pattern := NormalizeMessage(e.Message)
		fp := Fingerprint(pattern)
		g, ok := groups[fp]
		if !ok {
			g = &models.MessagePattern{
				Pattern: pattern,
				Level:   canonicalLevel(e.Level),
				Sample:  prompt.Truncate(e.Message, maxSampleBytes),
			}
			groups[fp] = g
		}
		g.Count++
		if LevelSeverity(e.Level) > LevelSeverity(g.Level) {
			g.Level = canonicalLevel(e.Level)
		}
	}

	patterns := make([]models.MessagePattern, 0, len(groups))
	for _, g := range groups {
		patterns = append(patterns, *g)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		if si, sj := LevelSeverity(patterns[i].Level), LevelSeverity(patterns[j].Level); si != sj {
			return si > sj
		}
		return patterns[i].Pattern < patterns[j].Pattern
	})
	if len(patterns) > topN {
		patterns = patterns[:topN]
	}
	summary.TopPatterns = patterns
	return summary
}

// Fingerprint returns a stable hex digest of an already normalized message.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeMessage strips the variable parts of a log message so messages of
// the same shape compare equal.
func NormalizeMessage(msg string) string {
	msg = reDatetime.ReplaceAllString(msg, "")
	msg = reHexAddr.ReplaceAllString(msg, "0xADDR")
	msg = reUUID.ReplaceAllString(msg, "UUID")
	msg = reIPv4.ReplaceAllString(msg, "IP")
	msg = reBracketNum.ReplaceAllString(msg, "[N]")
	msg = reParenNum.ReplaceAllString(msg, "(N)")
	msg = reDuration.ReplaceAllString(msg, "DUR")
	msg = reWhitespace.ReplaceAllString(msg, " ")
	msg = strings.ToLower(msg)
	msg = strings.TrimSpace(msg)
	return prompt.Truncate(msg, maxPatternBytes)
}

// LevelSeverity maps a log level string to a numeric severity.
func LevelSeverity(level string) int {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "FATAL", "EMERGENCY", "ALERT":
		return 4
	case "CRITICAL", "CRIT":
		return 3
	case "ERROR", "ERR":
		return 2
	case "WARN", "WARNING":
		return 1
	default:
		return 0
	}
}

func canonicalLevel(level string) string {
	level = strings.TrimSpace(level)
	if level == "" || level == unknownLevel {
		return unknownLevel
	}
	return strings.ToUpper(level)
}
