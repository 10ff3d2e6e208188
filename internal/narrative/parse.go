// ABOUTME: Parses language-model replies into a report narrative.
// ABOUTME: JSON replies are preferred; plain text falls back to a line-based split.
package narrative

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/harperreed/medtrack/internal/report"
)

var bulletRe = regexp.MustCompile(`^(?:[-*]\s+|•\s*|\d+[.)]\s+)`)

// extractJSON returns the outermost {...} span of s, or "".
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

// parseReply turns model output into a Narrative. It returns a blank
// Narrative when nothing usable is found.
func parseReply(text string) report.Narrative {
	text = strings.TrimSpace(text)
	if text == "" {
		return report.Narrative{}
	}

	if raw := extractJSON(text); raw != "" {
		var n report.Narrative
		if err := json.Unmarshal([]byte(raw), &n); err == nil {
			n = clean(n)
			if !n.Blank() {
				return n
			}
		}
	}
	return parseLines(text)
}

// parseLines treats bullet lines as recommendations and the plain lines
// before the first bullet as the summary. Heading lines ending in ":" are dropped.
func parseLines(text string) report.Narrative {
	var summary []string
	var recs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if bulletRe.MatchString(line) {
			if rec := strings.TrimSpace(bulletRe.ReplaceAllString(line, "")); rec != "" {
				recs = append(recs, rec)
			}
			continue
		}
		if strings.HasSuffix(line, ":") || len(recs) > 0 {
			continue
		}
		summary = append(summary, strings.TrimLeft(line, "# "))
	}
	return clean(report.Narrative{Summary: strings.Join(summary, " "), Recommendations: recs})
}

func clean(n report.Narrative) report.Narrative {
	n.Summary = strings.TrimSpace(n.Summary)
	recs := n.Recommendations[:0]
	for _, r := range n.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			recs = append(recs, r)
		}
	}
	n.Recommendations = recs
	if len(n.Recommendations) == 0 {
		n.Recommendations = nil
	}
	return n
}
