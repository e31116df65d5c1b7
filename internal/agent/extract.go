package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// repoURLPattern matches a GitHub repository URL in free-form text.
var repoURLPattern = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+`)

// ExtractRepoURL returns the first GitHub repository URL found in text,
// trimmed of trailing punctuation, or "" if none.
func ExtractRepoURL(text string) string {
	m := repoURLPattern.FindString(text)
	return strings.TrimRight(m, ".,;:)")
}

// ExtractJSON pulls the first JSON object out of free-form assistant text.
// It tolerates markdown code fences and escaped content. Returns an error
// when no balanced object is found or it does not parse.
func ExtractJSON(text string) (map[string]any, error) {
	fragment := jsonFragment(text)
	if fragment == "" {
		return nil, fmt.Errorf("agent: no JSON object in text")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(fragment), &obj); err != nil {
		return nil, fmt.Errorf("agent: parse extracted JSON: %w", err)
	}
	return obj, nil
}

// jsonFragment locates a balanced {...} fragment, preferring fenced blocks.
func jsonFragment(s string) string {
	s = strings.TrimSpace(s)

	// Unescape content that arrived as a JSON-encoded string.
	if strings.Contains(s, `\n`) || strings.Contains(s, `\"`) {
		var unescaped string
		if err := json.Unmarshal([]byte(s), &unescaped); err == nil {
			s = unescaped
		}
	}

	if strings.HasPrefix(s, "```") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			return s[start : end+1]
		}
		return ""
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// truncate bounds a string for log entries, marking the cut. The cut lands
// on a rune boundary so previews stay valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "…"
}
