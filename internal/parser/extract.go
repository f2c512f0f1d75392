package parser

import (
	"errors"
	"regexp"
	"strings"
)

var errNoJSONBlock = errors.New("no JSON object found in response")

var trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)

// ExtractJSON returns the first well-formed JSON object embedded in raw,
// tolerating surrounding prose and markdown code fences. The scan is
// string-aware: braces inside quoted values do not affect nesting depth.
func ExtractJSON(raw string) (string, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return "", errNoJSONBlock
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", errNoJSONBlock
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// Braces inside strings are content, not structure.
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	// Unterminated object: models occasionally truncate the closing brace.
	// Hand the fragment back for the repair pass rather than failing here.
	return text[start:], nil
}

// stripCodeFence removes a surrounding markdown fence when the label is
// empty or json-like; anything else is left intact.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	firstLineEnd := strings.IndexByte(text, '\n')
	if firstLineEnd < 0 {
		return text
	}
	label := strings.ToLower(strings.TrimSpace(text[3:firstLineEnd]))
	if label != "" && label != "json" && label != "javascript" {
		return text
	}
	closing := strings.LastIndex(text, "```")
	if closing <= firstLineEnd {
		return text
	}
	return strings.TrimSpace(text[firstLineEnd+1 : closing])
}

// repairCommonJSONIssues applies one-shot repair for typical model output
// damage. Conservative by design: trailing commas are removed and a missing
// final brace appended; nothing else is rewritten.
func repairCommonJSONIssues(block string) string {
	repaired := trailingCommaPattern.ReplaceAllString(block, "$1")
	if !strings.HasSuffix(strings.TrimSpace(repaired), "}") {
		repaired = strings.TrimSpace(repaired) + "}"
	}
	return repaired
}
