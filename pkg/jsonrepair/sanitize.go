// Package jsonrepair cleans up near-JSON text returned by LLM providers.
// Models are instructed to respond with valid JSON but frequently wrap it
// in markdown fences, leak control characters, or mangle escape sequences.
// The repair pipeline is staged: each stage only runs if the previous
// output still fails to parse.
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	controlCharRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	ansiEscapeRe  = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	badEscapeRe   = regexp.MustCompile(`\\([^"\\/bfnrt])`)

	improvedContentRe = regexp.MustCompile(`(?s)"improved_content"\s*:\s*"(.*?)"\s*(?:,|})`)
	improvementSumRe  = regexp.MustCompile(`(?s)"improvement_summary"\s*:\s*"(.*?)"`)
)

// Sanitize repairs raw model output into parseable JSON where recoverable.
// It never fails: the worst case returns its best-effort cleaned string and
// leaves the parse failure to the caller.
func Sanitize(raw string) string {
	if raw == "" {
		return raw
	}

	content := StripCodeFence(raw)
	content = stripControlChars(content)
	content = stripBadEscapes(content)

	if Valid(content) {
		return content
	}

	// Aggressive fallback: rebuild keeping only printable ASCII.
	rebuilt := printableASCII(content)
	if Valid(rebuilt) {
		return rebuilt
	}

	// Last resort: pull the known fields out of the mangled text and
	// hand-assemble a minimal object.
	if extracted, ok := ExtractImprovement(rebuilt); ok {
		return extracted
	}

	return rebuilt
}

// Valid reports whether s parses as JSON.
func Valid(s string) bool {
	return json.Valid([]byte(s))
}

// StripCodeFence removes a leading/trailing markdown code fence and trims
// surrounding whitespace.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// stripControlChars removes ANSI escape sequences and ASCII control
// characters, keeping newline, tab and carriage return. ANSI sequences go
// first: once the ESC byte is gone the rest of the sequence is unmatchable.
func stripControlChars(s string) string {
	s = ansiEscapeRe.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	// Regex sweep for stragglers.
	return controlCharRe.ReplaceAllString(s, "")
}

// stripBadEscapes drops backslashes that do not start a recognized JSON
// escape sequence.
func stripBadEscapes(s string) string {
	return badEscapeRe.ReplaceAllString(s, "$1")
}

// printableASCII rebuilds s keeping only printable ASCII plus newline, tab
// and carriage return.
func printableASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 0x20 && r <= 0x7e) || r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractObject returns the substring from the first '{' to the last '}'.
// Agents use it to salvage a JSON object embedded in surrounding prose.
func ExtractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ExtractImprovement regex-extracts the improved_content and
// improvement_summary field values from mangled text and reassembles a
// minimal valid JSON object containing exactly those two keys.
func ExtractImprovement(s string) (string, bool) {
	contentMatch := improvedContentRe.FindStringSubmatch(s)
	summaryMatch := improvementSumRe.FindStringSubmatch(s)
	if contentMatch == nil || summaryMatch == nil {
		return "", false
	}

	obj := map[string]string{
		"improved_content":    unescape(contentMatch[1]),
		"improvement_summary": unescape(summaryMatch[1]),
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// unescape undoes the common JSON escape sequences in regex-extracted text.
func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")
	return s
}
