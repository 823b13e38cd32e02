// Package parser extracts JSON diagram payloads from model output and from
// Markdown diagram documents with YAML frontmatter.
package parser

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoPayload is returned when no JSON object can be located.
var ErrNoPayload = errors.New("parser: no JSON payload found")

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n(.*?)\r?\n[ \t]*```")

// Result holds the output of parsing a diagram document.
type Result struct {
	Frontmatter map[string]interface{}
	Title       string
	ID          string
	Direction   string
	Payload     []byte
}

// Parse extracts frontmatter, title, and the JSON payload from a document.
// A plain JSON document is returned as the payload unchanged.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	payload, err := ExtractPayload(body)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Title:       deriveTitle(fm, body),
		ID:          stringField(fm, "id"),
		Direction:   strings.ToUpper(stringField(fm, "direction")),
		Payload:     payload,
	}, nil
}

// ExtractPayload returns the JSON object carried by text. Fenced code
// blocks are preferred (the first one holding an object wins); otherwise the
// span from the first '{' to the last '}' is used.
func ExtractPayload(text string) ([]byte, error) {
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		if obj, ok := objectSpan(m[1]); ok {
			return []byte(obj), nil
		}
	}
	if obj, ok := objectSpan(text); ok {
		return []byte(obj), nil
	}
	return nil, ErrNoPayload
}

func objectSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep everything as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s := stringField(fm, "title"); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func stringField(fm map[string]interface{}, key string) string {
	if fm == nil {
		return ""
	}
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
