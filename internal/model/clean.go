package model

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// CleanJSON strips Markdown fences and prose around the JSON document in a
// model answer. Models are told not to add them but do anyway.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return strings.Trim(s, "`")
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost object or array, whichever opens first.
	openCh, closeCh := "{", "}"
	obj, arr := strings.Index(s, "{"), strings.Index(s, "[")
	if obj == -1 || (arr != -1 && arr < obj) {
		openCh, closeCh = "[", "]"
	}
	if start := strings.Index(s, openCh); start != -1 {
		if end := strings.LastIndex(s, closeCh); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

// ParseResponse cleans and decodes raw model text. The error never includes
// the raw text.
func ParseResponse(raw string) (jsonval.Value, error) {
	clean := CleanJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("ParseResponse: %w", ErrEmptyCompletion)
	}
	v, err := jsonval.Parse([]byte(clean))
	if err != nil {
		return nil, fmt.Errorf("ParseResponse: decode model JSON (%d bytes): %w", len(raw), err)
	}
	return v, nil
}
