package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ExtractJSON pulls the JSON object or array out of raw model output,
// tolerating markdown fences and surrounding prose.
func ExtractJSON(raw string) (json.RawMessage, error) {
	s := strings.TrimSpace(raw)
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}

	cleaned := stripMarkdownJSON(s)
	if json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), nil
	}

	return nil, fmt.Errorf("response is not valid JSON: %s", truncate(raw, 200))
}

// DecodeInto extracts and unmarshals a JSON response into T.
func DecodeInto[T any](raw string) (T, error) {
	var out T
	data, err := ExtractJSON(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}

// stripMarkdownJSON removes markdown code fences and leading/trailing non-JSON text.
func stripMarkdownJSON(s string) string {
	s = strings.TrimSpace(s)

	// Remove ```json ... ``` fences
	re := regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	if matches := re.FindStringSubmatch(s); len(matches) > 1 {
		s = strings.TrimSpace(matches[1])
	}

	// Find first { or [ and last } or ]
	startObj := strings.IndexByte(s, '{')
	startArr := strings.IndexByte(s, '[')

	start := -1
	isArray := false

	switch {
	case startObj >= 0 && startArr >= 0:
		if startArr < startObj {
			start = startArr
			isArray = true
		} else {
			start = startObj
		}
	case startObj >= 0:
		start = startObj
	case startArr >= 0:
		start = startArr
		isArray = true
	}

	if start < 0 {
		return s
	}

	var end int
	if isArray {
		end = strings.LastIndexByte(s, ']')
	} else {
		end = strings.LastIndexByte(s, '}')
	}

	if end <= start {
		return s
	}

	return s[start : end+1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
