package providers

import (
	"bytes"
	"encoding/json"
	"strings"
)

// resultURLFields are the object keys consulted, in order, when a result
// payload is a JSON object.
var resultURLFields = []string{
	"url",
	"resultUrl",
	"result_url",
	"videoUrl",
	"video_url",
	"imageUrl",
	"image_url",
}

// ExtractResultURL resolves a provider result payload to a single location.
// The chain is: JSON array (first usable element), JSON object (first
// populated field of resultURLFields), then the trimmed raw string.
func ExtractResultURL(payload string) string {
	if urls := urlsFromString(payload); len(urls) > 0 {
		return urls[0]
	}
	return ""
}

// ExtractResultURLs applies the same chain to a raw JSON value and returns
// every location it yields in order.
func ExtractResultURLs(raw json.RawMessage) []string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		return urlsFromString(s)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil
		}
		var out []string
		for _, item := range items {
			if urls := ExtractResultURLs(item); len(urls) > 0 {
				out = append(out, urls[0])
			}
		}
		return out
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil
		}
		for _, field := range resultURLFields {
			value, ok := obj[field]
			if !ok {
				continue
			}
			if urls := ExtractResultURLs(value); len(urls) > 0 {
				return urls[:1]
			}
		}
	}
	return nil
}

func urlsFromString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if s[0] == '[' || s[0] == '{' {
		return ExtractResultURLs(json.RawMessage(s))
	}
	return []string{s}
}
