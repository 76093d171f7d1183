package render

import (
	"encoding/json"
	"strings"
)

// DefaultFilePrefix is where the backend serves uploaded files.
const DefaultFilePrefix = "/files/"

// ExtractAttachmentURLs returns every displayable URL held by a stored
// attachment value. Accepted shapes are a bare path, an absolute URL, a JSON
// object with file_url, and a JSON array of either. Malformed JSON is treated
// as a bare path.
func ExtractAttachmentURLs(raw string, prefix string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if prefix == "" {
		prefix = DefaultFilePrefix
	}

	switch raw[0] {
	case '[', '{', '"':
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return []string{ResolveFileURL(raw, prefix)}
		}
		return collectURLs(decoded, prefix, nil)
	}
	return []string{ResolveFileURL(raw, prefix)}
}

func collectURLs(v interface{}, prefix string, out []string) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, ResolveFileURL(s, prefix))
		}
	case map[string]interface{}:
		for _, key := range []string{"file_url", "url"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return append(out, ResolveFileURL(strings.TrimSpace(s), prefix))
			}
		}
	case []interface{}:
		for _, item := range t {
			out = collectURLs(item, prefix, out)
		}
	}
	return out
}

// ResolveFileURL makes a stored path servable. Absolute URLs and rooted
// paths are returned unchanged.
func ResolveFileURL(path, prefix string) string {
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "data:"),
		strings.HasPrefix(path, "//"),
		strings.HasPrefix(path, "/"):
		return path
	case strings.HasPrefix(path, "files/"):
		return "/" + path
	}
	return strings.TrimRight(prefix, "/") + "/" + path
}
