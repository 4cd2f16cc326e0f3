package generation

import (
	"math"
	"strconv"
	"strings"

	"github.com/ent0n29/studybuddy/internal/extract"
)

// Model output is loosely typed; these readers accept what a model
// plausibly returns and ignore the rest.

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func firstText(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := textOf(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func intOf(v any) int {
	switch t := v.(type) {
	case float64:
		return int(math.Round(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err == nil {
			return n
		}
	}
	return 0
}

func floatOf(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func objectsOf(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// textsOf reads a list of strings. Object entries contribute their first
// non-empty named field.
func textsOf(v any, objectKeys ...string) []string {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string:
		items = []any{t}
	default:
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s := textOf(it)
		if m, ok := it.(map[string]any); ok {
			s = firstText(m, objectKeys...)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func codeBlocksOf(v any) []extract.CodeBlock {
	var out []extract.CodeBlock
	for _, m := range objectsOf(v) {
		code := textOf(m["code"])
		if code == "" {
			continue
		}
		lang := textOf(m["language"])
		if lang == "" {
			lang = "text"
		}
		out = append(out, extract.CodeBlock{ID: extract.Placeholder(len(out)), Language: lang, Code: code})
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
