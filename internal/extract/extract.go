package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Outcome reports which path produced a Result.
type Outcome string

const (
	Absent   Outcome = "absent"
	Clean    Outcome = "clean"
	Repaired Outcome = "repaired"
	Salvaged Outcome = "salvaged"
)

// SalvageLimit bounds the raw text carried by a salvage result.
const SalvageLimit = 500

// Result is the parsed object from model output. Value is nil when Outcome is Absent.
type Result struct {
	Value   map[string]any
	Outcome Outcome
}

// OK reports whether a mapping was produced.
func (r Result) OK() bool {
	return r.Outcome != Absent && r.Value != nil
}

// Parsed reports whether the mapping came from a real JSON parse rather than salvage.
func (r Result) Parsed() bool {
	return r.Outcome == Clean || r.Outcome == Repaired
}

var (
	leadingFence  = regexp.MustCompile("^```[\\w\\-]*\\n?")
	trailingFence = regexp.MustCompile("\\n?```$")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

var repairs = []func(string) string{
	removeTrailingCommas,
	escapeStrayQuotes,
	escapeControlChars,
}

// Extract recovers a JSON object from free-form model output.
func Extract(raw string) Result {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{Outcome: Absent}
	}
	text = leadingFence.ReplaceAllString(text, "")
	text = trailingFence.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
		text = strings.TrimSpace(text[4:])
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end < start {
		return Result{Outcome: Absent}
	}
	slice := text[start : end+1]

	if v, ok := parseObject(slice); ok {
		return Result{Value: v, Outcome: Clean}
	}

	candidate := slice
	for _, repair := range repairs {
		candidate = repair(candidate)
		if v, ok := parseObject(candidate); ok {
			return Result{Value: v, Outcome: Repaired}
		}
	}

	return Result{Value: salvage(slice), Outcome: Salvaged}
}

func parseObject(s string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false
	}
	if out == nil {
		return nil, false
	}
	return out, true
}

func salvage(slice string) map[string]any {
	answer := Truncate(slice, SalvageLimit)
	if len(answer) < len(slice) {
		answer += "..."
	}
	return map[string]any{
		"answer":      answer,
		"key_points":  []any{},
		"steps":       []any{},
		"examples":    []any{},
		"code_blocks": []any{},
	}
}

func removeTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

// escapeStrayQuotes rewrites single-quoted strings as double-quoted ones and
// escapes double quotes that appear inside a string without closing it.
func escapeStrayQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	var delim byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' || c == '\'' {
				inString = true
				delim = c
				b.WriteByte('"')
				continue
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if next == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(next)
			}
			i++
		case c == delim && closesString(s, i+1):
			inString = false
			b.WriteByte('"')
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closesString reports whether the next non-space byte at or after i is structural.
func closesString(s string, i int) bool {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', ':', '}', ']':
			return true
		default:
			return false
		}
	}
	return true
}

// escapeControlChars escapes raw newlines, carriage returns and tabs inside string literals.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				b.WriteByte(c)
				if i+1 < len(s) {
					i++
					b.WriteByte(s[i])
				}
				continue
			case '"':
				inString = false
			case '\n':
				b.WriteString(`\n`)
				continue
			case '\r':
				b.WriteString(`\r`)
				continue
			case '\t':
				b.WriteString(`\t`)
				continue
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
