package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// CodeBlock is a fenced block lifted out of free text.
type CodeBlock struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

// The info string runs to the first whitespace, so tags like c++ and
// objective-c survive.
var fencedBlock = regexp.MustCompile("```([^\\s`]*)\\n([\\s\\S]*?)```")

// Placeholder returns the token standing in for the i-th block.
func Placeholder(i int) string {
	return fmt.Sprintf("CODE_BLOCK_%d", i)
}

// LiftCodeBlocks replaces fenced blocks with placeholders, in order of appearance.
func LiftCodeBlocks(text string) (string, []CodeBlock) {
	if !fencedBlock.MatchString(text) {
		return text, nil
	}
	var blocks []CodeBlock
	out := fencedBlock.ReplaceAllStringFunc(text, func(m string) string {
		parts := fencedBlock.FindStringSubmatch(m)
		lang := parts[1]
		if lang == "" {
			lang = "text"
		}
		id := Placeholder(len(blocks))
		blocks = append(blocks, CodeBlock{
			ID:       id,
			Language: lang,
			Code:     strings.TrimSpace(parts[2]),
		})
		return "\n\n" + id + "\n\n"
	})
	return out, blocks
}

// RestoreCodeBlocks puts blocks back in place of their placeholders.
// Higher indexes go first so CODE_BLOCK_1 never clobbers CODE_BLOCK_10.
func RestoreCodeBlocks(text string, blocks []CodeBlock) string {
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		text = strings.ReplaceAll(text, b.ID, "```"+b.Language+"\n"+b.Code+"\n```")
	}
	return text
}

// ProcessCodeBlocks normalizes fenced code in model text and reports the blocks it found.
func ProcessCodeBlocks(raw string) (string, []CodeBlock) {
	if raw == "" {
		return "", nil
	}
	lifted, blocks := LiftCodeBlocks(raw)
	if len(blocks) == 0 {
		return raw, nil
	}
	return strings.TrimSpace(RestoreCodeBlocks(lifted, blocks)), blocks
}

// HasCodeFence reports whether text contains a fenced code marker.
func HasCodeFence(text string) bool {
	return strings.Contains(text, "```")
}
