package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"campus-assistant/internal/models"
)

const (
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 200  // characters
)

var (
	hyphenBreakRe = regexp.MustCompile(`(\w)-\n(\w)`)
	whitespaceRe  = regexp.MustCompile(`\s{2,}`)
)

// PreprocessForLLM repairs words hyphenated across line breaks, joins hard-wrapped
// lines and collapses runs of whitespace.
func PreprocessForLLM(text string) string {
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	text = joinSingleNewlines(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// joinSingleNewlines turns every newline that is not part of a blank line into a space
func joinSingleNewlines(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		if r == '\n' {
			prevNL := i > 0 && runes[i-1] == '\n'
			nextNL := i+1 < len(runes) && runes[i+1] == '\n'
			if !prevNL && !nextNL {
				b.WriteRune(' ')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BuildCombinedDocument merges cleaned pages into one text with a header per page
func BuildCombinedDocument(pages []models.Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, fmt.Sprintf("--- PAGE %s ---\n%s", p.Label(), PreprocessForLLM(p.Text)))
	}
	return strings.Join(parts, "\n\n")
}

// ChunkText splits text into fixed windows of chunkSize characters, each starting
// overlap characters before the previous one ended. Offsets count runes.
func ChunkText(text string, chunkSize, overlap int) []models.Chunk {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}

	runes := []rune(text)
	textLen := len(runes)
	var chunks []models.Chunk
	start := 0
	for start < textLen {
		end := min(start+chunkSize, textLen)
		chunkText := strings.TrimFunc(string(runes[start:end]), unicode.IsSpace)
		if chunkText != "" {
			chunks = append(chunks, models.Chunk{
				ID:         models.ChunkID(len(chunks)),
				Text:       chunkText,
				StartChar:  start,
				EndChar:    end,
				HasOffsets: true,
			})
		}
		if end >= textLen {
			break
		}
		start = max(end-overlap, 0)
	}
	return chunks
}
