package models

import "fmt"

// Page is the text extracted from one page, slide or sheet of an uploaded file
type Page struct {
	Source string
	Number int
	Text   string
}

// Label identifies the page inside the combined document, e.g. "notes.pdf (Page 3)"
func (p Page) Label() string {
	if p.Source == "" {
		return fmt.Sprintf("%d", p.Number)
	}
	return fmt.Sprintf("%s (Page %d)", p.Source, p.Number)
}

// Chunk is a contiguous span of the combined source document
type Chunk struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	// HasOffsets is false when the store returned a chunk without position metadata
	HasOffsets bool `json:"-"`
}

// RetrievalResult is a chunk annotated with its distance from a query embedding.
// Lower distance means more similar.
type RetrievalResult struct {
	Chunk
	Distance float64 `json:"distance"`
}

// ChunkID formats the id assigned to the n-th chunk of a collection generation
func ChunkID(n int) string {
	return fmt.Sprintf("chunk_%d", n)
}

// Snippet cuts text to maxChars characters and marks the cut. maxChars <= 0 keeps
// the whole text.
func Snippet(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + TruncationMarker
}

// SourceBlock renders one chunk for a prompt context
func SourceBlock(id, text string, maxChars int) string {
	return SourceIDPrefix + id + "\n" + Snippet(text, maxChars)
}
