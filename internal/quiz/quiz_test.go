package quiz

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"campus-assistant/internal/llmservice"
	"campus-assistant/internal/models"
)

const twoItems = `[
  {"question": " What is Go? ", "options": {"A": "A language", "B": "A game", "C": "A verb", "D": "A pet"}, "correct_option": "A ", "explanation": "The context says so."},
  {"question": "Who made it?", "options": {"A": "Google", "B": "IBM", "C": "Sun", "D": "Bell"}, "correct_option": "A", "explanation": "Stated."}
]`

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantItems int
		wantOK    bool
	}{
		{"clean array", twoItems, 2, true},
		{"array inside prose", "Sure! Here is the quiz:\n```json\n" + twoItems + "\n```\nGood luck.", 2, true},
		{"truncated array", `[{"question": "Q1", "options": {"A": "a"}, "correct_option": "A", "explanation": "e"}, {"question": "Q2", "opt`, 1, true},
		{"objects without brackets", `{"question": "Q1", "correct_option": "B"}, {"question": "Q2", "correct_option": "C"}`, 2, true},
		{"not json", "I cannot produce a quiz.", 1, false},
		{"empty array", "[]", 1, false},
		{"broken object", `[{"question": }]`, 1, false},
		{"empty response", "", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, ok := Parse(tt.raw)
			if ok != tt.wantOK || len(items) != tt.wantItems {
				t.Fatalf("Parse() = %d items, %v; want %d, %v", len(items), ok, tt.wantItems, tt.wantOK)
			}
			if !ok {
				if !items[0].IsRaw() || items[0].RawText() != tt.raw {
					t.Errorf("raw item = %+v, want raw %q", items[0], tt.raw)
				}
				data, err := json.Marshal(items)
				if err != nil {
					t.Fatal(err)
				}
				if !strings.Contains(string(data), `"raw":`) {
					t.Errorf("marshalled %s has no raw key", data)
				}
			}
			if ok && items[0].IsRaw() {
				t.Error("parsed item marked raw")
			}
		})
	}
}

func TestParseNormalizesFields(t *testing.T) {
	items, ok := Parse(twoItems)
	if !ok {
		t.Fatal("parse failed")
	}
	first := items[0]
	if first.Question != "What is Go?" || first.CorrectOption != "A" || first.Options["B"] != "A game" {
		t.Errorf("item = %+v", first)
	}

	items, _ = Parse(`[{"question": "no options"}]`)
	if items[0].Options == nil {
		t.Error("options should default to an empty map")
	}
}

func TestGenerate(t *testing.T) {
	mock := llmservice.NewMockClient(llmservice.MockResponse{Text: twoItems})
	g := NewGenerator(llmservice.NewGateway(mock, "m"), 2000)

	res := g.Generate(context.Background(), "Go is a language made at Google.", 2)
	if res.Outcome != models.OutcomeOK || len(res.Items) != 2 {
		t.Errorf("result = %+v", res)
	}
	call := mock.Calls()[0]
	if !strings.Contains(call.Prompt, "create EXACTLY 2 multiple-choice questions") ||
		!strings.Contains(call.Prompt, "CONTEXT:\nGo is a language made at Google.") {
		t.Errorf("prompt = %q", call.Prompt)
	}
	if call.MaxTokens != 2000 || call.Temperature != 0 {
		t.Errorf("call = %+v", call)
	}
}

func TestGenerateDegraded(t *testing.T) {
	mock := llmservice.NewMockClient(llmservice.MockResponse{Text: "no quiz today"})
	res := NewGenerator(llmservice.NewGateway(mock, "m"), 2000).Generate(context.Background(), "ctx", 5)
	if res.Outcome != models.OutcomeDegraded || len(res.Items) != 1 || res.Items[0].RawText() != "no quiz today" {
		t.Errorf("result = %+v", res)
	}
}

func TestChunkContext(t *testing.T) {
	chunks := []models.Chunk{
		{Text: strings.Repeat("a", 2000)},
		{Text: "short"},
	}
	got := ChunkContext(chunks)
	if want := strings.Repeat("a", 1500) + "\nshort"; got != want {
		t.Errorf("ChunkContext() length %d, want %d", len(got), len(want))
	}

	many := make([]models.Chunk, 10)
	for i := range many {
		many[i] = models.Chunk{Text: strings.Repeat("b", 1000)}
	}
	if got := ChunkContext(many); len(got) != 6000 {
		t.Errorf("ChunkContext() length = %d, want 6000", len(got))
	}
}
