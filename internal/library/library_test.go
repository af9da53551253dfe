package library

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"campus-assistant/internal/config"
	"campus-assistant/internal/models"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Week 1 notes", "Week 1 notes", false},
		{"../../etc/passwd", "....etcpasswd", false},
		{"quiz: chapter #2?", "quiz chapter 2", false},
		{"résumé_v1-final.v2", "résumé_v1-final.v2", false},
		{"/..", "", true},
		{"***", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SanitizeName(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("SanitizeName(%q) err = %v, want ErrInvalidName", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func backends(t *testing.T) map[string]Library {
	t.Helper()
	dir := t.TempDir()
	files, err := NewFileLibrary(filepath.Join(dir, "summaries"), filepath.Join(dir, "quizzes"))
	if err != nil {
		t.Fatal(err)
	}
	mem, err := NewBadgerLibrary("")
	if err != nil {
		t.Fatal(err)
	}
	disk, err := New(&config.LibraryConfig{Backend: "badger", BadgerPath: filepath.Join(dir, "db")})
	if err != nil {
		t.Fatal(err)
	}
	libs := map[string]Library{"files": files, "badger memory": mem, "badger disk": disk}
	t.Cleanup(func() {
		for _, l := range libs {
			l.Close()
		}
	})
	return libs
}

func TestLibraryRoundTrip(t *testing.T) {
	quiz := []models.QuizItem{
		{Question: "Q?", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}, CorrectOption: "B", Explanation: "because"},
		models.RawItem("unparsed output"),
		models.RawItem(""),
	}
	for name, lib := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := lib.SaveSummary("Week 2: graphs", "## Overview\ntext"); err != nil {
				t.Fatal(err)
			}
			if err := lib.SaveSummary("alpha", "first"); err != nil {
				t.Fatal(err)
			}
			if err := lib.SaveQuiz("midterm/1", quiz); err != nil {
				t.Fatal(err)
			}

			summaries, err := lib.ListSummaries()
			if err != nil {
				t.Fatal(err)
			}
			if want := []string{"Week 2 graphs", "alpha"}; !slices.Equal(summaries, want) {
				t.Errorf("ListSummaries() = %q, want %q", summaries, want)
			}
			quizzes, _ := lib.ListQuizzes()
			if want := []string{"midterm1"}; !slices.Equal(quizzes, want) {
				t.Errorf("ListQuizzes() = %q, want %q", quizzes, want)
			}

			text, err := lib.LoadSummary("Week 2: graphs")
			if err != nil || text != "## Overview\ntext" {
				t.Errorf("LoadSummary() = %q, %v", text, err)
			}
			loaded, err := lib.LoadQuiz("midterm1")
			if err != nil {
				t.Fatal(err)
			}
			if len(loaded) != 3 || loaded[0].Options["B"] != "b" || loaded[1].RawText() != "unparsed output" {
				t.Fatalf("LoadQuiz() = %+v", loaded)
			}
			if loaded[0].IsRaw() || !loaded[2].IsRaw() || loaded[2].RawText() != "" {
				t.Errorf("raw markers lost: %+v", loaded)
			}

			if _, err := lib.LoadSummary("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("LoadSummary(missing) err = %v", err)
			}
			if _, err := lib.LoadQuiz("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("LoadQuiz(missing) err = %v", err)
			}
			if err := lib.SaveSummary("///", "x"); !errors.Is(err, ErrInvalidName) {
				t.Errorf("SaveSummary(///) err = %v", err)
			}
		})
	}
}

func TestFileLibraryLayout(t *testing.T) {
	dir := t.TempDir()
	lib, err := NewFileLibrary(filepath.Join(dir, "s"), filepath.Join(dir, "q"))
	if err != nil {
		t.Fatal(err)
	}
	if err := lib.SaveQuiz("exam", []models.QuizItem{{Question: "Q"}}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "q", "exam.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "[\n    {") {
		t.Errorf("quiz file not indented: %q", data)
	}
	if err := lib.SaveSummary("notes", "body"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "s", "notes.txt")); err != nil {
		t.Error(err)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(&config.LibraryConfig{Backend: "s3"}); err == nil {
		t.Error("expected error")
	}
}
