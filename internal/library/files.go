package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"campus-assistant/internal/helper"
	"campus-assistant/internal/models"
)

const (
	summaryExt = ".txt"
	quizExt    = ".json"
)

// FileLibrary keeps summaries as <name>.txt and quizzes as <name>.json
type FileLibrary struct {
	summaryDir string
	quizDir    string
}

var _ Library = (*FileLibrary)(nil)

func NewFileLibrary(summaryDir, quizDir string) (*FileLibrary, error) {
	for _, dir := range []string{summaryDir, quizDir} {
		if err := helper.CreateFolder(dir); err != nil {
			return nil, err
		}
	}
	return &FileLibrary{summaryDir: summaryDir, quizDir: quizDir}, nil
}

func (l *FileLibrary) path(dir, name, ext string) (string, error) {
	safe, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, safe+ext), nil
}

func (l *FileLibrary) SaveSummary(name, text string) error {
	p, err := l.path(l.summaryDir, name, summaryExt)
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(text), 0o644)
}

func (l *FileLibrary) ListSummaries() ([]string, error) {
	return listNames(l.summaryDir, summaryExt)
}

func (l *FileLibrary) LoadSummary(name string) (string, error) {
	p, err := l.path(l.summaryDir, name, summaryExt)
	if err != nil {
		return "", err
	}
	data, err := readEntry(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *FileLibrary) SaveQuiz(name string, items []models.QuizItem) error {
	p, err := l.path(l.quizDir, name, quizExt)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(items, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode quiz: %w", err)
	}
	return os.WriteFile(p, data, 0o644)
}

func (l *FileLibrary) ListQuizzes() ([]string, error) {
	return listNames(l.quizDir, quizExt)
}

func (l *FileLibrary) LoadQuiz(name string) ([]models.QuizItem, error) {
	p, err := l.path(l.quizDir, name, quizExt)
	if err != nil {
		return nil, err
	}
	data, err := readEntry(p)
	if err != nil {
		return nil, err
	}
	return decodeQuiz(data)
}

func (l *FileLibrary) Close() error { return nil }

func readEntry(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func listNames(dir, ext string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ext))
	}
	sort.Strings(names)
	return names, nil
}

func decodeQuiz(data []byte) ([]models.QuizItem, error) {
	var items []models.QuizItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode quiz: %w", err)
	}
	return items, nil
}
