package library

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"campus-assistant/internal/config"
	"campus-assistant/internal/models"
)

var (
	ErrNotFound    = errors.New("library entry not found")
	ErrInvalidName = errors.New("library entry name is empty after sanitizing")
)

// Library persists named summaries and quizzes
type Library interface {
	SaveSummary(name, text string) error
	ListSummaries() ([]string, error)
	LoadSummary(name string) (string, error)
	SaveQuiz(name string, items []models.QuizItem) error
	ListQuizzes() ([]string, error)
	LoadQuiz(name string) ([]models.QuizItem, error)
	Close() error
}

// New opens the backend selected by cfg.Backend
func New(cfg *config.LibraryConfig) (Library, error) {
	switch cfg.Backend {
	case "files":
		return NewFileLibrary(cfg.SummaryDir, cfg.QuizDir)
	case "badger":
		return NewBadgerLibrary(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown library backend %q", cfg.Backend)
	}
}

// SanitizeName keeps letters, digits, space, '.', '_' and '-'
func SanitizeName(name string) (string, error) {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" ._-", r) {
			return r
		}
		return -1
	}, name)
	if strings.Trim(safe, " .") == "" {
		return "", ErrInvalidName
	}
	return safe, nil
}
