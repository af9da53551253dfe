package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"campus-assistant/internal/models"

	"github.com/dgraph-io/badger/v4"
)

const (
	summaryPrefix = "summary/"
	quizPrefix    = "quiz/"
)

// BadgerLibrary keeps library entries in an embedded BadgerDB
type BadgerLibrary struct {
	db *badger.DB
}

var _ Library = (*BadgerLibrary)(nil)

// NewBadgerLibrary opens the database at path. An empty path keeps everything
// in memory.
func NewBadgerLibrary(path string) (*BadgerLibrary, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open library db: %w", err)
	}
	return &BadgerLibrary{db: db}, nil
}

func (l *BadgerLibrary) key(prefix, name string) ([]byte, error) {
	safe, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}
	return []byte(prefix + safe), nil
}

func (l *BadgerLibrary) set(prefix, name string, value []byte) error {
	key, err := l.key(prefix, name)
	if err != nil {
		return err
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (l *BadgerLibrary) get(prefix, name string) ([]byte, error) {
	key, err := l.key(prefix, name)
	if err != nil {
		return nil, err
	}
	var result []byte
	err = l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	return result, err
}

func (l *BadgerLibrary) list(prefix string) ([]string, error) {
	names := []string{}
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

func (l *BadgerLibrary) SaveSummary(name, text string) error {
	return l.set(summaryPrefix, name, []byte(text))
}

func (l *BadgerLibrary) ListSummaries() ([]string, error) {
	return l.list(summaryPrefix)
}

func (l *BadgerLibrary) LoadSummary(name string) (string, error) {
	data, err := l.get(summaryPrefix, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *BadgerLibrary) SaveQuiz(name string, items []models.QuizItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode quiz: %w", err)
	}
	return l.set(quizPrefix, name, data)
}

func (l *BadgerLibrary) ListQuizzes() ([]string, error) {
	return l.list(quizPrefix)
}

func (l *BadgerLibrary) LoadQuiz(name string) ([]models.QuizItem, error) {
	data, err := l.get(quizPrefix, name)
	if err != nil {
		return nil, err
	}
	return decodeQuiz(data)
}

func (l *BadgerLibrary) Close() error {
	return l.db.Close()
}
