// Package bank loads the question bank and draws per-session samples.
package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/samber/lo"

	"quiz-live/internal/models"
)

var letters = []string{"A", "B", "C", "D"}

// FileSource reads the bank from a JSON file of the form
// {"questions": [{id, question, answers: {A..D}, correct}, ...]}.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Load(_ context.Context) ([]models.Question, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read question bank %s: %w", f.Path, err)
	}

	var doc struct {
		Questions []models.Question `json:"questions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question bank %s: %w", f.Path, err)
	}

	for i, q := range doc.Questions {
		if err := Validate(q); err != nil {
			return nil, fmt.Errorf("question %d (%s): %w", i, q.ID, err)
		}
	}
	return doc.Questions, nil
}

// Validate checks a record has a prompt, exactly the four A-D options and a
// correct letter pointing at one of them.
func Validate(q models.Question) error {
	if q.ID == "" {
		return fmt.Errorf("missing id")
	}
	if q.Text == "" {
		return fmt.Errorf("missing prompt")
	}
	if len(q.Answers) != len(letters) {
		return fmt.Errorf("expected %d options, got %d", len(letters), len(q.Answers))
	}
	for _, l := range letters {
		if _, ok := q.Answers[l]; !ok {
			return fmt.Errorf("missing option %s", l)
		}
	}
	if _, ok := q.Answers[q.Correct]; !ok {
		return fmt.Errorf("correct letter %q is not an option", q.Correct)
	}
	return nil
}

// Sample draws n questions at random without replacement, shuffled once.
// When the bank holds fewer than n questions the whole bank is returned in
// random order.
func Sample(questions []models.Question, n int) []models.Question {
	if n <= 0 || n >= len(questions) {
		return lo.Shuffle(append([]models.Question(nil), questions...))
	}
	return lo.Samples(questions, n)
}
