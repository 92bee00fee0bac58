package bank

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"quiz-live/internal/models"
)

// QuestionRecord is the persisted form of a bank question.
type QuestionRecord struct {
	ID      uint           `gorm:"primaryKey"`
	Key     string         `gorm:"uniqueIndex;not null"`
	Text    string         `gorm:"not null"`
	Correct string         `gorm:"not null"`
	Options []OptionRecord `gorm:"foreignKey:QuestionRecordID"`
}

type OptionRecord struct {
	ID               uint   `gorm:"primaryKey"`
	QuestionRecordID uint   `gorm:"index"`
	Letter           string `gorm:"not null"`
	Text             string `gorm:"not null"`
}

// DBSource reads the question bank from Postgres.
type DBSource struct {
	db *gorm.DB
}

func NewDBSource(db *gorm.DB) *DBSource {
	return &DBSource{db: db}
}

// Migrate creates the bank tables.
func (s *DBSource) Migrate() error {
	return s.db.AutoMigrate(&QuestionRecord{}, &OptionRecord{})
}

func (s *DBSource) Load(ctx context.Context) ([]models.Question, error) {
	var records []QuestionRecord
	if err := s.db.WithContext(ctx).Preload("Options").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}

	questions := make([]models.Question, 0, len(records))
	for _, r := range records {
		q := models.Question{
			ID:      r.Key,
			Text:    r.Text,
			Correct: r.Correct,
			Answers: make(map[string]string, len(r.Options)),
		}
		for _, o := range r.Options {
			q.Answers[o.Letter] = o.Text
		}
		if err := Validate(q); err != nil {
			return nil, fmt.Errorf("question %s: %w", r.Key, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// Seed inserts questions into the bank, skipping keys already present.
func (s *DBSource) Seed(ctx context.Context, questions []models.Question) error {
	for _, q := range questions {
		if err := Validate(q); err != nil {
			return err
		}

		record := QuestionRecord{
			Key:     q.ID,
			Text:    q.Text,
			Correct: q.Correct,
		}
		for _, l := range letters {
			record.Options = append(record.Options, OptionRecord{
				Letter: l,
				Text:   q.Answers[l],
			})
		}

		err := s.db.WithContext(ctx).
			Where(QuestionRecord{Key: q.ID}).
			FirstOrCreate(&record).Error
		if err != nil {
			return fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	return nil
}
