package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/quizbot/pkg/models"
)

// QuizRepository handles database operations for quizzes and their questions
type QuizRepository struct{}

// NewQuizRepository creates a new repository instance
func NewQuizRepository() *QuizRepository {
	return &QuizRepository{}
}

// Create persists a quiz together with its questions. The create is
// idempotent per id: inserting an id that already exists fails with
// ErrDuplicateID. Creation-time validation rejects quizzes whose time
// per question is outside [5,600] seconds or whose questions violate
// the structural invariants, with ErrInvalidConfig.
func (r *QuizRepository) Create(quiz *models.Quiz) error {
	if quiz.TimePerQuestion < models.MinTimePerQuestion || quiz.TimePerQuestion > models.MaxTimePerQuestion {
		return fmt.Errorf("%w: time per question %d outside [%d,%d]",
			ErrInvalidConfig, quiz.TimePerQuestion, models.MinTimePerQuestion, models.MaxTimePerQuestion)
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: quiz has no questions", ErrInvalidConfig)
	}
	for i, q := range quiz.Questions {
		if !q.Valid() {
			return fmt.Errorf("%w: question %d is malformed", ErrInvalidConfig, i+1)
		}
	}

	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now()
	}

	tx, err := DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO quizzes (id, name, time_per_question, created_at) VALUES ($1, $2, $3, $4)`,
		quiz.ID, quiz.Name, quiz.TimePerQuestion, quiz.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicateID, quiz.ID)
		}
		return fmt.Errorf("failed to insert quiz: %w", err)
	}

	for i, q := range quiz.Questions {
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return fmt.Errorf("failed to encode choices: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO questions (quiz_id, position, text, choices, correct_index, explanation)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			quiz.ID, i, q.Text, string(choices), q.CorrectIndex, q.Explanation,
		)
		if err != nil {
			return fmt.Errorf("failed to insert question %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// GetByID loads a quiz with its questions in upload order. Returns
// ErrQuizNotFound if no quiz exists with the given id.
func (r *QuizRepository) GetByID(id string) (*models.Quiz, error) {
	var quiz models.Quiz
	err := DB.QueryRow(
		`SELECT id, name, time_per_question, created_at FROM quizzes WHERE id = $1`, id,
	).Scan(&quiz.ID, &quiz.Name, &quiz.TimePerQuestion, &quiz.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	rows, err := DB.Query(
		`SELECT id, position, text, choices, correct_index, explanation
		 FROM questions WHERE quiz_id = $1 ORDER BY position ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q models.Question
		var choices string
		var explanation sql.NullString
		if err := rows.Scan(&q.ID, &q.Position, &q.Text, &choices, &q.CorrectIndex, &explanation); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(choices), &q.Choices); err != nil {
			return nil, fmt.Errorf("failed to decode choices: %w", err)
		}
		if explanation.Valid {
			q.Explanation = explanation.String
		}
		q.QuizID = quiz.ID
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}

	return &quiz, nil
}

// QuizSummary is a listing row: quiz metadata plus its question count.
type QuizSummary struct {
	ID              string `db:"id"`
	Name            string `db:"name"`
	TimePerQuestion int    `db:"time_per_question"`
	QuestionCount   int    `db:"question_count"`
}

// List returns all quizzes without their questions, newest first.
func (r *QuizRepository) List() ([]QuizSummary, error) {
	var summaries []QuizSummary
	err := DB.Select(&summaries,
		`SELECT q.id, q.name, q.time_per_question, COUNT(que.id) AS question_count
		 FROM quizzes q
		 LEFT JOIN questions que ON que.quiz_id = q.id
		 GROUP BY q.id, q.name, q.time_per_question, q.created_at
		 ORDER BY q.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	return summaries, nil
}
