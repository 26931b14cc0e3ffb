package database

import (
	"fmt"

	"github.com/example/quizbot/pkg/models"
)

// ResultRepository handles database operations for quiz results
type ResultRepository struct{}

// NewResultRepository creates a new repository instance
func NewResultRepository() *ResultRepository {
	return &ResultRepository{}
}

// Create appends a completed attempt. Results are never updated or deleted.
func (r *ResultRepository) Create(result *models.Result) error {
	_, err := DB.Exec(
		`INSERT INTO results (quiz_id, participant_id, score, total_questions,
			duration_seconds, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.QuizID,
		result.ParticipantID,
		result.Score,
		result.TotalQuestions,
		result.DurationSeconds,
		result.StartedAt,
		result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// CountByQuiz returns the number of finished attempts for a quiz.
func (r *ResultRepository) CountByQuiz(quizID string) (int, error) {
	var count int
	err := DB.Get(&count, `SELECT COUNT(*) FROM results WHERE quiz_id = $1`, quizID)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}

// CountBetter returns how many attempts for the quiz strictly beat the
// given score/duration pair: higher score, or equal score with lower
// duration. Equal score and equal duration do not count as better, so
// identical performances share a rank.
func (r *ResultRepository) CountBetter(quizID string, score, durationSeconds int) (int, error) {
	var count int
	err := DB.Get(&count,
		`SELECT COUNT(*) FROM results
		 WHERE quiz_id = $1
		   AND (score > $2 OR (score = $2 AND duration_seconds < $3))`,
		quizID, score, durationSeconds,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count better results: %w", err)
	}
	return count, nil
}

// ListByQuiz returns all results for a quiz ordered best-first: score
// descending, duration ascending, earliest finisher on full ties.
func (r *ResultRepository) ListByQuiz(quizID string, limit int) ([]models.Result, error) {
	var results []models.Result
	err := DB.Select(&results,
		`SELECT id, quiz_id, participant_id, score, total_questions,
			duration_seconds, started_at, finished_at
		 FROM results WHERE quiz_id = $1
		 ORDER BY score DESC, duration_seconds ASC, finished_at ASC
		 LIMIT $2`,
		quizID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}
