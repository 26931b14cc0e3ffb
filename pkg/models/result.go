package models

import "time"

// Result records one completed quiz attempt. Rows are append-only; a
// participant may attempt the same quiz several times.
type Result struct {
	ID              int64     `json:"id" db:"id"`
	QuizID          string    `json:"quiz_id" db:"quiz_id"`
	ParticipantID   int64     `json:"participant_id" db:"participant_id"`
	Score           int       `json:"score" db:"score"`
	TotalQuestions  int       `json:"total_questions" db:"total_questions"`
	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`
	StartedAt       time.Time `json:"started_at" db:"started_at"`
	FinishedAt      time.Time `json:"finished_at" db:"finished_at"`
}
