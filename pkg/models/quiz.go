package models

import "time"

// Limits for the per-question answer window, enforced at creation time.
const (
	MinTimePerQuestion = 5
	MaxTimePerQuestion = 600
)

// Quiz is an immutable question set created by the operator flow.
// Questions keep their upload order; sessions work on shuffled copies.
type Quiz struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	TimePerQuestion int        `json:"time_per_question" db:"time_per_question"` // seconds
	Questions       []Question `json:"questions"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}
