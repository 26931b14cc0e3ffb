package models

// Question represents a single multiple-choice question
type Question struct {
	ID           int64    `json:"id" db:"id"`
	QuizID       string   `json:"quiz_id" db:"quiz_id"`
	Position     int      `json:"position" db:"position"` // order within the quiz
	Text         string   `json:"text" db:"text"`
	Choices      []string `json:"choices"`                // 2-4 answer options
	CorrectIndex int      `json:"correct_index" db:"correct_index"`
	Explanation  string   `json:"explanation" db:"explanation"`
}

// Valid reports whether the question satisfies the structural invariants:
// at least two choices, at most four, and a correct index inside the choices.
func (q Question) Valid() bool {
	if len(q.Choices) < 2 || len(q.Choices) > 4 {
		return false
	}
	return q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Choices)
}
