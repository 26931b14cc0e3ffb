package quiz

import (
	"math/rand"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/example/quizbot/pkg/models"
)

// ShuffleQuestions builds the session-local question sequence for a new
// attempt: question order is uniformly permuted, and every question's
// choices are independently permuted with the correct index rewritten to
// follow the correct choice. The canonical slice is deep-copied first and
// never mutated.
func ShuffleQuestions(src []models.Question) []models.Question {
	questions := deepcopy.Copy(src).([]models.Question)

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})

	for idx := range questions {
		q := &questions[idx]
		correctText := q.Choices[q.CorrectIndex]

		rnd.Shuffle(len(q.Choices), func(i, j int) {
			q.Choices[i], q.Choices[j] = q.Choices[j], q.Choices[i]
		})

		// Relocate the correct choice by the first occurrence of its text.
		// When a question carries duplicate choice texts the first match
		// wins; that ambiguity is inherited behavior and kept as-is.
		for i, choice := range q.Choices {
			if choice == correctText {
				q.CorrectIndex = i
				break
			}
		}
	}

	return questions
}
