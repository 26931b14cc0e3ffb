package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/quizbot/pkg/models"
)

// DefaultGrace is the fixed slack added on top of each question's answer
// window before the engine gives up on the participant. It absorbs
// transport delivery latency so the provider-side countdown stays
// authoritative for the participant while the engine's timer decides when
// the session moves on.
const DefaultGrace = 2 * time.Second

// QuizLoader supplies immutable quizzes by id.
type QuizLoader interface {
	GetByID(id string) (*models.Quiz, error)
}

// ResultStore persists completed attempts and answers ranking queries.
type ResultStore interface {
	Create(result *models.Result) error
	CountByQuiz(quizID string) (int, error)
	CountBetter(quizID string, score, durationSeconds int) (int, error)
}

// Prompt is one published multiple-choice question.
type Prompt struct {
	Number       int // 1-based position within this attempt
	Total        int
	Text         string
	Choices      []string
	CorrectIndex int
	Explanation  string
	TimeLimit    time.Duration
}

// Summary is the completion report delivered back to the chat.
type Summary struct {
	QuizName     string
	Score        int
	Total        int
	Duration     time.Duration
	Rank         int
	Participants int
}

// Transport delivers prompts and summaries to a chat channel. Publishing a
// question returns an opaque correlation token that answer callbacks carry
// back.
type Transport interface {
	PublishQuestion(ctx context.Context, chatID int64, prompt Prompt) (token string, err error)
	PublishSummary(ctx context.Context, chatID int64, summary Summary) error
}

// Engine is the per-participant session state machine. Answers from the
// transport and expirations from the timer subsystem race to resolve each
// question; the session's answered set guarantees every question index is
// resolved exactly once, whichever producer wins.
type Engine struct {
	store     *SessionStore
	timers    *timerSet
	quizzes   QuizLoader
	results   ResultStore
	transport Transport
	grace     time.Duration
	logger    zerolog.Logger
}

// Options tunes engine behavior.
type Options struct {
	// Grace is the slack added to every question timer. Zero is honored
	// as no slack; a negative value selects DefaultGrace.
	Grace time.Duration
}

// NewEngine wires the state machine to its collaborators.
func NewEngine(quizzes QuizLoader, results ResultStore, transport Transport, opts Options, logger zerolog.Logger) *Engine {
	grace := opts.Grace
	if grace < 0 {
		grace = DefaultGrace
	}
	return &Engine{
		store:     NewSessionStore(),
		timers:    newTimerSet(),
		quizzes:   quizzes,
		results:   results,
		transport: transport,
		grace:     grace,
		logger:    logger,
	}
}

// Store exposes the session table (read-mostly; used by tests and status
// reporting).
func (e *Engine) Store() *SessionStore {
	return e.store
}

// Start begins a quiz attempt for the participant and publishes the first
// question. A session already in flight for the same participant is
// silently replaced; the abandoned attempt commits nothing.
func (e *Engine) Start(ctx context.Context, quizID string, participantID, chatID int64) error {
	q, err := e.quizzes.GetByID(quizID)
	if err != nil {
		return fmt.Errorf("load quiz %q: %w", quizID, err)
	}

	sess := &Session{
		ParticipantID:   participantID,
		ChatID:          chatID,
		QuizID:          q.ID,
		QuizName:        q.Name,
		Questions:       ShuffleQuestions(q.Questions),
		TimePerQuestion: time.Duration(q.TimePerQuestion) * time.Second,
		StartedAt:       time.Now(),
		answered:        make(map[int]bool),
		pending:         make(map[string]int),
	}

	if prev := e.store.Put(sess); prev != nil {
		prev.mu.Lock()
		prev.closed = true
		prev.mu.Unlock()
		e.timers.CancelAll(participantID)
		e.logger.Info().
			Int64("participant_id", participantID).
			Str("old_quiz", prev.QuizID).
			Str("new_quiz", quizID).
			Msg("active session replaced")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	e.logger.Info().
		Int64("participant_id", participantID).
		Str("quiz_id", quizID).
		Int("questions", len(sess.Questions)).
		Msg("session started")

	return e.advance(ctx, sess)
}

// ResolveAnswer applies a participant's answer for the question matching
// the correlation token. Stale callbacks are absorbed silently: unknown
// tokens, sessions that no longer exist, and questions already resolved by
// the timeout are all no-ops.
func (e *Engine) ResolveAnswer(ctx context.Context, token string, choiceIndex int, participantID int64) {
	sess, ok := e.store.Get(participantID)
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return
	}
	idx, ok := sess.pending[token]
	if !ok || sess.answered[idx] {
		return
	}

	sess.answered[idx] = true
	delete(sess.pending, token)

	correct := choiceIndex >= 0 &&
		choiceIndex < len(sess.Questions[idx].Choices) &&
		choiceIndex == sess.Questions[idx].CorrectIndex
	if correct {
		sess.Score++
	}

	// Best effort; a timer that already fired lost the race and its
	// callback is suppressed by the answered set above.
	e.timers.Cancel(participantID, idx)

	e.logger.Debug().
		Int64("participant_id", participantID).
		Str("quiz_id", sess.QuizID).
		Int("question", idx+1).
		Bool("correct", correct).
		Msg("answer resolved")

	if err := e.advance(ctx, sess); err != nil {
		e.logger.Error().Err(err).
			Int64("participant_id", participantID).
			Str("quiz_id", sess.QuizID).
			Msg("session aborted after answer")
	}
}

// resolveTimeout is invoked by the timer subsystem when a question's
// answer window (plus grace) elapses without an answer. Suppression
// mirrors ResolveAnswer: an index that was resolved first wins. The
// session is the one the timer was armed for, never looked up by
// participant id: an expiration that slipped past its cancellation while
// the session was being replaced must land on the replaced session, where
// the closed flag absorbs it, not on its successor.
func (e *Engine) resolveTimeout(sess *Session, questionIndex int) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed || sess.answered[questionIndex] {
		return
	}

	sess.answered[questionIndex] = true
	for token, idx := range sess.pending {
		if idx == questionIndex {
			delete(sess.pending, token)
			break
		}
	}

	e.logger.Debug().
		Int64("participant_id", sess.ParticipantID).
		Str("quiz_id", sess.QuizID).
		Int("question", questionIndex+1).
		Msg("question timed out")

	if err := e.advance(context.Background(), sess); err != nil {
		e.logger.Error().Err(err).
			Int64("participant_id", sess.ParticipantID).
			Str("quiz_id", sess.QuizID).
			Msg("session aborted after timeout")
	}
}

// advance publishes the next question or, when the list is exhausted,
// commits the result. Caller holds sess.mu. Within one session question
// i+1 is never published before question i has been resolved, because
// advance only ever runs from Start or from one of the two resolution
// paths.
func (e *Engine) advance(ctx context.Context, sess *Session) error {
	if sess.CurrentIndex >= len(sess.Questions) {
		return e.finish(ctx, sess)
	}

	q := sess.Questions[sess.CurrentIndex]
	prompt := Prompt{
		Number:       sess.CurrentIndex + 1,
		Total:        len(sess.Questions),
		Text:         q.Text,
		Choices:      q.Choices,
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.Explanation,
		TimeLimit:    sess.TimePerQuestion,
	}

	token, err := e.transport.PublishQuestion(ctx, sess.ChatID, prompt)
	if err != nil {
		// No retry: re-publishing without an idempotency key risks showing
		// the same question twice, so the session is torn down instead.
		e.teardown(sess)
		return fmt.Errorf("publish question %d: %w", sess.CurrentIndex+1, err)
	}

	// The token mapping is recorded only after the publish returned, so an
	// answer can never be accepted for a question that was not announced.
	idx := sess.CurrentIndex
	sess.pending[token] = idx
	e.timers.Arm(sess.ParticipantID, idx, sess.TimePerQuestion+e.grace, func(int64, int) {
		e.resolveTimeout(sess, idx)
	})
	sess.CurrentIndex++

	return nil
}

// finish commits the attempt, computes the rank among all finishers of the
// same quiz, removes the session and reports back. Caller holds sess.mu.
func (e *Engine) finish(ctx context.Context, sess *Session) error {
	finishedAt := time.Now()
	duration := time.Since(sess.StartedAt) // monotonic

	result := &models.Result{
		QuizID:          sess.QuizID,
		ParticipantID:   sess.ParticipantID,
		Score:           sess.Score,
		TotalQuestions:  len(sess.Questions),
		DurationSeconds: int(duration.Seconds()),
		StartedAt:       sess.StartedAt,
		FinishedAt:      finishedAt,
	}

	if err := e.results.Create(result); err != nil {
		e.teardown(sess)
		return fmt.Errorf("save result: %w", err)
	}

	sess.closed = true
	e.store.Remove(sess)
	e.timers.CancelAll(sess.ParticipantID)

	better, err := e.results.CountBetter(sess.QuizID, result.Score, result.DurationSeconds)
	if err != nil {
		return fmt.Errorf("compute rank: %w", err)
	}
	total, err := e.results.CountByQuiz(sess.QuizID)
	if err != nil {
		return fmt.Errorf("count finishers: %w", err)
	}

	summary := Summary{
		QuizName:     sess.QuizName,
		Score:        sess.Score,
		Total:        len(sess.Questions),
		Duration:     duration,
		Rank:         better + 1,
		Participants: total,
	}

	e.logger.Info().
		Int64("participant_id", sess.ParticipantID).
		Str("quiz_id", sess.QuizID).
		Int("score", summary.Score).
		Int("total", summary.Total).
		Int("rank", summary.Rank).
		Msg("session finished")

	if err := e.transport.PublishSummary(ctx, sess.ChatID, summary); err != nil {
		// The result is already committed; a lost summary message is not
		// fatal to the attempt.
		e.logger.Warn().Err(err).
			Int64("participant_id", sess.ParticipantID).
			Msg("failed to deliver summary")
	}

	return nil
}

// teardown drops a session that can no longer make progress, without
// committing a result. Caller holds sess.mu.
func (e *Engine) teardown(sess *Session) {
	sess.closed = true
	e.store.Remove(sess)
	e.timers.CancelAll(sess.ParticipantID)
}

// Abandon force-finishes the participant's active session with its current
// score, committing a result as if the remaining questions had timed out.
// Returns false if the participant has no active session.
func (e *Engine) Abandon(ctx context.Context, participantID int64) (bool, error) {
	sess, ok := e.store.Get(participantID)
	if !ok {
		return false, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return false, nil
	}

	e.logger.Info().
		Int64("participant_id", participantID).
		Str("quiz_id", sess.QuizID).
		Int("answered", len(sess.answered)).
		Msg("session abandoned")

	return true, e.finish(ctx, sess)
}

// AbandonStale force-finishes sessions older than maxAge. This is a
// backstop against sessions whose pending timer was lost (e.g. a transport
// failure between publish and arm); under normal operation every session
// keeps advancing through its own timers. Returns the number of sessions
// swept.
func (e *Engine) AbandonStale(ctx context.Context, maxAge time.Duration) int {
	swept := 0
	for _, sess := range e.store.Snapshot() {
		sess.mu.Lock()
		if !sess.closed && time.Since(sess.StartedAt) > maxAge {
			if err := e.finish(ctx, sess); err != nil {
				e.logger.Error().Err(err).
					Int64("participant_id", sess.ParticipantID).
					Msg("failed to sweep stale session")
			} else {
				swept++
			}
		}
		sess.mu.Unlock()
	}
	return swept
}
