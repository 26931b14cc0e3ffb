package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quizbot/internal/database"
	"github.com/example/quizbot/pkg/models"
)

type fakeLoader struct {
	quizzes map[string]*models.Quiz
}

func (l *fakeLoader) GetByID(id string) (*models.Quiz, error) {
	q, ok := l.quizzes[id]
	if !ok {
		return nil, database.ErrQuizNotFound
	}
	return q, nil
}

type memResults struct {
	mu   sync.Mutex
	rows []models.Result
}

func (m *memResults) Create(result *models.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *result)
	return nil
}

func (m *memResults) CountByQuiz(quizID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.rows {
		if r.QuizID == quizID {
			count++
		}
	}
	return count, nil
}

func (m *memResults) CountBetter(quizID string, score, durationSeconds int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.rows {
		if r.QuizID != quizID {
			continue
		}
		if r.Score > score || (r.Score == score && r.DurationSeconds < durationSeconds) {
			count++
		}
	}
	return count, nil
}

func (m *memResults) all() []models.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Result(nil), m.rows...)
}

type publishedQuestion struct {
	token  string
	chatID int64
	prompt Prompt
}

type fakeTransport struct {
	mu         sync.Mutex
	seq        int
	published  []publishedQuestion
	publishCh  chan publishedQuestion
	summaryCh  chan Summary
	publishErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		publishCh: make(chan publishedQuestion, 32),
		summaryCh: make(chan Summary, 8),
	}
}

func (f *fakeTransport) PublishQuestion(ctx context.Context, chatID int64, prompt Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.seq++
	p := publishedQuestion{
		token:  fmt.Sprintf("poll-%d", f.seq),
		chatID: chatID,
		prompt: prompt,
	}
	f.published = append(f.published, p)
	f.publishCh <- p
	return p.token, nil
}

func (f *fakeTransport) PublishSummary(ctx context.Context, chatID int64, summary Summary) error {
	f.summaryCh <- summary
	return nil
}

func (f *fakeTransport) last() publishedQuestion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func testQuiz(id string, timePerQuestion, questions int) *models.Quiz {
	q := &models.Quiz{
		ID:              id,
		Name:            "Test Quiz " + id,
		TimePerQuestion: timePerQuestion,
	}
	for i := 0; i < questions; i++ {
		q.Questions = append(q.Questions, models.Question{
			Text:         fmt.Sprintf("%s question %d", id, i),
			Choices:      []string{fmt.Sprintf("right %d", i), fmt.Sprintf("wrong %d", i)},
			CorrectIndex: 0,
		})
	}
	return q
}

func newTestEngine(grace time.Duration, quizzes ...*models.Quiz) (*Engine, *fakeTransport, *memResults) {
	loader := &fakeLoader{quizzes: make(map[string]*models.Quiz)}
	for _, q := range quizzes {
		loader.quizzes[q.ID] = q
	}
	results := &memResults{}
	transport := newFakeTransport()
	engine := NewEngine(loader, results, transport, Options{Grace: grace}, zerolog.Nop())
	return engine, transport, results
}

func waitSummary(t *testing.T, transport *fakeTransport) Summary {
	t.Helper()
	select {
	case s := <-transport.summaryCh:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no summary delivered")
		return Summary{}
	}
}

func TestStartUnknownQuiz(t *testing.T) {
	engine, transport, _ := newTestEngine(time.Hour)

	err := engine.Start(context.Background(), "missing", 1, 1)
	require.ErrorIs(t, err, database.ErrQuizNotFound)
	assert.Zero(t, transport.count())
	assert.Zero(t, engine.Store().Len())
}

func TestAnswerScoresAndAdvances(t *testing.T) {
	engine, transport, results := newTestEngine(time.Hour, testQuiz("q1", 300, 2))
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, "q1", 7, 7))
	require.Equal(t, 1, transport.count())

	// Correct answer on the first question.
	first := transport.last()
	assert.Equal(t, 1, first.prompt.Number)
	assert.Equal(t, 2, first.prompt.Total)
	engine.ResolveAnswer(ctx, first.token, first.prompt.CorrectIndex, 7)

	// ResolveAnswer advances synchronously.
	require.Equal(t, 2, transport.count())

	// Wrong answer on the second question finishes the quiz.
	second := transport.last()
	wrong := (second.prompt.CorrectIndex + 1) % len(second.prompt.Choices)
	engine.ResolveAnswer(ctx, second.token, wrong, 7)

	summary := waitSummary(t, transport)
	assert.Equal(t, 1, summary.Score)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Rank)
	assert.Equal(t, 1, summary.Participants)

	rows := results.all()
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Score)
	assert.Equal(t, 2, rows[0].TotalQuestions)
	assert.Equal(t, int64(7), rows[0].ParticipantID)

	assert.Zero(t, engine.Store().Len(), "finished session must be removed")
}

func TestTimeoutAdvancesWithoutScore(t *testing.T) {
	engine, transport, results := newTestEngine(5*time.Millisecond, testQuiz("q1", 0, 2))

	require.NoError(t, engine.Start(context.Background(), "q1", 9, 9))

	// Both questions expire on their own.
	for i := 0; i < 2; i++ {
		select {
		case <-transport.publishCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("question %d never published", i+1)
		}
	}

	summary := waitSummary(t, transport)
	assert.Equal(t, 0, summary.Score)
	assert.Equal(t, 2, summary.Total)

	rows := results.all()
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Score)
}

func TestLateAnswerAfterTimeoutIsIgnored(t *testing.T) {
	engine, transport, results := newTestEngine(5*time.Millisecond, testQuiz("q1", 0, 1))
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, "q1", 3, 3))
	first := transport.last()

	// Quiz finishes by timeout before the answer arrives.
	_ = waitSummary(t, transport)

	engine.ResolveAnswer(ctx, first.token, first.prompt.CorrectIndex, 3)

	rows := results.all()
	require.Len(t, rows, 1, "a late answer must not produce a second result")
	assert.Equal(t, 0, rows[0].Score, "a late answer must not score")
}

func TestConcurrentAnswerAndTimeoutResolveOnce(t *testing.T) {
	for trial := 0; trial < 20; trial++ {
		engine, transport, results := newTestEngine(time.Millisecond, testQuiz("q1", 0, 1))
		ctx := context.Background()

		require.NoError(t, engine.Start(ctx, "q1", 5, 5))
		first := transport.last()

		engine.ResolveAnswer(ctx, first.token, first.prompt.CorrectIndex, 5)

		summary := waitSummary(t, transport)
		rows := results.all()
		require.Len(t, rows, 1, "answer and timeout must resolve the question exactly once")
		assert.Equal(t, rows[0].Score, summary.Score)
		assert.LessOrEqual(t, rows[0].Score, 1)
	}
}

func TestStartReplacesActiveSession(t *testing.T) {
	engine, transport, results := newTestEngine(time.Hour, testQuiz("old", 300, 2), testQuiz("new", 300, 1))
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, "old", 11, 11))
	oldQuestion := transport.last()

	require.NoError(t, engine.Start(ctx, "new", 11, 11))
	require.Equal(t, 1, engine.Store().Len(), "replacement must not leak sessions")

	// The abandoned attempt commits nothing and its tokens are dead.
	engine.ResolveAnswer(ctx, oldQuestion.token, oldQuestion.prompt.CorrectIndex, 11)
	assert.Empty(t, results.all())
	assert.Equal(t, 2, transport.count(), "a stale token must not advance anything")

	// The new attempt still works end to end.
	newQuestion := transport.last()
	engine.ResolveAnswer(ctx, newQuestion.token, newQuestion.prompt.CorrectIndex, 11)

	summary := waitSummary(t, transport)
	assert.Equal(t, "Test Quiz new", summary.QuizName)
	assert.Equal(t, 1, summary.Score)

	rows := results.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].QuizID)
}

func TestGraceOption(t *testing.T) {
	loader := &fakeLoader{}
	results := &memResults{}
	transport := newFakeTransport()

	// Zero is a real setting, not a request for the default.
	assert.Zero(t, NewEngine(loader, results, transport, Options{Grace: 0}, zerolog.Nop()).grace)
	assert.Equal(t, DefaultGrace, NewEngine(loader, results, transport, Options{Grace: -1}, zerolog.Nop()).grace)
	assert.Equal(t, time.Second, NewEngine(loader, results, transport, Options{Grace: time.Second}, zerolog.Nop()).grace)
}

func TestZeroGraceStillExpires(t *testing.T) {
	engine, transport, results := newTestEngine(0, testQuiz("q1", 0, 1))

	require.NoError(t, engine.Start(context.Background(), "q1", 37, 37))

	summary := waitSummary(t, transport)
	assert.Equal(t, 0, summary.Score)
	require.Len(t, results.all(), 1)
}

func TestStaleExpirationAfterReplacementIsIgnored(t *testing.T) {
	engine, transport, results := newTestEngine(time.Hour, testQuiz("old", 300, 2), testQuiz("new", 300, 2))
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, "old", 31, 31))
	oldSess, ok := engine.Store().Get(31)
	require.True(t, ok)

	require.NoError(t, engine.Start(ctx, "new", 31, 31))
	require.Equal(t, 2, transport.count())

	// The old session's question 0 expiration fires after the replacement
	// already happened (its cancellation raced and lost). It must land on
	// the replaced session and die there, not advance the new one.
	engine.resolveTimeout(oldSess, 0)
	require.Equal(t, 2, transport.count(), "stale expiration must not publish on the new session")

	// The new session's question 0 is still live and scores normally.
	first := transport.last()
	require.Equal(t, 1, first.prompt.Number)
	engine.ResolveAnswer(ctx, first.token, first.prompt.CorrectIndex, 31)
	require.Equal(t, 3, transport.count())

	second := transport.last()
	engine.ResolveAnswer(ctx, second.token, second.prompt.CorrectIndex, 31)

	summary := waitSummary(t, transport)
	assert.Equal(t, 2, summary.Score, "in-time answers must score despite the stale expiration")
	require.Len(t, results.all(), 1)
	assert.Equal(t, "new", results.all()[0].QuizID)
}

func TestPublishFailureTearsDownSession(t *testing.T) {
	engine, transport, results := newTestEngine(time.Hour, testQuiz("q1", 300, 2))
	transport.publishErr = errors.New("network down")

	err := engine.Start(context.Background(), "q1", 13, 13)
	require.Error(t, err)
	assert.Zero(t, engine.Store().Len(), "failed session must not linger")
	assert.Empty(t, results.all())
}

func TestAbandonCommitsCurrentScore(t *testing.T) {
	engine, transport, results := newTestEngine(time.Hour, testQuiz("q1", 300, 3))
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, "q1", 17, 17))
	first := transport.last()
	engine.ResolveAnswer(ctx, first.token, first.prompt.CorrectIndex, 17)

	ok, err := engine.Abandon(ctx, 17)
	require.NoError(t, err)
	require.True(t, ok)

	summary := waitSummary(t, transport)
	assert.Equal(t, 1, summary.Score)
	assert.Equal(t, 3, summary.Total)

	rows := results.all()
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Score)
	assert.Zero(t, engine.Store().Len())

	// Abandoning again is a polite no-op.
	ok, err = engine.Abandon(ctx, 17)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAbandonStaleSweepsOldSessions(t *testing.T) {
	engine, transport, results := newTestEngine(time.Hour, testQuiz("q1", 300, 2))
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, "q1", 19, 19))

	sess, ok := engine.Store().Get(19)
	require.True(t, ok)
	sess.mu.Lock()
	sess.StartedAt = time.Now().Add(-3 * time.Hour)
	sess.mu.Unlock()

	assert.Zero(t, engine.AbandonStale(ctx, 4*time.Hour), "young-enough sessions stay")
	assert.Equal(t, 1, engine.AbandonStale(ctx, 2*time.Hour))
	assert.Zero(t, engine.Store().Len())

	_ = waitSummary(t, transport)
	require.Len(t, results.all(), 1)
}

func TestMixedOutcomesEndToEnd(t *testing.T) {
	engine, transport, results := newTestEngine(time.Hour, testQuiz("q1", 300, 3))
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, "q1", 29, 29))

	// Question 1: correct answer.
	first := transport.last()
	engine.ResolveAnswer(ctx, first.token, first.prompt.CorrectIndex, 29)

	// Question 2: the answer window elapses.
	sess, ok := engine.Store().Get(29)
	require.True(t, ok)
	second := transport.last()
	require.Equal(t, 2, second.prompt.Number)
	engine.resolveTimeout(sess, second.prompt.Number-1)

	// Question 3: wrong answer.
	third := transport.last()
	require.Equal(t, 3, third.prompt.Number)
	wrong := (third.prompt.CorrectIndex + 1) % len(third.prompt.Choices)
	engine.ResolveAnswer(ctx, third.token, wrong, 29)

	summary := waitSummary(t, transport)
	assert.Equal(t, 1, summary.Score)
	assert.Equal(t, 3, summary.Total)

	rows := results.all()
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Score)
	assert.Equal(t, 3, rows[0].TotalQuestions)
}

func TestRankReflectsEarlierFinishers(t *testing.T) {
	engine, transport, results := newTestEngine(time.Hour, testQuiz("q1", 300, 1))
	ctx := context.Background()

	// Two prior perfect runs, one slower zero run.
	seed := []models.Result{
		{QuizID: "q1", ParticipantID: 100, Score: 1, DurationSeconds: 10},
		{QuizID: "q1", ParticipantID: 101, Score: 1, DurationSeconds: 50},
		{QuizID: "q1", ParticipantID: 102, Score: 0, DurationSeconds: 5},
	}
	for i := range seed {
		require.NoError(t, results.Create(&seed[i]))
	}

	require.NoError(t, engine.Start(ctx, "q1", 23, 23))
	first := transport.last()
	wrong := (first.prompt.CorrectIndex + 1) % len(first.prompt.Choices)
	engine.ResolveAnswer(ctx, first.token, wrong, 23)

	summary := waitSummary(t, transport)
	assert.Equal(t, 0, summary.Score)
	assert.Equal(t, 3, summary.Rank, "only the two perfect runs rank above")
	assert.Equal(t, 4, summary.Participants)
}
