package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/example/quizbot/internal/config"
	"github.com/example/quizbot/internal/database"
	"github.com/example/quizbot/internal/quiz"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Bot represents the Telegram bot application. It also serves as the
// engine's transport: questions go out as native quiz polls so Telegram
// renders the countdown and highlights the correct option after voting.
type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.App
	engine  *quiz.Engine
	quizzes *database.QuizRepository
	results *database.ResultRepository
	logger  zerolog.Logger

	mu             sync.Mutex
	awaitingUpload map[int64]bool
}

// New creates a new bot instance
func New(cfg *config.App, logger zerolog.Logger) (*Bot, error) {
	if database.DB == nil {
		return nil, fmt.Errorf("database connection is not established")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %v", err)
	}

	b := &Bot{
		api:            api,
		cfg:            cfg,
		quizzes:        database.NewQuizRepository(),
		results:        database.NewResultRepository(),
		logger:         logger,
		awaitingUpload: make(map[int64]bool),
	}
	b.engine = quiz.NewEngine(b.quizzes, b.results, b, quiz.Options{Grace: cfg.AnswerGracePeriod}, logger)

	return b, nil
}

// Engine exposes the session state machine (used by the stale-session
// reaper).
func (b *Bot) Engine() *quiz.Engine {
	return b.engine
}

// Start begins receiving updates and blocks until the updates channel is
// closed by Stop.
func (b *Bot) Start() error {
	b.logger.Info().Str("account", b.api.Self.UserName).Msg("authorized")

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	// Poll answers are not delivered unless asked for explicitly.
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "poll_answer"}

	updates := b.api.GetUpdatesChan(updateConfig)

	for update := range updates {
		go b.handleUpdate(update)
	}

	return nil
}

// Stop gracefully stops the bot
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	b.logger.Info().Msg("bot stopped")
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(update tgbotapi.Update) {
	ctx := context.Background()

	switch {
	case update.PollAnswer != nil:
		b.handlePollAnswer(ctx, update.PollAnswer)
	case update.CallbackQuery != nil:
		if err := b.HandleCallback(ctx, update.CallbackQuery); err != nil {
			b.logger.Error().Err(err).Msg("callback handling failed")
		}
	case update.Message != nil:
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.logger.Error().Err(err).
				Int64("chat_id", update.Message.Chat.ID).
				Msg("message handling failed")
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.IsCommand() {
		return b.HandleCommand(ctx, message)
	}

	if message.Document != nil && b.isAwaitingUpload(message.Chat.ID) {
		return b.handleQuizUpload(ctx, message)
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, "I don't understand. Use /help to see available commands.")
	return b.sendMessage(msg)
}

// handlePollAnswer routes a participant's vote into the state machine. A
// retracted vote (empty option list) is not an answer.
func (b *Bot) handlePollAnswer(ctx context.Context, answer *tgbotapi.PollAnswer) {
	if len(answer.OptionIDs) == 0 {
		return
	}
	b.engine.ResolveAnswer(ctx, answer.PollID, answer.OptionIDs[0], answer.User.ID)
}

// PublishQuestion sends one question as a Telegram quiz poll and returns
// the poll id as the correlation token for the coming answer.
func (b *Bot) PublishQuestion(ctx context.Context, chatID int64, prompt quiz.Prompt) (string, error) {
	text := fmt.Sprintf("[%d/%d] %s", prompt.Number, prompt.Total, prompt.Text)

	poll := tgbotapi.NewPoll(chatID, text, prompt.Choices...)
	poll.Type = "quiz"
	poll.CorrectOptionID = int64(prompt.CorrectIndex)
	poll.IsAnonymous = false
	poll.OpenPeriod = int(prompt.TimeLimit.Seconds())
	if prompt.Explanation != "" {
		poll.Explanation = prompt.Explanation
	}

	sent, err := b.api.Send(poll)
	if err != nil {
		return "", fmt.Errorf("send poll: %w", err)
	}
	if sent.Poll == nil {
		return "", fmt.Errorf("send poll: response carries no poll")
	}

	return sent.Poll.ID, nil
}

// PublishSummary reports the finished attempt back to the chat.
func (b *Bot) PublishSummary(ctx context.Context, chatID int64, summary quiz.Summary) error {
	percent := 0
	if summary.Total > 0 {
		percent = summary.Score * 100 / summary.Total
	}

	text := fmt.Sprintf(
		"🏁 Quiz \"%s\" finished!\n\n"+
			"✅ Score: %d/%d (%d%%)\n"+
			"⏱ Time: %s\n"+
			"🏆 Rank: %d of %d participants",
		summary.QuizName,
		summary.Score, summary.Total, percent,
		summary.Duration.Round(time.Second),
		summary.Rank, summary.Participants,
	)

	msg := tgbotapi.NewMessage(chatID, text)
	return b.sendMessage(msg)
}

// isAdmin checks if a user is an admin
func (b *Bot) isAdmin(userID int64) bool {
	return b.cfg.IsAdmin(userID)
}

func (b *Bot) isAwaitingUpload(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaitingUpload[chatID]
}

func (b *Bot) setAwaitingUpload(chatID int64, waiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if waiting {
		b.awaitingUpload[chatID] = true
	} else {
		delete(b.awaitingUpload, chatID)
	}
}

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) error {
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
