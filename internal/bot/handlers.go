package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/example/quizbot/internal/database"
	"github.com/example/quizbot/internal/excel"
	"github.com/example/quizbot/pkg/models"
)

// Callback data prefixes
const (
	callbackPlayPrefix = "play:"
	callbackQuizList   = "quiz_list"
)

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	var err error
	switch message.Command() {
	case "start":
		err = b.handleStart(message)
	case "help":
		err = b.handleHelp(message)
	case "quizzes":
		err = b.handleListQuizzes(message.Chat.ID)
	case "play":
		err = b.handlePlay(ctx, message)
	case "cancel":
		err = b.handleCancel(ctx, message)
	case "top":
		err = b.handleTop(message)
	case "import":
		if b.isAdmin(message.From.ID) {
			err = b.handleImport(message)
		} else {
			msg := tgbotapi.NewMessage(message.Chat.ID, "This command is only available for administrators.")
			err = b.sendMessage(msg)
		}
	default:
		err = b.handleUnknownCommand(message)
	}
	return err
}

func (b *Bot) handleStart(message *tgbotapi.Message) error {
	if message == nil || message.From == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}

	text := "👋 Welcome to the Quiz Bot!\n\n" +
		"🔹 How it works:\n" +
		"1. Pick a quiz from the list\n" +
		"2. Answer each question before the timer runs out\n" +
		"3. Get your score, time and rank at the end"

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "📋 Show quizzes", CallbackData: callbackQuizList}},
	})
	return b.sendMessage(msg)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) error {
	text := "📖 How to use the bot\n\n" +
		"🔸 Commands:\n" +
		"/quizzes - List available quizzes\n" +
		"/play <id> - Start a quiz\n" +
		"/cancel - Give up the current quiz\n" +
		"/top <id> - Show the leaderboard for a quiz\n\n" +
		"💡 Tips:\n" +
		"• Each question has its own countdown\n" +
		"• An unanswered question scores zero and the quiz moves on\n" +
		"• Starting a new quiz abandons the current one"

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	return b.sendMessage(msg)
}

func (b *Bot) handleListQuizzes(chatID int64) error {
	summaries, err := b.quizzes.List()
	if err != nil {
		return fmt.Errorf("list quizzes: %w", err)
	}

	if len(summaries) == 0 {
		msg := tgbotapi.NewMessage(chatID, "No quizzes yet. Ask an administrator to /import one.")
		return b.sendMessage(msg)
	}

	var buttons [][]MenuButton
	for _, s := range summaries {
		label := fmt.Sprintf("%s (%d questions, %ds each)", s.Name, s.QuestionCount, s.TimePerQuestion)
		buttons = append(buttons, []MenuButton{
			{Text: label, CallbackData: callbackPlayPrefix + s.ID},
		})
	}

	msg := tgbotapi.NewMessage(chatID, "📋 Available quizzes:")
	msg.ReplyMarkup = createKeyboard(buttons)
	return b.sendMessage(msg)
}

func (b *Bot) handlePlay(ctx context.Context, message *tgbotapi.Message) error {
	quizID := strings.TrimSpace(message.CommandArguments())
	if quizID == "" {
		msg := tgbotapi.NewMessage(message.Chat.ID, "Usage: /play <quiz id>. See /quizzes for the list.")
		return b.sendMessage(msg)
	}
	return b.startQuiz(ctx, quizID, message.From.ID, message.Chat.ID)
}

func (b *Bot) startQuiz(ctx context.Context, quizID string, userID, chatID int64) error {
	err := b.engine.Start(ctx, quizID, userID, chatID)
	if errors.Is(err, database.ErrQuizNotFound) {
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Quiz \"%s\" does not exist. See /quizzes for the list.", quizID))
		return b.sendMessage(msg)
	}
	return err
}

func (b *Bot) handleCancel(ctx context.Context, message *tgbotapi.Message) error {
	ok, err := b.engine.Abandon(ctx, message.From.ID)
	if err != nil {
		return fmt.Errorf("abandon session: %w", err)
	}
	if !ok {
		msg := tgbotapi.NewMessage(message.Chat.ID, "You have no quiz in progress.")
		return b.sendMessage(msg)
	}
	// The summary for the abandoned attempt is published by the engine.
	return nil
}

func (b *Bot) handleTop(message *tgbotapi.Message) error {
	quizID := strings.TrimSpace(message.CommandArguments())
	if quizID == "" {
		msg := tgbotapi.NewMessage(message.Chat.ID, "Usage: /top <quiz id>. See /quizzes for the list.")
		return b.sendMessage(msg)
	}

	results, err := b.results.ListByQuiz(quizID, 10)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	if len(results) == 0 {
		msg := tgbotapi.NewMessage(message.Chat.ID, "Nobody has finished this quiz yet.")
		return b.sendMessage(msg)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏆 Top results for \"%s\":\n\n", quizID))
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%d. %d/%d in %ds\n", i+1, r.Score, r.TotalQuestions, r.DurationSeconds))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, sb.String())
	return b.sendMessage(msg)
}

func (b *Bot) handleImport(message *tgbotapi.Message) error {
	b.setAwaitingUpload(message.Chat.ID, true)

	text := "📝 Send me a quiz file (.xlsx or .csv).\n\n" +
		"Columns: question, up to four choices, correct letter (A-D) or TRUE/FALSE, optional explanation.\n" +
		"Add a caption \"name | seconds per question\" to set the quiz name and timer."

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	return b.sendMessage(msg)
}

func (b *Bot) handleUnknownCommand(message *tgbotapi.Message) error {
	msg := tgbotapi.NewMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	return b.sendMessage(msg)
}

// HandleCallback handles inline keyboard presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	// Acknowledge first so the button stops spinning.
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn().Err(err).Msg("failed to acknowledge callback")
	}

	chatID := callbackChatID(callback)

	data := callback.Data
	switch {
	case data == callbackQuizList:
		return b.handleListQuizzes(chatID)
	case strings.HasPrefix(data, callbackPlayPrefix):
		quizID := strings.TrimPrefix(data, callbackPlayPrefix)
		return b.startQuiz(ctx, quizID, callback.From.ID, chatID)
	default:
		return fmt.Errorf("unknown callback data: %q", data)
	}
}

// callbackChatID picks the chat to respond in. Telegram omits Message on
// callbacks whose keyboard message is too old to attach; the sender's
// private chat (chat id == user id) is the fallback.
func callbackChatID(callback *tgbotapi.CallbackQuery) int64 {
	if callback.Message != nil && callback.Message.Chat != nil {
		return callback.Message.Chat.ID
	}
	return callback.From.ID
}

// handleQuizUpload downloads an admin's spreadsheet and registers it as a
// new quiz.
func (b *Bot) handleQuizUpload(ctx context.Context, message *tgbotapi.Message) error {
	b.setAwaitingUpload(message.Chat.ID, false)

	doc := message.Document
	path, err := b.downloadDocument(doc)
	if err != nil {
		msg := tgbotapi.NewMessage(message.Chat.ID, "❌ Could not download the file, please try again.")
		b.sendMessage(msg)
		return fmt.Errorf("download document: %w", err)
	}
	defer os.Remove(path)

	cfg := excel.DefaultImportConfig()
	cfg.FilePath = path
	questions, report, err := excel.ImportQuestions(cfg)
	if err != nil {
		msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("❌ Import failed: %v", err))
		return b.sendMessage(msg)
	}

	name, timePerQuestion := parseUploadCaption(message.Caption, doc.FileName, b.cfg.DefaultTimePerQuestion)

	q := &models.Quiz{
		ID:              shortID(),
		Name:            name,
		TimePerQuestion: timePerQuestion,
		Questions:       questions,
	}
	if err := b.quizzes.Create(q); err != nil {
		msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("❌ Could not save the quiz: %v", err))
		return b.sendMessage(msg)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Quiz \"%s\" imported (id: %s)\n", q.Name, q.ID))
	sb.WriteString(fmt.Sprintf("Questions: %d of %d rows\n", report.Created, report.TotalProcessed))
	sb.WriteString(fmt.Sprintf("Timer: %ds per question\n", q.TimePerQuestion))
	if len(report.Errors) > 0 {
		sb.WriteString("\n⚠️ Skipped rows:\n")
		for _, e := range report.Errors {
			sb.WriteString("• " + e + "\n")
		}
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, sb.String())
	return b.sendMessage(msg)
}

// downloadDocument fetches a Telegram document into a temp file, keeping
// the original extension so the importer can pick its format.
func (b *Bot) downloadDocument(doc *tgbotapi.Document) (string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: doc.FileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}

	resp, err := http.Get(file.Link(b.api.Token))
	if err != nil {
		return "", fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch file: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "quiz-upload-*"+filepath.Ext(doc.FileName))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}

	return tmp.Name(), nil
}

// parseUploadCaption reads a "name | seconds" caption, falling back to the
// file name and the configured default timer.
func parseUploadCaption(caption, fileName string, defaultSeconds int) (string, int) {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	seconds := defaultSeconds

	caption = strings.TrimSpace(caption)
	if caption == "" {
		return name, seconds
	}

	parts := strings.SplitN(caption, "|", 2)
	if n := strings.TrimSpace(parts[0]); n != "" {
		name = n
	}
	if len(parts) == 2 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			seconds = v
		}
	}

	return name, seconds
}

// shortID returns a compact quiz id that is easy to type in a chat.
func shortID() string {
	return uuid.NewString()[:8]
}
