package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds the process configuration, populated from the environment.
type App struct {
	Env           string  `env:"APP_ENV" envDefault:"development"`
	TelegramToken string  `env:"TELEGRAM_BOT_TOKEN,notEmpty"`
	AdminUserIDs  []int64 `env:"ADMIN_USER_IDS" envSeparator:","`

	// DefaultTimePerQuestion is applied to imported quizzes whose upload
	// caption does not carry an explicit answer window.
	DefaultTimePerQuestion int           `env:"DEFAULT_TIME_PER_QUESTION" envDefault:"30"`
	AnswerGracePeriod      time.Duration `env:"ANSWER_GRACE_PERIOD" envDefault:"2s"`

	SessionReaperInterval time.Duration `env:"SESSION_REAPER_INTERVAL" envDefault:"10m"`
	SessionMaxAge         time.Duration `env:"SESSION_MAX_AGE" envDefault:"2h"`
}

// Load parses the process environment into an App.
func Load() (*App, error) {
	cfg := &App{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// IsAdmin reports whether the given user may manage quizzes.
func (a *App) IsAdmin(userID int64) bool {
	for _, id := range a.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
