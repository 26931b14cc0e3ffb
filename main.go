package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/quizbot/internal/bot"
	"github.com/example/quizbot/internal/config"
	"github.com/example/quizbot/internal/database"
	"github.com/example/quizbot/internal/logging"
	"github.com/example/quizbot/internal/scheduler"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("quizbot", "unknown")
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New("quizbot", cfg.Env)

	if err := database.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	b, err := bot.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create bot")
	}

	reaper := scheduler.New(b.Engine(), cfg.SessionReaperInterval, cfg.SessionMaxAge, logger)
	reaper.Start()
	defer reaper.Stop()

	done := make(chan struct{})
	go func() {
		if err := b.Start(); err != nil {
			logger.Error().Err(err).Msg("bot stopped with error")
		}
		close(done)
	}()

	logger.Info().Msg("bot started, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	b.Stop()
	<-done
	logger.Info().Msg("bot stopped successfully")
}
