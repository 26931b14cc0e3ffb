package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the shared database handle
var DB *sqlx.DB

// Connect establishes a connection to the database. When DATABASE_URL is
// set it connects to Postgres; otherwise it opens (creating if needed) a
// local SQLite file under QUIZBOT_DB_PATH or data/quizbot.db.
func Connect() error {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		DB = db
		return initializeSchema()
	}

	dbPath := os.Getenv("QUIZBOT_DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join("data", "quizbot.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable foreign keys
	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	DB = db

	return initializeSchema()
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if DB.DriverName() == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	_, err := DB.Exec(`
		CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			time_per_question INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create quizzes table: %w", err)
	}

	_, err = DB.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS questions (
			id %s,
			quiz_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			choices TEXT NOT NULL,
			correct_index INTEGER NOT NULL,
			explanation TEXT,
			FOREIGN KEY (quiz_id) REFERENCES quizzes(id),
			UNIQUE(quiz_id, position)
		)
	`, serial))
	if err != nil {
		return fmt.Errorf("failed to create questions table: %w", err)
	}

	_, err = DB.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS results (
			id %s,
			quiz_id TEXT NOT NULL,
			participant_id BIGINT NOT NULL,
			score INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			duration_seconds INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
		)
	`, serial))
	if err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}

	return nil
}
