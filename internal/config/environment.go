package config

import (
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnv loads a .env file into the process environment when one exists.
// ENV_FILE overrides the default path. Variables already set are not overwritten.
func loadDotEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}
