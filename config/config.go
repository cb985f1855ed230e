// Package config reads the process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MeuralUsername string
	MeuralPassword string
	MeuralBaseURL  string

	Port      string
	StaticDir string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	GeminiAPIKey string

	GeocodeBaseURL   string
	GeocodeUserAgent string
}

// Load reads the environment. The vendor password is file-based by default
// (MEURAL_PASSWORD_FILE) so passwords with shell-special characters survive;
// MEURAL_PASSWORD is the plain fallback.
func Load() (*Config, error) {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &Config{
		MeuralUsername:   os.Getenv("MEURAL_USERNAME"),
		MeuralBaseURL:    os.Getenv("MEURAL_API_URL"),
		Port:             envDefault("PORT", "3000"),
		StaticDir:        envDefault("STATIC_DIR", "./static"),
		MongoURI:         envDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:    envDefault("MONGO_DB", "meural_manager"),
		MongoCollection:  envDefault("MONGO_COLLECTION", "photo_metadata"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeocodeBaseURL:   os.Getenv("GEOCODE_API_URL"),
		GeocodeUserAgent: envDefault("GEOCODE_USER_AGENT", "meural-manager/1.0"),
	}

	if path := os.Getenv("MEURAL_PASSWORD_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read password file: %w", err)
		}
		cfg.MeuralPassword = strings.TrimRight(string(data), "\r\n")
	} else {
		cfg.MeuralPassword = os.Getenv("MEURAL_PASSWORD")
	}

	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
