package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	StorePath    string        // shared kv store, one file per chat "origin"
	SessionDir   string        // per-process session snapshots
	SocketPath   string        // control socket for this session process
	PollInterval time.Duration // sync loop period
	GeminiAPIKey string
	GeminiModel  string
}

func Load() *Config {
	// Optional .env in the working directory, environment wins.
	godotenv.Load()

	cfg := &Config{
		StorePath:    "localchat.db",
		SessionDir:   filepath.Join(os.TempDir(), "localchat-sessions"),
		SocketPath:   filepath.Join(os.TempDir(), "localchat-"+strconv.Itoa(os.Getpid())+".sock"),
		PollInterval: 2 * time.Second,
		GeminiModel:  "gemini-2.5-flash",
	}

	if path := os.Getenv("LOCALCHAT_STORE_PATH"); path != "" {
		cfg.StorePath = path
	}

	if dir := os.Getenv("LOCALCHAT_SESSION_DIR"); dir != "" {
		cfg.SessionDir = dir
	}

	if path := os.Getenv("LOCALCHAT_SOCKET_PATH"); path != "" {
		cfg.SocketPath = path
	}

	if intervalStr := os.Getenv("LOCALCHAT_POLL_INTERVAL_MS"); intervalStr != "" {
		if ms, err := strconv.Atoi(intervalStr); err == nil && ms > 0 {
			cfg.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.GeminiAPIKey = key
	}

	if model := os.Getenv("LOCALCHAT_GEMINI_MODEL"); model != "" {
		cfg.GeminiModel = model
	}

	return cfg
}
