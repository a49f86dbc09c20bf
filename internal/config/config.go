package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config carries all server settings, loaded once at startup.
type Config struct {
	ServerPort     string
	DownloadDir    string
	MaxConcurrent  int
	ClientBuffer   int
	HistoryDB      string
	YtdlpPath      string
	CleanupEnabled bool
	CleanupMaxAge  time.Duration
}

// Load reads settings from the environment, falling back to defaults.
func Load() *Config {
	home, _ := os.UserHomeDir()
	defaultDir := filepath.Join(home, "Downloads", "VideoDownloader")

	return &Config{
		ServerPort:     getEnv("PORT", ":8080"),
		DownloadDir:    getEnv("DOWNLOAD_DIR", defaultDir),
		MaxConcurrent:  getEnvAsInt("MAX_CONCURRENT", 3),
		ClientBuffer:   getEnvAsInt("CLIENT_BUFFER", 100),
		HistoryDB:      getEnv("HISTORY_DB", "history.db"),
		YtdlpPath:      getEnv("YTDLP_PATH", "yt-dlp"),
		CleanupEnabled: getEnv("CLEANUP_ENABLED", "") == "true",
		CleanupMaxAge:  time.Duration(getEnvAsInt("CLEANUP_MAX_AGE_HOURS", 24)) * time.Hour,
	}
}

// SupportedFormats lists the output containers offered to clients.
func (c *Config) SupportedFormats() []string {
	return []string{"mp4", "mkv", "webm"}
}

// SupportedBitrates lists the audio bitrates offered to clients.
func (c *Config) SupportedBitrates() []string {
	return []string{"128", "192", "320"}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
