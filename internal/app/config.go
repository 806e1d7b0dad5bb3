package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	MediaDir     string
	DatabasePath string
	IdleImage    string

	StreamKey string
	RTMPURL   string

	MaxDurationSeconds int
	MaxFileSizeMB      int

	StreamBitrateVideo string
	StreamBitrateAudio string
	StreamPreset       string

	FFmpegPath string
	YTDLPPath  string

	ContentFilterScript string
	ScorerPath          string
	ScorerModelPath     string
	ScorerThresholds    string
	ModerationThreshold float64

	IdleSeconds int
}

func LoadConfig() Config {
	cfg := Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		MediaDir:     getEnv("MEDIA_DIR", "media"),
		DatabasePath: getEnv("DATABASE_PATH", "data/queue.db"),
		IdleImage:    getEnv("IDLE_IMAGE", "assets/idle.png"),

		StreamKey: getEnv("STREAM_KEY", ""),
		RTMPURL:   getEnv("RTMP_URL", ""),

		MaxDurationSeconds: int(getEnvInt64("MAX_DURATION_SECONDS", 600)),
		MaxFileSizeMB:      int(getEnvInt64("MAX_FILE_SIZE_MB", 500)),

		StreamBitrateVideo: getEnv("STREAM_BITRATE_VIDEO", "3000k"),
		StreamBitrateAudio: getEnv("STREAM_BITRATE_AUDIO", "128k"),
		StreamPreset:       getEnv("STREAM_PRESET", "veryfast"),

		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
		YTDLPPath:  getEnv("YTDLP_PATH", "yt-dlp"),

		ContentFilterScript: getEnv("CONTENT_FILTER_SCRIPT", ""),
		ScorerPath:          getEnv("SCORER_PATH", ""),
		ScorerModelPath:     getEnv("SCORER_MODEL_PATH", ""),
		ScorerThresholds:    getEnv("SCORER_THRESHOLDS_PATH", ""),
		ModerationThreshold: getEnvFloat("MODERATION_THRESHOLD", 0.20),

		IdleSeconds: int(getEnvInt64("IDLE_SECONDS", 30)),
	}

	// The outbound sink: either a full RTMP URL or a Twitch stream key.
	if cfg.RTMPURL == "" && cfg.StreamKey != "" {
		cfg.RTMPURL = fmt.Sprintf("rtmp://live.twitch.tv/app/%s", cfg.StreamKey)
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 || parsed >= 1 {
		return fallback
	}
	return parsed
}
