package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	StreamAddr      string
	AgentBaseURL    string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	LogLevel        string
	LogFormat       string

	CacheDir           string
	CacheSizeBytes     int64 // 0 = unlimited
	CacheMinFreeBytes  int64 // 0 = no disk floor
	CacheSweepInterval time.Duration

	InitialBuffer  int64
	SeekWindow     int64
	MaxChunkBytes  int64
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	StreamReadWait time.Duration
	IdleTimeout    time.Duration // 0 = sessions never expire

	CORSAllowedOrigins []string // empty = allow all
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		StreamAddr:      getEnv("STREAM_LISTEN_ADDR", "127.0.0.1:0"),
		AgentBaseURL:    getEnv("AGENT_BASE_URL", "http://localhost:9091"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DB", "mediastream"),
		MongoCollection: getEnv("MONGO_COLLECTION", "watch_history"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		CacheDir:           getEnv("MEDIA_CACHE_DIR", "cache"),
		CacheSizeBytes:     getEnvInt64("MEDIA_CACHE_SIZE_BYTES", 0),
		CacheMinFreeBytes:  getEnvInt64("MEDIA_CACHE_MIN_FREE_BYTES", 0),
		CacheSweepInterval: getEnvDuration("MEDIA_CACHE_SWEEP_INTERVAL", 30*time.Second),

		InitialBuffer:  getEnvInt64("STREAM_INITIAL_BUFFER_BYTES", 2<<20),
		SeekWindow:     getEnvInt64("STREAM_SEEK_WINDOW_BYTES", 4<<20),
		MaxChunkBytes:  getEnvInt64("STREAM_MAX_CHUNK_BYTES", 16<<20),
		PollInterval:   getEnvDuration("STREAM_POLL_INTERVAL", 50*time.Millisecond),
		FetchTimeout:   getEnvDuration("STREAM_FETCH_TIMEOUT", 25*time.Second),
		StreamReadWait: getEnvDuration("STREAM_READ_WAIT", 30*time.Second),
		IdleTimeout:    getEnvDuration("STREAM_IDLE_TIMEOUT", 0),

		CORSAllowedOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
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
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}
