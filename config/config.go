package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the pipeline needs from the environment, plus the
// tuning knobs for capture and dispatch. API keys are required only for the
// features that use them; a missing OpenAI key switches transcription into
// dummy mode instead of failing startup.
type Config struct {
	Addr string

	OpenAIAPIKey     string
	OpenAIChatModel  string
	WhisperModel     string
	ElevenLabsAPIKey string
	ElevenLabsVoice  string
	JWTSecret        string
	DBPath           string

	ChunkCadence        time.Duration // how often the device emits a chunk
	DispatchInterval    time.Duration // how often the dispatcher tries to send
	MaxChunks           int           // sliding window size of the chunk buffer
	MinBackoff          time.Duration
	MaxBackoff          time.Duration
	NotifyInterval      time.Duration // min gap between rate-limit toasts
	MinOverlap          int           // reconciler overlap scan bounds, in chars
	MaxOverlap          int
	ResponseCheckpoints time.Duration // how often the agent sees the transcript
}

// Load reads .env if present and builds a Config from the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to environment variables")
	}

	return Config{
		Addr: getString("ADDR", ":3000"),

		OpenAIAPIKey:     os.Getenv("OPEN_AI_API_KEY"),
		OpenAIChatModel:  getString("OPEN_AI_CHAT_MODEL", "gpt-4o-mini"),
		WhisperModel:     getString("WHISPER_MODEL", "whisper-1"),
		ElevenLabsAPIKey: os.Getenv("ELEVEN_LABS_API_KEY"),
		ElevenLabsVoice:  getString("ELEVEN_LABS_VOICE_ID", "JBFqnCBsd6RMkjVDRZzb"),
		JWTSecret:        getString("JWT_SECRET", "dev-secret"),
		DBPath:           getString("DB_PATH", "voiceweb.db"),

		ChunkCadence:        getDuration("CHUNK_CADENCE_MS", 250*time.Millisecond),
		DispatchInterval:    getDuration("DISPATCH_INTERVAL_MS", 2000*time.Millisecond),
		MaxChunks:           getInt("MAX_CHUNKS", 40),
		MinBackoff:          getDuration("MIN_BACKOFF_MS", 1000*time.Millisecond),
		MaxBackoff:          getDuration("MAX_BACKOFF_MS", 10000*time.Millisecond),
		NotifyInterval:      getDuration("RATE_LIMIT_NOTIFY_MS", 10000*time.Millisecond),
		MinOverlap:          getInt("MIN_OVERLAP_CHARS", 5),
		MaxOverlap:          getInt("MAX_OVERLAP_CHARS", 100),
		ResponseCheckpoints: getDuration("RESPONSE_CHECKPOINT_MS", 15000*time.Millisecond),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
