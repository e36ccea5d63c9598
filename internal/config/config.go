package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress    string
	DatabaseURL    string
	RedisAddr      string
	OpenAIKey      string
	OpenAIModelID  string
	WhisperURL     string
	WhisperModel   string
	AltLanguage    string
	AdminAPIKey    string
	ObjectivesPath string

	// Voice session timers (seconds)
	MaxStreamSeconds    int
	StalePartialSeconds int

	// Bound on external generation/persistence calls per turn (seconds)
	GenerateTimeoutSeconds int
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Println("Warning: DATABASE_URL not set - turn logging will not work")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - tutor replies will fall back to canned text")
	}
	openAIModel := os.Getenv("OPENAI_MODEL_ID")
	if openAIModel == "" {
		openAIModel = "gpt-4o-mini"
	}

	whisperURL := os.Getenv("WHISPER_URL")
	if whisperURL == "" {
		log.Println("Warning: WHISPER_URL not set - transcription will not work")
	}
	whisperModel := os.Getenv("WHISPER_MODEL")
	if whisperModel == "" {
		whisperModel = "base"
	}
	altLang := os.Getenv("ALT_LANGUAGE")
	if altLang == "" {
		altLang = "en"
	}

	objectivesPath := os.Getenv("OBJECTIVES_PATH")
	if objectivesPath == "" {
		objectivesPath = "db/objectives.csv"
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:            addr,
		DatabaseURL:            dbURL,
		RedisAddr:              redisAddr,
		OpenAIKey:              openAIKey,
		OpenAIModelID:          openAIModel,
		WhisperURL:             whisperURL,
		WhisperModel:           whisperModel,
		AltLanguage:            altLang,
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		ObjectivesPath:         objectivesPath,
		MaxStreamSeconds:       envInt("MAX_STREAM_SECONDS", 25),
		StalePartialSeconds:    envInt("STALE_PARTIAL_SECONDS", 10),
		GenerateTimeoutSeconds: envInt("GENERATE_TIMEOUT_SECONDS", 20),
	}
}
