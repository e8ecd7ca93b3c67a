package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	LogMode    string
	WebhookURL string

	TelegramBotToken string

	DefaultEngine string

	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	OpenAIEmbedModel string

	GeminiAPIKey     string
	GeminiModel      string
	GeminiEmbedModel string

	IndexDir     string
	DocumentsDir string
	PromptsFile  string

	LessonBatchSize  int
	LessonBatchDelay time.Duration

	// SessionTTL drops idle wizard sessions; GenerationRetention purges old
	// rows of the generation log.
	SessionTTL          time.Duration
	GenerationRetention time.Duration

	// DatabaseURL is empty when no generation log is configured.
	DatabaseURL string
}

const (
	CodeMissing = "missing"
	CodeInvalid = "invalid"
)

type ConfigError struct {
	Code string
	Key  string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s %s: %v", e.Code, e.Key, e.Err)
	}
	return fmt.Sprintf("config: %s %s", e.Code, e.Key)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		if err == nil {
			err = fmt.Errorf("must be > 0, got %d", n)
		}
		return 0, &ConfigError{Code: CodeInvalid, Key: k, Err: err}
	}
	return n, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		if err == nil {
			err = fmt.Errorf("must be >= 0, got %s", d)
		}
		return 0, &ConfigError{Code: CodeInvalid, Key: k, Err: err}
	}
	return d, nil
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		LogMode:    getEnv("LOG_MODE", "dev"),
		WebhookURL: getEnv("WEBHOOK_URL", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		DefaultEngine:    strings.ToLower(getEnv("DEFAULT_ENGINE", "gpt")),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIEmbedModel: getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiEmbedModel: getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),

		IndexDir:     getEnv("INDEX_DIR", "./corpus_index"),
		DocumentsDir: getEnv("DOCUMENTS_DIR", "./documents"),
		PromptsFile:  getEnv("PROMPTS_FILE", ""),

		DatabaseURL: ResolveDSN(),
	}

	var err error
	if cfg.LessonBatchSize, err = getInt("LESSON_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.LessonBatchDelay, err = getDuration("LESSON_BATCH_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.GenerationRetention, err = getDuration("GENERATION_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.OpenAIAPIKey == "" && cfg.GeminiAPIKey == "" {
		return nil, &ConfigError{Code: CodeMissing, Key: "OPENAI_API_KEY|GEMINI_API_KEY"}
	}
	switch cfg.DefaultEngine {
	case "gpt", "openai", "gemini":
	default:
		return nil, &ConfigError{Code: CodeInvalid, Key: "DEFAULT_ENGINE", Err: fmt.Errorf("unknown engine %q", cfg.DefaultEngine)}
	}
	return cfg, nil
}

// RequireTelegram is checked by the bot binary only.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return &ConfigError{Code: CodeMissing, Key: "TELEGRAM_BOT_TOKEN"}
	}
	return nil
}
