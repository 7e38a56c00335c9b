// Package config loads service configuration from environment variables.
// Every key has a default; invalid values fail startup with a descriptive
// error rather than silently falling back.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/storage"
)

// Config is the full service configuration
type Config struct {
	// HTTPPort is the listen port for the API server
	HTTPPort int
	// LogLevel is one of debug, info, warn, error
	LogLevel string

	LLM     llm.Config
	Storage storage.Config

	// ThresholdOverrides adjusts the built-in confidence defaults per action
	// type before they are seeded into storage
	ThresholdOverrides map[string]float64
	// MaxRetries bounds recovery attempts per step
	MaxRetries int
	// ProactiveRefinement enables the pre-step refinement pass
	ProactiveRefinement bool
	// FailFast stops runs on the first failed or unverified step
	FailFast bool
	// CaptureScreenshots embeds screenshots in step snapshots
	CaptureScreenshots bool
}

// thresholdKeys maps environment suffixes to threshold action types
var thresholdKeys = map[string]string{
	"CONFIDENCE_THRESHOLD":         "default",
	"CONFIDENCE_THRESHOLD_DEFAULT": "default",
	"CONFIDENCE_THRESHOLD_CLICK":   "click",
	"CONFIDENCE_THRESHOLD_TYPE":    "type",
	"CONFIDENCE_THRESHOLD_HOVER":   "hover",
	"CONFIDENCE_THRESHOLD_VERIFY":  "verify",
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := intEnv("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	maxRetries, err := intEnv("MAX_RETRIES", 2)
	if err != nil {
		return nil, err
	}
	proactive, err := boolEnv("PROACTIVE_REFINEMENT", true)
	if err != nil {
		return nil, err
	}
	failFast, err := boolEnv("FAIL_FAST", true)
	if err != nil {
		return nil, err
	}
	screenshots, err := boolEnv("CAPTURE_SCREENSHOTS", true)
	if err != nil {
		return nil, err
	}

	logLevel := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL %q (expected debug, info, warn, or error)", logLevel)
	}

	overrides := make(map[string]float64)
	for key, action := range thresholdKeys {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		if value < 0 || value > 1 {
			return nil, fmt.Errorf("invalid %s: %v is outside [0,1]", key, value)
		}
		// the specific key wins over the bare CONFIDENCE_THRESHOLD
		if key == "CONFIDENCE_THRESHOLD" {
			if _, ok := overrides[action]; ok {
				continue
			}
		}
		overrides[action] = value
	}

	return &Config{
		HTTPPort: port,
		LogLevel: logLevel,
		LLM: llm.Config{
			Provider:                strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "openai")),
			OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:             getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
			OpenAIVisionModel:       os.Getenv("OPENAI_VISION_MODEL"),
			OpenAIPlannerModel:      os.Getenv("OPENAI_PLANNER_MODEL"),
			AnthropicAPIKey:         os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel:          getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			AnthropicVisionModel:    os.Getenv("ANTHROPIC_VISION_MODEL"),
			AnthropicPlannerModel:   os.Getenv("ANTHROPIC_PLANNER_MODEL"),
			AnthropicBedrockBaseURL: os.Getenv("ANTHROPIC_BEDROCK_BASE_URL"),
			AnthropicAuthToken:      os.Getenv("ANTHROPIC_AUTH_TOKEN"),
		},
		Storage: storage.Config{
			Type:     strings.ToLower(getEnvOrDefault("STORAGE_TYPE", "memory")),
			RedisURL: getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		},
		ThresholdOverrides:  overrides,
		MaxRetries:          maxRetries,
		ProactiveRefinement: proactive,
		FailFast:            failFast,
		CaptureScreenshots:  screenshots,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func boolEnv(key string, defaultVal bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
