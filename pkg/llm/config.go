package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/config"
)

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	APIURL      string
	MaxTokens   int
	Temperature float64
}

// LoadConfig loads the LLM provider configuration from the environment
// variables of the external interface: LLM_BASE_URL, LLM_API_KEY, LLM_MODEL,
// LLM_TEMPERATURE. LLM_PROVIDER selects which Provider implementation backs
// the chat-completions call; it defaults to the OpenAI-compatible provider
// since LLM_BASE_URL/LLM_MODEL describe that shape.
func LoadConfig() Config {
	temp := 0.3
	if raw := config.GetEnv("LLM_TEMPERATURE", ""); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			temp = parsed
		}
	}
	return Config{
		Provider:    config.GetEnv("LLM_PROVIDER", "openai"),
		Model:       config.GetEnv("LLM_MODEL", ""),
		APIKey:      config.GetEnv("LLM_API_KEY", ""),
		APIURL:      config.GetEnv("LLM_BASE_URL", ""),
		Temperature: temp,
	}
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
