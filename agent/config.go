package agent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joeshaw/envdecode"
)

// ChatProvider identifies the model provider. The numeric values are part
// of the runtime's config format.
type ChatProvider uint32

const (
	ProviderOpenAI            ChatProvider = 0
	ProviderAzureOpenAI       ChatProvider = 1
	ProviderOpenRouter        ChatProvider = 2
	ProviderAppleIntelligence ChatProvider = 3
	ProviderOllama            ChatProvider = 4
)

var providerNames = map[ChatProvider]string{
	ProviderOpenAI:            "openai",
	ProviderAzureOpenAI:       "azureopenai",
	ProviderOpenRouter:        "openrouter",
	ProviderAppleIntelligence: "appleintelligence",
	ProviderOllama:            "ollama",
}

func (p ChatProvider) String() string {
	if n, ok := providerNames[p]; ok {
		return n
	}
	return fmt.Sprintf("ChatProvider(%d)", uint32(p))
}

// ParseChatProvider accepts a provider name (case and separators ignored,
// "azure" and "apple" as short forms) or its numeric value.
func ParseChatProvider(s string) (ChatProvider, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "azure":
		return ProviderAzureOpenAI, nil
	case "apple":
		return ProviderAppleIntelligence, nil
	}
	for p, n := range providerNames {
		if n == norm {
			return p, nil
		}
	}
	if n, err := strconv.ParseUint(norm, 10, 32); err == nil {
		if _, ok := providerNames[ChatProvider(n)]; ok {
			return ChatProvider(n), nil
		}
	}
	return 0, fmt.Errorf("unknown chat provider %q", s)
}

// ProviderConfig selects the model the runtime talks to.
type ProviderConfig struct {
	Provider  ChatProvider `json:"provider"`
	ModelName string       `json:"modelName"`
	APIKey    string       `json:"apiKey,omitempty"`
	Endpoint  string       `json:"endpoint,omitempty"`
}

// Config is the agent configuration handed to the runtime.
type Config struct {
	Name                   string          `json:"name"`
	SystemInstructions     string          `json:"systemInstructions"`
	MaxFunctionCalls       int             `json:"maxFunctionCalls"`
	MaxConversationHistory int             `json:"maxConversationHistory"`
	Provider               *ProviderConfig `json:"provider"`
}

const (
	DefaultName                   = "HPD-Agent"
	DefaultInstructions           = "You are a helpful assistant."
	DefaultMaxFunctionCalls       = 10
	DefaultMaxConversationHistory = 20
)

// DefaultConfig returns the configuration an unconfigured agent runs with.
func DefaultConfig() Config {
	return Config{
		Name:                   DefaultName,
		SystemInstructions:     DefaultInstructions,
		MaxFunctionCalls:       DefaultMaxFunctionCalls,
		MaxConversationHistory: DefaultMaxConversationHistory,
	}
}

// Validate reports configuration the runtime would reject.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.MaxFunctionCalls < 0 {
		errs = append(errs, fmt.Errorf("maxFunctionCalls must not be negative, got %d", c.MaxFunctionCalls))
	}
	if c.MaxConversationHistory < 0 {
		errs = append(errs, fmt.Errorf("maxConversationHistory must not be negative, got %d", c.MaxConversationHistory))
	}
	if c.Provider != nil {
		if _, ok := providerNames[c.Provider.Provider]; !ok {
			errs = append(errs, fmt.Errorf("unknown provider %d", uint32(c.Provider.Provider)))
		}
		if strings.TrimSpace(c.Provider.ModelName) == "" {
			errs = append(errs, errors.New("provider modelName is required"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// envConfig is the environment form of Config.
type envConfig struct {
	// ENV: HPD_AGENT_NAME
	Name string `env:"HPD_AGENT_NAME,default=HPD-Agent"`
	// ENV: HPD_AGENT_INSTRUCTIONS
	Instructions string `env:"HPD_AGENT_INSTRUCTIONS,default=You are a helpful assistant."`
	// ENV: HPD_MAX_FUNCTION_CALLS
	MaxFunctionCalls int `env:"HPD_MAX_FUNCTION_CALLS,default=10"`
	// ENV: HPD_MAX_HISTORY
	MaxHistory int `env:"HPD_MAX_HISTORY,default=20"`
	// ENV: HPD_PROVIDER, a provider name or number.
	Provider string `env:"HPD_PROVIDER"`
	// ENV: HPD_MODEL
	Model string `env:"HPD_MODEL"`
	// ENV: HPD_API_KEY
	APIKey string `env:"HPD_API_KEY"`
	// ENV: HPD_ENDPOINT
	Endpoint string `env:"HPD_ENDPOINT"`
}

// ConfigFromEnv builds a Config from HPD_* environment variables using
// envdecode. Unset variables keep the defaults of DefaultConfig. A provider
// is configured only when HPD_PROVIDER or HPD_MODEL is set.
func ConfigFromEnv() (Config, error) {
	var ec envConfig
	if err := envdecode.Decode(&ec); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode agent config: %w", err)
	}

	cfg := DefaultConfig()
	if ec.Name != "" {
		cfg.Name = ec.Name
	}
	if ec.Instructions != "" {
		cfg.SystemInstructions = ec.Instructions
	}
	if ec.MaxFunctionCalls != 0 {
		cfg.MaxFunctionCalls = ec.MaxFunctionCalls
	}
	if ec.MaxHistory != 0 {
		cfg.MaxConversationHistory = ec.MaxHistory
	}
	if ec.Provider != "" || ec.Model != "" {
		pc := &ProviderConfig{Provider: ProviderOpenAI, ModelName: ec.Model, APIKey: ec.APIKey, Endpoint: ec.Endpoint}
		if ec.Provider != "" {
			p, err := ParseChatProvider(ec.Provider)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
			pc.Provider = p
		}
		cfg.Provider = pc
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
