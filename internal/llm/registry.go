package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/snare/internal/config"
	"github.com/soyeahso/snare/internal/logging"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Registry manages LLM provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name/alias to a provider.
// e.g., Alias("sonnet", "claude") means "sonnet" resolves to the "claude" provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}

	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}

	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}

// NewRegistryFromConfig builds a Registry with the configured API provider
// registered and set as fallback.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.Provider {
	case "claude":
		if cfg.APIKey != "" && cfg.Model != "" {
			reg.Register("claude", NewClaudeAPIClient(cfg.APIKey, cfg.Model, timeout))
			reg.SetFallback("claude")
			for _, alias := range []string{"sonnet", "opus", "haiku", "claude-sonnet", "claude-opus", "claude-haiku"} {
				reg.Alias(alias, "claude")
			}
		}

	case "gemini":
		if cfg.APIKey != "" && cfg.Model != "" {
			reg.Register("gemini", NewGeminiAPIClient(cfg.APIKey, cfg.Model, timeout))
			reg.SetFallback("gemini")
			for _, alias := range []string{"gemini-pro", "gemini-2.0"} {
				reg.Alias(alias, "gemini")
			}
		}

	case "ollama":
		if cfg.Model != "" {
			reg.Register("ollama", NewOllamaAPIClient(cfg.Endpoint, cfg.Model, timeout))
			reg.SetFallback("ollama")
			for _, alias := range []string{"llama", "llama2", "llama3", "mistral"} {
				reg.Alias(alias, "ollama")
			}
		}
	}

	return reg
}
