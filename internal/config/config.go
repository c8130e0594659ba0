package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8787,
			Bind: "loopback",
		},
		LLM: LLMConfig{
			Provider:       "claude",
			TimeoutSeconds: 30,
		},
		Persona: PersonaConfig{
			Name: "Ramesh Kumar",
		},
		Policy: PolicyConfig{
			DetectionThreshold: 0.7,
			EngagementFloor:    8,
			MessageCeiling:     15,
		},
		Callback: CallbackConfig{
			TimeoutSeconds: 10,
		},
		Session: SessionConfig{
			Store: "sqlite",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
