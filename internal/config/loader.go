package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Server.APIKey = expandEnvVars(cfg.Server.APIKey)
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Callback.AuthToken = expandEnvVars(cfg.Callback.AuthToken)
	if cfg.Channels.Email != nil {
		cfg.Channels.Email.Password = expandEnvVars(cfg.Channels.Email.Password)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "loopback"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "claude"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 30
	}
	if cfg.Persona.Name == "" {
		cfg.Persona.Name = "Ramesh Kumar"
	}
	if cfg.Policy.DetectionThreshold == 0 {
		cfg.Policy.DetectionThreshold = 0.7
	}
	if cfg.Policy.EngagementFloor == 0 {
		cfg.Policy.EngagementFloor = 8
	}
	if cfg.Policy.MessageCeiling == 0 {
		cfg.Policy.MessageCeiling = 15
	}
	if cfg.Callback.TimeoutSeconds == 0 {
		cfg.Callback.TimeoutSeconds = 10
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "sqlite"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if e := cfg.Channels.Email; e != nil {
		if e.IMAPPort == 0 {
			e.IMAPPort = 993
		}
		if e.SMTPPort == 0 {
			e.SMTPPort = 587
		}
		if e.Mailbox == "" {
			e.Mailbox = "INBOX"
		}
		if e.PollSeconds == 0 {
			e.PollSeconds = 60
		}
	}
}

// applyEnvOverrides reads SNARE_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SNARE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SNARE_SERVER_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("SNARE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SNARE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SNARE_CALLBACK_URL"); v != "" {
		cfg.Callback.URL = v
	}
	if v := os.Getenv("SNARE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
