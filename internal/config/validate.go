package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}

	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.customBindHost",
			Message: "required when bind is custom",
		})
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertPath == "" || cfg.Server.TLS.KeyPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "server.tls",
				Message: "certPath and keyPath are required when TLS is enabled",
			})
		}
	}

	validProviders := []string{"claude", "gemini", "ollama"}
	if cfg.LLM.Provider != "" && !slices.Contains(validProviders, cfg.LLM.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "llm.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.LLM.Provider),
		})
	}
	if cfg.LLM.Provider != "" && cfg.LLM.Provider != "ollama" && cfg.LLM.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.apiKey",
			Message: "required for provider " + cfg.LLM.Provider,
		})
	}
	if cfg.LLM.Model == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.model",
			Message: "model is required",
		})
	}
	if cfg.LLM.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "llm.timeoutSeconds",
			Message: "must not be negative",
		})
	}

	if cfg.Policy.DetectionThreshold < 0 || cfg.Policy.DetectionThreshold > 1 {
		issues = append(issues, ValidationIssue{
			Path:    "policy.detectionThreshold",
			Message: fmt.Sprintf("must be within [0,1], got %g", cfg.Policy.DetectionThreshold),
		})
	}
	if cfg.Policy.EngagementFloor < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "policy.engagementFloor",
			Message: "must not be negative",
		})
	}
	if cfg.Policy.MessageCeiling < cfg.Policy.EngagementFloor {
		issues = append(issues, ValidationIssue{
			Path:    "policy.messageCeiling",
			Message: fmt.Sprintf("must be at least the engagement floor (%d)", cfg.Policy.EngagementFloor),
		})
	}

	validStores := []string{"sqlite", "memory"}
	if cfg.Session.Store != "" && !slices.Contains(validStores, cfg.Session.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "session.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Session.Store),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	// Email channel validation (only if configured)
	if e := cfg.Channels.Email; e != nil {
		if e.IMAPHost == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.email.imapHost",
				Message: "imapHost is required",
			})
		}
		if e.SMTPHost == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.email.smtpHost",
				Message: "smtpHost is required",
			})
		}
		if e.Address == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.email.address",
				Message: "address is required",
			})
		}
		if e.IMAPPort < 0 || e.IMAPPort > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "channels.email.imapPort",
				Message: fmt.Sprintf("port must be 0-65535, got %d", e.IMAPPort),
			})
		}
		if e.SMTPPort < 0 || e.SMTPPort > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "channels.email.smtpPort",
				Message: fmt.Sprintf("port must be 0-65535, got %d", e.SMTPPort),
			})
		}
	}

	return issues
}
