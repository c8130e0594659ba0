package config

// Config is the root configuration for snare.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Persona  PersonaConfig  `yaml:"persona,omitempty"`
	Policy   PolicyConfig   `yaml:"policy,omitempty"`
	Callback CallbackConfig `yaml:"callback,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket gateway.
type ServerConfig struct {
	Port           int       `yaml:"port,omitempty"`
	Bind           string    `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string    `yaml:"customBindHost,omitempty"`
	APIKey         string    `yaml:"apiKey,omitempty"`
	AllowedOrigins []string  `yaml:"allowedOrigins,omitempty"`
	TLS            ServerTLS `yaml:"tls,omitempty"`
}

// ServerTLS configures TLS for the gateway.
type ServerTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// LLMConfig selects and configures the LLM provider used for both scam
// classification and persona responses.
type LLMConfig struct {
	Provider       string `yaml:"provider,omitempty"` // "claude" | "gemini" | "ollama"
	APIKey         string `yaml:"apiKey,omitempty"`
	Model          string `yaml:"model,omitempty"`
	Endpoint       string `yaml:"endpoint,omitempty"` // custom endpoint (for Ollama)
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// PersonaConfig shapes the decoy identity presented to scammers.
type PersonaConfig struct {
	Name string `yaml:"name,omitempty"`
	// Profile overrides the built-in persona description when set.
	Profile string `yaml:"profile,omitempty"`
}

// PolicyConfig tunes the detection and conclusion policy.
type PolicyConfig struct {
	DetectionThreshold float64 `yaml:"detectionThreshold,omitempty"` // engage above this confidence
	EngagementFloor    int     `yaml:"engagementFloor,omitempty"`   // min post-engagement messages
	MessageCeiling     int     `yaml:"messageCeiling,omitempty"`    // conclude at this total count
}

// CallbackConfig configures final report delivery.
type CallbackConfig struct {
	URL            string `yaml:"url,omitempty"`
	AuthToken      string `yaml:"authToken,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// SessionConfig selects the session store backing.
type SessionConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "memory"
}

// ChannelsConfig defines ingestion channel configurations.
type ChannelsConfig struct {
	Email *EmailConfig `yaml:"email,omitempty"`
}

// EmailConfig defines the IMAP/SMTP email ingestion channel.
type EmailConfig struct {
	IMAPHost    string `yaml:"imapHost"`
	IMAPPort    int    `yaml:"imapPort,omitempty"`
	SMTPHost    string `yaml:"smtpHost"`
	SMTPPort    int    `yaml:"smtpPort,omitempty"`
	Address     string `yaml:"address"`
	Password    string `yaml:"password,omitempty"`
	Mailbox     string `yaml:"mailbox,omitempty"`
	PollSeconds int    `yaml:"pollSeconds,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File  string `yaml:"file,omitempty"`
}
