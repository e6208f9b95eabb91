package config

// Config is the daemon configuration.
//
// Files may be YAML or JSON; both are decoded strictly, so unknown keys are
// rejected. All durations are Go duration strings (e.g. "30s", "1m").
type Config struct {
	Logging   LoggingConfig          `json:"logging"`
	Storage   StorageConfig          `json:"storage"`
	Scheduler SchedulerConfig        `json:"scheduler"`
	Metrics   MetricsConfig          `json:"metrics,omitempty"`
	OAuth     map[string]OAuthClient `json:"oauth,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the sqlite database holding areas and OAuth tokens.
type StorageConfig struct {
	Path        string `json:"path" validate:"required"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the periodic sweep over enabled areas.
//
// Defaults (when fields are omitted/zero):
//   - interval: "1m"
//   - batch_size: 10
//   - call_timeout: "30s" (applied per rule evaluation)
type SchedulerConfig struct {
	Enabled     bool   `json:"enabled"`
	Interval    string `json:"interval,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty" validate:"omitempty,min=1"`
	CallTimeout string `json:"call_timeout,omitempty"`
}

// MetricsConfig controls the optional Prometheus exposition listener.
// Prefer binding to localhost.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// OAuthClient holds the OAuth2 client settings for one credential service
// ("google", "github", "microsoft", ...). The token manager only needs the
// token endpoint to refresh; the auth URL is consumed by the external API
// layer running the authorization-code flow.
type OAuthClient struct {
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret,omitempty"`
	AuthURL      string   `json:"auth_url,omitempty" validate:"omitempty,url"`
	TokenURL     string   `json:"token_url" validate:"required,url"`
	Scopes       []string `json:"scopes,omitempty"`
}
