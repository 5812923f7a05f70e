// Package config provides configuration loading and management for helmsman.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	DataDir   string          `json:"data_dir,omitempty"  mapstructure:"data_dir"`
	LogFile   string          `json:"log_file,omitempty"  mapstructure:"log_file"`
	Policy    Policy          `json:"policy"              mapstructure:"policy"`
	Advisor   AdvisorConfig   `json:"advisor"             mapstructure:"advisor"`
	Retention RetentionPolicy `json:"retention"           mapstructure:"retention"`
	Web       WebConfig       `json:"web"                 mapstructure:"web"`
}

// Policy controls decision defaults that are deliberately configurable.
type Policy struct {
	// DefaultPermission decides what happens when a permission prompt
	// matches no safety pattern: "approve" answers yes at low
	// confidence, "wait" defers to the user.
	DefaultPermission string `json:"default_permission" mapstructure:"default_permission"`
	AnswerQuestions   bool   `json:"answer_questions"   mapstructure:"answer_questions"`
}

// AdvisorConfig describes the rate-limited external advisor.
type AdvisorConfig struct {
	BaseURL      string        `json:"base_url,omitempty"     mapstructure:"base_url"`
	Model        string        `json:"model,omitempty"        mapstructure:"model"`
	APIKeyEnv    string        `json:"api_key_env,omitempty"  mapstructure:"api_key_env"`
	MaxTokens    int           `json:"max_tokens,omitempty"   mapstructure:"max_tokens"`
	Temperature  float64       `json:"temperature,omitempty"  mapstructure:"temperature"`
	CallsPerHour int           `json:"calls_per_hour"         mapstructure:"calls_per_hour"`
	Timeout      time.Duration `json:"timeout,omitempty"      mapstructure:"timeout"`
}

// RetentionPolicy defines how long learning experiences are kept.
type RetentionPolicy struct {
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// WebConfig configures the read-only status server.
type WebConfig struct {
	Listen string `json:"listen,omitempty" mapstructure:"listen"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Policy: Policy{
			DefaultPermission: "approve",
			AnswerQuestions:   true,
		},
		Advisor: AdvisorConfig{
			BaseURL:      "https://api.deepseek.com/v1",
			Model:        "deepseek-chat",
			APIKeyEnv:    "HELMSMAN_ADVISOR_API_KEY",
			MaxTokens:    500,
			Temperature:  0.7,
			CallsPerHour: 5,
			Timeout:      60 * time.Second,
		},
		Retention: RetentionPolicy{KeepDays: 30},
		Web:       WebConfig{Listen: "127.0.0.1:8787"},
	}
}
