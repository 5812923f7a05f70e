package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "approve", cfg.Policy.DefaultPermission)
	assert.True(t, cfg.Policy.AnswerQuestions)
	assert.Equal(t, 5, cfg.Advisor.CallsPerHour)
	assert.Equal(t, 60*time.Second, cfg.Advisor.Timeout)
	assert.Equal(t, 30, cfg.Retention.KeepDays)
	assert.NotEmpty(t, cfg.Web.Listen)
}

func TestValidateSettingsAccepts(t *testing.T) {
	settings := map[string]any{
		"data_dir": "/tmp/helmsman",
		"policy": map[string]any{
			"default_permission": "wait",
			"answer_questions":   false,
		},
		"advisor": map[string]any{
			"model":          "deepseek-chat",
			"calls_per_hour": 3,
			"timeout":        "30s",
		},
		"retention": map[string]any{"keep_days": 14},
		"web":       map[string]any{"listen": "127.0.0.1:9000"},
	}
	require.NoError(t, ValidateSettings(settings))
}

func TestValidateSettingsRejectsBadPermission(t *testing.T) {
	err := ValidateSettings(map[string]any{
		"policy": map[string]any{"default_permission": "maybe"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_permission")
}

func TestValidateSettingsRejectsUnknownKeys(t *testing.T) {
	err := ValidateSettings(map[string]any{"unknown_key": true})
	assert.Error(t, err)
}

func TestValidateSettingsRejectsNegativeRetention(t *testing.T) {
	err := ValidateSettings(map[string]any{
		"retention": map[string]any{"keep_days": -1},
	})
	assert.Error(t, err)
}
