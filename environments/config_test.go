package environments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 500, cfg.Jobs.EvaluatorBatchSize)
	assert.Equal(t, 200, cfg.Jobs.DispatcherBatchSize)
	assert.Equal(t, 500, cfg.Jobs.IngestionBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.Cooldown)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Jobs.AutoStart)
	assert.False(t, cfg.OpenAI.TemplateAutosend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EVALUATOR_BATCH_SIZE", "25")
	t.Setenv("JOB_INTERVAL", "90s")
	t.Setenv("COOLDOWN", "not-a-duration")
	t.Setenv("TEMPLATE_AUTOSEND", "true")

	cfg := Load()

	assert.True(t, cfg.OpenAI.TemplateAutosend)

	assert.Equal(t, 25, cfg.Jobs.EvaluatorBatchSize)
	assert.Equal(t, 90*time.Second, cfg.Jobs.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.Cooldown, "invalid duration falls back to default")
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("SOME_FLAG", "true")
	assert.True(t, GetEnvAsBool("SOME_FLAG", false))

	t.Setenv("SOME_FLAG", "nope")
	assert.False(t, GetEnvAsBool("SOME_FLAG", false))
}

func TestLoad_AdminKeys(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "single")
	assert.Equal(t, []string{"single"}, Load().Auth.AdminAPIKeys)

	t.Setenv("ADMIN_API_KEYS", " current , previous,, ")
	assert.Equal(t, []string{"current", "previous"}, Load().Auth.AdminAPIKeys)
}
