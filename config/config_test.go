package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"medquest/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: s3cret\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1313, cfg.Server.Port)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, 1000, cfg.Engine.HistoryLimit)
	assert.Equal(t, 50, cfg.Engine.Leveling.MaxLevel)
	assert.Equal(t, 1.15, cfg.Engine.Leveling.Multipliers[models.TrackQuestions])
	assert.Equal(t, 10, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5*time.Minute, cfg.Redis.StatsTTL)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
database:
  uri: mongodb://localhost:27017/medquest
redis:
  addr: localhost:6379
  statsTTL: 30s
jwt:
  secret: s3cret
engine:
  maxAttempts: 3
  timezone: Europe/Berlin
  leveling:
    maxLevel: 60
    baseXP: 120
    multipliers:
      questions: 1.3
rateLimit:
  max: 20
  window: 2m
logging:
  mode: production
cors:
  allowOrigins: ["https://app.medquest.dev"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver, "a database uri selects mongo")
	assert.Equal(t, 30*time.Second, cfg.Redis.StatsTTL)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, 60, cfg.Engine.Leveling.MaxLevel)
	assert.Equal(t, 120.0, cfg.Engine.Leveling.BaseXP)
	assert.Equal(t, 1.3, cfg.Engine.Leveling.Multipliers[models.TrackQuestions])
	assert.Equal(t, 20, cfg.RateLimit.Max)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "production", cfg.Logging.Mode)
	assert.Equal(t, []string{"https://app.medquest.dev"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\njwt:\n  secret: from-file\n")
	t.Setenv("MEDQUEST_PORT", "9090")
	t.Setenv("MEDQUEST_JWT_SECRET", "from-env")
	t.Setenv("MEDQUEST_STORE_DRIVER", "memory")
	t.Setenv("MEDQUEST_REDIS_ADDR", "redis:6379")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)

	t.Setenv("MEDQUEST_PORT", "eighty")
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "MissingSecret", body: "server:\n  port: 8080\n", want: "jwt.secret"},
		{name: "MongoWithoutURI", body: "jwt:\n  secret: x\nstore:\n  driver: mongo\n", want: "database.uri"},
		{name: "UnknownDriver", body: "jwt:\n  secret: x\nstore:\n  driver: postgres\n", want: "store.driver"},
		{name: "FlatCurve", body: "jwt:\n  secret: x\nengine:\n  leveling:\n    multipliers:\n      questions: 1\n", want: "greater than 1"},
		{name: "UnknownTrack", body: "jwt:\n  secret: x\nengine:\n  leveling:\n    multipliers:\n      surgery: 1.5\n", want: "unknown track"},
		{name: "BadTimezone", body: "jwt:\n  secret: x\nengine:\n  timezone: Mars/Olympus\n", want: "engine.timezone"},
		{name: "BadYAML", body: "server: [", want: "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadConfig_PartialMultipliersKeepOtherCurves(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: x\nengine:\n  leveling:\n    multipliers:\n      flashcards: 1.05\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1.05, cfg.Engine.Leveling.Multipliers[models.TrackFlashcards])
	assert.Equal(t, 1.2, cfg.Engine.Leveling.Multipliers[models.TrackClinicalCases])
	assert.Equal(t, 1.15, cfg.Engine.Leveling.Multipliers[models.TrackQuestions])
}
