package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.App.Debug, "development implies debug")
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)

	assert.Equal(t, 1, cfg.Points.CalculationCost)
	assert.Equal(t, 10, cfg.Points.SignupBonus)
	assert.Equal(t, 5, cfg.Points.ReferralBonus)

	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Empty(t, cfg.HTTP.APIKeyHashes)

	assert.True(t, cfg.Digest.Enabled)
	assert.Equal(t, 9, cfg.Digest.Hour)
	assert.Equal(t, 24*time.Hour, cfg.Digest.Window)

	require.NotNil(t, cfg.Features)
	assert.True(t, cfg.Features.IsEnabled(FeatureStatsCache))
	assert.True(t, cfg.Features.IsEnabled(FeatureKnownUserCache))
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("POINTS_SIGNUP_BONUS", "25")
	t.Setenv("POINTS_CALCULATION_COST", "2")
	t.Setenv("SESSION_IDLE_TTL", "1h")
	t.Setenv("TELEGRAM_ADMIN_IDS", "10, 20,oops,30")
	t.Setenv("HTTP_API_KEY_HASHES", "$2a$hash-one, $2a$hash-two")
	t.Setenv("DIGEST_HOUR", "21")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Points.SignupBonus)
	assert.Equal(t, 2, cfg.Points.CalculationCost)
	assert.Equal(t, time.Hour, cfg.Session.IdleTTL)
	assert.Equal(t, []int64{10, 20, 30}, cfg.Telegram.AdminIDs, "unparseable entries are skipped")
	assert.Equal(t, []string{"$2a$hash-one", "$2a$hash-two"}, cfg.HTTP.APIKeyHashes)
	assert.Equal(t, 21, cfg.Digest.Hour)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("POINTS_SIGNUP_BONUS", "lots")
	t.Setenv("SESSION_IDLE_TTL", "soon")
	t.Setenv("APP_DEBUG", "kinda")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Points.SignupBonus)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
}

func TestLoadProductionRequiresDatabase(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: ""},
		Points:   PointsConfig{CalculationCost: -1, SignupBonus: -1, ReferralBonus: 0},
		Session:  SessionConfig{IdleTTL: -time.Minute},
		HTTP:     HTTPConfig{Port: 0},
		Digest:   DigestConfig{Hour: 24, Minute: 60, Window: 0},
	}

	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{
		"TELEGRAM_BOT_TOKEN",
		"POINTS_CALCULATION_COST",
		"POINTS_SIGNUP_BONUS",
		"SESSION_IDLE_TTL",
		"HTTP_PORT",
		"DIGEST_HOUR",
		"DIGEST_MINUTE",
		"DIGEST_WINDOW",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestFeatureFlagOverridesFromEnv(t *testing.T) {
	t.Setenv("FEATURE_CACHE_STATS", "false")

	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled(FeatureStatsCache))
	assert.True(t, ff.IsEnabled(FeatureKnownUserCache))
	assert.False(t, ff.IsEnabled("no.such.feature"))

	ff.Set(FeatureStatsCache, true)
	assert.True(t, ff.IsEnabled(FeatureStatsCache))

	all := ff.All()
	require.Len(t, all, 2)
	assert.Equal(t, FeatureKnownUserCache, all[0].Name, "sorted by name")
}
