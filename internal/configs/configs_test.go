package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnv_DevelopmentDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 4, cfg.PowDifficulty)
	assert.True(t, cfg.SeedUsers)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.False(t, cfg.AvatarStorageEnabled())
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestFromEnv_Production(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"ENVIRONMENT":          "production",
		"PORT":                 "8080",
		"JWT_SECRET":           "s3cret",
		"DATABASE_URL":         "postgres://db/quickchat",
		"ALLOWED_ORIGINS":      " https://a.example , ,https://b.example",
		"S3_BUCKET_NAME":       "avatars",
		"S3_ENDPOINT":          "https://s3.example",
		"S3_ACCESS_KEY_ID":     "id",
		"S3_SECRET_ACCESS_KEY": "key",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.SeedUsers)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.AvatarStorageEnabled())
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"bad port", map[string]string{"PORT": "http"}},
		{"privileged port", map[string]string{"PORT": "80"}},
		{"difficulty out of range", map[string]string{"POW_DIFFICULTY": "9"}},
		{"bad seed flag", map[string]string{"SEED_USERS": "maybe"}},
		{"missing secret in production", map[string]string{"ENVIRONMENT": "production", "DATABASE_URL": "x"}},
		{"missing dsn in production", map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "x"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"partial s3", map[string]string{"S3_BUCKET_NAME": "avatars"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.values))
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_MemoryDriverNeedsNoDSN(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"ENVIRONMENT":  "production",
		"JWT_SECRET":   "x",
		"STORE_DRIVER": "memory",
		"SEED_USERS":   "true",
	}))
	require.NoError(t, err)
	assert.Empty(t, cfg.DatabaseDSN)
	assert.True(t, cfg.SeedUsers)
}
