package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func setBaseEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_USER", "market")
	t.Setenv("POSTGRES_DB", "market")
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_PORT", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("PAYPAL_CLIENT_ID", "")
	t.Setenv("KAFKA_BROKERS", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.PostgresPort)
	assert.Equal(t, "host=localhost port=5432 user=market password= dbname=market sslmode=disable", cfg.DSN())
	assert.False(t, cfg.IsProd())
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_DatabaseURLWins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db/market")
	t.Setenv("POSTGRES_USER", "")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/market", cfg.DSN())
}

func TestLoad_EnvFile(t *testing.T) {
	setBaseEnv(t)
	// godotenv never overrides a variable that is already set
	os.Unsetenv("KAFKA_BROKERS")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KAFKA_BROKERS=k1:9092, k2:9092 ,\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET is required"},
		{"bad port", map[string]string{"POSTGRES_PORT": "x"}, "POSTGRES_PORT must be number"},
		{"missing host", map[string]string{"POSTGRES_HOST": ""}, "POSTGRES_HOST is required"},
		{"stripe without webhook secret", map[string]string{"STRIPE_SECRET_KEY": "sk_test"}, "STRIPE_WEBHOOK_SECRET is required"},
		{"paypal without secret", map[string]string{"PAYPAL_CLIENT_ID": "id"}, "PAYPAL_SECRET and PAYPAL_WEBHOOK_ID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(noEnvFile(t))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}
