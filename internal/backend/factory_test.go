package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-insights/internal/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	return &config.Config{
		AnonymizationSalt: "factory-test-salt-0001",
		ModelProvider:     config.ProviderOpenAI,
		OpenAIAPIKey:      "sk-test",
		OpenAIModel:       "gpt-4o-mini",
		ModelTimeout:      5 * time.Second,
		ModelMaxAttempts:  2,
		MinConfidence:     70,
		DataBackend:       config.BackendSQLite,
		SQLiteDBPath:      filepath.Join(t.TempDir(), "insights.db"),
	}
}

func TestBuild_SQLite(t *testing.T) {
	res, err := Build(context.Background(), sqliteConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer res.Cleanup()

	require.NotNil(t, res.Service)
	require.NotNil(t, res.SQLite)

	list, err := res.Service.ListForUser(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBuild_UnsupportedBackend(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.DataBackend = "postgres"

	_, err := Build(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	cfg := sqliteConfig(t)

	gen, err := NewGenerator(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o-mini", gen.Name())

	cfg.ModelProvider = "llama"
	_, err = NewGenerator(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewSanitizer_UsesSalt(t *testing.T) {
	a := NewSanitizer(&config.Config{AnonymizationSalt: "salt-one-0000000000"}, zerolog.Nop())
	b := NewSanitizer(&config.Config{AnonymizationSalt: "salt-two-0000000000"}, zerolog.Nop())

	assert.NotEqual(t, a.AnonymizeUserID("alice"), b.AnonymizeUserID("alice"))
}
