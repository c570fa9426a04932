package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/infra/sqlite"
)

const validSingle = `{
	"summary": "Dining spend is rising.",
	"insights": [{
		"title": "Dining out is rising",
		"description": "Restaurant spend grew three months in a row.",
		"type": "spending_pattern",
		"confidence": 82,
		"priority": "high",
		"dataReferences": [{"type": "category_total", "name": "dining", "value": 412.5}],
		"actionItems": [{"description": "Set a monthly dining budget", "type": "adjust_budget", "priority": "high",
			"parameters": {"suggestedAmount": 300}}]
	}]
}`

const rawBundle = `{
	"email": "alice@example.com",
	"transactions": [
		{"date": "2024-01-05", "amount": -20.5, "category": "Dining"},
		{"date": "2024-02-05", "amount": -30, "category": "Dining"}
	]
}`

func newTestCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := &config.Config{
		AnonymizationSalt: "cli-test-salt-000000",
		MinConfidence:     70,
		SQLiteDBPath:      filepath.Join(t.TempDir(), "insights.db"),
	}
	return &cli{cfg: cfg, log: zerolog.Nop(), out: &out}, &out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSanitize(t *testing.T) {
	c, out := newTestCLI(t)

	err := c.runSanitize([]string{"-file", writeFile(t, "bundle.json", rawBundle), "-user", "alice"})

	require.NoError(t, err)
	assert.NotContains(t, out.String(), "alice@example.com")
	assert.Contains(t, out.String(), "_metadata")
}

func TestSanitize_RequiresFile(t *testing.T) {
	c, _ := newTestCLI(t)
	assert.Error(t, c.runSanitize(nil))
}

func TestPrompt(t *testing.T) {
	c, out := newTestCLI(t)

	err := c.runPrompt([]string{"-file", writeFile(t, "bundle.json", rawBundle), "-kind", "integrated"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "--- system ---")
	assert.Contains(t, out.String(), "integratedInsights")
	assert.NotContains(t, out.String(), "alice@example.com")
}

func TestValidate(t *testing.T) {
	c, out := newTestCLI(t)

	require.NoError(t, c.runValidate([]string{"-file", writeFile(t, "ok.json", validSingle)}))
	assert.Contains(t, out.String(), "valid")

	out.Reset()
	err := c.runValidate([]string{"-file", writeFile(t, "bad.json", `{"summary": "x", "insights": [{"title": "x"}]}`)})
	assert.True(t, errors.Is(err, errInvalid))
	assert.Contains(t, out.String(), "error:")
}

func TestGuard(t *testing.T) {
	c, out := newTestCLI(t)

	require.NoError(t, c.runGuard([]string{"-file", writeFile(t, "ok.json", validSingle)}))
	assert.Contains(t, out.String(), "_guarded")

	err := c.runGuard([]string{"-file", writeFile(t, "empty.json", `{}`)})
	assert.True(t, errors.Is(err, errInvalid))
}

func TestAnalyze_Replay(t *testing.T) {
	c, out := newTestCLI(t)

	err := c.runAnalyze([]string{
		"-user", "alice",
		"-file", writeFile(t, "bundle.json", rawBundle),
		"-response", writeFile(t, "response.json", validSingle),
	})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Dining out is rising")
}

func TestAnalyze_ReplayRejected(t *testing.T) {
	c, out := newTestCLI(t)

	err := c.runAnalyze([]string{
		"-user", "alice",
		"-file", writeFile(t, "bundle.json", rawBundle),
		"-response", writeFile(t, "response.json", `{"summary": "x", "insights": [{"title": "x"}]}`),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model response failed validation")
	assert.Contains(t, out.String(), "error:")
}

func TestImport(t *testing.T) {
	c, out := newTestCLI(t)
	file := writeFile(t, "txs.json", `[
		{"date": "2024-01-05", "description": "Pizza", "amount": -20.5, "category": "Dining"},
		{"date": "2024-01-06", "description": "Salary", "amount": 2500, "currency": "eur"}
	]`)

	require.NoError(t, c.runImport([]string{"-file", file, "-user", "alice"}))
	assert.Contains(t, out.String(), "imported 2")

	store, err := sqlite.Open(c.cfg.SQLiteDBPath, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	txs, err := store.ListTransactions(context.Background(), "alice", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "GBP", txs[0].Currency)
	assert.Equal(t, "EUR", txs[1].Currency)
}

func TestReadTransactions_InvalidDate(t *testing.T) {
	_, err := readTransactions(writeFile(t, "txs.json", `[{"date": "05/01/2024", "amount": 1}]`))
	assert.Error(t, err)
}
