package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, entity.PLN, cfg.Portfolio.Base())
	assert.Equal(t, 14, cfg.Portfolio.SeriesWindow)
	assert.Equal(t, 30, cfg.Portfolio.ArchiveWindowDays)
	assert.Equal(t, 15*time.Minute, cfg.Portfolio.SnapshotMaxAge)

	table := cfg.Portfolio.DefaultRateTable()
	rate, ok := table.Rate(entity.EUR)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromFloat(4.3).Equal(rate))
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kantor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  base_url: https://ledger.example.com
  timeout: 3s
portfolio:
  min_deposit: 500
  series_window: 7
`), 0o600))

	t.Setenv("KANTOR_SERIES_WINDOW", "21")
	t.Setenv("KANTOR_FALLBACK_RATE", "3.5")
	t.Setenv("KANTOR_SNAPSHOT_MAX_AGE", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://ledger.example.com", cfg.Ledger.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 500.0, cfg.Portfolio.MinDeposit)
	assert.Equal(t, 21, cfg.Portfolio.SeriesWindow)
	assert.Equal(t, 3.5, cfg.Portfolio.FallbackRate)
	assert.Equal(t, 90*time.Second, cfg.Portfolio.SnapshotMaxAge)
	// untouched defaults survive the merge
	assert.Equal(t, 30, cfg.Portfolio.ArchiveWindowDays)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("KANTOR_BASE_CURRENCY", "JPY")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("KANTOR_TIMEOUT", "soon")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
