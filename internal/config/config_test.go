package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Groups: []Group{
			{
				Name:       "core",
				StartDate:  "2024-01-01",
				Symphonies: []SymphonyRef{{Name: "Alpha", ID: "id1"}},
			},
			{
				Name:       "monthly-report",
				Monthly:    true,
				Symphonies: []SymphonyRef{{Name: "Beta", ID: "id2"}},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no groups", func(c *Config) { c.Groups = nil }, "no symphony groups"},
		{"unnamed group", func(c *Config) { c.Groups[0].Name = "" }, "has no name"},
		{"both modes", func(c *Config) { c.Groups[1].StartDate = "2024-01-01" }, "both monthly mode and a fixed start_date"},
		{"no mode", func(c *Config) { c.Groups[0].StartDate = "" }, "needs either start_date or monthly"},
		{"bad start date", func(c *Config) { c.Groups[0].StartDate = "01/01/2024" }, "invalid start_date"},
		{"no symphonies", func(c *Config) { c.Groups[0].Symphonies = nil }, "has no symphonies"},
		{"symphony without id", func(c *Config) { c.Groups[0].Symphonies[0].ID = "" }, "without an id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestHasMonthly(t *testing.T) {
	cfg := validConfig()
	require.True(t, cfg.HasMonthly())

	cfg.Groups = cfg.Groups[:1]
	require.False(t, cfg.HasMonthly())
}

func TestGroupStart(t *testing.T) {
	start, err := Group{Name: "g", StartDate: "2024-01-15"}.Start()
	require.NoError(t, err)
	require.Equal(t, 2024, start.Year())
	require.Equal(t, 15, start.Day())

	_, err = Group{Name: "g", StartDate: "soon"}.Start()
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
api:
  live_base_url: http://localhost:8080/api/v1
fetch:
  max_retries: 5
groups:
  - name: core
    start_date: "2024-01-01"
    symphonies:
      - name: "Black Swan Catcher (SPY)"
        id: OLmQh1J0ePZof2F2nEn9
      - name: "EZ Win"
        id: RFgmUeWk5UgRLVb6s0tQ
  - name: monthly-report
    monthly: true
    symphonies:
      - name: "EZ Win"
        id: RFgmUeWk5UgRLVb6s0tQ
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// Explicit values survive, defaults fill the rest.
	require.Equal(t, "http://localhost:8080/api/v1", cfg.API.LiveBaseURL)
	require.Equal(t, "https://backtest-api.composer.trade/api/v2", cfg.API.BacktestBaseURL)
	require.Equal(t, 5, cfg.Fetch.MaxRetries)
	require.Equal(t, 500, cfg.Fetch.RetryDelayMS)

	require.Len(t, cfg.Groups, 2)
	require.Equal(t, "core", cfg.Groups[0].Name)
	require.Len(t, cfg.Groups[0].Symphonies, 2)
	require.Equal(t, "OLmQh1J0ePZof2F2nEn9", cfg.Groups[0].Symphonies[0].ID)
	require.True(t, cfg.Groups[1].Monthly)
}
