package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobFile = `
jobs:
  - name: vpin-btc
    type: vpin.refresh
    every: 30s
    enabled: true
    config:
      venues: [binance]
      symbols: [BTC-USD]
  - name: zones-nightly
    type: zones.reconcile
    every: 1h
    enabled: false
    config:
      staleness: 24h
global:
  timezone: UTC
`

func writeJobFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigParsesJobs(t *testing.T) {
	cfg, err := LoadConfig(writeJobFile(t, jobFile))
	require.NoError(t, err)

	require.Len(t, cfg.Jobs, 2)
	assert.Equal(t, "vpin.refresh", cfg.Jobs[0].Type)
	assert.Equal(t, 30*time.Second, cfg.Jobs[0].Every)
	assert.Equal(t, []string{"BTC-USD"}, cfg.Jobs[0].Config.Symbols)
	assert.False(t, cfg.Jobs[1].Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Jobs[1].Config.Staleness)
}

func TestLoadConfigRejectsEnabledJobWithoutInterval(t *testing.T) {
	bad := `
jobs:
  - name: broken
    type: vpin.refresh
    enabled: true
`
	_, err := LoadConfig(writeJobFile(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval must be positive")
}

func TestRunJobInvokesRegisteredRunner(t *testing.T) {
	cfg, err := LoadConfig(writeJobFile(t, jobFile))
	require.NoError(t, err)

	s := New(cfg, nil)
	var gotJob Job
	s.Register("vpin.refresh", func(ctx context.Context, job Job) error {
		gotJob = job
		return nil
	})

	res, err := s.RunJob(context.Background(), "vpin-btc", false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "vpin-btc", gotJob.Name)
	assert.Equal(t, []string{"binance"}, gotJob.Config.Venues)
}

func TestRunJobReportsRunnerError(t *testing.T) {
	cfg, err := LoadConfig(writeJobFile(t, jobFile))
	require.NoError(t, err)

	s := New(cfg, nil)
	s.Register("vpin.refresh", func(ctx context.Context, job Job) error {
		return errors.New("bucket store unavailable")
	})

	res, err := s.RunJob(context.Background(), "vpin-btc", false)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "bucket store unavailable")
}

func TestRunJobUnregisteredTypeFails(t *testing.T) {
	cfg, err := LoadConfig(writeJobFile(t, jobFile))
	require.NoError(t, err)

	res, err := New(cfg, nil).RunJob(context.Background(), "vpin-btc", false)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no runner registered")
}

func TestRunJobDryRunSkipsExecution(t *testing.T) {
	cfg, err := LoadConfig(writeJobFile(t, jobFile))
	require.NoError(t, err)

	s := New(cfg, nil)
	ran := false
	s.Register("vpin.refresh", func(ctx context.Context, job Job) error {
		ran = true
		return nil
	})

	res, err := s.RunJob(context.Background(), "vpin-btc", true)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, ran)
}

func TestRunJobUnknownName(t *testing.T) {
	cfg, err := LoadConfig(writeJobFile(t, jobFile))
	require.NoError(t, err)

	_, err = New(cfg, nil).RunJob(context.Background(), "nope", false)
	require.Error(t, err)
}

func TestStartTicksEnabledJobs(t *testing.T) {
	cfg := Config{Jobs: []Job{
		{Name: "fast", Type: "vpin.refresh", Every: 10 * time.Millisecond, Enabled: true},
		{Name: "off", Type: "zones.reconcile", Every: 10 * time.Millisecond, Enabled: false},
	}}

	s := New(cfg, nil)
	runs := make(chan string, 16)
	s.Register("vpin.refresh", func(ctx context.Context, job Job) error {
		runs <- job.Name
		return nil
	})
	s.Register("zones.reconcile", func(ctx context.Context, job Job) error {
		runs <- job.Name
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(runs)
	fast := 0
	for name := range runs {
		require.Equal(t, "fast", name, "disabled jobs must not run")
		fast++
	}
	assert.GreaterOrEqual(t, fast, 2)
	assert.False(t, s.GetStatus().Running)
}

func TestGetStatusCountsJobs(t *testing.T) {
	cfg, err := LoadConfig(writeJobFile(t, jobFile))
	require.NoError(t, err)

	st := New(cfg, nil).GetStatus()
	assert.Equal(t, 1, st.EnabledJobs)
	assert.Equal(t, 1, st.DisabledJobs)
	assert.False(t, st.Running)
}
