package seqtx

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 30*time.Second, cfg.InitialTransactionTimeout)
	require.Equal(t, 64, cfg.MaxInProgressTransactions)
	require.Equal(t, 16, cfg.MaxRetryingTransactions)
	require.Equal(t, RetryLimitConcurrent, cfg.RetryLimitMode)
	require.Equal(t, 0, cfg.MaxTransactionAttempts)
	require.Equal(t, time.Second, cfg.TransactionAcquisitionDelay)
	require.Equal(t, StickyNever, cfg.StickyMode)
	require.Equal(t, 1000, cfg.MaxBatchSize)
	require.Equal(t, time.Second, cfg.PollTimeout)
	require.InDelta(t, 0.3, cfg.RenewalMargin, 1e-9)
	require.Equal(t, 5, cfg.StoreRetryAttempts)
	require.Equal(t, 5*time.Second, cfg.StoreOperationTimeout)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)

	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			InitialTransactionTimeout: time.Minute,
			MaxInProgressTransactions: 2,
			MaxRetryingTransactions:   1,
			StickyMode:                StickyWhenOpenRangeSucceeded,
			MaxBatchSize:              300,
			RenewalMargin:             0.5,
		}
		SetDefaults(&cfg)

		require.Equal(t, time.Minute, cfg.InitialTransactionTimeout)
		require.Equal(t, 2, cfg.MaxInProgressTransactions)
		require.Equal(t, 1, cfg.MaxRetryingTransactions)
		require.Equal(t, StickyWhenOpenRangeSucceeded, cfg.StickyMode)
		require.Equal(t, 300, cfg.MaxBatchSize)
		require.InDelta(t, 0.5, cfg.RenewalMargin, 1e-9)
		require.Equal(t, time.Second, cfg.PollTimeout)
	})

	t.Run("attempts mode gets an attempts cap", func(t *testing.T) {
		cfg := Config{RetryLimitMode: RetryLimitAttempts}
		SetDefaults(&cfg)

		require.Equal(t, 5, cfg.MaxTransactionAttempts)
		require.Equal(t, 5, cfg.maxAttempts())
	})

	t.Run("concurrent mode passes no attempts cap", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxTransactionAttempts = 3

		require.Equal(t, 0, cfg.maxAttempts())
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"zero lease", func(cfg *Config) { cfg.InitialTransactionTimeout = 0 }},
		{"no new slots", func(cfg *Config) { cfg.MaxInProgressTransactions = 0 }},
		{"no retry slots", func(cfg *Config) { cfg.MaxRetryingTransactions = -1 }},
		{"negative attempts", func(cfg *Config) { cfg.MaxTransactionAttempts = -1 }},
		{"attempts mode without cap", func(cfg *Config) { cfg.RetryLimitMode = RetryLimitAttempts }},
		{"unknown retry mode", func(cfg *Config) { cfg.RetryLimitMode = RetryLimitMode(9) }},
		{"unknown sticky mode", func(cfg *Config) { cfg.StickyMode = StickyMode(9) }},
		{"negative delay", func(cfg *Config) { cfg.TransactionAcquisitionDelay = -time.Second }},
		{"zero batch", func(cfg *Config) { cfg.MaxBatchSize = 0 }},
		{"zero poll", func(cfg *Config) { cfg.PollTimeout = 0 }},
		{"poll outlives lease", func(cfg *Config) { cfg.PollTimeout = cfg.InitialTransactionTimeout }},
		{"margin too small", func(cfg *Config) { cfg.RenewalMargin = 0 }},
		{"margin too large", func(cfg *Config) { cfg.RenewalMargin = 1 }},
		{"negative store retries", func(cfg *Config) { cfg.StoreRetryAttempts = -1 }},
		{"zero store timeout", func(cfg *Config) { cfg.StoreOperationTimeout = 0 }},
		{"zero shutdown timeout", func(cfg *Config) { cfg.ShutdownTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("test config is valid", func(t *testing.T) {
		cfg := TestConfig()
		require.NoError(t, cfg.Validate())
	})
}

type warnRecorder struct {
	mu    sync.Mutex
	warns []string
}

func (w *warnRecorder) Debug(string, ...any) {}
func (w *warnRecorder) Info(string, ...any)  {}
func (w *warnRecorder) Error(string, ...any) {}

func (w *warnRecorder) Warn(msg string, _ ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, msg)
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	t.Run("defaults are quiet", func(t *testing.T) {
		rec := &warnRecorder{}
		cfg := DefaultConfig()
		cfg.ValidateWithWarnings(rec)
		require.Empty(t, rec.warns)
	})

	t.Run("questionable values warn", func(t *testing.T) {
		rec := &warnRecorder{}
		cfg := DefaultConfig()
		cfg.StoreOperationTimeout = 20 * time.Second
		cfg.TransactionAcquisitionDelay = time.Minute
		cfg.MaxRetryingTransactions = 100
		cfg.MaxTransactionAttempts = 3
		cfg.ValidateWithWarnings(rec)
		require.Len(t, rec.warns, 4)
	})
}

// TestConfig_YAML demonstrates that durations and modes work directly with YAML unmarshaling
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
initialTransactionTimeout: 45s
maxInProgressTransactions: 2
maxRetryingTransactions: 1
retryLimitMode: attempts
maxTransactionAttempts: 3
transactionAcquisitionDelay: 250ms
stickyMode: open-range-succeeded-or-no-data
maxBatchSize: 300
pollTimeout: 2s
renewalMargin: 0.4
storeRetryAttempts: 7
storeOperationTimeout: 3s
shutdownTimeout: 1m
`

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(yamlConfig), &cfg))

	require.Equal(t, 45*time.Second, cfg.InitialTransactionTimeout)
	require.Equal(t, 2, cfg.MaxInProgressTransactions)
	require.Equal(t, 1, cfg.MaxRetryingTransactions)
	require.Equal(t, RetryLimitAttempts, cfg.RetryLimitMode)
	require.Equal(t, 3, cfg.MaxTransactionAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.TransactionAcquisitionDelay)
	require.Equal(t, StickyWhenOpenRangeSucceededOrNoData, cfg.StickyMode)
	require.Equal(t, 300, cfg.MaxBatchSize)
	require.Equal(t, 2*time.Second, cfg.PollTimeout)
	require.InDelta(t, 0.4, cfg.RenewalMargin, 1e-9)
	require.Equal(t, 7, cfg.StoreRetryAttempts)
	require.Equal(t, 3*time.Second, cfg.StoreOperationTimeout)
	require.Equal(t, time.Minute, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.Contains(t, string(out), "stickyMode: open-range-succeeded-or-no-data")
	require.Contains(t, string(out), "retryLimitMode: attempts")
}

func TestConfig_YAMLUnknownMode(t *testing.T) {
	var cfg Config
	err := yaml.Unmarshal([]byte("stickyMode: sometimes\n"), &cfg)
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Run("file and environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "seqtx.yaml")
		content := `
maxBatchSize: 300
stickyMode: open-range-succeeded
pollTimeout: 500ms
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		t.Setenv("SEQTXTEST_MAX_BATCH_SIZE", "50")
		t.Setenv("SEQTXTEST_INITIAL_TRANSACTION_TIMEOUT", "10s")

		cfg, err := LoadConfig(path, "SEQTXTEST_")
		require.NoError(t, err)

		require.Equal(t, 50, cfg.MaxBatchSize)
		require.Equal(t, 10*time.Second, cfg.InitialTransactionTimeout)
		require.Equal(t, StickyWhenOpenRangeSucceeded, cfg.StickyMode)
		require.Equal(t, 500*time.Millisecond, cfg.PollTimeout)
		require.Equal(t, 64, cfg.MaxInProgressTransactions)
	})

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), "")
		require.NoError(t, err)
		require.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("invalid result is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "seqtx.yaml")
		require.NoError(t, os.WriteFile(path, []byte("renewalMargin: 2\n"), 0o600))

		_, err := LoadConfig(path, "")
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestEnvKey(t *testing.T) {
	require.Equal(t, "maxBatchSize", envKey("MAX_BATCH_SIZE"))
	require.Equal(t, "pollTimeout", envKey("POLL_TIMEOUT"))
	require.Equal(t, "shutdownTimeout", envKey("_SHUTDOWN__TIMEOUT"))
}
