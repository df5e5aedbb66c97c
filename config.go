package seqtx

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	"unicode"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ============================================================================
// Lease Timing Model
// ============================================================================
//
// A claimed transaction is leased for InitialTransactionTimeout. While the
// handler runs, a background keeper renews the lease whenever the remaining
// time drops below RenewalMargin * InitialTransactionTimeout:
//
//	claim            renew              renew              finish
//	  │◄──── timeout ────►│
//	  │        │◄ margin ►│
//	  ├────────┼──────────┼──── ... ────────────────────────┤
//	           ▲ keeper renews here: timeout = now + InitialTransactionTimeout
//
// Relationships enforced by Validate():
//   - 0 < RenewalMargin < 1
//   - PollTimeout < InitialTransactionTimeout (a pull never outlives the lease)
//   - RetryLimitAttempts requires MaxTransactionAttempts >= 1
//
// Store operations run under StoreOperationTimeout and are retried on
// ErrStoreUnavailable up to StoreRetryAttempts times. A renewal that cannot
// finish within the margin lets the lease expire, so StoreOperationTimeout
// should stay well below the margin (see ValidateWithWarnings).
// ============================================================================

// Config is the configuration of a processing job.
//
// All duration fields accept Go duration strings ("30s", "250ms") when loaded
// from YAML or the environment.
type Config struct {
	// InitialTransactionTimeout is the lease length of a claimed transaction and
	// the extension applied by every automatic renewal.
	InitialTransactionTimeout time.Duration `yaml:"initialTransactionTimeout" koanf:"initialTransactionTimeout"`

	// MaxInProgressTransactions caps the job-wide number of open new-range transactions.
	MaxInProgressTransactions int `yaml:"maxInProgressTransactions" koanf:"maxInProgressTransactions"`

	// MaxRetryingTransactions caps the job-wide number of open retried transactions.
	MaxRetryingTransactions int `yaml:"maxRetryingTransactions" koanf:"maxRetryingTransactions"`

	// RetryLimitMode selects whether retries are bounded only by concurrency
	// ("concurrent") or also by attempts per transaction ("attempts").
	RetryLimitMode RetryLimitMode `yaml:"retryLimitMode" koanf:"retryLimitMode"`

	// MaxTransactionAttempts caps the attempts per transaction in "attempts" mode.
	// A range that reached the cap stays FAILED until an operator intervenes.
	MaxTransactionAttempts int `yaml:"maxTransactionAttempts" koanf:"maxTransactionAttempts"`

	// TransactionAcquisitionDelay is the base wait after a round found nothing to claim.
	// The wait strategy scales it (see WithWaitStrategy).
	TransactionAcquisitionDelay time.Duration `yaml:"transactionAcquisitionDelay" koanf:"transactionAcquisitionDelay"`

	// StickyMode decides whether a processor stays on a series after resolving a transaction.
	StickyMode StickyMode `yaml:"stickyMode" koanf:"stickyMode"`

	// MaxBatchSize bounds the number of items pulled per transaction.
	MaxBatchSize int `yaml:"maxBatchSize" koanf:"maxBatchSize"`

	// PollTimeout bounds how long a pull waits for data.
	PollTimeout time.Duration `yaml:"pollTimeout" koanf:"pollTimeout"`

	// RenewalMargin is the fraction of InitialTransactionTimeout below which
	// the remaining lease triggers an automatic renewal.
	RenewalMargin float64 `yaml:"renewalMargin" koanf:"renewalMargin"`

	// StoreRetryAttempts is the number of retries of a transient store failure.
	StoreRetryAttempts int `yaml:"storeRetryAttempts" koanf:"storeRetryAttempts"`

	// StoreOperationTimeout bounds every single store call.
	StoreOperationTimeout time.Duration `yaml:"storeOperationTimeout" koanf:"storeOperationTimeout"`

	// ShutdownTimeout bounds how long Stop waits for processors to resolve
	// their in-hand transaction.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" koanf:"shutdownTimeout"`
}

// DefaultConfig returns production defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		InitialTransactionTimeout:   30 * time.Second,
		MaxInProgressTransactions:   64,
		MaxRetryingTransactions:     16,
		RetryLimitMode:              RetryLimitConcurrent,
		MaxTransactionAttempts:      0, // unlimited in concurrent mode
		TransactionAcquisitionDelay: time.Second,
		StickyMode:                  StickyNever,
		MaxBatchSize:                1000,
		PollTimeout:                 time.Second,
		RenewalMargin:               0.3,
		StoreRetryAttempts:          5,
		StoreOperationTimeout:       5 * time.Second,
		ShutdownTimeout:             30 * time.Second,
	}
}

// defaultMaxAttempts is applied in attempts mode when no cap was configured.
const defaultMaxAttempts = 5

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.InitialTransactionTimeout == 0 {
		cfg.InitialTransactionTimeout = defaults.InitialTransactionTimeout
	}
	if cfg.MaxInProgressTransactions == 0 {
		cfg.MaxInProgressTransactions = defaults.MaxInProgressTransactions
	}
	if cfg.MaxRetryingTransactions == 0 {
		cfg.MaxRetryingTransactions = defaults.MaxRetryingTransactions
	}
	if cfg.RetryLimitMode == RetryLimitAttempts && cfg.MaxTransactionAttempts == 0 {
		cfg.MaxTransactionAttempts = defaultMaxAttempts
	}
	if cfg.TransactionAcquisitionDelay == 0 {
		cfg.TransactionAcquisitionDelay = defaults.TransactionAcquisitionDelay
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = defaults.MaxBatchSize
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = defaults.PollTimeout
	}
	if cfg.RenewalMargin == 0 {
		cfg.RenewalMargin = defaults.RenewalMargin
	}
	if cfg.StoreRetryAttempts == 0 {
		cfg.StoreRetryAttempts = defaults.StoreRetryAttempts
	}
	if cfg.StoreOperationTimeout == 0 {
		cfg.StoreOperationTimeout = defaults.StoreOperationTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// Validate checks the configuration for values the engine cannot run with.
//
// Validate does not apply defaults; call SetDefaults first when fields may be
// unset. Every returned error wraps ErrInvalidConfig.
//
// Returns:
//   - error: Validation error with clear explanation, nil if valid
func (cfg *Config) Validate() error {
	if cfg.InitialTransactionTimeout <= 0 {
		return invalidf("InitialTransactionTimeout must be > 0, got %v", cfg.InitialTransactionTimeout)
	}
	if cfg.MaxInProgressTransactions < 1 {
		return invalidf("MaxInProgressTransactions must be >= 1, got %d", cfg.MaxInProgressTransactions)
	}
	if cfg.MaxRetryingTransactions < 1 {
		return invalidf("MaxRetryingTransactions must be >= 1, got %d", cfg.MaxRetryingTransactions)
	}

	switch cfg.RetryLimitMode {
	case RetryLimitConcurrent:
		if cfg.MaxTransactionAttempts < 0 {
			return invalidf("MaxTransactionAttempts must be >= 0, got %d", cfg.MaxTransactionAttempts)
		}
	case RetryLimitAttempts:
		if cfg.MaxTransactionAttempts < 1 {
			return invalidf("MaxTransactionAttempts must be >= 1 in attempts mode, got %d", cfg.MaxTransactionAttempts)
		}
	default:
		return invalidf("unknown RetryLimitMode %v", cfg.RetryLimitMode)
	}

	switch cfg.StickyMode {
	case StickyNever, StickyWhenOpenRangeSucceeded, StickyWhenOpenRangeSucceededOrNoData:
	default:
		return invalidf("unknown StickyMode %v", cfg.StickyMode)
	}

	if cfg.TransactionAcquisitionDelay < 0 {
		return invalidf("TransactionAcquisitionDelay must be >= 0, got %v", cfg.TransactionAcquisitionDelay)
	}
	if cfg.MaxBatchSize < 1 {
		return invalidf("MaxBatchSize must be >= 1, got %d", cfg.MaxBatchSize)
	}
	if cfg.PollTimeout <= 0 {
		return invalidf("PollTimeout must be > 0, got %v", cfg.PollTimeout)
	}
	if cfg.PollTimeout >= cfg.InitialTransactionTimeout {
		return invalidf(
			"PollTimeout (%v) must be < InitialTransactionTimeout (%v) so a pull cannot outlive the lease",
			cfg.PollTimeout, cfg.InitialTransactionTimeout,
		)
	}
	if cfg.RenewalMargin <= 0 || cfg.RenewalMargin >= 1 {
		return invalidf("RenewalMargin must be in (0, 1), got %v", cfg.RenewalMargin)
	}
	if cfg.StoreRetryAttempts < 0 {
		return invalidf("StoreRetryAttempts must be >= 0, got %d", cfg.StoreRetryAttempts)
	}
	if cfg.StoreOperationTimeout <= 0 {
		return invalidf("StoreOperationTimeout must be > 0, got %v", cfg.StoreOperationTimeout)
	}
	if cfg.ShutdownTimeout <= 0 {
		return invalidf("ShutdownTimeout must be > 0, got %v", cfg.ShutdownTimeout)
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are valid but not recommended.
//
// This is called after Validate() in NewProcessing() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	margin := cfg.renewalMargin()

	if cfg.StoreOperationTimeout >= margin {
		logger.Warn(
			"StoreOperationTimeout is not below the renewal margin, a slow renewal may let the lease expire",
			"storeOperationTimeout", cfg.StoreOperationTimeout,
			"renewalMargin", margin,
		)
	}

	if cfg.TransactionAcquisitionDelay > cfg.InitialTransactionTimeout {
		logger.Warn(
			"TransactionAcquisitionDelay exceeds the lease length, expired leases are taken over late",
			"transactionAcquisitionDelay", cfg.TransactionAcquisitionDelay,
			"initialTransactionTimeout", cfg.InitialTransactionTimeout,
		)
	}

	if cfg.MaxRetryingTransactions > cfg.MaxInProgressTransactions {
		logger.Warn(
			"MaxRetryingTransactions exceeds MaxInProgressTransactions",
			"maxRetrying", cfg.MaxRetryingTransactions,
			"maxInProgress", cfg.MaxInProgressTransactions,
		)
	}

	if cfg.RetryLimitMode == RetryLimitConcurrent && cfg.MaxTransactionAttempts > 0 {
		logger.Warn(
			"MaxTransactionAttempts is ignored unless RetryLimitMode is attempts",
			"maxTransactionAttempts", cfg.MaxTransactionAttempts,
		)
	}
}

// renewalMargin returns the remaining lease time that triggers an automatic renewal.
func (cfg *Config) renewalMargin() time.Duration {
	return time.Duration(float64(cfg.InitialTransactionTimeout) * cfg.RenewalMargin)
}

// maxAttempts returns the attempts cap passed to the coordinator, 0 for none.
func (cfg *Config) maxAttempts() int {
	if cfg.RetryLimitMode != RetryLimitAttempts {
		return 0
	}

	return cfg.MaxTransactionAttempts
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := seqtx.TestConfig()
//	cfg.MaxBatchSize = 300
//	job, err := seqtx.NewProcessing("job", &cfg, coord, handler, supplier, series)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.InitialTransactionTimeout = 2 * time.Second
	cfg.TransactionAcquisitionDelay = 10 * time.Millisecond
	cfg.PollTimeout = 50 * time.Millisecond
	cfg.StoreOperationTimeout = 200 * time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second

	return cfg
}

// LoadConfig loads a configuration from an optional YAML file and the environment.
//
// Values are applied in order: the YAML file at path (skipped when path is
// empty or the file does not exist), then environment variables starting with
// envPrefix, then SetDefaults. The result is validated.
//
// Environment variable names are the upper snake case form of the YAML keys:
// with prefix "SEQTX_", SEQTX_MAX_BATCH_SIZE sets maxBatchSize.
//
// Parameters:
//   - path: YAML file path, "" for none
//   - envPrefix: Environment variable prefix, "" to ignore the environment
//
// Returns:
//   - Config: Loaded configuration
//   - error: Load, decode or validation error
func LoadConfig(path, envPrefix string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if envPrefix != "" {
		err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
			return envKey(strings.TrimPrefix(s, envPrefix))
		}), nil)
		if err != nil {
			return Config{}, fmt.Errorf("failed to load environment: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// envKey converts MAX_BATCH_SIZE to maxBatchSize.
func envKey(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")

	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(p)
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}

	return b.String()
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
