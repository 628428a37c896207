package acquire

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Default search parameters
const (
	DefaultThreshold     = 0.85
	DefaultRetryInterval = 120 * time.Millisecond
	DefaultTimeout       = 6000 * time.Millisecond
	DefaultSettleDelay   = 100 * time.Millisecond
	DefaultConfirmKey    = "y"
)

var (
	ErrNoTemplates   = errors.New("no templates loaded")
	ErrInvalidConfig = errors.New("invalid search configuration")
)

// Config holds the parameters of one search call. It is copied into Run and
// never mutated while the search is in progress.
type Config struct {
	Threshold     float64       `json:"threshold"`
	RetryInterval time.Duration `json:"retry_interval"`
	Timeout       time.Duration `json:"timeout"`
	SettleDelay   time.Duration `json:"settle_delay"`
	ConfirmKey    string        `json:"confirm_key"`

	// Workers > 1 captures and scores monitors concurrently
	Workers int `json:"workers"`
}

// DefaultConfig returns the stock search parameters
func DefaultConfig() Config {
	return Config{
		Threshold:     DefaultThreshold,
		RetryInterval: DefaultRetryInterval,
		Timeout:       DefaultTimeout,
		SettleDelay:   DefaultSettleDelay,
		ConfirmKey:    DefaultConfirmKey,
		Workers:       1,
	}
}

// Validate checks the configuration and wraps ErrInvalidConfig on failure
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [0,1], got %v", ErrInvalidConfig, c.Threshold)
	}
	if c.RetryInterval < 0 {
		return fmt.Errorf("%w: retry interval cannot be negative", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrInvalidConfig)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("%w: settle delay cannot be negative", ErrInvalidConfig)
	}
	if c.ConfirmKey == "" {
		return fmt.Errorf("%w: confirmation key cannot be empty", ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative", ErrInvalidConfig)
	}
	return nil
}
