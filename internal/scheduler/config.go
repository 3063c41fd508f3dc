package scheduler

import (
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/opensmile/internal/config"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	JobDataRetention     = "data_retention"
	JobWebhookRepair     = "webhook_ledger_repair"
	JobEnrichmentRetry   = "enrichment_retry"
	defaultRetentionDays = 90
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int

	RetentionEvery  time.Duration
	RepairEvery     time.Duration
	RetryEvery      time.Duration
	RetryThreshold  time.Duration
	RepairThreshold time.Duration

	RetentionDays int
	MaxAttempts   int

	// EnabledJobs limits the run to the named jobs. Empty runs all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		BatchSize:       50,
		RetentionEvery:  24 * time.Hour,
		RepairEvery:     10 * time.Minute,
		RetryEvery:      15 * time.Minute,
		RetryThreshold:  15 * time.Minute,
		RepairThreshold: 5 * time.Minute,
		RetentionDays:   defaultRetentionDays,
		MaxAttempts:     3,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RetentionEvery <= 0 {
		c.RetentionEvery = defaults.RetentionEvery
	}
	if c.RepairEvery <= 0 {
		c.RepairEvery = defaults.RepairEvery
	}
	if c.RetryEvery <= 0 {
		c.RetryEvery = defaults.RetryEvery
	}
	if c.RetryThreshold <= 0 {
		c.RetryThreshold = defaults.RetryThreshold
	}
	if c.RepairThreshold <= 0 {
		c.RepairThreshold = defaults.RepairThreshold
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaults.RetentionDays
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	return c
}

// ProvideConfig derives the scheduler settings from the application config.
func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.RetentionDays = cfg.DataRetentionDays
	c.MaxAttempts = cfg.EnrichmentMaxAttempts
	if raw := strings.TrimSpace(cfg.SchedulerJobs); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.EnabledJobs = append(c.EnabledJobs, name)
			}
		}
	}
	return c.withDefaults()
}
