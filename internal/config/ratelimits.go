package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Operation classes with independent rate-limit budgets.
const (
	RateLimitLogin         = "login"
	RateLimitPasswordReset = "password_reset"
	RateLimitSignUp        = "sign_up"
	RateLimitLeadSearch    = "lead_search"
	RateLimitDataExport    = "data_export"
	RateLimitAIContext     = "ai_context"
	RateLimitWebhook       = "webhook"
)

// RateLimitBudget is the number of calls allowed per fixed window.
type RateLimitBudget struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimits map[string]RateLimitBudget

func DefaultRateLimits() RateLimits {
	return RateLimits{
		RateLimitLogin:         {Max: 5, Window: 15 * time.Minute},
		RateLimitPasswordReset: {Max: 3, Window: time.Hour},
		RateLimitSignUp:        {Max: 10, Window: time.Hour},
		RateLimitLeadSearch:    {Max: 100, Window: time.Hour},
		RateLimitDataExport:    {Max: 10, Window: 24 * time.Hour},
		RateLimitAIContext:     {Max: 60, Window: time.Hour},
		RateLimitWebhook:       {Max: 100, Window: time.Minute},
	}
}

// RateLimitHolder serves the current budgets and swaps them when ratelimits.yml changes.
type RateLimitHolder struct {
	current atomic.Value // holds RateLimits
}

// NewStaticRateLimits returns a holder that never reloads.
func NewStaticRateLimits(limits RateLimits) *RateLimitHolder {
	h := &RateLimitHolder{}
	h.current.Store(mergeRateLimits(limits))
	return h
}

func NewRateLimitHolder(log *zap.Logger) (*RateLimitHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.ratelimits")

	v := viper.New()
	v.SetConfigName("ratelimits")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/opensmile")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RATELIMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var overrides RateLimits
	if err := v.UnmarshalKey("ratelimits", &overrides); err != nil {
		return nil, err
	}
	limits := mergeRateLimits(overrides)
	if err := validateRateLimits(limits); err != nil {
		return nil, err
	}

	holder := &RateLimitHolder{}
	holder.current.Store(limits)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated RateLimits
			if err := v.UnmarshalKey("ratelimits", &updated); err != nil {
				log.Warn("reload failed", zap.Error(err))
				return
			}
			merged := mergeRateLimits(updated)
			if err := validateRateLimits(merged); err != nil {
				log.Warn("invalid budgets ignored", zap.Error(err))
				return
			}
			holder.current.Store(merged)
			log.Info("budgets reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *RateLimitHolder) Get() RateLimits {
	return h.current.Load().(RateLimits)
}

// Budget returns the budget for class, or false if the class is unknown.
func (h *RateLimitHolder) Budget(class string) (RateLimitBudget, bool) {
	budget, ok := h.Get()[class]
	return budget, ok
}

func mergeRateLimits(overrides RateLimits) RateLimits {
	merged := DefaultRateLimits()
	for class, budget := range overrides {
		merged[strings.ToLower(class)] = budget
	}
	return merged
}

func validateRateLimits(limits RateLimits) error {
	for class, budget := range limits {
		if budget.Max <= 0 {
			return fmt.Errorf("ratelimits.%s.max must be positive", class)
		}
		if budget.Window <= 0 {
			return fmt.Errorf("ratelimits.%s.window must be positive", class)
		}
	}
	return nil
}
