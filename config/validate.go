package config

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-quota/pkg/quota"
)

// Validate checks cfg for operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("datadir must not be empty")
	}
	switch cfg.Shape {
	case ShapeQuota, ShapeSelfMinted:
	default:
		return fmt.Errorf("shape must be %q or %q, got %q", ShapeQuota, ShapeSelfMinted, cfg.Shape)
	}
	const hardened = 1 << 31
	if cfg.Issuer.Account >= hardened || cfg.Issuer.Index >= hardened {
		return fmt.Errorf("issuer.account and issuer.index must be below %d", uint32(hardened))
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error", "disabled", "off":
	default:
		return fmt.Errorf("log.level %q is not a level", cfg.Log.Level)
	}
	if cfg.Issue.MaxTokens == 0 {
		return fmt.Errorf("issue.maxtokens must be positive")
	}
	schedule, err := ParseSchedule(cfg.Issue.Schedule)
	if err != nil {
		return fmt.Errorf("issue.schedule: %w", err)
	}
	if err := quota.CheckCount(schedule, cfg.Issue.MaxTokens); err != nil {
		return fmt.Errorf("issue.schedule: %w", err)
	}
	return nil
}
