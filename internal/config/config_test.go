package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SLA_SWEEP_INTERVAL_MINUTES", "")
	t.Setenv("SLA_AT_RISK_HOURS", "")
	t.Setenv("REDIS_DB", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SLA.AtRiskHours != 2 {
		t.Errorf("AtRiskHours = %d, want 2", cfg.SLA.AtRiskHours)
	}
	if cfg.SLA.CompliancePeriodDays != 30 {
		t.Errorf("CompliancePeriodDays = %d, want 30", cfg.SLA.CompliancePeriodDays)
	}
	if got := cfg.SLA.SweepInterval(); got != 0 {
		t.Errorf("SweepInterval() = %v, want disabled", got)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SLA_SWEEP_INTERVAL_MINUTES", "5")
	t.Setenv("SLA_POLICY_CACHE_TTL_SECONDS", "60")
	t.Setenv("APP_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.SLA.SweepInterval(); got != 5*time.Minute {
		t.Errorf("SweepInterval() = %v, want 5m", got)
	}
	if got := cfg.SLA.PolicyCacheTTL(); got != time.Minute {
		t.Errorf("PolicyCacheTTL() = %v, want 1m", got)
	}
	if got := cfg.App.Addr(); got != "0.0.0.0:9090" {
		t.Errorf("Addr() = %q, want %q", got, "0.0.0.0:9090")
	}
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid REDIS_DB")
	}
}

func TestGetEnvAsInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	if got := getEnvAsInt("SOME_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt = %d, want 7", got)
	}
}
