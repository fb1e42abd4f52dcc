package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/training-booking/internal/config"
	"github.com/iliyamo/training-booking/internal/repository"
)

func newSettings(t *testing.T) (*Settings, *fixture) {
	t.Helper()
	f := newFixture(t, Policy{})
	defaults := config.PolicyDefaults{
		EnrollCutoff:   time.Hour,
		AutobanHorizon: 2 * time.Hour,
		BanText:        "suspended",
	}
	s := NewSettings(repository.NewSettingRepo(f.db), nil, config.SettingsCacheConfig{}, defaults, func() time.Time { return f.now })
	return s, f
}

func TestSettingsPolicyFallsBackToDefaults(t *testing.T) {
	t.Parallel()
	s, _ := newSettings(t)
	p := s.Policy(context.Background())
	if p.EnrollCutoff != time.Hour || p.CancelCutoff != 0 || p.AutobanHorizon != 2*time.Hour || p.BanText != "suspended" {
		t.Fatalf("policy = %+v", p)
	}
}

func TestSettingsSeedAndUpdate(t *testing.T) {
	t.Parallel()
	s, _ := newSettings(t)
	ctx := context.Background()

	n, err := s.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if n != 4 {
		t.Fatalf("seeded = %d, want 4", n)
	}
	if n, _ := s.SeedDefaults(ctx); n != 0 {
		t.Fatalf("second seed = %d, want 0", n)
	}

	if _, err := s.Update(ctx, SettingCancelHours, "12", ""); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.Update(ctx, SettingBanText, "Pay up first", "shown to suspended participants"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	p := s.Policy(ctx)
	if p.CancelCutoff != 12*time.Hour {
		t.Fatalf("CancelCutoff = %v, want 12h", p.CancelCutoff)
	}
	if p.BanText != "Pay up first" {
		t.Fatalf("BanText = %q", p.BanText)
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("settings = %d, want 4", len(items))
	}
}

func TestSettingsRejectsBadHours(t *testing.T) {
	t.Parallel()
	s, _ := newSettings(t)
	for _, v := range []string{"-1", "two", "1.5"} {
		_, err := s.Update(context.Background(), SettingAutobanHours, v, "")
		if !errors.Is(err, ErrInvalidSetting) {
			t.Errorf("Update(%q) err = %v, want %v", v, err, ErrInvalidSetting)
		}
	}
}
