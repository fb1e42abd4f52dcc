package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/training-booking/internal/config"
	"github.com/iliyamo/training-booking/internal/model"
	"github.com/iliyamo/training-booking/internal/repository"
)

// Setting keys understood by the policy.
const (
	SettingEnrollHours  = "enroll_hours_before_training"
	SettingCancelHours  = "cancel_hours_before_training"
	SettingAutobanHours = "autoban_hours_before_training"
	SettingBanText      = "ban_text_default"
)

var hourSettings = map[string]bool{
	SettingEnrollHours:  true,
	SettingCancelHours:  true,
	SettingAutobanHours: true,
}

// ErrInvalidSetting is returned when an hour based setting is not a
// non-negative integer.
var ErrInvalidSetting = &Error{KindInvalidState, "INVALID_SETTING", "setting value must be a non-negative whole number of hours"}

// Policy is the set of thresholds in force for one operation.  A zero
// cutoff disables the corresponding check.
type Policy struct {
	EnrollCutoff   time.Duration
	CancelCutoff   time.Duration
	AutobanHorizon time.Duration
	BanText        string
}

// Settings reads and writes the runtime policy.  Reads go through Redis
// when a client is configured; writes invalidate the cached key.
type Settings struct {
	repo     *repository.SettingRepo
	rdb      *redis.Client
	cache    config.SettingsCacheConfig
	defaults config.PolicyDefaults
	clock    Clock
}

// NewSettings wires a Settings service.  rdb and clock may be nil.
func NewSettings(repo *repository.SettingRepo, rdb *redis.Client, cache config.SettingsCacheConfig, defaults config.PolicyDefaults, clock Clock) *Settings {
	return &Settings{repo: repo, rdb: rdb, cache: cache, defaults: defaults, clock: clock}
}

// Policy resolves every threshold, falling back to the configured default
// for keys that are missing or unreadable.
func (s *Settings) Policy(ctx context.Context) Policy {
	p := Policy{
		EnrollCutoff:   s.defaults.EnrollCutoff,
		CancelCutoff:   s.defaults.CancelCutoff,
		AutobanHorizon: s.defaults.AutobanHorizon,
		BanText:        s.defaults.BanText,
	}
	if d, ok := s.hours(ctx, SettingEnrollHours); ok {
		p.EnrollCutoff = d
	}
	if d, ok := s.hours(ctx, SettingCancelHours); ok {
		p.CancelCutoff = d
	}
	if d, ok := s.hours(ctx, SettingAutobanHours); ok {
		p.AutobanHorizon = d
	}
	if v, ok := s.value(ctx, SettingBanText); ok && strings.TrimSpace(v) != "" {
		p.BanText = v
	}
	return p
}

func (s *Settings) hours(ctx context.Context, key string) (time.Duration, bool) {
	v, ok := s.value(ctx, key)
	if !ok {
		return 0, false
	}
	h, err := parseHours(v)
	if err != nil {
		log.Printf("settings: ignoring %s=%q: %v", key, v, err)
		return 0, false
	}
	return time.Duration(h) * time.Hour, true
}

func parseHours(v string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if h < 0 {
		return 0, errors.New("negative hours")
	}
	return h, nil
}

func (s *Settings) cacheKey(key string) string { return s.cache.Prefix + ":" + key }

func (s *Settings) cacheOn() bool { return s.rdb != nil && s.cache.Enabled }

// value reads one setting, cache first.  Storage errors are logged and
// reported as a miss so the caller falls back to defaults.
func (s *Settings) value(ctx context.Context, key string) (string, bool) {
	if s.cacheOn() {
		v, err := s.rdb.Get(ctx, s.cacheKey(key)).Result()
		if err == nil {
			return v, true
		}
		if !errors.Is(err, redis.Nil) {
			log.Printf("settings: cache get %s: %v", key, err)
		}
	}
	st, err := s.repo.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false
	}
	if err != nil {
		log.Printf("settings: get %s: %v", key, err)
		return "", false
	}
	if s.cacheOn() {
		if err := s.rdb.Set(ctx, s.cacheKey(key), st.Value, s.cache.TTL).Err(); err != nil {
			log.Printf("settings: cache set %s: %v", key, err)
		}
	}
	return st.Value, true
}

// List returns every stored setting.
func (s *Settings) List(ctx context.Context) ([]model.Setting, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return items, nil
}

// Update writes a setting and drops its cached copy.  Hour based keys
// must hold a non-negative integer.
func (s *Settings) Update(ctx context.Context, key, value, description string) (*model.Setting, error) {
	key = strings.TrimSpace(key)
	if hourSettings[key] {
		if _, err := parseHours(value); err != nil {
			return nil, ErrInvalidSetting
		}
	}
	st, err := s.repo.Upsert(ctx, key, value, description, s.clock.now())
	if err != nil {
		return nil, fmt.Errorf("upsert setting: %w", err)
	}
	if s.cacheOn() {
		if err := s.rdb.Del(ctx, s.cacheKey(key)).Err(); err != nil {
			log.Printf("settings: cache del %s: %v", key, err)
		}
	}
	return st, nil
}

// SeedDefaults stores the configured defaults for keys that are not in
// the table yet and returns how many were created.
func (s *Settings) SeedDefaults(ctx context.Context) (int, error) {
	seeds := []struct{ key, value, desc string }{
		{SettingEnrollHours, strconv.Itoa(int(s.defaults.EnrollCutoff / time.Hour)), "hours before start when booking closes (0 disables)"},
		{SettingCancelHours, strconv.Itoa(int(s.defaults.CancelCutoff / time.Hour)), "hours before start when cancelling closes (0 disables)"},
		{SettingAutobanHours, strconv.Itoa(int(s.defaults.AutobanHorizon / time.Hour)), "sweep horizon in hours for unpaid enrollments"},
		{SettingBanText, s.defaults.BanText, "text shown to suspended participants"},
	}
	created := 0
	now := s.clock.now()
	for _, sd := range seeds {
		ok, err := s.repo.InsertIfMissing(ctx, sd.key, sd.value, sd.desc, now)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", sd.key, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}
