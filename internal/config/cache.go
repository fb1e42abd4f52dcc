package config

import "time"

// SettingsCacheConfig controls the Redis read-through cache in front of
// the settings table.  When Enabled is false or no Redis client is
// configured, every policy read goes to the database.
type SettingsCacheConfig struct {
	Enabled bool          `env:"SETTINGS_CACHE_ENABLED" envDefault:"true"`
	TTL     time.Duration `env:"SETTINGS_CACHE_TTL"     envDefault:"30s"`
	Prefix  string        `env:"SETTINGS_CACHE_PREFIX"  envDefault:"settings"`
}

// LoadSettingsCacheConfig parses SETTINGS_CACHE_*.
func LoadSettingsCacheConfig() (SettingsCacheConfig, error) {
	var cfg SettingsCacheConfig
	if err := ParseEnv(&cfg); err != nil {
		return SettingsCacheConfig{}, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Second
	}
	return cfg, nil
}
