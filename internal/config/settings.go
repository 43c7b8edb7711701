package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ReservationPolicyWarn  = "warn"
	ReservationPolicyBlock = "block"
)

// Settings are runtime knobs that can change without a restart.
type Settings struct {
	ReservationPolicy      string `mapstructure:"reservation_policy"`
	PollIntervalSeconds    int    `mapstructure:"poll_interval_seconds"`
	StreamHeartbeatSeconds int    `mapstructure:"stream_heartbeat_seconds"`
	CatalogCacheTTLSeconds int    `mapstructure:"catalog_cache_ttl_seconds"`
}

func DefaultSettings() Settings {
	return Settings{
		ReservationPolicy:      ReservationPolicyWarn,
		PollIntervalSeconds:    30,
		StreamHeartbeatSeconds: 15,
		CatalogCacheTTLSeconds: 60,
	}
}

func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

func (s Settings) StreamHeartbeat() time.Duration {
	return time.Duration(s.StreamHeartbeatSeconds) * time.Second
}

func (s Settings) CatalogCacheTTL() time.Duration {
	return time.Duration(s.CatalogCacheTTLSeconds) * time.Second
}

// BlocksReservedTables reports whether seating on a reserved table must be refused.
func (s Settings) BlocksReservedTables() bool {
	return s.ReservationPolicy == ReservationPolicyBlock
}

// SettingsProvider is the read side of the holder, used by services.
type SettingsProvider interface {
	Get() Settings
}

type SettingsHolder struct {
	current atomic.Value // holds Settings
}

// NewStaticSettings returns a holder that never reloads.
func NewStaticSettings(s Settings) *SettingsHolder {
	holder := &SettingsHolder{}
	holder.current.Store(s)
	return holder
}

func NewSettingsHolder(cfg Config, log *zap.Logger) (*SettingsHolder, error) {
	log = log.Named("config.settings")
	v := viper.New()

	name := strings.TrimSpace(cfg.SettingsFile)
	if name == "" {
		name = "settings"
	}
	v.SetConfigName(name)
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/comanda")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMANDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettings()
	v.SetDefault("reservation_policy", defaults.ReservationPolicy)
	v.SetDefault("poll_interval_seconds", defaults.PollIntervalSeconds)
	v.SetDefault("stream_heartbeat_seconds", defaults.StreamHeartbeatSeconds)
	v.SetDefault("catalog_cache_ttl_seconds", defaults.CatalogCacheTTLSeconds)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	current, err := decodeSettings(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSettings(current)
	if !watch {
		log.Info("settings file not found, using defaults", zap.String("name", name))
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSettings(v)
		if err != nil {
			log.Warn("invalid settings ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("settings reloaded",
			zap.String("file", e.Name),
			zap.String("reservation_policy", updated.ReservationPolicy),
			zap.Int("poll_interval_seconds", updated.PollIntervalSeconds),
		)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *SettingsHolder) Get() Settings {
	return h.current.Load().(Settings)
}

func decodeSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	s.ReservationPolicy = strings.ToLower(strings.TrimSpace(s.ReservationPolicy))
	if err := ValidateSettings(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func ValidateSettings(s Settings) error {
	switch s.ReservationPolicy {
	case ReservationPolicyWarn, ReservationPolicyBlock:
	default:
		return fmt.Errorf("reservation_policy must be %q or %q", ReservationPolicyWarn, ReservationPolicyBlock)
	}
	if s.PollIntervalSeconds < 1 {
		return errors.New("poll_interval_seconds must be positive")
	}
	if s.StreamHeartbeatSeconds < 1 {
		return errors.New("stream_heartbeat_seconds must be positive")
	}
	if s.CatalogCacheTTLSeconds < 0 {
		return errors.New("catalog_cache_ttl_seconds cannot be negative")
	}
	return nil
}
