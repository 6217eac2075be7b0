// pkg/station_config/config.go

package station_config

import (
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tcs-recycling/wipestation/pkg/station_io"
)

// Config is the full service configuration. Values are resolved from flags,
// WIPESTATION_* environment variables, and /etc/wipestation/config.yaml, in
// that order of precedence.
type Config struct {
	Listen           string        `mapstructure:"listen" validate:"required"`
	HelperPath       string        `mapstructure:"helper_path" validate:"required,filepath"`
	ProtectedDisks   []string      `mapstructure:"protected_disks" validate:"min=1,dive,required"`
	PollInterval     time.Duration `mapstructure:"poll_interval" validate:"min=250ms"`
	InventoryTimeout time.Duration `mapstructure:"inventory_timeout" validate:"min=1s"`
	JobRetention     time.Duration `mapstructure:"job_retention" validate:"min=1m"`
	JobRetentionMax  int           `mapstructure:"job_retention_max" validate:"min=1"`
}

// Defaults mirror the station's production deployment. sda is protected out
// of the box because it is the boot disk on every kiosk image we ship.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("helper_path", "/usr/local/bin/wipectl")
	v.SetDefault("protected_disks", []string{"sda"})
	v.SetDefault("poll_interval", 2*time.Second)
	v.SetDefault("inventory_timeout", 10*time.Second)
	v.SetDefault("job_retention", 24*time.Hour)
	v.SetDefault("job_retention_max", 128)
}

// Load resolves and validates the configuration. The returned viper instance
// can be handed to Watch for live reload of the protected-disk list.
func Load(rc *station_io.RuntimeContext, flags *pflag.FlagSet) (*Config, *viper.Viper, error) {
	logger := otelzap.Ctx(rc.Ctx)

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WIPESTATION")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/wipestation")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !cerr.As(err, &notFound) {
			return nil, nil, cerr.Wrap(err, "read config file")
		}
		logger.Info("No config file found, using defaults")
	} else {
		logger.Info("Loaded config file", zap.String("path", v.ConfigFileUsed()))
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, nil, cerr.Wrap(err, "bind flags")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, cerr.Wrap(err, "unmarshal config")
	}
	if err := Validate(cfg); err != nil {
		return nil, nil, err
	}

	return cfg, v, nil
}

// Validate runs struct validation over a resolved config.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return cerr.Wrap(err, "config validation failed")
	}
	return nil
}

// Watch reloads the config file on change and invokes onReload with the new
// config. Invalid edits are logged and discarded; the running config is only
// replaced by one that validates.
func Watch(rc *station_io.RuntimeContext, v *viper.Viper, onReload func(*Config)) {
	logger := otelzap.Ctx(rc.Ctx)
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name))

		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			logger.Error("Reloaded config is unreadable, keeping previous", zap.Error(err))
			return
		}
		if err := Validate(cfg); err != nil {
			logger.Error("Reloaded config is invalid, keeping previous", zap.Error(err))
			return
		}
		onReload(cfg)
	})
	v.WatchConfig()
}
