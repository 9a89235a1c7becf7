// voiceapi/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	BaseURL          string        `mapstructure:"BASE"`
	AuthEnable       bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey          string        `mapstructure:"AUTH_KEY"`
	EngineURL        string        `mapstructure:"ENGINE_URL"`
	EngineCmd        string        `mapstructure:"ENGINE_CMD"`
	GenTimeout       time.Duration `mapstructure:"GEN_TIMEOUT"`
	MaxConcurrency   int           `mapstructure:"MAX_CONCURRENCY"`
	QueueSize        int           `mapstructure:"QUEUE_SIZE"`
	KeepTasks        int           `mapstructure:"KEEP_TASKS"`
	OutputMaxAge     time.Duration `mapstructure:"OUTPUT_MAX_AGE"`
	OutputDir        string        `mapstructure:"OUTPUT_DIR"`
	DefaultDevice    string        `mapstructure:"DEFAULT_DEVICE"`
	MaxTextLen       int           `mapstructure:"MAX_TEXT_LEN"`
	ThrottleCPU      float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64         `mapstructure:"THROTTLE_FREEDISK"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// We only care about converting strings to time.Duration.
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		// It is a string -> time.Duration. Parse it.
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// We only care about converting strings to int64s for byte sizes.
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	// Set default values as strings, the hooks will handle them.
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "123456")
	vp.SetDefault("ENGINE_URL", "http://localhost:8000")
	vp.SetDefault("ENGINE_CMD", "")
	vp.SetDefault("GEN_TIMEOUT", "5m")
	vp.SetDefault("MAX_CONCURRENCY", 1)
	vp.SetDefault("QUEUE_SIZE", 32)
	vp.SetDefault("KEEP_TASKS", 200)
	vp.SetDefault("OUTPUT_MAX_AGE", "1h30m")
	vp.SetDefault("OUTPUT_DIR", "")
	vp.SetDefault("DEFAULT_DEVICE", "auto")
	vp.SetDefault("MAX_TEXT_LEN", 2000)
	vp.SetDefault("THROTTLE_CPU", 50.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")

	// Load from config file
	vp.SetConfigName("voiceapi_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/voiceapi/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Load from environment variables
	vp.SetEnvPrefix("VOICEAPI")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// Unmarshal the config, providing our custom composed hooks.
	// The order matters: the first hook that succeeds is used.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
