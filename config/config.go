package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	// Worker process.
	WorkerBin       string        `mapstructure:"WORKER_BIN"`
	Packaged        bool          `mapstructure:"PACKAGED"`
	WorkerExtraArgs string        `mapstructure:"WORKER_EXTRA_ARGS"`
	JobTimeout      time.Duration `mapstructure:"JOB_TIMEOUT"`
	ProbeTimeout    time.Duration `mapstructure:"PROBE_TIMEOUT"`
	// Working directory for worker invocations. Empty means a "Scribed"
	// directory under the user cache dir.
	WorkDir string `mapstructure:"WORK_DIR"`
	// Interval between estimated stage events when the worker emits no
	// parseable progress. Zero disables the estimator.
	ProgressFallback time.Duration `mapstructure:"PROGRESS_FALLBACK"`
	// Resource thresholds checked before each launch; zero disables a check.
	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK"`
	// HTTP surface.
	AuthEnable bool   `mapstructure:"AUTH_ENABLE"`
	AuthKey    string `mapstructure:"AUTH_KEY"`
	Port       string `mapstructure:"PORT"`
}

// stringToDurationHookFunc parses Go duration strings out of string config
// values.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable size strings ("200MB") into
// int64 byte counts.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let other parsers handle it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("WORKER_BIN", "speech-to-text")
	vp.SetDefault("PACKAGED", false)
	vp.SetDefault("WORKER_EXTRA_ARGS", "")
	vp.SetDefault("JOB_TIMEOUT", "1h")
	vp.SetDefault("PROBE_TIMEOUT", "10s")
	vp.SetDefault("WORK_DIR", "")
	vp.SetDefault("PROGRESS_FALLBACK", "3s")
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("PORT", "8080")

	vp.SetConfigName("scribed_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/scribed/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("SCRIBED")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = defaultWorkDir()
	}
	return &cfg, nil
}

// defaultWorkDir is an application-owned cache directory. The worker never
// runs inside its own bundle location: that breaks under macOS sandboxing.
func defaultWorkDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "Scribed")
}
