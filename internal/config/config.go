package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	DataDir    string `mapstructure:"data_dir"`
	Secret     string `mapstructure:"secret"`

	ReadLimit int64 `mapstructure:"read_limit"`

	TurnSeconds        int           `mapstructure:"turn_seconds"`
	GracePeriod        time.Duration `mapstructure:"grace_period"`
	DisconnectDebounce time.Duration `mapstructure:"disconnect_debounce"`

	PlaybackEnabled  bool          `mapstructure:"playback_enabled"`
	PlaybackBin      string        `mapstructure:"playback_bin"`
	SinkCloseTimeout time.Duration `mapstructure:"sink_close_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("turn_seconds", 30)
	v.SetDefault("grace_period", "30s")
	v.SetDefault("disconnect_debounce", "1s")
	v.SetDefault("playback_enabled", true)
	v.SetDefault("playback_bin", "ffplay")
	v.SetDefault("sink_close_timeout", "2s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Data: %s\n", cfg.Mode, cfg.Port, cfg.DataDir)
	return &cfg, nil
}
