package config

import (
	"time"

	"github.com/spf13/viper"
)

type APICfg struct {
	BaseURL                string `mapstructure:"base_url"`
	Token                  string `mapstructure:"token"`
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`
	RetryMaxElapsedSeconds int    `mapstructure:"retry_max_elapsed_seconds"`
}

type PushCfg struct {
	URL string `mapstructure:"url"`
}

type UploadCfg struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type ChatCfg struct {
	UserID            string `mapstructure:"user_id"`
	DisplayName       string `mapstructure:"display_name"`
	PageSize          int    `mapstructure:"page_size"`
	EditWindowMinutes int    `mapstructure:"edit_window_minutes"`
}

type MetricsCfg struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	API         APICfg     `mapstructure:"api"`
	Push        PushCfg    `mapstructure:"push"`
	Upload      UploadCfg  `mapstructure:"upload"`
	Chat        ChatCfg    `mapstructure:"chat"`
	Metrics     MetricsCfg `mapstructure:"metrics"`
	Development bool       `mapstructure:"development"`

	// Derived
	APITimeout      time.Duration
	RetryMaxElapsed time.Duration
	UploadTimeout   time.Duration
	EditWindow      time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("CHATSYNC")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 15
	}
	if cfg.API.RetryMaxElapsedSeconds == 0 {
		cfg.API.RetryMaxElapsedSeconds = 10
	}
	if cfg.Upload.TimeoutSeconds == 0 {
		cfg.Upload.TimeoutSeconds = 60
	}
	if cfg.Chat.PageSize == 0 {
		cfg.Chat.PageSize = 50
	}
	if cfg.Chat.EditWindowMinutes == 0 {
		cfg.Chat.EditWindowMinutes = 60
	}
	cfg.APITimeout = time.Duration(cfg.API.TimeoutSeconds) * time.Second
	cfg.RetryMaxElapsed = time.Duration(cfg.API.RetryMaxElapsedSeconds) * time.Second
	cfg.UploadTimeout = time.Duration(cfg.Upload.TimeoutSeconds) * time.Second
	cfg.EditWindow = time.Duration(cfg.Chat.EditWindowMinutes) * time.Minute
	return &cfg, nil
}
