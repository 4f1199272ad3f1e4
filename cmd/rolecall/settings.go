package main

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/metalagman/rolecall/internal/db"
	"github.com/metalagman/rolecall/internal/memory"
)

// Settings tune the tool itself. They come from flags, ROLECALL_* variables
// and the settings file, in that order of precedence.
type Settings struct {
	Framework       string        `mapstructure:"framework"`
	Process         string        `mapstructure:"process"`
	TaskTimeout     time.Duration `mapstructure:"task_timeout"`
	MaxParallel     int           `mapstructure:"max_parallel"`
	DBPath          string        `mapstructure:"db_path"`
	NoHistory       bool          `mapstructure:"no_history"`
	Memory          bool          `mapstructure:"memory"`
	MemoryThreshold float64       `mapstructure:"memory_threshold"`
	MetricsFile     string        `mapstructure:"metrics_file"`
	Strict          bool          `mapstructure:"strict"`
	DisableBackends []string      `mapstructure:"disable_backends"`
	WorkDir         string        `mapstructure:"work_dir"`

	Retention db.RetentionPolicy `mapstructure:"retention"`
}

func setDefaults() {
	viper.SetDefault("framework", "")
	viper.SetDefault("process", "")
	viper.SetDefault("task_timeout", "0s")
	viper.SetDefault("max_parallel", 4)
	viper.SetDefault("db_path", db.DefaultPath)
	viper.SetDefault("no_history", false)
	viper.SetDefault("memory", false)
	viper.SetDefault("memory_threshold", memory.DefaultThreshold)
	viper.SetDefault("metrics_file", "")
	viper.SetDefault("strict", false)
	viper.SetDefault("disable_backends", []string{})
	viper.SetDefault("work_dir", "")
	viper.SetDefault("log_format", "console")
	viper.SetDefault("retention.keep_last", 0)
	viper.SetDefault("retention.keep_days", 0)
}

func loadSettings() (Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if s.DBPath == "" {
		s.DBPath = db.DefaultPath
	}
	if s.MaxParallel < 1 {
		return Settings{}, fmt.Errorf("max_parallel must be > 0")
	}
	if s.TaskTimeout < 0 {
		return Settings{}, fmt.Errorf("task_timeout must not be negative")
	}
	if s.MemoryThreshold <= 0 || s.MemoryThreshold > 1 {
		return Settings{}, fmt.Errorf("memory_threshold must be in (0, 1]")
	}
	return s, nil
}
