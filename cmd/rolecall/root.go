package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metalagman/rolecall/internal/logging"
)

const (
	envPrefix           = "ROLECALL"
	defaultSettingsFile = ".rolecall.yaml"
)

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rolecall",
		Short:         "rolecall runs YAML-declared agent roles and tasks on a pluggable backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadDotEnv(".env"); err != nil {
				return err
			}
			if err := initConfig(); err != nil {
				return err
			}
			return logging.Init(logging.Options{
				Debug:  viper.GetBool("debug"),
				Format: viper.GetString("log_format"),
				Out:    cmd.ErrOrStderr(),
			})
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "settings file (default "+defaultSettingsFile+" when present)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-format", "console", "log format: console or json")
	flags.String("db", "", "run history database path")
	bindFlag(root, "config", "config")
	bindFlag(root, "debug", "debug")
	bindFlag(root, "log_format", "log-format")
	bindFlag(root, "db_path", "db")

	root.AddCommand(runCmd(), validateCmd(), backendsCmd(), runsCmd())
	return root
}

func initConfig() error {
	setDefaults()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	path := viper.GetString("config")
	if path == "" {
		if _, err := os.Stat(defaultSettingsFile); err != nil {
			return nil
		}
		path = defaultSettingsFile
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	log.Debug().Str("path", path).Msg("settings: loaded file")
	return nil
}

// loadDotEnv loads path into the environment. Variables already set win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// bindFlag binds a local or persistent flag of cmd to a settings key.
func bindFlag(cmd *cobra.Command, key, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(name)
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %q: %v", name, err))
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "rolecall:", err)
}
