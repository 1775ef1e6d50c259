package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/rrdtools/rrdsync/internal/config"
	"github.com/rrdtools/rrdsync/internal/daemon"
	"github.com/rrdtools/rrdsync/internal/utils"
	"github.com/rrdtools/rrdsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	defaultLogFile = filepath.Join(config.DefaultDataDir, "logs", "rrdsync.log")
)

var rootCmd = &cobra.Command{
	Use:     "rrdsync",
	Short:   "One-way directory mirror over rsync/ssh",
	Long:    "rrdsync watches a local directory tree and mirrors changed files to a remote host via rsync over ssh, debouncing bursts and skipping files already in sync.",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if unknown := config.UnknownKeys(viper.AllKeys()); len(unknown) > 0 {
			return fmt.Errorf("unknown configuration keys: %s", strings.Join(unknown, ", "))
		}

		cfg := config.Default()
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("config parse: %w", err)
		}
		cfg.Path = viper.ConfigFileUsed()
		cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")

		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true

		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("bye")
		return d.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("source", "s", "", "Directory tree to mirror")
	rootCmd.Flags().String("host", "", "Remote host to mirror to")
	rootCmd.Flags().String("user", "", "Remote ssh user")
	rootCmd.Flags().String("dest", "", "Destination root on the remote host")
	rootCmd.Flags().Float64("debounce", config.DefaultDebounceSeconds, "Quiet period in seconds before a changed path is synced")
	rootCmd.Flags().BoolP("dry-run", "n", false, "Pass --dry-run to rsync and leave state untouched")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Config file")
}

func main() {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	console := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	var logFile slog.Handler
	if err := utils.EnsureParent(defaultLogFile); err == nil {
		if file, err := os.OpenFile(defaultLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logFile = slog.NewTextHandler(file, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		}
	}

	slog.SetDefault(slog.New(utils.NewTeeHandler(console, logFile)))
}

func loadConfig(cmd *cobra.Command) error {
	// config path
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".rrdsync"))
		viper.AddConfigPath(filepath.Join(home, ".config/rrdsync"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	viper.BindPFlag("source_dir", cmd.Flags().Lookup("source"))
	viper.BindPFlag("remote.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("remote.user", cmd.Flags().Lookup("user"))
	viper.BindPFlag("remote.path", cmd.Flags().Lookup("dest"))
	viper.BindPFlag("debounce_seconds", cmd.Flags().Lookup("debounce"))

	// Set up environment variables
	viper.SetEnvPrefix("RRDSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return nil
}
