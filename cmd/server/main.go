package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/pairchat/internal/app"
	"github.com/vovakirdan/pairchat/internal/auth"
	"github.com/vovakirdan/pairchat/internal/config"
	"github.com/vovakirdan/pairchat/internal/log"
)

type options struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "pairchat",
		Short:         "One-to-one realtime chat server",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file")
	flags.StringVar(&opts.overrides.Addr, "addr", "", "HTTP listen address")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.overrides.DatabaseDriver, "db-driver", "", "database driver (sqlite, postgres)")
	flags.StringVar(&opts.overrides.Broker, "broker", "", "fabric broker (memory, redis)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	})
	root.AddCommand(newUserCmd(opts))

	return root
}

// loadConfig resolves file, env and flag values and builds the logger.
func loadConfig(opts *options) (config.Config, *zerolog.Logger, error) {
	bootLogger := log.New(config.Default().LogLevel)

	cfg, path, err := config.Load(bootLogger, opts.configPath)
	if err != nil {
		return cfg, bootLogger, err
	}
	cfg.UpdateFrom(opts.overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, bootLogger, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func serve(ctx context.Context, opts *options) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newUserCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var username, email, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), &cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := auth.NewService(st, &auth.JWTConfig{Secret: []byte(cfg.JWTSecret)})
			user, err := svc.CreateUser(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user created")
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "", "handle, 3-32 chars of letters, digits, . _ -")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&password, "password", "", "password, at least 6 chars")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	var lift bool
	suspend := &cobra.Command{
		Use:   "suspend <username>",
		Short: "Suspend a user account, or lift the suspension with --off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), &cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			user, err := st.GetUserByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := st.SetUserSuspended(cmd.Context(), user.ID, !lift); err != nil {
				return err
			}
			logger.Info().Str("username", user.Username).Bool("suspended", !lift).Msg("user updated")
			return nil
		},
	}
	suspend.Flags().BoolVar(&lift, "off", false, "lift the suspension")

	cmd.AddCommand(create, suspend)
	return cmd
}
