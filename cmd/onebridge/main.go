package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"onebridge/internal/config"
	"onebridge/internal/constants"
	"onebridge/internal/filter"
	"onebridge/internal/logger"
	"onebridge/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "onebridge",
		Short: "OneBot protocol bridge",
		Long:  "onebridge exposes a bot runtime to OneBot controllers over HTTP, websockets and webhooks",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkFilterCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
					return fmt.Errorf("config file is required")
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logging.WithServiceName(ctx, constants.ServiceName)

			log.InfowCtx(ctx, "Starting onebridge", "self_id", cfg.OneBot.SelfID)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			if err := app.Run(ctx); err != nil && err != context.Canceled {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}

// checkFilterCmd evaluates a filter file against a sample event, so
// operators can try a rule before deploying it.
func checkFilterCmd() *cobra.Command {
	var filterFile, eventFile string

	cmd := &cobra.Command{
		Use:   "check-filter",
		Short: "Evaluate an event filter against an event JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := filter.LoadFile(filterFile)
			if err != nil {
				return err
			}
			payload, err := os.ReadFile(eventFile)
			if err != nil {
				return fmt.Errorf("read event file: %w", err)
			}

			if filter.MatchesJSON(rule, payload) {
				fmt.Fprintln(cmd.OutOrStdout(), "match: event would be forwarded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no match: event would be dropped")
			return nil
		},
	}
	cmd.Flags().StringVar(&filterFile, "filter", "", "Path to the filter JSON file")
	cmd.Flags().StringVar(&eventFile, "event", "", "Path to an event JSON file")
	_ = cmd.MarkFlagRequired("filter")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}
