package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/victornm/livequiz/internal/config"
	"github.com/victornm/livequiz/internal/server"
	"github.com/victornm/livequiz/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Load .env failed: %v", err)
	}

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "livequiz",
		Short:        "Live multiplayer quiz server",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	return root
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config failed: %w", err)
			}

			if err := telemetry.SetupLogger(c.Log); err != nil {
				return fmt.Errorf("setup logger failed: %w", err)
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server failed: %w", err)
			}

			go s.Start()

			sig := <-shutdown
			slog.Info("server: received signal", "signal", sig.String())
			s.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to the config file (defaults to $CONFIG_PATH)")
	return cmd
}

func loadConfig(p string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
