package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pulcinella/mockproxy"
)

func main() {
	var (
		controlAddr string
		mockAddr    string
		mode        string
		configPath  string
		verbose     bool
	)

	rootCmd := &cobra.Command{
		Use:   "mockproxy",
		Short: "A mock-and-proxy HTTP test server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *mockproxy.Config
			if configPath != "" {
				var err error
				cfg, err = mockproxy.LoadConfig(configPath)
				if err != nil {
					return fmt.Errorf("loading config %s: %w", configPath, err)
				}
			} else {
				cfg = &mockproxy.Config{}
			}

			opts := cfg.ToOptions()
			if controlAddr != "" {
				opts = append(opts, mockproxy.WithControlAddr(controlAddr))
			}
			if mockAddr != "" {
				opts = append(opts, mockproxy.WithMockAddr(mockAddr))
			}
			if mode != "" {
				opts = append(opts, mockproxy.WithMode(mockproxy.ParseMode(mode)))
			}

			log := mockproxy.NewLogger(verbose || cfg.Server.Verbose)
			opts = append(opts, mockproxy.WithLogger(log))

			s := mockproxy.New(opts...)
			if err := s.Start(); err != nil {
				return fmt.Errorf("starting server: %w", err)
			}

			log.Info().
				Str("control", s.ControlAddr().String()).
				Str("mock", s.MockAddr().String()).
				Msg("mockproxy: listening")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			log.Info().Msg("mockproxy: shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), mockproxy.ShutdownTimeout)
			defer cancel()
			return s.Shutdown(ctx)
		},
	}

	rootCmd.Flags().StringVar(&controlAddr, "control-addr", "", "control plane listen address (host:port)")
	rootCmd.Flags().StringVar(&mockAddr, "mock-addr", "", "mock plane listen address (host:port)")
	rootCmd.Flags().StringVar(&mode, "mode", "", `mock plane miss behavior: "mock" or "proxy"`)
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "log at debug level")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
