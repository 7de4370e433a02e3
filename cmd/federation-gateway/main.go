package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/n9te9/federation-gateway/internal/cache"
	"github.com/n9te9/federation-gateway/internal/config"
	"github.com/n9te9/federation-gateway/internal/execute"
	"github.com/n9te9/federation-gateway/internal/gatewayhttp"
	"github.com/n9te9/federation-gateway/internal/registry"
	"github.com/n9te9/federation-gateway/internal/telemetry"
)

var version = "v0.0.0-rc"

var configPath string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Federation Gateway",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Federation Gateway " + version)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compose every configured subgraph's SDL and report composition errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		if _, err := registry.New(cfg, logger); err != nil {
			return fmt.Errorf("composition failed: %w", err)
		}
		fmt.Println("schema composes cleanly across", len(cfg.Subgraphs), "subgraphs")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Federation Gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	reg, err := registry.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initial schema composition: %w", err)
	}
	watcher, err := reg.WatchSDLFiles()
	if err != nil {
		return fmt.Errorf("watch subgraph SDL files: %w", err)
	}
	defer watcher.Close()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	planCache, err := cache.New(cfg.PlanCacheSize)
	if err != nil {
		return fmt.Errorf("init plan cache: %w", err)
	}

	endpoints := make(execute.Endpoints, len(cfg.Subgraphs))
	for _, sg := range cfg.Subgraphs {
		endpoints[sg.Name] = sg.Endpoint
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond}
	subgraph := execute.NewHTTPSubgraph(httpClient, time.Duration(cfg.RequestTimeoutMS)*time.Millisecond)
	executor := execute.NewExecutor(reg.Current(), subgraph, endpoints)

	gw := &gatewayhttp.Gateway{
		Registry:  reg,
		Executor:  executor,
		PlanCache: planCache,
		Telemetry: tel,
		CORS: gatewayhttp.CORSSettings{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
		},
		Auth: cfg.Auth,
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.GraphQLPath, gw.Handler())
	mux.Handle(cfg.GraphQLPath+"/ws", gw.SubscriptionHandler())
	mux.Handle("/schema/registration", reg.HTTPHandler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("federation gateway listening", "addr", srv.Addr, "graphqlPath", cfg.GraphQLPath)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{Use: "federation-gateway"}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "gateway.yaml", "path to the gateway configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
