package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/searchlight-alerting/searchlight/internal/alertstore"
	"github.com/searchlight-alerting/searchlight/internal/destination"
	"github.com/searchlight-alerting/searchlight/internal/dispatch"
	"github.com/searchlight-alerting/searchlight/internal/input"
	"github.com/searchlight-alerting/searchlight/internal/logging"
	"github.com/searchlight-alerting/searchlight/internal/runner"
	"github.com/searchlight-alerting/searchlight/internal/schedule"
	"github.com/searchlight-alerting/searchlight/internal/settings"
	"github.com/searchlight-alerting/searchlight/pkg/escluster"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	settingsFile     = "settings.env"
	monitorsFile     = "monitors.json"
	destinationsFile = "destinations.json"
)

func defaultConfigDir() string {
	if dir := os.Getenv("SEARCHLIGHT_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "/etc/searchlight"
}

func main() {
	var (
		configDir   string
		metricsAddr string
	)

	root := &cobra.Command{
		Use:          "searchlight",
		Short:        "Searchlight monitor runner",
		Long:         "Searchlight runs scheduled monitors against a search cluster, evaluates trigger conditions and dispatches alert notifications.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configDir, metricsAddr)
		},
	}
	root.Flags().StringVar(&configDir, "config-dir", defaultConfigDir(), "directory holding settings.env, monitors.json and destinations.json")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "listen address for the Prometheus metrics endpoint")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("searchlight " + Version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configDir, metricsAddr string) error {
	settingsPath := filepath.Join(configDir, settingsFile)
	initial := settings.Load(settingsPath)
	store := settings.NewStore(initial)

	logging.Init(logging.Config{
		Format:    initial.LogFormat,
		Level:     initial.LogLevel,
		Component: "searchlight",
	})
	log.Info().Str("version", Version).Str("configDir", configDir).Msg("Starting searchlight")

	client, err := escluster.NewClient(escluster.ClientConfig{
		URL:       initial.ClusterURL,
		Username:  initial.ClusterUsername,
		Password:  initial.ClusterPassword,
		VerifySSL: initial.ClusterVerifySSL,
	})
	if err != nil {
		return fmt.Errorf("cluster client: %w", err)
	}

	registry := destination.NewRegistry()
	alerts := alertstore.New(client, store)
	collector := input.New(client, nil)
	dispatcher := dispatch.New(registry, store)
	monitorRunner := runner.New(alerts, collector, dispatcher, store)

	catalog := newCatalog()
	if err := catalog.reload(configDir, registry, monitorRunner); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorRunner.Start(ctx)
	defer monitorRunner.Stop()

	scheduler := schedule.New(catalog.Monitors, monitorRunner)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	watcher, err := settings.NewWatcher(store, settingsPath)
	if err != nil {
		return fmt.Errorf("settings watcher: %w", err)
	}
	watcher.SetReloadCallback(func(next settings.Settings) {
		// Credentials may have changed; cached SNS clients are rebuilt lazily.
		registry.InvalidateSNSClients()
		if err := catalog.reload(configDir, registry, monitorRunner); err != nil {
			log.Error().Err(err).Msg("Failed to reload monitor definitions")
		}
	})
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("settings watcher: %w", err)
	}
	defer watcher.Stop()

	metricsServer := &http.Server{
		Addr:         metricsAddr,
		Handler:      promhttp.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig == syscall.SIGHUP {
			log.Info().Msg("Received SIGHUP, reloading configuration")
			watcher.Reload()
			continue
		}
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		break
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
	return nil
}
