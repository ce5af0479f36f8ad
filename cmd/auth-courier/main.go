package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/scality/auth-courier/pkg/authcourier"
	"github.com/scality/auth-courier/pkg/util"
)

func main() {
	os.Exit(run())
}

// waitForShutdown blocks until a shutdown signal, then releases the store
// within shutdownTimeout
func waitForShutdown(logger *slog.Logger, store *authcourier.LazyStore,
	signalsChan <-chan os.Signal, shutdownTimeout time.Duration) int {
	sig := <-signalsChan
	logger.Info("signal received", "signal", sig)

	done := make(chan error, 1)
	go func() {
		done <- store.Close()
	}()

	shutdownTimer := time.NewTimer(shutdownTimeout)
	defer shutdownTimer.Stop()

	select {
	case <-shutdownTimer.C:
		logger.Warn("shutdown timeout exceeded, forcing exit")
		return 1
	case err := <-done:
		if err != nil {
			logger.Error("failed to close record store", "error", err)
			return 1
		}
	}

	return 0
}

func run() int {
	// Add command-line flags
	authcourier.ConfigSpec.AddFlag(pflag.CommandLine, "log-level", "log-level")
	authcourier.ConfigSpec.AddFlag(pflag.CommandLine, "store-backend", "store.backend")
	authcourier.ConfigSpec.AddFlag(pflag.CommandLine, "dispatch-mode", "transform.dispatch-mode")

	configFileFlag := pflag.String("config-file", "", "Path to configuration file")
	pflag.Parse()

	// Load configuration
	configFile := *configFileFlag
	if configFile == "" {
		configFile = os.Getenv("AUTH_COURIER_CONFIG_FILE")
	}

	err := authcourier.ConfigSpec.LoadConfiguration(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		pflag.Usage()
		return 2
	}

	err = authcourier.ValidateConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %v\n", err)
		return 2
	}

	logLevel := util.ParseLogLevel(authcourier.ConfigSpec.GetString("log-level"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	shutdownTimeout := time.Duration(authcourier.ConfigSpec.GetInt("shutdown-timeout-seconds")) * time.Second

	ctx := context.Background()

	archiver, err := newArchiver(ctx)
	if err != nil {
		logger.Error("failed to create archiver", "error", err)
		return 1
	}

	// Built on the first invocation and kept for the life of the process
	store := authcourier.NewLazyStore(newStoreFactory(logger))

	transformer, err := authcourier.NewTransformer(authcourier.Config{
		Logger:       logger,
		Store:        store,
		Archiver:     archiver,
		Metrics:      authcourier.NewMetrics(),
		DispatchMode: authcourier.DispatchMode(authcourier.ConfigSpec.GetString("transform.dispatch-mode")),
		NumWorkers:   authcourier.ConfigSpec.GetInt("transform.num-workers"),
	})
	if err != nil {
		logger.Error("failed to create transformer", "error", err)
		return 1
	}

	metricsServer, err := util.StartMetricsServerIfEnabled(
		authcourier.ConfigSpec, "metrics-server", nil, logger)
	if err != nil {
		logger.Error("failed to start metrics server", "error", err)
		return 1
	}
	if metricsServer != nil {
		defer func() {
			if closeErr := metricsServer.Close(); closeErr != nil {
				logger.Error("failed to close metrics server", "error", closeErr)
			}
		}()
	}

	signalsChan := make(chan os.Signal, 1)
	signal.Notify(signalsChan, unix.SIGINT, unix.SIGTERM)

	logger.Info("auth-courier started",
		"storeBackend", authcourier.ConfigSpec.GetString("store.backend"),
		"dispatchMode", authcourier.ConfigSpec.GetString("transform.dispatch-mode"),
		"archive", archiver != nil)

	// The runtime loop never returns; it exits the process on fatal errors
	go lambda.StartWithOptions(transformer.Handle, lambda.WithContext(ctx))

	exitCode := waitForShutdown(logger, store, signalsChan, shutdownTimeout)

	if exitCode == 0 {
		logger.Info("auth-courier stopped")
	}
	return exitCode
}
