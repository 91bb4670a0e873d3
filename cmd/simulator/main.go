// Command simulator publishes simulated machine telemetry over MQTT, ingests
// what the broker delivers and serves the query API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/api"
	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/OlexDemOn/IoT-app/data-simulator/errors"
	"github.com/OlexDemOn/IoT-app/data-simulator/ingest"
	"github.com/OlexDemOn/IoT-app/data-simulator/logging"
	"github.com/OlexDemOn/IoT-app/data-simulator/metric"
	"github.com/OlexDemOn/IoT-app/data-simulator/mqtt"
	"github.com/OlexDemOn/IoT-app/data-simulator/retry"
	"github.com/OlexDemOn/IoT-app/data-simulator/simulator"
	"github.com/OlexDemOn/IoT-app/data-simulator/snapshot"
	"github.com/OlexDemOn/IoT-app/data-simulator/storage/sqlite"
	"github.com/OlexDemOn/IoT-app/data-simulator/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	shutdownTimeout = 10 * time.Second
	// how long startup waits for broker connections before publishing anyway
	connectTimeout = 10 * time.Second
)

func main() {
	settings, err := config.ParseSettings()
	if err != nil {
		log.Fatal().Msgf("Invalid settings: %s", err)
	}
	logging.Setup(settings.LogLevel, settings.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings); err != nil {
		if errors.IsFatal(err) {
			log.Fatal().Msgf("Simulator stopped: %s", err)
		}
		log.Error().Msgf("Simulator stopped: %s", err)
		os.Exit(1)
	}
}

// loadDocument reads the machine document, writing the built-in machines to
// path first if it does not exist yet.
func loadDocument(path string) (*config.Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Warn().Msgf("Machine document %s not found, writing defaults", path)
		doc := config.Default()
		if err := doc.Save(path); err != nil {
			log.Error().Msgf("Failed to save default machine document: %s", err)
		}
		return doc, nil
	}
	return config.Load(path)
}

// startWorkers runs every worker in its own goroutine. The returned stop
// cancels them and blocks until all have returned.
func startWorkers(ctx context.Context, workers ...func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w func(context.Context)) {
			defer wg.Done()
			w(ctx)
		}(w)
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

func run(ctx context.Context, settings config.Settings) error {
	doc, err := loadDocument(settings.ConfigPath)
	if err != nil {
		return errors.WrapFatal(err, "main", "run", "load machine document")
	}
	registry := config.NewRegistry(doc)
	metrics := metric.New()

	store, err := retry.DoWithResult(ctx, retry.Fixed(settings.DBConnectAttempts, settings.DBConnectBackoff), "open database",
		func() (*sqlite.Store, error) {
			return sqlite.Open(ctx, settings.DBPath)
		})
	if err != nil {
		return errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err), "main", "run", "open database "+settings.DBPath)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Msgf("Failed to close database: %s", err)
		}
	}()
	log.Info().Msgf("Connected to database %s", settings.DBPath)

	snap := snapshot.New(registry)
	pipeline := ingest.NewPipeline(registry, snap, store, metrics, settings.StoreWriteTimeout)
	engine := simulator.NewEngine(registry)

	gateway := mqtt.NewGateway(settings.Broker, registry, metrics)
	if err := gateway.Connect(ctx); err != nil {
		return errors.WrapFatal(err, "main", "run", "connect to MQTT broker")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		gateway.Disconnect(disconnectCtx)
	}()

	awaitCtx, cancelAwait := context.WithTimeout(ctx, connectTimeout)
	if err := gateway.AwaitConnection(awaitCtx); err != nil {
		log.Warn().Msgf("MQTT connections not up after %s, continuing in the background: %s", connectTimeout, err)
	}
	cancelAwait()

	stopWorkers := startWorkers(ctx,
		func(ctx context.Context) { pipeline.Run(ctx, gateway.Messages()) },
		simulator.NewLoop(registry, engine, gateway, settings.PublishInterval).Run,
	)
	// runs before the store and gateway defers above
	defer stopWorkers()

	service := telemetry.NewService(registry, snap, store, engine, pipeline, metrics, settings.QueryTimeout)
	server := api.New(settings.HTTPAddr, service, metrics.Handler())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return errors.WrapFatal(err, "main", "run", "serve HTTP API")
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Failed to shut down HTTP API: %s", err)
	}
	return nil
}
