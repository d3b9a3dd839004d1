package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/SanteonNL/ehealth-ingest/api"
	"github.com/SanteonNL/ehealth-ingest/dictionary"
	"github.com/SanteonNL/ehealth-ingest/entities"
	"github.com/SanteonNL/ehealth-ingest/events"
	"github.com/SanteonNL/ehealth-ingest/healthcheck"
	"github.com/SanteonNL/ehealth-ingest/ingest"
	"github.com/SanteonNL/ehealth-ingest/lib/logging"
	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/lookup"
	"github.com/SanteonNL/ehealth-ingest/messaging"
	"github.com/SanteonNL/ehealth-ingest/registry"
	"github.com/SanteonNL/ehealth-ingest/schema"
	"github.com/rs/zerolog/log"
)

// Start wires the services and serves HTTP until the context is cancelled or the process is interrupted.
func Start(ctx context.Context, config Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logging.Setup(config.LogLevel)

	tracerProvider, err := otel.Initialize(ctx, config.OpenTelemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Failed to shut down OpenTelemetry")
		}
	}()

	// Set up dependencies
	definitions, err := loadEntities(config.Entities)
	if err != nil {
		return fmt.Errorf("failed to load entity definitions: %w", err)
	}
	entityRegistry, err := ingest.NewRegistry(definitions...)
	if err != nil {
		return err
	}
	var registryClient *registry.Client
	if config.Registry.Enabled() {
		if registryClient, err = registry.New(ctx, config.Registry); err != nil {
			return fmt.Errorf("failed to create registry client: %w", err)
		}
	}
	var dictionaries schema.DictionaryProvider
	if len(config.Dictionary.Static) > 0 {
		if dictionaries, err = dictionary.ParseStatic(config.Dictionary.Static); err != nil {
			return err
		}
	} else if registryClient != nil {
		cache := dictionary.NewCache(registryClient, config.Dictionary)
		defer cache.Close()
		dictionaries = cache
	}
	lookupBackend, err := lookup.New(ctx, config.Lookup)
	if err != nil {
		return fmt.Errorf("failed to create %s lookup: %w", config.Lookup.Backend, err)
	}
	defer lookupBackend.Close()
	var pipelineOpts []ingest.Option
	if dictionaries != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithDictionaries(dictionaries))
	}
	pipeline, err := ingest.New(entityRegistry, lookupBackend, pipelineOpts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	broker, err := messaging.New(config.Messaging, events.RecordIngestedTopics(entityRegistry.Names()))
	if err != nil {
		return fmt.Errorf("failed to create message broker: %w", err)
	}
	defer func() {
		if err := broker.Close(context.Background()); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Failed to close message broker")
		}
	}()

	// Register services
	var lister api.Lister
	if registryClient != nil {
		lister = registryClient
	}
	checks := map[string]healthcheck.Check{}
	if pinger, ok := lookupBackend.(interface{ Ping(context.Context) error }); ok {
		checks["lookup"] = pinger.Ping
	}
	services := []Service{
		api.New(pipeline, lister, events.NewManager(broker)),
		healthcheck.New(checks),
	}
	httpHandler := http.NewServeMux()
	for _, service := range services {
		service.RegisterHandlers(httpHandler)
	}
	log.Ctx(ctx).Info().Msgf("Ingesting entity types: %v", entityRegistry.Names())

	// Start HTTP server
	listener, err := net.Listen("tcp", config.Public.Address)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	httpServer := &http.Server{Handler: httpHandler}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Public.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func loadEntities(directory string) ([]ingest.Entity, error) {
	if directory == "" {
		return entities.Load()
	}
	return ingest.LoadDefinitions(os.DirFS(directory))
}

type Service interface {
	RegisterHandlers(mux *http.ServeMux)
}
