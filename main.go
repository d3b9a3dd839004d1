package main

import (
	"context"

	"github.com/SanteonNL/ehealth-ingest/cmd"
	"github.com/rs/zerolog/log"
)

func main() {
	config, err := cmd.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := config.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().Msgf("Public interface listens on %s", config.Public.Address)
	log.Info().Msgf("Using %s lookup backend", config.Lookup.Backend)
	if config.Registry.Enabled() {
		log.Info().Msgf("Using registry API on %s", config.Registry.URL)
	}
	if err := cmd.Start(context.Background(), *config); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
	log.Info().Msg("Goodbye!")
}
