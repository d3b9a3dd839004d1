// Package entities holds the configuration bundles of the registry entity types the service ingests.
// Each entity type is one YAML file; see ingest.Definition for the format.
package entities

import (
	"embed"

	"github.com/SanteonNL/ehealth-ingest/ingest"
)

//go:embed *.yaml
var files embed.FS

// Load returns the definitions of every built-in entity type.
func Load() ([]ingest.Entity, error) {
	return ingest.LoadDefinitions(files)
}
