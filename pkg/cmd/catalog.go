package cmd

import (
	"log/slog"

	"github.com/flowdeck/flowdeck/pkg/registry"
)

// NewCatalog builds the node catalog with every builtin definition
// registered.
func NewCatalog(logger *slog.Logger) *registry.Catalog {
	return registry.NewDefaultCatalog(logger)
}
