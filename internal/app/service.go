package app

import (
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/adapters"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/core"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/policies"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/ports"
)

type Service struct {
	Documents    ports.DocumentSourcePort
	Associations ports.SchemaAssociationPort
	Schemas      *core.SchemaService
	Parser       core.DocumentParser
	Validation   core.YAMLValidation
	Workers      int
}

// Config carries the settings a Service is built from.  Zero values fall
// back to defaults.
type Config struct {
	MaxDepth         int
	ScalarsAsStrings bool
	Severities       map[string]string
	Workers          int
	HTTPTimeoutSec   int
	HTTPRetries      int
	HTTPRetryDelayMs int
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:         core.DefaultMaxDepth,
		ScalarsAsStrings: true,
		Workers:          defaultWorkers,
	}
}

func NewService(cfg Config) (Service, error) {
	severity, err := policies.NewSeverityPolicy(cfg.Severities)
	if err != nil {
		return Service{}, err
	}
	workspace := adapters.NewWorkspaceAdapter()
	fetcher := adapters.NewSchemaFetcherAdapter(
		adapters.NewFileSchemaFetcher(),
		adapters.NewHTTPSchemaFetcher(cfg.HTTPTimeoutSec, cfg.HTTPRetries, cfg.HTTPRetryDelayMs),
	)
	return NewServiceWith(workspace, adapters.NewSchemaAssociationAdapter(), core.NewSchemaService(fetcher, workspace), cfg, severity), nil
}

// NewServiceWith wires a Service from explicit collaborators.
func NewServiceWith(documents ports.DocumentSourcePort, associations ports.SchemaAssociationPort, schemas *core.SchemaService, cfg Config, severity policies.SeverityPolicy) Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return Service{
		Documents:    documents,
		Associations: associations,
		Schemas:      schemas,
		Parser:       core.NewDocumentParser(cfg.MaxDepth),
		Validation:   core.NewYAMLValidation(schemas, core.NewValidator(cfg.MaxDepth, cfg.ScalarsAsStrings), severity),
		Workers:      workers,
	}
}
