package backend

import (
	"context"
	"fmt"
	"log/slog"

	"mealtrack/internal/remote/httpapi"
	"mealtrack/internal/remote/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(_ context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case HTTPBackend:
		return f.createHTTPBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createHTTPBackend(config Config) (*BackendResult, error) {
	client := httpapi.New(config.BaseURL, config.Timeout, httpapi.WithLogger(f.logger))

	f.logger.Info("Initialized HTTP backend",
		"base_url", config.BaseURL,
		"timeout", config.Timeout)

	return &BackendResult{Backend: client}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var opts []memory.Option
	if config.Location != nil {
		opts = append(opts, memory.WithLocation(config.Location))
	}

	store, err := memory.NewFromFile(config.SeedFile, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend",
		"seed_file", config.SeedFile,
		"meals", store.Len())

	return &BackendResult{Backend: store}, nil
}
