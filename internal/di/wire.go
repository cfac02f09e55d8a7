//go:build wireinject
// +build wireinject

package di

import (
	"SpectreGate/pkg/config"
	"SpectreGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideJournal,
		ProvidePublisher,
		ProvideRiskStore,

		// Collaborators
		ProvideInferenceLink,
		ProvideHostBridge,
		ProvideCalendar,

		// Core engine and HTTP surface
		ProvideEngine,
		ProvideStatusHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
