//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/config"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Core components
		ProvideBus,
		ProvideEngine,
		ProvideProcessor,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideDedupeCache,
		ProvideBytesCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Collaborators and repositories
		ProvideOutcomeTracker,
		ProvideCollaborators,
		ProvideDecisionArchive,
		ProvideDecisionSink,

		// Use cases
		ProvideDecisionRouter,
		ProvideSignalIngest,

		// HTTP surface and application
		ProvideOpsHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
