//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinSight/pkg/config"
	"FinSight/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		// Quotes and analysis
		ProvideQuoteChain,
		ProvideAnalyzer,
		ProvideSynthetic,

		// History
		ProvideInsightStore,
		ProvidePublisher,
		ProvideHistoryRecorder,
		ProvideRecordPipeline,

		// Use cases
		ProvideInsightUseCase,
		ProvideHistoryUseCase,

		// Transport
		ProvideRateLimiter,
		ProvideInsightHandler,
		ProvideHTTPServer,
		ProvideKafkaConsumer,
		ProvideWarmup,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
