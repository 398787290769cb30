package di

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	domrepo "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/repository"
	domsvc "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/engine"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/eventbus"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/handler/api"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/processor"
	internalrepo "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/repository"
	icache "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/service/cache"
	svcmetrics "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/service/metrics"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/services/enrichment"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/usecase"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/cache"
	pkgch "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/clickhouse"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/config"
	xhttp "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/http"
	pkgkafka "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/kafka"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/metrics"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/queue"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideBus creates the durable event bus.
func ProvideBus(cfg *config.Config, lg *logger.Logger, m domrepo.Metrics) (*eventbus.Bus, error) {
	return eventbus.New(cfg.Bus.Dir, lg, m,
		eventbus.WithBufferSize(cfg.Bus.BufferSize),
		eventbus.WithAsyncQueueSize(cfg.Bus.AsyncQueueSize),
	)
}

// ProvideEngine creates the decision engine with the configured policy.
func ProvideEngine(cfg *config.Config, lg *logger.Logger, m domrepo.Metrics) *engine.Engine {
	policy := cfg.Policy
	return engine.New(&policy, lg, m)
}

// ProvideRedisClient creates a go-redis client, or nil when redis is
// disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideDedupeCache creates the ingest dedupe cache. Redis-backed
// when available, otherwise nil and dedupe is skipped.
func ProvideDedupeCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, port := splitHostPort(cfg.Redis.Addr)
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc), nil
}

// ProvideBytesCache creates the enrichment memoization cache: redis
// when enabled, in-process TTL otherwise.
func ProvideBytesCache(cfg *config.Config) icache.BytesCache {
	if cfg.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideCollaborators assembles the enrichment stack: HTTP adapters
// behind circuit breakers, with caching on the slow-moving feeds.
// Without a sidecar URL everything is a null object and the engine's
// absence policy governs.
func ProvideCollaborators(cfg *config.Config, bc icache.BytesCache, tracker domsvc.OutcomeTracker) processor.Collaborators {
	if cfg.Enrichment.BaseURL == "" {
		return processor.Collaborators{
			Price:     enrichment.NullPriceFeed{},
			Regime:    enrichment.NullRegimeProvider{},
			Anomaly:   enrichment.NullAnomalyProvider{},
			Predictor: enrichment.NullPredictor{},
			Sentiment: enrichment.NullSentimentProvider{},
			Outcome:   tracker,
		}
	}

	ecfg := enrichment.Config{
		BaseURL: cfg.Enrichment.BaseURL,
		Timeout: cfg.Enrichment.Timeout,
		Retries: cfg.Enrichment.Retries,
	}
	bs := enrichment.BreakerSettings{
		ConsecutiveFailures: cfg.Enrichment.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.Enrichment.Breaker.OpenTimeout,
	}

	var regime domsvc.RegimeProvider = enrichment.NewBreakerRegimeProvider(enrichment.NewHTTPRegimeProvider(ecfg), bs)
	var sentiment domsvc.SentimentProvider = enrichment.NewBreakerSentimentProvider(enrichment.NewHTTPSentimentProvider(ecfg), bs)
	if bc != nil {
		regime = enrichment.NewCachedRegimeProvider(regime, bc, cfg.Enrichment.CacheTTL.Regime)
		sentiment = enrichment.NewCachedSentimentProvider(sentiment, bc, cfg.Enrichment.CacheTTL.Sentiment)
	}

	return processor.Collaborators{
		Price:     enrichment.NewBreakerPriceFeed(enrichment.NewHTTPPriceFeed(ecfg), bs),
		Regime:    regime,
		Anomaly:   enrichment.NewBreakerAnomalyProvider(enrichment.NewHTTPAnomalyProvider(ecfg), bs),
		Predictor: enrichment.NewBreakerPredictor(enrichment.NewHTTPPredictor(ecfg), bs),
		Sentiment: sentiment,
		Outcome:   tracker,
	}
}

// ProvideOutcomeTracker creates the queue-backed outcome tracker, or
// nil when redis is disabled (BUY registration becomes a no-op).
func ProvideOutcomeTracker(cfg *config.Config, lg *logger.Logger, rc *redis.Client) domsvc.OutcomeTracker {
	if rc == nil {
		return nil
	}
	pub := queue.NewRedisPublisher(lg, rc, queue.WithKeyPrefix(cfg.Outcome.QueuePrefix))
	return enrichment.NewQueueOutcomeTracker(pub)
}

// ProvideProcessor creates the signal processor.
func ProvideProcessor(cfg *config.Config, bus *eventbus.Bus, eng *engine.Engine, collab processor.Collaborators, lg *logger.Logger, m domrepo.Metrics) *processor.Processor {
	return processor.New(bus, eng, collab, lg, m,
		processor.WithWorkers(cfg.Processor.Workers),
		processor.WithQueueSize(cfg.Processor.QueueSize),
		processor.WithQuoteAsset(cfg.Processor.QuoteAsset),
		processor.WithMaxSymbolRPS(cfg.Processor.MaxSymbolRPS),
	)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when
// disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideDecisionArchive creates the ClickHouse audit archive.
func ProvideDecisionArchive(ch *pkgch.Client, lg *logger.Logger) domrepo.DecisionArchive {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHDecisionArchive(ch, lg)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDecisionSink creates the Kafka decision mirror.
func ProvideDecisionSink(producer *pkgkafka.Producer, cfg *config.Config) domrepo.DecisionSink {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaDecisionMirror(producer, cfg.Kafka.DecisionsTopic)
}

// ProvideDecisionRouter creates the decision fan-out.
func ProvideDecisionRouter(bus *eventbus.Bus, archive domrepo.DecisionArchive, sink domrepo.DecisionSink, m domrepo.Metrics, lg *logger.Logger) *usecase.DecisionRouter {
	return usecase.NewDecisionRouter(bus, archive, sink, m, lg)
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return consumer, nil
}

// ProvideSignalIngest creates the Kafka signal ingest bridge.
func ProvideSignalIngest(cfg *config.Config, bus *eventbus.Bus, dedupe cache.Service, m domrepo.Metrics, lg *logger.Logger) *usecase.SignalIngest {
	return usecase.NewSignalIngest(cfg.Kafka.SignalsTopic, bus, dedupe, m, lg)
}

// ProvideOpsHandler creates the ops HTTP handler.
func ProvideOpsHandler(lg *logger.Logger, bus *eventbus.Bus, eng *engine.Engine, proc *processor.Processor) xhttp.Handler {
	return api.NewOpsHandler(lg, bus, eng, proc)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	lg *logger.Logger,
	bus *eventbus.Bus,
	eng *engine.Engine,
	proc *processor.Processor,
	router *usecase.DecisionRouter,
	consumer *pkgkafka.Consumer,
	ingest *usecase.SignalIngest,
	opsHandler xhttp.Handler,
	archive domrepo.DecisionArchive,
	sink domrepo.DecisionSink,
	rc *redis.Client,
) *server.App {
	app := server.New(cfg, lg, bus, eng, proc, router, consumer, ingest, opsHandler)
	if archive != nil {
		app.AddCloser(archive.Close)
	}
	if sink != nil {
		app.AddCloser(sink.Close)
	}
	if rc != nil {
		app.AddCloser(rc.Close)
	}
	return app
}

func splitHostPort(addr string) (string, int) {
	host, portStr, ok := strings.Cut(addr, ":")
	if !ok {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}
