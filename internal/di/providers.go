package di

import (
	"context"
	"fmt"
	"time"

	"SpectreGate/internal/domain/repository"
	"SpectreGate/internal/engine"
	"SpectreGate/internal/handler/api"
	internalrepo "SpectreGate/internal/repository"
	"SpectreGate/internal/service/calendar"
	"SpectreGate/internal/service/host"
	"SpectreGate/internal/service/inference"
	pkgch "SpectreGate/pkg/clickhouse"
	"SpectreGate/pkg/config"
	xhttp "SpectreGate/pkg/http"
	pkgkafka "SpectreGate/pkg/kafka"
	applogger "SpectreGate/pkg/logger"
	"SpectreGate/pkg/metrics"
	"SpectreGate/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// journal is disabled.
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
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideJournal creates the ClickHouse decision journal, or nil when
// journaling is disabled.
func ProvideJournal(chClient *pkgch.Client, cfg *config.Config) (repository.Journal, error) {
	if chClient == nil {
		return nil, nil
	}
	journal := internalrepo.NewClickHouseJournal(chClient.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := journal.Init(ctx); err != nil {
		return nil, fmt.Errorf("journal init: %w", err)
	}
	return journal, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when publishing is
// disabled.
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

// ProvidePublisher creates the decision event publisher, or nil when Kafka
// is disabled.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideRiskStore creates the Redis risk store, or nil when disabled.
func ProvideRiskStore(cfg *config.Config) repository.RiskStore {
	if !cfg.Risk.Redis.Enabled {
		return nil
	}
	return internalrepo.NewRedisRiskStore(internalrepo.RedisRiskStoreConfig{
		Addr:      cfg.Risk.Redis.Addr,
		Password:  cfg.Risk.Redis.Password,
		DB:        cfg.Risk.Redis.DB,
		KeyPrefix: cfg.Risk.Redis.KeyPrefix,
	})
}

// ProvideInferenceLink creates the socket link to the inference service.
func ProvideInferenceLink(cfg *config.Config, l *applogger.Logger) repository.InferenceLink {
	return inference.NewLink(cfg.MLAddr(), cfg.ML.ReadTimeout, l)
}

// ProvideHostBridge creates the WebSocket session to the trading host.
func ProvideHostBridge(cfg *config.Config) *host.Bridge {
	return host.New(cfg.Host.WebSocketURL, cfg.Host.ReconnectDelay, cfg.Host.PingInterval)
}

// ProvideCalendar creates the session calendar.
func ProvideCalendar(cfg *config.Config) (repository.SessionCalendar, error) {
	cal, err := calendar.New(
		cfg.Session.Calendar.Timezone,
		cfg.Session.Calendar.Begin,
		cfg.Session.Calendar.End,
		cfg.Session.Calendar.WeekdaysOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("session calendar: %w", err)
	}
	return cal, nil
}

// ProvideEngine assembles the decision engine. The bridge serves as bar
// stream, order router, position source and draw surface at once.
func ProvideEngine(
	cfg *config.Config,
	l *applogger.Logger,
	link repository.InferenceLink,
	bridge *host.Bridge,
	cal repository.SessionCalendar,
	journal repository.Journal,
	publisher repository.Publisher,
	riskStore repository.RiskStore,
	m repository.Metrics,
) *engine.Engine {
	return engine.New(cfg, l, link, bridge, bridge, bridge, cal, bridge, journal, publisher, riskStore, m)
}

// ProvideStatusHandler creates the HTTP status handler.
func ProvideStatusHandler(
	cfg *config.Config,
	l *applogger.Logger,
	eng *engine.Engine,
	journal repository.Journal,
) xhttp.Handler {
	return api.NewStatusEchoHandler(l, eng, journal, cfg.Symbol)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	eng *engine.Engine,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	publisher repository.Publisher,
	riskStore repository.RiskStore,
) *server.App {
	// aggregate error logs onto the event bus when one is configured
	if publisher != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.Topic + ".errors",
			Publisher:      publisher,
		})
	}
	return server.New(cfg, l, eng, handler, chClient, publisher, riskStore)
}
