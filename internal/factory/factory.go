package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"trust-service/internal/audit"
	"trust-service/internal/bucketing"
	"trust-service/internal/client"
	"trust-service/internal/config"
	"trust-service/internal/encryption"
	"trust-service/internal/hashing"
	"trust-service/internal/keyexchange"
	"trust-service/internal/notify"
	"trust-service/internal/repository"
	"trust-service/internal/repository/memory"
	rediscache "trust-service/internal/repository/redis"
	"trust-service/internal/repository/scylla"
	"trust-service/internal/service"
	"trust-service/internal/tls"
	"trust-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	neo4jClient      *client.Neo4jClient

	// Managers
	tokenizer         *hashing.Tokenizer
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	directory      repository.Directory
	recorder       *audit.Recorder
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsManager, err := tls.NewTLSManager(cfg.Server, cfg.IsProduction())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tls: %w", err)
		}
		factory.tlsManager = tlsManager
	}

	if err := factory.initializeClients(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	if err := factory.initializeRepository(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	factory.initializeAudit()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_backend", cfg.StoreBackend),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if c, err := client.NewRedisClient(f.config.Redis); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = c
		util.Info("Redis client initialized and healthy")
	}

	// ScyllaDB is the directory, so it is never optional when selected.
	if f.config.StoreBackend == "scylla" {
		c, err := scylla.NewScyllaClient(f.config.Scylla)
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaClient = c
		if err := c.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("scylla health check: %w", err)
		}
		util.Info("ScyllaDB client initialized and healthy")
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config.Kafka, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
	} else {
		f.kafkaProducer = producer
	}

	// Elasticsearch
	if c, err := client.NewElasticsearchClient(f.config.Elasticsearch, f.config.IsDevelopment()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = c
		if err := c.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if c, err := client.NewClickHouseClient(f.config.Clickhouse, f.config.IsProduction()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = c
		if err := c.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	// Neo4j is opt-in; it only mirrors list edges.
	if f.config.Neo4j.URI != "" {
		if c, err := client.NewNeo4jClient(ctx, f.config.Neo4j); err != nil {
			initErrors = append(initErrors, fmt.Errorf("neo4j: %w", err))
		} else {
			f.neo4jClient = c
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes tokenizer, encryption, and bucketing managers
func (f *Factory) initializeManagers() error {
	tokenizer, err := hashing.NewTokenizerFromConfig(f.config.Hashing)
	if err != nil {
		return fmt.Errorf("tokenizer: %w", err)
	}
	f.tokenizer = tokenizer

	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	} else if f.config.IsProduction() {
		util.Warn("KMS disabled in production, shared secrets are stored with local data keys")
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config.KMS, kmsClient)
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing)

	util.Info("Managers initialized successfully",
		util.Bool("kms_client", kmsClient != nil),
		util.Int("user_buckets", f.bucketingManager.GetUserBuckets()),
		util.Int("event_buckets", f.bucketingManager.GetEventBuckets()),
	)
	return nil
}

func (f *Factory) initializeRepository() error {
	switch f.config.StoreBackend {
	case "memory":
		util.Warn("Using in-memory directory, data is lost on restart")
		f.directory = memory.NewDirectory()
	case "scylla":
		if f.scyllaClient == nil {
			return errors.New("scylla client not initialized")
		}
		f.directory = scylla.NewUserRepository(f.scyllaClient, f.encryptionManager, f.bucketingManager)
	default:
		return fmt.Errorf("unknown store backend %q", f.config.StoreBackend)
	}
	return nil
}

// initializeAudit wires every reachable analytics client as an audit sink.
func (f *Factory) initializeAudit() {
	var sinks []audit.Sink
	if f.kafkaProducer != nil {
		sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config.Kafka.AuditTopic))
	}
	if f.clickhouseClient != nil {
		ch := audit.NewClickHouseSink(f.clickhouseClient)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := ch.EnsureSchema(ctx); err != nil {
			util.Warn("ClickHouse audit sink disabled", util.ErrorField(err))
		} else {
			sinks = append(sinks, ch)
		}
		cancel()
	}
	if f.esClient != nil {
		sinks = append(sinks, audit.NewElasticsearchSink(f.esClient, f.config.Elasticsearch.AuditIndex))
	}
	if f.neo4jClient != nil {
		graph := audit.NewGraphSink(f.neo4jClient)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := graph.EnsureSchema(ctx); err != nil {
			util.Warn("Neo4j graph sink disabled", util.ErrorField(err))
		} else {
			sinks = append(sinks, graph)
		}
		cancel()
	}

	f.recorder = audit.NewRecorder(f.bucketingManager, util.Get(), sinks...)
	util.Info("Audit recorder initialized", util.Int("sinks", len(sinks)))
}

func (f *Factory) smsSender() notify.Sender {
	if f.kafkaProducer != nil {
		return notify.NewKafkaSender(f.kafkaProducer, f.config.Kafka.SMSTopic)
	}
	util.Warn("Kafka unavailable, verification codes will only be logged")
	return notify.NewLogSender(util.Get())
}

func (f *Factory) registrationThrottle() service.Throttle {
	if f.redisClient == nil {
		util.Warn("Redis unavailable, registration is not rate limited")
		return nil
	}
	p := f.config.Protocol
	return rediscache.NewRegistrationThrottle(f.redisClient, p.RegistrationLimit, p.RegistrationWindow)
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() (*service.ServiceFactory, error) {
	if f.serviceFactory != nil {
		return f.serviceFactory, nil
	}

	p := f.config.Protocol
	params, err := keyexchange.NewParams(p.Generator, p.Modulus)
	if err != nil {
		return nil, err
	}

	f.serviceFactory = service.NewServiceFactory(
		f.directory,
		f.tokenizer,
		f.smsSender(),
		f.registrationThrottle(),
		f.recorder,
		params,
		service.Options{
			TrustDepth:             p.TrustDepth,
			SessionKeyTTL:          p.SessionKeyTTL,
			MaxVerificationRetries: p.MaxVerificationRetries,
		},
		util.Get(),
	)
	return f.serviceFactory, nil
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.directory != nil {
		if err := f.directory.HealthCheck(ctx); err != nil {
			healthErrors["directory"] = err
		}
	} else {
		healthErrors["directory"] = fmt.Errorf("directory not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.neo4jClient != nil {
		if err := f.neo4jClient.HealthCheck(ctx); err != nil {
			healthErrors["neo4j"] = err
		}
	}

	return healthErrors
}

// Ready fails when a component requests depend on is down. Audit sinks are
// best effort and do not count.
func (f *Factory) Ready(ctx context.Context) error {
	healthErrors := f.HealthCheck(ctx)
	var errs []error
	for _, name := range []string{"directory", "redis"} {
		if err, ok := healthErrors[name]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.neo4jClient != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := f.neo4jClient.Close(ctx); err != nil {
				util.Error("Failed to close Neo4j client", util.ErrorField(err))
			}
			cancel()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}
