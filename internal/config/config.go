package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment   string
	StoreBackend  string
	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Neo4j         Neo4jConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	Protocol      ProtocolConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
	UseTLS   bool
}

type KafkaConfig struct {
	Brokers     []string
	AuditTopic  string
	SMSTopic    string
	HealthTopic string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

// Neo4jConfig points at the graph mirror of trust and spam edges. An empty
// URI disables it.
type Neo4jConfig struct {
	URI            string
	Username       string
	Password       string
	Database       string
	MaxConnections int
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	PhonePepper       string
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

// ProtocolConfig holds the tunables of the trust and handshake protocols.
type ProtocolConfig struct {
	Generator              int64
	Modulus                int64
	SessionKeyTTL          time.Duration
	TrustDepth             int
	MaxVerificationRetries int
	RegistrationLimit      int
	RegistrationWindow     time.Duration
}

var (
	current *Config
	mu      sync.RWMutex
)

// fileConfig mirrors the optional YAML file named by CONFIG_FILE. Values
// from the file replace built-in defaults; environment variables still win.
type fileConfig struct {
	Environment  string `yaml:"environment"`
	StoreBackend string `yaml:"store_backend"`
	Protocol     struct {
		Generator              int64  `yaml:"generator"`
		Modulus                int64  `yaml:"modulus"`
		SessionKeyTTL          string `yaml:"session_key_ttl"`
		TrustDepth             int    `yaml:"trust_depth"`
		MaxVerificationRetries int    `yaml:"max_verification_retries"`
		RegistrationLimit      int    `yaml:"registration_limit"`
		RegistrationWindow     string `yaml:"registration_window"`
	} `yaml:"protocol"`
}

func readFileConfig(path string) (fileConfig, error) {
	var f fileConfig
	if path == "" {
		return f, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("parse config file: %w", err)
	}
	return f, nil
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt[T int | int64](v, fallback T) T {
	if v != 0 {
		return v
	}
	return fallback
}

func orDuration(v string, fallback time.Duration) (time.Duration, error) {
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse config file: %w", err)
	}
	return d, nil
}

// LoadConfig reads .env (when present), the optional CONFIG_FILE and the
// process environment, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	file, err := readFileConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	sessionTTL, err := orDuration(file.Protocol.SessionKeyTTL, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	registrationWindow, err := orDuration(file.Protocol.RegistrationWindow, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	fp := file.Protocol

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", orString(file.Environment, "development")),
		StoreBackend: getEnv("STORE_BACKEND", orString(file.StoreBackend, "scylla")),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			Domain:       getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:  getEnv("SERVER_AUTO_CERT_DIR", "./certs"),
			Email:        getEnv("SERVER_CERT_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "trust"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
			UseTLS:   getEnvBool("SCYLLA_TLS", false),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			AuditTopic:  getEnv("KAFKA_AUDIT_TOPIC", "trust-events"),
			SMSTopic:    getEnv("KAFKA_SMS_TOPIC", "sms-outbound"),
			HealthTopic: getEnv("KAFKA_HEALTH_TOPIC", "health-check"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			AuditIndex: getEnv("ELASTICSEARCH_AUDIT_INDEX", "trust-events"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "trust"),
		},
		Neo4j: Neo4jConfig{
			URI:            getEnv("NEO4J_URI", ""),
			Username:       getEnv("NEO4J_USERNAME", ""),
			Password:       getEnv("NEO4J_PASSWORD", ""),
			Database:       getEnv("NEO4J_DATABASE", ""),
			MaxConnections: getEnvInt("NEO4J_MAX_CONNECTIONS", 20),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "us-east-1"),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 64*1024),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 1),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
			PhonePepper:       getEnv("PHONE_PEPPER", "trust-dev-pepper"),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  getEnvInt("USER_BUCKETS", 256),
			EventBuckets: getEnvInt("EVENT_BUCKETS", 64),
		},
		Protocol: ProtocolConfig{
			Generator:              int64(getEnvInt("DH_GENERATOR", int(orInt(fp.Generator, 5)))),
			Modulus:                int64(getEnvInt("DH_MODULUS", int(orInt(fp.Modulus, 23)))),
			SessionKeyTTL:          getEnvDuration("SESSION_KEY_TTL", sessionTTL),
			TrustDepth:             getEnvInt("TRUST_DEPTH", orInt(fp.TrustDepth, 3)),
			MaxVerificationRetries: getEnvInt("MAX_VERIFICATION_RETRIES", orInt(fp.MaxVerificationRetries, 3)),
			RegistrationLimit:      getEnvInt("REGISTRATION_LIMIT", orInt(fp.RegistrationLimit, 5)),
			RegistrationWindow:     getEnvDuration("REGISTRATION_WINDOW", registrationWindow),
		},
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

// Get returns the most recently loaded config, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg == nil {
		loaded, err := LoadConfig()
		if err != nil {
			panic(err)
		}
		return loaded
	}
	return cfg
}

// Validate rejects configurations the protocols cannot run with.
func (c *Config) Validate() error {
	p := c.Protocol
	if p.Modulus <= 3 {
		return fmt.Errorf("dh modulus must be greater than 3, got %d", p.Modulus)
	}
	if p.Generator < 2 || p.Generator >= p.Modulus-2 {
		return fmt.Errorf("dh generator %d out of range for modulus %d", p.Generator, p.Modulus)
	}
	if p.TrustDepth < 1 {
		return fmt.Errorf("trust depth must be positive, got %d", p.TrustDepth)
	}
	if p.MaxVerificationRetries < 1 {
		return fmt.Errorf("max verification retries must be positive, got %d", p.MaxVerificationRetries)
	}
	if p.SessionKeyTTL <= 0 {
		return fmt.Errorf("session key ttl must be positive")
	}
	if c.StoreBackend != "scylla" && c.StoreBackend != "memory" {
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.IsProduction() && c.StoreBackend == "memory" {
		return fmt.Errorf("memory store backend is not allowed in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
