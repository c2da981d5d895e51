package config

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"ufcscraper-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	Environment                   string   `env:"ENVIRONMENT" env-default:"local"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (canonical store)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"ufcscraper"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Graph projection (Memgraph)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Redis (run locks)
	RedisAddress  string `env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka consumer (raw odds intake)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaRawUnitsTopic   string   `env:"KAFKA_RAW_UNITS_TOPIC" env-default:"raw-odds-units"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"ufcscraper-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka producer (reconciliation events)
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"reconciliation-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Sources
	SourcesFilePath string `env:"SOURCES_FILE_PATH" env-default:"config/sources.yaml"`

	// Matching
	MatchAcceptThreshold float64 `env:"MATCH_ACCEPT_THRESHOLD" env-default:"0.90" validate:"gte=0,lte=1"`
	MatchMarginThreshold float64 `env:"MATCH_MARGIN_THRESHOLD" env-default:"0.05" validate:"gte=0,lte=1"`

	// Fight linking
	LinkAcceptThreshold float64 `env:"LINK_ACCEPT_THRESHOLD" env-default:"0.65" validate:"gte=0,lte=1"`
	LinkMarginThreshold float64 `env:"LINK_MARGIN_THRESHOLD" env-default:"0.10" validate:"gte=0,lte=1"`
	LinkDateWindowHours int     `env:"LINK_DATE_WINDOW_HOURS" env-default:"36" validate:"gt=0"`
	MinEventDate        string  `env:"MIN_EVENT_DATE" env-default:"2008-08-01"`

	// Reconciliation runs
	ReconcileBatchSize int           `env:"RECONCILE_BATCH_SIZE" env-default:"200" validate:"gt=0"`
	RunLockTTL         time.Duration `env:"RUN_LOCK_TTL" env-default:"5m"`

	// Tracing
	TraceExporter string `env:"TRACE_EXPORTER" env-default:"none"`
	TraceEndpoint string `env:"TRACE_ENDPOINT" env-default:"localhost:4317"`
	TraceProtocol string `env:"TRACE_PROTOCOL" env-default:"grpc"`
	TraceInsecure bool   `env:"TRACE_INSECURE" env-default:"true"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env when present, binds environment variables onto the config
// and checks threshold sanity. The margin must leave room under the accept
// threshold or every near-tie would be ambiguous.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := time.Parse("2006-01-02", cfg.MinEventDate); err != nil {
		return nil, fmt.Errorf("invalid MIN_EVENT_DATE %q: %w", cfg.MinEventDate, err)
	}

	return &cfg, nil
}

// MinEventTime parses MinEventDate. Load has already rejected bad values.
func (c *Config) MinEventTime() time.Time {
	t, _ := time.Parse("2006-01-02", c.MinEventDate)
	return t
}

// LinkDateWindow returns the fight/odds pairing window as a duration.
func (c *Config) LinkDateWindow() time.Duration {
	return time.Duration(c.LinkDateWindowHours) * time.Hour
}
