package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Scoring and detection settings
	Scoring ScoringConfig `json:"scoring"`
	BustOut BustOutConfig `json:"bustOut"`
	Cluster ClusterConfig `json:"cluster"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	GraphStore GraphStoreConfig `json:"graphStore"`
	Velocity   VelocityConfig   `json:"velocity"`
	Bureau     BureauConfig     `json:"bureau"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ScoringConfig holds synthetic scorer and ensemble settings.
type ScoringConfig struct {
	HighRiskThreshold   float64 `json:"highRiskThreshold"`
	MediumRiskThreshold float64 `json:"mediumRiskThreshold"`
	ReviewThreshold     float64 `json:"reviewThreshold"`

	SSNWeight      float64 `json:"ssnWeight"`
	GraphWeight    float64 `json:"graphWeight"`
	VelocityWeight float64 `json:"velocityWeight"`
	CreditWeight   float64 `json:"creditWeight"`
	DeviceWeight   float64 `json:"deviceWeight"`

	// CollaboratorTimeout bounds each graph, velocity and bureau call.
	CollaboratorTimeout time.Duration `json:"collaboratorTimeout"`

	// BatchWorkers bounds concurrent analyses in a batch.
	BatchWorkers int `json:"batchWorkers"`
}

// BustOutConfig holds bust-out predictor settings.
type BustOutConfig struct {
	Threshold      float64 `json:"threshold"`
	LookbackMonths int     `json:"lookbackMonths"`
	WindowDays     int     `json:"windowDays"`
}

// ClusterConfig holds cluster detection settings.
type ClusterConfig struct {
	Algorithm      string  `json:"algorithm"` // louvain, label_propagation
	MinClusterSize int     `json:"minClusterSize"`
	Resolution     float64 `json:"resolution"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity runs on SQLite, channels and in-memory graph/velocity stores
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS, Redis and Neo4j
	TierPro Tier = "pro"
)

// DefaultScoringConfig returns the default scorer weights and thresholds.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		HighRiskThreshold:   0.80,
		MediumRiskThreshold: 0.50,
		ReviewThreshold:     0.30,
		SSNWeight:           0.25,
		GraphWeight:         0.30,
		VelocityWeight:      0.20,
		CreditWeight:        0.15,
		DeviceWeight:        0.10,
		CollaboratorTimeout: 2 * time.Second,
		BatchWorkers:        10,
	}
}

// DefaultBustOutConfig returns the default bust-out settings.
func DefaultBustOutConfig() BustOutConfig {
	return BustOutConfig{
		Threshold:      0.75,
		LookbackMonths: 12,
		WindowDays:     90,
	}
}

// DefaultClusterConfig returns the default cluster detection settings.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		Algorithm:      "louvain",
		MinClusterSize: 3,
		Resolution:     1.0,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:    TierCommunity,
		Scoring: DefaultScoringConfig(),
		BustOut: DefaultBustOutConfig(),
		Cluster: DefaultClusterConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		GraphStore: GraphStoreConfig{
			Type: "memory",
		},
		Velocity: VelocityConfig{
			Type:             "memory",
			Retention:        180 * 24 * time.Hour,
			CleanupInterval:  time.Hour,
			AddressThreshold: 5,
			PhoneThreshold:   3,
			EmailThreshold:   2,
			DeviceThreshold:  3,
		},
		Bureau: BureauConfig{
			Type:     "none",
			CacheTTL: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.GraphStore = GraphStoreConfig{
		Type:          "neo4j",
		Neo4jURI:      "bolt://localhost:7687",
		Neo4jUser:     "neo4j",
		Neo4jDatabase: "neo4j",
	}
	cfg.Velocity.Type = "redis"
	cfg.Velocity.RedisAddr = "localhost:6379"
	cfg.Tracing.Enabled = true
	return cfg
}
