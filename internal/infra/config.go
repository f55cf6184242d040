package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Ingest
	IngestPort  int    `env:"INGEST_PORT" envDefault:"3200"`
	IngestToken string `env:"INGEST_TOKEN"`

	// Classification
	ClusterWindow   time.Duration `env:"CLUSTER_WINDOW" envDefault:"5s"`
	ClusterMin      int           `env:"CLUSTER_MIN" envDefault:"3"`
	EconomySwing    float64       `env:"ECONOMY_SWING" envDefault:"2000"`
	ObjectiveStates bool          `env:"OBJECTIVE_STATES" envDefault:"false"`

	// Queue
	DebounceWindow time.Duration `env:"DEBOUNCE_WINDOW" envDefault:"2s"`
	TierDepth      int           `env:"TIER_DEPTH" envDefault:"3"`

	// Dispatch
	ConcurrencyCap   int           `env:"CONCURRENCY_CAP" envDefault:"3"`
	PerMinuteCap     int           `env:"PER_MINUTE_CAP" envDefault:"45"`
	AdmitWait        time.Duration `env:"ADMIT_WAIT" envDefault:"150ms"`
	RequestDeadline  time.Duration `env:"REQUEST_DEADLINE" envDefault:"3s"`
	ProviderCooldown time.Duration `env:"PROVIDER_COOLDOWN" envDefault:"30s"`

	// Dedup
	DedupWindow         int     `env:"DEDUP_WINDOW" envDefault:"10"`
	SimilarityThreshold float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.8"`

	// Providers
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OllamaBaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel   string `env:"OLLAMA_MODEL" envDefault:"llama3.2"`

	// Database (transcript archive, optional)
	ArchiveEnabled bool   `env:"ARCHIVE_ENABLED" envDefault:"false"`
	DatabaseURL    string `env:"DATABASE_URL"`
	PGHost         string `env:"PGHOST" envDefault:"localhost"`
	PGPort         int    `env:"PGPORT" envDefault:"5432"`
	PGUser         string `env:"PGUSER" envDefault:"caster"`
	PGPassword     string `env:"PGPASSWORD" envDefault:"caster"`
	PGDatabase     string `env:"PGDATABASE" envDefault:"caster"`

	// Kafka
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaIngestTopic string `env:"KAFKA_INGEST_TOPIC" envDefault:"gsi.snapshots"`
	KafkaLinesTopic  string `env:"KAFKA_LINES_TOPIC" envDefault:"caster.lines"`
	KafkaGroupID     string `env:"KAFKA_GROUP_ID" envDefault:"casterd"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.IngestToken == "" {
		return fmt.Errorf("INGEST_TOKEN is empty; anyone could push snapshots. Set a token or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if c.OpenAIAPIKey == "" && c.OllamaBaseURL == "" {
		return fmt.Errorf("no generation provider configured; set OPENAI_API_KEY or OLLAMA_BASE_URL")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
