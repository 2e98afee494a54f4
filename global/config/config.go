package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	EventsNone  = "none"
	EventsNats  = "nats"
	EventsKafka = "kafka"
)

// Config is the whole process configuration, read from the environment.
type Config struct {
	// server
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`
	GRPCAddr string `env:"GRPC_ADDR"` // empty disables the health listener
	NodeID   int64  `env:"NODE_ID,default=1"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// store
	StoreDriver   string        `env:"STORE_DRIVER,default=memory"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	MongoURI      string        `env:"MONGO_URI"`
	MongoDatabase string        `env:"MONGO_DATABASE,default=chat"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT,default=3s"`

	// connection
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PingInterval     time.Duration `env:"PING_INTERVAL,default=25s"`
	PongWait         time.Duration `env:"PONG_WAIT,default=60s"`
	ReadLimit        int64         `env:"READ_LIMIT,default=65536"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=4000"`

	// presence
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	PresenceTTL   time.Duration `env:"PRESENCE_TTL,default=90s"`

	// events
	EventsDriver string `env:"EVENTS_DRIVER,default=none"`
	NatsURL      string `env:"NATS_URL"`
	KafkaBrokers string `env:"KAFKA_BROKERS"` // comma separated
	EventsTopic  string `env:"EVENTS_TOPIC,default=chat.events"`

	// identity
	JWTSecret          string `env:"JWT_SECRET"`
	TrustGatewayHeader bool   `env:"TRUST_GATEWAY_HEADER,default=true"`

	// paging
	PageSizeDefault int `env:"PAGE_SIZE_DEFAULT,default=50"`
	PageSizeMax     int `env:"PAGE_SIZE_MAX,default=200"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, errors.Wrap(err, "load env file")
	}

	var c Config
	if _, err := env.UnmarshalFromEnviron(&c); err != nil {
		return nil, errors.Wrap(err, "config error")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the driver specific requirements.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.EventsDriver {
	case EventsNone:
	case EventsNats:
		if c.NatsURL == "" {
			return fmt.Errorf("NATS_URL is required for EVENTS_DRIVER=%s", c.EventsDriver)
		}
	case EventsKafka:
		if len(c.Brokers()) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for EVENTS_DRIVER=%s", c.EventsDriver)
		}
	default:
		return fmt.Errorf("unknown EVENTS_DRIVER %q", c.EventsDriver)
	}

	if c.StoreTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT and WRITE_TIMEOUT must be positive")
	}
	if c.PingInterval <= 0 || c.PongWait <= c.PingInterval {
		return fmt.Errorf("PONG_WAIT (%s) must be greater than PING_INTERVAL (%s)", c.PongWait, c.PingInterval)
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive")
	}
	if c.PageSizeDefault <= 0 || c.PageSizeMax < c.PageSizeDefault {
		return fmt.Errorf("PAGE_SIZE_MAX must be >= PAGE_SIZE_DEFAULT > 0")
	}
	return nil
}

// Brokers splits KAFKA_BROKERS.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
