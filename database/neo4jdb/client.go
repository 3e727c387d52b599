package neo4jdb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/keygrapher/helper"
)

// Config holds the connection settings of a Neo4j client.
type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

// NewConfigFromEnv reads NEO4J_* variables. A .env file in the working
// directory is loaded first if present.
func NewConfigFromEnv() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		URI:         strings.TrimSpace(os.Getenv("NEO4J_URI")),
		User:        strings.TrimSpace(os.Getenv("NEO4J_USER")),
		Password:    strings.TrimSpace(os.Getenv("NEO4J_PASSWORD")),
		Database:    strings.TrimSpace(os.Getenv("NEO4J_DATABASE")),
		Timeout:     10 * time.Second,
		MaxPoolSize: 50,
	}
	if config.URI == "" {
		return nil, helper.NewError("neo4j configuration", fmt.Errorf("missing environment variable: NEO4J_URI"))
	}
	if config.User == "" {
		config.User = "neo4j"
	}

	if v := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			config.Timeout = time.Duration(parsed) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("NEO4J_MAX_POOL_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			config.MaxPoolSize = parsed
		}
	}

	return config, nil
}

// Client wraps the driver together with the target database.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *slog.Logger
}

// NewClient creates the driver and verifies connectivity.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if config == nil {
		return nil, helper.NewError("neo4j client", fmt.Errorf("configuration is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxPoolSize <= 0 {
		config.MaxPoolSize = 50
	}

	auth := neo4j.BasicAuth(config.User, config.Password, "")
	driver, err := neo4j.NewDriverWithContext(config.URI, auth, driverConfig(config))
	if err != nil {
		return nil, helper.NewError("init driver", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.Background())
		return nil, helper.NewError("verify connectivity", err)
	}

	logger.Info("Connected to neo4j", slog.String("uri", config.URI))

	return &Client{
		Driver:   driver,
		Database: config.Database,
		log:      logger.With(slog.String("client", "Neo4jDB")),
	}, nil
}

// driverConfig applies the pool settings and disables the driver's retry of
// transient transaction errors. A transaction function runs at most once and
// its error reaches the caller.
func driverConfig(config *Config) func(*neo4j.Config) {
	return func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = config.MaxPoolSize
		cfg.SocketConnectTimeout = config.Timeout
		cfg.MaxTransactionRetryTime = 0
	}
}

// NewClientFromEnv combines NewConfigFromEnv and NewClient.
func NewClientFromEnv(logger *slog.Logger) (*Client, error) {
	config, err := NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClient(config, logger)
}

// Close closes the driver. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.Database,
	})
}
