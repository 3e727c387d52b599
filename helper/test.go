package helper

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabase = "database"
	testUsername = "user"
	testPassword = "password"
)

// MustStartPostgresContainer starts a throwaway Postgres container and returns
// its teardown function together with the mapped port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUsername),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", NewError("start postgres container", err)
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container.Terminate, "", NewError("mapped port", err)
	}

	return container.Terminate, port.Port(), nil
}

// SetTestDatabaseConfigEnvs points NewDatabaseConfiguration at a test container.
func SetTestDatabaseConfigEnvs(t *testing.T, dbPort string) {
	t.Setenv("KEYGRAPHER_DB_HOST", "localhost")
	t.Setenv("KEYGRAPHER_DB_PORT", dbPort)
	t.Setenv("KEYGRAPHER_DB_DATABASE", testDatabase)
	t.Setenv("KEYGRAPHER_DB_USERNAME", testUsername)
	t.Setenv("KEYGRAPHER_DB_PASSWORD", testPassword)
	t.Setenv("KEYGRAPHER_DB_SCHEMA", "public")
	t.Setenv("KEYGRAPHER_DB_SSLMODE", "disable")
}

// MustStartNeo4jContainer starts a throwaway Neo4j container and returns its
// teardown function together with the bolt URL.
func MustStartNeo4jContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	container, err := tcneo4j.Run(
		ctx,
		"neo4j:5",
		tcneo4j.WithAdminPassword(testPassword),
	)
	if err != nil {
		return nil, "", NewError("start neo4j container", err)
	}

	boltURL, err := container.BoltUrl(ctx)
	if err != nil {
		return container.Terminate, "", NewError("bolt url", err)
	}

	return container.Terminate, boltURL, nil
}

// SetTestNeo4jConfigEnvs points neo4jdb.NewConfigFromEnv at a test container.
func SetTestNeo4jConfigEnvs(t *testing.T, boltURL string) {
	t.Setenv("NEO4J_URI", boltURL)
	t.Setenv("NEO4J_USER", "neo4j")
	t.Setenv("NEO4J_PASSWORD", testPassword)
	t.Setenv("NEO4J_DATABASE", "")
}
