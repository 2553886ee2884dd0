package helper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDBName     = "ctxforge_test"
	testDBUser     = "postgres"
	testDBPassword = "postgres"
)

// MustStartPostgresContainer starts a disposable Postgres container with the
// pgvector extension for integration tests. It returns the teardown
// function and the mapped host port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUser),
		postgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container.Terminate, "", fmt.Errorf("failed to get mapped port: %w", err)
	}

	return container.Terminate, mappedPort.Port(), nil
}

// SetTestDatabaseConfigEnvs points the database configuration at the test
// container.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", port)
	t.Setenv("DB_USER", testDBUser)
	t.Setenv("DB_PASSWORD", testDBPassword)
	t.Setenv("DB_NAME", testDBName)
	t.Setenv("DB_SSLMODE", "disable")
}

// NewTestDatabase connects to the test container with a quiet logger.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	logger := slog.New(NewPrettyHandler(os.Stdout, PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelWarn},
	}))
	return NewDatabase("ctxforge_test", config, logger)
}
