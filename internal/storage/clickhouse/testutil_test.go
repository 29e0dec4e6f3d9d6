package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// skipWithoutDocker skips container-backed tests when no Docker daemon
// is reachable, instead of failing inside testcontainers.
func skipWithoutDocker(t *testing.T) {
	t.Helper()

	// testcontainers panics (rather than returning an error) when no
	// Docker socket can be found at all; treat that as "no Docker" too.
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("docker not available: %v", r)
		}
	}()
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		t.Skipf("docker provider unavailable: %v", err)
	}
	defer provider.Close()
	if err := provider.Health(context.Background()); err != nil {
		t.Skipf("docker daemon not reachable: %v", err)
	}
}

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	skipWithoutDocker(t)

	ctx := context.Background()

	// Start ClickHouse container
	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	// Get native port (9000)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	// Connect to ClickHouse
	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	// Run migrations
	runMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runMigrations creates the trace table directly (importing the
// migrations package here would be an import cycle).
func runMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS decision_traces (
			trace_id   String,
			mint       String,
			ts         DateTime64(3),
			action     String,
			reason     String,
			gross_pnl  Float64,
			net_pnl    Float64,
			steps      String,
			tags       Array(String)
		) ENGINE = MergeTree()
		ORDER BY (mint, ts)
	`)
	require.NoError(t, err)
}
