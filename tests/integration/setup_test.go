package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/birbparty/birb-feathers/internal/cache"
	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/queue"
	"github.com/birbparty/birb-feathers/internal/serving"
	"github.com/birbparty/birb-feathers/tests/testutil"
)

var (
	testContainers *testutil.TestContainers
	testDB         *database.DB
	testStore      *database.FeatureStore
	testRegistry   *database.FeatureRegistry
	testCache      cache.Cache
	testQueue      *queue.Client
	testEngine     *serving.Engine
)

// TestMain sets up and tears down test infrastructure
func TestMain(m *testing.M) {
	ctx := context.Background()

	tc, err := testutil.StartContainers(ctx)
	if err != nil {
		fmt.Printf("Failed to start containers: %v\n", err)
		os.Exit(1)
	}
	testContainers = tc

	if err := initDatabase(ctx, tc.PostgresURL); err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}

	dbConfig, err := parsePostgresURL(tc.PostgresURL)
	if err != nil {
		fmt.Printf("Failed to parse postgres URL: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}
	testDB, err = database.NewDB(dbConfig)
	if err != nil {
		fmt.Printf("Failed to create database connection: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}
	testStore = database.NewFeatureStore(testDB)
	testRegistry = database.NewFeatureRegistry(testDB)

	redisConfig, err := parseRedisURL(tc.RedisURL)
	if err != nil {
		fmt.Printf("Failed to parse redis URL: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}
	testCache, err = cache.NewRedisCache(redisConfig)
	if err != nil {
		fmt.Printf("Failed to create cache connection: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}

	testQueue, err = queue.NewClient(&queue.Config{
		URL:                   tc.NATSURL,
		Name:                  "test-client",
		StreamName:            "TEST_INGEST",
		DLQStreamName:         "TEST_INGEST_DLQ",
		StreamMaxAge:          time.Hour,
		StreamMaxBytes:        64 << 20,
		StreamMaxMsgs:         100000,
		StreamMaxMsgSize:      1 << 20,
		StreamReplicas:        1,
		ConsumerName:          "test-worker",
		ConsumerAckWait:       30 * time.Second,
		ConsumerMaxDeliver:    5,
		ConsumerMaxAckPending: 100,
		DLQMaxRetries:         3,
		DLQRetryInterval:      time.Second,
		BatchSize:             10,
		BatchTimeout:          2 * time.Second,
	})
	if err != nil {
		fmt.Printf("Failed to create queue connection: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}

	testEngine = serving.NewEngine(testCache, testStore, &serving.Config{
		CacheTTL:        5 * time.Minute,
		MaxBatchSize:    1000,
		BackfillTimeout: 5 * time.Second,
	})

	code := m.Run()

	testDB.Close()
	testCache.Close()
	testQueue.Close()
	tc.Cleanup(ctx)

	os.Exit(code)
}

// initDatabase creates the registry and value tables
func initDatabase(ctx context.Context, connStr string) error {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	query := `
		CREATE EXTENSION IF NOT EXISTS timescaledb;

		CREATE TABLE IF NOT EXISTS features (
			id          SERIAL PRIMARY KEY,
			name        VARCHAR(255) NOT NULL,
			version     INTEGER      NOT NULL,
			dtype       VARCHAR(32)  NOT NULL,
			entity_type VARCHAR(255) NOT NULL,
			ttl_hours   INTEGER      NOT NULL DEFAULT 24,
			description TEXT         NOT NULL DEFAULT '',
			tags        JSONB,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			UNIQUE (name, version)
		);

		CREATE TABLE IF NOT EXISTS feature_values (
			feature_id INTEGER      NOT NULL REFERENCES features(id),
			entity_id  VARCHAR(255) NOT NULL,
			timestamp  TIMESTAMPTZ  NOT NULL,
			value      JSONB        NOT NULL,
			metadata   JSONB,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			UNIQUE (feature_id, entity_id, timestamp)
		);

		SELECT create_hypertable('feature_values', 'timestamp', if_not_exists => TRUE);

		CREATE INDEX IF NOT EXISTS idx_feature_values_lookup
			ON feature_values(entity_id, feature_id, timestamp DESC);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// resetDatabase clears all rows between tests
func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := testDB.Exec(ctx, "TRUNCATE TABLE feature_values"); err != nil {
		t.Fatalf("Failed to reset feature_values: %v", err)
	}
	if _, err := testDB.Exec(ctx, "TRUNCATE TABLE features RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("Failed to reset features: %v", err)
	}
}

// resetCache drops every cached entry
func resetCache(t *testing.T) {
	t.Helper()
	if _, err := testCache.Invalidate(context.Background(), "*"); err != nil {
		t.Logf("Warning: failed to reset cache: %v", err)
	}
}

func resetAll(t *testing.T) {
	t.Helper()
	resetDatabase(t)
	resetCache(t)
}

// parsePostgresURL parses a PostgreSQL connection URL into a Config
func parsePostgresURL(connStr string) (*database.Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid scheme: %s", u.Scheme)
	}

	port := 5432
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
	}

	password, _ := u.User.Password()

	return &database.Config{
		Host:            u.Hostname(),
		Port:            port,
		User:            u.User.Username(),
		Password:        password,
		Database:        strings.TrimPrefix(u.Path, "/"),
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		CommandTimeout:  10 * time.Second,
	}, nil
}

// parseRedisURL parses a Redis connection URL into a Config
func parseRedisURL(connStr string) (*cache.Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	if u.Scheme != "redis" {
		return nil, fmt.Errorf("invalid scheme: %s", u.Scheme)
	}

	port := 6379
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
	}

	password, _ := u.User.Password()

	return &cache.Config{
		Host:            u.Hostname(),
		Port:            port,
		Password:        password,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxIdleTime:     5 * time.Minute,
		DefaultTTL:      5 * time.Minute,
		ScanCount:       100,
	}, nil
}
