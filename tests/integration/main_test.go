//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gatherly/gatherly/internal/app"
	"github.com/gatherly/gatherly/internal/auth"
	"github.com/gatherly/gatherly/internal/config"
	"github.com/gatherly/gatherly/internal/testutil"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testServer    *httptest.Server
	testClient    *testutil.Client
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool
	testToken     string
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

const testSecretKey = "test-secret-key"

// newTestClient creates a new test client with OpenAPI validation enabled
// and a valid service token. Use this at the beginning of each test that
// makes API calls.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	client.SetToken(testToken)
	return client
}

// newTestClientWithoutValidation creates a test client without OpenAPI validation.
// Use this for tests that intentionally test error responses or invalid scenarios.
func newTestClientWithoutValidation() *testutil.Client {
	client := testutil.NewClient(testServer.URL)
	client.SetToken(testToken)
	return client
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	migrator, err := migrate.New(
		"file://../../migrations",
		pgContainer.ConnectionString,
	)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("run migrations: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			MetricsPort:  "0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: config.DatabaseConfig{
			URL:             pgContainer.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		Auth: config.AuthConfig{
			SecretKey: testSecretKey,
			TokenTTL:  time.Hour,
		},
		// Background delivery worker DISABLED for test isolation: queue tests
		// assert on exact pending state and claim rows themselves. Tests that
		// need delivery create their own worker with a mock sender.
		Notifications: config.NotificationsConfig{
			WorkerEnabled: false,
		},
		// Background scheduler DISABLED for the same reason. Reminder tests
		// trigger runs explicitly via POST /api/v1/reminders/run or by calling
		// the repository directly.
		Reminders: config.RemindersConfig{
			Enabled:     false,
			Window:      24 * time.Hour,
			LinkBaseURL: "https://gatherly.example.com",
		},
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	// Create a direct DB connection for tests that need it
	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	authenticator := auth.NewAuthenticator(auth.Config{
		SecretKey: testSecretKey,
		TokenTTL:  time.Hour,
	})
	testToken, err = authenticator.IssueToken("integration-tests")
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	// Load OpenAPI validator
	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	// Create client with OpenAPI validation enabled
	testClient = testutil.NewClientWithValidator(testServer.URL, testValidator)
	testClient.SetToken(testToken)

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
