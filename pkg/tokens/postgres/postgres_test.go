package postgres

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/tokens"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("termin_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestPostgres_SaveAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	cred := credential.Credential{AccessToken: "tok-a", Subject: "alice@example.com"}
	if err := store.Save(ctx, cred); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != cred {
		t.Errorf("Get = %+v, want %+v", got, cred)
	}
}

func TestPostgres_SaveReplaces(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	store.Save(ctx, credential.Credential{AccessToken: "old", Subject: "alice@example.com"})
	if err := store.Save(ctx, credential.Credential{AccessToken: "new", Subject: "alice@example.com"}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, _ := store.Get(ctx, "alice@example.com")
	if got.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want new", got.AccessToken)
	}
}

func TestPostgres_GetNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.Get(context.Background(), "nobody@example.com")
	if !errors.Is(err, tokens.ErrNoCredential) {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}
}

func TestPostgres_AnyAndDelete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if _, err := store.Any(ctx); !errors.Is(err, tokens.ErrNoCredential) {
		t.Fatalf("Any on empty store = %v, want ErrNoCredential", err)
	}

	store.Save(ctx, credential.Credential{AccessToken: "tok-a", Subject: "alice@example.com"})

	got, err := store.Any(ctx)
	if err != nil {
		t.Fatalf("Any failed: %v", err)
	}
	if got.AccessToken != "tok-a" {
		t.Errorf("Any = %+v, want tok-a", got)
	}

	if err := store.Delete(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Any(ctx); !errors.Is(err, tokens.ErrNoCredential) {
		t.Errorf("Any after Delete = %v, want ErrNoCredential", err)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
