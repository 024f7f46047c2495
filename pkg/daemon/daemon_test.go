package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/termin/pkg/ambient"
	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/linkedin"
	"github.com/rhuss/termin/pkg/schedstore"
	"github.com/rhuss/termin/pkg/tokens/memory"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "daemon-test")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := ambient.InstallStorageAccessor(
		ambient.CachedStorage(filepath.Join(dir, "posts.db"))); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestSkipsWithoutCredential(t *testing.T) {
	var runs atomic.Int64
	d := New(memory.New(), nil,
		WithPollInterval(10*time.Millisecond),
		WithRunFunc(func(ctx context.Context, client *linkedin.Client) error {
			runs.Add(1)
			return nil
		}),
	)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if got := runs.Load(); got != 0 {
		t.Errorf("expected no publish passes without credentials, got %d", got)
	}
}

func TestRunsWithCredential(t *testing.T) {
	store := memory.New()
	if err := store.Save(context.Background(), credential.Credential{
		AccessToken: "tok-daemon", Subject: "alice@example.com",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	ran := make(chan struct{}, 1)
	var sawCache atomic.Bool
	d := New(store, nil,
		WithPollInterval(10*time.Millisecond),
		WithRunFunc(func(ctx context.Context, client *linkedin.Client) error {
			if _, _, ok := schedstore.CacheFromContext(ctx); ok {
				sawCache.Store(true)
			}
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		}),
	)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("publish pass never ran")
	}
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if !sawCache.Load() {
		t.Error("expected publish pass context to carry a storage cache")
	}
}

func TestSkipsThenRunsWhenCredentialAppears(t *testing.T) {
	store := memory.New()

	ran := make(chan struct{}, 1)
	d := New(store, nil,
		WithPollInterval(10*time.Millisecond),
		WithRunFunc(func(ctx context.Context, client *linkedin.Client) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		}),
	)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Let a few ticks pass with an empty store, then authenticate.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-ran:
		t.Fatal("publish pass ran before any credential existed")
	default:
	}

	if err := store.Save(context.Background(), credential.Credential{
		AccessToken: "tok-late", Subject: "late@example.com",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("publish pass never ran after credential appeared")
	}
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSurvivesErrorsAndPanics(t *testing.T) {
	store := memory.New()
	if err := store.Save(context.Background(), credential.Credential{
		AccessToken: "tok-daemon", Subject: "bob@example.com",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var runs atomic.Int64
	d := New(store, nil,
		WithPollInterval(10*time.Millisecond),
		WithRunFunc(func(ctx context.Context, client *linkedin.Client) error {
			switch runs.Add(1) {
			case 1:
				return errors.New("network down")
			case 2:
				panic("unexpected state")
			default:
				return nil
			}
		}),
	)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("daemon stopped ticking after %d passes", runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
