package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestSetGetReset(t *testing.T) {
	ctx := NewScope(context.Background())

	if _, ok := Get(ctx); ok {
		t.Fatal("Get on fresh scope should report absent")
	}

	tok, err := Set(ctx, Credential{AccessToken: "tok-a", Subject: "alice"})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := Get(ctx)
	if !ok || got.AccessToken != "tok-a" {
		t.Errorf("Get = %+v, %v; want tok-a, true", got, ok)
	}

	Reset(tok)
	if _, ok := Get(ctx); ok {
		t.Error("Get after Reset should report absent")
	}
}

func TestSetWithoutScope(t *testing.T) {
	_, err := Set(context.Background(), Credential{AccessToken: "x"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Set without scope = %v, want ErrUnauthenticated", err)
	}
}

func TestNestedSetRestoresPrior(t *testing.T) {
	ctx := NewScope(context.Background())

	outer, _ := Set(ctx, Credential{AccessToken: "outer"})
	inner, _ := Set(ctx, Credential{AccessToken: "inner"})

	if got, _ := Get(ctx); got.AccessToken != "inner" {
		t.Errorf("inner Get = %q, want inner", got.AccessToken)
	}

	Reset(inner)
	if got, _ := Get(ctx); got.AccessToken != "outer" {
		t.Errorf("after inner Reset, Get = %q, want outer", got.AccessToken)
	}

	Reset(outer)
	if _, ok := Get(ctx); ok {
		t.Error("after outer Reset, Get should report absent")
	}
}

func TestResetZeroToken(t *testing.T) {
	// Must not panic.
	Reset(Token{})
}

// TestConcurrentScopeIsolation installs different credentials on two
// concurrent logical requests and verifies each observes only its own,
// across repeated set/get/reset interleavings.
func TestConcurrentScopeIsolation(t *testing.T) {
	creds := []Credential{
		{AccessToken: "tok-a", Subject: "alice"},
		{AccessToken: "tok-b", Subject: "bob"},
	}

	var wg sync.WaitGroup
	for _, cred := range creds {
		wg.Add(1)
		go func(cred Credential) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				ctx := NewScope(context.Background())
				tok, err := Set(ctx, cred)
				if err != nil {
					t.Errorf("Set: %v", err)
					return
				}
				got, ok := Get(ctx)
				if !ok || got != cred {
					t.Errorf("Get = %+v, want %+v", got, cred)
					return
				}
				Reset(tok)
			}
		}(cred)
	}
	wg.Wait()
}

func TestWithCredentialRestoresOnError(t *testing.T) {
	ctx := NewScope(context.Background())
	if _, err := Set(ctx, Credential{AccessToken: "before"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	boom := errors.New("boom")
	err := WithCredential(ctx, Credential{AccessToken: "inside"}, func(ctx context.Context) error {
		if got, _ := Get(ctx); got.AccessToken != "inside" {
			t.Errorf("body Get = %q, want inside", got.AccessToken)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("WithCredential error = %v, want boom", err)
	}

	if got, _ := Get(ctx); got.AccessToken != "before" {
		t.Errorf("after WithCredential, Get = %q, want before", got.AccessToken)
	}
}

func TestWithCredentialRestoresOnPanic(t *testing.T) {
	ctx := NewScope(context.Background())

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = WithCredential(ctx, Credential{AccessToken: "inside"}, func(context.Context) error {
			panic("boom")
		})
	}()

	if _, ok := Get(ctx); ok {
		t.Error("credential should be restored to absent after panic")
	}
}

func TestWithCredentialAttachesScope(t *testing.T) {
	// No scope on the incoming context: WithCredential attaches one.
	err := WithCredential(context.Background(), Credential{AccessToken: "t"}, func(ctx context.Context) error {
		if got, ok := Get(ctx); !ok || got.AccessToken != "t" {
			t.Errorf("body Get = %+v, %v; want t, true", got, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithCredential: %v", err)
	}
}

func TestRedaction(t *testing.T) {
	c := Credential{AccessToken: "secret-token-1234", Subject: "alice"}
	v := c.LogValue().String()
	if want := "****1234"; !strings.Contains(v, want) {
		t.Errorf("LogValue = %q, want suffix marker %q", v, want)
	}
	if strings.Contains(v, "secret-token") {
		t.Errorf("LogValue leaked the token: %q", v)
	}

	if got := redact("abc"); got != "****" {
		t.Errorf("redact(short) = %q, want ****", got)
	}
}
