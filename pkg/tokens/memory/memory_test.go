package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/tokens"
)

func TestSaveGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	cred := credential.Credential{AccessToken: "tok-a", Subject: "alice@example.com"}
	if err := s.Save(ctx, cred); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != cred {
		t.Errorf("Get = %+v, want %+v", got, cred)
	}

	if err := s.Delete(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "alice@example.com"); !errors.Is(err, tokens.ErrNoCredential) {
		t.Errorf("Get after Delete = %v, want ErrNoCredential", err)
	}
}

func TestSaveReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Save(ctx, credential.Credential{AccessToken: "old", Subject: "alice@example.com"})
	s.Save(ctx, credential.Credential{AccessToken: "new", Subject: "alice@example.com"})

	got, _ := s.Get(ctx, "alice@example.com")
	if got.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want new", got.AccessToken)
	}
}

func TestAny(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Any(ctx); !errors.Is(err, tokens.ErrNoCredential) {
		t.Fatalf("Any on empty store = %v, want ErrNoCredential", err)
	}

	s.Save(ctx, credential.Credential{AccessToken: "tok-a", Subject: "alice@example.com"})
	s.Save(ctx, credential.Credential{AccessToken: "tok-b", Subject: "bob@example.com"})

	got, err := s.Any(ctx)
	if err != nil {
		t.Fatalf("Any: %v", err)
	}
	if got.Subject != "alice@example.com" && got.Subject != "bob@example.com" {
		t.Errorf("Any returned unexpected credential %+v", got)
	}
}

func TestDeleteAbsent(t *testing.T) {
	s := New()
	if err := s.Delete(context.Background(), "nobody"); err != nil {
		t.Errorf("Delete absent = %v, want nil", err)
	}
}
