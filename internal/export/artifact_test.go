package export_test

import (
	"errors"
	"testing"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/export"
)

func TestRegistryPublishRevokesPrevious(t *testing.T) {
	var revoked []string
	r := export.NewRegistry(export.WithRevokeHook(func(a *export.Artifact) {
		revoked = append(revoked, a.ID)
	}))

	if _, err := r.Current(); !errors.Is(err, export.ErrNoArtifact) {
		t.Fatalf("Current() on empty registry error = %v, want %v", err, export.ErrNoArtifact)
	}

	first := r.Publish(&export.Merged{Data: []byte("a")}, 1)
	second := r.Publish(&export.Merged{Data: []byte("bb")}, 1)

	if first.ID == second.ID {
		t.Fatal("Publish() reused a handle")
	}
	if len(revoked) != 1 || revoked[0] != first.ID {
		t.Errorf("revoked = %v, want [%s]", revoked, first.ID)
	}

	if _, err := r.Get(first.ID); !errors.Is(err, export.ErrRevoked) {
		t.Errorf("Get(first) error = %v, want %v", err, export.ErrRevoked)
	}
	got, err := r.Get(second.ID)
	if err != nil {
		t.Fatalf("Get(second) error = %v", err)
	}
	if got.Size() != 2 {
		t.Errorf("Size() = %d, want 2", got.Size())
	}
}

func TestRegistryRevoke(t *testing.T) {
	r := export.NewRegistry()
	a := r.Publish(&export.Merged{Data: []byte("x")}, 3)

	r.Revoke()

	if _, err := r.Current(); !errors.Is(err, export.ErrNoArtifact) {
		t.Errorf("Current() after Revoke error = %v, want %v", err, export.ErrNoArtifact)
	}
	if _, err := r.Get(a.ID); !errors.Is(err, export.ErrRevoked) {
		t.Errorf("Get() after Revoke error = %v, want %v", err, export.ErrRevoked)
	}
	if _, err := r.Get("unknown"); !errors.Is(err, export.ErrNoArtifact) {
		t.Errorf("Get(unknown) error = %v, want %v", err, export.ErrNoArtifact)
	}
}

func TestRegistryForgetsOldHandles(t *testing.T) {
	r := export.NewRegistry()
	var ids []string
	for i := 0; i < export.RevokedHandleLimit+2; i++ {
		ids = append(ids, r.Publish(&export.Merged{Data: []byte("x")}, 1).ID)
	}

	if _, err := r.Get(ids[0]); !errors.Is(err, export.ErrNoArtifact) {
		t.Errorf("Get(oldest) error = %v, want %v", err, export.ErrNoArtifact)
	}
	if _, err := r.Get(ids[len(ids)-2]); !errors.Is(err, export.ErrRevoked) {
		t.Errorf("Get(previous) error = %v, want %v", err, export.ErrRevoked)
	}
	if _, err := r.Get(ids[len(ids)-1]); err != nil {
		t.Errorf("Get(current) error = %v", err)
	}
}
