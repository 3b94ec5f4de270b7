package mount

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	info := &Info{ID: "m1", Status: StatusReady, CreatedAt: time.Now()}
	if err := s.PutMount(context.Background(), info); err != nil {
		t.Fatalf("PutMount: %v", err)
	}
	got, err := s.GetMount(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMount: %v", err)
	}
	if got.ID != "m1" {
		t.Fatalf("got %+v", got)
	}
	if _, err := s.GetMount(context.Background(), "missing"); err == nil {
		t.Fatal("expected MountNotFound")
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	fs := afero.NewMemMapFs()
	s1, err := NewFileStore(fs, "/mounts.json")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	info := &Info{ID: "m1", Status: StatusReady, CreatedAt: time.Now()}
	if err := s1.PutMount(context.Background(), info); err != nil {
		t.Fatalf("PutMount: %v", err)
	}

	s2, err := NewFileStore(fs, "/mounts.json")
	if err != nil {
		t.Fatalf("NewFileStore (reload): %v", err)
	}
	got, err := s2.GetMount(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMount after reload: %v", err)
	}
	if got.ID != "m1" {
		t.Fatalf("got %+v", got)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewFileStore(fs, "/does-not-exist.json")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := s.GetMount(context.Background(), "anything"); err == nil {
		t.Fatal("expected MountNotFound on empty store")
	}
}
