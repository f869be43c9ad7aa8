package store

import (
	"context"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := User{ID: "u1", Username: "alice", AccountKey: "secret"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Username != "alice" || got.APIKey != "" {
		t.Errorf("unexpected user: %+v", got)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get user by username: %v", err)
	}
	if byName.ID != "u1" {
		t.Errorf("expected u1, got %s", byName.ID)
	}

	if err := s.SetUserAPIKey(ctx, "u1", "sk-test"); err != nil {
		t.Fatalf("set api key: %v", err)
	}
	got, _ = s.GetUser(ctx, "u1")
	if got.APIKey != "sk-test" {
		t.Errorf("api key not persisted, got %q", got.APIKey)
	}

	if err := s.SetUserAPIKey(ctx, "missing", "sk"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing user, got %v", err)
	}
	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestArtifactUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := Artifact{
		FileID:      "file-1",
		OwnerID:     "u1",
		Filename:    "plot.png",
		ContentType: "image/png",
		Purpose:     PurposeImage,
		Data:        []byte("v1"),
	}
	if err := s.UpsertArtifact(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := first
	second.Filename = "plot-final.png"
	second.Data = []byte("v2")
	if err := s.UpsertArtifact(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := s.CountArtifacts(ctx, "u1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one record, got %d", n)
	}

	got, err := s.GetArtifact(ctx, "file-1", "u1")
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if got.Filename != "plot-final.png" || string(got.Data) != "v2" {
		t.Errorf("second write should win, got %+v", got)
	}
}

func TestArtifactOwnerScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := Artifact{FileID: "file-1", OwnerID: "u1", Filename: "a.txt", ContentType: "text/plain", Purpose: PurposeContent, Data: []byte("x")}
	if err := s.UpsertArtifact(ctx, a); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetArtifact(ctx, "file-1", "u2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("artifact must not be visible to other owners, got %v", err)
	}

	list, err := s.ListArtifacts(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].FileID != "file-1" {
		t.Errorf("unexpected list: %+v", list)
	}
	if len(list[0].Data) != 0 {
		t.Error("list should not carry payloads")
	}
}

func TestVectorStoreMirror(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vs := VectorStore{ID: "vs-1", OwnerID: "u1", Name: "docs", Status: "in_progress", FileCounts: `{"total":2}`}
	if err := s.UpsertVectorStore(ctx, vs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	vs.Status = "completed"
	vs.UsageBytes = 512
	if err := s.UpsertVectorStore(ctx, vs); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetVectorStore(ctx, "vs-1", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "completed" || got.UsageBytes != 512 {
		t.Errorf("update not applied: %+v", got)
	}

	if err := s.UpsertVectorStore(ctx, VectorStore{ID: "vs-2", OwnerID: "u1", Name: "other", FileCounts: "{}"}); err != nil {
		t.Fatal(err)
	}

	if err := s.PruneVectorStores(ctx, "u1", []string{"vs-2"}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := s.GetVectorStore(ctx, "vs-1", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("vs-1 should have been pruned, got %v", err)
	}

	if err := s.DeleteVectorStore(ctx, "vs-2", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteVectorStore(ctx, "vs-2", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete should be ErrNotFound, got %v", err)
	}
}
