package results

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/menta2k/sight-analyzer/pkg/pipeline"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

func TestFromReport(t *testing.T) {
	report := &pipeline.Report{
		Mode:        types.ModeDescription,
		Description: "The image contains 2 cats and a dog.",
		Objects: []types.DetectedObject{
			{ClassName: "cat"}, {ClassName: "cat"}, {ClassName: "dog"},
		},
		Faces: []types.FaceDetectionResult{{}, {}},
	}

	r := FromReport(report, "photo.jpg")
	if r.FaceCount != 2 || r.Mode != types.ModeDescription || r.Source != "photo.jpg" {
		t.Errorf("Unexpected result %+v", r)
	}
	if len(r.Labels) != 2 || r.Labels[0] != "cat" || r.Labels[1] != "dog" {
		t.Errorf("Expected unique labels [cat dog], got %v", r.Labels)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	first := &Result{Description: "first", CreatedAt: time.Now().Add(-time.Minute)}
	id, err := s.Save(ctx, first)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id == "" || first.ID != id {
		t.Error("Save should assign an ID")
	}

	second := &Result{Description: "second", Labels: []string{"cup"}}
	if _, err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if second.CreatedAt.IsZero() {
		t.Error("Save should set CreatedAt")
	}

	got, err := s.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.Labels[0] = "changed"
	again, _ := s.Get(ctx, second.ID)
	if again.Labels[0] != "cup" {
		t.Error("Stored labels must not be shared with callers")
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].Description != "second" {
		t.Errorf("Expected newest first, got %+v", list)
	}

	if err := s.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second delete, got %v", err)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	now := time.Now()
	s.now = func() time.Time { return now }

	r := &Result{Description: "old"}
	s.Save(ctx, r)

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := s.Get(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired result to be gone, got %v", err)
	}
	if list, _ := s.List(ctx); len(list) != 0 {
		t.Errorf("Expected empty list, got %d", len(list))
	}
}

func TestKey(t *testing.T) {
	if Key("abc") != "sight:result:abc" {
		t.Errorf("Unexpected key %s", Key("abc"))
	}
}

func TestDecode(t *testing.T) {
	r, err := decode([]byte(`{"id":"x","mode":"scene","description":"d","faceCount":1,"createdAt":"2024-01-02T03:04:05Z"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if r.ID != "x" || r.Mode != types.ModeScene || r.FaceCount != 1 || r.CreatedAt.Year() != 2024 {
		t.Errorf("Unexpected result %+v", r)
	}
	if _, err := decode([]byte("{")); err == nil {
		t.Error("Expected error for truncated JSON")
	}
}

// TestRedisStore runs against a real server when SIGHT_TEST_REDIS_ADDR is set
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SIGHT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SIGHT_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	s, err := NewRedisStore(ctx, RedisOptions{Addr: addr, DB: 15, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	r := &Result{Mode: types.ModeLabeling, Description: "The image contains a cup."}
	id, err := s.Save(ctx, r)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	defer s.Delete(ctx, id)

	got, err := s.Get(ctx, id)
	if err != nil || got.Description != r.Description {
		t.Fatalf("Get returned %+v, %v", got, err)
	}

	list, err := s.List(ctx)
	if err != nil || len(list) == 0 {
		t.Fatalf("List returned %d results, %v", len(list), err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
