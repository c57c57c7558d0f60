package scene

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

type fakeClient struct {
	answer string
	err    error
}

func (f *fakeClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return f.answer, f.err
}

func (f *fakeClient) QueryJSON(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return f.answer, f.err
}

func TestCategories(t *testing.T) {
	if len(Categories) != 22 {
		t.Errorf("Expected 22 categories, got %d", len(Categories))
	}
	if !IsCategory("living_room") || IsCategory("home") {
		t.Error("IsCategory mismatch")
	}
}

func TestFixedClassifier(t *testing.T) {
	c := NewFixedClassifier()
	results, err := c.Classify(context.Background(), nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(results) != 3 || results[0].Category != "living_room" || results[0].Confidence != 0.82 {
		t.Errorf("Unexpected results %+v", results)
	}

	// callers may not mutate the fixed ranking
	results[0].Confidence = 0
	again, _ := c.Classify(context.Background(), nil)
	if again[0].Confidence != 0.82 {
		t.Error("FixedClassifier results were mutated through a returned slice")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Classify(ctx, nil); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestRank(t *testing.T) {
	raw := []types.SceneAnalysisResult{
		{Category: "Kitchen", Confidence: 0.3},
		{Category: "spaceship", Confidence: 0.9},
		{Category: "living room", Confidence: 1.7},
		{Category: "kitchen", Confidence: 0.8},
		{Category: "office", Confidence: -0.2},
	}

	got := Rank(raw, 0)
	want := []types.SceneAnalysisResult{
		{Category: "living_room", Confidence: 1},
		{Category: "kitchen", Confidence: 0.3},
		{Category: "office", Confidence: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d results, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Result %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	if len(Rank(raw, 1)) != 1 {
		t.Error("Expected limit to apply")
	}
}

func TestVisionClassifier(t *testing.T) {
	fc := &fakeClient{answer: `{"scenes": [{"category": "beach", "confidence": 0.4}, {"category": "forest", "confidence": 0.55}]}`}
	results, err := NewVisionClassifier(fc, "m").Classify(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(results) != 2 || results[0].Category != "forest" {
		t.Errorf("Expected forest first, got %+v", results)
	}

	fc = &fakeClient{err: errors.New("down")}
	if _, err := NewVisionClassifier(fc, "m").Classify(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10))); err == nil {
		t.Error("Expected error to propagate")
	}
}

func TestPromptListsCategories(t *testing.T) {
	p := Prompt()
	for _, c := range Categories {
		if !strings.Contains(p, c) {
			t.Errorf("Prompt is missing %s", c)
		}
	}
}
