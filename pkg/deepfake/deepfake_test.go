package deepfake

import (
	"context"
	"math/rand"
	"testing"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

func TestRandomAnalyzerInvariants(t *testing.T) {
	a := NewRandomAnalyzer(rand.New(rand.NewSource(1)))
	flagged := 0

	for i := 0; i < 1000; i++ {
		r, err := a.Analyze(context.Background(), nil, nil)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if r.Confidence < 0.6 || r.Confidence >= 1.0 {
			t.Errorf("Confidence %v outside [0.6,1.0)", r.Confidence)
		}

		if !r.IsDeepfake {
			if len(r.ManipulationDetails) != 0 {
				t.Errorf("Unflagged result has findings: %v", r.ManipulationDetails)
			}
			continue
		}

		flagged++
		if n := len(r.ManipulationDetails); n < 1 || n > 3 {
			t.Errorf("Expected 1-3 findings, got %d", n)
		}
		seen := map[string]bool{}
		for _, d := range r.ManipulationDetails {
			if seen[d] {
				t.Errorf("Duplicate finding %q", d)
			}
			seen[d] = true
		}
	}

	// roughly FlagRate of 1000
	if flagged < 200 || flagged > 400 {
		t.Errorf("Expected about 300 flagged results, got %d", flagged)
	}
}

func TestFixedAnalyzer(t *testing.T) {
	details := []string{"edge artifacts"}
	r, err := FixedAnalyzer{Result: types.DeepfakeAnalysisResult{IsDeepfake: true, Confidence: 0.9, ManipulationDetails: details}}.
		Analyze(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !r.IsDeepfake || len(r.ManipulationDetails) != 1 {
		t.Errorf("Unexpected result %+v", r)
	}
	r.ManipulationDetails[0] = "changed"
	if details[0] != "edge artifacts" {
		t.Error("FixedAnalyzer should copy findings")
	}

	clean, _ := FixedAnalyzer{Result: types.DeepfakeAnalysisResult{Confidence: 0.95, ManipulationDetails: details}}.
		Analyze(context.Background(), nil, nil)
	if len(clean.ManipulationDetails) != 0 {
		t.Error("Findings must be empty when not flagged")
	}
}
