// Package deepfake flags images that look artificially generated or manipulated.
package deepfake

import (
	"context"
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

// Manipulations lists the findings a detector may report
var Manipulations = []string{
	"facial feature substitution",
	"inconsistent lighting",
	"unnatural skin texture",
	"irregular eye reflections",
	"abnormal facial proportions",
	"edge artifacts",
	"background inconsistencies",
}

// FlagRate is the probability that RandomAnalyzer flags an image
const FlagRate = 0.3

// Analyzer inspects an image that contains faces
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image, faces []types.FaceDetectionResult) (*types.DeepfakeAnalysisResult, error)
}

// RandomAnalyzer is a placeholder that flags FlagRate of images with 1-3 distinct findings
type RandomAnalyzer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAnalyzer uses rng as its only source of randomness. A nil rng is seeded from the clock.
func NewRandomAnalyzer(rng *rand.Rand) *RandomAnalyzer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomAnalyzer{rng: rng}
}

// Analyze implements Analyzer
func (a *RandomAnalyzer) Analyze(ctx context.Context, _ image.Image, _ []types.FaceDetectionResult) (*types.DeepfakeAnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	result := &types.DeepfakeAnalysisResult{
		IsDeepfake: a.rng.Float64() < FlagRate,
		Confidence: 0.6 + a.rng.Float64()*0.4,
	}
	if !result.IsDeepfake {
		return result, nil
	}

	count := a.rng.Intn(3) + 1
	for _, i := range a.rng.Perm(len(Manipulations))[:count] {
		result.ManipulationDetails = append(result.ManipulationDetails, Manipulations[i])
	}
	return result, nil
}

// FixedAnalyzer returns a copy of Result for every image
type FixedAnalyzer struct {
	Result types.DeepfakeAnalysisResult
}

// Analyze implements Analyzer. Findings are dropped when the result is not flagged.
func (f FixedAnalyzer) Analyze(ctx context.Context, _ image.Image, _ []types.FaceDetectionResult) (*types.DeepfakeAnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &types.DeepfakeAnalysisResult{
		IsDeepfake: f.Result.IsDeepfake,
		Confidence: types.Clamp01(f.Result.Confidence),
	}
	if result.IsDeepfake {
		result.ManipulationDetails = append([]string(nil), f.Result.ManipulationDetails...)
	}
	return result, nil
}
