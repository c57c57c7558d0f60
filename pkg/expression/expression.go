// Package expression assigns a facial expression to each detected face.
package expression

import (
	"context"
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

// Analyzer returns one result per face, keyed by the face's index in faces
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image, faces []types.FaceDetectionResult) ([]types.FacialExpressionResult, error)
}

// RandomAnalyzer is a placeholder that picks a random expression per face with confidence in [0.6,1.0)
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
func (a *RandomAnalyzer) Analyze(ctx context.Context, _ image.Image, faces []types.FaceDetectionResult) ([]types.FacialExpressionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	all := types.Expressions()
	results := make([]types.FacialExpressionResult, 0, len(faces))
	for i, face := range faces {
		results = append(results, types.FacialExpressionResult{
			FaceIndex:  i,
			FaceID:     face.ID,
			Expression: all[a.rng.Intn(len(all))],
			Confidence: 0.6 + a.rng.Float64()*0.4,
		})
	}
	return results, nil
}

// FixedAnalyzer gives every face the same expression
type FixedAnalyzer struct {
	Expression types.Expression
	Confidence float64
}

// Analyze implements Analyzer
func (f FixedAnalyzer) Analyze(ctx context.Context, _ image.Image, faces []types.FaceDetectionResult) ([]types.FacialExpressionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]types.FacialExpressionResult, len(faces))
	for i, face := range faces {
		results[i] = types.FacialExpressionResult{
			FaceIndex:  i,
			FaceID:     face.ID,
			Expression: f.Expression,
			Confidence: types.Clamp01(f.Confidence),
		}
	}
	return results, nil
}
