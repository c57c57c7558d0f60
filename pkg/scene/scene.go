// Package scene ranks what kind of place an image shows.
package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/menta2k/sight-analyzer/pkg/client"
	"github.com/menta2k/sight-analyzer/pkg/processing"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

// Categories are the scene labels a classifier may return
var Categories = []string{
	"bathroom", "bedroom", "conference_room", "dining_room", "kitchen",
	"living_room", "office", "street", "highway", "field", "forest",
	"mountain", "beach", "cityscape", "building", "airport", "classroom",
	"restaurant", "supermarket", "playground", "hospital", "library",
}

// IsCategory reports whether name is one of Categories
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Classifier returns scene results sorted by confidence, highest first
type Classifier interface {
	Classify(ctx context.Context, img image.Image) ([]types.SceneAnalysisResult, error)
}

// FixedClassifier returns the same ranking for every image
type FixedClassifier struct {
	Results []types.SceneAnalysisResult
}

// NewFixedClassifier returns the placeholder ranking used when no scene model is configured
func NewFixedClassifier() *FixedClassifier {
	return &FixedClassifier{Results: []types.SceneAnalysisResult{
		{Category: "living_room", Confidence: 0.82},
		{Category: "bedroom", Confidence: 0.12},
		{Category: "home", Confidence: 0.06},
	}}
}

// Classify returns a copy of the fixed results
func (f *FixedClassifier) Classify(ctx context.Context, _ image.Image) ([]types.SceneAnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]types.SceneAnalysisResult, len(f.Results))
	copy(out, f.Results)
	return out, nil
}

// VisionClassifier asks a vision model to rank Categories
type VisionClassifier struct {
	client    client.VisionClient
	processor *processing.Processor
	model     string
	encode    processing.EncodeOptions
	limit     int
}

// NewVisionClassifier creates a classifier that keeps the top 3 categories
func NewVisionClassifier(c client.VisionClient, model string) *VisionClassifier {
	return &VisionClassifier{
		client:    c,
		processor: processing.NewProcessor(),
		model:     model,
		encode:    processing.EncodeOptions{Format: "jpg", MaxDim: 768, Quality: 85},
		limit:     3,
	}
}

// Prompt builds the ranking prompt
func Prompt() string {
	return `You are a scene classifier.

Choose the categories that best describe where this photo was taken, from this list only:
` + strings.Join(Categories, ", ") + `

Return JSON only:
{"scenes": [{"category": "string", "confidence": 0.0}]}

HARD RULES
- Use category names exactly as listed.
- Confidences are in [0,1] and should roughly sum to 1.
- At most 3 entries, most likely first.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`
}

type sceneAnswer struct {
	Scenes []types.SceneAnalysisResult `json:"scenes"`
}

// Classify returns known categories with clamped confidences, sorted descending
func (v *VisionClassifier) Classify(ctx context.Context, img image.Image) ([]types.SceneAnalysisResult, error) {
	imgB64, err := v.processor.PrepareImageForModel(img, v.encode)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	raw, err := v.client.QueryJSON(ctx, v.model, Prompt(), imgB64)
	if err != nil {
		return nil, fmt.Errorf("scene classification failed: %w", err)
	}

	var answer sceneAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse scene answer: %w", err)
	}
	return Rank(answer.Scenes, v.limit), nil
}

// Rank normalizes raw results: unknown or duplicate categories are dropped, confidences
// clamped to [0,1], and the rest sorted descending. limit <= 0 keeps everything.
func Rank(raw []types.SceneAnalysisResult, limit int) []types.SceneAnalysisResult {
	seen := map[string]struct{}{}
	out := make([]types.SceneAnalysisResult, 0, len(raw))
	for _, r := range raw {
		category := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(r.Category)), " ", "_")
		if !IsCategory(category) {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, types.SceneAnalysisResult{Category: category, Confidence: types.Clamp01(r.Confidence)})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
