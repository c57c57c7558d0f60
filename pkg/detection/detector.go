package detection

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

// ObjectDetector supplies labeled objects for an image. An empty result is not an error.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, img image.Image) ([]types.DetectedObject, error)
}

// FaceDetector supplies one FaceDetectionResult per face found in an image
type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]types.FaceDetectionResult, error)
}

// CaptionPrompt asks for a short free-form caption
const CaptionPrompt = `What do you see in this image? Describe it briefly.`

// ObjectPrompt is the default prompt for object labeling
const ObjectPrompt = `You are an object detector.

Return JSON only:
{
  "objects": [
    {"class": "string", "score": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- One entry per visible object instance (two cups = two entries).
- "class" is a short lowercase common noun in singular form (person, dog, cup, chair, car).
- "score" is your confidence in [0,1].
- All coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- If nothing is recognizable, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// FacePrompt is the default prompt for face localisation
const FacePrompt = `You are a face locator.

Return JSON only:
{
  "faces": [
    {"score": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- One entry per human face, including partially visible faces.
- All coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- Do not guess real identities.
- If there are no faces, return {"faces": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config controls a vision-model-backed detector
type Config struct {
	Model      string
	Encode     processing.EncodeOptions
	MinScore   float64 // results scoring below are dropped
	MaxResults int     // 0 = unlimited
}

// DefaultConfig returns detector defaults for the given model
func DefaultConfig(model string) Config {
	return Config{
		Model:      model,
		Encode:     processing.DefaultEncodeOptions(),
		MinScore:   0.3,
		MaxResults: 20,
	}
}

type visionBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type objectAnswer struct {
	Objects []struct {
		Class string    `json:"class"`
		Score float64   `json:"score"`
		Box   visionBox `json:"box"`
	} `json:"objects"`
}

type faceAnswer struct {
	Faces []struct {
		Score float64   `json:"score"`
		Box   visionBox `json:"box"`
	} `json:"faces"`
}

// VisionObjectDetector labels objects with a vision model
type VisionObjectDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
	prompt    string
}

// NewObjectDetector creates an object detector with default settings
func NewObjectDetector(c client.VisionClient, model string) *VisionObjectDetector {
	return NewObjectDetectorWithConfig(c, DefaultConfig(model))
}

// NewObjectDetectorWithConfig creates an object detector with custom settings
func NewObjectDetectorWithConfig(c client.VisionClient, config Config) *VisionObjectDetector {
	return &VisionObjectDetector{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
		prompt:    ObjectPrompt,
	}
}

// DetectObjects returns objects in pixel coordinates, highest score first
func (d *VisionObjectDetector) DetectObjects(ctx context.Context, img image.Image) ([]types.DetectedObject, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.config.Encode)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	raw, err := d.client.QueryJSON(ctx, d.config.Model, d.prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("object detection failed: %w", err)
	}

	var answer objectAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse object detection answer: %w", err)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	objects := make([]types.DetectedObject, 0, len(answer.Objects))
	for _, o := range answer.Objects {
		class := normalizeClass(o.Class)
		score := clamp(o.Score, 0, 1)
		if class == "" || score < d.config.MinScore {
			continue
		}
		objects = append(objects, types.DetectedObject{
			BoundingBox: toPixels(normalizeBox(o.Box), w, h),
			ClassName:   class,
			Score:       score,
		})
	}

	sort.SliceStable(objects, func(i, j int) bool { return objects[i].Score > objects[j].Score })
	if d.config.MaxResults > 0 && len(objects) > d.config.MaxResults {
		objects = objects[:d.config.MaxResults]
	}
	return objects, nil
}

// Caption asks the model for a free-form description of the image
func (d *VisionObjectDetector) Caption(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.config.Encode)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}
	answer, err := d.client.SimpleQuery(ctx, d.config.Model, CaptionPrompt, imgB64)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// VisionFaceDetector locates faces with a vision model. Results carry boxes only, no landmarks.
type VisionFaceDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
}

// NewFaceDetector creates a face detector with default settings
func NewFaceDetector(c client.VisionClient, model string) *VisionFaceDetector {
	config := DefaultConfig(model)
	config.MaxResults = 10
	return NewFaceDetectorWithConfig(c, config)
}

// NewFaceDetectorWithConfig creates a face detector with custom settings
func NewFaceDetectorWithConfig(c client.VisionClient, config Config) *VisionFaceDetector {
	return &VisionFaceDetector{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// DetectFaces returns faces in the order the model listed them
func (d *VisionFaceDetector) DetectFaces(ctx context.Context, img image.Image) ([]types.FaceDetectionResult, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.config.Encode)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	raw, err := d.client.QueryJSON(ctx, d.config.Model, FacePrompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	var answer faceAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse face detection answer: %w", err)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	faces := make([]types.FaceDetectionResult, 0, len(answer.Faces))
	for _, f := range answer.Faces {
		score := clamp(f.Score, 0, 1)
		if score < d.config.MinScore {
			continue
		}
		box := toPixels(normalizeBox(f.Box), w, h)
		if box.W <= 0 || box.H <= 0 {
			continue
		}
		faces = append(faces, types.FaceDetectionResult{
			BoundingBox: types.NewFaceBox(box.X, box.Y, box.X+box.W, box.Y+box.H),
			FaceScore:   score,
		})
		if d.config.MaxResults > 0 && len(faces) == d.config.MaxResults {
			break
		}
	}
	return faces, nil
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps a normalized box inside the unit square
func normalizeBox(b visionBox) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

// toPixels scales a normalized box to a w*h image
func toPixels(b types.Box, w, h int) types.Box {
	return types.Box{
		X: b.X * float64(w),
		Y: b.Y * float64(h),
		W: b.W * float64(w),
		H: b.H * float64(h),
	}
}

// normalizeClass lowercases and trims a class label, collapsing inner whitespace
func normalizeClass(class string) string {
	return strings.Join(strings.Fields(strings.ToLower(class)), " ")
}
