// Package pipeline runs perception collaborators over an image and turns their results into text.
//
// Collaborators are supplied through a caller-owned Models value. Any nil model is skipped, so a
// pipeline with only an object detector still produces an object-only description.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/sight-analyzer/pkg/deepfake"
	"github.com/menta2k/sight-analyzer/pkg/describe"
	"github.com/menta2k/sight-analyzer/pkg/detection"
	"github.com/menta2k/sight-analyzer/pkg/expression"
	"github.com/menta2k/sight-analyzer/pkg/facematch"
	"github.com/menta2k/sight-analyzer/pkg/scene"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

// Models holds the perception collaborators used by an Orchestrator
type Models struct {
	Objects     detection.ObjectDetector
	Faces       detection.FaceDetector
	Scenes      scene.Classifier
	Expressions expression.Analyzer
	Deepfake    deepfake.Analyzer
}

// Report is everything produced for one image
type Report struct {
	Mode         types.Mode                     `json:"mode"`
	Objects      []types.DetectedObject         `json:"objects,omitempty"`
	Scenes       []types.SceneAnalysisResult    `json:"scenes,omitempty"`
	Faces        []types.FaceDetectionResult    `json:"faces,omitempty"`
	Expressions  []types.FacialExpressionResult `json:"expressions,omitempty"`
	Deepfake     *types.DeepfakeAnalysisResult  `json:"deepfake,omitempty"`
	Recognitions []Recognition                  `json:"recognitions,omitempty"`
	Description  string                         `json:"description"`
	Duration     time.Duration                  `json:"duration"`
}

// Recognition pairs a detected face with its best gallery match
type Recognition struct {
	FaceIndex int                   `json:"faceIndex"`
	FaceID    string                `json:"faceId"`
	Match     types.FaceMatchResult `json:"match"`
	Name      string                `json:"name,omitempty"`
}

// Config holds orchestrator options
type Config struct {
	Logger  *zap.Logger
	Matcher *facematch.Matcher
}

// Orchestrator routes images through the configured models
type Orchestrator struct {
	models  Models
	matcher *facematch.Matcher
	logger  *zap.Logger
	newID   func() string
}

// New creates an orchestrator with a no-op logger and the default matcher
func New(models Models) *Orchestrator {
	return NewWithConfig(models, Config{})
}

// NewWithConfig creates an orchestrator with custom options
func NewWithConfig(models Models, config Config) *Orchestrator {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Matcher == nil {
		config.Matcher = facematch.New()
	}
	return &Orchestrator{
		models:  models,
		matcher: config.Matcher,
		logger:  config.Logger,
		newID:   func() string { return uuid.New().String() },
	}
}

// Matcher returns the matcher used for recognition
func (o *Orchestrator) Matcher() *facematch.Matcher {
	return o.matcher
}

// Describe runs every model and composes the full description.
// Object, scene and face detection run concurrently; expressions and deepfake analysis only run when faces were found.
func (o *Orchestrator) Describe(ctx context.Context, img image.Image) (*Report, error) {
	start := time.Now()
	report := &Report{Mode: types.ModeDescription}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		objects, err := o.detectObjects(gctx, img)
		report.Objects = objects
		return err
	})
	g.Go(func() error {
		scenes, err := o.classify(gctx, img)
		report.Scenes = scenes
		return err
	})
	g.Go(func() error {
		faces, err := o.detectFaces(gctx, img)
		report.Faces = faces
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(report.Faces) > 0 {
		expressions, err := o.analyzeExpressions(ctx, img, report.Faces)
		if err != nil {
			return nil, err
		}
		report.Expressions = expressions

		report.Deepfake, err = o.analyzeDeepfake(ctx, img, report.Faces)
		if err != nil {
			return nil, err
		}
	}

	report.Description = describe.Compose(report.Objects, report.Scenes, report.Faces, report.Expressions, report.Deepfake)
	report.Duration = time.Since(start)

	o.logger.Debug("image described",
		zap.Int("objects", len(report.Objects)),
		zap.Int("faces", len(report.Faces)),
		zap.Int("scenes", len(report.Scenes)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// DescribeImage never fails: collaborator errors are logged and the fixed error sentence is returned
func (o *Orchestrator) DescribeImage(ctx context.Context, img image.Image) string {
	report, err := o.Describe(ctx, img)
	if err != nil {
		o.logger.Error("error generating image description", zap.Error(err))
		return describe.ErrorDescription
	}
	return report.Description
}

// Label detects objects only
func (o *Orchestrator) Label(ctx context.Context, img image.Image) (*Report, error) {
	start := time.Now()
	objects, err := o.detectObjects(ctx, img)
	if err != nil {
		return nil, err
	}
	return &Report{
		Mode:        types.ModeLabeling,
		Objects:     objects,
		Description: describe.Compose(objects, nil, nil, nil, nil),
		Duration:    time.Since(start),
	}, nil
}

// DetectFaces finds faces and assigns each a stable ID
func (o *Orchestrator) DetectFaces(ctx context.Context, img image.Image) (*Report, error) {
	start := time.Now()
	faces, err := o.detectFaces(ctx, img)
	if err != nil {
		return nil, err
	}
	return &Report{
		Mode:        types.ModeDetection,
		Faces:       faces,
		Description: FaceCountSentence(len(faces)),
		Duration:    time.Since(start),
	}, nil
}

// Recognize detects faces and matches each against gallery. Faces must carry landmarks.
func (o *Orchestrator) Recognize(ctx context.Context, img image.Image, gallery *facematch.Gallery) (*Report, error) {
	start := time.Now()
	faces, err := o.detectFaces(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := detection.RequireLandmarks(faces); err != nil {
		return nil, err
	}

	report := &Report{Mode: types.ModeRecognition, Faces: faces}
	for i, face := range faces {
		rec := Recognition{FaceIndex: i, FaceID: face.ID, Match: types.NoMatch}
		if gallery != nil {
			m := gallery.MatchLandmarks(face.Landmarks)
			rec.Match = m.FaceMatchResult
			if m.Entry != nil {
				rec.Name = m.Entry.Name
			}
		}
		report.Recognitions = append(report.Recognitions, rec)
	}
	report.Description = RecognitionSentence(report.Recognitions)
	report.Duration = time.Since(start)
	return report, nil
}

// UnderstandScene classifies the scene only
func (o *Orchestrator) UnderstandScene(ctx context.Context, img image.Image) (*Report, error) {
	start := time.Now()
	scenes, err := o.classify(ctx, img)
	if err != nil {
		return nil, err
	}
	return &Report{
		Mode:        types.ModeScene,
		Scenes:      scenes,
		Description: describe.SceneSentence(scenes),
		Duration:    time.Since(start),
	}, nil
}

// CheckDeepfake detects faces and runs manipulation analysis on them
func (o *Orchestrator) CheckDeepfake(ctx context.Context, img image.Image) (*Report, error) {
	start := time.Now()
	faces, err := o.detectFaces(ctx, img)
	if err != nil {
		return nil, err
	}

	report := &Report{Mode: types.ModeDeepfake, Faces: faces}
	if len(faces) > 0 {
		if report.Deepfake, err = o.analyzeDeepfake(ctx, img, faces); err != nil {
			return nil, err
		}
	}
	report.Description = describe.Compose(nil, nil, faces, nil, report.Deepfake)
	report.Duration = time.Since(start)
	return report, nil
}

// Run dispatches to the analysis for mode. gallery is only used for recognition.
func (o *Orchestrator) Run(ctx context.Context, mode types.Mode, img image.Image, gallery *facematch.Gallery) (*Report, error) {
	switch mode {
	case types.ModeLabeling:
		return o.Label(ctx, img)
	case types.ModeDetection:
		return o.DetectFaces(ctx, img)
	case types.ModeRecognition:
		return o.Recognize(ctx, img, gallery)
	case types.ModeScene:
		return o.UnderstandScene(ctx, img)
	case types.ModeDescription:
		return o.Describe(ctx, img)
	case types.ModeDeepfake:
		return o.CheckDeepfake(ctx, img)
	default:
		return nil, fmt.Errorf("unknown analysis mode: %q", mode)
	}
}

// FaceCountSentence summarizes a face detection
func FaceCountSentence(n int) string {
	if n == 1 {
		return "Detected 1 face."
	}
	return fmt.Sprintf("Detected %d faces.", n)
}

// RecognitionSentence summarizes gallery matches, one sentence per face
func RecognitionSentence(recs []Recognition) string {
	if len(recs) == 0 {
		return "No faces detected."
	}
	sentences := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.Match.IsMatch {
			name := r.Name
			if name == "" {
				name = "a known face"
			}
			sentences = append(sentences, fmt.Sprintf("Face %d matches %s (similarity: %d%%).",
				r.FaceIndex+1, name, describe.Percent(r.Match.Similarity)))
			continue
		}
		sentences = append(sentences, fmt.Sprintf("Face %d does not match any known face.", r.FaceIndex+1))
	}
	return strings.Join(sentences, " ")
}

func (o *Orchestrator) detectObjects(ctx context.Context, img image.Image) ([]types.DetectedObject, error) {
	if o.models.Objects == nil {
		return nil, nil
	}
	objects, err := o.models.Objects.DetectObjects(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("object detection: %w", err)
	}
	return objects, nil
}

func (o *Orchestrator) classify(ctx context.Context, img image.Image) ([]types.SceneAnalysisResult, error) {
	if o.models.Scenes == nil {
		return nil, nil
	}
	scenes, err := o.models.Scenes.Classify(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("scene classification: %w", err)
	}
	return scenes, nil
}

// detectFaces assigns a fresh ID to every face that does not already carry one
func (o *Orchestrator) detectFaces(ctx context.Context, img image.Image) ([]types.FaceDetectionResult, error) {
	if o.models.Faces == nil {
		return nil, nil
	}
	faces, err := o.models.Faces.DetectFaces(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("face detection: %w", err)
	}
	for i := range faces {
		if faces[i].ID == "" {
			faces[i].ID = o.newID()
		}
	}
	return faces, nil
}

// analyzeExpressions drops results that do not point at one of faces
func (o *Orchestrator) analyzeExpressions(ctx context.Context, img image.Image, faces []types.FaceDetectionResult) ([]types.FacialExpressionResult, error) {
	if o.models.Expressions == nil {
		return nil, nil
	}
	results, err := o.models.Expressions.Analyze(ctx, img, faces)
	if err != nil {
		return nil, fmt.Errorf("expression analysis: %w", err)
	}

	valid := results[:0]
	for _, r := range results {
		if r.FaceIndex < 0 || r.FaceIndex >= len(faces) {
			o.logger.Warn("dropping expression for unknown face",
				zap.Int("face_index", r.FaceIndex),
				zap.Int("faces", len(faces)))
			continue
		}
		r.FaceID = faces[r.FaceIndex].ID
		r.Confidence = types.Clamp01(r.Confidence)
		valid = append(valid, r)
	}
	return valid, nil
}

// analyzeDeepfake clears findings on unflagged results
func (o *Orchestrator) analyzeDeepfake(ctx context.Context, img image.Image, faces []types.FaceDetectionResult) (*types.DeepfakeAnalysisResult, error) {
	if o.models.Deepfake == nil {
		return nil, nil
	}
	result, err := o.models.Deepfake.Analyze(ctx, img, faces)
	if err != nil {
		return nil, fmt.Errorf("deepfake analysis: %w", err)
	}
	if result == nil {
		return nil, nil
	}
	result.Confidence = types.Clamp01(result.Confidence)
	if !result.IsDeepfake {
		result.ManipulationDetails = nil
	}
	return result, nil
}
