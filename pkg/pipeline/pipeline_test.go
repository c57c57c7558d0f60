package pipeline

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/menta2k/sight-analyzer/pkg/deepfake"
	"github.com/menta2k/sight-analyzer/pkg/describe"
	"github.com/menta2k/sight-analyzer/pkg/expression"
	"github.com/menta2k/sight-analyzer/pkg/facematch"
	"github.com/menta2k/sight-analyzer/pkg/scene"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

type fakeObjects struct {
	objects []types.DetectedObject
	err     error
}

func (f fakeObjects) DetectObjects(ctx context.Context, img image.Image) ([]types.DetectedObject, error) {
	return f.objects, f.err
}

type fakeFaces struct {
	faces []types.FaceDetectionResult
	err   error
}

func (f fakeFaces) DetectFaces(ctx context.Context, img image.Image) ([]types.FaceDetectionResult, error) {
	out := make([]types.FaceDetectionResult, len(f.faces))
	copy(out, f.faces)
	return out, f.err
}

type fakeExpressions []types.FacialExpressionResult

func (f fakeExpressions) Analyze(ctx context.Context, img image.Image, faces []types.FaceDetectionResult) ([]types.FacialExpressionResult, error) {
	return append([]types.FacialExpressionResult(nil), f...), nil
}

func mesh(offset float64) []types.Point {
	points := make([]types.Point, 468)
	for i := range points {
		points[i] = types.Point{X: 100 + float64(i%20)*5 + offset, Y: 120 + float64(i/20)*4 + offset}
	}
	return points
}

func face(landmarks []types.Point) types.FaceDetectionResult {
	return types.FaceDetectionResult{
		Landmarks:   landmarks,
		BoundingBox: types.NewFaceBox(10, 10, 60, 70),
		FaceScore:   0.9,
	}
}

func fullModels() Models {
	return Models{
		Objects:     fakeObjects{objects: []types.DetectedObject{{ClassName: "dog", Score: 0.9}}},
		Faces:       fakeFaces{faces: []types.FaceDetectionResult{face(mesh(0))}},
		Scenes:      scene.NewFixedClassifier(),
		Expressions: expression.FixedAnalyzer{Expression: types.Happy, Confidence: 0.9},
		Deepfake:    deepfake.FixedAnalyzer{Result: types.DeepfakeAnalysisResult{Confidence: 0.95}},
	}
}

func TestDescribe(t *testing.T) {
	o := New(fullModels())
	report, err := o.Describe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	expected := "This image shows a living room. There is one person in the image who appears to be happy. " +
		"This appears to be an authentic image with no signs of manipulation. The image contains a dog."
	if report.Description != expected {
		t.Errorf("Expected %q, got %q", expected, report.Description)
	}
	if report.Mode != types.ModeDescription {
		t.Errorf("Expected description mode, got %s", report.Mode)
	}
}

func TestDescribeAssignsFaceIDs(t *testing.T) {
	models := fullModels()
	models.Faces = fakeFaces{faces: []types.FaceDetectionResult{face(mesh(0)), face(mesh(5))}}
	report, err := New(models).Describe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	if report.Faces[0].ID == "" || report.Faces[0].ID == report.Faces[1].ID {
		t.Errorf("Expected distinct face IDs, got %q and %q", report.Faces[0].ID, report.Faces[1].ID)
	}
	for _, e := range report.Expressions {
		if e.FaceID != report.Faces[e.FaceIndex].ID {
			t.Errorf("Expression for face %d has ID %q, want %q", e.FaceIndex, e.FaceID, report.Faces[e.FaceIndex].ID)
		}
	}
}

func TestDescribeSkipsFaceAnalysisWithoutFaces(t *testing.T) {
	models := fullModels()
	models.Faces = fakeFaces{}
	report, err := New(models).Describe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if report.Expressions != nil || report.Deepfake != nil {
		t.Error("Expression and deepfake analysis should only run when faces are present")
	}
}

func TestDescribeDropsInvalidExpressionIndex(t *testing.T) {
	models := fullModels()
	models.Expressions = fakeExpressions{
		{FaceIndex: 3, Expression: types.Sad, Confidence: 0.9},
		{FaceIndex: 0, Expression: types.Angry, Confidence: 1.2},
	}
	report, err := New(models).Describe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(report.Expressions) != 1 || report.Expressions[0].Expression != types.Angry {
		t.Fatalf("Expected only the angry expression, got %+v", report.Expressions)
	}
	if report.Expressions[0].Confidence != 1 {
		t.Errorf("Expected clamped confidence, got %v", report.Expressions[0].Confidence)
	}
}

func TestDescribeWithNoModels(t *testing.T) {
	got := New(Models{}).DescribeImage(context.Background(), nil)
	if got != describe.Fallback {
		t.Errorf("Expected fallback, got %q", got)
	}
}

func TestDescribeImageError(t *testing.T) {
	models := fullModels()
	models.Objects = fakeObjects{err: errors.New("model not loaded")}

	o := New(models)
	if _, err := o.Describe(context.Background(), nil); err == nil {
		t.Error("Expected Describe to return the detector error")
	}
	if got := o.DescribeImage(context.Background(), nil); got != describe.ErrorDescription {
		t.Errorf("Expected error description, got %q", got)
	}
}

func TestLabel(t *testing.T) {
	models := Models{Objects: fakeObjects{objects: []types.DetectedObject{{ClassName: "cat"}, {ClassName: "cat"}}}}
	report, err := New(models).Label(context.Background(), nil)
	if err != nil {
		t.Fatalf("Label failed: %v", err)
	}
	if report.Description != "The image contains 2 cats." {
		t.Errorf("Unexpected description %q", report.Description)
	}
}

func TestDetectFaces(t *testing.T) {
	report, err := New(fullModels()).DetectFaces(context.Background(), nil)
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if report.Description != "Detected 1 face." || len(report.Faces) != 1 {
		t.Errorf("Unexpected report %+v", report)
	}
	if FaceCountSentence(0) != "Detected 0 faces." {
		t.Errorf("Unexpected plural sentence %q", FaceCountSentence(0))
	}
}

func TestRecognize(t *testing.T) {
	o := New(fullModels())
	gallery := facematch.NewGallery(o.Matcher())
	if _, err := gallery.AddLandmarks("Alice", mesh(0)); err != nil {
		t.Fatalf("AddLandmarks failed: %v", err)
	}

	report, err := o.Recognize(context.Background(), nil, gallery)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(report.Recognitions) != 1 {
		t.Fatalf("Expected 1 recognition, got %d", len(report.Recognitions))
	}
	rec := report.Recognitions[0]
	if !rec.Match.IsMatch || rec.Name != "Alice" || rec.Match.Similarity != 1 {
		t.Errorf("Expected exact match with Alice, got %+v", rec)
	}
	if report.Description != "Face 1 matches Alice (similarity: 100%)." {
		t.Errorf("Unexpected description %q", report.Description)
	}
}

func TestRecognizeEmptyGallery(t *testing.T) {
	report, err := New(fullModels()).Recognize(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if report.Recognitions[0].Match != types.NoMatch {
		t.Errorf("Expected NoMatch, got %+v", report.Recognitions[0].Match)
	}
	if !strings.Contains(report.Description, "does not match") {
		t.Errorf("Unexpected description %q", report.Description)
	}
}

func TestRecognizeRequiresLandmarks(t *testing.T) {
	models := Models{Faces: fakeFaces{faces: []types.FaceDetectionResult{face(nil)}}}
	if _, err := New(models).Recognize(context.Background(), nil, nil); err == nil {
		t.Error("Expected error for faces without landmarks")
	}
}

func TestUnderstandScene(t *testing.T) {
	report, err := New(fullModels()).UnderstandScene(context.Background(), nil)
	if err != nil {
		t.Fatalf("UnderstandScene failed: %v", err)
	}
	if report.Description != "This image shows a living room with high confidence." {
		t.Errorf("Unexpected description %q", report.Description)
	}
}

func TestCheckDeepfake(t *testing.T) {
	models := fullModels()
	models.Deepfake = deepfake.FixedAnalyzer{Result: types.DeepfakeAnalysisResult{
		IsDeepfake:          true,
		Confidence:          0.876,
		ManipulationDetails: []string{"edge artifacts"},
	}}

	report, err := New(models).CheckDeepfake(context.Background(), nil)
	if err != nil {
		t.Fatalf("CheckDeepfake failed: %v", err)
	}
	if !strings.Contains(report.Description, "(confidence: 88%)") ||
		!strings.Contains(report.Description, "Detected manipulations include edge artifacts.") {
		t.Errorf("Unexpected description %q", report.Description)
	}
}

func TestRun(t *testing.T) {
	o := New(fullModels())
	for _, mode := range types.Modes() {
		report, err := o.Run(context.Background(), mode, nil, nil)
		if err != nil {
			t.Errorf("Run(%s) failed: %v", mode, err)
			continue
		}
		if report.Mode != mode {
			t.Errorf("Expected mode %s, got %s", mode, report.Mode)
		}
	}
	if _, err := o.Run(context.Background(), types.Mode("x"), nil, nil); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
