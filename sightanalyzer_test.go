package sightanalyzer

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/sight-analyzer/pkg/detection"
	"github.com/menta2k/sight-analyzer/pkg/pipeline"
	"github.com/menta2k/sight-analyzer/pkg/scene"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

// promptClient answers each detector prompt with a canned response
type promptClient struct {
	objects string
	faces   string
	caption string
}

func (p *promptClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return p.caption, nil
}

func (p *promptClient) QueryJSON(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	switch prompt {
	case detection.ObjectPrompt:
		return p.objects, nil
	case detection.FacePrompt:
		return p.faces, nil
	}
	return "", errors.New("unexpected prompt")
}

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{64, 64, 64, 255})
		}
	}
	return img
}

func newTestAnalyzer() *ImageAnalyzer {
	pc := &promptClient{
		objects: `{"objects":[{"class":"cup","score":0.9,"box":{"x":0.1,"y":0.1,"w":0.2,"h":0.2}}]}`,
		faces:   `{"faces":[]}`,
		caption: " A grey square. ",
	}
	config := DefaultConfig()
	config.Seed = 7
	return NewWithClient(pc, config)
}

func writeMesh(t *testing.T, dir, name string, offset float64) string {
	points := make([]types.Point, 468)
	for i := range points {
		points[i] = types.Point{X: float64(i) + offset, Y: float64(2*i) + offset}
	}
	data, err := json.Marshal([]map[string]interface{}{{"keypoints": points, "score": 0.99}})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewVisionClient(t *testing.T) {
	for _, backend := range []string{"", "ollama", "llamacpp"} {
		if _, err := NewVisionClient(backend, ""); err != nil {
			t.Errorf("NewVisionClient(%q) failed: %v", backend, err)
		}
	}
	if _, err := NewVisionClient("tesseract", ""); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := NewWithConfig(Config{Backend: "ollama", URL: "not a url"}); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestDescribe(t *testing.T) {
	sa := newTestAnalyzer()
	report, err := sa.Describe(context.Background(), createTestImage(100, 100))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(report.Objects) != 1 || report.Objects[0].ClassName != "cup" {
		t.Errorf("Expected one cup, got %+v", report.Objects)
	}
	if !strings.Contains(report.Description, "cup") {
		t.Errorf("Expected the cup in the description, got %q", report.Description)
	}
	if len(report.Faces) != 0 || report.Deepfake != nil {
		t.Error("No faces means no face analysis")
	}
	if sa.DescribeImage(context.Background(), createTestImage(10, 10)) == "" {
		t.Error("DescribeImage returned empty text")
	}
}

func TestRunModes(t *testing.T) {
	sa := newTestAnalyzer()
	img := createTestImage(50, 50)
	ctx := context.Background()

	label, err := sa.Label(ctx, img)
	if err != nil || label.Mode != types.ModeLabeling {
		t.Errorf("Label returned %+v, %v", label, err)
	}

	faces, err := sa.DetectFaces(ctx, img)
	if err != nil || faces.Description != "Detected 0 faces." {
		t.Errorf("DetectFaces returned %+v, %v", faces, err)
	}

	sc, err := sa.UnderstandScene(ctx, img)
	if err != nil || len(sc.Scenes) == 0 || sc.Scenes[0].Category != scene.NewFixedClassifier().Results[0].Category {
		t.Errorf("UnderstandScene returned %+v, %v", sc, err)
	}

	df, err := sa.Run(ctx, types.ModeDeepfake, img)
	if err != nil || df.Mode != types.ModeDeepfake || df.Deepfake != nil {
		t.Errorf("Deepfake run returned %+v, %v", df, err)
	}

	if _, err := sa.Run(ctx, types.Mode("x-ray"), img); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestRecognizeNeedsLandmarks(t *testing.T) {
	pc := &promptClient{faces: `{"faces":[{"score":0.9,"box":{"x":0.1,"y":0.1,"w":0.5,"h":0.5}}]}`}
	sa := NewWithClient(pc, DefaultConfig())

	_, err := sa.RecognizeFace(context.Background(), createTestImage(100, 100))
	if !errors.Is(err, detection.ErrNoLandmarks) {
		t.Errorf("Expected ErrNoLandmarks, got %v", err)
	}
}

func TestEnrollAndRecognize(t *testing.T) {
	dir := t.TempDir()
	ada := writeMesh(t, dir, "ada.landmarks.json", 0)
	stranger := writeMesh(t, dir, "stranger.landmarks.json", 1000)

	sa := newTestAnalyzer()
	if _, err := sa.Enroll("Ada", ada); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if sa.Gallery().Len() != 1 {
		t.Fatalf("Expected 1 gallery entry, got %d", sa.Gallery().Len())
	}

	sa.UseLandmarks(ada)
	report, err := sa.RecognizeFace(context.Background(), createTestImage(100, 100))
	if err != nil {
		t.Fatalf("RecognizeFace failed: %v", err)
	}
	if report.Description != "Face 1 matches Ada (similarity: 100%)." {
		t.Errorf("Unexpected description %q", report.Description)
	}

	sa.UseLandmarks(stranger)
	report, err = sa.RecognizeFace(context.Background(), createTestImage(100, 100))
	if err != nil {
		t.Fatalf("RecognizeFace failed: %v", err)
	}
	if report.Description != "Face 1 does not match any known face." {
		t.Errorf("Unexpected description %q", report.Description)
	}
}

func TestEnrollErrors(t *testing.T) {
	dir := t.TempDir()
	sa := newTestAnalyzer()

	if _, err := sa.Enroll("x", filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte("[]"), 0644)
	if _, err := sa.Enroll("x", empty); err == nil {
		t.Error("Expected error for a file without faces")
	}

	bare := filepath.Join(dir, "bare.json")
	os.WriteFile(bare, []byte(`[{"score":0.5}]`), 0644)
	if _, err := sa.Enroll("x", bare); !errors.Is(err, detection.ErrNoLandmarks) {
		t.Errorf("Expected ErrNoLandmarks, got %v", err)
	}
}

func TestCaption(t *testing.T) {
	caption, err := newTestAnalyzer().Caption(context.Background(), createTestImage(20, 20))
	if err != nil || caption != "A grey square." {
		t.Errorf("Caption returned %q, %v", caption, err)
	}

	sa := NewWithModels(pipeline.Models{}, Config{})
	if _, err := sa.Caption(context.Background(), createTestImage(20, 20)); err == nil {
		t.Error("Expected error without a vision client")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected %s, got %s", Version, GetVersion())
	}
}
