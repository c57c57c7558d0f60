// Package sightanalyzer describes images for people who cannot see them.
//
// It combines a local vision model (Ollama or llama.cpp) for object and face detection with scene
// ranking, landmark-based face matching and placeholder expression and deepfake analysis, and turns
// the results into one short spoken-style description.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		sightanalyzer "github.com/menta2k/sight-analyzer"
//	)
//
//	func main() {
//		sa, err := sightanalyzer.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		img, err := sa.LoadImage("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Println(sa.DescribeImage(context.Background(), img))
//	}
//
// The package is a thin facade over:
//
//  1. Detection (pkg/detection): vision-model object and face detectors, face-mesh landmark files
//  2. Pipeline (pkg/pipeline): runs the models for each analysis mode and composes the text
//  3. Face matching (pkg/facematch): landmark descriptors and a gallery of known faces
package sightanalyzer

import (
	"context"
	"fmt"
	"image"
	"io"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/sight-analyzer/pkg/client"
	"github.com/menta2k/sight-analyzer/pkg/deepfake"
	"github.com/menta2k/sight-analyzer/pkg/detection"
	"github.com/menta2k/sight-analyzer/pkg/expression"
	"github.com/menta2k/sight-analyzer/pkg/facematch"
	"github.com/menta2k/sight-analyzer/pkg/llamacpp"
	"github.com/menta2k/sight-analyzer/pkg/ollama"
	"github.com/menta2k/sight-analyzer/pkg/pipeline"
	"github.com/menta2k/sight-analyzer/pkg/processing"
	"github.com/menta2k/sight-analyzer/pkg/scene"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

// Version of the sight analyzer library
const Version = "1.0.0"

// Default server URLs per backend
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// Config configures an ImageAnalyzer
type Config struct {
	Backend string // ollama|llamacpp
	URL     string // empty uses the backend default
	Model   string
	// SceneModel enables vision-based scene classification; empty uses the fixed ranking
	SceneModel string

	Encode         processing.EncodeOptions
	MinObjectScore float64
	MaxObjects     int
	MaxFaces       int
	Matcher        facematch.Config
	// Seed for the expression and deepfake placeholders; 0 seeds from the clock
	Seed int64

	Logger *zap.Logger
}

// DefaultConfig returns the defaults used by New
func DefaultConfig() Config {
	return Config{
		Backend:        "ollama",
		Model:          "llava:13b",
		Encode:         processing.DefaultEncodeOptions(),
		MinObjectScore: 0.3,
		MaxObjects:     20,
		MaxFaces:       10,
		Matcher: facematch.Config{
			Scale:     facematch.DefaultScale,
			Threshold: facematch.Threshold(facematch.DefaultThreshold),
		},
	}
}

// ImageAnalyzer provides a high-level interface for narrated image analysis
type ImageAnalyzer struct {
	processor    *processing.Processor
	objects      *detection.VisionObjectDetector
	models       pipeline.Models
	orchestrator *pipeline.Orchestrator
	gallery      *facematch.Gallery
	logger       *zap.Logger
}

// New creates an ImageAnalyzer for a local Ollama server with default settings
func New() (*ImageAnalyzer, error) {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an ImageAnalyzer with custom configuration
func NewWithConfig(config Config) (*ImageAnalyzer, error) {
	vc, err := NewVisionClient(config.Backend, config.URL)
	if err != nil {
		return nil, err
	}
	return NewWithClient(vc, config), nil
}

// NewWithClient creates an ImageAnalyzer over an existing vision client
func NewWithClient(vc client.VisionClient, config Config) *ImageAnalyzer {
	if config.Encode == (processing.EncodeOptions{}) {
		config.Encode = processing.DefaultEncodeOptions()
	}

	detConfig := detection.Config{
		Model:      config.Model,
		Encode:     config.Encode,
		MinScore:   config.MinObjectScore,
		MaxResults: config.MaxObjects,
	}
	objects := detection.NewObjectDetectorWithConfig(vc, detConfig)
	detConfig.MaxResults = config.MaxFaces

	var scenes scene.Classifier = scene.NewFixedClassifier()
	if config.SceneModel != "" {
		scenes = scene.NewVisionClassifier(vc, config.SceneModel)
	}

	exprRng, fakeRng := seededRands(config.Seed)
	models := pipeline.Models{
		Objects:     objects,
		Faces:       detection.NewFaceDetectorWithConfig(vc, detConfig),
		Scenes:      scenes,
		Expressions: expression.NewRandomAnalyzer(exprRng),
		Deepfake:    deepfake.NewRandomAnalyzer(fakeRng),
	}

	ia := NewWithModels(models, config)
	ia.objects = objects
	return ia
}

// NewWithModels creates an ImageAnalyzer over caller-supplied models
func NewWithModels(models pipeline.Models, config Config) *ImageAnalyzer {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	matcher := facematch.NewWithConfig(config.Matcher)

	return &ImageAnalyzer{
		processor: processing.NewProcessor(),
		models:    models,
		orchestrator: pipeline.NewWithConfig(models, pipeline.Config{
			Logger:  config.Logger,
			Matcher: matcher,
		}),
		gallery: facematch.NewGallery(matcher),
		logger:  config.Logger,
	}
}

// NewVisionClient creates the vision client for backend; an empty url uses the backend default
func NewVisionClient(backend, url string) (client.VisionClient, error) {
	switch backend {
	case "ollama", "":
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		if url == "" {
			url = DefaultLlamaCppURL
		}
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", backend)
	}
}

func seededRands(seed int64) (*rand.Rand, *rand.Rand) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)), rand.New(rand.NewSource(seed + 1))
}

// UseFaceDetector replaces the face detector. It is not safe to call while analyses are running.
func (ia *ImageAnalyzer) UseFaceDetector(d detection.FaceDetector) {
	ia.models.Faces = d
	ia.orchestrator = pipeline.NewWithConfig(ia.models, pipeline.Config{
		Logger:  ia.logger,
		Matcher: ia.orchestrator.Matcher(),
	})
}

// UseLandmarks reads faces, with landmarks, from a face-mesh JSON file instead of the vision model
func (ia *ImageAnalyzer) UseLandmarks(path string) {
	ia.UseFaceDetector(detection.LandmarkFile{Path: path})
}

// Orchestrator returns the underlying pipeline
func (ia *ImageAnalyzer) Orchestrator() *pipeline.Orchestrator {
	return ia.orchestrator
}

// Gallery returns the gallery used by RecognizeFace
func (ia *ImageAnalyzer) Gallery() *facematch.Gallery {
	return ia.gallery
}

// Processor returns the image processor
func (ia *ImageAnalyzer) Processor() *processing.Processor {
	return ia.processor
}

// LoadImage loads an image from a file path or http(s) URL and rejects images too small to analyze
func (ia *ImageAnalyzer) LoadImage(source string) (image.Image, error) {
	img, err := ia.processor.LoadImageSmart(source)
	if err != nil {
		return nil, err
	}
	if err := ia.processor.ValidateImage(img); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return img, nil
}

// LoadImageFromReader loads an image from an io.Reader
func (ia *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	return ia.processor.LoadImageFromReader(reader)
}

// Enroll adds the first face of a face-mesh file to the gallery under name
func (ia *ImageAnalyzer) Enroll(name, landmarkPath string) (string, error) {
	f, err := os.Open(landmarkPath)
	if err != nil {
		return "", fmt.Errorf("failed to open landmarks: %w", err)
	}
	defer f.Close()

	faces, err := detection.ParseFaceMesh(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", landmarkPath, err)
	}
	if len(faces) == 0 {
		return "", fmt.Errorf("%s: no faces", landmarkPath)
	}
	if err := detection.RequireLandmarks(faces[:1]); err != nil {
		return "", fmt.Errorf("%s: %w", landmarkPath, err)
	}
	return ia.gallery.AddLandmarks(name, faces[0].Landmarks)
}

// Describe runs every model and composes the full description
func (ia *ImageAnalyzer) Describe(ctx context.Context, img image.Image) (*pipeline.Report, error) {
	return ia.orchestrator.Describe(ctx, img)
}

// DescribeImage returns the description text, or a fallback sentence if analysis failed
func (ia *ImageAnalyzer) DescribeImage(ctx context.Context, img image.Image) string {
	return ia.orchestrator.DescribeImage(ctx, img)
}

// Label lists the objects in the image
func (ia *ImageAnalyzer) Label(ctx context.Context, img image.Image) (*pipeline.Report, error) {
	return ia.orchestrator.Label(ctx, img)
}

// DetectFaces counts faces in the image
func (ia *ImageAnalyzer) DetectFaces(ctx context.Context, img image.Image) (*pipeline.Report, error) {
	return ia.orchestrator.DetectFaces(ctx, img)
}

// RecognizeFace matches each detected face against the gallery
func (ia *ImageAnalyzer) RecognizeFace(ctx context.Context, img image.Image) (*pipeline.Report, error) {
	return ia.orchestrator.Recognize(ctx, img, ia.gallery)
}

// UnderstandScene names the most likely setting
func (ia *ImageAnalyzer) UnderstandScene(ctx context.Context, img image.Image) (*pipeline.Report, error) {
	return ia.orchestrator.UnderstandScene(ctx, img)
}

// CheckDeepfake reports whether faces in the image look manipulated
func (ia *ImageAnalyzer) CheckDeepfake(ctx context.Context, img image.Image) (*pipeline.Report, error) {
	return ia.orchestrator.CheckDeepfake(ctx, img)
}

// Run dispatches on mode
func (ia *ImageAnalyzer) Run(ctx context.Context, mode types.Mode, img image.Image) (*pipeline.Report, error) {
	return ia.orchestrator.Run(ctx, mode, img, ia.gallery)
}

// Caption asks the vision model for a free-form one-sentence caption.
// Only analyzers built from a vision client can caption.
func (ia *ImageAnalyzer) Caption(ctx context.Context, img image.Image) (string, error) {
	if ia.objects == nil {
		return "", fmt.Errorf("captioning needs a vision client")
	}
	return ia.objects.Caption(ctx, img)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
