package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sightanalyzer "github.com/menta2k/sight-analyzer"
	"github.com/menta2k/sight-analyzer/internal/results"
	"github.com/menta2k/sight-analyzer/internal/utils"
	"github.com/menta2k/sight-analyzer/pkg/pipeline"
	"github.com/menta2k/sight-analyzer/pkg/processing"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

// analyzeOptions are the flags of the single-image commands
type analyzeOptions struct {
	Landmarks string
	Gallery   string
	Overlay   string
	Crops     string
	Caption   bool
	JSON      bool
	Save      bool
}

// analysisCommands maps each single-image command onto its mode
var analysisCommands = []struct {
	use   string
	alias string
	short string
	mode  types.Mode
}{
	{"describe", "d", "Describe everything in an image", types.ModeDescription},
	{"label", "l", "List the objects in an image", types.ModeLabeling},
	{"faces", "f", "Count the faces in an image", types.ModeDetection},
	{"recognize", "r", "Match faces against a gallery of known people", types.ModeRecognition},
	{"scene", "s", "Name the setting of an image", types.ModeScene},
	{"deepfake", "x", "Check faces for signs of manipulation", types.ModeDeepfake},
}

func init() {
	for _, c := range analysisCommands {
		rootCmd.AddCommand(newAnalysisCommand(c.use, c.alias, c.short, c.mode))
	}
}

func newAnalysisCommand(use, alias, short string, mode types.Mode) *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:     use + " <image path or URL>",
		Aliases: []string{alias},
		Short:   short,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd.Context(), mode, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Landmarks, "landmarks", "", "face-mesh JSON for the image (default: <image>"+utils.LandmarkSuffix+" if present)")
	cmd.Flags().StringVarP(&opts.Overlay, "overlay", "o", "", "write an annotated copy of the image to this path")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the full report as JSON")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "save the description to the results store")
	switch mode {
	case types.ModeRecognition:
		cmd.Flags().StringVarP(&opts.Gallery, "gallery", "g", "", "directory of <name>"+utils.LandmarkSuffix+" files")
		cmd.MarkFlagRequired("gallery")
	case types.ModeDetection:
		cmd.Flags().StringVar(&opts.Crops, "crops", "", "write each detected face to this directory")
	case types.ModeDescription:
		cmd.Flags().BoolVar(&opts.Caption, "caption", false, "also ask the model for a free-form caption")
	}
	return cmd
}

func runAnalysis(ctx context.Context, mode types.Mode, source string, opts analyzeOptions) error {
	sa, err := newAnalyzer()
	if err != nil {
		return err
	}

	img, err := sa.LoadImage(source)
	if err != nil {
		return err
	}
	useLandmarks(sa, source, opts.Landmarks)

	if opts.Gallery != "" {
		n, err := loadGallery(sa, opts.Gallery)
		if err != nil {
			return err
		}
		logger.Info("gallery loaded", zap.Int("faces", n), zap.String("dir", opts.Gallery))
	}

	report, err := sa.Run(ctx, mode, img)
	if err != nil {
		return fmt.Errorf("%s failed: %w", mode, err)
	}
	logger.Debug("analysis complete", zap.String("mode", string(mode)), zap.Duration("duration", report.Duration))

	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Println(report.Description)
	}

	if opts.Caption {
		caption, err := sa.Caption(ctx, img)
		if err != nil {
			logger.Warn("caption failed", zap.Error(err))
		} else {
			fmt.Println("Caption:", caption)
		}
	}

	if opts.Overlay != "" {
		if err := writeOverlay(sa.Processor(), img, report, opts.Overlay); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", opts.Overlay)
	}

	if opts.Crops != "" {
		if err := writeFaceCrops(sa.Processor(), img, report.Faces, source, opts.Crops); err != nil {
			return err
		}
	}

	if opts.Save {
		id, err := saveReport(ctx, report, source)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved result %s\n", id)
	}
	return nil
}

// useLandmarks switches face detection to a face-mesh file when one is given or sits next to the image
func useLandmarks(sa *sightanalyzer.ImageAnalyzer, source, explicit string) {
	path := explicit
	if path == "" {
		if sidecar, ok := utils.LandmarkFileFor(source); ok {
			path = sidecar
		}
	}
	if path != "" {
		logger.Debug("using face-mesh landmarks", zap.String("path", path))
		sa.UseLandmarks(path)
	}
}

// loadGallery enrolls every <name>.landmarks.json file in dir
func loadGallery(sa *sightanalyzer.ImageAnalyzer, dir string) (int, error) {
	if !utils.DirExists(dir) {
		return 0, fmt.Errorf("gallery %s is not a directory", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*"+utils.LandmarkSuffix))
	if err != nil {
		return 0, err
	}
	for _, file := range files {
		name := utils.NameFromFilename(file)
		if _, err := sa.Enroll(name, file); err != nil {
			return 0, fmt.Errorf("failed to enroll %s: %w", name, err)
		}
	}
	if len(files) == 0 {
		logger.Warn("gallery is empty", zap.String("dir", dir))
	}
	return len(files), nil
}

func writeOverlay(p *processing.Processor, img image.Image, report *pipeline.Report, path string) error {
	out := img
	if len(report.Objects) > 0 {
		out = p.DrawObjectDetection(out, report.Objects)
	}
	if len(report.Faces) > 0 {
		out = p.DrawFaceDetection(out, report.Faces, processing.DefaultFaceOverlayOptions())
	}

	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	format := utils.GetFileExtension(path)
	if format == "" {
		format = "png"
	}
	if err := p.SaveImage(out, path, format, 92, false); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

func writeFaceCrops(p *processing.Processor, img image.Image, faces []types.FaceDetectionResult, source, dir string) error {
	if err := utils.EnsureDir(dir); err != nil {
		return err
	}
	base := utils.SanitizeFilename(strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)))
	for i, face := range faces {
		box := face.BoundingBox.Box()
		crop, err := p.CropRegion(img, box.X, box.Y, box.W, box.H, 0.2)
		if err != nil {
			logger.Warn("skipping face crop", zap.Int("face", i+1), zap.Error(err))
			continue
		}
		path := utils.GenerateOutputFilename(base+".jpg", dir, "face_", fmt.Sprintf("_%d", i+1), "jpg")
		if err := p.SaveImage(crop, path, "jpg", 90, false); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	}
	return nil
}

func saveReport(ctx context.Context, report *pipeline.Report, source string) (string, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return "", err
	}
	if cfg.Storage.Backend != "redis" {
		logger.Warn("memory storage only keeps results until the process exits")
	}
	defer store.Close()
	return store.Save(ctx, results.FromReport(report, source))
}
