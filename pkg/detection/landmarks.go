package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

// ErrNoLandmarks is returned when recognition needs landmarks but the face detector did not supply them
var ErrNoLandmarks = errors.New("detection: face has no landmarks")

// meshFace mirrors one prediction of a MediaPipe face-mesh estimator
type meshFace struct {
	Keypoints []types.Point `json:"keypoints"`
	Box       *struct {
		XMin   float64 `json:"xMin"`
		YMin   float64 `json:"yMin"`
		XMax   float64 `json:"xMax"`
		YMax   float64 `json:"yMax"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"box"`
	Score float64 `json:"score"`
}

// ParseFaceMesh reads face-mesh predictions ([{"keypoints":[...],"box":{...},"score":..}]).
// Missing boxes are derived from the keypoint extent; a missing score is 0.
func ParseFaceMesh(r io.Reader) ([]types.FaceDetectionResult, error) {
	var predictions []meshFace
	if err := json.NewDecoder(r).Decode(&predictions); err != nil {
		return nil, fmt.Errorf("failed to parse face mesh: %w", err)
	}

	faces := make([]types.FaceDetectionResult, 0, len(predictions))
	for _, p := range predictions {
		face := types.FaceDetectionResult{
			Landmarks: p.Keypoints,
			FaceScore: clamp(p.Score, 0, 1),
		}
		switch {
		case p.Box != nil:
			face.BoundingBox = types.FaceBox{
				TopLeft:     [2]float64{p.Box.XMin, p.Box.YMin},
				BottomRight: [2]float64{p.Box.XMax, p.Box.YMax},
				Width:       p.Box.Width,
				Height:      p.Box.Height,
			}
			if face.BoundingBox.Width == 0 && face.BoundingBox.Height == 0 {
				face.BoundingBox = types.NewFaceBox(p.Box.XMin, p.Box.YMin, p.Box.XMax, p.Box.YMax)
			}
		case len(p.Keypoints) > 0:
			face.BoundingBox = extent(p.Keypoints)
		}
		faces = append(faces, face)
	}
	return faces, nil
}

// LandmarkFile is a FaceDetector backed by a face-mesh JSON file produced by an external landmark model.
// The image argument is ignored; the file must describe the same image.
type LandmarkFile struct {
	Path string
}

// DetectFaces reads and parses the file on every call
func (l LandmarkFile) DetectFaces(ctx context.Context, _ image.Image) ([]types.FaceDetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open landmark file: %w", err)
	}
	defer f.Close()
	return ParseFaceMesh(f)
}

// RequireLandmarks returns ErrNoLandmarks if any face lacks landmarks
func RequireLandmarks(faces []types.FaceDetectionResult) error {
	for i, f := range faces {
		if len(f.Landmarks) == 0 {
			return fmt.Errorf("face %d: %w", i, ErrNoLandmarks)
		}
	}
	return nil
}

func extent(points []types.Point) types.FaceBox {
	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		xMin = math.Min(xMin, p.X)
		yMin = math.Min(yMin, p.Y)
		xMax = math.Max(xMax, p.X)
		yMax = math.Max(yMax, p.Y)
	}
	return types.NewFaceBox(xMin, yMin, xMax, yMax)
}
