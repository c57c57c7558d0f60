package types

import (
	"fmt"
	"math"
	"strings"
)

// Box represents an axis-aligned bounding box in pixel coordinates (x, y, width, height)
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the center point of the box
func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns the area of the box
func (b Box) Area() float64 {
	return b.W * b.H
}

// Point is a single landmark. Z is zero when the detector does not estimate depth.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// FaceBox describes a face bounding box by its corners plus its dimensions
type FaceBox struct {
	TopLeft     [2]float64 `json:"topLeft"`
	BottomRight [2]float64 `json:"bottomRight"`
	Width       float64    `json:"width"`
	Height      float64    `json:"height"`
}

// NewFaceBox builds a FaceBox from min/max corners
func NewFaceBox(xMin, yMin, xMax, yMax float64) FaceBox {
	return FaceBox{
		TopLeft:     [2]float64{xMin, yMin},
		BottomRight: [2]float64{xMax, yMax},
		Width:       xMax - xMin,
		Height:      yMax - yMin,
	}
}

// Box converts the face box to an x/y/w/h box
func (f FaceBox) Box() Box {
	return Box{X: f.TopLeft[0], Y: f.TopLeft[1], W: f.Width, H: f.Height}
}

// DetectedObject is one labeled object produced by an object detector
type DetectedObject struct {
	BoundingBox Box     `json:"bbox"`
	ClassName   string  `json:"class"`
	Score       float64 `json:"score"`
}

// FaceDetectionResult is one detected face. Index position within a result slice identifies the
// face for a single analysis; ID is a stable identifier assigned at detection time.
type FaceDetectionResult struct {
	ID          string  `json:"id,omitempty"`
	Landmarks   []Point `json:"landmarks"`
	BoundingBox FaceBox `json:"boundingBox"`
	FaceScore   float64 `json:"faceScore"`
}

// SceneAnalysisResult is one ranked scene label
type SceneAnalysisResult struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Expression is a facial expression label
type Expression string

const (
	Neutral   Expression = "neutral"
	Happy     Expression = "happy"
	Sad       Expression = "sad"
	Angry     Expression = "angry"
	Surprised Expression = "surprised"
	Fearful   Expression = "fearful"
	Disgusted Expression = "disgusted"
)

// Expressions lists every supported expression in canonical order
func Expressions() []Expression {
	return []Expression{Neutral, Happy, Sad, Angry, Surprised, Fearful, Disgusted}
}

// Valid reports whether e is one of the supported expressions
func (e Expression) Valid() bool {
	for _, known := range Expressions() {
		if e == known {
			return true
		}
	}
	return false
}

// FacialExpressionResult references a face by its index in the FaceDetectionResult slice it was derived from
type FacialExpressionResult struct {
	FaceIndex  int        `json:"faceIndex"`
	FaceID     string     `json:"faceId,omitempty"`
	Expression Expression `json:"expression"`
	Confidence float64    `json:"confidence"`
}

// DeepfakeAnalysisResult holds the manipulation verdict. ManipulationDetails is only populated when IsDeepfake is true.
type DeepfakeAnalysisResult struct {
	IsDeepfake          bool     `json:"isDeepfake"`
	Confidence          float64  `json:"confidence"`
	ManipulationDetails []string `json:"manipulationDetails"`
}

// FaceMatchResult is the outcome of a gallery search. MatchedFaceIndex is -1 when nothing was compared.
type FaceMatchResult struct {
	MatchedFaceIndex int     `json:"matchedFaceIndex"`
	Similarity       float64 `json:"similarity"`
	IsMatch          bool    `json:"isMatch"`
}

// NoMatch is the result for an empty gallery
var NoMatch = FaceMatchResult{MatchedFaceIndex: -1, Similarity: 0, IsMatch: false}

// Mode selects which analysis an image is routed through
type Mode string

const (
	ModeLabeling    Mode = "labeling"
	ModeDetection   Mode = "detection"
	ModeRecognition Mode = "recognition"
	ModeScene       Mode = "scene"
	ModeDescription Mode = "description"
	ModeDeepfake    Mode = "deepfake"
)

// Modes returns all analysis modes
func Modes() []Mode {
	return []Mode{ModeLabeling, ModeDetection, ModeRecognition, ModeScene, ModeDescription, ModeDeepfake}
}

// ParseMode parses a mode name case-insensitively
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown analysis mode: %q", s)
}

// Clamp01 restricts v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
