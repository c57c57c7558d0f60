// Package facematch turns face-mesh landmarks into fixed-length geometric descriptors and
// scores how alike two faces are.
//
// Descriptors are plain float slices built from a fixed list of landmark indices spanning the
// eyes, nose, mouth, jaw and eyebrows of a MediaPipe-style face mesh (468+ points). Every
// selected index contributes one (x/scale, y/scale, z) triple, so descriptor length is constant
// regardless of how complete the input is. Missing landmarks are emitted as (0,0,0) placeholders.
//
// Similarity is 1 minus the Euclidean distance normalised against sqrt(len*4), the distance two
// descriptors would have if every coordinate sat at opposite ends of a ±2 range. Scores are
// clamped to [0,1].
package facematch

import (
	"errors"
	"math"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

// DefaultThreshold is the similarity at or above which two faces are considered the same person
const DefaultThreshold = 0.6

// DefaultScale divides x and y pixel coordinates before they enter a descriptor
const DefaultScale = 500.0

// KeyPoints are the face-mesh indices used to build a descriptor
var KeyPoints = []int{
	// eyes
	33, 133, 159, 386,
	// nose
	2, 98, 327,
	// mouth corners, top and bottom lip
	57, 287, 14, 13,
	// jaw
	172, 397,
	// eyebrows
	70, 300,
}

// DescriptorLen is the number of floats in every descriptor
var DescriptorLen = 3 * len(KeyPoints)

// ErrDescriptorLength is returned by Compare when descriptors were not built from the same key point list
var ErrDescriptorLength = errors.New("facematch: descriptor length mismatch")

// Descriptor is a face geometry vector
type Descriptor []float64

// Matcher builds and compares descriptors
type Matcher struct {
	config Config
}

// Config holds matcher parameters
type Config struct {
	Scale float64
	// Threshold is the minimum similarity for a match; nil uses DefaultThreshold. 0 matches every face.
	Threshold *float64
}

// Threshold returns a pointer for Config.Threshold
func Threshold(v float64) *float64 {
	return &v
}

// New creates a Matcher with the default scale and threshold
func New() *Matcher {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a Matcher with custom configuration. A non-positive scale or a nil
// threshold falls back to the default.
func NewWithConfig(config Config) *Matcher {
	if config.Scale <= 0 {
		config.Scale = DefaultScale
	}
	threshold := DefaultThreshold
	if config.Threshold != nil {
		threshold = *config.Threshold
	}
	config.Threshold = &threshold
	return &Matcher{config: config}
}

// Threshold returns the configured match threshold
func (m *Matcher) Threshold() float64 {
	return *m.config.Threshold
}

// Descriptor builds the descriptor for a landmark set
func (m *Matcher) Descriptor(landmarks []types.Point) Descriptor {
	d := make(Descriptor, 0, DescriptorLen)
	for _, idx := range KeyPoints {
		if idx >= len(landmarks) {
			d = append(d, 0, 0, 0)
			continue
		}
		p := landmarks[idx]
		d = append(d, p.X/m.config.Scale, p.Y/m.config.Scale, p.Z)
	}
	return d
}

// Similarity scores two descriptors in [0,1]. Descriptors of different length score 0.
func (m *Matcher) Similarity(a, b Descriptor) float64 {
	s, err := m.Compare(a, b)
	if err != nil {
		return 0
	}
	return s
}

// Compare is Similarity with the length mismatch reported as ErrDescriptorLength
func (m *Matcher) Compare(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDescriptorLength
	}
	if len(a) == 0 {
		return 1, nil
	}

	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	distance := math.Sqrt(sum)
	maxDistance := math.Sqrt(float64(len(a)) * 4)

	return types.Clamp01(1 - distance/maxDistance), nil
}

// FindMatchingFace scans the gallery for the most similar descriptor using the configured threshold
func (m *Matcher) FindMatchingFace(descriptor Descriptor, gallery []Descriptor) types.FaceMatchResult {
	return m.FindMatchingFaceThreshold(descriptor, gallery, m.Threshold())
}

// FindMatchingFaceThreshold scans the gallery linearly. Ties resolve to the earliest entry, so a
// non-empty gallery always reports an index, even when every score is 0.
func (m *Matcher) FindMatchingFaceThreshold(descriptor Descriptor, gallery []Descriptor, threshold float64) types.FaceMatchResult {
	if len(gallery) == 0 {
		return types.NoMatch
	}

	bestIndex := -1
	bestScore := 0.0
	for i, known := range gallery {
		score := m.Similarity(descriptor, known)
		if bestIndex == -1 || score > bestScore {
			bestIndex = i
			bestScore = score
		}
	}

	return types.FaceMatchResult{
		MatchedFaceIndex: bestIndex,
		Similarity:       bestScore,
		IsMatch:          bestScore >= threshold,
	}
}

var defaultMatcher = New()

// FacialDescriptor builds a descriptor with the default scale
func FacialDescriptor(landmarks []types.Point) Descriptor {
	return defaultMatcher.Descriptor(landmarks)
}

// Similarity scores two descriptors with the default matcher
func Similarity(a, b Descriptor) float64 {
	return defaultMatcher.Similarity(a, b)
}

// FindMatchingFace searches gallery with an explicit threshold
func FindMatchingFace(descriptor Descriptor, gallery []Descriptor, threshold float64) types.FaceMatchResult {
	return defaultMatcher.FindMatchingFaceThreshold(descriptor, gallery, threshold)
}
