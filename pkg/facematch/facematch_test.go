package facematch

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

// createMesh creates a synthetic 468-point face mesh shifted by offset pixels
func createMesh(offset float64) []types.Point {
	mesh := make([]types.Point, 468)
	for i := range mesh {
		mesh[i] = types.Point{
			X: 100 + float64(i%20)*5 + offset,
			Y: 120 + float64(i/20)*4 + offset,
			Z: float64(i%7) * 0.01,
		}
	}
	return mesh
}

func TestDescriptorLength(t *testing.T) {
	m := New()

	d := m.Descriptor(createMesh(0))
	if len(d) != DescriptorLen {
		t.Errorf("Expected descriptor length %d, got %d", DescriptorLen, len(d))
	}
	if DescriptorLen != 45 {
		t.Errorf("Expected 15 key points (45 floats), got %d floats", DescriptorLen)
	}

	// Incomplete meshes still produce full-length descriptors
	short := m.Descriptor(createMesh(0)[:100])
	if len(short) != DescriptorLen {
		t.Errorf("Expected short descriptor length %d, got %d", DescriptorLen, len(short))
	}
}

func TestDescriptorNormalisation(t *testing.T) {
	m := New()
	mesh := createMesh(0)
	d := m.Descriptor(mesh)

	// First key point is landmark 33
	want := mesh[33]
	if math.Abs(d[0]-want.X/500) > 1e-12 || math.Abs(d[1]-want.Y/500) > 1e-12 || d[2] != want.Z {
		t.Errorf("Unexpected first triple: %v %v %v", d[0], d[1], d[2])
	}
}

func TestDescriptorMissingLandmarks(t *testing.T) {
	m := New()
	// 300 points: indices 327, 386, 397 are absent
	d := m.Descriptor(createMesh(0)[:300])

	for i, idx := range KeyPoints {
		triple := d[i*3 : i*3+3]
		zero := triple[0] == 0 && triple[1] == 0 && triple[2] == 0
		if idx >= 300 && !zero {
			t.Errorf("Expected zero placeholder for missing landmark %d, got %v", idx, triple)
		}
		if idx < 300 && zero {
			t.Errorf("Expected real values for landmark %d", idx)
		}
	}
}

func TestSimilarityIdentical(t *testing.T) {
	m := New()
	d := m.Descriptor(createMesh(3))

	if s := m.Similarity(d, d); s != 1 {
		t.Errorf("Expected similarity 1 for identical descriptors, got %f", s)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	m := New()
	a := m.Descriptor(createMesh(0))
	b := m.Descriptor(createMesh(25))

	if m.Similarity(a, b) != m.Similarity(b, a) {
		t.Errorf("Similarity should be symmetric: %f vs %f", m.Similarity(a, b), m.Similarity(b, a))
	}
	if s := m.Similarity(a, b); s <= 0 || s >= 1 {
		t.Errorf("Expected similarity strictly between 0 and 1, got %f", s)
	}
}

func TestSimilarityLengthMismatch(t *testing.T) {
	m := New()
	a := Descriptor{0.1, 0.2, 0.3}
	b := Descriptor{0.1, 0.2}

	if s := m.Similarity(a, b); s != 0 {
		t.Errorf("Expected 0 for mismatched lengths, got %f", s)
	}
	if _, err := m.Compare(a, b); !errors.Is(err, ErrDescriptorLength) {
		t.Errorf("Expected ErrDescriptorLength, got %v", err)
	}
}

func TestSimilarityClampsToZero(t *testing.T) {
	m := New()
	a := Descriptor{0, 0, 0}
	b := Descriptor{100, 100, 100}

	if s := m.Similarity(a, b); s != 0 {
		t.Errorf("Expected distant descriptors to clamp to 0, got %f", s)
	}
}

func TestFindMatchingFaceEmptyGallery(t *testing.T) {
	m := New()
	d := m.Descriptor(createMesh(0))

	for _, threshold := range []float64{0, 0.6, 1} {
		res := m.FindMatchingFaceThreshold(d, nil, threshold)
		if res != types.NoMatch {
			t.Errorf("Expected no match for empty gallery at threshold %f, got %+v", threshold, res)
		}
	}
}

func TestFindMatchingFaceBest(t *testing.T) {
	m := New()
	probe := m.Descriptor(createMesh(10))
	gallery := []Descriptor{
		m.Descriptor(createMesh(200)),
		m.Descriptor(createMesh(11)),
		m.Descriptor(createMesh(60)),
	}

	res := m.FindMatchingFace(probe, gallery)
	if res.MatchedFaceIndex != 1 {
		t.Errorf("Expected best match index 1, got %d", res.MatchedFaceIndex)
	}
	if !res.IsMatch {
		t.Errorf("Expected a match, similarity %f", res.Similarity)
	}
}

func TestFindMatchingFaceTiesPickFirst(t *testing.T) {
	m := New()
	probe := m.Descriptor(createMesh(0))
	same := m.Descriptor(createMesh(5))
	gallery := []Descriptor{m.Descriptor(createMesh(90)), same, same}

	res := m.FindMatchingFace(probe, gallery)
	if res.MatchedFaceIndex != 1 {
		t.Errorf("Expected tie to resolve to index 1, got %d", res.MatchedFaceIndex)
	}
}

func TestFindMatchingFaceBelowThreshold(t *testing.T) {
	m := New()
	probe := m.Descriptor(createMesh(0))
	gallery := []Descriptor{m.Descriptor(createMesh(40))}

	res := m.FindMatchingFaceThreshold(probe, gallery, 0.9999)
	if res.IsMatch {
		t.Errorf("Expected no match above threshold, similarity %f", res.Similarity)
	}
	if res.MatchedFaceIndex != 0 {
		t.Errorf("Best index should still be reported, got %d", res.MatchedFaceIndex)
	}
}

func TestNewWithConfigDefaults(t *testing.T) {
	m := NewWithConfig(Config{})
	if m.config.Scale != DefaultScale {
		t.Errorf("Expected default scale, got %f", m.config.Scale)
	}
	if m.Threshold() != DefaultThreshold {
		t.Errorf("Expected default threshold, got %f", m.Threshold())
	}
}

func TestNewWithConfigZeroThreshold(t *testing.T) {
	m := NewWithConfig(Config{Threshold: Threshold(0)})
	if m.Threshold() != 0 {
		t.Fatalf("Expected threshold 0 to be kept, got %f", m.Threshold())
	}

	res := m.FindMatchingFace(Descriptor{0, 0, 0}, []Descriptor{{100, 100, 100}})
	if !res.IsMatch {
		t.Errorf("Expected every face to match at threshold 0, got %+v", res)
	}
}

func TestFindMatchingFaceAllZeroScores(t *testing.T) {
	probe := Descriptor{100, 100, 100}
	gallery := []Descriptor{{-100, -100, -100}, {-100, -100, -100}}

	res := FindMatchingFace(probe, gallery, DefaultThreshold)
	if res.MatchedFaceIndex != 0 {
		t.Errorf("Expected the first entry to be reported, got %d", res.MatchedFaceIndex)
	}
	if res.Similarity != 0 || res.IsMatch {
		t.Errorf("Expected similarity 0 and no match, got %+v", res)
	}
}

func TestSimilarityNaN(t *testing.T) {
	if s := Similarity(Descriptor{math.NaN()}, Descriptor{0}); s != 0 {
		t.Errorf("Expected NaN coordinates to score 0, got %f", s)
	}
}

func BenchmarkFindMatchingFace(b *testing.B) {
	m := New()
	probe := m.Descriptor(createMesh(0))
	gallery := make([]Descriptor, 500)
	for i := range gallery {
		gallery[i] = m.Descriptor(createMesh(float64(i)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.FindMatchingFace(probe, gallery)
	}
}
