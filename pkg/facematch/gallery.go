package facematch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

// Entry is a named known face
type Entry struct {
	ID         string
	Name       string
	Descriptor Descriptor
}

// Gallery is an in-memory set of known faces. It is safe for concurrent use.
type Gallery struct {
	mu      sync.RWMutex
	matcher *Matcher
	entries []Entry
}

// Match pairs a gallery search result with the matched entry, if any
type Match struct {
	types.FaceMatchResult
	Entry *Entry
}

// NewGallery creates an empty gallery that compares with matcher (nil uses the defaults)
func NewGallery(matcher *Matcher) *Gallery {
	if matcher == nil {
		matcher = New()
	}
	return &Gallery{matcher: matcher}
}

// Add stores a descriptor under name and returns the generated entry ID
func (g *Gallery) Add(name string, d Descriptor) (string, error) {
	if len(d) != DescriptorLen {
		return "", fmt.Errorf("add %q: %w", name, ErrDescriptorLength)
	}

	entry := Entry{
		ID:         uuid.New().String(),
		Name:       name,
		Descriptor: append(Descriptor(nil), d...),
	}

	g.mu.Lock()
	g.entries = append(g.entries, entry)
	g.mu.Unlock()

	return entry.ID, nil
}

// AddLandmarks builds the descriptor for landmarks and stores it under name
func (g *Gallery) AddLandmarks(name string, landmarks []types.Point) (string, error) {
	return g.Add(name, g.matcher.Descriptor(landmarks))
}

// Remove deletes the entry with the given ID and reports whether it existed
func (g *Gallery) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, e := range g.entries {
		if e.ID == id {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of known faces
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Entries returns a copy of the stored entries in insertion order
func (g *Gallery) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Entry(nil), g.entries...)
}

// Descriptors returns the stored descriptors in insertion order
func (g *Gallery) Descriptors() []Descriptor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Descriptor, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.Descriptor
	}
	return out
}

// Match finds the closest known face to d
func (g *Gallery) Match(d Descriptor) Match {
	g.mu.RLock()
	defer g.mu.RUnlock()

	known := make([]Descriptor, len(g.entries))
	for i, e := range g.entries {
		known[i] = e.Descriptor
	}

	res := g.matcher.FindMatchingFace(d, known)
	m := Match{FaceMatchResult: res}
	if res.IsMatch && res.MatchedFaceIndex >= 0 {
		entry := g.entries[res.MatchedFaceIndex]
		m.Entry = &entry
	}
	return m
}

// MatchLandmarks is Match for a raw landmark set
func (g *Gallery) MatchLandmarks(landmarks []types.Point) Match {
	return g.Match(g.matcher.Descriptor(landmarks))
}
