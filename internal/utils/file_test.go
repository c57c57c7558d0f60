package utils

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func touch(t *testing.T, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIsImageFile(t *testing.T) {
	cases := map[string]bool{
		"a.jpg": true, "b.JPEG": true, "c.webp": true, "d.tif": true,
		"e.txt": false, "f": false, "g.landmarks.json": false,
	}
	for name, want := range cases {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v, expected %v", name, got, want)
		}
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "one.jpg"))
	touch(t, filepath.Join(dir, "nested", "two.png"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, ".cache", "three.jpg"))

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	sort.Strings(files)
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %v", files)
	}
	if filepath.Base(files[0]) != "two.png" && filepath.Base(files[1]) != "two.png" {
		t.Errorf("Expected nested image to be listed, got %v", files)
	}

	single, err := ListImageFiles(filepath.Join(dir, "one.jpg"))
	if err != nil || len(single) != 1 {
		t.Errorf("Expected single file, got %v, %v", single, err)
	}
	if _, err := ListImageFiles(filepath.Join(dir, "notes.txt")); err == nil {
		t.Error("Expected error for a non-image file")
	}
	if _, err := ListImageFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for a missing path")
	}
}

func TestLandmarkFileFor(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "ada.jpg")

	path, ok := LandmarkFileFor(img)
	if ok {
		t.Error("Expected no sidecar yet")
	}
	if path != filepath.Join(dir, "ada.landmarks.json") {
		t.Errorf("Unexpected sidecar path %s", path)
	}

	touch(t, path)
	if _, ok := LandmarkFileFor(img); !ok {
		t.Error("Expected sidecar to be found")
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	got := GenerateOutputFilename("/in/photo.png", "/out", "face_", "_1", "jpg")
	if got != filepath.Join("/out", "face_photo_1.jpg") {
		t.Errorf("Unexpected filename %s", got)
	}
	if got := GenerateOutputFilename("photo.webp", "out", "", "", ""); got != filepath.Join("out", "photo.webp") {
		t.Errorf("Expected input format to be kept, got %s", got)
	}
}

func TestNameFromFilename(t *testing.T) {
	if got := NameFromFilename("/g/ada_lovelace.landmarks.json"); got != "ada lovelace" {
		t.Errorf("Expected 'ada lovelace', got %q", got)
	}
	if got := NameFromFilename("grace-hopper.json"); got != "grace hopper" {
		t.Errorf("Expected 'grace hopper', got %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename(" a/b:c?. "); got != "a_b_c_" {
		t.Errorf("Unexpected sanitized name %q", got)
	}
}
