package client

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSanitizeJSONFences(t *testing.T) {
	raw := "```json\n{\"scenes\": [{\"category\": \"kitchen\", \"confidence\": 0.9},]}\n```"
	out := SanitizeJSON(raw)

	var v map[string]any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("Sanitized output should be valid JSON: %v (%s)", err, out)
	}
}

func TestSanitizeJSONComments(t *testing.T) {
	raw := `Sure! Here you go:
{
  /* objects */
  "objects": [
    {"class": "cup", "score": 0.8}, // mug
  ]
}
Hope that helps.`
	out := SanitizeJSON(raw)

	var v struct {
		Objects []struct {
			Class string  `json:"class"`
			Score float64 `json:"score"`
		} `json:"objects"`
	}
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("Sanitized output should be valid JSON: %v (%s)", err, out)
	}
	if len(v.Objects) != 1 || v.Objects[0].Class != "cup" {
		t.Errorf("Unexpected objects: %+v", v.Objects)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	if _, err := ExtractJSON("I can't see anything here."); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Expected ErrNoJSON, got %v", err)
	}
}
