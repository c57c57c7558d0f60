// Package describe composes perception results into one natural-language paragraph.
//
// Clauses are emitted in a fixed order: scene, people (with expressions), manipulation
// verdict, objects. Any missing input simply drops its clause; if nothing is left the
// fallback sentence is returned.
package describe

import (
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

// Fallback is returned when no clause could be produced
const Fallback = "This image doesn't contain any clearly identifiable objects or scenes."

// ErrorDescription is what callers show when the analysis itself failed
const ErrorDescription = "Unable to generate image description due to an error."

// NoScene is the scene-only description for an empty ranking
const NoScene = "No scene detected in the image."

const (
	sceneThreshold     = 0.5
	authenticThreshold = 0.8
	sceneHighThreshold = 0.8
)

// Input gathers everything the composer can use. Nil or empty fields are skipped.
type Input struct {
	Objects     []types.DetectedObject
	Scenes      []types.SceneAnalysisResult
	Faces       []types.FaceDetectionResult
	Expressions []types.FacialExpressionResult
	Deepfake    *types.DeepfakeAnalysisResult
}

// Compose builds the description for the given perception results
func Compose(objects []types.DetectedObject, scenes []types.SceneAnalysisResult, faces []types.FaceDetectionResult,
	expressions []types.FacialExpressionResult, deepfake *types.DeepfakeAnalysisResult) string {
	return ComposeInput(Input{
		Objects:     objects,
		Scenes:      scenes,
		Faces:       faces,
		Expressions: expressions,
		Deepfake:    deepfake,
	})
}

// ComposeInput is Compose over an Input value
func ComposeInput(in Input) string {
	var sentences []string

	if s := sceneClause(in.Scenes); s != "" {
		sentences = append(sentences, s)
	}

	if len(in.Faces) > 0 {
		sentences = append(sentences, peopleClauses(len(in.Faces), in.Expressions)...)
		sentences = append(sentences, deepfakeClause(in.Deepfake)...)
	}

	if s := objectsClause(in.Objects); s != "" {
		sentences = append(sentences, s)
	}

	if len(sentences) == 0 {
		return Fallback
	}
	return strings.Join(sentences, " ")
}

// SceneSentence describes a scene ranking on its own, hedging by the top confidence
func SceneSentence(scenes []types.SceneAnalysisResult) string {
	if len(scenes) == 0 {
		return NoScene
	}

	top := scenes[0]
	category := FormatCategory(top.Category)
	switch {
	case top.Confidence > sceneHighThreshold:
		return fmt.Sprintf("This image shows a %s with high confidence.", category)
	case top.Confidence > sceneThreshold:
		return fmt.Sprintf("This appears to be a %s, but I'm not entirely certain.", category)
	default:
		return fmt.Sprintf("This might be a %s, but there's significant uncertainty.", category)
	}
}

// FormatCategory turns a scene label like living_room into display text
func FormatCategory(category string) string {
	return strings.ReplaceAll(category, "_", " ")
}

// Percent rounds a [0,1] confidence to the nearest whole percent
func Percent(v float64) int {
	return int(math.Floor(v*100 + 0.5))
}

func sceneClause(scenes []types.SceneAnalysisResult) string {
	if len(scenes) == 0 || scenes[0].Confidence <= sceneThreshold {
		return ""
	}
	return fmt.Sprintf("This image shows a %s.", FormatCategory(scenes[0].Category))
}

func peopleClauses(faceCount int, expressions []types.FacialExpressionResult) []string {
	if faceCount == 1 {
		s := "There is one person in the image"
		if len(expressions) > 0 {
			s += fmt.Sprintf(" who appears to be %s", expressions[0].Expression)
		}
		return []string{s + "."}
	}

	out := []string{fmt.Sprintf("There are %d people in the image.", faceCount)}
	if len(expressions) == 0 {
		return out
	}

	tally := newTally()
	for _, e := range expressions {
		tally.add(string(e.Expression))
	}

	parts := make([]string, 0, len(tally.keys))
	for _, expr := range tally.keys {
		if n := tally.counts[expr]; n == 1 {
			parts = append(parts, fmt.Sprintf("one person appears %s", expr))
		} else {
			parts = append(parts, fmt.Sprintf("%d people appear %s", n, expr))
		}
	}
	return append(out, JoinList(parts)+".")
}

func deepfakeClause(result *types.DeepfakeAnalysisResult) []string {
	if result == nil {
		return nil
	}

	if result.IsDeepfake {
		out := []string{fmt.Sprintf(
			"Caution: This image appears to be artificially generated or manipulated (confidence: %d%%).",
			Percent(result.Confidence))}
		if len(result.ManipulationDetails) > 0 {
			out = append(out, fmt.Sprintf("Detected manipulations include %s.",
				strings.Join(result.ManipulationDetails, ", ")))
		}
		return out
	}

	if result.Confidence > authenticThreshold {
		return []string{"This appears to be an authentic image with no signs of manipulation."}
	}
	return nil
}

func objectsClause(objects []types.DetectedObject) string {
	if len(objects) == 0 {
		return ""
	}

	tally := newTally()
	for _, o := range objects {
		tally.add(o.ClassName)
	}

	parts := make([]string, 0, len(tally.keys))
	for _, class := range tally.keys {
		if n := tally.counts[class]; n == 1 {
			parts = append(parts, "a "+class)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, class))
		}
	}
	return fmt.Sprintf("The image contains %s.", JoinList(parts))
}

// JoinList joins items as English prose: "a", "a and b", "a, b, and c"
func JoinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

// tally counts labels while remembering first-seen order
type tally struct {
	keys   []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(key string) {
	if _, ok := t.counts[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.counts[key]++
}
