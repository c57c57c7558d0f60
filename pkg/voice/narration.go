package voice

import "strings"

const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// languageTags maps the supported UI languages to speech synthesis tags
var languageTags = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"zh": "zh-CN",
}

// Languages returns the supported language codes
func Languages() []string {
	return []string{"en", "es", "fr", "zh"}
}

// ValidLanguage reports whether lang is supported
func ValidLanguage(lang string) bool {
	_, ok := languageTags[strings.ToLower(lang)]
	return ok
}

// LanguageTag returns the speech tag for lang, falling back to en-US
func LanguageTag(lang string) string {
	if tag, ok := languageTags[strings.ToLower(lang)]; ok {
		return tag
	}
	return "en-US"
}

// Settings are the user's voice assistant preferences
type Settings struct {
	Enabled  bool    `json:"enabled"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

// DefaultSettings has the assistant on, in English, at normal speed
func DefaultSettings() Settings {
	return Settings{Enabled: true, Language: "en", Speed: 1.0}
}

// Narration is a text-to-speech request for a client to play
type Narration struct {
	Text  string  `json:"text"`
	Lang  string  `json:"lang"`
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
}

// ClampSpeed keeps a speech rate within [MinSpeed, MaxSpeed]; zero means normal speed
func ClampSpeed(speed float64) float64 {
	switch {
	case speed == 0:
		return 1.0
	case speed < MinSpeed:
		return MinSpeed
	case speed > MaxSpeed:
		return MaxSpeed
	}
	return speed
}

// NewNarration returns false when the assistant is disabled or there is nothing to say
func NewNarration(text string, s Settings) (Narration, bool) {
	text = strings.TrimSpace(text)
	if !s.Enabled || text == "" {
		return Narration{}, false
	}
	return Narration{
		Text:  text,
		Lang:  LanguageTag(s.Language),
		Rate:  ClampSpeed(s.Speed),
		Pitch: 1,
	}, true
}
