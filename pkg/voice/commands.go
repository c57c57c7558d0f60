// Package voice maps spoken commands to actions and prepares narration of results.
package voice

import (
	"strings"
	"unicode"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

// Action is what a voice command asks for
type Action string

const (
	ActionDescribe  Action = "describe"
	ActionLabel     Action = "label"
	ActionFaces     Action = "faces"
	ActionRecognize Action = "recognize"
	ActionScene     Action = "scene"
	ActionDeepfake  Action = "deepfake"
	ActionRepeat    Action = "repeat"
	ActionStop      Action = "stop"
	ActionSave      Action = "save"
	ActionHelp      Action = "help"
	ActionUnknown   Action = "unknown"
)

// HelpText is spoken in answer to ActionHelp
const HelpText = "You can say: describe, what objects, how many faces, who is this, where am I, " +
	"is this fake, repeat, save, or stop."

// Command is a parsed transcript
type Command struct {
	Action     Action `json:"action"`
	Mode       string `json:"mode,omitempty"`
	Transcript string `json:"transcript"`
}

// Analysis reports whether the command runs an image analysis
func (c Command) Analysis() (types.Mode, bool) {
	if c.Mode == "" {
		return "", false
	}
	return types.Mode(c.Mode), true
}

// rules are checked in order; the first rule with a matching phrase wins
var rules = []struct {
	action  Action
	mode    types.Mode
	phrases []string
}{
	{ActionStop, "", []string{"stop", "be quiet", "quiet", "cancel", "shut up"}},
	{ActionHelp, "", []string{"help", "what can you do", "what can i say"}},
	{ActionRepeat, "", []string{"repeat", "again", "say that", "read it", "speak"}},
	{ActionSave, "", []string{"save", "keep this", "remember this"}},
	{ActionRecognize, types.ModeRecognition, []string{"recognize", "recognise", "who is", "who's", "identify"}},
	{ActionDeepfake, types.ModeDeepfake, []string{"deepfake", "deep fake", "fake", "manipulated", "is this real", "edited"}},
	{ActionFaces, types.ModeDetection, []string{"faces", "face", "how many people", "people", "anyone"}},
	{ActionLabel, types.ModeLabeling, []string{"label", "labels", "objects", "object", "what things", "items"}},
	{ActionScene, types.ModeScene, []string{"scene", "where am i", "where is this", "what place", "room", "surroundings"}},
	{ActionDescribe, types.ModeDescription, []string{"describe", "description", "what do you see", "what is this", "what's this", "look", "tell me"}},
}

// ParseCommand maps free text to an action. Matching is case-insensitive, ignores punctuation
// and only matches whole words.
func ParseCommand(transcript string) Command {
	cmd := Command{Action: ActionUnknown, Transcript: transcript}
	text := " " + normalize(transcript) + " "
	if strings.TrimSpace(text) == "" {
		return cmd
	}

	for _, rule := range rules {
		for _, phrase := range rule.phrases {
			if strings.Contains(text, " "+phrase+" ") {
				cmd.Action = rule.action
				cmd.Mode = string(rule.mode)
				return cmd
			}
		}
	}
	return cmd
}

// normalize lowercases and replaces punctuation with spaces, keeping apostrophes
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			return unicode.ToLower(r)
		case r == '’':
			return '\''
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
