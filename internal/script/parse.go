// Package script handles dialogue scripts: generating them from a topic,
// parsing them into turns, and rendering them to speech.
package script

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

// ErrNoTurnsFound means the script text contained no parseable dialogue.
var ErrNoTurnsFound = errors.New("no valid dialogue turns found in the script")

// Turn is one speaker's contiguous utterance.
type Turn struct {
	Speaker   string `json:"speaker"`
	Utterance string `json:"utterance"`
}

// A turn is "<|speaker|>: utterance"; turns are separated by a blank line.
var turnPattern = regexp.MustCompile(`<\|(.*?)\|>: (.*?)(?:\n\n|$)`)

// ParseTurns extracts the ordered dialogue turns from a script.
func ParseTurns(text string) ([]Turn, error) {
	matches := turnPattern.FindAllStringSubmatch(strings.TrimSpace(text), -1)
	if len(matches) == 0 {
		return nil, ErrNoTurnsFound
	}
	turns := make([]Turn, len(matches))
	for i, m := range matches {
		turns[i] = Turn{Speaker: m[1], Utterance: m[2]}
	}
	return turns, nil
}

// UnknownSpeakerError reports script speakers with no voice assignment.
type UnknownSpeakerError struct {
	Speakers []string
}

func (e *UnknownSpeakerError) Error() string {
	return "invalid speaker(s): " + strings.Join(e.Speakers, ", ")
}

// validateSpeakers returns an UnknownSpeakerError naming every speaker that
// is not a key of voices, or nil when all speakers resolve.
func validateSpeakers(turns []Turn, voices map[string]string) error {
	seen := map[string]bool{}
	var missing []string
	for _, t := range turns {
		if _, ok := voices[t.Speaker]; !ok && !seen[t.Speaker] {
			seen[t.Speaker] = true
			missing = append(missing, t.Speaker)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &UnknownSpeakerError{Speakers: missing}
}
