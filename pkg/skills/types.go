package skills

import (
	"errors"
	"fmt"
	"strings"
)

// Skill is one reusable editorial capability the model may apply.
type Skill struct {
	Name              string   `yaml:"name" json:"name"`
	Type              string   `yaml:"type" json:"type"`
	Trigger           string   `yaml:"trigger" json:"trigger"`
	RequiredInputs    []string `yaml:"required_inputs" json:"required_inputs,omitempty"`
	Instructions      string   `yaml:"instructions" json:"instructions"`
	OutputConstraints string   `yaml:"output_constraints" json:"output_constraints,omitempty"`
	RequiredTools     []string `yaml:"required_tools" json:"required_tools,omitempty"`
	// Tracks limits the skill to the listed tracks. Empty means every track.
	Tracks []string `yaml:"tracks" json:"tracks,omitempty"`
}

// Validate checks the fields the prompt depends on.
func (s Skill) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("skill name is required")
	}
	if strings.TrimSpace(s.Instructions) == "" {
		return fmt.Errorf("skill %q: instructions are required", s.Name)
	}
	for _, t := range s.Tracks {
		if _, err := ParseTrack(t); err != nil {
			return fmt.Errorf("skill %q: %w", s.Name, err)
		}
	}
	return nil
}

// AppliesTo reports whether the skill is active for track.
func (s Skill) AppliesTo(track Track) bool {
	if len(s.Tracks) == 0 {
		return true
	}
	for _, t := range s.Tracks {
		if Track(strings.ToLower(strings.TrimSpace(t))) == track {
			return true
		}
	}
	return false
}

// Track selects the kind of artifact a run produces.
type Track string

const (
	TrackNewsletter   Track = "newsletter"
	TrackSocial       Track = "social"
	TrackPressRelease Track = "press_release"
)

// DefaultTrack is used when a request names no track.
const DefaultTrack = TrackNewsletter

// ErrInvalidTrack is returned for tracks outside the closed set.
var ErrInvalidTrack = errors.New("invalid track")

var trackDirectives = map[Track]string{
	TrackNewsletter: "Produce a newsletter issue. Give it a subject-ready title, short scannable sections " +
		"and a single primary call to action.",
	TrackSocial: "Produce social media copy. Keep each post under 280 characters, write for the channel " +
		"it will be posted on and use hashtags only when they add reach.",
	TrackPressRelease: "Produce a press release. Open with a headline and dateline, answer who, what, when, " +
		"where and why in the lead paragraph and end with the company boilerplate.",
}

// ParseTrack normalizes s into a Track. An empty string yields DefaultTrack.
func ParseTrack(s string) (Track, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultTrack, nil
	}
	t := Track(s)
	if _, ok := trackDirectives[t]; !ok {
		return "", fmt.Errorf("%w: %q (expected newsletter, social or press_release)", ErrInvalidTrack, s)
	}
	return t, nil
}

// Valid reports whether t is a known track.
func (t Track) Valid() bool {
	_, ok := trackDirectives[t]
	return ok
}
