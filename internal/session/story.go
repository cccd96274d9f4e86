package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

// Line is one dialogue entry of a story.
type Line struct {
	Character string `yaml:"character" json:"character"`
	Dialog    string `yaml:"dialog" json:"dialog"`
}

// Script is a story: ordered lines plus an optional character to voice map.
type Script struct {
	Title  string            `yaml:"title,omitempty" json:"title,omitempty"`
	Voices map[string]string `yaml:"voices,omitempty" json:"voices,omitempty"`
	Lines  []Line            `yaml:"lines" json:"lines"`
}

// ParseScript reads a story in YAML or JSON. Both a bare list of lines and
// a mapping with a lines key are accepted.
func ParseScript(data []byte) (*Script, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidScript)
	}

	var sc Script
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&sc.Lines); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
	case yaml.MappingNode:
		if err := doc.Decode(&sc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
	default:
		return nil, fmt.Errorf("%w: expected a list or a mapping", ErrInvalidScript)
	}

	if len(sc.Lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrInvalidScript)
	}
	for i, l := range sc.Lines {
		if strings.TrimSpace(l.Character) == "" {
			return nil, fmt.Errorf("%w: line %d has no character", ErrInvalidScript, i+1)
		}
		if strings.TrimSpace(l.Dialog) == "" {
			return nil, fmt.Errorf("%w: line %d has no dialog", ErrInvalidScript, i+1)
		}
	}
	return &sc, nil
}

// Characters returns the distinct characters in order of appearance.
func (sc *Script) Characters() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range sc.Lines {
		if !seen[l.Character] {
			seen[l.Character] = true
			out = append(out, l.Character)
		}
	}
	return out
}

// VoiceMapping assigns a voice to every character. Explicit entries in the
// script win, then overrides; everyone else gets the first catalog voice.
// A character mapped to "" stays silent.
func (sc *Script) VoiceMapping(catalog []synth.Voice, overrides map[string]string) map[string]string {
	fallback := ""
	if len(catalog) > 0 {
		fallback = catalog[0].ID
	}
	m := make(map[string]string)
	for _, c := range sc.Characters() {
		if v, ok := sc.Voices[c]; ok {
			m[c] = v
			continue
		}
		if v, ok := overrides[c]; ok {
			m[c] = v
			continue
		}
		m[c] = fallback
	}
	return m
}

// StoryResult summarises a story run.
type StoryResult struct {
	Lines    []Result
	Skipped  int
	Duration time.Duration
	Err      error
}

// Story generates every line in order, waiting for each to finish before
// issuing the next. The first generated line replaces the queue and later
// lines append to it. Lines whose character has no voice are skipped. The
// run stops at the first failure.
func (s *Session) Story(ctx context.Context, sc *Script, voices map[string]string) (StoryResult, error) {
	var res StoryResult

	last := -1
	for i, l := range sc.Lines {
		if voices[l.Character] != "" {
			last = i
		}
	}

	appending := false
	for i, l := range sc.Lines {
		voice := voices[l.Character]
		if voice == "" {
			res.Skipped++
			s.logger.Debug("skipping line without voice", "line", i+1, "character", l.Character)
			continue
		}

		done, err := s.Submit(ctx, Request{
			Text:   l.Dialog,
			Voice:  voice,
			Append: appending,
			More:   i != last,
			Mode:   ModeStory,
		})
		if err == nil {
			select {
			case r := <-done:
				res.Lines = append(res.Lines, r)
				err = r.Err
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		if err != nil {
			msg := fmt.Sprintf("Error generating speech for %s", l.Character)
			s.mu.Lock()
			s.errMsg = msg
			s.status = StatusError
			s.mu.Unlock()
			if serr := s.player.SetGenerating(false); serr != nil {
				s.logger.Warn("could not settle playback", "err", serr)
			}
			res.Err = NewError(CodeOf(err), msg, err).WithContext("line", i+1)
			res.Duration = s.queue.TotalDuration()
			return res, res.Err
		}
		appending = true
	}

	res.Duration = s.queue.TotalDuration()
	return res, nil
}

// CodeOf returns the code of err, defaulting to CodeChannel.
func CodeOf(err error) ErrorCode {
	if c := Code(err); c != "" {
		return c
	}
	return CodeChannel
}
