package synth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxChunkRunes bounds the length of a single synthesized chunk.
const DefaultMaxChunkRunes = 400

// sentenceRe matches a run of text ending in sentence punctuation, plus any
// closing quotes or brackets that follow it.
var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+["'”’)\]]*`)

// Segment splits text into the chunks a generate request is synthesized
// in: one per sentence, with a trailing unterminated fragment as its own
// sentence, and sentences longer than maxRunes split on word boundaries.
// Text is NFC-normalised and whitespace is collapsed first.
func Segment(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxChunkRunes
	}
	text = strings.Join(strings.Fields(norm.NFC.String(text)), " ")
	if text == "" {
		return nil
	}

	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if rest := text[last:]; strings.TrimSpace(rest) != "" {
		sentences = append(sentences, rest)
	}

	var chunks []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" || !hasSpeakable(s) {
			continue
		}
		if utf8.RuneCountInString(s) <= maxRunes {
			chunks = append(chunks, s)
			continue
		}
		chunks = append(chunks, splitWords(s, maxRunes)...)
	}
	return chunks
}

// splitWords packs words into pieces of at most maxRunes. A single word
// longer than maxRunes becomes its own piece.
func splitWords(s string, maxRunes int) []string {
	var (
		out []string
		cur strings.Builder
		n   int
	)
	for _, w := range strings.Fields(s) {
		wl := utf8.RuneCountInString(w)
		if n > 0 && n+1+wl > maxRunes {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(w)
		n += wl
	}
	if n > 0 {
		out = append(out, cur.String())
	}
	return out
}

func hasSpeakable(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune(`.!?"'”’)]`, r) && r != ' '
	}) >= 0
}
