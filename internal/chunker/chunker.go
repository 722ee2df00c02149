// Package chunker splits chapter text into synthesis requests bounded by an
// estimated token budget.
package chunker

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jackzampolin/narrator/internal/epub"
)

const (
	DefaultTokenLimit    = 250
	DefaultTokenFloor    = 80
	DefaultCharsPerToken = 3.5

	// longSentenceRatio keeps split pieces of an oversized sentence safely
	// under the limit.
	longSentenceRatio = 0.9
)

// Options bounds chunk sizes.
type Options struct {
	TokenLimit    int
	TokenFloor    int
	CharsPerToken float64
}

func (o Options) withDefaults() Options {
	if o.TokenLimit <= 0 {
		o.TokenLimit = DefaultTokenLimit
	}
	if o.TokenFloor <= 0 || o.TokenFloor >= o.TokenLimit {
		o.TokenFloor = min(DefaultTokenFloor, o.TokenLimit/2)
	}
	if o.CharsPerToken <= 0 {
		o.CharsPerToken = DefaultCharsPerToken
	}
	return o
}

// Estimate returns the approximate token cost of s.
func (o Options) Estimate(s string) int {
	return o.tokens(utf8.RuneCountInString(s))
}

func (o Options) tokens(runes int) int {
	cpt := o.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}
	return int(math.Ceil(float64(runes) / cpt))
}

// Chunk is one synthesis request. Seq 0 is the chapter title.
type Chunk struct {
	Seq    int    `json:"seq"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
	Title  bool   `json:"title,omitempty"`
}

// ChunkChapter splits a detected chapter.
func ChunkChapter(ch epub.Chapter, opts Options) []Chunk {
	return Split(ch.Title, ch.Text, opts)
}

// Split emits a leading title chunk followed by body chunks built greedily
// from whole sentences. A chunk is closed when the next sentence would push
// it over TokenLimit; a trailing chunk under TokenFloor is merged into its
// predecessor.
func Split(title, text string, opts Options) []Chunk {
	opts = opts.withDefaults()

	var chunks []Chunk
	if t := TitleText(title); t != "" {
		chunks = append(chunks, Chunk{Text: t, Tokens: opts.Estimate(t), Title: true})
	}

	var (
		body     []string
		cur      []string
		curRunes int
	)
	flush := func() {
		if len(cur) > 0 {
			body = append(body, strings.Join(cur, " "))
			cur, curRunes = nil, 0
		}
	}

	for _, sentence := range Sentences(text) {
		pieces := []string{sentence}
		if opts.Estimate(sentence) > opts.TokenLimit {
			pieces = splitLong(sentence, opts)
		}
		for _, p := range pieces {
			n := utf8.RuneCountInString(p)
			if len(cur) > 0 && opts.tokens(curRunes+1+n) > opts.TokenLimit {
				flush()
			}
			if len(cur) > 0 {
				curRunes++
			}
			cur = append(cur, p)
			curRunes += n
		}
	}
	flush()

	if len(body) >= 2 && opts.Estimate(body[len(body)-1]) < opts.TokenFloor {
		last := body[len(body)-1]
		body = body[:len(body)-1]
		body[len(body)-1] += " " + last
	}

	for _, b := range body {
		chunks = append(chunks, Chunk{Seq: len(chunks), Text: b, Tokens: opts.Estimate(b)})
	}
	for i := range chunks {
		chunks[i].Seq = i
	}
	return chunks
}

// splitLong breaks an oversized sentence at the last clause boundary before
// the threshold, then at the last space, then by a hard cut.
func splitLong(sentence string, opts Options) []string {
	target := int(float64(opts.TokenLimit) * opts.CharsPerToken * longSentenceRatio)
	if target < 1 {
		target = 1
	}

	var out []string
	rest := []rune(sentence)
	for len(rest) > target {
		window := string(rest[:target])
		cut := -1
		for _, sep := range []string{"; ", ", ", " "} {
			if i := strings.LastIndex(window, sep); i > 0 {
				cut = utf8.RuneCountInString(window[:i+len(sep)-1])
				break
			}
		}
		if cut <= 0 {
			cut = target
		}
		if piece := strings.TrimSpace(string(rest[:cut])); piece != "" {
			out = append(out, piece)
		}
		rest = []rune(strings.TrimLeft(string(rest[cut:]), " "))
	}
	if piece := strings.TrimSpace(string(rest)); piece != "" {
		out = append(out, piece)
	}
	return out
}

// TitleText renders a chapter title as a spoken sentence. All-caps titles
// are title-cased so the backend does not spell them out.
func TitleText(title string) string {
	title = normalizeSpace(title)
	if title == "" {
		return ""
	}
	if isAllCaps(title) {
		title = cases.Title(language.English).String(title)
	}
	if last, _ := utf8.DecodeLastRuneInString(title); last != '.' && last != '!' && last != '?' {
		title += "."
	}
	return title
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters > 1
}
