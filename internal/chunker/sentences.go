package chunker

import (
	"strings"
	"unicode"
)

var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "mt": {}, "vs": {}, "etc": {}, "no": {}, "vol": {}, "rev": {},
	"fig": {}, "al": {}, "inc": {}, "ltd": {}, "co": {}, "dept": {}, "est": {},
	"gen": {}, "col": {}, "capt": {}, "lt": {}, "sgt": {}, "gov": {}, "ave": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {},
	"sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {},
	"a.m": {}, "p.m": {}, "e.g": {}, "i.e": {}, "u.s": {}, "u.k": {},
}

// Sentences splits text into sentences. Whitespace is collapsed first, so
// joining the result with single spaces reproduces the normalized input.
func Sentences(text string) []string {
	runes := []rune(normalizeSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var out []string
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && skipPeriod(runes, i) {
			continue
		}
		end, ok := boundary(runes, i)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func skipPeriod(runes []rune, i int) bool {
	// ellipsis
	if (i > 0 && runes[i-1] == '.') || (i+1 < len(runes) && runes[i+1] == '.') {
		return true
	}
	// decimals
	if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
		return true
	}

	j := i - 1
	for j >= 0 && !tokenBoundary(runes[j]) {
		j--
	}
	token := string(runes[j+1 : i])
	if token == "" {
		return false
	}
	// initials such as "J. R. R."
	if r := []rune(token); len(r) == 1 && unicode.IsLetter(r[0]) && unicode.IsUpper(r[0]) {
		return true
	}
	_, ok := abbreviations[strings.ToLower(token)]
	return ok
}

// boundary reports whether the punctuation at i ends a sentence and returns
// the index just past any closing quotes or brackets.
func boundary(runes []rune, i int) (int, bool) {
	j := i + 1
	for j < len(runes) && closing(runes[j]) {
		j++
	}
	end := j
	if j >= len(runes) {
		return end, true
	}
	if runes[j] != ' ' {
		return 0, false
	}
	j++
	if j >= len(runes) {
		return end, true
	}
	r := runes[j]
	for opening(r) && j+1 < len(runes) {
		j++
		r = runes[j]
	}
	return end, unicode.IsUpper(r) || unicode.IsDigit(r)
}

func tokenBoundary(r rune) bool {
	return r == ' ' || opening(r) || closing(r)
}

func closing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	}
	return false
}

func opening(r rune) bool {
	switch r {
	case '"', '\'', '(', '[', '{', '“', '‘', '«':
		return true
	}
	return false
}
