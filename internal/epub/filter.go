package epub

import (
	"regexp"
	"strings"
)

// Exclusion reasons recorded on skipped chapters.
const (
	ReasonTooShort       = "too_short"
	ReasonFrontMatter    = "front_matter_title"
	ReasonSignature      = "front_matter_signature"
	ReasonTableOfContent = "table_of_contents"
)

var (
	skipTitle = regexp.MustCompile(`(?i)^\s*(copyright|legal|disclaimer|dedication|epigraph|acknowledgm\w*|table of contents|contents|title page|about the (author|publisher)|also by|other books|cover|frontispiece|half.?title|colophon|imprint|praise|acclaim|blurb|reviews|notes|endnotes|footnotes|index|bibliography|references|glossary|further reading|sources)\b`)

	frontMatterSignature = regexp.MustCompile(`(?i)(all rights reserved|isbn[\s:\-]|published by|library of congress|cataloging.in.publication|printed in (the )?(united states|u\.?s\.?|uk|great britain|canada|australia)|first (edition|printing|published)|no part of this (book|publication)|permission .{0,40} (publisher|reproduce)|cover (design|art|image|illustration) by)`)

	tocLine = regexp.MustCompile(`(?i)^((chapter|part|section|appendix|introduction|foreword|preface|prologue|epilogue)\b|\d+[.)]\s)`)
)

// signatureWordLimit bounds the length of spans checked for front matter
// signatures; longer spans are narrative even if they mention a publisher.
const signatureWordLimit = 500

// exclusionReason returns why a chapter should not be narrated, or "".
func exclusionReason(title, text string, words, minWords int) string {
	switch {
	case skipTitle.MatchString(title):
		return ReasonFrontMatter
	case words < signatureWordLimit && frontMatterSignature.MatchString(text):
		return ReasonSignature
	case looksLikeTOC(text):
		return ReasonTableOfContent
	case words < minWords:
		return ReasonTooShort
	}
	return ""
}

// looksLikeTOC reports whether text is dominated by short chapter-like lines.
func looksLikeTOC(text string) bool {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 5 {
		return false
	}
	matches := 0
	for _, line := range lines {
		if tocLine.MatchString(line) {
			matches++
		}
	}
	return matches >= 4 && float64(matches)/float64(len(lines)) > 0.3
}

// stripLeadingTitle removes a repeated chapter title from the start of the
// body text.
func stripLeadingTitle(text, title string) string {
	title = collapseSpace(title)
	if title == "" {
		return text
	}
	para, rest, _ := strings.Cut(text, "\n\n")
	if strings.EqualFold(collapseSpace(para), title) {
		return strings.TrimSpace(rest)
	}
	if len(text) > len(title) && strings.EqualFold(text[:len(title)], title) {
		next := text[len(title)]
		if next == ' ' || next == '\n' {
			return strings.TrimSpace(text[len(title):])
		}
	}
	return text
}
