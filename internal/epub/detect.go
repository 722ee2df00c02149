package epub

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Level identifies which chapter detection strategy produced a book's chapters.
type Level string

const (
	LevelTOC     Level = "toc"
	LevelHeading Level = "heading"
	LevelRegex   Level = "regex"
	LevelFixed   Level = "fixed"
)

// candidate is a detected chapter before filtering.
type candidate struct {
	title string
	text  string
}

type detector func(ctx context.Context, doc *Document, opts Options) ([]candidate, error)

// strategy pairs a level with its detector. The chain is evaluated in order
// and stops at the first level that yields a usable chapter.
type strategy struct {
	level  Level
	detect detector
}

var detectionChain = []strategy{
	{LevelTOC, detectTOC},
	{LevelHeading, detectHeadings},
	{LevelRegex, detectMarkers},
	{LevelFixed, detectFixed},
}

var chapterMarker = regexp.MustCompile(`(?im)^[ \t]*((?:chapter|part)[ \t]+(?:\d+|[ivxlcdm]+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)\b[^\n]{0,80}?)[ \t]*$`)

func detectTOC(ctx context.Context, doc *Document, opts Options) ([]candidate, error) {
	if len(doc.Navigation) == 0 {
		return nil, nil
	}

	unitIndex := make(map[string]int, len(doc.Units))
	for i, u := range doc.Units {
		unitIndex[u.Href] = i
	}

	type target struct {
		entry NavEntry
		cand  int
	}
	byUnit := make(map[int][]target)
	seen := make(map[string]bool)
	var cands []candidate
	for _, e := range doc.Navigation {
		i, ok := unitIndex[e.Href]
		if !ok {
			continue
		}
		key := e.Href + "#" + e.Fragment
		if seen[key] {
			continue
		}
		seen[key] = true
		byUnit[i] = append(byUnit[i], target{entry: e, cand: len(cands)})
		cands = append(cands, candidate{title: e.Label})
	}
	if len(cands) == 0 {
		return nil, nil
	}

	owned := make([][]block, len(cands))
	last := -1
	for i, u := range doc.Units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		targets := byUnit[i]

		anchors := make(map[string]bool, len(targets))
		for _, t := range targets {
			if t.entry.Fragment != "" {
				anchors[t.entry.Fragment] = true
			}
		}
		blocks, err := parseUnit(u, anchors, doc.KEPUB)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", u.Href, err)
		}

		if len(targets) == 0 {
			// Units without an entry continue the preceding chapter.
			if last >= 0 {
				owned[last] = append(owned[last], blocks...)
			}
			continue
		}
		if len(targets) == 1 {
			owned[targets[0].cand] = append(owned[targets[0].cand], blocks...)
			last = targets[0].cand
			continue
		}

		byFragment := make(map[string]int, len(targets))
		preamble := -1
		for _, t := range targets {
			if t.entry.Fragment == "" {
				if preamble < 0 {
					preamble = t.cand
				}
				continue
			}
			byFragment[t.entry.Fragment] = t.cand
		}
		if preamble < 0 {
			preamble = last
		}
		if preamble < 0 {
			preamble = targets[0].cand
		}
		for _, b := range blocks {
			owner := preamble
			if c, ok := byFragment[b.anchor]; ok {
				owner = c
			}
			owned[owner] = append(owned[owner], b)
		}
		last = targets[len(targets)-1].cand
	}

	for i := range cands {
		cands[i].text = joinBlocks(owned[i])
	}
	return cands, nil
}

func detectHeadings(ctx context.Context, doc *Document, opts Options) ([]candidate, error) {
	var cands []candidate
	found := false
	for _, u := range doc.Units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blocks, err := parseUnit(u, nil, doc.KEPUB)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", u.Href, err)
		}

		var (
			unit    []candidate
			bodies  [][]block
			pre     []block
			hasBody bool
		)
		for _, b := range blocks {
			if b.heading > 0 {
				title := collapseSpace(b.text)
				if len(unit) > 0 && !hasBody {
					// Stacked headings ("Chapter 1" / "The Beginning") name one chapter.
					unit[len(unit)-1].title += ": " + title
					continue
				}
				unit = append(unit, candidate{title: title})
				bodies = append(bodies, nil)
				hasBody = false
				continue
			}
			if len(unit) == 0 {
				pre = append(pre, b)
				continue
			}
			bodies[len(bodies)-1] = append(bodies[len(bodies)-1], b)
			hasBody = true
		}

		if len(unit) == 0 {
			cands = append(cands, candidate{
				title: fmt.Sprintf("Section %d", len(cands)+1),
				text:  joinBlocks(blocks),
			})
			continue
		}
		found = true
		bodies[0] = append(pre, bodies[0]...)
		for i := range unit {
			unit[i].text = joinBlocks(bodies[i])
		}
		cands = append(cands, unit...)
	}
	if !found {
		return nil, nil
	}
	return cands, nil
}

func detectMarkers(ctx context.Context, doc *Document, opts Options) ([]candidate, error) {
	full, err := fullText(ctx, doc)
	if err != nil {
		return nil, err
	}
	matches := chapterMarker.FindAllStringSubmatchIndex(full, -1)
	if len(matches) == 0 {
		return nil, nil
	}
	cands := make([]candidate, 0, len(matches))
	for i, m := range matches {
		end := len(full)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		cands = append(cands, candidate{
			title: collapseSpace(full[m[2]:m[3]]),
			text:  normalizeText(full[m[1]:end]),
		})
	}
	return cands, nil
}

func detectFixed(ctx context.Context, doc *Document, opts Options) ([]candidate, error) {
	full, err := fullText(ctx, doc)
	if err != nil {
		return nil, err
	}
	limit := opts.FallbackChapterWords
	if limit <= 0 {
		limit = DefaultFallbackChapterWords
	}

	var (
		cands []candidate
		paras []string
		words int
	)
	emit := func() {
		if len(paras) == 0 {
			return
		}
		cands = append(cands, candidate{
			title: fmt.Sprintf("Part %d", len(cands)+1),
			text:  strings.Join(paras, "\n\n"),
		})
		paras, words = nil, 0
	}
	for _, p := range strings.Split(full, "\n\n") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		paras = append(paras, p)
		words += WordCount(p)
		if words >= limit {
			emit()
		}
	}
	emit()
	return cands, nil
}

func fullText(ctx context.Context, doc *Document) (string, error) {
	parts := make([]string, 0, len(doc.Units))
	for _, u := range doc.Units {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		blocks, err := parseUnit(u, nil, doc.KEPUB)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", u.Href, err)
		}
		if text := joinBlocks(blocks); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
