package epub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/narrator/internal/epub/epubtest"
)

func threeChapterItems() []epubtest.Item {
	return []epubtest.Item{
		{ID: "ch1", Title: "Chapter One", Body: "<h1>Chapter One</h1>\n" + epubtest.Paragraphs("first", 10)},
		{ID: "ch2", Title: "Chapter Two", Body: "<h1>Chapter Two</h1>\n" + epubtest.Paragraphs("second", 10)},
		{ID: "ch3", Title: "Chapter Three", Body: "<h1>Chapter Three</h1>\n" + epubtest.Paragraphs("third", 10)},
	}
}

func extract(t *testing.T, b *epubtest.Builder, name string, opts Options) (*Result, error) {
	t.Helper()
	path := b.Write(t, t.TempDir(), name)
	return NewExtractor(opts).Extract(context.Background(), path)
}

func TestExtract_DetectionChain(t *testing.T) {
	book := epubtest.Book{Title: "River Tales", Author: "A. Writer"}

	tests := []struct {
		name      string
		builder   *epubtest.Builder
		opts      Options
		wantLevel Level
		wantTitle []string
	}{
		{
			name:      "navigation document",
			builder:   epubtest.New(book, threeChapterItems()...),
			wantLevel: LevelTOC,
			wantTitle: []string{"Chapter One", "Chapter Two", "Chapter Three"},
		},
		{
			name:      "ncx only",
			builder:   &epubtest.Builder{Book: book, Items: threeChapterItems(), NCX: true},
			wantLevel: LevelTOC,
			wantTitle: []string{"Chapter One", "Chapter Two", "Chapter Three"},
		},
		{
			name: "headings without navigation",
			builder: &epubtest.Builder{Book: book, Items: []epubtest.Item{
				{ID: "a", Body: "<h2>The Storm</h2>" + epubtest.Paragraphs("storm", 10)},
				{ID: "b", Body: "<h2>The Calm</h2>" + epubtest.Paragraphs("calm", 10)},
			}},
			wantLevel: LevelHeading,
			wantTitle: []string{"The Storm", "The Calm"},
		},
		{
			name: "chapter markers without headings",
			builder: &epubtest.Builder{Book: book, Items: []epubtest.Item{
				{ID: "a", Body: "<p>Chapter 1</p>" + epubtest.Paragraphs("one", 10) +
					"<p>Chapter 2</p>" + epubtest.Paragraphs("two", 10)},
			}},
			wantLevel: LevelRegex,
			wantTitle: []string{"Chapter 1", "Chapter 2"},
		},
		{
			name: "roman numeral parts",
			builder: &epubtest.Builder{Book: book, Items: []epubtest.Item{
				{ID: "a", Body: "<p>PART IV</p>" + epubtest.Paragraphs("four", 10) +
					"<p>part v</p>" + epubtest.Paragraphs("five", 10)},
			}},
			wantLevel: LevelRegex,
			wantTitle: []string{"PART IV", "part v"},
		},
		{
			name: "fixed split fallback",
			builder: &epubtest.Builder{Book: book, Items: []epubtest.Item{
				{ID: "a", Body: epubtest.Paragraphs("plain", 30)},
			}},
			opts:      Options{FallbackChapterWords: 100},
			wantLevel: LevelFixed,
			wantTitle: []string{"Part 1", "Part 2", "Part 3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := extract(t, tt.builder, "book.epub", tt.opts)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if res.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", res.Level, tt.wantLevel)
			}
			if len(res.Chapters) != len(tt.wantTitle) {
				t.Fatalf("got %d chapters, want %d: %+v", len(res.Chapters), len(tt.wantTitle), res.Chapters)
			}
			for i, ch := range res.Chapters {
				if ch.Title != tt.wantTitle[i] {
					t.Errorf("chapter %d title = %q, want %q", i, ch.Title, tt.wantTitle[i])
				}
				if ch.Index != i+1 {
					t.Errorf("chapter %d index = %d", i, ch.Index)
				}
				if ch.Level != tt.wantLevel {
					t.Errorf("chapter %d level = %q, mixed with %q", i, ch.Level, tt.wantLevel)
				}
			}
		})
	}
}

func TestExtract_StripsRepeatedTitle(t *testing.T) {
	res, err := extract(t, epubtest.New(epubtest.Book{Title: "T"}, threeChapterItems()...), "book.epub", Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, ch := range res.Chapters {
		if strings.HasPrefix(ch.Text, ch.Title) {
			t.Errorf("chapter %q body still starts with its title", ch.Title)
		}
	}
}

func TestExtract_MinimumWords(t *testing.T) {
	items := append(threeChapterItems(), epubtest.Item{
		ID: "blank", Title: "Illustration", Body: "<p>A short caption under an image.</p>",
	})
	res, err := extract(t, epubtest.New(epubtest.Book{Title: "T"}, items...), "book.epub", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(res.Chapters))
	}
	for _, ch := range res.Chapters {
		if ch.WordCount < DefaultMinChapterWords {
			t.Errorf("chapter %q has %d words", ch.Title, ch.WordCount)
		}
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != ReasonTooShort || !res.Skipped[0].Excluded {
		t.Errorf("Skipped = %+v, want one too_short entry", res.Skipped)
	}
}

func TestExtract_FrontMatter(t *testing.T) {
	toc := "<p>Chapter 1</p><p>Chapter 2</p><p>Chapter 3</p><p>Chapter 4</p><p>Epilogue</p>"
	items := []epubtest.Item{
		{ID: "copy", Title: "Copyright", Body: "<p>Copyright 2020. All rights reserved.</p>" + epubtest.Paragraphs("legal", 6)},
		{ID: "imprint", Title: "Publisher Page", Body: "<p>Published by River House. ISBN: 978-0-00-000000-0</p>" + epubtest.Paragraphs("imprint", 6)},
		{ID: "toc", Title: "Overview", Body: toc + epubtest.Paragraphs("toc", 4)},
	}
	items = append(items, threeChapterItems()...)

	res, err := extract(t, epubtest.New(epubtest.Book{Title: "T"}, items...), "book.epub", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chapters) != 3 || res.Chapters[0].Title != "Chapter One" || res.Chapters[0].Index != 1 {
		t.Fatalf("Chapters = %+v", res.Chapters)
	}

	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.Title] = s.Reason
	}
	want := map[string]string{
		"Copyright":      ReasonFrontMatter,
		"Publisher Page": ReasonSignature,
		"Overview":       ReasonTableOfContent,
	}
	for title, reason := range want {
		if reasons[title] != reason {
			t.Errorf("skip reason for %q = %q, want %q", title, reasons[title], reason)
		}
	}
}

func TestExtract_FragmentAnchors(t *testing.T) {
	body := `<h1 id="first">First Part</h1>` + epubtest.Paragraphs("alpha", 10) +
		`<h1 id="second">Second Part</h1>` + epubtest.Paragraphs("beta", 10)
	b := epubtest.New(epubtest.Book{Title: "T"}, epubtest.Item{
		ID:      "all",
		Body:    body,
		Anchors: []epubtest.Anchor{{ID: "first", Label: "First Part"}, {ID: "second", Label: "Second Part"}},
	})
	res, err := extract(t, b, "book.epub", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Level != LevelTOC || len(res.Chapters) != 2 {
		t.Fatalf("level %q, %d chapters", res.Level, len(res.Chapters))
	}
	if strings.Contains(res.Chapters[0].Text, "beta") {
		t.Error("first chapter contains text past the next anchor")
	}
	if !strings.Contains(res.Chapters[1].Text, "beta") || strings.Contains(res.Chapters[1].Text, "alpha") {
		t.Error("second chapter text not bounded by its anchor")
	}
}

func TestExtract_KEPUBAndDropCaps(t *testing.T) {
	body := `<h1>Opening</h1>` +
		`<p><span class="koboSpan" id="kobo.1.1"><span class="dropcap">T</span>he</span> <span class="koboSpan" id="kobo.1.2">morning began.</span></p>` +
		`<div class="drop-cap">W</div><p>ind rattled the shutters.</p>` +
		epubtest.Paragraphs("kobo", 8)
	b := epubtest.New(epubtest.Book{Title: "Kobo Book"}, epubtest.Item{ID: "a", Title: "Opening", Body: body})

	res, err := extract(t, b, "story.kepub.epub", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Document.KEPUB {
		t.Error("KEPUB not detected from file name")
	}
	text := res.Chapters[0].Text
	for _, want := range []string{"The morning began.", "Wind rattled the shutters."} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestExtract_Metadata(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		res, err := extract(t, epubtest.New(epubtest.Book{}, threeChapterItems()...), "My Novel.epub", Options{})
		if err != nil {
			t.Fatal(err)
		}
		md := res.Document.Metadata
		if md.Title != "My Novel" || md.Author != "Unknown Author" || md.Language != "en" {
			t.Errorf("Metadata = %+v", md)
		}
	})

	t.Run("dublin core", func(t *testing.T) {
		book := epubtest.Book{Title: "River Tales", Author: "A. Writer", Language: "fr", Publisher: "House", Description: "Stories."}
		res, err := extract(t, epubtest.New(book, threeChapterItems()...), "x.epub", Options{})
		if err != nil {
			t.Fatal(err)
		}
		md := res.Document.Metadata
		if md.Title != "River Tales" || md.Author != "A. Writer" || md.Language != "fr" || md.Publisher != "House" || md.Description != "Stories." {
			t.Errorf("Metadata = %+v", md)
		}
	})

	t.Run("calibre series", func(t *testing.T) {
		book := epubtest.Book{Title: "Tides", Author: "R. Vance", Series: "Sea Cycle", SeriesIndex: "2.0"}
		res, err := extract(t, epubtest.New(book, threeChapterItems()...), "x.epub", Options{})
		if err != nil {
			t.Fatal(err)
		}
		md := res.Document.Metadata
		if md.Series != "Sea Cycle" || md.SeriesIndex != "2" {
			t.Errorf("series = %q #%q", md.Series, md.SeriesIndex)
		}
	})
}

func TestExtract_CoverOrder(t *testing.T) {
	embedded := []byte("embedded-cover")
	external := []byte("external-cover")

	dir := t.TempDir()
	b := epubtest.New(epubtest.Book{Title: "T", Cover: embedded}, threeChapterItems()...)
	path := b.Write(t, dir, "book.epub")

	doc, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Cover) != string(embedded) || doc.CoverType != "image/jpeg" {
		t.Errorf("embedded cover = %q (%s)", doc.Cover, doc.CoverType)
	}

	if err := os.WriteFile(filepath.Join(dir, "cover.jpg"), external, 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Cover) != string(external) {
		t.Errorf("external cover not preferred, got %q", doc.Cover)
	}
}

func TestExtract_Errors(t *testing.T) {
	t.Run("corrupt container", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.epub")
		if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := NewExtractor(Options{}).Extract(context.Background(), path)
		var extErr *ExtractionError
		if !errors.As(err, &extErr) {
			t.Fatalf("error = %v, want *ExtractionError", err)
		}
		if extErr.Path != path {
			t.Errorf("Path = %q", extErr.Path)
		}
	})

	t.Run("no content", func(t *testing.T) {
		b := epubtest.New(epubtest.Book{Title: "T"},
			epubtest.Item{ID: "a", Title: "One", Body: "<p>Too short.</p>"},
			epubtest.Item{ID: "b", Title: "Two", Body: "<p>Also short.</p>"},
		)
		_, err := extract(t, b, "book.epub", Options{})
		if !errors.Is(err, ErrNoContent) {
			t.Fatalf("error = %v, want ErrNoContent", err)
		}
		var extErr *ExtractionError
		if !errors.As(err, &extErr) {
			t.Errorf("ErrNoContent not wrapped in *ExtractionError")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		path := epubtest.New(epubtest.Book{Title: "T"}, threeChapterItems()...).Write(t, t.TempDir(), "b.epub")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := NewExtractor(Options{}).Extract(ctx, path); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}
