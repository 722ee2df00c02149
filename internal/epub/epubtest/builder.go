// Package epubtest writes small EPUB containers for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Book holds package metadata for a generated container.
type Book struct {
	Title       string
	Author      string
	Language    string
	Publisher   string
	Description string
	Series      string // written as calibre:series meta
	SeriesIndex string
	Cover       []byte // JPEG bytes; written as images/cover.jpg when set
}

// Anchor is an in-document navigation target inside an item.
type Anchor struct {
	ID    string
	Label string
}

// Item is one spine document. Body is raw XHTML placed inside <body>.
type Item struct {
	ID      string
	Title   string // navigation label; empty leaves the item out of the TOC
	Body    string
	Anchors []Anchor
}

// Builder creates EPUB files. Nav and NCX toggle the two navigation
// documents independently.
type Builder struct {
	Book  Book
	Items []Item
	Nav   bool
	NCX   bool
}

// New returns a builder that writes both navigation documents.
func New(book Book, items ...Item) *Builder {
	return &Builder{Book: book, Items: items, Nav: true, NCX: true}
}

// Build writes the container to path.
func (b *Builder) Build(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := b.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write builds the container at dir/name and fails the test on error.
func (b *Builder) Write(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := b.Build(path); err != nil {
		t.Fatalf("build epub: %v", err)
	}
	return path
}

// Bytes returns the encoded container.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo encodes the container.
func (b *Builder) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)

	// mimetype must be first and stored uncompressed.
	mw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	if _, err := mw.Write([]byte("application/epub+zip")); err != nil {
		return err
	}

	files := []struct {
		name string
		body string
	}{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", b.packageDocument()},
	}
	if b.Nav {
		files = append(files, struct{ name, body string }{"OEBPS/nav.xhtml", b.navDocument()})
	}
	if b.NCX {
		files = append(files, struct{ name, body string }{"OEBPS/toc.ncx", b.ncxDocument()})
	}
	for _, it := range b.Items {
		files = append(files, struct{ name, body string }{"OEBPS/text/" + it.ID + ".xhtml", itemDocument(it)})
	}
	for _, f := range files {
		fw, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", f.name, err)
		}
		if _, err := io.WriteString(fw, f.body); err != nil {
			return err
		}
	}
	if len(b.Book.Cover) > 0 {
		fw, err := zw.Create("OEBPS/images/cover.jpg")
		if err != nil {
			return fmt.Errorf("failed to create cover: %w", err)
		}
		if _, err := fw.Write(b.Book.Cover); err != nil {
			return err
		}
	}
	return zw.Close()
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func (b *Builder) packageDocument() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&sb, "    <dc:identifier id=\"pub-id\">urn:uuid:%s</dc:identifier>\n", uuid.New())
	if b.Book.Title != "" {
		fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", escapeXML(b.Book.Title))
	}
	if b.Book.Author != "" {
		fmt.Fprintf(&sb, "    <dc:creator>%s</dc:creator>\n", escapeXML(b.Book.Author))
	}
	if b.Book.Language != "" {
		fmt.Fprintf(&sb, "    <dc:language>%s</dc:language>\n", b.Book.Language)
	}
	if b.Book.Publisher != "" {
		fmt.Fprintf(&sb, "    <dc:publisher>%s</dc:publisher>\n", escapeXML(b.Book.Publisher))
	}
	if b.Book.Description != "" {
		fmt.Fprintf(&sb, "    <dc:description>%s</dc:description>\n", escapeXML(b.Book.Description))
	}
	if b.Book.Series != "" {
		fmt.Fprintf(&sb, "    <meta name=\"calibre:series\" content=\"%s\"/>\n", escapeXML(b.Book.Series))
		if b.Book.SeriesIndex != "" {
			fmt.Fprintf(&sb, "    <meta name=\"calibre:series_index\" content=\"%s\"/>\n", b.Book.SeriesIndex)
		}
	}
	if len(b.Book.Cover) > 0 {
		sb.WriteString("    <meta name=\"cover\" content=\"cover-img\"/>\n")
	}
	fmt.Fprintf(&sb, "    <meta property=\"dcterms:modified\">%s</meta>\n",
		time.Now().UTC().Format("2006-01-02T15:04:05Z"))
	sb.WriteString("  </metadata>\n  <manifest>\n")

	if b.Nav {
		sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	}
	if b.NCX {
		sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	}
	if len(b.Book.Cover) > 0 {
		sb.WriteString("    <item id=\"cover-img\" href=\"images/cover.jpg\" media-type=\"image/jpeg\"/>\n")
	}
	for _, it := range b.Items {
		fmt.Fprintf(&sb, "    <item id=\"%s\" href=\"text/%s.xhtml\" media-type=\"application/xhtml+xml\"/>\n", it.ID, it.ID)
	}
	sb.WriteString("  </manifest>\n")

	if b.NCX {
		sb.WriteString("  <spine toc=\"ncx\">\n")
	} else {
		sb.WriteString("  <spine>\n")
	}
	for _, it := range b.Items {
		fmt.Fprintf(&sb, "    <itemref idref=\"%s\"/>\n", it.ID)
	}
	sb.WriteString("  </spine>\n</package>\n")
	return sb.String()
}

type navTarget struct {
	label string
	href  string
}

func (b *Builder) targets() []navTarget {
	var out []navTarget
	for _, it := range b.Items {
		href := "text/" + it.ID + ".xhtml"
		if it.Title != "" {
			out = append(out, navTarget{label: it.Title, href: href})
		}
		for _, a := range it.Anchors {
			out = append(out, navTarget{label: a.Label, href: href + "#" + a.ID})
		}
	}
	return out
}

func (b *Builder) navDocument() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Table of Contents</title></head>
<body>
  <nav epub:type="toc" id="toc">
    <ol>
`)
	for _, t := range b.targets() {
		fmt.Fprintf(&sb, "      <li><a href=\"%s\">%s</a></li>\n", t.href, escapeXML(t.label))
	}
	sb.WriteString("    </ol>\n  </nav>\n</body>\n</html>\n")
	return sb.String()
}

func (b *Builder) ncxDocument() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <docTitle><text>`)
	sb.WriteString(escapeXML(b.Book.Title))
	sb.WriteString("</text></docTitle>\n  <navMap>\n")
	for i, t := range b.targets() {
		fmt.Fprintf(&sb, "    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", i+1, i+1)
		fmt.Fprintf(&sb, "      <navLabel><text>%s</text></navLabel>\n", escapeXML(t.label))
		fmt.Fprintf(&sb, "      <content src=\"%s\"/>\n", t.href)
		sb.WriteString("    </navPoint>\n")
	}
	sb.WriteString("  </navMap>\n</ncx>\n")
	return sb.String()
}

func itemDocument(it Item) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + escapeXML(it.ID) + `</title></head>
<body>
` + it.Body + `
</body>
</html>
`
}

// Paragraphs renders n sentences of filler prose as <p> elements, five
// sentences per paragraph.
func Paragraphs(seed string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i%5 == 0 {
			if i > 0 {
				sb.WriteString("</p>\n")
			}
			sb.WriteString("<p>")
		} else {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "The %s sentence number %d walks quietly along the winding river path.", seed, i+1)
	}
	if n > 0 {
		sb.WriteString("</p>")
	}
	return sb.String()
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&apos;")
	return r.Replace(s)
}
