// Package epub reads EPUB and KEPUB containers and segments them into
// narratable chapters.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Metadata is the Dublin Core subset used for audiobook tagging.
type Metadata struct {
	Title       string
	Author      string
	Language    string
	Publisher   string
	Date        string
	Description string
	Series      string
	SeriesIndex string
}

// ContentUnit is one spine item in reading order.
type ContentUnit struct {
	ID     string
	Href   string // zip path, resolved against the package document
	Markup []byte
	Labels []string // navigation labels that point into this unit
}

// NavEntry is a flattened table-of-contents entry.
type NavEntry struct {
	Label    string
	Href     string // zip path of the target unit
	Fragment string
	Depth    int
}

// Document is an immutable parsed ebook.
type Document struct {
	Path       string
	KEPUB      bool
	Metadata   Metadata
	Units      []ContentUnit
	Navigation []NavEntry
	Cover      []byte
	CoverType  string
}

type containerXML struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageXML struct {
	Metadata struct {
		Titles       []string `xml:"http://purl.org/dc/elements/1.1/ title"`
		Creators     []string `xml:"http://purl.org/dc/elements/1.1/ creator"`
		Languages    []string `xml:"http://purl.org/dc/elements/1.1/ language"`
		Publishers   []string `xml:"http://purl.org/dc/elements/1.1/ publisher"`
		Dates        []string `xml:"http://purl.org/dc/elements/1.1/ date"`
		Descriptions []string `xml:"http://purl.org/dc/elements/1.1/ description"`
		Meta         []struct {
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Property string `xml:"property,attr"`
			ID       string `xml:"id,attr"`
			Refines  string `xml:"refines,attr"`
			Value    string `xml:",chardata"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest []manifestItem `xml:"manifest>item"`
	Spine    struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// IsKEPUB reports whether the file name marks a Kobo container.
func IsKEPUB(p string) bool {
	lower := strings.ToLower(filepath.Base(p))
	return strings.HasSuffix(lower, ".kepub.epub") || strings.HasSuffix(lower, ".kepub")
}

// stem returns the file name without ebook extensions.
func stem(p string) string {
	base := filepath.Base(p)
	lower := strings.ToLower(base)
	for _, ext := range []string{".kepub.epub", ".kepub", ".epub"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Open parses the container at path into a Document.
// Errors are returned as *ExtractionError.
func Open(p string) (*Document, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, &ExtractionError{Path: p, Err: err}
	}
	defer zr.Close()

	doc, err := parse(&zr.Reader, p)
	if err != nil {
		return nil, &ExtractionError{Path: p, Err: err}
	}
	return doc, nil
}

// ReadMetadata parses only the package metadata.
func ReadMetadata(p string) (Metadata, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return Metadata{}, &ExtractionError{Path: p, Err: err}
	}
	defer zr.Close()

	files := indexZip(&zr.Reader)
	opfPath, err := rootfile(files)
	if err != nil {
		return Metadata{}, &ExtractionError{Path: p, Err: err}
	}
	var pkg packageXML
	if err := decodeXML(files, opfPath, &pkg); err != nil {
		return Metadata{}, &ExtractionError{Path: p, Err: err}
	}
	return metadataFrom(&pkg, p), nil
}

func parse(zr *zip.Reader, p string) (*Document, error) {
	files := indexZip(zr)

	opfPath, err := rootfile(files)
	if err != nil {
		return nil, err
	}
	var pkg packageXML
	if err := decodeXML(files, opfPath, &pkg); err != nil {
		return nil, err
	}
	opfDir := path.Dir(opfPath)

	manifest := make(map[string]manifestItem, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		item.Href = resolveHref(opfDir, item.Href)
		manifest[item.ID] = item
	}

	doc := &Document{
		Path:     p,
		KEPUB:    IsKEPUB(p),
		Metadata: metadataFrom(&pkg, p),
	}

	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := manifest[ref.IDRef]
		if !ok || !isMarkup(item.MediaType) {
			continue
		}
		if strings.Contains(item.Properties, "nav") {
			continue
		}
		raw, err := readFile(files, item.Href)
		if err != nil {
			// Spine items missing from the archive are skipped, not fatal.
			continue
		}
		doc.Units = append(doc.Units, ContentUnit{ID: item.ID, Href: item.Href, Markup: raw})
	}
	if len(doc.Units) == 0 {
		return nil, ErrNoSpine
	}

	doc.Navigation = readNavigation(files, &pkg, manifest)
	attachLabels(doc)

	doc.Cover, doc.CoverType = resolveCover(p, files, &pkg, manifest, doc.Units)
	return doc, nil
}

func metadataFrom(pkg *packageXML, p string) Metadata {
	md := Metadata{
		Title:       first(pkg.Metadata.Titles),
		Author:      first(pkg.Metadata.Creators),
		Language:    first(pkg.Metadata.Languages),
		Publisher:   first(pkg.Metadata.Publishers),
		Date:        first(pkg.Metadata.Dates),
		Description: first(pkg.Metadata.Descriptions),
	}
	if md.Title == "" {
		md.Title = stem(p)
	}
	if md.Author == "" {
		md.Author = "Unknown Author"
	}
	if md.Language == "" {
		md.Language = "en"
	}
	md.Series, md.SeriesIndex = seriesFrom(pkg)
	return md
}

// seriesFrom reads calibre series meta, falling back to an EPUB 3
// belongs-to-collection with its group-position refinement.
func seriesFrom(pkg *packageXML) (string, string) {
	var series, index, collectionID string
	for _, m := range pkg.Metadata.Meta {
		switch {
		case m.Name == "calibre:series":
			series = strings.TrimSpace(m.Content)
		case m.Name == "calibre:series_index":
			index = strings.TrimSpace(m.Content)
		}
	}
	if series != "" {
		return series, trimIndex(index)
	}
	for _, m := range pkg.Metadata.Meta {
		if m.Property == "belongs-to-collection" && series == "" {
			series, collectionID = strings.TrimSpace(m.Value), m.ID
		}
	}
	if series == "" {
		return "", ""
	}
	for _, m := range pkg.Metadata.Meta {
		if m.Property == "group-position" && collectionID != "" && strings.TrimPrefix(m.Refines, "#") == collectionID {
			index = strings.TrimSpace(m.Value)
		}
	}
	return series, trimIndex(index)
}

// trimIndex renders "2.0" as "2".
func trimIndex(s string) string {
	if strings.HasSuffix(s, ".0") {
		return strings.TrimSuffix(s, ".0")
	}
	return s
}

func attachLabels(doc *Document) {
	byHref := make(map[string]int, len(doc.Units))
	for i, u := range doc.Units {
		byHref[u.Href] = i
	}
	for _, e := range doc.Navigation {
		if i, ok := byHref[e.Href]; ok {
			doc.Units[i].Labels = append(doc.Units[i].Labels, e.Label)
		}
	}
}

func indexZip(zr *zip.Reader) map[string]*zip.File {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	return files
}

func rootfile(files map[string]*zip.File) (string, error) {
	var c containerXML
	if err := decodeXML(files, "META-INF/container.xml", &c); err != nil {
		return "", err
	}
	for _, rf := range c.Rootfiles {
		if rf.FullPath != "" {
			return rf.FullPath, nil
		}
	}
	return "", ErrNoRootfile
}

func readFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingFile)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func decodeXML(files map[string]*zip.File, name string, v any) error {
	raw, err := readFile(files, name)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(strings.NewReader(string(raw)))
	dec.Strict = false
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// resolveHref joins a manifest or navigation href with its base directory
// and drops the fragment.
func resolveHref(base, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	if base == "." || base == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(base, href))
}

func splitFragment(href string) (string, string) {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i], href[i+1:]
	}
	return href, ""
}

func isMarkup(mediaType string) bool {
	return mediaType == "application/xhtml+xml" || mediaType == "text/html"
}

func first(vals []string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
