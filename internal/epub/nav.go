package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// readNavigation returns the flattened table of contents, preferring the
// EPUB 3 navigation document over the EPUB 2 NCX.
func readNavigation(files map[string]*zip.File, pkg *packageXML, manifest map[string]manifestItem) []NavEntry {
	for _, item := range manifest {
		if !strings.Contains(item.Properties, "nav") {
			continue
		}
		raw, err := readFile(files, item.Href)
		if err != nil {
			continue
		}
		if entries := parseNavDocument(raw, path.Dir(item.Href)); len(entries) > 0 {
			return entries
		}
	}

	ncx := ""
	if item, ok := manifest[pkg.Spine.Toc]; ok {
		ncx = item.Href
	} else {
		for _, item := range manifest {
			if item.MediaType == "application/x-dtbncx+xml" {
				ncx = item.Href
				break
			}
		}
	}
	if ncx == "" {
		return nil
	}
	raw, err := readFile(files, ncx)
	if err != nil {
		return nil
	}
	return parseNCX(raw, path.Dir(ncx))
}

func parseNavDocument(raw []byte, base string) []NavEntry {
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil
	}

	var navs []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			navs = append(navs, n)
			return false
		}
		return true
	})
	if len(navs) == 0 {
		return nil
	}
	toc := navs[0]
	for _, n := range navs {
		if t := epubType(n); t == "toc" {
			toc = n
			break
		}
	}

	var entries []NavEntry
	var visitList func(ol *html.Node, depth int)
	visitList = func(ol *html.Node, depth int) {
		for li := ol.FirstChild; li != nil; li = li.NextSibling {
			if li.Type != html.ElementNode || li.DataAtom != atom.Li {
				continue
			}
			for c := li.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode {
					continue
				}
				switch c.DataAtom {
				case atom.A:
					href := attr(c, "href")
					label := collapseSpace(nodeText(c))
					if href == "" || label == "" {
						continue
					}
					file, frag := splitFragment(href)
					entries = append(entries, NavEntry{
						Label:    label,
						Href:     resolveHref(base, file),
						Fragment: frag,
						Depth:    depth,
					})
				case atom.Ol, atom.Ul:
					visitList(c, depth+1)
				}
			}
		}
	}
	walk(toc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Ol || n.DataAtom == atom.Ul) {
			visitList(n, 0)
			return false
		}
		return true
	})
	return entries
}

func epubType(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "epub:type" || (a.Namespace == "epub" && a.Key == "type") {
			return a.Val
		}
	}
	return ""
}

type ncxPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Points []ncxPoint `xml:"navPoint"`
}

type ncxDocument struct {
	Points []ncxPoint `xml:"navMap>navPoint"`
}

func parseNCX(raw []byte, base string) []NavEntry {
	var doc ncxDocument
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil
	}
	var entries []NavEntry
	var flatten func(points []ncxPoint, depth int)
	flatten = func(points []ncxPoint, depth int) {
		for _, p := range points {
			label := collapseSpace(p.Label)
			if p.Content.Src != "" && label != "" {
				file, frag := splitFragment(p.Content.Src)
				entries = append(entries, NavEntry{
					Label:    label,
					Href:     resolveHref(base, file),
					Fragment: frag,
					Depth:    depth,
				})
			}
			flatten(p.Points, depth+1)
		}
	}
	flatten(doc.Points, 0)
	return entries
}
