package epub

import (
	"archive/zip"
	"bytes"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var externalCoverNames = []string{"cover.jpg", "cover.jpeg", "cover.png"}

// resolveCover finds cover art: a colocated cover file, then the package's
// declared cover, then a manifest image named like a cover, then the first
// image in reading order.
func resolveCover(src string, files map[string]*zip.File, pkg *packageXML, manifest map[string]manifestItem, units []ContentUnit) ([]byte, string) {
	dir := filepath.Dir(src)
	for _, name := range externalCoverNames {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil && len(data) > 0 {
			return data, imageType(name)
		}
	}

	load := func(item manifestItem) ([]byte, string, bool) {
		if !strings.HasPrefix(item.MediaType, "image/") {
			return nil, "", false
		}
		data, err := readFile(files, item.Href)
		if err != nil || len(data) == 0 {
			return nil, "", false
		}
		return data, item.MediaType, true
	}

	for _, m := range pkg.Metadata.Meta {
		if m.Name != "cover" {
			continue
		}
		if item, ok := manifest[m.Content]; ok {
			if data, typ, ok := load(item); ok {
				return data, typ
			}
		}
	}

	// Map iteration order is random; sort for a stable choice.
	items := make([]manifestItem, 0, len(manifest))
	for _, item := range manifest {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Href < items[j].Href })

	for _, item := range items {
		if strings.Contains(item.Properties, "cover-image") {
			if data, typ, ok := load(item); ok {
				return data, typ
			}
		}
	}
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.ID+" "+item.Href), "cover") {
			if data, typ, ok := load(item); ok {
				return data, typ
			}
		}
	}

	byHref := make(map[string]manifestItem, len(items))
	for _, item := range items {
		byHref[item.Href] = item
	}
	for _, u := range units {
		for _, ref := range imageRefs(u.Markup) {
			target := resolveHref(path.Dir(u.Href), ref)
			if item, ok := byHref[target]; ok {
				if data, typ, ok := load(item); ok {
					return data, typ
				}
			}
		}
	}
	return nil, ""
}

func imageRefs(markup []byte) []string {
	root, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil
	}
	var refs []string
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch {
		case n.DataAtom == atom.Img:
			if src := attr(n, "src"); src != "" {
				refs = append(refs, src)
			}
		case n.Data == "image":
			for _, a := range n.Attr {
				if a.Key == "href" || a.Key == "xlink:href" {
					refs = append(refs, a.Val)
				}
			}
		}
		return true
	})
	return refs
}

func imageType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
