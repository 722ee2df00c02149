// Package library reads a folder of ebooks laid out as <root>/<Author>/.../<book>.epub.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jackzampolin/narrator/internal/epub"
)

// UnknownAuthor is used for books stored directly under the root.
const UnknownAuthor = "Unknown Author"

// ErrNotFound is returned when no book has the requested ID.
var ErrNotFound = errors.New("book not found")

// Book is one ebook found in the library.
type Book struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Series      string `json:"series,omitempty"`
	SeriesIndex string `json:"series_index,omitempty"`
	Path        string `json:"path"`
	Format      string `json:"format"`
	HasCover    bool   `json:"has_cover"`
}

// Reader scans a library folder. Results are cached until Rescan.
type Reader struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	books []Book
}

// NewReader creates a Reader rooted at dir.
func NewReader(dir string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{root: dir, logger: logger.With("component", "library")}
}

// Root returns the library folder.
func (r *Reader) Root() string { return r.root }

// Accessible reports whether the root exists and is a directory.
func (r *Reader) Accessible() bool {
	if r.root == "" {
		return false
	}
	info, err := os.Stat(r.root)
	return err == nil && info.IsDir()
}

// List returns every book, sorted by path.
func (r *Reader) List() ([]Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.books == nil {
		books, err := r.scan()
		if err != nil {
			return nil, err
		}
		r.books = books
	}
	return append([]Book(nil), r.books...), nil
}

// Rescan drops the cache and walks the folder again.
func (r *Reader) Rescan() ([]Book, error) {
	r.mu.Lock()
	r.books = nil
	r.mu.Unlock()
	return r.List()
}

// Search returns books whose title or author contains query, ignoring case.
func (r *Reader) Search(query string) ([]Book, error) {
	books, err := r.List()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return books, nil
	}
	var out []Book
	for _, b := range books {
		if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.Author), q) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Get returns the book with the given ID.
func (r *Reader) Get(id string) (Book, error) {
	books, err := r.List()
	if err != nil {
		return Book{}, err
	}
	for _, b := range books {
		if b.ID == id {
			return b, nil
		}
	}
	return Book{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Reader) scan() ([]Book, error) {
	if !r.Accessible() {
		r.logger.Warn("library path does not exist", "path", r.root)
		return []Book{}, nil
	}

	var paths []string
	err := filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != r.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsEbook(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan library: %w", err)
	}
	sort.Strings(paths)

	books := make([]Book, 0, len(paths))
	for _, p := range paths {
		books = append(books, r.read(p))
	}
	r.logger.Info("scanned library", "path", r.root, "books", len(books))
	return books, nil
}

// read builds a Book from its location, preferring package metadata for the
// title and series. Folder placement decides the author.
func (r *Reader) read(p string) Book {
	rel, _ := filepath.Rel(r.root, p)
	b := Book{
		ID:     uuid.NewSHA1(uuid.NameSpaceURL, []byte(filepath.ToSlash(rel))).String(),
		Title:  Stem(p),
		Author: UnknownAuthor,
		Path:   p,
		Format: "EPUB",
	}
	if epub.IsKEPUB(p) {
		b.Format = "KEPUB"
	}
	if parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/"); parts[0] != "." {
		b.Author = parts[0]
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(p), "cover.jpg")); err == nil {
		b.HasCover = true
	}

	md, err := epub.ReadMetadata(p)
	if err != nil {
		r.logger.Debug("unreadable metadata, using file name", "path", p, "error", err)
		return b
	}
	if md.Title != "" {
		b.Title = md.Title
	}
	if b.Author == UnknownAuthor && md.Author != "" {
		b.Author = md.Author
	}
	b.Series = md.Series
	b.SeriesIndex = md.SeriesIndex
	return b
}

// IsEbook reports whether the file name has a supported extension.
func IsEbook(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".epub") || strings.HasSuffix(lower, ".kepub")
}

// Stem returns the file name without its ebook extension.
func Stem(p string) string {
	base := filepath.Base(p)
	lower := strings.ToLower(base)
	for _, ext := range []string{".kepub.epub", ".kepub", ".epub"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}
