// Package output places finished audiobooks into the library layout
// Author/[Series/]Title/Title.m4b with the sidecar files audiobook servers
// read.
package output

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/net/html"
	"golang.org/x/sys/unix"

	"github.com/jackzampolin/narrator/internal/audio"
)

// MaxCoverSize bounds the longest edge of cover.jpg.
const MaxCoverSize = 800

var unsafeChars = regexp.MustCompile(`[/\\:*?"<>|]`)

// Sanitize replaces characters that are not portable in file names.
func Sanitize(name string) string {
	s := strings.TrimSpace(unsafeChars.ReplaceAllString(name, "_"))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Book describes a finished audiobook.
type Book struct {
	Title       string
	Author      string
	Series      string
	SeriesIndex string
	Voice       string
	Description string // may contain HTML
	Cover       []byte
}

// Config configures a Manager.
type Config struct {
	Dir      string
	Sidecars bool // write cover.jpg, desc.txt and reader.txt
	Logger   *slog.Logger
}

// Manager owns the output library directory.
type Manager struct {
	dir      string
	sidecars bool
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dir: cfg.Dir, sidecars: cfg.Sidecars, logger: logger.With("component", "output")}
}

// Dir returns the library root.
func (m *Manager) Dir() string { return m.dir }

// BookDir returns the directory a book is placed in.
func (m *Manager) BookDir(b Book) string {
	author := Sanitize(b.Author)
	title := Sanitize(b.Title)
	if b.Series != "" {
		return filepath.Join(m.dir, author, Sanitize(b.Series), title)
	}
	return filepath.Join(m.dir, author, title)
}

// Path returns the final m4b path of a book.
func (m *Manager) Path(b Book) string {
	return filepath.Join(m.BookDir(b), Sanitize(b.Title)+".m4b")
}

// Exists reports whether the book is already in the library.
func (m *Manager) Exists(b Book) bool {
	_, err := os.Stat(m.Path(b))
	return err == nil
}

// Place moves src into the library and writes sidecars. A sidecar failure
// is logged and does not fail placement.
func (m *Manager) Place(src string, b Book) (string, error) {
	dir := m.BookDir(b)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create book dir: %w", err)
	}
	dest := m.Path(b)
	if err := move(src, dest); err != nil {
		return "", fmt.Errorf("failed to place audiobook: %w", err)
	}

	if m.sidecars {
		if err := m.writeSidecars(dir, b); err != nil {
			m.logger.Warn("failed to write sidecars", "dir", dir, "error", err)
		}
	}
	m.logger.Info("audiobook placed", "path", dest)
	return dest, nil
}

func (m *Manager) writeSidecars(dir string, b Book) error {
	var errs []error
	if len(b.Cover) > 0 {
		cover, err := Thumbnail(b.Cover, MaxCoverSize)
		if err == nil {
			err = os.WriteFile(filepath.Join(dir, "cover.jpg"), cover, 0o644)
		}
		errs = append(errs, err)
	}
	if desc := PlainText(b.Description); desc != "" {
		errs = append(errs, os.WriteFile(filepath.Join(dir, "desc.txt"), []byte(desc), 0o644))
	}
	if b.Voice != "" {
		errs = append(errs, os.WriteFile(filepath.Join(dir, "reader.txt"), []byte("AI Narration ("+b.Voice+")"), 0o644))
	}
	return errors.Join(errs...)
}

// Thumbnail converts a cover to JPEG no larger than size on either edge.
func Thumbnail(b []byte, size int) ([]byte, error) {
	jpg, err := audio.CoverJPEG(b)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(jpg))
	if err != nil {
		return nil, fmt.Errorf("decode cover: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= size && h <= size {
		return jpg, nil
	}
	if w >= h {
		w, h = size, max(1, h*size/w)
	} else {
		w, h = max(1, w*size/h), size
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode cover: %w", err)
	}
	return buf.Bytes(), nil
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "blockquote": true, "tr": true,
}

// PlainText strips markup from an OPF description, one line per block.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tidy(sb.String())
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				sb.WriteByte('\n')
			}
		}
	}
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// move renames src to dest, copying when they are on different filesystems.
func move(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil || !errors.Is(err, unix.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return err
	}
	return os.Remove(src)
}
