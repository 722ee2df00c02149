package audio

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Metadata is embedded into the container.
type Metadata struct {
	Title       string
	Author      string
	Series      string
	SeriesIndex string
	Date        string
	Description string
	Narrator    string
}

// ChapterMark is one chapter of the finished audiobook.
type ChapterMark struct {
	Index int           `json:"index"`
	Title string        `json:"title"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// ChapterMarks lays chapters end to end using measured durations.
func ChapterMarks(titles []string, durations []time.Duration) ([]ChapterMark, error) {
	if len(titles) != len(durations) {
		return nil, fmt.Errorf("%d titles for %d durations", len(titles), len(durations))
	}
	marks := make([]ChapterMark, len(titles))
	var offset time.Duration
	for i, title := range titles {
		// Millisecond precision matches the metadata timebase.
		d := durations[i].Truncate(time.Millisecond)
		if d <= 0 {
			return nil, fmt.Errorf("chapter %d (%s) has no audio", i+1, title)
		}
		marks[i] = ChapterMark{Index: i + 1, Title: title, Start: offset, End: offset + d}
		offset += d
	}
	return marks, nil
}

// WriteFFMetadata renders an FFMETADATA1 document.
func WriteFFMetadata(w io.Writer, meta Metadata, marks []ChapterMark) error {
	var sb strings.Builder
	sb.WriteString(";FFMETADATA1\n")
	field := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "%s=%s\n", key, escapeMetadata(value))
		}
	}

	album := meta.Title
	if meta.Series != "" {
		album = meta.Series
	}
	field("title", meta.Title)
	field("artist", meta.Author)
	field("album_artist", meta.Author)
	field("album", album)
	field("genre", "Audiobook")
	field("date", meta.Date)
	if meta.Series != "" {
		field("track", meta.SeriesIndex)
	}
	field("comment", meta.Description)
	field("composer", meta.Narrator)

	for _, m := range marks {
		sb.WriteString("\n[CHAPTER]\nTIMEBASE=1/1000\n")
		sb.WriteString("START=" + strconv.FormatInt(m.Start.Milliseconds(), 10) + "\n")
		sb.WriteString("END=" + strconv.FormatInt(m.End.Milliseconds(), 10) + "\n")
		field("title", m.Title)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

var metadataEscaper = strings.NewReplacer(
	`\`, `\\`,
	"=", `\=`,
	";", `\;`,
	"#", `\#`,
	"\n", `\`+"\n",
)

func escapeMetadata(s string) string {
	return metadataEscaper.Replace(strings.TrimSpace(s))
}
