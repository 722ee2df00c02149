package audio

import (
	"strings"
	"testing"
	"time"
)

func TestChapterMarks(t *testing.T) {
	durations := []time.Duration{
		61500 * time.Millisecond,
		3*time.Second + 250*time.Microsecond,
		95 * time.Minute,
	}
	marks, err := ChapterMarks([]string{"One", "Two", "Three"}, durations)
	if err != nil {
		t.Fatalf("ChapterMarks() error = %v", err)
	}

	var total time.Duration
	for i, m := range marks {
		if m.Index != i+1 {
			t.Errorf("mark %d index = %d", i, m.Index)
		}
		if m.End <= m.Start {
			t.Errorf("mark %d not increasing: %v..%v", i, m.Start, m.End)
		}
		if i > 0 && m.Start != marks[i-1].End {
			t.Errorf("mark %d starts at %v, previous ended at %v", i, m.Start, marks[i-1].End)
		}
		total += durations[i].Truncate(time.Millisecond)
	}
	if marks[len(marks)-1].End != total {
		t.Errorf("last end = %v, want %v", marks[len(marks)-1].End, total)
	}

	if _, err := ChapterMarks([]string{"A"}, []time.Duration{0}); err == nil {
		t.Error("expected an error for an empty chapter")
	}
	if _, err := ChapterMarks([]string{"A", "B"}, []time.Duration{time.Second}); err == nil {
		t.Error("expected an error for mismatched lengths")
	}
}

func TestWriteFFMetadata(t *testing.T) {
	marks := []ChapterMark{
		{Index: 1, Title: "Opening", Start: 0, End: 1500 * time.Millisecond},
		{Index: 2, Title: "A=B; #2", Start: 1500 * time.Millisecond, End: 4 * time.Second},
	}

	tests := []struct {
		name    string
		meta    Metadata
		want    []string
		notWant []string
	}{
		{
			name: "standalone book",
			meta: Metadata{Title: "Tides", Author: "R. Vance", Date: "2021"},
			want: []string{
				";FFMETADATA1\n", "title=Tides\n", "artist=R. Vance\n", "album=Tides\n",
				"genre=Audiobook\n", "date=2021\n",
				"[CHAPTER]\nTIMEBASE=1/1000\nSTART=0\nEND=1500\ntitle=Opening\n",
				"START=1500\nEND=4000\ntitle=A\\=B\\; \\#2\n",
			},
			notWant: []string{"track="},
		},
		{
			name: "series book",
			meta: Metadata{Title: "Tides", Author: "R. Vance", Series: "Sea Cycle", SeriesIndex: "2"},
			want: []string{"album=Sea Cycle\n", "track=2\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			if err := WriteFFMetadata(&sb, tt.meta, marks); err != nil {
				t.Fatal(err)
			}
			got := sb.String()
			if !strings.HasPrefix(got, ";FFMETADATA1\n") {
				t.Errorf("missing header: %q", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("metadata missing %q:\n%s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("metadata unexpectedly contains %q", w)
				}
			}
			if n := strings.Count(got, "[CHAPTER]"); n != 2 {
				t.Errorf("chapter blocks = %d, want 2", n)
			}
		})
	}
}
